package dao

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/user/procengine/apperr"
	"github.com/user/procengine/internal/storage/model"
)

// RuIdentDAO is the persistence gateway for RuIdent rows, grounded on
// ApfRuIdentitylinkDao (src/dao/apf_ru_identitylink_dao.rs). Unlike the Rust
// original, ident_type correctly tags both the candidate-user and
// candidate-group loops — see DESIGN.md's "Element Behaviors" note.
type RuIdentDAO struct{ gw *Gateway }

func NewRuIdentDAO(gw *Gateway) *RuIdentDAO { return &RuIdentDAO{gw: gw} }

func (d *RuIdentDAO) Create(ctx context.Context, tx *sql.Tx, i *model.RuIdent) (*model.RuIdent, error) {
	const op = "dao.RuIdent.Create"
	i.ID = uuid.NewString()

	var userID, groupID string
	switch i.IdentType {
	case model.IdentUser:
		userID = i.IdentID
	case model.IdentGroup:
		groupID = i.IdentID
	default:
		return nil, apperr.InvalidInputf(op, "unrecognized ident_type %q", i.IdentType)
	}

	_, err := d.gw.exec(ctx, tx, `insert into apf_ru_identitylink
		(id, rev, ident_type, group_id, user_id, task_id, proc_inst_id, proc_def_id)
		values (?, 1, ?, ?, ?, ?, ?, ?)`,
		i.ID, string(i.IdentType), groupID, userID, i.TaskID, i.ProcInstID, i.ProcDefID)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, op, "insert apf_ru_identitylink failed", err)
	}
	return i, nil
}

func (d *RuIdentDAO) DeleteByTaskID(ctx context.Context, tx *sql.Tx, taskID string) (int64, error) {
	const op = "dao.RuIdent.DeleteByTaskID"
	res, err := d.gw.exec(ctx, tx, `delete from apf_ru_identitylink where task_id = ?`, taskID)
	if err != nil {
		return 0, apperr.Wrap(apperr.InternalError, op, "delete apf_ru_identitylink failed", err)
	}
	return res.RowsAffected()
}
