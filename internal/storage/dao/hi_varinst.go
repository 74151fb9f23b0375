package dao

import (
	"context"
	"database/sql"
	"time"

	"github.com/user/procengine/apperr"
	"github.com/user/procengine/internal/storage/model"
)

// HiVarDAO is the persistence gateway for HiVar rows, grounded on
// ApfHiVarinstDao (src/dao/apf_hi_varinst_dao.rs).
type HiVarDAO struct{ gw *Gateway }

func NewHiVarDAO(gw *Gateway) *HiVarDAO { return &HiVarDAO{gw: gw} }

// CreateOrUpdateFromVar mirrors the engine's every-complete-call upsert:
// the history twin is created on first write and its value/timestamp
// refreshed on every subsequent write to the same (proc_inst_id, name).
func (d *HiVarDAO) CreateOrUpdateFromVar(ctx context.Context, tx *sql.Tx, v *model.RuVar, now time.Time) error {
	const op = "dao.HiVar.CreateOrUpdateFromVar"
	rev, err := d.getRev(ctx, tx, v.ID)
	if err != nil {
		if code, ok := apperr.CodeOf(err); ok && code == apperr.NotFound {
			_, insertErr := d.gw.exec(ctx, tx, `insert into apf_hi_varinst
				(id, rev, var_type, name, value, proc_inst_id, task_id, update_time)
				values (?, 1, ?, ?, ?, ?, ?, ?)`,
				v.ID, v.VarType, v.Name, v.Value, v.ProcInstID, nullIfEmpty(v.TaskID), now)
			if insertErr != nil {
				return apperr.Wrap(apperr.InternalError, op, "insert apf_hi_varinst failed", insertErr)
			}
			return nil
		}
		return err
	}

	res, err := d.gw.exec(ctx, tx, `update apf_hi_varinst
		set rev = rev + 1, value = ?, var_type = ?, update_time = ?
		where id = ? and rev = ?`, v.Value, v.VarType, now, v.ID, rev)
	if err != nil {
		return apperr.Wrap(apperr.InternalError, op, "update apf_hi_varinst failed", err)
	}
	ok, err := checkSingleRowAffected(res)
	if err != nil {
		return apperr.Wrap(apperr.InternalError, op, "rows affected check failed", err)
	}
	if !ok {
		return apperr.InternalErrorf(op, "apf_hi_varinst(%s) is not updated correctly", v.ID)
	}
	return nil
}

func (d *HiVarDAO) getRev(ctx context.Context, tx *sql.Tx, id string) (int, error) {
	const op = "dao.HiVar.getRev"
	row := d.gw.queryRow(ctx, tx, `select rev from apf_hi_varinst where id = ?`, id)
	var rev int
	if err := row.Scan(&rev); err != nil {
		if err == sql.ErrNoRows {
			return 0, apperr.NotFoundf(op, "apf_hi_varinst(%s) not found", id)
		}
		return 0, apperr.Wrap(apperr.InternalError, op, "select apf_hi_varinst failed", err)
	}
	return rev, nil
}
