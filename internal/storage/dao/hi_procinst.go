package dao

import (
	"context"
	"database/sql"
	"time"

	"github.com/user/procengine/apperr"
	"github.com/user/procengine/internal/storage/model"
)

// HiProcInstDAO is the persistence gateway for HiProcInst rows, grounded on
// ApfHiProcinstDao (src/dao/apf_hi_procinst_dao.rs). Its id is always the
// root RuExec's id, so it carries no independent id generation.
type HiProcInstDAO struct{ gw *Gateway }

func NewHiProcInstDAO(gw *Gateway) *HiProcInstDAO { return &HiProcInstDAO{gw: gw} }

func (d *HiProcInstDAO) Create(ctx context.Context, tx *sql.Tx, h *model.HiProcInst) (*model.HiProcInst, error) {
	const op = "dao.HiProcInst.Create"
	_, err := d.gw.exec(ctx, tx, `insert into apf_hi_procinst
		(id, rev, proc_def_id, business_key, start_time, start_user)
		values (?, 1, ?, ?, ?, ?)`,
		h.ID, h.ProcDefID, h.BusinessKey, h.StartTime, h.StartUser)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, op, "insert apf_hi_procinst failed", err)
	}
	return h, nil
}

// MarkEnd stamps end_time/end_element_id and computes duration — grounded on
// mark_end's find-then-optimistic-update shape. Runs exactly once per process
// instance (spec §3 invariant 5).
func (d *HiProcInstDAO) MarkEnd(ctx context.Context, tx *sql.Tx, id, endElementID string, endTime time.Time) error {
	const op = "dao.HiProcInst.MarkEnd"
	h, rev, err := d.getByIDWithRev(ctx, tx, id)
	if err != nil {
		return err
	}
	durationMs := endTime.Sub(h.StartTime).Milliseconds()

	res, err := d.gw.exec(ctx, tx, `update apf_hi_procinst
		set rev = rev + 1, end_time = ?, duration = ?, end_element_id = ?
		where id = ? and rev = ?`, endTime, durationMs, endElementID, id, rev)
	if err != nil {
		return apperr.Wrap(apperr.InternalError, op, "update apf_hi_procinst failed", err)
	}
	ok, err := checkSingleRowAffected(res)
	if err != nil {
		return apperr.Wrap(apperr.InternalError, op, "rows affected check failed", err)
	}
	if !ok {
		return apperr.InternalErrorf(op, "apf_hi_procinst(%s) is not updated correctly", id)
	}
	return nil
}

func (d *HiProcInstDAO) GetByID(ctx context.Context, tx *sql.Tx, id string) (*model.HiProcInst, error) {
	h, _, err := d.getByIDWithRev(ctx, tx, id)
	return h, err
}

func (d *HiProcInstDAO) getByIDWithRev(ctx context.Context, tx *sql.Tx, id string) (*model.HiProcInst, int, error) {
	const op = "dao.HiProcInst.GetByID"
	row := d.gw.queryRow(ctx, tx, `select id, rev, proc_def_id, business_key, start_time, start_user,
		end_time, duration, end_element_id
		from apf_hi_procinst where id = ?`, id)

	var h model.HiProcInst
	var rev int
	var endTime sql.NullTime
	var duration sql.NullInt64
	var endElementID sql.NullString
	if err := row.Scan(&h.ID, &rev, &h.ProcDefID, &h.BusinessKey, &h.StartTime, &h.StartUser,
		&endTime, &duration, &endElementID); err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, apperr.NotFoundf(op, "apf_hi_procinst(%s) not found", id)
		}
		return nil, 0, apperr.Wrap(apperr.InternalError, op, "select apf_hi_procinst failed", err)
	}
	if endTime.Valid {
		h.EndTime = &endTime.Time
	}
	if duration.Valid {
		h.DurationMs = &duration.Int64
	}
	h.EndElementID = endElementID.String
	return &h, rev, nil
}
