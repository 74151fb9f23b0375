package dao

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/user/procengine/apperr"
	"github.com/user/procengine/internal/storage/model"
)

// HiActInstDAO is the persistence gateway for HiActInst rows, grounded on
// ApfHiActinstDao (src/dao/apf_hi_actinst_dao.rs). History rows are never
// deleted by the engine (spec §3 ownership note).
type HiActInstDAO struct{ gw *Gateway }

func NewHiActInstDAO(gw *Gateway) *HiActInstDAO { return &HiActInstDAO{gw: gw} }

func (d *HiActInstDAO) Create(ctx context.Context, tx *sql.Tx, h *model.HiActInst) (*model.HiActInst, error) {
	const op = "dao.HiActInst.Create"
	h.ID = uuid.NewString()
	_, err := d.gw.exec(ctx, tx, `insert into apf_hi_actinst
		(id, proc_def_id, proc_inst_id, execution_id, task_id, element_id, element_name,
		 element_type, start_user_id, start_time, end_time, duration)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, nullIfEmpty(""), h.ProcInstID, h.ExecutionID, nullIfEmpty(h.TaskID), h.ElementID,
		h.Name, h.ElementType, nullIfEmpty(h.StartUserID), h.StartTime, h.EndTime, h.DurationMs)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, op, "insert apf_hi_actinst failed", err)
	}
	return h, nil
}

// MarkEnd sets end_time/duration for the in-flight activity instance
// matching (executionID, elementID) — grounded on mark_end's
// find-then-optimistic-update shape.
func (d *HiActInstDAO) MarkEnd(ctx context.Context, tx *sql.Tx, executionID, elementID, endUserID string, endTime time.Time) error {
	const op = "dao.HiActInst.MarkEnd"
	h, rev, err := d.findOneByElementWithRev(ctx, tx, executionID, elementID)
	if err != nil {
		return err
	}
	durationMs := endTime.Sub(h.StartTime).Milliseconds()

	res, err := d.gw.exec(ctx, tx, `update apf_hi_actinst
		set rev = rev + 1, end_time = ?, duration = ?, end_user_id = ?
		where id = ? and rev = ?`, endTime, durationMs, nullIfEmpty(endUserID), h.ID, rev)
	if err != nil {
		return apperr.Wrap(apperr.InternalError, op, "update apf_hi_actinst failed", err)
	}
	ok, err := checkSingleRowAffected(res)
	if err != nil {
		return apperr.Wrap(apperr.InternalError, op, "rows affected check failed", err)
	}
	if !ok {
		return apperr.InternalErrorf(op, "apf_hi_actinst(%s) is not updated correctly", h.ID)
	}
	return nil
}

func (d *HiActInstDAO) findOneByElementWithRev(ctx context.Context, tx *sql.Tx, executionID, elementID string) (*model.HiActInst, int, error) {
	const op = "dao.HiActInst.findOneByElement"
	row := d.gw.queryRow(ctx, tx, `select id, rev, proc_inst_id, execution_id, task_id, element_id,
		element_name, element_type, start_user_id, start_time
		from apf_hi_actinst where execution_id = ? and element_id = ? and end_time is null`,
		executionID, elementID)

	var h model.HiActInst
	var rev int
	var taskID, startUserID sql.NullString
	if err := row.Scan(&h.ID, &rev, &h.ProcInstID, &h.ExecutionID, &taskID, &h.ElementID,
		&h.Name, &h.ElementType, &startUserID, &h.StartTime); err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, apperr.NotFoundf(op, "apf_hi_actinst(execution_id:%s, element_id:%s) not found", executionID, elementID)
		}
		return nil, 0, apperr.Wrap(apperr.InternalError, op, "select apf_hi_actinst failed", err)
	}
	h.TaskID = taskID.String
	h.StartUserID = startUserID.String
	return &h, rev, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
