package dao

import (
	"context"
	"database/sql"
	"time"

	"github.com/user/procengine/apperr"
	"github.com/user/procengine/internal/storage/model"
)

// HiTaskDAO is the persistence gateway for HiTask rows, grounded on
// ApfHiTaskinstDao (src/dao/apf_hi_taskinst_dao.rs).
type HiTaskDAO struct{ gw *Gateway }

func NewHiTaskDAO(gw *Gateway) *HiTaskDAO { return &HiTaskDAO{gw: gw} }

// CreateFromTask mirrors create_from_task: a HiTask row is stamped the
// moment its RuTask is created, sharing the same id.
func (d *HiTaskDAO) CreateFromTask(ctx context.Context, tx *sql.Tx, t *model.RuTask) (*model.HiTask, error) {
	h := &model.HiTask{
		ID:          t.ID,
		ProcInstID:  t.ProcInstID,
		ExecutionID: t.ExecutionID,
		ElementID:   t.ElementID,
		Name:        t.Name,
		BusinessKey: t.BusinessKey,
		FormKey:     t.FormKey,
		StartUserID: t.StartUserID,
		CreateTime:  t.CreateTime,
	}
	return d.Create(ctx, tx, h)
}

func (d *HiTaskDAO) Create(ctx context.Context, tx *sql.Tx, h *model.HiTask) (*model.HiTask, error) {
	const op = "dao.HiTask.Create"
	_, err := d.gw.exec(ctx, tx, `insert into apf_hi_taskinst
		(id, rev, execution_id, proc_inst_id, element_id, element_name, business_key,
		 start_user_id, start_time, form_key)
		values (?, 1, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.ExecutionID, h.ProcInstID, h.ElementID, h.Name, h.BusinessKey,
		h.StartUserID, h.CreateTime, h.FormKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, op, "insert apf_hi_taskinst failed", err)
	}
	return h, nil
}

// MarkEnd stamps end_time/end_user_id and computes duration for a completed
// task — grounded on mark_end (src/dao/apf_hi_taskinst_dao.rs), which
// derives duration as (end_time - start_time).num_milliseconds().
func (d *HiTaskDAO) MarkEnd(ctx context.Context, tx *sql.Tx, taskID, endUserID string, endTime time.Time) error {
	const op = "dao.HiTask.MarkEnd"
	startTime, rev, err := d.getStartTimeAndRev(ctx, tx, taskID)
	if err != nil {
		return err
	}
	durationMs := endTime.Sub(startTime).Milliseconds()

	res, err := d.gw.exec(ctx, tx, `update apf_hi_taskinst
		set rev = rev + 1, end_time = ?, end_user_id = ?, duration = ?
		where id = ? and rev = ?`, endTime, nullIfEmpty(endUserID), durationMs, taskID, rev)
	if err != nil {
		return apperr.Wrap(apperr.InternalError, op, "update apf_hi_taskinst failed", err)
	}
	ok, err := checkSingleRowAffected(res)
	if err != nil {
		return apperr.Wrap(apperr.InternalError, op, "rows affected check failed", err)
	}
	if !ok {
		return apperr.InternalErrorf(op, "apf_hi_taskinst(%s) is not updated correctly", taskID)
	}
	return nil
}

func (d *HiTaskDAO) getStartTimeAndRev(ctx context.Context, tx *sql.Tx, id string) (time.Time, int, error) {
	const op = "dao.HiTask.getStartTimeAndRev"
	row := d.gw.queryRow(ctx, tx, `select start_time, rev from apf_hi_taskinst where id = ?`, id)
	var startTime time.Time
	var rev int
	if err := row.Scan(&startTime, &rev); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, 0, apperr.NotFoundf(op, "apf_hi_taskinst(%s) not found", id)
		}
		return time.Time{}, 0, apperr.Wrap(apperr.InternalError, op, "select apf_hi_taskinst failed", err)
	}
	return startTime, rev, nil
}
