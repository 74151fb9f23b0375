package dao

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/user/procengine/apperr"
	"github.com/user/procengine/internal/storage/model"
)

// RuExecutionDAO is the persistence gateway for RuExec rows, grounded on
// ApfRuExecutionDao (src/dao/apf_ru_execution_dao.rs).
type RuExecutionDAO struct{ gw *Gateway }

func NewRuExecutionDAO(gw *Gateway) *RuExecutionDAO { return &RuExecutionDAO{gw: gw} }

// Create inserts a new execution row with rev=1. Callers that are starting a
// root process instance should follow with CreateProcInst to backfill
// proc_inst_id/root_proc_inst_id with the new row's own id.
func (d *RuExecutionDAO) Create(ctx context.Context, tx *sql.Tx, e *model.RuExec) (*model.RuExec, error) {
	const op = "dao.RuExecution.Create"
	e.ID = uuid.NewString()
	e.Rev = 1
	_, err := d.gw.exec(ctx, tx, `insert into apf_ru_execution
		(id, rev, proc_inst_id, business_key, parent_id, proc_def_id, root_proc_inst_id,
		 element_id, is_active, start_time, start_user)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Rev, e.ProcInstID, e.BusinessKey, e.ParentID, e.ProcDefID, e.RootProcInstID,
		e.ElementID, boolToInt(e.IsActive), e.StartTime, e.StartUser)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, op, "insert apf_ru_execution failed", err)
	}
	return e, nil
}

// CreateProcInst creates a root execution, then points its own
// proc_inst_id/root_proc_inst_id at itself — the two-step shape of
// ApfRuExecutionDao::create_proc_inst.
func (d *RuExecutionDAO) CreateProcInst(ctx context.Context, tx *sql.Tx, e *model.RuExec) (*model.RuExec, error) {
	const op = "dao.RuExecution.CreateProcInst"
	created, err := d.Create(ctx, tx, e)
	if err != nil {
		return nil, err
	}

	res, err := d.gw.exec(ctx, tx, `update apf_ru_execution set proc_inst_id = ?, root_proc_inst_id = ? where id = ?`,
		created.ID, created.ID, created.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, op, "update proc_inst_id failed", err)
	}
	ok, err := checkSingleRowAffected(res)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, op, "rows affected check failed", err)
	}
	if !ok {
		return nil, apperr.NotFoundf(op, "apf_ru_execution(%s) is not updated", created.ID)
	}

	return d.GetByID(ctx, tx, created.ID)
}

// MarkBegin moves an execution onto elementID, stamping start_user/start_time
// and bumping rev — grounded on mark_begin's optimistic-lock update.
func (d *RuExecutionDAO) MarkBegin(ctx context.Context, tx *sql.Tx, id, elementID, startUser string, startTime time.Time) error {
	const op = "dao.RuExecution.MarkBegin"
	current, err := d.GetByID(ctx, tx, id)
	if err != nil {
		return err
	}

	res, err := d.gw.exec(ctx, tx, `update apf_ru_execution
		set element_id = ?, start_time = ?, start_user = ?, rev = rev + 1
		where id = ? and rev = ?`,
		elementID, startTime, startUser, id, current.Rev)
	if err != nil {
		return apperr.Wrap(apperr.InternalError, op, "update apf_ru_execution failed", err)
	}
	ok, err := checkSingleRowAffected(res)
	if err != nil {
		return apperr.Wrap(apperr.InternalError, op, "rows affected check failed", err)
	}
	if !ok {
		return apperr.InternalErrorf(op, "apf_ru_execution(%s) is not updated correctly", id)
	}
	return nil
}

// Deactivate flips is_active to false under the same optimistic-lock shape,
// used at a parallel-gateway join (spec §4.6).
func (d *RuExecutionDAO) Deactivate(ctx context.Context, tx *sql.Tx, id string) error {
	const op = "dao.RuExecution.Deactivate"
	current, err := d.GetByID(ctx, tx, id)
	if err != nil {
		return err
	}

	res, err := d.gw.exec(ctx, tx, `update apf_ru_execution set is_active = 0, rev = ? where id = ? and rev = ?`,
		current.Rev+1, id, current.Rev)
	if err != nil {
		return apperr.Wrap(apperr.InternalError, op, "update apf_ru_execution failed", err)
	}
	ok, err := checkSingleRowAffected(res)
	if err != nil {
		return apperr.Wrap(apperr.InternalError, op, "rows affected check failed", err)
	}
	if !ok {
		return apperr.InternalErrorf(op, "apf_ru_execution(%s) is not updated correctly", id)
	}
	return nil
}

func (d *RuExecutionDAO) GetByID(ctx context.Context, tx *sql.Tx, id string) (*model.RuExec, error) {
	const op = "dao.RuExecution.GetByID"
	row := d.gw.queryRow(ctx, tx, `select id, rev, proc_inst_id, business_key, parent_id, proc_def_id,
		root_proc_inst_id, element_id, is_active, start_time, start_user
		from apf_ru_execution where id = ?`, id)

	var e model.RuExec
	var isActive int
	if err := row.Scan(&e.ID, &e.Rev, &e.ProcInstID, &e.BusinessKey, &e.ParentID, &e.ProcDefID,
		&e.RootProcInstID, &e.ElementID, &isActive, &e.StartTime, &e.StartUser); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFoundf(op, "apf_ru_execution(%s) not found", id)
		}
		return nil, apperr.Wrap(apperr.InternalError, op, "select apf_ru_execution failed", err)
	}
	e.IsActive = isActive != 0
	return &e, nil
}

func (d *RuExecutionDAO) CountInactiveByElement(ctx context.Context, tx *sql.Tx, procInstID, elementID string) (int64, error) {
	const op = "dao.RuExecution.CountInactiveByElement"
	row := d.gw.queryRow(ctx, tx, `select count(id) from apf_ru_execution
		where proc_inst_id = ? and element_id = ? and is_active = 0`, procInstID, elementID)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, apperr.Wrap(apperr.InternalError, op, "count apf_ru_execution failed", err)
	}
	return count, nil
}

func (d *RuExecutionDAO) DeleteInactiveByElement(ctx context.Context, tx *sql.Tx, procInstID, elementID string) (int64, error) {
	const op = "dao.RuExecution.DeleteInactiveByElement"
	res, err := d.gw.exec(ctx, tx, `delete from apf_ru_execution where proc_inst_id = ? and element_id = ? and is_active = 0`,
		procInstID, elementID)
	if err != nil {
		return 0, apperr.Wrap(apperr.InternalError, op, "delete apf_ru_execution failed", err)
	}
	return res.RowsAffected()
}

func (d *RuExecutionDAO) Delete(ctx context.Context, tx *sql.Tx, id string) (int64, error) {
	const op = "dao.RuExecution.Delete"
	res, err := d.gw.exec(ctx, tx, `delete from apf_ru_execution where id = ?`, id)
	if err != nil {
		return 0, apperr.Wrap(apperr.InternalError, op, "delete apf_ru_execution failed", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
