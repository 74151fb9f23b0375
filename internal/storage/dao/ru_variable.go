package dao

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/user/procengine/apperr"
	"github.com/user/procengine/internal/storage/model"
)

// RuVarDAO is the persistence gateway for RuVar rows, grounded on
// ApfRuVariableDao (src/dao/apf_ru_variable_dao.rs).
type RuVarDAO struct{ gw *Gateway }

func NewRuVarDAO(gw *Gateway) *RuVarDAO { return &RuVarDAO{gw: gw} }

func (d *RuVarDAO) Create(ctx context.Context, tx *sql.Tx, v *model.RuVar) (*model.RuVar, error) {
	const op = "dao.RuVar.Create"
	v.ID = uuid.NewString()
	_, err := d.gw.exec(ctx, tx, `insert into apf_ru_variable
		(id, rev, var_type, name, value, proc_inst_id, execution_id, task_id)
		values (?, 1, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.VarType, v.Name, v.Value, v.ProcInstID, v.ExecutionID, v.TaskID)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, op, "insert apf_ru_variable failed", err)
	}
	return v, nil
}

// Update bumps rev on an existing variable row, grounded on
// ApfRuVariableDao::update's optimistic-lock statement. rev must be the row's
// current rev; GetByProcInst and GetByID do not return it, so CreateOrUpdate
// reads it through getByProcInstWithRev.
func (d *RuVarDAO) Update(ctx context.Context, tx *sql.Tx, v *model.RuVar, rev int) error {
	const op = "dao.RuVar.Update"
	res, err := d.gw.exec(ctx, tx, `update apf_ru_variable
		set rev = rev + 1, var_type = ?, name = ?, value = ?, execution_id = ?, task_id = ?
		where id = ? and rev = ?`,
		v.VarType, v.Name, v.Value, v.ExecutionID, v.TaskID, v.ID, rev)
	if err != nil {
		return apperr.Wrap(apperr.InternalError, op, "update apf_ru_variable failed", err)
	}
	ok, err := checkSingleRowAffected(res)
	if err != nil {
		return apperr.Wrap(apperr.InternalError, op, "rows affected check failed", err)
	}
	if !ok {
		return apperr.InternalErrorf(op, "apf_ru_variable(%s) is not updated correctly", v.ID)
	}
	return nil
}

// CreateOrUpdate finds the variable by (proc_inst_id, name); if present it
// updates in place (keeping the id), otherwise it inserts — grounded on
// ApfRuVariableDao::create_or_update.
func (d *RuVarDAO) CreateOrUpdate(ctx context.Context, tx *sql.Tx, v *model.RuVar) (*model.RuVar, error) {
	const op = "dao.RuVar.CreateOrUpdate"
	rev, existing, err := d.getByProcInstWithRev(ctx, tx, v.ProcInstID, v.Name)
	if err != nil {
		if code, ok := apperr.CodeOf(err); ok && code == apperr.NotFound {
			return d.Create(ctx, tx, v)
		}
		return nil, apperr.Wrap(apperr.InternalError, op, "lookup apf_ru_variable failed", err)
	}

	existing.Value = v.Value
	existing.VarType = v.VarType
	existing.ExecutionID = v.ExecutionID
	existing.TaskID = v.TaskID
	if err := d.Update(ctx, tx, existing, rev); err != nil {
		return nil, err
	}
	return d.GetByID(ctx, tx, existing.ID)
}

func (d *RuVarDAO) GetByID(ctx context.Context, tx *sql.Tx, id string) (*model.RuVar, error) {
	const op = "dao.RuVar.GetByID"
	row := d.gw.queryRow(ctx, tx, `select id, var_type, name, value, proc_inst_id, execution_id, task_id
		from apf_ru_variable where id = ?`, id)
	var v model.RuVar
	if err := row.Scan(&v.ID, &v.VarType, &v.Name, &v.Value, &v.ProcInstID, &v.ExecutionID, &v.TaskID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFoundf(op, "apf_ru_variable(%s) not found", id)
		}
		return nil, apperr.Wrap(apperr.InternalError, op, "select apf_ru_variable failed", err)
	}
	return &v, nil
}

// GetByProcInst returns the single variable named name scoped to procInstID.
func (d *RuVarDAO) GetByProcInst(ctx context.Context, tx *sql.Tx, procInstID, name string) (*model.RuVar, error) {
	_, v, err := d.getByProcInstWithRev(ctx, tx, procInstID, name)
	return v, err
}

func (d *RuVarDAO) getByProcInstWithRev(ctx context.Context, tx *sql.Tx, procInstID, name string) (int, *model.RuVar, error) {
	const op = "dao.RuVar.GetByProcInst"
	row := d.gw.queryRow(ctx, tx, `select id, rev, var_type, name, value, proc_inst_id, execution_id, task_id
		from apf_ru_variable where proc_inst_id = ? and name = ?`, procInstID, name)
	var v model.RuVar
	var rev int
	if err := row.Scan(&v.ID, &rev, &v.VarType, &v.Name, &v.Value, &v.ProcInstID, &v.ExecutionID, &v.TaskID); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil, apperr.NotFoundf(op, "apf_ru_variable(proc_inst_id:%s, name:%s) not found", procInstID, name)
		}
		return 0, nil, apperr.Wrap(apperr.InternalError, op, "select apf_ru_variable failed", err)
	}
	return rev, &v, nil
}

func (d *RuVarDAO) FindAllByProcInst(ctx context.Context, tx *sql.Tx, procInstID string) ([]*model.RuVar, error) {
	const op = "dao.RuVar.FindAllByProcInst"
	rows, err := d.gw.query(ctx, tx, `select id, var_type, name, value, proc_inst_id, execution_id, task_id
		from apf_ru_variable where proc_inst_id = ?`, procInstID)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, op, "select apf_ru_variable failed", err)
	}
	defer rows.Close()

	var out []*model.RuVar
	for rows.Next() {
		var v model.RuVar
		if err := rows.Scan(&v.ID, &v.VarType, &v.Name, &v.Value, &v.ProcInstID, &v.ExecutionID, &v.TaskID); err != nil {
			return nil, apperr.Wrap(apperr.InternalError, op, "scan apf_ru_variable failed", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

func (d *RuVarDAO) DeleteByProcInstID(ctx context.Context, tx *sql.Tx, procInstID string) (int64, error) {
	const op = "dao.RuVar.DeleteByProcInstID"
	res, err := d.gw.exec(ctx, tx, `delete from apf_ru_variable where proc_inst_id = ?`, procInstID)
	if err != nil {
		return 0, apperr.Wrap(apperr.InternalError, op, "delete apf_ru_variable failed", err)
	}
	return res.RowsAffected()
}
