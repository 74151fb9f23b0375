package dao

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/user/procengine/apperr"
	"github.com/user/procengine/internal/storage/model"
)

// RuTaskDAO is the persistence gateway for RuTask rows, grounded on
// ApfRuTaskDao (src/dao/apf_ru_task_dao.rs).
type RuTaskDAO struct{ gw *Gateway }

func NewRuTaskDAO(gw *Gateway) *RuTaskDAO { return &RuTaskDAO{gw: gw} }

func (d *RuTaskDAO) Create(ctx context.Context, tx *sql.Tx, t *model.RuTask) (*model.RuTask, error) {
	const op = "dao.RuTask.Create"
	t.ID = uuid.NewString()
	_, err := d.gw.exec(ctx, tx, `insert into apf_ru_task
		(id, rev, execution_id, proc_inst_id, proc_def_id, element_id, element_name,
		 element_type, business_key, description, start_user_id, create_time, suspension_state, form_key)
		values (?, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ExecutionID, t.ProcInstID, t.ProcDefID, t.ElementID, t.Name,
		t.ElementType, t.BusinessKey, t.Description, t.StartUserID, t.CreateTime, int(t.SuspensionState), t.FormKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, op, "insert apf_ru_task failed", err)
	}
	return t, nil
}

func (d *RuTaskDAO) GetByID(ctx context.Context, tx *sql.Tx, id string) (*model.RuTask, error) {
	const op = "dao.RuTask.GetByID"
	row := d.gw.queryRow(ctx, tx, `select id, execution_id, proc_inst_id, proc_def_id, element_id,
		element_name, element_type, business_key, description, start_user_id, create_time, suspension_state, form_key
		from apf_ru_task where id = ?`, id)

	var t model.RuTask
	var susp int
	if err := row.Scan(&t.ID, &t.ExecutionID, &t.ProcInstID, &t.ProcDefID, &t.ElementID,
		&t.Name, &t.ElementType, &t.BusinessKey, &t.Description, &t.StartUserID, &t.CreateTime, &susp, &t.FormKey); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFoundf(op, "apf_ru_task(%s) not found", id)
		}
		return nil, apperr.Wrap(apperr.InternalError, op, "select apf_ru_task failed", err)
	}
	t.SuspensionState = model.SuspensionState(susp)
	return &t, nil
}

func (d *RuTaskDAO) Delete(ctx context.Context, tx *sql.Tx, id string) (int64, error) {
	const op = "dao.RuTask.Delete"
	res, err := d.gw.exec(ctx, tx, `delete from apf_ru_task where id = ?`, id)
	if err != nil {
		return 0, apperr.Wrap(apperr.InternalError, op, "delete apf_ru_task failed", err)
	}
	return res.RowsAffected()
}

// Filter narrows a task query; zero value matches everything. Grounded on
// TaskQuery (src/manager/engine/query/task_query.rs)'s builder fields.
type Filter struct {
	ID                   string
	ExecutionID          string
	ProcInstID           string
	BusinessKey          string
	ProcessDefinitionKey string
	CandidateUser        string
	CandidateGroup       string
}

// Find runs Filter against apf_ru_task, joining apf_ru_identitylink when a
// candidate filter is set and apf_re_procdef when process_definition_key is
// set — the same conditional-join shape as TaskQuery::build_sql, rebuilt
// with Go string building and driver-aware placeholders instead of the
// StringBuilder + rstring_builder the original uses.
func (d *RuTaskDAO) Find(ctx context.Context, tx *sql.Tx, f Filter) ([]*model.RuTask, error) {
	const op = "dao.RuTask.Find"

	query := `select distinct t1.id, t1.execution_id, t1.proc_inst_id, t1.proc_def_id, t1.element_id,
		t1.element_name, t1.element_type, t1.business_key, t1.description, t1.start_user_id,
		t1.create_time, t1.suspension_state, t1.form_key
		from apf_ru_task t1`

	var joins []string
	var conds []string
	var args []any

	if f.ProcessDefinitionKey != "" {
		joins = append(joins, "join apf_re_procdef t2 on t2.id = t1.proc_def_id")
		conds = append(conds, "t2.process_key = ?")
		args = append(args, f.ProcessDefinitionKey)
	}
	if f.CandidateUser != "" || f.CandidateGroup != "" {
		joins = append(joins, "join apf_ru_identitylink t3 on t3.task_id = t1.id")
	}
	if f.ID != "" {
		conds = append(conds, "t1.id = ?")
		args = append(args, f.ID)
	}
	if f.ExecutionID != "" {
		conds = append(conds, "t1.execution_id = ?")
		args = append(args, f.ExecutionID)
	}
	if f.ProcInstID != "" {
		conds = append(conds, "t1.proc_inst_id = ?")
		args = append(args, f.ProcInstID)
	}
	if f.BusinessKey != "" {
		conds = append(conds, "t1.business_key = ?")
		args = append(args, f.BusinessKey)
	}
	if f.CandidateUser != "" {
		conds = append(conds, "t3.user_id = ?")
		args = append(args, f.CandidateUser)
	}
	if f.CandidateGroup != "" {
		conds = append(conds, "t3.group_id = ?")
		args = append(args, f.CandidateGroup)
	}

	for _, j := range joins {
		query += " " + j
	}
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}

	rows, err := d.gw.query(ctx, tx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, op, "select apf_ru_task failed", err)
	}
	defer rows.Close()

	var out []*model.RuTask
	for rows.Next() {
		var t model.RuTask
		var susp int
		if err := rows.Scan(&t.ID, &t.ExecutionID, &t.ProcInstID, &t.ProcDefID, &t.ElementID,
			&t.Name, &t.ElementType, &t.BusinessKey, &t.Description, &t.StartUserID, &t.CreateTime, &susp, &t.FormKey); err != nil {
			return nil, apperr.Wrap(apperr.InternalError, op, "scan apf_ru_task failed", err)
		}
		t.SuspensionState = model.SuspensionState(susp)
		out = append(out, &t)
	}
	return out, rows.Err()
}
