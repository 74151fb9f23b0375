package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/tidwall/sjson"

	"github.com/user/procengine/apperr"
	"github.com/user/procengine/internal/storage/dao"
	"github.com/user/procengine/internal/storage/model"
	"github.com/user/procengine/pkg/engine"
	"github.com/user/procengine/pkg/value"
)

// CompleteTask fetches the pending task, applies variables, re-snapshots the
// full variable set, and drains the operator queue from a CompleteTask
// seed — grounded on TaskService::complete/_complete.
func (e *Engine) CompleteTask(ctx context.Context, taskID, userID, groupID string, variables map[string]value.Value) error {
	start := time.Now()
	err := e.withTx(ctx, "CompleteTask", func(tx *sql.Tx) error {
		return e.completeTaskTx(ctx, tx, taskID, userID, groupID, variables)
	})
	engine.CompleteTaskLatency.Observe(time.Since(start).Seconds())
	engineObserveCompleteTask(err)
	return err
}

func (e *Engine) completeTaskTx(ctx context.Context, tx *sql.Tx, taskID, userID, groupID string, variables map[string]value.Value) error {
	const op = "service.Engine.completeTaskTx"

	task, err := e.deps.RuTask.GetByID(ctx, tx, taskID)
	if err != nil {
		return err
	}
	procDef, err := e.reProcDef.GetByID(ctx, tx, task.ProcDefID)
	if err != nil {
		return err
	}
	proc, err := e.loadBpmnByDeployment(ctx, tx, procDef.DeploymentID)
	if err != nil {
		return err
	}
	element, ok := proc.ResolveElement(task.ElementID)
	if !ok || !element.IsNode() {
		return apperr.NotFoundf(op, "task %q's element %q does not resolve to a node", taskID, task.ElementID)
	}

	for name, v := range variables {
		ruVar, err := e.deps.RuVar.CreateOrUpdate(ctx, tx, &model.RuVar{
			ProcInstID: task.ProcInstID, ExecutionID: task.ExecutionID, TaskID: task.ID,
			Name: name, Value: v.AsText(), VarType: string(v.Kind),
		})
		if err != nil {
			return err
		}
		if err := e.deps.HiVar.CreateOrUpdateFromVar(ctx, tx, ruVar, e.now()); err != nil {
			return err
		}
	}

	snapshot, err := e.deps.RuVar.FindAllByProcInst(ctx, tx, task.ProcInstID)
	if err != nil {
		return err
	}
	vars := make(map[string]value.Value, len(snapshot))
	for _, v := range snapshot {
		val, err := value.FromText(value.Type(v.VarType), v.Value)
		if err != nil {
			return err
		}
		vars[v.Name] = val
	}

	procInst, err := e.deps.RuExec.GetByID(ctx, tx, task.ProcInstID)
	if err != nil {
		return err
	}
	currentExec, err := e.deps.RuExec.GetByID(ctx, tx, task.ExecutionID)
	if err != nil {
		return err
	}

	octx := engine.NewOperatorContext(proc, userID, groupID, vars)
	if _, err := engine.Run(ctx, octx, tx, e.deps, &engine.CompleteTask{
		ProcInst: procInst, CurrentExec: currentExec, Task: task, Node: element.Node,
	}); err != nil {
		return err
	}
	return nil
}

// QueryTasks runs f against apf_ru_task, returning matches as a JSON array
// snapshot alongside the typed rows. The JSON snapshot is built with sjson
// (one Set per row/field rather than a struct marshal) so callers that only
// need a couple of fields — e.g. a dotted-path UI list — can gjson.Get
// straight into it without decoding the full Go struct, grounded on the
// reference engine's own gjson/sjson path-helper usage (SPEC_FULL.md §2.2).
func (e *Engine) QueryTasks(ctx context.Context, f dao.Filter) ([]*model.RuTask, string, error) {
	var tasks []*model.RuTask
	err := e.withTx(ctx, "QueryTasks", func(tx *sql.Tx) error {
		var err error
		tasks, err = e.deps.RuTask.Find(ctx, tx, f)
		return err
	})
	if err != nil {
		return nil, "", err
	}

	snapshot := "[]"
	for _, t := range tasks {
		row, err := encodeTaskRow(t)
		if err != nil {
			return nil, "", apperr.Wrap(apperr.InternalError, "service.Engine.QueryTasks", "encode task snapshot failed", err)
		}
		snapshot, err = sjson.SetRaw(snapshot, "-1", row)
		if err != nil {
			return nil, "", apperr.Wrap(apperr.InternalError, "service.Engine.QueryTasks", "append task snapshot failed", err)
		}
	}
	return tasks, snapshot, nil
}

// encodeTaskRow builds one task's JSON object via sjson.Set, field by field,
// rather than json.Marshal — matching the path-helper style SPEC_FULL.md
// §2.2 grounds this on.
func encodeTaskRow(t *model.RuTask) (string, error) {
	row := "{}"
	var err error
	for _, set := range []struct {
		path string
		val  string
	}{
		{"id", t.ID},
		{"proc_inst_id", t.ProcInstID},
		{"element_id", t.ElementID},
		{"name", t.Name},
		{"business_key", t.BusinessKey},
	} {
		row, err = sjson.Set(row, set.path, set.val)
		if err != nil {
			return "", err
		}
	}
	return row, nil
}

func engineObserveCompleteTask(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	engine.CompleteTaskCount.WithLabelValues(result).Inc()
}
