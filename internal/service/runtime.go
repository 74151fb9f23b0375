package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/user/procengine/apperr"
	"github.com/user/procengine/internal/storage/model"
	"github.com/user/procengine/pkg/engine"
	"github.com/user/procengine/pkg/value"
)

// StartProcessInstanceByKey resolves the latest, non-suspended process
// definition scoped to (key, companyID), loads its BPMN graph, and runs the
// operator queue from a CreateAndStartProcessInstance seed — grounded on
// RuntimeService::start_process_instance_by_key.
func (e *Engine) StartProcessInstanceByKey(ctx context.Context, key, companyID, businessKey, userID, groupID string, variables map[string]value.Value) (*model.RuExec, error) {
	var inst *model.RuExec
	err := e.withTx(ctx, "StartProcessInstanceByKey", func(tx *sql.Tx) error {
		var err error
		inst, err = e.startProcessInstanceByKeyTx(ctx, tx, key, companyID, businessKey, userID, groupID, variables)
		return err
	})
	engineObserveStart(key, err)
	return inst, err
}

func (e *Engine) startProcessInstanceByKeyTx(ctx context.Context, tx *sql.Tx, key, companyID, businessKey, userID, groupID string, variables map[string]value.Value) (*model.RuExec, error) {
	procDef, err := e.reProcDef.GetLatestByKey(ctx, tx, key, companyID)
	if err != nil {
		return nil, err
	}
	proc, err := e.loadBpmnByDeployment(ctx, tx, procDef.DeploymentID)
	if err != nil {
		return nil, err
	}

	octx := engine.NewOperatorContext(proc, userID, groupID, variables)
	result, err := engine.Run(ctx, octx, tx, e.deps, &engine.CreateAndStartProcessInstance{
		ProcDef: procDef, BusinessKey: businessKey,
	})
	if err != nil {
		return nil, err
	}
	if result.ProcessInstance == nil {
		return nil, apperr.Unexpectedf("service.Engine.startProcessInstanceByKeyTx", "process %q did not yield a root execution", key)
	}

	if err := persistInitialVariables(ctx, tx, e.deps, result.ProcessInstance.ID, variables); err != nil {
		return nil, err
	}
	engine.ActiveProcessInstances.Inc()
	return result.ProcessInstance, nil
}

// persistInitialVariables snapshots the variables a StartProcessInstance
// call was seeded with into RuVar/HiVar, mirroring the variable upsert loop
// TaskService::complete also runs on every passed-in variable.
func persistInitialVariables(ctx context.Context, tx *sql.Tx, deps *engine.Deps, procInstID string, variables map[string]value.Value) error {
	for name, v := range variables {
		ruVar, err := deps.RuVar.CreateOrUpdate(ctx, tx, &model.RuVar{
			ProcInstID: procInstID, Name: name, Value: v.AsText(), VarType: string(v.Kind),
		})
		if err != nil {
			return err
		}
		if err := deps.HiVar.CreateOrUpdateFromVar(ctx, tx, ruVar, depsNow(deps)); err != nil {
			return err
		}
	}
	return nil
}

// depsNow mirrors Deps' own unexported now() fallback, which service (a
// different package) cannot call directly.
func depsNow(deps *engine.Deps) time.Time {
	if deps.Now != nil {
		return deps.Now()
	}
	return time.Now()
}

func engineObserveStart(key string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	engine.StartProcessCount.WithLabelValues(key, result).Inc()
}
