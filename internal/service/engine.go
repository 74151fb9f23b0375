// Package service is the public façade over the process execution core:
// deploy process definitions, start instances, complete tasks, and query
// pending work — each call opens (or accepts) a transaction, drains the
// operator queue, and commits. Grounded on
// src/service/engine/{repository_service,runtime_service,process_engine}.rs
// and src/manager/engine/task_service.rs.
package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/user/procengine/apperr"
	"github.com/user/procengine/internal/observability"
	"github.com/user/procengine/internal/storage/dao"
	storagesql "github.com/user/procengine/internal/storage/sql"
	"github.com/user/procengine/pkg/bpmn"
	"github.com/user/procengine/pkg/engine"
	"github.com/user/procengine/pkg/expr"
)

// Engine is the process engine façade, grounded on ProcessEngine's role as
// the single access point bundling repository/runtime/task services. Unlike
// the Rust original's per-call `db::get_connect()`, Engine holds one shared
// *sql.DB (a pool) injected at construction.
type Engine struct {
	db     *sql.DB
	driver storagesql.Driver
	deps   *engine.Deps
	gw     *dao.Gateway

	reDeployment *dao.ReDeploymentDAO
	geByteArray  *dao.GeByteArrayDAO
	reProcDef    *dao.ReProcDefDAO

	log *engine.DefaultLogger
}

// Option customizes a new Engine.
type Option func(*Engine)

// WithLogger overrides the default stderr logger.
func WithLogger(log *engine.DefaultLogger) Option {
	return func(e *Engine) { e.log = log }
}

// WithEvaluator overrides the default gopher-lua expression evaluator.
func WithEvaluator(ev expr.Evaluator) Option {
	return func(e *Engine) { e.deps.Evaluator = ev }
}

// WithClock overrides the default time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.deps.Now = now }
}

// New builds an Engine bound to db using driver's SQL dialect.
func New(db *sql.DB, driver storagesql.Driver, opts ...Option) *Engine {
	gw := dao.NewGateway(driver)
	e := &Engine{
		db:     db,
		driver: driver,
		gw:     gw,
		deps: &engine.Deps{
			RuExec:     dao.NewRuExecutionDAO(gw),
			RuTask:     dao.NewRuTaskDAO(gw),
			RuIdent:    dao.NewRuIdentDAO(gw),
			RuVar:      dao.NewRuVarDAO(gw),
			HiProcInst: dao.NewHiProcInstDAO(gw),
			HiActInst:  dao.NewHiActInstDAO(gw),
			HiTask:     dao.NewHiTaskDAO(gw),
			HiVar:      dao.NewHiVarDAO(gw),
			Evaluator:  expr.NewLuaEvaluator(),
		},
		reDeployment: dao.NewReDeploymentDAO(gw),
		geByteArray:  dao.NewGeByteArrayDAO(gw),
		reProcDef:    dao.NewReProcDefDAO(gw),
		log:          engine.NewDefaultLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// withTx runs fn inside a fresh transaction, committing on success and
// rolling back on any error — the exported/unexported-Tx split noted in
// SPEC_FULL.md §4.7, grounded on the reference service's own
// conn/tran/commit-or-rollback pattern at each public method. op names the
// façade call for the wrapping OpenTelemetry span (SPEC_FULL.md §4.8).
func (e *Engine) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	ctx, span := observability.Tracer.Start(ctx, "service.Engine."+op)
	defer span.End()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return apperr.Wrap(apperr.InternalError, "service.Engine.withTx", "begin transaction failed", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		span.RecordError(err)
		return err
	}
	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return apperr.Wrap(apperr.InternalError, "service.Engine.withTx", "commit failed", err)
	}
	return nil
}

// now returns the engine's configured clock, defaulting to time.Now.
func (e *Engine) now() time.Time {
	if e.deps.Now != nil {
		return e.deps.Now()
	}
	return time.Now()
}

// loadBpmnByDeployment fetches the raw XML stored for deploymentID and
// parses it — grounded on RepositoryService::load_bpmn_by_deployment.
func (e *Engine) loadBpmnByDeployment(ctx context.Context, tx *sql.Tx, deploymentID string) (*bpmn.Process, error) {
	ba, err := e.geByteArray.GetByDeploymentID(ctx, tx, deploymentID)
	if err != nil {
		return nil, err
	}
	defs, err := bpmn.Parse(ba.Bytes)
	if err != nil {
		return nil, err
	}
	return &defs.Process, nil
}
