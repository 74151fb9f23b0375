package engine

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/user/procengine/internal/observability"
)

// Run drains the operator queue starting from seed, inside the caller's
// transaction. It is the literal push/pop_front/execute/remember-if-Some
// loop of spec §4.5, grounded on the manager/engine generation's
// OperatorExecutor (src/manager/engine/behavior/operator_executor.rs) — the
// newer service/engine generation declares the same module but its source
// was not present in the retrieved tree.
func Run(ctx context.Context, octx *OperatorContext, tx *sql.Tx, deps *Deps, seed Operator) (*OperateResult, error) {
	octx.Push(seed)
	seedLabel := fmt.Sprintf("%T", seed)

	result := &OperateResult{}
	drained := 0
	for {
		op, ok := octx.pop()
		if !ok {
			break
		}
		drained++
		opLabel := fmt.Sprintf("%T", op)
		spanCtx, span := observability.Tracer.Start(ctx, "engine.operator."+opLabel)
		span.SetAttributes(attribute.String("procengine.operator", opLabel))
		r, err := op.Execute(spanCtx, octx, tx, deps)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		if err != nil {
			QueueDrainDepth.WithLabelValues(seedLabel).Observe(float64(drained))
			return nil, err
		}
		if r != nil && r.ProcessInstance != nil {
			result = r
		}
	}
	QueueDrainDepth.WithLabelValues(seedLabel).Observe(float64(drained))
	return result, nil
}
