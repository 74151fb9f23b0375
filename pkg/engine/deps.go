package engine

import (
	"time"

	"github.com/user/procengine/internal/storage/dao"
	"github.com/user/procengine/pkg/expr"
)

// Deps bundles every persistence gateway and the expression evaluator an
// Operator needs to execute. One Deps is built per service Engine and shared
// by all its process instances (it is driver/evaluator configuration, not
// per-call state) and threaded through
// every Operator.Execute call alongside the *sql.Tx.
type Deps struct {
	RuExec     *dao.RuExecutionDAO
	RuTask     *dao.RuTaskDAO
	RuIdent    *dao.RuIdentDAO
	RuVar      *dao.RuVarDAO
	HiProcInst *dao.HiProcInstDAO
	HiActInst  *dao.HiActInstDAO
	HiTask     *dao.HiTaskDAO
	HiVar      *dao.HiVarDAO

	Evaluator expr.Evaluator

	// Now stands in for time.Now, overridable in tests that assert exact
	// timestamps/durations.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
