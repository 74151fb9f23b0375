package engine

import (
	"context"
	"database/sql"

	"github.com/user/procengine/internal/storage/model"
	"github.com/user/procengine/pkg/bpmn"
)

// Operator is one unit of work in the queue, grounded on the tagged
// Operator enum of src/service/engine/behavior/*.rs. Each concrete type
// below corresponds to one tag and carries exactly the state its Execute
// needs.
type Operator interface {
	Execute(ctx context.Context, octx *OperatorContext, tx *sql.Tx, deps *Deps) (*OperateResult, error)
}

// OperateResult is what an Operator.Execute call hands back to the drain
// loop. ProcessInstance is non-nil only for the operator that created it
// (CreateAndStartProcessInstance); every other operator returns an empty
// result and the loop keeps the last remembered one, per spec §4.5.
type OperateResult struct {
	ProcessInstance *model.RuExec
}

// CreateAndStartProcessInstance is the seed operator for StartProcess: it
// creates the root RuExec/HiProcInst pair and enters the graph at its
// startEvent. Grounded on CreateAndStartProcessInstanceCmd.
type CreateAndStartProcessInstance struct {
	ProcDef     *model.ProcDef
	BusinessKey string
}

// ContinueProcess dispatches on its Element's node variant. TerminateElement
// is non-nil only when this ContinueProcess is the synthetic jump to
// end_event_terminate pushed by CompleteTask on early termination; its value
// is the node that was active at the moment of termination. Its presence
// makes the end event skip its HiActInst entry/mark-end; end_element_id on
// the history row is still the synthetic node's own id.
// Grounded on ContinueProcessOperator.
type ContinueProcess struct {
	ProcInst         *model.RuExec
	CurrentExec      *model.RuExec
	Element          bpmn.Element
	TerminateElement *bpmn.Element
}

// TakeOutgoingFlows resolves Element (which must be an edge) to its target
// node, advances CurrentExec onto it, and pushes ContinueProcess. Grounded
// on TakeOutgoingFlowsOperator.
type TakeOutgoingFlows struct {
	ProcInst    *model.RuExec
	CurrentExec *model.RuExec
	Element     bpmn.Element
}

// CreateTask materializes a pending RuTask/HiTask pair for a userTask or
// serviceTask node. Grounded on CreateTaskCmd.
type CreateTask struct {
	ProcInst    *model.RuExec
	CurrentExec *model.RuExec
	Node        *bpmn.Node
}

// CompleteTask authorizes and finalizes a pending task, then either
// continues the normal out-flow or jumps to termination. Grounded on
// CompleteTaskCmd.
type CompleteTask struct {
	ProcInst    *model.RuExec
	CurrentExec *model.RuExec
	Task        *model.RuTask
	Node        *bpmn.Node
}
