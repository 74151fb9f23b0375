package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/user/procengine/apperr"
	"github.com/user/procengine/internal/storage/model"
	"github.com/user/procengine/pkg/bpmn"
)

// --- shared helpers (the Go counterpart of BaseOperator, src/service/engine/behavior/base_operator.rs) ---

// createCurrentExecution inserts a fresh child RuExec token rooted at
// procInst, positioned at elementID.
func createCurrentExecution(ctx context.Context, tx *sql.Tx, deps *Deps, procInst *model.RuExec, elementID, startUser string) (*model.RuExec, error) {
	e := &model.RuExec{
		ProcInstID:     procInst.ID,
		RootProcInstID: procInst.RootProcInstID,
		ParentID:       procInst.ID,
		BusinessKey:    procInst.BusinessKey,
		ProcDefID:      procInst.ProcDefID,
		ElementID:      elementID,
		IsActive:       true,
		StartTime:      deps.now(),
		StartUser:      startUser,
	}
	return deps.RuExec.Create(ctx, tx, e)
}

// createHiActInst records one history row for exec entering node, optionally
// tagged with taskID.
func createHiActInst(ctx context.Context, tx *sql.Tx, deps *Deps, procInst, exec *model.RuExec, node *bpmn.Node, taskID string) (*model.HiActInst, error) {
	h := &model.HiActInst{
		ProcInstID:  procInst.ID,
		ExecutionID: exec.ID,
		TaskID:      taskID,
		ElementID:   node.ID,
		Name:        node.Name,
		ElementType: string(node.Type),
		StartTime:   exec.StartTime,
		StartUserID: exec.StartUser,
	}
	return deps.HiActInst.Create(ctx, tx, h)
}

// markEndExecution closes out the open HiActInst row matching
// (exec.ID, exec.ElementID).
func markEndExecution(ctx context.Context, tx *sql.Tx, deps *Deps, exec *model.RuExec, endUserID string) error {
	return deps.HiActInst.MarkEnd(ctx, tx, exec.ID, exec.ElementID, endUserID, deps.now())
}

// continueOutflow pushes a TakeOutgoingFlows operator for the sole out-flow
// of nodeID — the shared leave-step for StartEvent, UserTask, ServiceTask
// and the non-terminating branch of CompleteTask.
func continueOutflow(octx *OperatorContext, procInst, exec *model.RuExec, nodeID string) error {
	const op = "engine.continueOutflow"
	out := octx.Process.OutFlows(nodeID)
	if len(out) != 1 {
		return apperr.Unexpectedf(op, "node %q must have exactly one out-flow, has %d", nodeID, len(out))
	}
	octx.Push(&TakeOutgoingFlows{ProcInst: procInst, CurrentExec: exec, Element: bpmn.Element{Edge: out[0]}})
	return nil
}

// checkCompleteTaskPrivilege implements the authorization rule of spec
// §4.7: a node naming no candidates is open to anyone; a node naming only
// users (or only groups) requires a match on that list; a node naming both
// is satisfied by matching either. Unlike the Rust
// check_complete_task_priviledge, which reuses candidate_user(...) for the
// candidate-group branch too, this checks candidate_group against
// GroupID — see DESIGN.md's "Element Behaviors" note.
func checkCompleteTaskPrivilege(octx *OperatorContext, node *bpmn.Node) error {
	hasUsers := len(node.CandidateUsers) > 0
	hasGroups := len(node.CandidateGroups) > 0
	if !hasUsers && !hasGroups {
		return nil
	}

	userOK := hasUsers && containsFold(node.CandidateUsers, octx.UserID)
	groupOK := hasGroups && containsFold(node.CandidateGroups, octx.GroupID)
	if userOK || groupOK {
		return nil
	}
	return apperr.NotAuthorizedf("engine.checkCompleteTaskPrivilege",
		"caller (user=%q, group=%q) is not an authorized candidate for element %q", octx.UserID, octx.GroupID, node.ID)
}

func containsFold(list []string, candidate string) bool {
	if candidate == "" {
		return false
	}
	candidate = strings.ToLower(candidate)
	for _, v := range list {
		if v == candidate {
			return true
		}
	}
	return false
}

// --- CreateAndStartProcessInstance ---

func (o *CreateAndStartProcessInstance) Execute(ctx context.Context, octx *OperatorContext, tx *sql.Tx, deps *Deps) (*OperateResult, error) {
	const op = "engine.CreateAndStartProcessInstance.Execute"

	root := &model.RuExec{
		ProcDefID:   o.ProcDef.ID,
		BusinessKey: o.BusinessKey,
		StartTime:   deps.now(),
		StartUser:   octx.UserID,
		IsActive:    true,
	}
	created, err := deps.RuExec.CreateProcInst(ctx, tx, root)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, op, "create root execution failed", err)
	}

	hi := &model.HiProcInst{
		ID:          created.ID,
		ProcDefID:   created.ProcDefID,
		BusinessKey: created.BusinessKey,
		StartTime:   created.StartTime,
		StartUser:   created.StartUser,
	}
	if _, err := deps.HiProcInst.Create(ctx, tx, hi); err != nil {
		return nil, err
	}

	startNode, err := octx.Process.StartEvent()
	if err != nil {
		return nil, err
	}
	octx.Push(&ContinueProcess{ProcInst: created, CurrentExec: nil, Element: bpmn.Element{Node: startNode}})

	return &OperateResult{ProcessInstance: created}, nil
}

// --- ContinueProcess ---

func (o *ContinueProcess) Execute(ctx context.Context, octx *OperatorContext, tx *sql.Tx, deps *Deps) (*OperateResult, error) {
	const op = "engine.ContinueProcess.Execute"
	if !o.Element.IsNode() {
		return nil, apperr.NotSupportf(op, "ContinueProcess requires a node element, got an edge")
	}
	node := o.Element.Node

	switch node.Type {
	case bpmn.NodeStartEvent:
		return startEventExecute(ctx, octx, tx, deps, o.ProcInst, node)
	case bpmn.NodeEndEvent:
		return endEventExecute(ctx, octx, tx, deps, o.ProcInst, o.CurrentExec, node, o.TerminateElement)
	case bpmn.NodeUserTask, bpmn.NodeServiceTask:
		octx.Push(&CreateTask{ProcInst: o.ProcInst, CurrentExec: o.CurrentExec, Node: node})
		return &OperateResult{}, nil
	case bpmn.NodeExclusiveGateway:
		return exclusiveGatewayExecute(ctx, octx, tx, deps, o.ProcInst, o.CurrentExec, node)
	case bpmn.NodeParallelGateway:
		return parallelGatewayExecute(ctx, octx, tx, deps, o.ProcInst, o.CurrentExec, node)
	default:
		return nil, apperr.Unexpectedf(op, "element %q has unhandled node type %q", node.ID, node.Type)
	}
}

// startEventExecute: create a child RuExec pointing at this node, record
// history, mark_end immediately (start events are instantaneous), then
// leave via the sole out-flow. Grounded on StartEventBehavior.
func startEventExecute(ctx context.Context, octx *OperatorContext, tx *sql.Tx, deps *Deps, procInst *model.RuExec, node *bpmn.Node) (*OperateResult, error) {
	exec, err := createCurrentExecution(ctx, tx, deps, procInst, node.ID, octx.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := createHiActInst(ctx, tx, deps, procInst, exec, node, ""); err != nil {
		return nil, err
	}
	if err := markEndExecution(ctx, tx, deps, exec, octx.UserID); err != nil {
		return nil, err
	}
	if err := continueOutflow(octx, procInst, exec, node.ID); err != nil {
		return nil, err
	}
	return &OperateResult{}, nil
}

// endEventExecute tears down the process instance. When terminateElement is
// non-nil this is the synthetic jump from CompleteTask's termination check:
// the history/entry step is skipped, but end_element_id still comes from
// node (the synthetic terminate event's own id), not the terminating node —
// spec §8 property 6 requires history to record the synthetic terminate id
// on an early-termination jump. Grounded on EndEventBehavior.
func endEventExecute(ctx context.Context, octx *OperatorContext, tx *sql.Tx, deps *Deps, procInst, exec *model.RuExec, node *bpmn.Node, terminateElement *bpmn.Element) (*OperateResult, error) {
	endElementID := node.ID
	if terminateElement == nil {
		if _, err := createHiActInst(ctx, tx, deps, procInst, exec, node, ""); err != nil {
			return nil, err
		}
		if err := markEndExecution(ctx, tx, deps, exec, octx.UserID); err != nil {
			return nil, err
		}
	}

	if _, err := deps.RuVar.DeleteByProcInstID(ctx, tx, procInst.ID); err != nil {
		return nil, err
	}
	if _, err := deps.RuExec.Delete(ctx, tx, exec.ID); err != nil {
		return nil, err
	}
	if err := deps.HiProcInst.MarkEnd(ctx, tx, procInst.ID, endElementID, deps.now()); err != nil {
		return nil, err
	}
	if _, err := deps.RuExec.Delete(ctx, tx, procInst.ID); err != nil {
		return nil, err
	}
	return &OperateResult{}, nil
}

// exclusiveGatewayExecute evaluates each out-flow's condition in
// declaration order, picking the first truthy match; an unconditional flow
// is remembered as the default and taken if nothing matches. Grounded on
// ExclusiveGatewayBehavior.
func exclusiveGatewayExecute(ctx context.Context, octx *OperatorContext, tx *sql.Tx, deps *Deps, procInst, exec *model.RuExec, node *bpmn.Node) (*OperateResult, error) {
	const op = "engine.exclusiveGatewayExecute"

	if _, err := createHiActInst(ctx, tx, deps, procInst, exec, node, ""); err != nil {
		return nil, err
	}
	if err := markEndExecution(ctx, tx, deps, exec, octx.UserID); err != nil {
		return nil, err
	}

	var chosen, lastUnconditional *bpmn.Edge
	for _, e := range octx.Process.OutFlows(node.ID) {
		if e.Condition == "" {
			lastUnconditional = e
			continue
		}
		if deps.Evaluator.EvalBool(e.Condition, octx.Variables) {
			chosen = e
			break
		}
	}
	if chosen == nil {
		chosen = lastUnconditional
	}
	if chosen == nil {
		return nil, apperr.NotFoundf(op, "exclusiveGateway %q has no matching conditional and no default flow", node.ID)
	}

	if err := deps.RuExec.MarkBegin(ctx, tx, exec.ID, chosen.ID, octx.UserID, deps.now()); err != nil {
		return nil, err
	}
	exec.ElementID = chosen.ID
	octx.Push(&TakeOutgoingFlows{ProcInst: procInst, CurrentExec: exec, Element: bpmn.Element{Edge: chosen}})
	return &OperateResult{}, nil
}

// parallelGatewayExecute forks and joins by counting inactive siblings
// parked at this node. Grounded on ParallelGatewayBehavior.
func parallelGatewayExecute(ctx context.Context, octx *OperatorContext, tx *sql.Tx, deps *Deps, procInst, exec *model.RuExec, node *bpmn.Node) (*OperateResult, error) {
	inCount := int64(len(octx.Process.InFlows(node.ID)))

	inactive, err := deps.RuExec.CountInactiveByElement(ctx, tx, procInst.ID, node.ID)
	if err != nil {
		return nil, err
	}
	if inactive+1 < inCount {
		if err := deps.RuExec.Deactivate(ctx, tx, exec.ID); err != nil {
			return nil, err
		}
		return &OperateResult{}, nil
	}

	if _, err := deps.RuExec.DeleteInactiveByElement(ctx, tx, procInst.ID, node.ID); err != nil {
		return nil, err
	}
	if _, err := createHiActInst(ctx, tx, deps, procInst, exec, node, ""); err != nil {
		return nil, err
	}
	if err := markEndExecution(ctx, tx, deps, exec, octx.UserID); err != nil {
		return nil, err
	}

	outFlows := octx.Process.OutFlows(node.ID)
	if len(outFlows) == 0 {
		return nil, apperr.Unexpectedf("engine.parallelGatewayExecute", "parallelGateway %q has no out-flows", node.ID)
	}

	first := outFlows[0]
	if err := deps.RuExec.MarkBegin(ctx, tx, exec.ID, first.ID, octx.UserID, deps.now()); err != nil {
		return nil, err
	}
	exec.ElementID = first.ID
	octx.Push(&TakeOutgoingFlows{ProcInst: procInst, CurrentExec: exec, Element: bpmn.Element{Edge: first}})

	for _, e := range outFlows[1:] {
		child, err := createCurrentExecution(ctx, tx, deps, procInst, e.ID, octx.UserID)
		if err != nil {
			return nil, err
		}
		octx.Push(&TakeOutgoingFlows{ProcInst: procInst, CurrentExec: child, Element: bpmn.Element{Edge: e}})
	}
	return &OperateResult{}, nil
}

// --- TakeOutgoingFlows ---

func (o *TakeOutgoingFlows) Execute(ctx context.Context, octx *OperatorContext, tx *sql.Tx, deps *Deps) (*OperateResult, error) {
	const op = "engine.TakeOutgoingFlows.Execute"
	if !o.Element.IsEdge() {
		return nil, apperr.NotSupportf(op, "TakeOutgoingFlows requires an edge element, got a node")
	}
	edge := o.Element.Edge

	target, ok := octx.Process.ResolveElement(edge.Target)
	if !ok {
		return nil, apperr.NotFoundf(op, "sequenceFlow %q targetRef %q does not resolve", edge.ID, edge.Target)
	}

	if err := deps.RuExec.MarkBegin(ctx, tx, o.CurrentExec.ID, target.ID(), octx.UserID, deps.now()); err != nil {
		return nil, err
	}
	o.CurrentExec.ElementID = target.ID()

	octx.Push(&ContinueProcess{ProcInst: o.ProcInst, CurrentExec: o.CurrentExec, Element: target})
	return &OperateResult{}, nil
}

// --- CreateTask ---

func (o *CreateTask) Execute(ctx context.Context, octx *OperatorContext, tx *sql.Tx, deps *Deps) (*OperateResult, error) {
	node := o.Node
	now := deps.now()

	task := &model.RuTask{
		ExecutionID:     o.CurrentExec.ID,
		ProcInstID:      o.ProcInst.ID,
		ProcDefID:       o.ProcInst.ProcDefID,
		ElementID:       node.ID,
		Name:            node.Name,
		ElementType:     string(node.Type),
		BusinessKey:     o.ProcInst.BusinessKey,
		Description:     node.Description,
		FormKey:         node.FormKey,
		StartUserID:     octx.UserID,
		CreateTime:      now,
		SuspensionState: model.SuspensionActive,
	}
	created, err := deps.RuTask.Create(ctx, tx, task)
	if err != nil {
		return nil, err
	}
	if _, err := deps.HiTask.CreateFromTask(ctx, tx, created); err != nil {
		return nil, err
	}
	if _, err := createHiActInst(ctx, tx, deps, o.ProcInst, o.CurrentExec, node, created.ID); err != nil {
		return nil, err
	}

	for _, g := range node.CandidateGroups {
		if _, err := deps.RuIdent.Create(ctx, tx, &model.RuIdent{
			IdentType: model.IdentGroup, IdentID: g, TaskID: created.ID,
			ProcInstID: o.ProcInst.ID, ProcDefID: o.ProcInst.ProcDefID,
		}); err != nil {
			return nil, err
		}
	}
	for _, u := range node.CandidateUsers {
		if _, err := deps.RuIdent.Create(ctx, tx, &model.RuIdent{
			IdentType: model.IdentUser, IdentID: u, TaskID: created.ID,
			ProcInstID: o.ProcInst.ID, ProcDefID: o.ProcInst.ProcDefID,
		}); err != nil {
			return nil, err
		}
	}

	if node.Type == bpmn.NodeServiceTask {
		octx.Push(&CompleteTask{ProcInst: o.ProcInst, CurrentExec: o.CurrentExec, Task: created, Node: node})
	}
	return &OperateResult{}, nil
}

// --- CompleteTask ---

func (o *CompleteTask) Execute(ctx context.Context, octx *OperatorContext, tx *sql.Tx, deps *Deps) (*OperateResult, error) {
	if err := checkCompleteTaskPrivilege(octx, o.Node); err != nil {
		return nil, err
	}
	if err := markEndExecution(ctx, tx, deps, o.CurrentExec, octx.UserID); err != nil {
		return nil, err
	}
	if err := deps.HiTask.MarkEnd(ctx, tx, o.Task.ID, octx.UserID, deps.now()); err != nil {
		return nil, err
	}
	if _, err := deps.RuIdent.DeleteByTaskID(ctx, tx, o.Task.ID); err != nil {
		return nil, err
	}
	if _, err := deps.RuTask.Delete(ctx, tx, o.Task.ID); err != nil {
		return nil, err
	}

	if octx.IsTerminated() {
		terminate, ok := octx.Process.ResolveElement(bpmn.TerminateEventID)
		if !ok {
			return nil, apperr.Unexpectedf("engine.CompleteTask.Execute", "process %q has no synthetic terminate event", octx.Process.ID)
		}
		terminatedFrom := bpmn.Element{Node: o.Node}
		octx.Push(&ContinueProcess{
			ProcInst: o.ProcInst, CurrentExec: o.CurrentExec,
			Element: terminate, TerminateElement: &terminatedFrom,
		})
		return &OperateResult{}, nil
	}

	if err := continueOutflow(octx, o.ProcInst, o.CurrentExec, o.Node.ID); err != nil {
		return nil, err
	}
	return &OperateResult{}, nil
}
