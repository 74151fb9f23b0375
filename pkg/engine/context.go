// Package engine implements the operator queue: the FIFO work-list
// scheduler that drives a process instance through its BPMN graph one
// element at a time, inside a single caller-managed transaction (spec
// §4.5-4.6).
package engine

import (
	"github.com/user/procengine/pkg/bpmn"
	"github.com/user/procengine/pkg/value"
)

// OperatorContext is the mutable state threaded through one drain of the
// operator queue: the caller identity, the live variable snapshot, the
// loaded process graph, and the FIFO queue itself. Grounded on
// OperatorContext (src/service/engine/behavior/operator_context.rs).
type OperatorContext struct {
	UserID    string
	GroupID   string
	Variables map[string]value.Value
	Process   *bpmn.Process

	queue []Operator
}

// NewOperatorContext builds a context for one façade call. variables may be
// nil; an empty map is then allocated here.
func NewOperatorContext(proc *bpmn.Process, userID, groupID string, variables map[string]value.Value) *OperatorContext {
	if variables == nil {
		variables = make(map[string]value.Value)
	}
	return &OperatorContext{
		UserID:    userID,
		GroupID:   groupID,
		Variables: variables,
		Process:   proc,
	}
}

// Push appends op to the back of the queue — grounded on the literal
// push_back/pop_front shape of operator_executor.rs.
func (c *OperatorContext) Push(op Operator) {
	c.queue = append(c.queue, op)
}

// pop removes and returns the front of the queue.
func (c *OperatorContext) pop() (Operator, bool) {
	if len(c.queue) == 0 {
		return nil, false
	}
	op := c.queue[0]
	c.queue = c.queue[1:]
	return op, true
}

// IsTerminated reports whether the process's terminate_on_false variable
// (declared on <process terminate_on_false="..."/>) currently holds
// Bool(false). An unset or non-bool variable never terminates — grounded on
// OperatorContext::is_terminated.
func (c *OperatorContext) IsTerminated() bool {
	name := c.Process.TerminateOnFalse
	if name == "" {
		return false
	}
	v, ok := c.Variables[name]
	if !ok || v.Kind != value.TypeBool {
		return false
	}
	return !v.Bool
}
