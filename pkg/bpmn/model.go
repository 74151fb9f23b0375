// Package bpmn implements the in-memory BPMN process graph: node/edge types,
// the frozen lookup maps produced by a parse, and the structural validation
// rules every parsed process must satisfy.
package bpmn

import (
	"strings"

	"github.com/user/procengine/apperr"
)

// NodeType enumerates the node variants this core recognizes. Timer/message/
// signal events, boundary events and the rest of §1's Non-goals are
// intentionally absent.
type NodeType string

const (
	NodeStartEvent       NodeType = "StartEvent"
	NodeEndEvent         NodeType = "EndEvent"
	NodeUserTask         NodeType = "UserTask"
	NodeServiceTask      NodeType = "ServiceTask"
	NodeExclusiveGateway NodeType = "ExclusiveGateway"
	NodeParallelGateway  NodeType = "ParallelGateway"
)

// TerminateEventID is the synthetic End Event id used as the target of
// termination jumps (spec §4.2, §8 property 6).
const TerminateEventID = "_endEvent_terminate"

// Node is one non-edge element of the process graph.
type Node struct {
	ID          string
	Type        NodeType
	Name        string
	Description string
	FormKey     string
	// CandidateUsers/CandidateGroups are lowercased, comma-split candidate
	// lists; only meaningful for UserTask/ServiceTask.
	CandidateUsers  []string
	CandidateGroups []string
}

// Edge is a sequenceFlow element.
type Edge struct {
	ID        string
	Source    string
	Target    string
	Condition string // optional conditionExpression text; empty means unconditional
}

// Element is either a Node or an Edge. Exactly one of Node/Edge is non-nil.
type Element struct {
	Node *Node
	Edge *Edge
}

func (e Element) IsNode() bool { return e.Node != nil }
func (e Element) IsEdge() bool { return e.Edge != nil }

func (e Element) ID() string {
	if e.Node != nil {
		return e.Node.ID
	}
	return e.Edge.ID
}

// Process is the parsed, frozen, read-only graph for one BPMN <process>.
type Process struct {
	ID                string
	Name              string
	Description       string
	TerminateOnFalse  string // optional variable name; empty means no termination flag
	Elements          []Element
	ElementMap        map[string]Element
	EndEventTerminate Node
}

// Definitions wraps the parsed Process together with the raw XML it was
// parsed from, mirroring the one-<process>-per-<definitions> BPMN shape this
// core supports (spec §6).
type Definitions struct {
	XML     string
	Process Process
}

// ResolveElement looks up id in ElementMap, falling back to the synthetic
// EndEventTerminate node (never present in ElementMap itself, since it has
// no XML source element) so termination jumps can resolve their target.
func (p *Process) ResolveElement(id string) (Element, bool) {
	if id == TerminateEventID {
		return Element{Node: &p.EndEventTerminate}, true
	}
	el, ok := p.ElementMap[id]
	return el, ok
}

// OutFlows returns the edges whose Source is node.ID, in declaration order.
func (p *Process) OutFlows(nodeID string) []*Edge {
	var out []*Edge
	for i := range p.Elements {
		if e := p.Elements[i].Edge; e != nil && e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// InFlows returns the edges whose Target is node.ID, in declaration order.
func (p *Process) InFlows(nodeID string) []*Edge {
	var in []*Edge
	for i := range p.Elements {
		if e := p.Elements[i].Edge; e != nil && e.Target == nodeID {
			in = append(in, e)
		}
	}
	return in
}

// StartEvent returns the process's sole start event.
func (p *Process) StartEvent() (*Node, error) {
	for i := range p.Elements {
		if n := p.Elements[i].Node; n != nil && n.Type == NodeStartEvent {
			return n, nil
		}
	}
	return nil, apperr.NotFoundf("bpmn.Process.StartEvent", "process %q has no startEvent", p.ID)
}

// Validate runs the structural rules of spec §4.2 over an already-populated
// Process. It must run exactly once, right after parse.
func (p *Process) Validate() error {
	for i := range p.Elements {
		el := p.Elements[i]
		switch {
		case el.Node != nil:
			n := el.Node
			in := len(p.InFlows(n.ID))
			out := len(p.OutFlows(n.ID))
			switch n.Type {
			case NodeStartEvent:
				if in != 0 {
					return apperr.ParseErrorf("bpmn.Process.Validate", "startEvent %q must have 0 in-flows, has %d", n.ID, in)
				}
				if out != 1 {
					return apperr.ParseErrorf("bpmn.Process.Validate", "startEvent %q must have exactly 1 out-flow, has %d", n.ID, out)
				}
			case NodeEndEvent:
				if in < 1 {
					return apperr.ParseErrorf("bpmn.Process.Validate", "endEvent %q must have at least 1 in-flow", n.ID)
				}
				if out != 0 {
					return apperr.ParseErrorf("bpmn.Process.Validate", "endEvent %q must have 0 out-flows, has %d", n.ID, out)
				}
			case NodeUserTask, NodeServiceTask:
				if in < 1 {
					return apperr.ParseErrorf("bpmn.Process.Validate", "task %q must have at least 1 in-flow", n.ID)
				}
				if out != 1 {
					return apperr.ParseErrorf("bpmn.Process.Validate", "task %q must have exactly 1 out-flow, has %d", n.ID, out)
				}
			case NodeExclusiveGateway, NodeParallelGateway:
				if in < 1 {
					return apperr.ParseErrorf("bpmn.Process.Validate", "gateway %q must have at least 1 in-flow", n.ID)
				}
				if out < 1 {
					return apperr.ParseErrorf("bpmn.Process.Validate", "gateway %q must have at least 1 out-flow", n.ID)
				}
			default:
				return apperr.ParseErrorf("bpmn.Process.Validate", "element %q has unrecognized node type %q", n.ID, n.Type)
			}
		case el.Edge != nil:
			e := el.Edge
			if _, ok := p.ElementMap[e.Source]; !ok {
				return apperr.ParseErrorf("bpmn.Process.Validate", "sequenceFlow %q sourceRef %q does not resolve to a node", e.ID, e.Source)
			}
			if _, ok := p.ElementMap[e.Target]; !ok {
				return apperr.ParseErrorf("bpmn.Process.Validate", "sequenceFlow %q targetRef %q does not resolve to a node", e.ID, e.Target)
			}
		}
	}
	return nil
}

// splitCandidates lowercases and comma-splits a candidateUsers/candidateGroups
// attribute value, dropping empty entries.
func splitCandidates(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
