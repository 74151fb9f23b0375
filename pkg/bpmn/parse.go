package bpmn

import (
	"encoding/xml"
	"strings"

	"github.com/user/procengine/apperr"
)

// xmlDefinitions/xmlProcess/xmlElement mirror just enough of the BPMN 2.0
// schema to extract the attributes spec §6 consumes; unknown elements and
// attributes are ignored rather than rejected.
type xmlDefinitions struct {
	XMLName xml.Name     `xml:"definitions"`
	Process xmlProcessEl `xml:"process"`
}

type xmlProcessEl struct {
	ID               string         `xml:"id,attr"`
	Name             string         `xml:"name,attr"`
	Description      string         `xml:"description,attr"`
	TerminateOnFalse string         `xml:"terminate_on_false,attr"`
	Elements         []xmlElementEl `xml:",any"`
}

type xmlElementEl struct {
	XMLName           xml.Name
	ID                string `xml:"id,attr"`
	Name              string `xml:"name,attr"`
	Description       string `xml:"description,attr"`
	FromKey           string `xml:"fromKey,attr"`
	CandidateGroups   string `xml:"candidateGroups,attr"`
	CandidateUsers    string `xml:"candidateUsers,attr"`
	SourceRef         string `xml:"sourceRef,attr"`
	TargetRef         string `xml:"targetRef,attr"`
	ConditionExpr     *xmlConditionEl `xml:"conditionExpression"`
}

type xmlConditionEl struct {
	Text string `xml:",chardata"`
}

// Parse decodes a BPMN XML document into a Definitions, then runs structural
// validation. Grounded on BpmnManager::parse in
// src/service/engine/bpmn_manager.rs: one <definitions> root, exactly one
// <process>, dispatch child elements by tag name, reject duplicate ids.
func Parse(xmlBytes []byte) (*Definitions, error) {
	const op = "bpmn.Parse"

	var doc xmlDefinitions
	if err := xml.Unmarshal(xmlBytes, &doc); err != nil {
		return nil, apperr.Wrap(apperr.ParseError, op, "malformed BPMN document", err)
	}
	if doc.Process.ID == "" {
		return nil, apperr.ParseErrorf(op, "definitions missing a process element with an id")
	}

	proc := Process{
		ID:               doc.Process.ID,
		Name:             doc.Process.Name,
		Description:      doc.Process.Description,
		TerminateOnFalse: doc.Process.TerminateOnFalse,
		ElementMap:       make(map[string]Element),
	}

	for _, child := range doc.Process.Elements {
		if child.ID == "" {
			return nil, apperr.ParseErrorf(op, "bpmn element <%s> is missing an id attribute", child.XMLName.Local)
		}

		var el Element
		switch child.XMLName.Local {
		case "startEvent":
			el = Element{Node: &Node{ID: child.ID, Type: NodeStartEvent, Description: child.Description}}
		case "endEvent":
			el = Element{Node: &Node{ID: child.ID, Type: NodeEndEvent, Description: child.Description}}
		case "userTask":
			el = Element{Node: &Node{
				ID: child.ID, Type: NodeUserTask, Name: child.Name, Description: child.Description,
				FormKey:         child.FromKey,
				CandidateUsers:  splitCandidates(child.CandidateUsers),
				CandidateGroups: splitCandidates(child.CandidateGroups),
			}}
		case "serviceTask":
			el = Element{Node: &Node{
				ID: child.ID, Type: NodeServiceTask, Name: child.Name, Description: child.Description,
				FormKey:         child.FromKey,
				CandidateUsers:  splitCandidates(child.CandidateUsers),
				CandidateGroups: splitCandidates(child.CandidateGroups),
			}}
		case "exclusiveGateway":
			el = Element{Node: &Node{ID: child.ID, Type: NodeExclusiveGateway, Description: child.Description}}
		case "parallelGateway":
			el = Element{Node: &Node{ID: child.ID, Type: NodeParallelGateway, Description: child.Description}}
		case "sequenceFlow":
			cond := ""
			if child.ConditionExpr != nil {
				cond = strings.TrimSpace(child.ConditionExpr.Text)
			}
			el = Element{Edge: &Edge{ID: child.ID, Source: child.SourceRef, Target: child.TargetRef, Condition: cond}}
		default:
			continue // unknown elements are ignored per spec §6
		}

		if _, dup := proc.ElementMap[child.ID]; dup {
			return nil, apperr.ParseErrorf(op, "duplicate element id %q", child.ID)
		}
		proc.Elements = append(proc.Elements, el)
		proc.ElementMap[child.ID] = el
	}

	proc.EndEventTerminate = Node{ID: TerminateEventID, Type: NodeEndEvent}

	if err := proc.Validate(); err != nil {
		return nil, err
	}

	return &Definitions{XML: string(xmlBytes), Process: proc}, nil
}
