// Package model defines the ten persisted entity structs of spec §3. They
// are plain row shapes; all mutation and query logic lives in the dao
// package that operates on them through a caller-supplied *sql.Tx.
package model

import "time"

// Deployment is a versioned BPMN upload.
type Deployment struct {
	ID         string
	Name       string
	Key        string
	CompanyID  string
	DeployerID string
	DeployTime time.Time
}

// ByteArray holds the raw BPMN XML payload for a Deployment.
type ByteArray struct {
	ID           string
	DeploymentID string
	Name         string
	Bytes        []byte
}

// SuspensionState mirrors the RuTask/ProcDef suspension flag.
type SuspensionState int

const (
	SuspensionActive SuspensionState = iota
	SuspensionSuspended
)

// ProcDef is a parsed, versioned process definition.
type ProcDef struct {
	ID              string
	Key             string
	Version         int
	DeploymentID    string
	SuspensionState SuspensionState
	IsDeleted       bool
	CompanyID       string
	DeployerID      string
	UpdateUserID    string
	UpdateTime      time.Time
}

// RuExec is a live execution token.
type RuExec struct {
	ID             string
	ProcInstID     string
	RootProcInstID string
	ParentID       string // empty for the root execution
	BusinessKey    string
	ProcDefID      string
	ElementID      string
	IsActive       bool
	StartTime      time.Time
	StartUser      string
	Rev            int
}

// RuTask is a pending human/service task awaiting completion.
type RuTask struct {
	ID              string
	ExecutionID     string
	ProcInstID      string
	ProcDefID       string
	ElementID       string
	Name            string
	ElementType     string
	BusinessKey     string
	Description     string
	FormKey         string
	StartUserID     string
	CreateTime      time.Time
	SuspensionState SuspensionState
}

// IdentType distinguishes a candidate user link from a candidate group link.
type IdentType string

const (
	IdentUser  IdentType = "user"
	IdentGroup IdentType = "group"
)

// RuIdent is one candidate user/group attached to a RuTask.
type RuIdent struct {
	ID         string
	IdentType  IdentType
	IdentID    string // user_id or group_id, per IdentType
	TaskID     string
	ProcInstID string
	ProcDefID  string
}

// RuVar is a process-scoped variable. ExecutionID/TaskID are optional scoping
// hints; uniqueness is enforced on (ProcInstID, Name).
type RuVar struct {
	ID          string
	ProcInstID  string
	ExecutionID string
	TaskID      string
	Name        string
	Value       string
	VarType     string // INT | DOUBLE | STRING | BOOL
}

// HiProcInst is the audit twin of the root execution.
type HiProcInst struct {
	ID            string
	ProcDefID     string
	BusinessKey   string
	StartTime     time.Time
	StartUser     string
	EndTime       *time.Time
	DurationMs    *int64
	EndElementID  string
}

// HiActInst is a per-element audit row.
type HiActInst struct {
	ID          string
	ProcInstID  string
	ExecutionID string
	TaskID      string
	ElementID   string
	Name        string
	ElementType string
	StartTime   time.Time
	StartUserID string
	EndTime     *time.Time
	EndUserID   string
	DurationMs  *int64
}

// HiTask is the audit twin of RuTask.
type HiTask struct {
	ID          string
	ProcInstID  string
	ExecutionID string
	ElementID   string
	Name        string
	BusinessKey string
	FormKey     string
	StartUserID string
	CreateTime  time.Time
	EndTime     *time.Time
	EndUserID   string
	DurationMs  *int64
}

// HiVar is the audit twin of RuVar, updated alongside every RuVar upsert.
type HiVar struct {
	ID         string
	ProcInstID string
	TaskID     string
	Name       string
	Value      string
	VarType    string
	UpdateTime time.Time
}
