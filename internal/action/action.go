// Package action is the sole privileged entry point to the record
// system: every action type has exactly one authorized call path here,
// which is what lets audit and undo be guaranteed complete.
package action

import (
	"campuspilot/internal/records"
)

// Type is the closed set of supported action types. Dispatch over Type
// is an exhaustive switch so every new action type must be handled
// explicitly.
type Type string

const (
	TypeSendMessage     Type = "send-message"
	TypeScheduleMeeting Type = "schedule-meeting"
	TypeGetSchedule     Type = "get-schedule"
	TypeGetGrades       Type = "get-grades"
	TypeQueryEntity     Type = "query-entity"
)

// AllTypes lists every supported action type.
var AllTypes = []Type{
	TypeSendMessage,
	TypeScheduleMeeting,
	TypeGetSchedule,
	TypeGetGrades,
	TypeQueryEntity,
}

// Valid reports whether t names a supported action type.
func (t Type) Valid() bool {
	for _, v := range AllTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Reversible reports whether the action has a destructive inverse.
// Read-only actions create nothing and cannot be undone.
func (t Type) Reversible() bool {
	return t == TypeSendMessage || t == TypeScheduleMeeting
}

// TargetType names the side-effect object an action type creates or reads.
func (t Type) TargetType() string {
	switch t {
	case TypeSendMessage:
		return "message"
	case TypeScheduleMeeting:
		return "meeting"
	case TypeGetSchedule:
		return "schedule"
	case TypeGetGrades:
		return "grades"
	case TypeQueryEntity:
		return "entity"
	default:
		return "unknown"
	}
}

// Payload keys used by the executor.
const (
	PayloadContent  = "content"
	PayloadDatetime = "datetime"
	PayloadTopic    = "topic"
	PayloadQuery    = "query"
)

// Request is the fully resolved, ready-to-execute command. It is built by
// merging a parsed command with conversation state and is never persisted
// directly, only via the audit record it produces.
type Request struct {
	Type    Type
	ActorID string
	Targets []records.Recipient
	Payload map[string]string
}

// Status is the executor outcome.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Result is what one execution produced.
type Result struct {
	Status Status
	// Detail is a stable machine-readable code on error.
	Detail string
	// CreatedID identifies the side-effect object, empty for reads.
	CreatedID string
	// Output is the human-readable result for query actions.
	Output string
	// AuditID references the audit record written for this attempt.
	AuditID string
}
