package models

import (
	"time"

	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
)

// EventKind is the closed set of event kinds the core ever appends.
// The payload schema is fixed per kind; see payloads.go.
type EventKind string

// EventKind values.
const (
	EventAgentStarted       EventKind = "agent_started"
	EventAgentCompleted     EventKind = "agent_completed"
	EventAgentFailed        EventKind = "agent_failed"
	EventMemoryRecalled     EventKind = "memory_recalled"
	EventMemoryStored       EventKind = "memory_stored"
	EventWorkAssigned       EventKind = "work_assigned"
	EventDependencyResolved EventKind = "dependency_resolved"
	EventQualityGatePassed  EventKind = "quality_gate_passed"
	EventQualityGateFailed  EventKind = "quality_gate_failed"
	EventWorkSubmitted      EventKind = "work_submitted"
	EventPhaseAdvanced      EventKind = "phase_advanced"
	EventReviewRetry        EventKind = "review_retry"
	EventDeadlockDetected   EventKind = "deadlock_detected"
)

// Event is an append-only coordination record. Once written it is never
// modified; EventID is strictly increasing across all writers in a
// single process.
type Event struct {
	EventID    ids.EventId
	Timestamp  time.Time
	Kind       EventKind
	AgentID    ids.AgentId
	WorkItemID *ids.WorkItemId
	Payload    map[string]any
}


