// Package ids defines the opaque 128-bit identifier types used throughout
// the orchestration core, and the Namespace variant that scopes memory
// retrieval and work-item isolation.
package ids

import (
	"fmt"

	"github.com/google/uuid"
)

// MemoryId identifies a stored memory note.
type MemoryId uuid.UUID

// WorkItemId identifies a scheduled work item.
type WorkItemId uuid.UUID

// AgentId identifies a registered agent.
type AgentId uuid.UUID

// EventId identifies an event-log entry. Unlike the other identifiers,
// EventId is also ordered: two EventIds produced by the same process are
// comparable with Less, which the event log relies on for its strictly
// monotonic ordering guarantee.
type EventId uuid.UUID

// InstanceId identifies one running process of the core.
type InstanceId uuid.UUID

// NewMemoryId generates a fresh random MemoryId.
func NewMemoryId() MemoryId { return MemoryId(uuid.New()) }

// NewWorkItemId generates a fresh random WorkItemId.
func NewWorkItemId() WorkItemId { return WorkItemId(uuid.New()) }

// NewAgentId generates a fresh random AgentId.
func NewAgentId() AgentId { return AgentId(uuid.New()) }

// NewInstanceId generates a fresh random InstanceId.
func NewInstanceId() InstanceId { return InstanceId(uuid.New()) }

// NewEventId generates a time-ordered EventId (UUIDv7). google/uuid's V7
// generator is monotonic for calls from the same process within the same
// clock tick, which is what the event log's strictly-increasing-across-
// all-writers-in-a-single-process guarantee relies on.
func NewEventId() EventId {
	u, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the entropy source errors; fall back to V4
		// rather than panicking a hot path. Ordering degrades to
		// insertion-order-via-storage-transaction in that rare case.
		u = uuid.New()
	}
	return EventId(u)
}

// Less reports whether id sorts before other. UUIDv7 values compare
// correctly as raw byte sequences because their leading bits are a
// millisecond timestamp.
func (id EventId) Less(other EventId) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// String renders the canonical 8-4-4-4-12 hex form.
func (id MemoryId) String() string { return uuid.UUID(id).String() }

// String renders the canonical 8-4-4-4-12 hex form.
func (id WorkItemId) String() string { return uuid.UUID(id).String() }

// String renders the canonical 8-4-4-4-12 hex form.
func (id AgentId) String() string { return uuid.UUID(id).String() }

// String renders the canonical 8-4-4-4-12 hex form.
func (id EventId) String() string { return uuid.UUID(id).String() }

// String renders the canonical 8-4-4-4-12 hex form.
func (id InstanceId) String() string { return uuid.UUID(id).String() }

// IsZero reports whether id is the zero-value MemoryId (unset).
func (id MemoryId) IsZero() bool { return id == MemoryId{} }

// IsZero reports whether id is the zero-value WorkItemId (unset).
func (id WorkItemId) IsZero() bool { return id == WorkItemId{} }

// IsZero reports whether id is the zero-value AgentId (unset).
func (id AgentId) IsZero() bool { return id == AgentId{} }

// ParseWorkItemId parses the canonical hex form produced by String.
func ParseWorkItemId(s string) (WorkItemId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return WorkItemId{}, fmt.Errorf("ids: parse work item id %q: %w", s, err)
	}
	return WorkItemId(u), nil
}

// ParseAgentId parses the canonical hex form produced by String.
func ParseAgentId(s string) (AgentId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return AgentId{}, fmt.Errorf("ids: parse agent id %q: %w", s, err)
	}
	return AgentId(u), nil
}

// ParseMemoryId parses the canonical hex form produced by String.
func ParseMemoryId(s string) (MemoryId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return MemoryId{}, fmt.Errorf("ids: parse memory id %q: %w", s, err)
	}
	return MemoryId(u), nil
}

// ParseEventId parses the canonical hex form produced by String.
func ParseEventId(s string) (EventId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return EventId{}, fmt.Errorf("ids: parse event id %q: %w", s, err)
	}
	return EventId(u), nil
}

// IsZero reports whether id is the zero-value EventId (unset).
func (id EventId) IsZero() bool { return id == EventId{} }


