package api

import (
	"time"

	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	InstanceID  string `json:"instance_id"`
	Subscribers int    `json:"subscribers"`
}

// ErrorResponse is the body of any non-2xx response. Kind mirrors
// orchestrator.Kind when the failure carries a CoreError.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// SubmitRequest is the body of POST /work.
type SubmitRequest struct {
	Intent       string   `json:"intent" binding:"required"`
	Namespace    string   `json:"namespace" binding:"required"`
	Priority     int      `json:"priority"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// SubmitResponse is the body returned by a successful POST /work.
type SubmitResponse struct {
	WorkItemID string `json:"work_item_id"`
}

// StatusResponse is the body of GET /work/:id: the work item's phase,
// state, assigned agent, review attempt, namespace, priority and
// timestamps. It carries no last-event field.
type StatusResponse struct {
	WorkItemID    string     `json:"work_item_id"`
	Phase         string     `json:"phase"`
	State         string     `json:"state"`
	AssignedAgent string     `json:"assigned_agent,omitempty"`
	ReviewAttempt uint32     `json:"review_attempt"`
	Namespace     string     `json:"namespace"`
	Priority      int        `json:"priority"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func toStatusResponse(wi models.WorkItem) StatusResponse {
	resp := StatusResponse{
		WorkItemID:    wi.ID.String(),
		Phase:         string(wi.Phase),
		State:         string(wi.State),
		ReviewAttempt: wi.ReviewAttempt,
		Namespace:     wi.Namespace.String(),
		Priority:      wi.Priority,
		CreatedAt:     wi.CreatedAt,
		UpdatedAt:     wi.UpdatedAt,
		CompletedAt:   wi.CompletedAt,
	}
	if wi.AssignedAgent != nil {
		resp.AssignedAgent = wi.AssignedAgent.String()
	}
	return resp
}

// EventDTO mirrors models.Event for SSE frames on GET /events:
// JSON-tagged and with WorkItemID flattened to its string form rather than
// a pointer, which keeps empty/absent distinguishable across the wire.
type EventDTO struct {
	EventID    string         `json:"event_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Kind       string         `json:"kind"`
	AgentID    string         `json:"agent_id,omitempty"`
	WorkItemID string         `json:"work_item_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func toEventDTO(ev models.Event) EventDTO {
	dto := EventDTO{
		EventID:   ev.EventID.String(),
		Timestamp: ev.Timestamp,
		Kind:      string(ev.Kind),
		Payload:   ev.Payload,
	}
	if ev.AgentID != (ids.AgentId{}) {
		dto.AgentID = ev.AgentID.String()
	}
	if ev.WorkItemID != nil {
		dto.WorkItemID = ev.WorkItemID.String()
	}
	return dto
}


