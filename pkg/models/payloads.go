package models

// Typed payload shapes for each EventKind: an opaque structured object
// whose schema is fixed per kind. Components build these then flatten
// to map[string]any via ToMap when calling EventLog.Append, one struct
// per wire event type.

// WorkSubmittedPayload — EventWorkSubmitted.
type WorkSubmittedPayload struct {
	Intent    string `json:"intent"`
	Namespace string `json:"namespace"`
	Priority  int    `json:"priority"`
}

// WorkAssignedPayload — EventWorkAssigned.
type WorkAssignedPayload struct {
	Role          Role   `json:"role"`
	ReviewAttempt uint32 `json:"review_attempt"`
}

// MemoryRecalledPayload — EventMemoryRecalled.
type MemoryRecalledPayload struct {
	Count    int  `json:"count"`
	Fallback bool `json:"fallback"`
}

// MemoryStoredPayload — EventMemoryStored.
type MemoryStoredPayload struct {
	MemoryID string `json:"memory_id"`
}

// DependencyResolvedPayload — EventDependencyResolved.
type DependencyResolvedPayload struct {
	DependencyID string `json:"dependency_id"`
}

// QualityGateResultPayload — EventQualityGatePassed / EventQualityGateFailed.
type QualityGateResultPayload struct {
	FailedGates []string `json:"failed_gates,omitempty"`
	Issues      []string `json:"issues,omitempty"`
}

// PhaseAdvancedPayload — EventPhaseAdvanced.
type PhaseAdvancedPayload struct {
	From Phase `json:"from"`
	To   Phase `json:"to"`
}

// ReviewRetryPayload — EventReviewRetry.
type ReviewRetryPayload struct {
	ReviewAttempt uint32   `json:"review_attempt"`
	Issues        []string `json:"issues,omitempty"`
}

// AgentFailedPayload — EventAgentFailed.
type AgentFailedPayload struct {
	Kind   string `json:"kind"` // e.g. "max_review_attempts", "heartbeat_lost", "panic"
	Reason string `json:"reason"`
}

// DeadlockDetectedPayload — EventDeadlockDetected.
type DeadlockDetectedPayload struct {
	Reason string `json:"reason"` // "stuck" or "cycle"
}

// ToMap flattens a typed payload into the map[string]any the event log
// stores. Implemented via a type switch rather than reflection so the set
// of payload shapes stays closed and easy to audit.
func ToMap(p any) map[string]any {
	switch v := p.(type) {
	case WorkSubmittedPayload:
		return map[string]any{"intent": v.Intent, "namespace": v.Namespace, "priority": v.Priority}
	case WorkAssignedPayload:
		return map[string]any{"role": string(v.Role), "review_attempt": v.ReviewAttempt}
	case MemoryRecalledPayload:
		return map[string]any{"count": v.Count, "fallback": v.Fallback}
	case MemoryStoredPayload:
		return map[string]any{"memory_id": v.MemoryID}
	case DependencyResolvedPayload:
		return map[string]any{"dependency_id": v.DependencyID}
	case QualityGateResultPayload:
		return map[string]any{"failed_gates": v.FailedGates, "issues": v.Issues}
	case PhaseAdvancedPayload:
		return map[string]any{"from": string(v.From), "to": string(v.To)}
	case ReviewRetryPayload:
		return map[string]any{"review_attempt": v.ReviewAttempt, "issues": v.Issues}
	case AgentFailedPayload:
		return map[string]any{"kind": v.Kind, "reason": v.Reason}
	case DeadlockDetectedPayload:
		return map[string]any{"reason": v.Reason}
	case map[string]any:
		return v
	default:
		return map[string]any{}
	}
}


