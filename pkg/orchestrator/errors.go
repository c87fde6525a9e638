package orchestrator

import "fmt"

// Kind is the closed set of error kinds the core surfaces at its
// boundary. Every error that crosses a component boundary up to the
// Orchestrator carries one of these.
type Kind string

// Kind values, tied to the core's recovery policy per kind.
const (
	KindStorage           Kind = "storage"
	KindLlmTimeout        Kind = "llm_timeout"
	KindLlmProvider       Kind = "llm_provider"
	KindParseFailure      Kind = "parse_failure"
	KindCycle             Kind = "cycle"
	KindUnknownDependency Kind = "unknown_dependency"
	KindMaxReviewAttempts Kind = "max_review_attempts"
	KindDeadline          Kind = "deadline"
	KindCancelled         Kind = "cancelled"
	KindRegistryStale     Kind = "registry_stale"
	KindRegistryLocked    Kind = "registry_locked"
)

// CoreError is the typed error crossing a component boundary up to the
// Orchestrator. WorkItemID is the zero value when the error predates a
// work item existing (e.g. a malformed submission).
type CoreError struct {
	Kind       Kind
	WorkItemID string
	Reason     string
	Err        error
}

func (e *CoreError) Error() string {
	if e.WorkItemID == "" {
		return fmt.Sprintf("orchestrator: %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("orchestrator: %s: work item %s: %s", e.Kind, e.WorkItemID, e.Reason)
}

func (e *CoreError) Unwrap() error { return e.Err }

// newCoreError builds a CoreError, wrapping err for %w unwrapping.
func newCoreError(kind Kind, workItemID string, reason string, err error) *CoreError {
	return &CoreError{Kind: kind, WorkItemID: workItemID, Reason: reason, Err: err}
}


