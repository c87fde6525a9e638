// Package workqueue implements the Work Queue (C2): the priority- and
// dependency-ordered set of work items and the phase/state machine that
// governs their lifecycle.
package workqueue

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gammazero/toposort"

	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
	"github.com/mnemosyne-ai/mnemosyne/pkg/storage"
)

// Sentinel errors for WorkQueue.Submit and WorkQueue.Retry.
var (
	// ErrCycle is returned when a submission's dependency closure would
	// close a cycle.
	ErrCycle = errors.New("workqueue: dependency cycle")
	// ErrUnknownDependency is returned when a referenced dependency is
	// absent or already Failed.
	ErrUnknownDependency = errors.New("workqueue: unknown or failed dependency")
	// ErrMaxReviewAttempts is returned by Retry once review_attempt would
	// exceed the configured maximum.
	ErrMaxReviewAttempts = errors.New("workqueue: max review attempts exceeded")
	// ErrInvalidTransition is returned by Mark/AdvancePhase for a
	// transition the state machine forbids.
	ErrInvalidTransition = errors.New("workqueue: invalid state transition")
)

// WorkQueue is the component driving work-item submission, ready-item
// selection, and phase/state transitions over a Storage backend.
type WorkQueue struct {
	store             storage.Storage
	maxReviewAttempts uint32
}

// New constructs a WorkQueue.
func New(store storage.Storage, maxReviewAttempts uint32) *WorkQueue {
	return &WorkQueue{store: store, maxReviewAttempts: maxReviewAttempts}
}

// Submit creates a new Pending, Prompt-phase work item. It rejects with
// ErrCycle if the new item plus its dependencies would close a cycle,
// and ErrUnknownDependency if a referenced dependency does not exist or
// is already Failed.
func (q *WorkQueue) Submit(ctx context.Context, spec models.Spec, priority int, namespace ids.Namespace, dependencies []ids.WorkItemId) (ids.WorkItemId, error) {
	newID := ids.NewWorkItemId()

	existing, err := q.store.ListWorkItems(ctx, namespace, nil)
	if err != nil {
		return ids.WorkItemId{}, fmt.Errorf("workqueue: submit: listing existing items: %w", err)
	}

	depByID := make(map[ids.WorkItemId]models.WorkItem, len(existing))
	for _, wi := range existing {
		depByID[wi.ID] = wi
	}
	for _, dep := range dependencies {
		wi, ok := depByID[dep]
		if !ok || wi.State == models.StateFailed {
			return ids.WorkItemId{}, fmt.Errorf("%w: %s", ErrUnknownDependency, dep)
		}
	}

	if err := checkAcyclic(newID, dependencies, existing); err != nil {
		return ids.WorkItemId{}, err
	}

	wi := models.WorkItem{
		ID:           newID,
		Phase:        models.PhasePrompt,
		State:        models.StatePending,
		Spec:         spec,
		Priority:     priority,
		Dependencies: dependencies,
		Namespace:    namespace,
	}
	if err := q.store.CreateWorkItem(ctx, wi); err != nil {
		return ids.WorkItemId{}, fmt.Errorf("workqueue: submit: %w", err)
	}
	return newID, nil
}

// checkAcyclic builds the dependency edge list of candidate + every
// existing non-terminal item and rejects the submission if adding
// candidate would close a cycle. Cycle detection itself is delegated to
// gammazero/toposort's topological sort, which errors when the graph
// isn't a DAG.
func checkAcyclic(candidate ids.WorkItemId, candidateDeps []ids.WorkItemId, existing []models.WorkItem) error {
	edges := make([]toposort.Edge, 0, len(candidateDeps)+len(existing))
	for _, dep := range candidateDeps {
		edges = append(edges, toposort.Edge{candidate.String(), dep.String()})
	}
	for _, wi := range existing {
		if wi.State.Terminal() {
			continue
		}
		for _, dep := range wi.Dependencies {
			edges = append(edges, toposort.Edge{wi.ID.String(), dep.String()})
		}
	}

	if _, err := toposort.Toposort(edges); err != nil {
		return fmt.Errorf("%w: submitting %s would close a cycle", ErrCycle, candidate)
	}
	return nil
}

// ReadyItems returns items whose state is Pending and every dependency
// is Complete, ordered by ascending priority then ascending created_at.
func (q *WorkQueue) ReadyItems(ctx context.Context, namespace ids.Namespace) ([]models.WorkItem, error) {
	items, err := q.store.ListWorkItems(ctx, namespace, nil)
	if err != nil {
		return nil, fmt.Errorf("workqueue: ready_items: %w", err)
	}

	complete := make(map[ids.WorkItemId]bool, len(items))
	for _, wi := range items {
		if wi.State == models.StateComplete {
			complete[wi.ID] = true
		}
	}

	var ready []models.WorkItem
	for _, wi := range items {
		item := wi
		if item.Ready(func(id ids.WorkItemId) bool { return complete[id] }) {
			ready = append(ready, item)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority < ready[j].Priority
		}
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})
	return ready, nil
}

// ReadyItemsSnapshot re-fetches id's current persisted state, used by the
// Orchestrator immediately after binding an item to an agent so the rest
// of its dispatch pipeline (Optimizer, Executor, Reviewer) sees the
// InProgress state and bound agent rather than the stale ready_items()
// snapshot.
func (q *WorkQueue) ReadyItemsSnapshot(ctx context.Context, id ids.WorkItemId) (*models.WorkItem, error) {
	wi, err := q.store.GetWorkItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("workqueue: ready_items_snapshot: %w", err)
	}
	return &wi, nil
}

// Assign moves the item InProgress and records agentID as its bound
// agent in the same write, keeping the invariant that an InProgress item
// always names its agent.
func (q *WorkQueue) Assign(ctx context.Context, id ids.WorkItemId, agentID ids.AgentId) error {
	wi, err := q.store.GetWorkItem(ctx, id)
	if err != nil {
		return fmt.Errorf("workqueue: assign: %w", err)
	}
	if wi.State.Terminal() {
		return fmt.Errorf("%w: item %s is terminal (%s)", ErrInvalidTransition, id, wi.State)
	}
	wi.State = models.StateInProgress
	wi.AssignedAgent = &agentID
	if err := q.store.UpdateWorkItem(ctx, wi); err != nil {
		return fmt.Errorf("workqueue: assign: %w", err)
	}
	return nil
}

// Mark enforces the phase/state machine while setting a new runtime
// state. The only enforced rule here is that a terminal state
// (Complete/Failed) cannot be left except via Retry, which explicitly
// resets state to Pending.
func (q *WorkQueue) Mark(ctx context.Context, id ids.WorkItemId, newState models.State) error {
	wi, err := q.store.GetWorkItem(ctx, id)
	if err != nil {
		return fmt.Errorf("workqueue: mark: %w", err)
	}
	if wi.State.Terminal() && newState != models.StatePending {
		return fmt.Errorf("%w: item %s is terminal (%s)", ErrInvalidTransition, id, wi.State)
	}
	wi.State = newState
	if newState.Terminal() {
		wi.AssignedAgent = nil
	}
	if newState == models.StateComplete {
		now := wi.UpdatedAt
		wi.CompletedAt = &now
	}
	if err := q.store.UpdateWorkItem(ctx, wi); err != nil {
		return fmt.Errorf("workqueue: mark: %w", err)
	}
	return nil
}

// AdvancePhase moves wi to the next phase in the linear progression. The
// caller (Orchestrator, which checks quality-gate exit criteria) is
// responsible for only calling this once those criteria are satisfied;
// AdvancePhase itself only enforces monotonicity.
func (q *WorkQueue) AdvancePhase(ctx context.Context, id ids.WorkItemId) error {
	wi, err := q.store.GetWorkItem(ctx, id)
	if err != nil {
		return fmt.Errorf("workqueue: advance_phase: %w", err)
	}
	next, ok := wi.Phase.Next()
	if !ok {
		return fmt.Errorf("%w: %s has no phase after %s", ErrInvalidTransition, id, wi.Phase)
	}
	wi.Phase = next
	if err := q.store.UpdateWorkItem(ctx, wi); err != nil {
		return fmt.Errorf("workqueue: advance_phase: %w", err)
	}
	return nil
}

// Retry resets wi to Pending and increments review_attempt, failing with
// ErrMaxReviewAttempts once the configured ceiling would be exceeded.
// Exceeding the ceiling marks the item Failed instead, per the
// Orchestrator's handle_executor_report contract.
func (q *WorkQueue) Retry(ctx context.Context, id ids.WorkItemId) error {
	wi, err := q.store.GetWorkItem(ctx, id)
	if err != nil {
		return fmt.Errorf("workqueue: retry: %w", err)
	}
	if wi.ReviewAttempt+1 > q.maxReviewAttempts {
		wi.State = models.StateFailed
		if err := q.store.UpdateWorkItem(ctx, wi); err != nil {
			return fmt.Errorf("workqueue: retry: %w", err)
		}
		return ErrMaxReviewAttempts
	}
	wi.State = models.StatePending
	wi.ReviewAttempt++
	wi.AssignedAgent = nil
	if err := q.store.UpdateWorkItem(ctx, wi); err != nil {
		return fmt.Errorf("workqueue: retry: %w", err)
	}
	return nil
}

// Requeue resets wi to Pending without touching review_attempt — used
// by the deadlock detector and stale-agent sweep, which must not count
// against the item's retry budget.
func (q *WorkQueue) Requeue(ctx context.Context, id ids.WorkItemId) error {
	wi, err := q.store.GetWorkItem(ctx, id)
	if err != nil {
		return fmt.Errorf("workqueue: requeue: %w", err)
	}
	wi.State = models.StatePending
	wi.AssignedAgent = nil
	if err := q.store.UpdateWorkItem(ctx, wi); err != nil {
		return fmt.Errorf("workqueue: requeue: %w", err)
	}
	return nil
}

// ListNonTerminal returns every Pending/InProgress/Blocked item in
// namespace, for the Orchestrator's deadlock detector, which walks the
// non-terminal work-item dependency graph.
func (q *WorkQueue) ListNonTerminal(ctx context.Context, namespace ids.Namespace) ([]models.WorkItem, error) {
	items, err := q.store.ListWorkItems(ctx, namespace, []models.State{models.StatePending, models.StateInProgress, models.StateBlocked})
	if err != nil {
		return nil, fmt.Errorf("workqueue: list_non_terminal: %w", err)
	}
	return items, nil
}


