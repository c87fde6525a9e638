// Package orchestrator implements the Orchestrator (C4): the single
// decision-maker that drives work items through the phase/state machine,
// pairing them with Optimizer, Executor, and Reviewer agents, and sweeping
// stale agents and stuck items on a periodic tick.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mnemosyne-ai/mnemosyne/pkg/executor"
	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
	"github.com/mnemosyne-ai/mnemosyne/pkg/optimizer"
	"github.com/mnemosyne-ai/mnemosyne/pkg/registry"
	"github.com/mnemosyne-ai/mnemosyne/pkg/reviewer"
	"github.com/mnemosyne-ai/mnemosyne/pkg/storage"
	"github.com/mnemosyne-ai/mnemosyne/pkg/workqueue"
)

// EventAppender is the narrow slice of eventlog.EventLog the Orchestrator
// needs, mirroring pkg/optimizer's own EventAppender so every component
// depends on the same minimal capability rather than the concrete type.
type EventAppender interface {
	Append(ctx context.Context, kind models.EventKind, agentID ids.AgentId, workItemID *ids.WorkItemId, payload map[string]any) (ids.EventId, error)
}

// Orchestrator is C4.
type Orchestrator struct {
	store    storage.Storage
	queue    *workqueue.WorkQueue
	registry *registry.Registry
	events   EventAppender
	optimize *optimizer.Optimizer
	execute  *executor.Executor
	review   *reviewer.Reviewer

	activityTimeout         time.Duration
	phaseTimeoutMultipliers map[string]float64

	mu         sync.Mutex
	namespaces map[string]ids.Namespace
}

// New constructs an Orchestrator wiring together the already-constructed
// C1-C3, C5-C7 components. activityTimeout and phaseTimeoutMultipliers
// parameterize the deadlock detector.
func New(
	store storage.Storage,
	queue *workqueue.WorkQueue,
	reg *registry.Registry,
	events EventAppender,
	opt *optimizer.Optimizer,
	exec *executor.Executor,
	rev *reviewer.Reviewer,
	activityTimeout time.Duration,
	phaseTimeoutMultipliers map[string]float64,
) *Orchestrator {
	return &Orchestrator{
		store:                   store,
		queue:                   queue,
		registry:                reg,
		events:                  events,
		optimize:                opt,
		execute:                 exec,
		review:                  rev,
		activityTimeout:         activityTimeout,
		phaseTimeoutMultipliers: phaseTimeoutMultipliers,
		namespaces:              make(map[string]ids.Namespace),
	}
}

// HandleSubmit implements handle_submit(spec, priority, dependencies):
// submit to the Work Queue, append work_submitted, then run a dispatch
// pass over the submission's namespace.
func (o *Orchestrator) HandleSubmit(ctx context.Context, spec models.Spec, priority int, namespace ids.Namespace, dependencies []ids.WorkItemId) (ids.WorkItemId, error) {
	id, err := o.queue.Submit(ctx, spec, priority, namespace, dependencies)
	if err != nil {
		switch {
		case errors.Is(err, workqueue.ErrUnknownDependency):
			return ids.WorkItemId{}, newCoreError(KindUnknownDependency, "", err.Error(), err)
		case errors.Is(err, workqueue.ErrCycle):
			return ids.WorkItemId{}, newCoreError(KindCycle, "", err.Error(), err)
		default:
			return ids.WorkItemId{}, newCoreError(KindStorage, "", err.Error(), err)
		}
	}

	o.trackNamespace(namespace)

	payload := models.ToMap(models.WorkSubmittedPayload{Intent: spec.Intent, Namespace: namespace.String(), Priority: priority})
	if _, err := o.events.Append(ctx, models.EventWorkSubmitted, ids.AgentId{}, &id, payload); err != nil {
		slog.Error("orchestrator: failed to log work_submitted", "work_item_id", id, "error", err)
	}

	if err := o.Dispatch(ctx); err != nil {
		slog.Warn("orchestrator: dispatch pass after submit failed", "error", err)
	}
	return id, nil
}

func (o *Orchestrator) trackNamespace(ns ids.Namespace) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.namespaces[ns.String()] = ns
}

func (o *Orchestrator) trackedNamespaces() []ids.Namespace {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]ids.Namespace, 0, len(o.namespaces))
	for _, ns := range o.namespaces {
		out = append(out, ns)
	}
	return out
}

// Dispatch implements dispatch(): for every tracked namespace, read
// ready_items() and try to pair each with an idle agent, driving it
// through Optimizer → Executor → Reviewer.
func (o *Orchestrator) Dispatch(ctx context.Context) error {
	for _, ns := range o.trackedNamespaces() {
		ready, err := o.queue.ReadyItems(ctx, ns)
		if err != nil {
			return newCoreError(KindStorage, "", "listing ready items", err)
		}
		for _, wi := range ready {
			if err := o.dispatchItem(ctx, wi); err != nil {
				slog.Warn("orchestrator: dispatch item failed", "work_item_id", wi.ID, "error", err)
			}
		}
	}
	return nil
}

// dispatchItem drives one ready item through its remaining pipeline: a
// silent catch-up through the agentless Prompt/Spec/FullSpec phases (see
// fastForwardToPlan), then a bound Optimizer → Executor → Reviewer round.
// Only Optimizer, Executor, and Reviewer are agent roles in this core;
// the earlier phases describe work the work plan protocol attributes to
// the same pipeline before an Executor can act on it, so they are
// advanced without a separate agent binding or event — a submission's
// trace shows exactly one phase_advanced (Plan→Artifacts).
func (o *Orchestrator) dispatchItem(ctx context.Context, wi models.WorkItem) error {
	if err := o.fastForwardToPlan(ctx, wi.ID, wi.Phase); err != nil {
		return fmt.Errorf("orchestrator: fast-forwarding %s to plan: %w", wi.ID, err)
	}

	optAgent, ok := o.registry.IdleAgent(models.RoleOptimizer)
	if !ok {
		return nil // no Optimizer available this round; retried on the next tick
	}
	if err := o.markInProgress(ctx, wi.ID, optAgent.ID); err != nil {
		return err
	}
	o.appendWorkAssigned(ctx, optAgent.ID, wi.ID, models.RoleOptimizer, wi.ReviewAttempt)

	cur, err := o.queue.ReadyItemsSnapshot(ctx, wi.ID)
	if err != nil {
		return err
	}

	var feedback []string
	if cur.ReviewAttempt > 0 {
		feedback = o.reviewFeedback(ctx, cur.ID)
	}
	pkg, err := o.optimize.PrepareContext(ctx, optAgent.ID, cur, nil, feedback)
	_ = o.registry.Unbind(optAgent.ID)
	if err != nil {
		return o.handleAgentError(ctx, cur.ID, optAgent.ID, "optimizer_failed", err)
	}
	o.appendEvent(ctx, models.EventMemoryRecalled, optAgent.ID, wi.ID, models.MemoryRecalledPayload{Count: len(pkg.MemoryIDs)})

	execAgent, ok := o.registry.IdleAgent(models.RoleExecutor)
	if !ok {
		return nil
	}
	if err := o.markInProgress(ctx, wi.ID, execAgent.ID); err != nil {
		return err
	}
	o.appendWorkAssigned(ctx, execAgent.ID, wi.ID, models.RoleExecutor, cur.ReviewAttempt)

	report := o.execute.Execute(ctx, cur, pkg)
	_ = o.registry.Unbind(execAgent.ID)

	return o.handleExecutorReport(ctx, cur, execAgent.ID, report)
}

// fastForwardToPlan advances a freshly-ready item from whatever phase it
// occupies up to Plan, with no event or agent binding per step, since no
// agent role covers those transitions in this core (see dispatchItem doc).
// It is a no-op once the item is already at Plan, so repeated dispatch
// rounds after a review retry never re-enter the loop.
func (o *Orchestrator) fastForwardToPlan(ctx context.Context, id ids.WorkItemId, phase models.Phase) error {
	for phase.Index() < models.PhasePlan.Index() {
		if err := o.queue.AdvancePhase(ctx, id); err != nil {
			return err
		}
		next, ok := phase.Next()
		if !ok {
			return fmt.Errorf("%s: no phase after %s", id, phase)
		}
		phase = next
	}
	return nil
}

// reviewFeedback returns the issues recorded by the most recent
// review_retry event for id, so a retry's context package addresses the
// prior verdict's findings instead of repeating the failed attempt
// blind. Reads the event log in pages the way eventlog.Replay does; a
// read failure degrades to no feedback rather than blocking dispatch.
func (o *Orchestrator) reviewFeedback(ctx context.Context, id ids.WorkItemId) []string {
	const pageSize = 500
	var feedback []string
	cursor := ids.EventId{}
	for {
		page, err := o.store.EventsSince(ctx, cursor, pageSize)
		if err != nil {
			slog.Warn("orchestrator: reading review feedback failed", "work_item_id", id, "error", err)
			return nil
		}
		for _, ev := range page {
			cursor = ev.EventID
			if ev.Kind != models.EventReviewRetry || ev.WorkItemID == nil || *ev.WorkItemID != id {
				continue
			}
			feedback = issuesFromPayload(ev.Payload)
		}
		if len(page) < pageSize {
			return feedback
		}
	}
}

// issuesFromPayload reads the "issues" field of a review_retry payload,
// tolerating both the in-memory []string form and the []any a JSON
// round-trip through Storage produces.
func issuesFromPayload(payload map[string]any) []string {
	switch v := payload["issues"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, it := range v {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (o *Orchestrator) markInProgress(ctx context.Context, id ids.WorkItemId, agentID ids.AgentId) error {
	if err := o.registry.Bind(agentID, id); err != nil {
		return fmt.Errorf("orchestrator: binding %s to %s: %w", agentID, id, err)
	}
	if err := o.queue.Assign(ctx, id, agentID); err != nil {
		return fmt.Errorf("orchestrator: marking %s in_progress: %w", id, err)
	}
	return nil
}

func (o *Orchestrator) appendWorkAssigned(ctx context.Context, agentID ids.AgentId, workItemID ids.WorkItemId, role models.Role, reviewAttempt uint32) {
	o.appendEvent(ctx, models.EventWorkAssigned, agentID, workItemID, models.WorkAssignedPayload{Role: role, ReviewAttempt: reviewAttempt})
}

func (o *Orchestrator) appendEvent(ctx context.Context, kind models.EventKind, agentID ids.AgentId, workItemID ids.WorkItemId, payload any) {
	id := workItemID
	if _, err := o.events.Append(ctx, kind, agentID, &id, models.ToMap(payload)); err != nil {
		slog.Error("orchestrator: failed to append event", "kind", kind, "work_item_id", workItemID, "error", err)
	}
}

// handleAgentError is the recovery path for a Storage/LlmTimeout/
// LlmProvider/ParseFailure at the Optimizer stage: it logs agent_failed
// and re-queues the item without incrementing review_attempt. An
// Optimizer failure is not the item's fault; a Reviewer failure is
// handled as a verdict-unknown fail instead and does spend a retry.
func (o *Orchestrator) handleAgentError(ctx context.Context, id ids.WorkItemId, agentID ids.AgentId, kind string, err error) error {
	_ = o.registry.Unbind(agentID)
	o.appendEvent(ctx, models.EventAgentFailed, agentID, id, models.AgentFailedPayload{Kind: kind, Reason: err.Error()})
	if rqErr := o.queue.Requeue(ctx, id); rqErr != nil {
		return fmt.Errorf("orchestrator: requeuing %s after agent error: %w", id, rqErr)
	}
	return nil
}

// handleExecutorReport implements handle_executor_report(item, outcome):
// on success, store the execution as a memory and request a Reviewer
// run; on error, record agent_failed and retry (counts against
// review_attempt, since the Executor's run is the item's own work).
func (o *Orchestrator) handleExecutorReport(ctx context.Context, wi *models.WorkItem, execAgentID ids.AgentId, report models.ExecutorReport) error {
	if report.Status != models.ExecutionStatusCompleted {
		o.appendEvent(ctx, models.EventAgentFailed, execAgentID, wi.ID, models.AgentFailedPayload{Kind: "execution_failed", Reason: report.Error})
		return o.retryOrFail(ctx, wi.ID, execAgentID)
	}

	memID, err := o.storeExecutionMemory(ctx, wi, report)
	if err != nil {
		slog.Warn("orchestrator: failed to store execution memory", "work_item_id", wi.ID, "error", err)
	} else {
		o.appendEvent(ctx, models.EventMemoryStored, execAgentID, wi.ID, models.MemoryStoredPayload{MemoryID: memID.String()})
	}

	revAgent, ok := o.registry.IdleAgent(models.RoleReviewer)
	if !ok {
		return nil // review happens on a later tick once a Reviewer is idle
	}
	if err := o.markInProgress(ctx, wi.ID, revAgent.ID); err != nil {
		return err
	}
	o.appendWorkAssigned(ctx, revAgent.ID, wi.ID, models.RoleReviewer, wi.ReviewAttempt)

	verdict, err := o.runReview(ctx, wi, report)
	_ = o.registry.Unbind(revAgent.ID)
	if err != nil {
		// Verdict unknown: a Reviewer operation failure (unparseable
		// output, timeout) counts against review_attempt, unlike an
		// Optimizer failure.
		verdict = models.UnknownVerdict(err.Error())
	}

	return o.handleReviewerVerdict(ctx, wi, revAgent.ID, verdict)
}

// storeExecutionMemory records the execution outcome as a new memory note
// in the item's namespace, giving future Optimizer recalls something to
// find: the execution experience itself is a first-class memory.
func (o *Orchestrator) storeExecutionMemory(ctx context.Context, wi *models.WorkItem, report models.ExecutorReport) (ids.MemoryId, error) {
	note := models.MemoryNote{
		Namespace:  wi.Namespace,
		Type:       models.MemoryTypeAgentEvent,
		Title:      "execution: " + wi.Spec.Intent,
		Content:    executionSummary(report),
		Tags:       []string{"execution", string(wi.Phase)},
		Importance: 5,
	}
	return o.store.StoreMemory(ctx, note)
}

func executionSummary(report models.ExecutorReport) string {
	summary := fmt.Sprintf("status=%s artifacts=%d", report.Status, len(report.Artifacts))
	for _, a := range report.Artifacts {
		summary += fmt.Sprintf("\n- %s: %s", a.Kind, a.Path)
	}
	return summary
}

// runReview builds a ReviewInput from wi and report and calls the
// Reviewer, extracting requirements first when the item doesn't carry
// any yet.
func (o *Orchestrator) runReview(ctx context.Context, wi *models.WorkItem, report models.ExecutorReport) (models.Verdict, error) {
	executionContext := wi.Spec.Intent

	requirements := wi.Spec.Requirements
	if len(requirements) == 0 {
		extracted, err := o.review.ExtractRequirements(ctx, wi.Spec.Intent, executionContext)
		if err != nil {
			return models.Verdict{}, err
		}
		requirements = extracted
	}

	return o.review.Review(ctx, reviewer.ReviewInput{
		Intent:           wi.Spec.Intent,
		ExecutionContext: executionContext,
		Requirements:     requirements,
		TypedHoles:       wi.Spec.TypedHoles,
		Constraints:      wi.Spec.Constraints,
		Artifacts:        report.Artifacts,
	})
}

// handleReviewerVerdict implements handle_reviewer_verdict(item,
// verdict): pass advances the phase (Plan→Artifacts, the only
// transition a Reviewer verdict ever drives in this core) and completes
// the item; fail retries, counting against review_attempt.
func (o *Orchestrator) handleReviewerVerdict(ctx context.Context, wi *models.WorkItem, reviewerAgentID ids.AgentId, verdict models.Verdict) error {
	if verdict.Pass {
		o.appendEvent(ctx, models.EventQualityGatePassed, reviewerAgentID, wi.ID, models.QualityGateResultPayload{})
		from := wi.Phase
		if err := o.queue.AdvancePhase(ctx, wi.ID); err != nil {
			return fmt.Errorf("orchestrator: advancing phase for %s: %w", wi.ID, err)
		}
		to, _ := from.Next()
		o.appendEvent(ctx, models.EventPhaseAdvanced, reviewerAgentID, wi.ID, models.PhaseAdvancedPayload{From: from, To: to})
		if to == models.PhaseArtifacts {
			if err := o.queue.Mark(ctx, wi.ID, models.StateComplete); err != nil {
				return fmt.Errorf("orchestrator: marking %s complete: %w", wi.ID, err)
			}
		}
		return nil
	}

	failedGates := make([]string, 0, len(verdict.FailedGates))
	for _, g := range verdict.FailedGates {
		failedGates = append(failedGates, string(g))
	}
	o.appendEvent(ctx, models.EventQualityGateFailed, reviewerAgentID, wi.ID, models.QualityGateResultPayload{FailedGates: failedGates, Issues: verdict.Issues})

	// Fold generate_guidance output into the recorded issues so the next
	// Optimizer pass (see reviewFeedback) receives actionable direction,
	// not just the raw findings. Guidance is best-effort: a failure here
	// falls back to the verdict's own issue list.
	issues := verdict.Issues
	if guidance, err := o.review.GenerateGuidance(ctx, verdict.Issues, wi.Spec.Intent); err != nil {
		slog.Warn("orchestrator: generate_guidance failed, retrying with raw issues", "work_item_id", wi.ID, "error", err)
	} else {
		issues = guidanceFeedback(guidance, verdict.Issues)
	}
	o.appendEvent(ctx, models.EventReviewRetry, reviewerAgentID, wi.ID, models.ReviewRetryPayload{ReviewAttempt: wi.ReviewAttempt, Issues: issues})

	return o.retryOrFail(ctx, wi.ID, reviewerAgentID)
}

// guidanceFeedback folds a Guidance into the issue list recorded on the
// review_retry event: summary first, then the verdict's own issues, then
// the concrete actions.
func guidanceFeedback(g models.Guidance, issues []string) []string {
	out := make([]string, 0, len(issues)+1+len(g.Actions))
	if g.Summary != "" {
		out = append(out, g.Summary)
	}
	out = append(out, issues...)
	out = append(out, g.Actions...)
	return out
}

// retryOrFail calls WorkQueue.Retry and, on ErrMaxReviewAttempts, records
// the terminal agent_failed event the status surface reports.
func (o *Orchestrator) retryOrFail(ctx context.Context, id ids.WorkItemId, agentID ids.AgentId) error {
	err := o.queue.Retry(ctx, id)
	if err == nil {
		return nil
	}
	if errors.Is(err, workqueue.ErrMaxReviewAttempts) {
		o.appendEvent(ctx, models.EventAgentFailed, agentID, id, models.AgentFailedPayload{
			Kind:   "max_review_attempts",
			Reason: "exceeded configured review attempt ceiling",
		})
		return nil
	}
	return fmt.Errorf("orchestrator: retrying %s: %w", id, err)
}


