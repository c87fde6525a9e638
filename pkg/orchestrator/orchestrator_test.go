package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mnemosyne-ai/mnemosyne/pkg/eventlog"
	"github.com/mnemosyne-ai/mnemosyne/pkg/executor"
	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
	"github.com/mnemosyne-ai/mnemosyne/pkg/llmclient"
	"github.com/mnemosyne-ai/mnemosyne/pkg/llmclient/llmclienttest"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
	"github.com/mnemosyne-ai/mnemosyne/pkg/optimizer"
	"github.com/mnemosyne-ai/mnemosyne/pkg/orchestrator"
	"github.com/mnemosyne-ai/mnemosyne/pkg/registry"
	"github.com/mnemosyne-ai/mnemosyne/pkg/reviewer"
	"github.com/mnemosyne-ai/mnemosyne/pkg/storage/storagetest"
	"github.com/mnemosyne-ai/mnemosyne/pkg/workqueue"
)

// emptyCatalog is a SkillCatalog with nothing in it, so DiscoverSkills
// returns with no candidates and no LlmClient round-trip (optimizer.go's
// early-return for zero candidates).
type emptyCatalog struct{}

func (emptyCatalog) List() ([]optimizer.Skill, error) { return nil, nil }

func newHarness(t *testing.T, reviewLLM *llmclienttest.Fake) (*orchestrator.Orchestrator, *registry.Registry, *eventlog.EventLog, *storagetest.Fake) {
	t.Helper()
	store := storagetest.New()
	bus := eventlog.NewBus()
	log := eventlog.New(store, bus, time.Millisecond, 10*time.Millisecond, 3)

	queue := workqueue.New(store, 4)
	reg := registry.New()

	opt := optimizer.New(store, nil, log, emptyCatalog{}, 7, nil)
	exec := executor.New(store, nil, queue, "", 4)
	rev := reviewer.New(reviewLLM)

	orch := orchestrator.New(store, queue, reg, log, opt, exec, rev, 60*time.Second, map[string]float64{"plan_to_artifacts": 2.0})
	return orch, reg, log, store
}

func passingReviewerResponses(llm *llmclienttest.Fake) {
	llm.Enqueue(reviewer.SchemaValidateIntent, llmclienttest.Response{Output: map[string]any{"satisfied": true, "issues": []any{}}})
	llm.Enqueue(reviewer.SchemaVerifyCompleteness, llmclienttest.Response{Output: map[string]any{"complete": true, "issues": []any{}}})
	llm.Enqueue(reviewer.SchemaVerifyCorrectness, llmclienttest.Response{Output: map[string]any{"correct": true, "issues": []any{}}})
}

func failingReviewerResponses(llm *llmclienttest.Fake) {
	llm.Enqueue(reviewer.SchemaValidateIntent, llmclienttest.Response{Output: map[string]any{"satisfied": false, "issues": []any{"intent not satisfied"}}})
	llm.Enqueue(reviewer.SchemaVerifyCompleteness, llmclienttest.Response{Output: map[string]any{"complete": true, "issues": []any{}}})
	llm.Enqueue(reviewer.SchemaVerifyCorrectness, llmclienttest.Response{Output: map[string]any{"correct": true, "issues": []any{}}})
}

func helloSpec() models.Spec {
	return models.Spec{
		Intent:       "Create hello.txt with content 'hi'",
		Requirements: []models.Requirement{{ID: "r1", Text: "file exists", Addressed: true}},
		Tasks: []models.PlanTask{
			{ID: "hello_test", Description: "write hello.txt"},
		},
	}
}

// TestHappyPath exercises submit, dispatch through
// Optimizer/Executor/Reviewer, a passing verdict, and the item landing
// Complete at the Artifacts phase.
func TestHappyPath(t *testing.T) {
	llm := llmclienttest.New()
	passingReviewerResponses(llm)
	orch, reg, log, _ := newHarness(t, llm)
	ctx := context.Background()

	reg.Register(models.RoleOptimizer, nil)
	reg.Register(models.RoleExecutor, nil)
	reg.Register(models.RoleReviewer, nil)

	ns := ids.ProjectNamespace("demo")
	id, err := orch.HandleSubmit(ctx, helloSpec(), 0, ns, nil)
	require.NoError(t, err)

	events, err := log.Since(ctx, ids.EventId{}, 1000)
	require.NoError(t, err)

	var kinds []models.EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	require.Contains(t, kinds, models.EventWorkSubmitted)
	require.Contains(t, kinds, models.EventWorkAssigned)
	require.Contains(t, kinds, models.EventMemoryRecalled)
	require.Contains(t, kinds, models.EventMemoryStored)
	require.Contains(t, kinds, models.EventQualityGatePassed)
	require.Contains(t, kinds, models.EventPhaseAdvanced)

	// phase_advanced must be the final transition, Plan -> Artifacts.
	var lastAdvance models.Event
	for _, ev := range events {
		if ev.Kind == models.EventPhaseAdvanced {
			lastAdvance = ev
		}
	}
	require.Equal(t, string(models.PhasePlan), lastAdvance.Payload["from"])
	require.Equal(t, string(models.PhaseArtifacts), lastAdvance.Payload["to"])

	_ = id
}

// TestReviewRetryThenPass: two failing verdicts followed by a
// pass, asserting review_retry fires twice and review_attempt lands at 2
// (0-based) with phase still at Plan until the final pass.
func TestReviewRetryThenPass(t *testing.T) {
	llm := llmclienttest.New()
	failingReviewerResponses(llm)
	orch, reg, log, store := newHarness(t, llm)
	ctx := context.Background()

	reg.Register(models.RoleOptimizer, nil)
	reg.Register(models.RoleExecutor, nil)
	reg.Register(models.RoleReviewer, nil)

	ns := ids.ProjectNamespace("demo")
	id, err := orch.HandleSubmit(ctx, helloSpec(), 0, ns, nil)
	require.NoError(t, err)

	wi, err := store.GetWorkItem(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.StatePending, wi.State)
	require.Equal(t, uint32(1), wi.ReviewAttempt)

	// second failing round
	failingReviewerResponses(llm)
	require.NoError(t, orch.Dispatch(ctx))

	wi, err = store.GetWorkItem(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint32(2), wi.ReviewAttempt)

	// third round passes
	passingReviewerResponses(llm)
	require.NoError(t, orch.Dispatch(ctx))

	wi, err = store.GetWorkItem(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.StateComplete, wi.State)
	require.Equal(t, models.PhaseArtifacts, wi.Phase)
	require.Equal(t, uint32(2), wi.ReviewAttempt, "review_attempt must not reset on the passing phase advance")

	events, err := log.Since(ctx, ids.EventId{}, 1000)
	require.NoError(t, err)
	var retries, assigned int
	for _, ev := range events {
		if ev.Kind == models.EventReviewRetry {
			retries++
		}
		if ev.Kind == models.EventWorkAssigned && ev.Payload["role"] == string(models.RoleExecutor) {
			assigned++
		}
	}
	require.Equal(t, 2, retries)
	require.Equal(t, 3, assigned)
}

// TestReviewerErrorCountsAsVerdictUnknown: a Reviewer operation failure
// (timeout, unparseable output) is treated as verdict unknown — the item
// is re-queued and the failure spends a review attempt, unlike an
// Optimizer failure.
func TestReviewerErrorCountsAsVerdictUnknown(t *testing.T) {
	llm := llmclienttest.New()
	llm.Enqueue(reviewer.SchemaValidateIntent, llmclienttest.Response{Err: llmclient.ErrTimeout})
	orch, reg, log, store := newHarness(t, llm)
	ctx := context.Background()

	reg.Register(models.RoleOptimizer, nil)
	reg.Register(models.RoleExecutor, nil)
	reg.Register(models.RoleReviewer, nil)

	ns := ids.ProjectNamespace("demo")
	id, err := orch.HandleSubmit(ctx, helloSpec(), 0, ns, nil)
	require.NoError(t, err)

	wi, err := store.GetWorkItem(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.StatePending, wi.State)
	require.Equal(t, uint32(1), wi.ReviewAttempt, "a reviewer error spends a review attempt")

	events, err := log.Since(ctx, ids.EventId{}, 1000)
	require.NoError(t, err)
	var sawRetry bool
	for _, ev := range events {
		if ev.Kind != models.EventReviewRetry {
			continue
		}
		sawRetry = true
		issues, _ := ev.Payload["issues"].([]string)
		require.NotEmpty(t, issues)
		require.Contains(t, issues[0], "reviewer error")
	}
	require.True(t, sawRetry, "a verdict-unknown failure still records a review_retry event")
}

// TestReviewFailGeneratesGuidanceForNextAttempt: a failing verdict runs
// generate_guidance and records its summary and actions on the
// review_retry event — the issue list the next dispatch round reads back
// as Optimizer feedback.
func TestReviewFailGeneratesGuidanceForNextAttempt(t *testing.T) {
	llm := llmclienttest.New()
	failingReviewerResponses(llm)
	llm.Enqueue(reviewer.SchemaGenerateGuidance, llmclienttest.Response{Output: map[string]any{
		"summary": "satisfy the stated intent before resubmitting",
		"actions": []any{"address the reviewer's intent finding"},
	}})
	orch, reg, log, _ := newHarness(t, llm)
	ctx := context.Background()

	reg.Register(models.RoleOptimizer, nil)
	reg.Register(models.RoleExecutor, nil)
	reg.Register(models.RoleReviewer, nil)

	ns := ids.ProjectNamespace("demo")
	_, err := orch.HandleSubmit(ctx, helloSpec(), 0, ns, nil)
	require.NoError(t, err)

	events, err := log.Since(ctx, ids.EventId{}, 1000)
	require.NoError(t, err)
	var retryIssues []string
	for _, ev := range events {
		if ev.Kind == models.EventReviewRetry {
			retryIssues, _ = ev.Payload["issues"].([]string)
		}
	}
	require.Contains(t, retryIssues, "satisfy the stated intent before resubmitting")
	require.Contains(t, retryIssues, "intent not satisfied")
	require.Contains(t, retryIssues, "address the reviewer's intent finding")
}

// TestDeadlockDetectorRequeuesStuckItem covers the boundary behavior of
// an item InProgress past the activity timeout: it is requeued via
// exactly one deadlock_detected event, with review_attempt untouched.
func TestDeadlockDetectorRequeuesStuckItem(t *testing.T) {
	llm := llmclienttest.New()
	_, reg, log, store := newHarness(t, llm)
	ctx := context.Background()

	queue := workqueue.New(store, 4)
	ns := ids.ProjectNamespace("demo")
	id, err := queue.Submit(ctx, helloSpec(), 0, ns, nil)
	require.NoError(t, err)

	agentID := reg.Register(models.RoleExecutor, nil)
	require.NoError(t, reg.Bind(agentID, id))
	require.NoError(t, queue.Mark(ctx, id, models.StateInProgress))

	wi, err := store.GetWorkItem(ctx, id)
	require.NoError(t, err)
	wi.AssignedAgent = &agentID
	require.NoError(t, store.UpdateWorkItem(ctx, wi))

	// storagetest.Fake stamps UpdatedAt = time.Now() on every write, so
	// staleness is exercised with a tiny activity timeout plus a short
	// sleep rather than backdating a timestamp the fake would overwrite.
	opt := optimizer.New(store, nil, log, emptyCatalog{}, 7, nil)
	exec := executor.New(store, nil, queue, "", 4)
	rev := reviewer.New(llm)
	orch := orchestrator.New(store, queue, reg, log, opt, exec, rev, time.Millisecond, nil)
	time.Sleep(10 * time.Millisecond)

	// on_tick only sweeps namespaces the orchestrator has tracked via a
	// submission; route this one through HandleSubmit-equivalent tracking
	// by issuing a no-op dispatch first is unnecessary here because
	// detectDeadlocks is namespace-scoped — submit a throwaway item in the
	// same namespace so the tracker knows about it.
	_, err = orch.HandleSubmit(ctx, models.Spec{Intent: "tracker"}, 5, ns, nil)
	require.NoError(t, err)

	require.NoError(t, orch.OnTick(ctx))

	wi, err = store.GetWorkItem(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.StatePending, wi.State)
	require.Equal(t, uint32(0), wi.ReviewAttempt)
	require.Nil(t, wi.AssignedAgent)

	events, err := log.Since(ctx, ids.EventId{}, 1000)
	require.NoError(t, err)
	var deadlocks int
	for _, ev := range events {
		if ev.Kind == models.EventDeadlockDetected {
			deadlocks++
		}
	}
	require.Equal(t, 1, deadlocks)
}

// TestOnTickIsIdempotentWithNoStuckWork asserts a tick over a namespace
// with only healthy, idle state produces no spurious deadlock_detected
// or agent_failed events (registry.SweepStale's own stale-heartbeat
// behavior is covered directly in pkg/registry).
func TestOnTickIsIdempotentWithNoStuckWork(t *testing.T) {
	llm := llmclienttest.New()
	orch, reg, log, _ := newHarness(t, llm)
	ctx := context.Background()

	reg.Register(models.RoleExecutor, nil)

	ns := ids.ProjectNamespace("demo")
	_, err := orch.HandleSubmit(ctx, models.Spec{Intent: "tracker"}, 5, ns, nil)
	require.NoError(t, err)

	require.NoError(t, orch.OnTick(ctx))

	events, err := log.Since(ctx, ids.EventId{}, 1000)
	require.NoError(t, err)
	for _, ev := range events {
		require.NotEqual(t, models.EventDeadlockDetected, ev.Kind)
		require.NotEqual(t, models.EventAgentFailed, ev.Kind)
	}
}


