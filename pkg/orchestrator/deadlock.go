package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
)

// OnTick runs the stale-agent sweep, then the deadlock detector, over
// every namespace the Orchestrator has seen a submission for. Intended
// to be driven on a ~1s ticker by the caller (cmd/mnemosyne's serve
// loop).
func (o *Orchestrator) OnTick(ctx context.Context) error {
	o.sweepStaleAgents(ctx)

	for _, ns := range o.trackedNamespaces() {
		if err := o.detectDeadlocks(ctx, ns); err != nil {
			return fmt.Errorf("orchestrator: on_tick: %w", err)
		}
	}
	return nil
}

// sweepStaleAgents marks any agent whose heartbeat has gone stale as
// Failed, and requeues any work item still bound to it with an
// agent_failed event — unbinding does not count against
// review_attempt.
func (o *Orchestrator) sweepStaleAgents(ctx context.Context) {
	for _, swept := range o.registry.SweepStale() {
		if swept.BoundWorkItem == nil {
			continue
		}
		id := *swept.BoundWorkItem
		o.appendEvent(ctx, models.EventAgentFailed, swept.AgentID, id, models.AgentFailedPayload{
			Kind:   "heartbeat_lost",
			Reason: "agent heartbeat exceeded staleness threshold",
		})
		if err := o.queue.Requeue(ctx, id); err != nil {
			slog.Warn("orchestrator: requeue after stale-agent sweep failed", "work_item_id", id, "error", err)
		}
	}
}

// detectDeadlocks builds the wait-for graph of non-terminal items (A →
// B iff A depends on B),
// runs Tarjan's SCC to catch any cycle that slipped past submission-time
// rejection, and separately flags any InProgress item whose updated_at
// has exceeded the activity timeout for its phase transition. Every
// stuck item is re-queued without incrementing review_attempt.
func (o *Orchestrator) detectDeadlocks(ctx context.Context, ns ids.Namespace) error {
	items, err := o.queue.ListNonTerminal(ctx, ns)
	if err != nil {
		return fmt.Errorf("listing non-terminal items: %w", err)
	}

	byID := make(map[ids.WorkItemId]models.WorkItem, len(items))
	for _, wi := range items {
		byID[wi.ID] = wi
	}

	stuck := make(map[ids.WorkItemId]string)
	for _, scc := range tarjanSCC(items) {
		if len(scc) > 1 {
			for _, id := range scc {
				stuck[id] = "cycle"
			}
		}
	}

	now := time.Now().UTC()
	for _, wi := range items {
		if wi.State != models.StateInProgress {
			continue
		}
		if _, already := stuck[wi.ID]; already {
			continue
		}
		if now.Sub(wi.UpdatedAt) > o.effectiveTimeout(wi.Phase) {
			stuck[wi.ID] = "stuck"
		}
	}

	for id, reason := range stuck {
		wi := byID[id]
		o.appendEvent(ctx, models.EventDeadlockDetected, agentOf(wi), id, models.DeadlockDetectedPayload{Reason: reason})
		if wi.AssignedAgent != nil {
			_ = o.registry.Unbind(*wi.AssignedAgent)
		}
		if err := o.queue.Requeue(ctx, id); err != nil {
			return fmt.Errorf("requeuing stuck item %s: %w", id, err)
		}
	}
	return nil
}

func agentOf(wi models.WorkItem) ids.AgentId {
	if wi.AssignedAgent != nil {
		return *wi.AssignedAgent
	}
	return ids.AgentId{}
}

// effectiveTimeout returns the activity timeout for an item currently in
// phase, applying any configured per-phase-pair multiplier (e.g.
// Plan→Artifacts x2). Multipliers are keyed "<phase>_to_<next>",
// matching pkg/config.Config.ActivityTimeoutFor's convention (e.g.
// "plan_to_artifacts").
func (o *Orchestrator) effectiveTimeout(phase models.Phase) time.Duration {
	next, ok := phase.Next()
	if !ok {
		return o.activityTimeout
	}
	key := fmt.Sprintf("%s_to_%s", phase, next)
	mult, ok := o.phaseTimeoutMultipliers[key]
	if !ok {
		return o.activityTimeout
	}
	return time.Duration(float64(o.activityTimeout) * mult)
}

// tarjanSCC runs Tarjan's strongly-connected-components algorithm over
// the wait-for graph of items, where an edge A -> B exists iff
// A.Dependencies contains B. No third-party graph library in the
// retrieved pack implements SCC detection (gammazero/
// toposort, wired in pkg/workqueue, only reports acyclic-or-not), so this
// is a direct, justified stdlib implementation of a named, fixed
// algorithm rather than a general-purpose graph abstraction.
func tarjanSCC(items []models.WorkItem) [][]ids.WorkItemId {
	adj := make(map[ids.WorkItemId][]ids.WorkItemId, len(items))
	present := make(map[ids.WorkItemId]bool, len(items))
	for _, wi := range items {
		present[wi.ID] = true
	}
	for _, wi := range items {
		for _, dep := range wi.Dependencies {
			if present[dep] {
				adj[wi.ID] = append(adj[wi.ID], dep)
			}
		}
	}

	t := &tarjan{
		index:   make(map[ids.WorkItemId]int),
		lowlink: make(map[ids.WorkItemId]int),
		onStack: make(map[ids.WorkItemId]bool),
		adj:     adj,
	}
	for _, wi := range items {
		if _, visited := t.index[wi.ID]; !visited {
			t.strongConnect(wi.ID)
		}
	}
	return t.result
}

type tarjan struct {
	counter int
	index   map[ids.WorkItemId]int
	lowlink map[ids.WorkItemId]int
	onStack map[ids.WorkItemId]bool
	stack   []ids.WorkItemId
	adj     map[ids.WorkItemId][]ids.WorkItemId
	result  [][]ids.WorkItemId
}

func (t *tarjan) strongConnect(v ids.WorkItemId) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.adj[v] {
		if _, visited := t.index[w]; !visited {
			t.strongConnect(w)
			if t.lowlink[w] < t.lowlink[v] {
				t.lowlink[v] = t.lowlink[w]
			}
		} else if t.onStack[w] {
			if t.index[w] < t.lowlink[v] {
				t.lowlink[v] = t.index[w]
			}
		}
	}

	if t.lowlink[v] == t.index[v] {
		var scc []ids.WorkItemId
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		t.result = append(t.result, scc)
	}
}


