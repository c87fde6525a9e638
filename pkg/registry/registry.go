// Package registry implements the Agent Registry (C3): identities,
// roles, liveness, and current-assignment bindings. Unlike
// Storage-backed components, the registry is purely in-memory: it has
// no table of its own and is not rebuilt from the event log, so a
// restarted process starts with an empty registry and registers its
// agents afresh.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
)

// ErrAgentNotFound is returned by operations addressing an unknown AgentId.
var ErrAgentNotFound = errors.New("registry: agent not found")

// Registry is the in-process, mutex-guarded table of registered agents.
type Registry struct {
	mu     sync.RWMutex
	agents map[ids.AgentId]models.Agent
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{agents: make(map[ids.AgentId]models.Agent)}
}

// Register adds a new agent in Idle status and returns its id.
func (r *Registry) Register(role models.Role, capabilities []string) ids.AgentId {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := ids.NewAgentId()
	now := time.Now().UTC()
	r.agents[id] = models.Agent{
		ID:            id,
		Role:          role,
		Status:        models.StatusIdle,
		Capabilities:  capabilities,
		LastHeartbeat: now,
		RegisteredAt:  now,
	}
	return id
}

// Heartbeat refreshes last_heartbeat for id. A Failed agent is
// resurrected to Idle by a heartbeat.
func (r *Registry) Heartbeat(id ids.AgentId) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	agent.LastHeartbeat = time.Now().UTC()
	if agent.Status == models.StatusFailed {
		agent.Status = models.StatusIdle
	}
	r.agents[id] = agent
	return nil
}

// Bind assigns work_item_id to agent_id and marks the agent Busy.
func (r *Registry) Bind(id ids.AgentId, workItemID ids.WorkItemId) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	agent.CurrentWork = &workItemID
	agent.Status = models.StatusBusy
	r.agents[id] = agent
	return nil
}

// Unbind clears agent_id's current assignment and returns it to Idle.
func (r *Registry) Unbind(id ids.AgentId) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	agent.CurrentWork = nil
	if agent.Status != models.StatusFailed {
		agent.Status = models.StatusIdle
	}
	r.agents[id] = agent
	return nil
}

// MarkFailed transitions an agent to Failed, clearing its assignment —
// used by the stale-agent sweep.
func (r *Registry) MarkFailed(id ids.AgentId) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	agent.Status = models.StatusFailed
	agent.CurrentWork = nil
	r.agents[id] = agent
	return nil
}

// Get returns a defensive copy of the agent identified by id.
func (r *Registry) Get(id ids.AgentId) (models.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[id]
	if !ok {
		return models.Agent{}, ErrAgentNotFound
	}
	return agent, nil
}

// ListAlive returns every agent of role whose heartbeat is not stale.
// role == "" matches every role.
func (r *Registry) ListAlive(role models.Role) []models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now().UTC()
	var out []models.Agent
	for _, agent := range r.agents {
		if role != "" && agent.Role != role {
			continue
		}
		if agent.Stale(now) {
			continue
		}
		out = append(out, agent)
	}
	return out
}

// IdleAgent returns the first Idle, non-stale agent of role, if any —
// used by the Orchestrator's dispatch loop to pair ready items with
// agents.
func (r *Registry) IdleAgent(role models.Role) (models.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now().UTC()
	for _, agent := range r.agents {
		if agent.Role == role && agent.Status == models.StatusIdle && !agent.Stale(now) {
			return agent, true
		}
	}
	return models.Agent{}, false
}

// SweepStale finds every agent whose heartbeat is stale, marks it
// Failed, and returns the work items that were bound to it so the
// caller (Orchestrator) can requeue them, moving them from InProgress
// back to Pending.
func (r *Registry) SweepStale() []SweptAgent {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	var swept []SweptAgent
	for id, agent := range r.agents {
		if agent.Status == models.StatusFailed || !agent.Stale(now) {
			continue
		}
		var boundWork *ids.WorkItemId
		if agent.CurrentWork != nil {
			wi := *agent.CurrentWork
			boundWork = &wi
		}
		agent.Status = models.StatusFailed
		agent.CurrentWork = nil
		r.agents[id] = agent
		swept = append(swept, SweptAgent{AgentID: id, BoundWorkItem: boundWork})
	}
	return swept
}

// SweptAgent describes one agent moved to Failed by SweepStale, along
// with the work item (if any) that was bound to it.
type SweptAgent struct {
	AgentID       ids.AgentId
	BoundWorkItem *ids.WorkItemId
}


