package models

import (
	"time"

	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
)

// Role is the closed set of agent roles.
type Role string

// Role values.
const (
	RoleOrchestrator Role = "orchestrator"
	RoleOptimizer    Role = "optimizer"
	RoleReviewer     Role = "reviewer"
	RoleExecutor     Role = "executor"
)

// Status is an agent's runtime status.
type Status string

// Status values.
const (
	StatusActive Status = "active"
	StatusIdle   Status = "idle"
	StatusBusy   Status = "busy"
	StatusFailed Status = "failed"
)

// HeartbeatStaleness is the threshold past which an agent's last heartbeat
// is considered stale.
const HeartbeatStaleness = 30 * time.Second

// Agent is a registered identity in the Agent Registry.
type Agent struct {
	ID             ids.AgentId
	Role           Role
	Status         Status
	CurrentWork    *ids.WorkItemId
	LastHeartbeat  time.Time
	Capabilities   []string
	RegisteredAt   time.Time
}

// Stale reports whether the agent's heartbeat is older than
// HeartbeatStaleness as of now.
func (a *Agent) Stale(now time.Time) bool {
	return now.Sub(a.LastHeartbeat) > HeartbeatStaleness
}

// HasCapability reports whether the agent declares cap among its
// capabilities.
func (a *Agent) HasCapability(cap string) bool {
	for _, c := range a.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}


