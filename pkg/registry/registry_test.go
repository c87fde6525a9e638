package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
)

func TestRegisterAndListAlive(t *testing.T) {
	r := New()
	id := r.Register(models.RoleExecutor, []string{"go", "python"})

	alive := r.ListAlive(models.RoleExecutor)
	require.Len(t, alive, 1)
	assert.Equal(t, id, alive[0].ID)
	assert.Equal(t, models.StatusIdle, alive[0].Status)

	assert.Empty(t, r.ListAlive(models.RoleReviewer))
}

func TestHeartbeatResurrectsFailedAgent(t *testing.T) {
	r := New()
	id := r.Register(models.RoleOptimizer, nil)
	require.NoError(t, r.MarkFailed(id))

	agent, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, agent.Status)

	require.NoError(t, r.Heartbeat(id))
	agent, err = r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusIdle, agent.Status)
}

func TestBindAndUnbind(t *testing.T) {
	r := New()
	agentID := r.Register(models.RoleExecutor, nil)
	workID := ids.NewWorkItemId()

	require.NoError(t, r.Bind(agentID, workID))
	agent, err := r.Get(agentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBusy, agent.Status)
	require.NotNil(t, agent.CurrentWork)
	assert.Equal(t, workID, *agent.CurrentWork)

	require.NoError(t, r.Unbind(agentID))
	agent, err = r.Get(agentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusIdle, agent.Status)
	assert.Nil(t, agent.CurrentWork)
}

func TestOperationsOnUnknownAgentReturnErrAgentNotFound(t *testing.T) {
	r := New()
	unknown := ids.NewAgentId()

	assert.ErrorIs(t, r.Heartbeat(unknown), ErrAgentNotFound)
	assert.ErrorIs(t, r.Bind(unknown, ids.NewWorkItemId()), ErrAgentNotFound)
	assert.ErrorIs(t, r.Unbind(unknown), ErrAgentNotFound)
	assert.ErrorIs(t, r.MarkFailed(unknown), ErrAgentNotFound)
	_, err := r.Get(unknown)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestListAliveExcludesStaleHeartbeats(t *testing.T) {
	r := New()
	id := r.Register(models.RoleExecutor, nil)

	r.mu.Lock()
	agent := r.agents[id]
	agent.LastHeartbeat = time.Now().UTC().Add(-models.HeartbeatStaleness - time.Second)
	r.agents[id] = agent
	r.mu.Unlock()

	assert.Empty(t, r.ListAlive(models.RoleExecutor))
}

func TestIdleAgentFindsOnlyIdleNonStale(t *testing.T) {
	r := New()
	busy := r.Register(models.RoleExecutor, nil)
	require.NoError(t, r.Bind(busy, ids.NewWorkItemId()))
	idle := r.Register(models.RoleExecutor, nil)

	agent, ok := r.IdleAgent(models.RoleExecutor)
	require.True(t, ok)
	assert.Equal(t, idle, agent.ID)
}

func TestSweepStaleRequeuesBoundWorkAndMarksFailed(t *testing.T) {
	r := New()
	id := r.Register(models.RoleExecutor, nil)
	workID := ids.NewWorkItemId()
	require.NoError(t, r.Bind(id, workID))

	r.mu.Lock()
	agent := r.agents[id]
	agent.LastHeartbeat = time.Now().UTC().Add(-models.HeartbeatStaleness - time.Second)
	r.agents[id] = agent
	r.mu.Unlock()

	swept := r.SweepStale()
	require.Len(t, swept, 1)
	assert.Equal(t, id, swept[0].AgentID)
	require.NotNil(t, swept[0].BoundWorkItem)
	assert.Equal(t, workID, *swept[0].BoundWorkItem)

	agent, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, agent.Status)
	assert.Nil(t, agent.CurrentWork)

	// A second sweep finds nothing new — already Failed agents are skipped.
	assert.Empty(t, r.SweepStale())
}


