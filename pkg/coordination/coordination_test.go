package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
)

func newTestDir(t *testing.T) *Dir {
	t.Helper()
	d, err := New(t.TempDir(), []byte("shared-secret"))
	require.NoError(t, err)
	return d
}

func TestRegisterProcessAndListAlive(t *testing.T) {
	d := newTestDir(t)
	ctx := context.Background()
	instanceID := ids.NewInstanceId()

	err := d.RegisterProcess(ctx, ProcessEntry{
		InstanceID:    instanceID,
		PID:           1234,
		StartedAt:     time.Now().UTC(),
		APIPort:       3000,
		LastHeartbeat: time.Now().UTC(),
	})
	require.NoError(t, err)

	alive, err := d.ListAlive(ctx)
	require.NoError(t, err)
	require.Len(t, alive, 1)
	assert.Equal(t, instanceID, alive[0].InstanceID)
	assert.NotEmpty(t, alive[0].Signature)
}

func TestListAliveDropsUnsignedAndStaleEntries(t *testing.T) {
	d := newTestDir(t)
	ctx := context.Background()

	forged := ProcessEntry{
		InstanceID:    ids.NewInstanceId(),
		LastHeartbeat: time.Now().UTC(),
		Signature:     "not-a-real-signature",
	}
	require.NoError(t, d.withLock(ctx, d.processRegistryPath(), func() error {
		reg := processRegistry{Entries: map[string]ProcessEntry{forged.InstanceID.String(): forged}}
		return writeJSONAtomic(d.processRegistryPath(), reg)
	}))

	stale := ProcessEntry{InstanceID: ids.NewInstanceId(), LastHeartbeat: time.Now().UTC().Add(-time.Hour)}
	require.NoError(t, d.RegisterProcess(ctx, stale))

	alive, err := d.ListAlive(ctx)
	require.NoError(t, err)
	assert.Empty(t, alive)
}

func TestHeartbeatRefreshesAndResigns(t *testing.T) {
	d := newTestDir(t)
	ctx := context.Background()
	instanceID := ids.NewInstanceId()

	require.NoError(t, d.RegisterProcess(ctx, ProcessEntry{InstanceID: instanceID, LastHeartbeat: time.Now().UTC().Add(-time.Second)}))

	require.NoError(t, d.Heartbeat(ctx, instanceID))

	alive, err := d.ListAlive(ctx)
	require.NoError(t, err)
	require.Len(t, alive, 1)
	assert.WithinDuration(t, time.Now().UTC(), alive[0].LastHeartbeat, time.Second)
}

func TestHeartbeatUnknownInstanceErrors(t *testing.T) {
	d := newTestDir(t)
	err := d.Heartbeat(context.Background(), ids.NewInstanceId())
	assert.Error(t, err)
}

func TestSweepStaleRemovesOnlyStaleEntries(t *testing.T) {
	d := newTestDir(t)
	ctx := context.Background()

	fresh := ids.NewInstanceId()
	require.NoError(t, d.RegisterProcess(ctx, ProcessEntry{InstanceID: fresh, LastHeartbeat: time.Now().UTC()}))
	stale := ids.NewInstanceId()
	require.NoError(t, d.RegisterProcess(ctx, ProcessEntry{InstanceID: stale, LastHeartbeat: time.Now().UTC().Add(-time.Hour)}))

	removed, err := d.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	alive, err := d.ListAlive(ctx)
	require.NoError(t, err)
	require.Len(t, alive, 1)
	assert.Equal(t, fresh, alive[0].InstanceID)
}

func TestDeregisterRemovesEntry(t *testing.T) {
	d := newTestDir(t)
	ctx := context.Background()
	instanceID := ids.NewInstanceId()

	require.NoError(t, d.RegisterProcess(ctx, ProcessEntry{InstanceID: instanceID, LastHeartbeat: time.Now().UTC()}))
	require.NoError(t, d.Deregister(ctx, instanceID))

	alive, err := d.ListAlive(ctx)
	require.NoError(t, err)
	assert.Empty(t, alive)
}

func TestAcquireAndReleaseBranch(t *testing.T) {
	d := newTestDir(t)
	ctx := context.Background()
	holder := ids.NewInstanceId()
	other := ids.NewInstanceId()

	err := d.AcquireBranch(ctx, "feature/x", holder, "implementing feature x", time.Now().Add(time.Hour), []string{"pkg/foo"})
	require.NoError(t, err)

	err = d.AcquireBranch(ctx, "feature/x", other, "conflicting work", time.Now().Add(time.Hour), nil)
	assert.ErrorIs(t, err, ErrBranchHeld)

	require.NoError(t, d.ReleaseBranch(ctx, "feature/x", holder))

	err = d.AcquireBranch(ctx, "feature/x", other, "now free", time.Now().Add(time.Hour), nil)
	assert.NoError(t, err)
}

func TestAcquireBranchExpiredHoldIsReclaimable(t *testing.T) {
	d := newTestDir(t)
	ctx := context.Background()
	holder := ids.NewInstanceId()
	other := ids.NewInstanceId()

	require.NoError(t, d.AcquireBranch(ctx, "feature/y", holder, "abandoned", time.Now().Add(-time.Minute), nil))
	err := d.AcquireBranch(ctx, "feature/y", other, "reclaiming", time.Now().Add(time.Hour), nil)
	assert.NoError(t, err)
}

func TestEnqueuePollAck(t *testing.T) {
	d := newTestDir(t)

	id1, err := d.Enqueue(map[string]string{"kind": "first"})
	require.NoError(t, err)
	_, err = d.Enqueue(map[string]string{"kind": "second"})
	require.NoError(t, err)

	records, err := d.Poll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.NoError(t, d.Ack(id1))
	records, err = d.Poll()
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestEnqueueRejectsOversizedRecord(t *testing.T) {
	d := newTestDir(t)
	big := make(map[string]string, 200)
	for i := 0; i < 200; i++ {
		big[string(rune('a'+i%26))+string(rune(i))] = "0123456789"
	}
	_, err := d.Enqueue(big)
	assert.ErrorIs(t, err, ErrRecordTooLarge)
}


