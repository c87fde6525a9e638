// Package coordination implements the cross-process coordination
// directory: an HMAC-signed process registry so multiple instances
// of the core sharing one project can see each other, an optional branch
// registry for version-control-workspace coordination, and a bounded
// file-based message queue for at-least-once cross-instance notifications.
//
// Every read-modify-write against a registry file is performed under an
// advisory OS file lock (github.com/gofrs/flock) with a 5 s acquisition
// ceiling, matching the RegistryLocked error kind's recovery policy.
package coordination

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
)

// StaleThreshold is how long a process_registry or branch_registry entry
// may go without a heartbeat refresh before it is considered abandoned and
// eligible for garbage collection.
const StaleThreshold = 30 * time.Second

// LockTimeout bounds how long Dir.withLock waits to acquire the advisory
// file lock before giving up.
const LockTimeout = 5 * time.Second

// lockPollInterval is how often withLock retries TryLockContext while
// waiting for LockTimeout to elapse.
const lockPollInterval = 50 * time.Millisecond

// ProcessEntry is one row of process_registry.json: the presence and
// liveness of a single running instance of the core.
type ProcessEntry struct {
	InstanceID    ids.InstanceId `json:"instance_id"`
	PID           int            `json:"pid"`
	StartedAt     time.Time      `json:"started_at"`
	APIPort       int            `json:"api_port"`
	LastHeartbeat time.Time      `json:"last_heartbeat"`
	Signature     string         `json:"signature"`
}

// Stale reports whether e's last heartbeat is older than StaleThreshold as
// of now.
func (e ProcessEntry) Stale(now time.Time) bool {
	return now.Sub(e.LastHeartbeat) > StaleThreshold
}

// BranchEntry is one row of the optional branch_registry.json: which
// instance currently holds a version-control branch, and why.
type BranchEntry struct {
	Branch     string         `json:"branch"`
	Holder     ids.InstanceId `json:"holder"`
	Intent     string         `json:"intent"`
	TimeoutAt  time.Time      `json:"timeout_at"`
	FilesScope []string       `json:"files_scope"`
}

// Expired reports whether e's hold has passed its own declared timeout.
func (e BranchEntry) Expired(now time.Time) bool {
	return now.After(e.TimeoutAt)
}

// Dir is the coordination directory rooted at Path, holding
// process_registry.json, the optional branch_registry.json, and the
// coordination_queue/ subdirectory.
type Dir struct {
	Path   string
	Secret []byte
}

// New returns a Dir rooted at path, creating it (and coordination_queue/)
// with owner-only permissions if it does not already exist.
func New(path string, secret []byte) (*Dir, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(path, "coordination_queue"), 0o700); err != nil {
		return nil, err
	}
	return &Dir{Path: path, Secret: secret}, nil
}

func (d *Dir) processRegistryPath() string {
	return filepath.Join(d.Path, "process_registry.json")
}

func (d *Dir) branchRegistryPath() string {
	return filepath.Join(d.Path, "branch_registry.json")
}

func (d *Dir) queueDir() string {
	return filepath.Join(d.Path, "coordination_queue")
}

// readJSON loads and unmarshals path into out, returning a zero value
// (via out being left untouched) if the file does not yet exist.
func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// writeJSONAtomic marshals v and writes it to path via a temp-file-plus-
// rename so concurrent readers never observe a partial write, with
// owner-only permissions.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ErrLockTimeout is returned by withLock when the advisory file lock is
// not acquired within LockTimeout.
var ErrLockTimeout = errors.New("coordination: lock acquisition timed out")

// withLock acquires an advisory OS file lock on path+".lock" for atomic
// read-modify-write, runs fn, then releases it.
func (d *Dir) withLock(ctx context.Context, path string, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, LockTimeout)
	defer cancel()

	fl := flock.New(path + ".lock")
	locked, err := fl.TryLockContext(lockCtx, lockPollInterval)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	if !locked {
		return ErrLockTimeout
	}
	defer fl.Unlock()

	return fn()
}

// sign computes the HMAC-SHA256 signature authenticating e's mutable
// fields against d.Secret. Signature itself is excluded from the signed
// payload.
func (d *Dir) sign(e ProcessEntry) string {
	e.Signature = ""
	mac := hmac.New(sha256.New, d.Secret)
	_ = json.NewEncoder(mac).Encode(e)
	return hex.EncodeToString(mac.Sum(nil))
}

// verify reports whether e's signature matches what d.sign would compute,
// i.e. the entry was written by a process holding the shared secret.
func (d *Dir) verify(e ProcessEntry) bool {
	want := d.sign(e)
	return hmac.Equal([]byte(want), []byte(e.Signature))
}

type processRegistry struct {
	Entries map[string]ProcessEntry `json:"entries"`
}

// readProcessRegistry loads process_registry.json, silently dropping any
// entry whose signature doesn't verify or whose heartbeat is stale.
// Callers needing every valid entry should use ListAlive;
// this helper additionally returns the set of instance ids that were
// dropped, so RegisterProcess/Heartbeat can rewrite a cleaned file.
func (d *Dir) readProcessRegistry() (processRegistry, []string) {
	var reg processRegistry
	_ = readJSON(d.processRegistryPath(), &reg)
	if reg.Entries == nil {
		reg.Entries = make(map[string]ProcessEntry)
	}
	now := time.Now().UTC()
	var dropped []string
	for key, e := range reg.Entries {
		if !d.verify(e) || e.Stale(now) {
			delete(reg.Entries, key)
			dropped = append(dropped, key)
		}
	}
	return reg, dropped
}

// RegisterProcess writes entry into process_registry.json, signed with
// d.Secret, garbage-collecting any stale or unsigned entries it finds
// along the way.
func (d *Dir) RegisterProcess(ctx context.Context, entry ProcessEntry) error {
	return d.withLock(ctx, d.processRegistryPath(), func() error {
		reg, _ := d.readProcessRegistry()
		entry.Signature = d.sign(entry)
		reg.Entries[entry.InstanceID.String()] = entry
		return writeJSONAtomic(d.processRegistryPath(), reg)
	})
}

// Heartbeat refreshes instanceID's last_heartbeat and re-signs its
// entry. It is a no-op error if the instance has no existing entry —
// callers register once at startup and heartbeat repeatedly thereafter.
func (d *Dir) Heartbeat(ctx context.Context, instanceID ids.InstanceId) error {
	return d.withLock(ctx, d.processRegistryPath(), func() error {
		reg, _ := d.readProcessRegistry()
		key := instanceID.String()
		entry, ok := reg.Entries[key]
		if !ok {
			return fmt.Errorf("coordination: heartbeat: no registered entry for instance %s", instanceID)
		}
		entry.LastHeartbeat = time.Now().UTC()
		entry.Signature = d.sign(entry)
		reg.Entries[key] = entry
		return writeJSONAtomic(d.processRegistryPath(), reg)
	})
}

// Deregister removes instanceID's entry, used during graceful shutdown.
func (d *Dir) Deregister(ctx context.Context, instanceID ids.InstanceId) error {
	return d.withLock(ctx, d.processRegistryPath(), func() error {
		reg, _ := d.readProcessRegistry()
		delete(reg.Entries, instanceID.String())
		return writeJSONAtomic(d.processRegistryPath(), reg)
	})
}

// ListAlive returns every process_registry entry that is signed and not
// stale, sorted by InstanceID for deterministic output (e.g. `doctor`).
func (d *Dir) ListAlive(ctx context.Context) ([]ProcessEntry, error) {
	var out []ProcessEntry
	err := d.withLock(ctx, d.processRegistryPath(), func() error {
		reg, _ := d.readProcessRegistry()
		for _, e := range reg.Entries {
			out = append(out, e)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID.String() < out[j].InstanceID.String() })
	return out, err
}

// SweepStale removes every stale or unsigned process_registry entry and
// returns how many were removed, for the `doctor` CLI command.
func (d *Dir) SweepStale(ctx context.Context) (int, error) {
	removed := 0
	err := d.withLock(ctx, d.processRegistryPath(), func() error {
		reg, dropped := d.readProcessRegistry()
		// readProcessRegistry already dropped stale/unsigned entries in
		// memory; persist that cleaned view back to disk.
		if err := writeJSONAtomic(d.processRegistryPath(), reg); err != nil {
			return err
		}
		removed = len(dropped)
		return nil
	})
	return removed, err
}

type branchRegistry struct {
	Entries map[string]BranchEntry `json:"entries"`
}

func (d *Dir) readBranchRegistry() branchRegistry {
	var reg branchRegistry
	_ = readJSON(d.branchRegistryPath(), &reg)
	if reg.Entries == nil {
		reg.Entries = make(map[string]BranchEntry)
	}
	now := time.Now().UTC()
	for branch, e := range reg.Entries {
		if e.Expired(now) {
			delete(reg.Entries, branch)
		}
	}
	return reg
}

// ErrBranchHeld is returned by AcquireBranch when another live instance
// already holds the requested branch.
var ErrBranchHeld = errors.New("coordination: branch already held")

// AcquireBranch claims branch for holder until timeoutAt, failing with
// ErrBranchHeld if another instance holds it and hasn't expired.
func (d *Dir) AcquireBranch(ctx context.Context, branch string, holder ids.InstanceId, intent string, timeoutAt time.Time, filesScope []string) error {
	return d.withLock(ctx, d.branchRegistryPath(), func() error {
		reg := d.readBranchRegistry()
		if existing, ok := reg.Entries[branch]; ok && existing.Holder != holder {
			return ErrBranchHeld
		}
		reg.Entries[branch] = BranchEntry{
			Branch:     branch,
			Holder:     holder,
			Intent:     intent,
			TimeoutAt:  timeoutAt,
			FilesScope: filesScope,
		}
		return writeJSONAtomic(d.branchRegistryPath(), reg)
	})
}

// ReleaseBranch releases branch if holder currently holds it; releasing a
// branch held by someone else (or not held at all) is a no-op.
func (d *Dir) ReleaseBranch(ctx context.Context, branch string, holder ids.InstanceId) error {
	return d.withLock(ctx, d.branchRegistryPath(), func() error {
		reg := d.readBranchRegistry()
		if existing, ok := reg.Entries[branch]; ok && existing.Holder == holder {
			delete(reg.Entries, branch)
		}
		return writeJSONAtomic(d.branchRegistryPath(), reg)
	})
}

// maxQueueRecordBytes bounds each coordination-queue record to 1 KB.
const maxQueueRecordBytes = 1024

// ErrRecordTooLarge is returned by Enqueue when the marshaled record
// exceeds maxQueueRecordBytes.
var ErrRecordTooLarge = errors.New("coordination: queue record exceeds 1KB bound")

// Enqueue writes record as a new file under coordination_queue/, named by
// a fresh EventId so concurrent producers never collide.
func (d *Dir) Enqueue(record any) (ids.EventId, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return ids.EventId{}, err
	}
	if len(data) > maxQueueRecordBytes {
		return ids.EventId{}, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, len(data))
	}
	id := ids.NewEventId()
	path := filepath.Join(d.queueDir(), id.String()+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return ids.EventId{}, err
	}
	return id, nil
}

// QueueRecord is one polled coordination-queue entry: its raw payload and
// the id needed to Ack it.
type QueueRecord struct {
	ID      ids.EventId
	Payload json.RawMessage
}

// Poll lists every pending record in coordination_queue/, sorted by id
// (which is time-ordered). Records are delivered at-least-once: a
// consumer must call Ack after processing, and must tolerate seeing the
// same record again if it crashes first — idempotency is the consumer's
// responsibility.
func (d *Dir) Poll() ([]QueueRecord, error) {
	entries, err := os.ReadDir(d.queueDir())
	if err != nil {
		return nil, err
	}
	var out []QueueRecord
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		id, err := ids.ParseEventId(name)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.queueDir(), e.Name()))
		if err != nil {
			continue
		}
		out = append(out, QueueRecord{ID: id, Payload: data})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out, nil
}

// Ack removes a record from the coordination queue once its consumer has
// finished processing it.
func (d *Dir) Ack(id ids.EventId) error {
	err := os.Remove(filepath.Join(d.queueDir(), id.String()+".json"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}


