// Package storage defines the Storage capability the orchestration core
// depends on and an embedded sqlite implementation of it. The core
// treats Storage as an interface boundary: it does not prescribe FTS
// or vector-index internals, only the operations and failure semantics
// below.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
)

// ErrNotFound is returned by single-entity lookups when no row matches.
var ErrNotFound = errors.New("storage: not found")

// ErrStorage wraps any backing-store failure (connection loss, disk
// error, constraint violation the caller couldn't have prevented). Core
// components retry against ErrStorage and enter degraded mode (reads
// allowed, writes refused) on persistent failure.
var ErrStorage = errors.New("storage: backing store failure")

// Partial is a sparse update: only non-nil fields are applied, for
// PATCH-style mutation.
type Partial struct {
	Content    *string
	Importance *float64
	Tags       []string
	Archived   *bool
}

// Storage is the capability the core (C1, C5, C6 memory recall, the
// submission interface) drives every durable read and write through. A
// single process instance owns one Storage; cross-process coordination
// is a separate concern (pkg/coordination), not part of this interface.
type Storage interface {
	// Memory operations.
	StoreMemory(ctx context.Context, note models.MemoryNote) (ids.MemoryId, error)
	GetMemory(ctx context.Context, id ids.MemoryId) (models.MemoryNote, error)
	UpdateMemory(ctx context.Context, id ids.MemoryId, patch Partial) error
	ArchiveMemory(ctx context.Context, id ids.MemoryId, reason string) error
	ListRecent(ctx context.Context, ns ids.Namespace, limit int) ([]models.MemoryNote, error)
	Search(ctx context.Context, q models.SearchQuery) ([]models.SearchResult, error)
	Link(ctx context.Context, source, target ids.MemoryId, kind string, strength float64, reason string) error
	Neighbors(ctx context.Context, id ids.MemoryId, depth int, minStrength float64) ([]ids.MemoryId, error)

	// Event log operations.
	AppendEvent(ctx context.Context, ev models.Event) (ids.EventId, error)
	EventsSince(ctx context.Context, since ids.EventId, limit int) ([]models.Event, error)

	// Work item CRUD.
	CreateWorkItem(ctx context.Context, wi models.WorkItem) error
	GetWorkItem(ctx context.Context, id ids.WorkItemId) (models.WorkItem, error)
	UpdateWorkItem(ctx context.Context, wi models.WorkItem) error
	ListWorkItems(ctx context.Context, ns ids.Namespace, states []models.State) ([]models.WorkItem, error)

	// ListActiveNamespaces returns every distinct namespace with at least
	// one non-terminal work item, so a freshly started process can
	// rediscover the namespaces an earlier process instance was driving
	// and resume dispatch without the submitter re-issuing anything.
	ListActiveNamespaces(ctx context.Context) ([]ids.Namespace, error)

	// Close releases the underlying connection(s).
	Close() error
}

// wrapStorageErr normalizes a driver error into ErrStorage, preserving
// the original for %w unwrapping and log detail.
func wrapStorageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStorage, err)
}


