// Package storagetest provides an in-memory fake of the Storage
// capability for exercising components that depend on it without a real
// sqlite database: an in-memory fake, not a mocking library, mirroring
// pkg/llmclient/llmclienttest.
package storagetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
	"github.com/mnemosyne-ai/mnemosyne/pkg/storage"
)

// Fake is an in-memory Storage. It is not safe to share between
// concurrent tests expecting distinct namespaces, but is safe for
// concurrent use within one test via its internal mutex.
type Fake struct {
	mu        sync.Mutex
	memories  map[ids.MemoryId]models.MemoryNote
	links     []models.MemoryLink
	events    []models.Event
	workItems map[ids.WorkItemId]models.WorkItem

	// FailNextAppend, when > 0, makes the next N AppendEvent calls return
	// storage.ErrStorage — used to exercise eventlog's retry/degraded path.
	FailNextAppend int
}

// New constructs an empty Fake.
func New() *Fake {
	return &Fake{
		memories:  make(map[ids.MemoryId]models.MemoryNote),
		workItems: make(map[ids.WorkItemId]models.WorkItem),
	}
}

func (f *Fake) Close() error { return nil }

func (f *Fake) StoreMemory(_ context.Context, note models.MemoryNote) (ids.MemoryId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if note.ID.IsZero() {
		note.ID = ids.NewMemoryId()
	}
	f.memories[note.ID] = note
	return note.ID, nil
}

func (f *Fake) GetMemory(_ context.Context, id ids.MemoryId) (models.MemoryNote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	note, ok := f.memories[id]
	if !ok {
		return models.MemoryNote{}, storage.ErrNotFound
	}
	note.AccessCount++
	f.memories[id] = note
	return note, nil
}

func (f *Fake) UpdateMemory(_ context.Context, id ids.MemoryId, patch storage.Partial) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	note, ok := f.memories[id]
	if !ok {
		return storage.ErrNotFound
	}
	if patch.Content != nil {
		note.Content = *patch.Content
	}
	if patch.Importance != nil {
		note.Importance = *patch.Importance
	}
	if patch.Tags != nil {
		note.Tags = patch.Tags
	}
	if patch.Archived != nil {
		note.Archived = *patch.Archived
	}
	f.memories[id] = note
	return nil
}

func (f *Fake) ArchiveMemory(_ context.Context, id ids.MemoryId, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	note, ok := f.memories[id]
	if !ok {
		return storage.ErrNotFound
	}
	note.Archived = true
	note.ArchiveReason = reason
	f.memories[id] = note
	return nil
}

func (f *Fake) ListRecent(_ context.Context, ns ids.Namespace, limit int) ([]models.MemoryNote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MemoryNote
	for _, n := range f.memories {
		if n.Namespace == ns && !n.Archived {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Fake) Search(_ context.Context, q models.SearchQuery) ([]models.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SearchResult
	for _, n := range f.memories {
		if n.Archived && !q.IncludeArchived {
			continue
		}
		if q.Namespace != nil && !n.Namespace.Visible(*q.Namespace) {
			continue
		}
		out = append(out, models.SearchResult{Memory: n, Relevance: n.Importance})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Relevance > out[j].Relevance })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *Fake) Link(_ context.Context, source, target ids.MemoryId, kind string, strength float64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, models.MemoryLink{Source: source, Target: target, Kind: kind, Strength: strength, Reason: reason})
	return nil
}

func (f *Fake) Neighbors(_ context.Context, id ids.MemoryId, depth int, minStrength float64) ([]ids.MemoryId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[ids.MemoryId]bool{id: true}
	frontier := []ids.MemoryId{id}
	var out []ids.MemoryId
	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []ids.MemoryId
		for _, node := range frontier {
			for _, l := range f.links {
				if l.Strength < minStrength {
					continue
				}
				var other ids.MemoryId
				switch {
				case l.Source == node:
					other = l.Target
				case l.Target == node:
					other = l.Source
				default:
					continue
				}
				if !seen[other] {
					seen[other] = true
					out = append(out, other)
					next = append(next, other)
				}
			}
		}
		frontier = next
	}
	return out, nil
}

func (f *Fake) AppendEvent(_ context.Context, ev models.Event) (ids.EventId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailNextAppend > 0 {
		f.FailNextAppend--
		return ids.EventId{}, storage.ErrStorage
	}
	if ev.EventID.IsZero() {
		ev.EventID = ids.NewEventId()
	}
	f.events = append(f.events, ev)
	return ev.EventID, nil
}

func (f *Fake) EventsSince(_ context.Context, since ids.EventId, limit int) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Event
	started := since.IsZero()
	for _, ev := range f.events {
		if started {
			out = append(out, ev)
			if limit > 0 && len(out) >= limit {
				break
			}
			continue
		}
		if ev.EventID == since {
			started = true
		}
	}
	return out, nil
}

func (f *Fake) CreateWorkItem(_ context.Context, wi models.WorkItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	if wi.CreatedAt.IsZero() {
		wi.CreatedAt = now
	}
	wi.UpdatedAt = now
	f.workItems[wi.ID] = wi
	return nil
}

func (f *Fake) GetWorkItem(_ context.Context, id ids.WorkItemId) (models.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wi, ok := f.workItems[id]
	if !ok {
		return models.WorkItem{}, storage.ErrNotFound
	}
	return wi, nil
}

func (f *Fake) UpdateWorkItem(_ context.Context, wi models.WorkItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.workItems[wi.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if wi.CreatedAt.IsZero() {
		wi.CreatedAt = existing.CreatedAt
	}
	wi.UpdatedAt = time.Now().UTC()
	f.workItems[wi.ID] = wi
	return nil
}

func (f *Fake) ListWorkItems(_ context.Context, ns ids.Namespace, states []models.State) ([]models.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	allowed := make(map[models.State]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	var out []models.WorkItem
	for _, wi := range f.workItems {
		if wi.Namespace != ns {
			continue
		}
		if len(allowed) > 0 && !allowed[wi.State] {
			continue
		}
		out = append(out, wi)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (f *Fake) ListActiveNamespaces(_ context.Context) ([]ids.Namespace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]ids.Namespace)
	for _, wi := range f.workItems {
		if wi.State.Terminal() {
			continue
		}
		seen[wi.Namespace.String()] = wi.Namespace
	}
	out := make([]ids.Namespace, 0, len(seen))
	for _, ns := range seen {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

var _ storage.Storage = (*Fake)(nil)


