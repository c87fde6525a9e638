package optimizer

import (
	"context"
	"log/slog"
	"sort"

	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
)

// recallResult carries the subset of fields PrepareContext needs out of
// a models.SearchResult without re-exporting Storage's query shape.
type recallResult struct {
	Memory    models.MemoryNote
	Relevance float64
}

// recallMemories implements the memory_recall half of prepare_context:
// query Storage in namespace-priority order (session, project, global),
// ranked by the hybrid score already applied by Storage.Search. On any
// Storage error it falls back to the deterministic "most recent +
// highest importance" ordering and reports fallback=true so the caller
// can log it.
func (o *Optimizer) recallMemories(ctx context.Context, wi *models.WorkItem) ([]recallResult, bool, error) {
	const recallLimit = 20

	ns := wi.Namespace
	results, err := o.store.Search(ctx, models.SearchQuery{
		Query:     wi.Spec.Intent,
		Namespace: &ns,
		Limit:     recallLimit,
	})
	if err == nil {
		out := make([]recallResult, 0, len(results))
		for _, r := range results {
			out = append(out, recallResult{Memory: r.Memory, Relevance: r.Relevance})
		}
		return out, false, nil
	}
	slog.Warn("optimizer: memory search failed, falling back to recency+importance", "work_item_id", wi.ID, "error", err)

	recent, fbErr := o.store.ListRecent(ctx, ns, recallLimit)
	if fbErr != nil {
		return nil, true, fbErr
	}
	sort.SliceStable(recent, func(i, j int) bool {
		ii := recent[i].DecayedImportance(recent[i].UpdatedAt)
		jj := recent[j].DecayedImportance(recent[j].UpdatedAt)
		if ii != jj {
			return ii > jj
		}
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	if len(recent) > recallLimit {
		recent = recent[:recallLimit]
	}
	out := make([]recallResult, 0, len(recent))
	for _, m := range recent {
		out = append(out, recallResult{Memory: m, Relevance: m.DecayedImportance(m.UpdatedAt)})
	}
	return out, true, nil
}


