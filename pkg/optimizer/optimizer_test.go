package optimizer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
	"github.com/mnemosyne-ai/mnemosyne/pkg/llmclient/llmclienttest"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
	"github.com/mnemosyne-ai/mnemosyne/pkg/storage/storagetest"
)

type recordingAppender struct {
	appended []models.EventKind
}

func (r *recordingAppender) Append(_ context.Context, kind models.EventKind, _ ids.AgentId, _ *ids.WorkItemId, _ map[string]any) (ids.EventId, error) {
	r.appended = append(r.appended, kind)
	return ids.NewEventId(), nil
}

func TestPrepareContext_HappyPathWithLlmClient(t *testing.T) {
	store := storagetest.New()
	ns := ids.ProjectNamespace("acme")
	_, err := store.StoreMemory(context.Background(), models.MemoryNote{
		Namespace: ns, Title: "past decision", Content: "use postgres", Importance: 8,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	require.NoError(t, err)

	llm := llmclienttest.New()
	llm.Enqueue("optimizer.discover_skills", llmclienttest.Response{
		Output: map[string]any{"skills": []any{"go-testing"}, "estimated_tokens": float64(150)},
	})
	llm.Enqueue("optimizer.consolidate_context", llmclienttest.Response{
		Output: map[string]any{"narrative": "n", "key_issues": []any{}, "strategic_guidance": "g"},
	})

	catalog := staticCatalog{skills: []Skill{{Name: "go-testing", Keywords: []string{"go"}}}}
	appender := &recordingAppender{}
	o := New(store, llm, appender, catalog, 3, nil)

	wi := &models.WorkItem{
		ID:        ids.NewWorkItemId(),
		Namespace: ns,
		Spec:      models.Spec{Intent: "add a go test"},
		Phase:     models.PhasePrompt,
		State:     models.StatePending,
	}

	pkg, err := o.PrepareContext(context.Background(), ids.NewAgentId(), wi, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ConsolidationDetailed, pkg.Mode)
	assert.Equal(t, "n", pkg.Narrative)
	assert.Equal(t, "g", pkg.StrategicGuidance)
	assert.Equal(t, []string{"go-testing"}, pkg.Skills)
	require.Len(t, pkg.MemoryIDs, 1)
	assert.Empty(t, appender.appended) // no fallback occurred, nothing logged
}

func TestPrepareContext_ReviewAttemptSelectsConsolidationMode(t *testing.T) {
	store := storagetest.New()
	o := New(store, nil, nil, staticCatalog{}, 3, nil)

	wi := &models.WorkItem{
		ID:            ids.NewWorkItemId(),
		Namespace:     ids.Global(),
		Spec:          models.Spec{Intent: "retry"},
		ReviewAttempt: 3,
	}

	pkg, err := o.PrepareContext(context.Background(), ids.NewAgentId(), wi, nil, []string{"fix the flaky test"})
	require.NoError(t, err)
	assert.Equal(t, models.ConsolidationCompressed, pkg.Mode)
	assert.Contains(t, pkg.StrategicGuidance, "fix the flaky test")
}

func TestPrepareContext_LogsFallbackEventOnSearchFailure(t *testing.T) {
	base := storagetest.New()
	store := failingSearchStore{Storage: base}
	appender := &recordingAppender{}
	o := New(store, nil, appender, staticCatalog{}, 3, nil)

	wi := &models.WorkItem{ID: ids.NewWorkItemId(), Namespace: ids.Global(), Spec: models.Spec{Intent: "anything"}}

	_, err := o.PrepareContext(context.Background(), ids.NewAgentId(), wi, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, appender.appended, models.EventMemoryRecalled)
}

func TestPrepareContext_ExecutionMemoriesAreAppendedToPackage(t *testing.T) {
	store := storagetest.New()
	o := New(store, nil, nil, staticCatalog{}, 3, nil)
	execMem := ids.NewMemoryId()

	wi := &models.WorkItem{ID: ids.NewWorkItemId(), Namespace: ids.Global(), Spec: models.Spec{Intent: "anything"}}
	pkg, err := o.PrepareContext(context.Background(), ids.NewAgentId(), wi, []ids.MemoryId{execMem}, nil)
	require.NoError(t, err)
	assert.Contains(t, pkg.MemoryIDs, execMem)
}


