package optimizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne-ai/mnemosyne/pkg/llmclient/llmclienttest"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
)

func TestConsolidate_UsesLlmOutputWhenAvailable(t *testing.T) {
	llm := llmclienttest.New()
	llm.Enqueue("optimizer.consolidate_context", llmclienttest.Response{
		Output: map[string]any{
			"narrative":          "summary of prior work",
			"key_issues":         []any{"missing test"},
			"strategic_guidance": "add tests before resubmitting",
		},
	})
	o := New(nil, llm, nil, nil, 3, nil)
	wi := &models.WorkItem{Spec: models.Spec{Intent: "fix bug"}}

	narrative, keyIssues, guidance, err := o.consolidate(context.Background(), wi, models.ConsolidationDetailed, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "summary of prior work", narrative)
	assert.Equal(t, []string{"missing test"}, keyIssues)
	assert.Equal(t, "add tests before resubmitting", guidance)
}

func TestConsolidate_FallsBackToTemplateOnLlmError(t *testing.T) {
	llm := llmclienttest.New() // nothing queued -> errors
	o := New(nil, llm, nil, nil, 3, nil)
	wi := &models.WorkItem{Spec: models.Spec{Intent: "fix bug"}}
	recalled := []recallResult{{Memory: models.MemoryNote{Title: "t", Content: "c."}, Relevance: 1}}

	narrative, _, guidance, err := o.consolidate(context.Background(), wi, models.ConsolidationDetailed, recalled, []string{"missing test"})
	require.NoError(t, err)
	assert.Contains(t, narrative, "t")
	assert.Contains(t, guidance, "missing test")
}

func TestConsolidate_CompressedModeOmitsNarrativeProse(t *testing.T) {
	o := New(nil, nil, nil, nil, 3, nil)
	wi := &models.WorkItem{Spec: models.Spec{Intent: "fix bug"}}
	recalled := []recallResult{{Memory: models.MemoryNote{Title: "t", Content: "c."}, Relevance: 1}}

	narrative, keyIssues, _, err := o.consolidate(context.Background(), wi, models.ConsolidationCompressed, recalled, []string{"issue-a"})
	require.NoError(t, err)
	assert.Empty(t, narrative)
	assert.Equal(t, []string{"issue-a"}, keyIssues)
}

func TestConsolidate_SummaryModeTrimsToFirstSentence(t *testing.T) {
	o := New(nil, nil, nil, nil, 3, nil)
	wi := &models.WorkItem{Spec: models.Spec{Intent: "fix bug"}}
	recalled := []recallResult{{Memory: models.MemoryNote{Title: "t", Content: "First sentence. Second sentence."}, Relevance: 1}}

	narrative, _, _, err := o.consolidate(context.Background(), wi, models.ConsolidationSummary, recalled, nil)
	require.NoError(t, err)
	assert.Contains(t, narrative, "First sentence.")
	assert.NotContains(t, narrative, "Second sentence.")
}


