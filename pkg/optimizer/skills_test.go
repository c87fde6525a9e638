package optimizer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne-ai/mnemosyne/pkg/llmclient/llmclienttest"
)

type staticCatalog struct {
	skills []Skill
	err    error
}

func (c staticCatalog) List() ([]Skill, error) { return c.skills, c.err }

func TestDiscoverSkills_UsesLlmResultWhenAvailable(t *testing.T) {
	catalog := staticCatalog{skills: []Skill{
		{Name: "go-testing", Keywords: []string{"go", "testing"}},
		{Name: "sql-migrations", Keywords: []string{"sql", "migrations"}},
	}}
	llm := llmclienttest.New()
	llm.Enqueue("optimizer.discover_skills", llmclienttest.Response{
		Output: map[string]any{
			"skills":           []any{"sql-migrations"},
			"estimated_tokens": float64(200),
		},
	})
	o := New(nil, llm, nil, catalog, 3, nil)

	sel, err := o.DiscoverSkills(context.Background(), "write a migration", 3, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"sql-migrations"}, sel.Skills)
	assert.Equal(t, 200, sel.EstimatedTokens)
}

func TestDiscoverSkills_FallsBackToKeywordMatchOnLlmError(t *testing.T) {
	catalog := staticCatalog{skills: []Skill{
		{Name: "go-testing", Keywords: []string{"go", "testing"}},
		{Name: "sql-migrations", Keywords: []string{"sql", "migrations"}},
	}}
	llm := llmclienttest.New() // nothing enqueued -> Call errors
	o := New(nil, llm, nil, catalog, 3, nil)

	sel, err := o.DiscoverSkills(context.Background(), "write a sql migration", 3, 0)
	require.NoError(t, err)
	require.NotEmpty(t, sel.Skills)
	assert.Equal(t, "sql-migrations", sel.Skills[0])
}

func TestDiscoverSkills_NoLlmClientUsesKeywordMatch(t *testing.T) {
	catalog := staticCatalog{skills: []Skill{
		{Name: "go-testing", Keywords: []string{"go", "testing"}},
	}}
	o := New(nil, nil, nil, catalog, 3, nil)

	sel, err := o.DiscoverSkills(context.Background(), "go testing help", 3, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"go-testing"}, sel.Skills)
}

func TestDiscoverSkills_EmptyCatalogReturnsEmptySelection(t *testing.T) {
	o := New(nil, nil, nil, staticCatalog{}, 3, nil)

	sel, err := o.DiscoverSkills(context.Background(), "anything", 3, 0)
	require.NoError(t, err)
	assert.Empty(t, sel.Skills)
}

func TestDiscoverSkills_CatalogErrorPropagates(t *testing.T) {
	o := New(nil, nil, nil, staticCatalog{err: errors.New("boom")}, 3, nil)

	_, err := o.DiscoverSkills(context.Background(), "anything", 3, 0)
	assert.Error(t, err)
}

func TestDirCatalog_MissingRootReturnsEmpty(t *testing.T) {
	c := DirCatalog{Root: "/nonexistent/path/for/mnemosyne/tests"}
	skills, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, skills)
}


