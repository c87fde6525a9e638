// Package optimizer implements the Optimizer (C5): per-item context
// packages combining skill selection, memory recall, and budget
// allocation, with progressive consolidation across review attempts.
package optimizer

import (
	"context"
	"log/slog"

	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
	"github.com/mnemosyne-ai/mnemosyne/pkg/llmclient"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
	"github.com/mnemosyne-ai/mnemosyne/pkg/storage"
)

// Schema refs registered with the shared llmclient.SchemaRegistry at
// startup. Every LlmClient caller addresses its calls by a fixed
// per-operation schema, not just the Reviewer.
const (
	SchemaDiscoverSkills     = "optimizer.discover_skills"
	SchemaConsolidateContext = "optimizer.consolidate_context"
)

// EventAppender is the narrow slice of eventlog.EventLog the Optimizer
// needs to record its own fallback events, logged as
// memory_recalled{fallback=true}.
type EventAppender interface {
	Append(ctx context.Context, kind models.EventKind, agentID ids.AgentId, workItemID *ids.WorkItemId, payload map[string]any) (ids.EventId, error)
}

// Optimizer is C5.
type Optimizer struct {
	store     storage.Storage
	llm       llmclient.LlmClient
	events    EventAppender
	catalog   SkillCatalog
	maxSkills int
	shares    map[models.BudgetBucket]float64
}

// New constructs an Optimizer. shares, if nil, defaults to
// models.DefaultBudgetShares.
func New(store storage.Storage, llm llmclient.LlmClient, events EventAppender, catalog SkillCatalog, maxSkills int, shares map[models.BudgetBucket]float64) *Optimizer {
	if shares == nil {
		shares = models.DefaultBudgetShares()
	}
	return &Optimizer{store: store, llm: llm, events: events, catalog: catalog, maxSkills: maxSkills, shares: shares}
}

// PrepareContext produces a ContextPackage for one execution attempt:
// memory recall in namespace-priority order, skill discovery capped by
// the skills budget bucket, and a narrative consolidated to the mode
// review_attempt selects.
func (o *Optimizer) PrepareContext(ctx context.Context, agentID ids.AgentId, wi *models.WorkItem, executionMemories []ids.MemoryId, feedback []string) (models.ContextPackage, error) {
	mode := models.ConsolidationModeFor(wi.ReviewAttempt)

	recalled, fallback, err := o.recallMemories(ctx, wi)
	if err != nil {
		return models.ContextPackage{}, err
	}
	if fallback {
		o.logRecallFallback(ctx, agentID, wi.ID, len(recalled))
	}

	plan, err := o.RecomputeBudget(ctx, 0, len(recalled), 1.0, wi.Priority)
	if err != nil {
		return models.ContextPackage{}, err
	}

	skillBudget := plan.TokenBudgets[models.BucketSkills]
	selection, err := o.DiscoverSkills(ctx, wi.Spec.Intent, o.maxSkills, 0)
	if err != nil {
		return models.ContextPackage{}, err
	}

	narrative, keyIssues, guidance, err := o.consolidate(ctx, wi, mode, recalled, feedback)
	if err != nil {
		return models.ContextPackage{}, err
	}

	memIDs := make([]ids.MemoryId, 0, len(recalled)+len(executionMemories))
	for _, r := range recalled {
		memIDs = append(memIDs, r.Memory.ID)
	}
	memIDs = append(memIDs, executionMemories...)

	return models.ContextPackage{
		WorkItemID:        wi.ID,
		Mode:              mode,
		Narrative:         narrative,
		KeyIssues:         keyIssues,
		StrategicGuidance: guidance,
		EstimatedTokens:   selection.EstimatedTokens + plan.TokenBudgets[models.BucketCritical],
		MemoryIDs:         memIDs,
		Skills:            capSkillsToBudget(selection.Skills, skillBudget),
	}, nil
}

func (o *Optimizer) logRecallFallback(ctx context.Context, agentID ids.AgentId, workItemID ids.WorkItemId, count int) {
	if o.events == nil {
		return
	}
	payload := models.ToMap(models.MemoryRecalledPayload{Count: count, Fallback: true})
	if _, err := o.events.Append(ctx, models.EventMemoryRecalled, agentID, &workItemID, payload); err != nil {
		slog.Warn("optimizer: failed to log recall fallback event", "work_item_id", workItemID, "error", err)
	}
}

// capSkillsToBudget enforces "never exceed the skills bucket" by a rough
// average-token-per-skill estimate rather than a second LLM round-trip.
func capSkillsToBudget(skills []string, tokenBudget int) []string {
	const estTokensPerSkill = 150
	if tokenBudget <= 0 {
		return skills
	}
	max := tokenBudget / estTokensPerSkill
	if max < 1 {
		max = 1
	}
	if len(skills) > max {
		return skills[:max]
	}
	return skills
}


