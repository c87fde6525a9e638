package models

import "github.com/mnemosyne-ai/mnemosyne/pkg/ids"

// ConsolidationMode is the Optimizer's progressive-consolidation mode,
// selected by review attempt.
type ConsolidationMode string

// ConsolidationMode values.
const (
	ConsolidationDetailed   ConsolidationMode = "detailed"
	ConsolidationSummary    ConsolidationMode = "summary"
	ConsolidationCompressed ConsolidationMode = "compressed"
)

// ConsolidationModeFor returns the mode for a given review attempt:
// attempt 0 (first submission) → detailed; attempts 1-2 → summary;
// attempts 3+ → compressed.
func ConsolidationModeFor(reviewAttempt uint32) ConsolidationMode {
	switch {
	case reviewAttempt == 0:
		return ConsolidationDetailed
	case reviewAttempt <= 2:
		return ConsolidationSummary
	default:
		return ConsolidationCompressed
	}
}

// BudgetBucket names the four context budget buckets.
type BudgetBucket string

// BudgetBucket values and their default share of the working context.
const (
	BucketCritical BudgetBucket = "critical"
	BucketSkills   BudgetBucket = "skills"
	BucketProject  BudgetBucket = "project"
	BucketGeneral  BudgetBucket = "general"
)

// DefaultBudgetShares gives the four-way split of the working context:
// Critical 40% / Skills 30% / Project 20% / General 10%.
func DefaultBudgetShares() map[BudgetBucket]float64 {
	return map[BudgetBucket]float64{
		BucketCritical: 0.40,
		BucketSkills:   0.30,
		BucketProject:  0.20,
		BucketGeneral:  0.10,
	}
}

// OptimizationPlan is the output of recompute_budget: how the working
// context is sliced, given current usage and priority.
type OptimizationPlan struct {
	TargetFraction float64
	Shares         map[BudgetBucket]float64
	TokenBudgets   map[BudgetBucket]int
}

// SkillSelection is the output of discover_skills.
type SkillSelection struct {
	Skills          []string
	EstimatedTokens int
}

// ContextPackage is the Optimizer's output for one execution attempt.
type ContextPackage struct {
	WorkItemID        ids.WorkItemId
	Mode              ConsolidationMode
	Narrative         string
	KeyIssues         []string
	StrategicGuidance string
	EstimatedTokens   int
	MemoryIDs         []ids.MemoryId
	Skills            []string
}


