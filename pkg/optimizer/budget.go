package optimizer

import (
	"context"

	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
)

// RecomputeBudget implements recompute_budget: given current usage and
// the number of loaded resources, slice the Executor's working context
// into the four buckets, scaled to targetFraction of the full window.
// priority is accepted for interface symmetry; it does not currently
// reweight the buckets (no source in the pack ties work-item priority
// to budget share).
func (o *Optimizer) RecomputeBudget(_ context.Context, usage int, loadedResources int, targetFraction float64, _ int) (models.OptimizationPlan, error) {
	if targetFraction <= 0 {
		targetFraction = 1.0
	}
	const workingContextTokens = 180_000

	target := int(float64(workingContextTokens) * targetFraction)
	remaining := target - usage
	if remaining < 0 {
		remaining = 0
	}

	budgets := make(map[models.BudgetBucket]int, len(o.shares))
	for bucket, share := range o.shares {
		budgets[bucket] = int(float64(remaining) * share)
	}

	// Loaded resources (memories already injected) eat into the Project
	// bucket first, since that's where recalled memories are budgeted.
	const perResourceTokens = 200
	used := loadedResources * perResourceTokens
	if p := budgets[models.BucketProject]; p > 0 {
		budgets[models.BucketProject] = max(0, p-used)
	}

	return models.OptimizationPlan{
		TargetFraction: targetFraction,
		Shares:         o.shares,
		TokenBudgets:   budgets,
	}, nil
}


