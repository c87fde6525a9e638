package optimizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
)

func TestRecomputeBudget_SplitsAccordingToDefaultShares(t *testing.T) {
	o := New(nil, nil, nil, nil, 5, nil)

	plan, err := o.RecomputeBudget(context.Background(), 0, 0, 1.0, 0)
	require.NoError(t, err)

	assert.Equal(t, 1.0, plan.TargetFraction)
	assert.InDelta(t, 0.40, plan.Shares[models.BucketCritical], 0.001)

	total := 0
	for _, v := range plan.TokenBudgets {
		total += v
	}
	// Loaded resources deduct from Project, not from the overall total.
	assert.Greater(t, total, 0)
}

func TestRecomputeBudget_LoadedResourcesEatIntoProjectBucket(t *testing.T) {
	o := New(nil, nil, nil, nil, 5, nil)

	noLoad, err := o.RecomputeBudget(context.Background(), 0, 0, 1.0, 0)
	require.NoError(t, err)

	loaded, err := o.RecomputeBudget(context.Background(), 0, 50, 1.0, 0)
	require.NoError(t, err)

	assert.Less(t, loaded.TokenBudgets[models.BucketProject], noLoad.TokenBudgets[models.BucketProject])
}

func TestRecomputeBudget_ProjectBucketNeverGoesNegative(t *testing.T) {
	o := New(nil, nil, nil, nil, 5, nil)

	plan, err := o.RecomputeBudget(context.Background(), 0, 100_000, 1.0, 0)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, plan.TokenBudgets[models.BucketProject], 0)
}

func TestRecomputeBudget_DefaultsTargetFractionWhenZero(t *testing.T) {
	o := New(nil, nil, nil, nil, 5, nil)

	plan, err := o.RecomputeBudget(context.Background(), 0, 0, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, 1.0, plan.TargetFraction)
}


