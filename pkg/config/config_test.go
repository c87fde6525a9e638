package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvDBPath, EnvAPIAddr, EnvSharedSecret, EnvMaxReviewAttempts, EnvActivityTimeout, EnvCoordDir, EnvTuningFile, EnvLlmAPIKey, EnvLlmModel} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad(t *testing.T) {
	t.Run("fails validation when required env vars are absent", func(t *testing.T) {
		clearEnv(t)
		_, err := Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidationFailed)
	})

	t.Run("applies environment overrides on top of defaults", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvDBPath, "/tmp/mnemosyne.db")
		t.Setenv(EnvSharedSecret, "s3cr3t")
		t.Setenv(EnvMaxReviewAttempts, "6")
		t.Setenv(EnvActivityTimeout, "90")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "/tmp/mnemosyne.db", cfg.DBPath)
		assert.Equal(t, "s3cr3t", cfg.SharedSecret)
		assert.EqualValues(t, 6, cfg.MaxReviewAttempts)
		assert.Equal(t, 90*time.Second, cfg.ActivityTimeout)
	})

	t.Run("loads tuning file and merges multipliers", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvDBPath, "/tmp/mnemosyne.db")
		t.Setenv(EnvSharedSecret, "s3cr3t")

		dir := t.TempDir()
		tuningPath := dir + "/tuning.yaml"
		require.NoError(t, os.WriteFile(tuningPath, []byte(`
phase_timeout_multipliers:
  plan_to_artifacts: 3.5
budget_shares:
  critical: 0.4
  skills: 0.3
  project: 0.2
  general: 0.1
`), 0o600))
		t.Setenv(EnvTuningFile, tuningPath)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 3.5, cfg.PhaseTimeoutMultipliers["plan_to_artifacts"])
		assert.Equal(t, 1.0, cfg.PhaseTimeoutMultipliers["prompt_to_spec"])
		assert.Len(t, cfg.BudgetShares, 4)
	})
}

func TestValidate(t *testing.T) {
	t.Run("rejects a non-positive phase multiplier", func(t *testing.T) {
		cfg := Defaults()
		cfg.DBPath = "x"
		cfg.SharedSecret = "y"
		cfg.PhaseTimeoutMultipliers["plan_to_artifacts"] = 0

		err := Validate(cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidationFailed)
	})

	t.Run("rejects budget shares that do not sum to one", func(t *testing.T) {
		cfg := Defaults()
		cfg.DBPath = "x"
		cfg.SharedSecret = "y"
		cfg.BudgetShares = map[string]float64{"critical": 0.5, "skills": 0.2}

		err := Validate(cfg)
		require.Error(t, err)
	})

	t.Run("accepts a fully populated default config", func(t *testing.T) {
		cfg := Defaults()
		cfg.DBPath = "x"
		cfg.SharedSecret = "y"

		assert.NoError(t, Validate(cfg))
	})
}

func TestActivityTimeoutFor(t *testing.T) {
	cfg := Defaults()
	cfg.ActivityTimeout = 60 * time.Second

	assert.Equal(t, 60*time.Second, cfg.ActivityTimeoutFor("prompt_to_spec"))
	assert.Equal(t, 120*time.Second, cfg.ActivityTimeoutFor("plan_to_artifacts"))
	assert.Equal(t, 60*time.Second, cfg.ActivityTimeoutFor("unknown_pair"))
}


