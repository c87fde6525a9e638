package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Env var names recognized by Load.
const (
	EnvDBPath            = "SERVICE_DB_PATH"
	EnvAPIAddr           = "SERVICE_API_ADDR"
	EnvSharedSecret      = "SERVICE_SHARED_SECRET"
	EnvMaxReviewAttempts = "SERVICE_MAX_REVIEW_ATTEMPTS"
	EnvActivityTimeout   = "SERVICE_ACTIVITY_TIMEOUT_SECS"
	EnvCoordDir          = "SERVICE_COORD_DIR"
	EnvTuningFile        = "SERVICE_TUNING_FILE"
	// EnvLlmAPIKey and EnvLlmModel configure the concrete provider key and
	// model used to construct the Anthropic-backed LlmClient.
	EnvLlmAPIKey = "SERVICE_LLM_API_KEY"
	EnvLlmModel  = "SERVICE_LLM_MODEL"
	// EnvArtifactRoot and EnvSkillsDir are filesystem roots the Executor
	// and Optimizer need.
	EnvArtifactRoot = "SERVICE_ARTIFACT_ROOT"
	EnvSkillsDir    = "SERVICE_SKILLS_DIR"
)

// tuningFile is the optional YAML document read from EnvTuningFile,
// carrying the settings too fine-grained for a single env var.
type tuningFile struct {
	PhaseTimeoutMultipliers map[string]float64 `yaml:"phase_timeout_multipliers"`
	BudgetShares            map[string]float64 `yaml:"budget_shares"`
}

// Load builds a Config by layering the process environment and, if
// SERVICE_TUNING_FILE is set, a YAML tuning file over Defaults.
// The result is validated before being returned.
func Load() (*Config, error) {
	cfg := Defaults()

	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvAPIAddr); v != "" {
		cfg.APIAddr = v
	}
	if v := os.Getenv(EnvSharedSecret); v != "" {
		cfg.SharedSecret = v
	}
	if v := os.Getenv(EnvCoordDir); v != "" {
		cfg.CoordDir = v
	}
	if v := os.Getenv(EnvLlmAPIKey); v != "" {
		cfg.LlmAPIKey = v
	}
	if v := os.Getenv(EnvLlmModel); v != "" {
		cfg.LlmModel = v
	}
	if v := os.Getenv(EnvArtifactRoot); v != "" {
		cfg.ArtifactRoot = v
	}
	if v := os.Getenv(EnvSkillsDir); v != "" {
		cfg.SkillsDir = v
	}
	if v := os.Getenv(EnvMaxReviewAttempts); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, &ValidationError{Field: EnvMaxReviewAttempts, Reason: err.Error()}
		}
		cfg.MaxReviewAttempts = uint32(n)
	}
	if v := os.Getenv(EnvActivityTimeout); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, &ValidationError{Field: EnvActivityTimeout, Reason: err.Error()}
		}
		cfg.ActivityTimeout = time.Duration(secs * float64(time.Second))
	}

	if path := os.Getenv(EnvTuningFile); path != "" {
		if err := loadTuningFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading tuning file %s: %w", path, err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	slog.Info("configuration loaded",
		"db_path", cfg.DBPath,
		"api_addr", cfg.APIAddr,
		"max_review_attempts", cfg.MaxReviewAttempts,
		"activity_timeout", cfg.ActivityTimeout)

	return cfg, nil
}

// loadTuningFile reads and merges the optional YAML tuning document,
// expanding ${VAR}/$VAR references via ExpandEnv before parsing.
func loadTuningFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading tuning file: %w", err)
	}
	raw = ExpandEnv(raw)

	var tf tuningFile
	if err := yaml.Unmarshal(raw, &tf); err != nil {
		return fmt.Errorf("parsing tuning file: %w", err)
	}

	if len(tf.PhaseTimeoutMultipliers) > 0 {
		for k, v := range tf.PhaseTimeoutMultipliers {
			cfg.PhaseTimeoutMultipliers[k] = v
		}
	}
	if len(tf.BudgetShares) > 0 {
		cfg.BudgetShares = tf.BudgetShares
	}
	return nil
}


