// Package config loads and validates the orchestration core's runtime
// configuration: environment variables plus an optional YAML tuning
// file for settings too fine-grained for a single env var (per-phase
// activity timeout multipliers, budget bucket shares).
package config

import "time"

// Config is the umbrella configuration object, the primary value returned
// by Load and threaded through every component at startup.
type Config struct {
	// DBPath backs SERVICE_DB_PATH: the embedded sqlite file for the
	// Storage capability.
	DBPath string `validate:"required"`

	// APIAddr backs SERVICE_API_ADDR: host:port for the optional HTTP+SSE
	// surface. Empty disables HTTP.
	APIAddr string

	// SharedSecret backs SERVICE_SHARED_SECRET: the HMAC key authenticating
	// cross-process registry entries.
	SharedSecret string `validate:"required"`

	// MaxReviewAttempts backs SERVICE_MAX_REVIEW_ATTEMPTS (default 4).
	MaxReviewAttempts uint32 `validate:"min=1"`

	// ActivityTimeout backs SERVICE_ACTIVITY_TIMEOUT_SECS: the base
	// deadlock-detector wall-clock limit (default 60s).
	ActivityTimeout time.Duration `validate:"required"`

	// PhaseTimeoutMultipliers scales ActivityTimeout per ordered phase
	// pair (e.g. Plan→Artifacts × 2). Loaded from the optional YAML
	// tuning file; defaults to 1.0 for every pair not listed.
	PhaseTimeoutMultipliers map[string]float64

	// BudgetShares overrides the default four-bucket context budget
	// split. Defaults to models.DefaultBudgetShares when empty.
	BudgetShares map[string]float64

	// Queue tuning.
	WorkerCount             int           `validate:"min=1"`
	DispatchInterval        time.Duration `validate:"required"` // on_tick cadence, ~1s
	StaleSweepInterval      time.Duration `validate:"required"`
	GracefulShutdownTimeout time.Duration `validate:"required"`

	// Storage-write retry policy.
	StorageRetryBase     time.Duration `validate:"required"`
	StorageRetryCap      time.Duration `validate:"required"`
	StorageRetryAttempts int           `validate:"min=1"`

	// Coordination directory for cross-process registries.
	CoordDir string `validate:"required"`

	// ArtifactRoot is the directory the Executor writes file artifacts
	// under, keyed by work_item_id.
	ArtifactRoot string `validate:"required"`

	// MaxParallelSteps bounds concurrent plan-task execution within a
	// single Executor.Execute call.
	MaxParallelSteps int `validate:"min=1"`

	// SkillsDir is the filesystem-backed skill catalog root the
	// Optimizer's DirCatalog scans.
	SkillsDir string

	// HeartbeatInterval is how often an instance refreshes its
	// cross-process registry entry and agents refresh last_heartbeat.
	HeartbeatInterval time.Duration `validate:"required"`

	// MaxSkills caps discover_skills output (default 7).
	MaxSkills int `validate:"min=1"`

	// LlmAPIKey authenticates outbound calls made by the LlmClient
	// capability. Not required: an empty value falls back to the
	// Anthropic SDK's own ANTHROPIC_API_KEY environment lookup.
	LlmAPIKey string

	// LlmModel names the provider model the LlmClient capability calls.
	LlmModel string `validate:"required"`

	// LlmInnerDeadline bounds a single LlmClient.Call, independent of the
	// Executor/Reviewer's own 60s wall-clock deadline.
	LlmInnerDeadline time.Duration `validate:"required"`
}

// ActivityTimeoutFor returns the deadlock-detector timeout for a phase
// transition, applying any configured multiplier.
func (c *Config) ActivityTimeoutFor(fromTo string) time.Duration {
	mult, ok := c.PhaseTimeoutMultipliers[fromTo]
	if !ok {
		mult = 1.0
	}
	return time.Duration(float64(c.ActivityTimeout) * mult)
}


