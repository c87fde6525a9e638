package config

import "time"

// Default values applied before environment/YAML overrides are parsed.
const (
	DefaultMaxReviewAttempts       = 4
	DefaultActivityTimeout         = 60 * time.Second
	DefaultWorkerCount             = 4
	DefaultDispatchInterval        = time.Second
	DefaultStaleSweepInterval      = 10 * time.Second
	DefaultGracefulShutdownTimeout = 30 * time.Second
	DefaultStorageRetryBase        = 100 * time.Millisecond
	DefaultStorageRetryCap         = 5 * time.Second
	DefaultStorageRetryAttempts    = 3
	DefaultHeartbeatInterval       = 10 * time.Second
	DefaultMaxSkills               = 7
	DefaultCoordDir                = "./mnemosyne-coord"
	DefaultLlmModel                = "claude-sonnet-4-5"
	DefaultLlmInnerDeadline        = 30 * time.Second
	DefaultArtifactRoot            = "./mnemosyne-artifacts"
	DefaultMaxParallelSteps        = 4
	DefaultSkillsDir               = "./mnemosyne-skills"
)

// DefaultPhaseTimeoutMultipliers seeds the deadlock-detector multiplier
// table: Plan→Artifacts runs an Executor and is budgeted double the base
// activity timeout.
func DefaultPhaseTimeoutMultipliers() map[string]float64 {
	return map[string]float64{
		"prompt_to_spec":    1.0,
		"spec_to_full_spec": 1.0,
		"full_spec_to_plan": 1.0,
		"plan_to_artifacts": 2.0,
	}
}

// Defaults returns a Config populated entirely with default values. Load
// starts from this and overlays environment and YAML settings on top.
func Defaults() *Config {
	return &Config{
		DBPath:                  "./mnemosyne.db",
		MaxReviewAttempts:       DefaultMaxReviewAttempts,
		ActivityTimeout:         DefaultActivityTimeout,
		PhaseTimeoutMultipliers: DefaultPhaseTimeoutMultipliers(),
		BudgetShares:            nil,
		WorkerCount:             DefaultWorkerCount,
		DispatchInterval:        DefaultDispatchInterval,
		StaleSweepInterval:      DefaultStaleSweepInterval,
		GracefulShutdownTimeout: DefaultGracefulShutdownTimeout,
		StorageRetryBase:        DefaultStorageRetryBase,
		StorageRetryCap:         DefaultStorageRetryCap,
		StorageRetryAttempts:    DefaultStorageRetryAttempts,
		CoordDir:                DefaultCoordDir,
		ArtifactRoot:            DefaultArtifactRoot,
		MaxParallelSteps:        DefaultMaxParallelSteps,
		SkillsDir:               DefaultSkillsDir,
		HeartbeatInterval:       DefaultHeartbeatInterval,
		MaxSkills:               DefaultMaxSkills,
		LlmModel:                DefaultLlmModel,
		LlmInnerDeadline:        DefaultLlmInnerDeadline,
	}
}


