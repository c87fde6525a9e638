package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct-tag constraints via go-playground/validator, then
// the handful of cross-field invariants the tags can't express: phase
// multipliers must be positive, and an explicit budget share override must
// sum to 1.0.
func Validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: fe.Field(), Reason: fe.Tag()}
		}
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	for pair, mult := range cfg.PhaseTimeoutMultipliers {
		if mult <= 0 {
			return &ValidationError{Field: "PhaseTimeoutMultipliers[" + pair + "]", Reason: "must be positive"}
		}
	}

	if len(cfg.BudgetShares) > 0 {
		var sum float64
		for _, share := range cfg.BudgetShares {
			if share < 0 {
				return &ValidationError{Field: "BudgetShares", Reason: "shares must be non-negative"}
			}
			sum += share
		}
		const epsilon = 1e-6
		if sum < 1-epsilon || sum > 1+epsilon {
			return &ValidationError{Field: "BudgetShares", Reason: fmt.Sprintf("must sum to 1.0, got %f", sum)}
		}
	}

	return nil
}


