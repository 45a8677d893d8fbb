package risk

import (
	"fmt"

	dErrors "facegate/pkg/domain-errors"
)

// Rule raises an alert when a score falls strictly below Min and adds
// Contribution to the session's risk.
type Rule struct {
	Min          float64 `mapstructure:"min" validate:"gte=0,lte=1"`
	Contribution float64 `mapstructure:"contribution" validate:"gte=0,lte=1"`
}

type Config struct {
	Liveness    Rule `mapstructure:"liveness"`
	FaceMatch   Rule `mapstructure:"face_match"`
	Document    Rule `mapstructure:"document"`
	Fingerprint Rule `mapstructure:"fingerprint"`

	AlertThreshold float64 `mapstructure:"alert_threshold" validate:"gte=0,lte=1"`
	BlockThreshold float64 `mapstructure:"block_threshold" validate:"gte=0,lte=1"`
}

func DefaultConfig() Config {
	return Config{
		Liveness:       Rule{Min: 0.35, Contribution: 0.40},
		FaceMatch:      Rule{Min: 0.70, Contribution: 0.30},
		Document:       Rule{Min: 0.65, Contribution: 0.35},
		Fingerprint:    Rule{Min: 0.80, Contribution: 0.25},
		AlertThreshold: 0.60,
		BlockThreshold: 0.85,
	}
}

func (c Config) Validate() error {
	rules := []struct {
		name string
		rule Rule
	}{
		{"liveness", c.Liveness},
		{"face_match", c.FaceMatch},
		{"document", c.Document},
		{"fingerprint", c.Fingerprint},
	}
	for _, r := range rules {
		if r.rule.Min < 0 || r.rule.Min > 1 || r.rule.Contribution < 0 || r.rule.Contribution > 1 {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("risk rule %s must have min and contribution in [0,1]", r.name))
		}
	}
	if !(0 < c.AlertThreshold && c.AlertThreshold < c.BlockThreshold && c.BlockThreshold <= 1) {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("risk thresholds must satisfy 0 < alert < block <= 1, got %.2f/%.2f", c.AlertThreshold, c.BlockThreshold))
	}
	return nil
}
