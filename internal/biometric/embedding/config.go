package embedding

import (
	"fmt"

	dErrors "facegate/pkg/domain-errors"
)

const (
	DefaultDimension       = 512
	DefaultHighThreshold   = 0.35
	DefaultMediumThreshold = 0.45
	DefaultLowThreshold    = 0.55
	defaultShardSize       = 2048
)

// Config holds the deployment's embedding dimension and the distance bands.
// A distance strictly below High is HIGH, below Medium is MEDIUM, below Low
// is LOW, anything else NONE.
type Config struct {
	Dimension int     `mapstructure:"dimension" validate:"gte=1"`
	High      float64 `mapstructure:"high" validate:"gt=0"`
	Medium    float64 `mapstructure:"medium" validate:"gt=0"`
	Low       float64 `mapstructure:"low" validate:"gt=0,lte=2"`
	ShardSize int     `mapstructure:"shard_size" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		Dimension: DefaultDimension,
		High:      DefaultHighThreshold,
		Medium:    DefaultMediumThreshold,
		Low:       DefaultLowThreshold,
		ShardSize: defaultShardSize,
	}
}

// Validate checks band ordering, which struct tags cannot express.
func (c Config) Validate() error {
	if c.Dimension < 1 {
		return dErrors.New(dErrors.CodeValidation, "embedding dimension must be positive")
	}
	if !(0 < c.High && c.High < c.Medium && c.Medium < c.Low && c.Low <= 2) {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("embedding thresholds must satisfy 0 < high < medium < low <= 2, got %.3f/%.3f/%.3f", c.High, c.Medium, c.Low))
	}
	return nil
}
