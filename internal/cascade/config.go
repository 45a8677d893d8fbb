package cascade

import (
	"fmt"
	"math"
	"time"

	dErrors "facegate/pkg/domain-errors"
)

// FusionWeights blend the gate scores into the fused confidence. They must
// be non-negative and sum to one.
type FusionWeights struct {
	Liveness  float64 `mapstructure:"liveness" validate:"gte=0,lte=1"`
	AntiSpoof float64 `mapstructure:"anti_spoof" validate:"gte=0,lte=1"`
	Embedding float64 `mapstructure:"embedding" validate:"gte=0,lte=1"`
	Backup    float64 `mapstructure:"backup" validate:"gte=0,lte=1"`
}

type Config struct {
	Weights FusionWeights `mapstructure:"weights"`
	// BackupTimeout bounds the single backup call. There are no retries.
	BackupTimeout time.Duration `mapstructure:"backup_timeout" validate:"gt=0"`
	// BackupMatchThreshold is the backup similarity, on a 0-100 scale, at
	// or above which a borderline match is accepted.
	BackupMatchThreshold float64 `mapstructure:"backup_match_threshold" validate:"gt=0,lte=100"`
}

func DefaultConfig() Config {
	return Config{
		Weights:              FusionWeights{Liveness: 0.15, AntiSpoof: 0.15, Embedding: 0.50, Backup: 0.20},
		BackupTimeout:        time.Second,
		BackupMatchThreshold: 90,
	}
}

func (c Config) Validate() error {
	w := c.Weights
	for _, v := range []float64{w.Liveness, w.AntiSpoof, w.Embedding, w.Backup} {
		if v < 0 {
			return dErrors.New(dErrors.CodeValidation, "fusion weights must be non-negative")
		}
	}
	if sum := w.Liveness + w.AntiSpoof + w.Embedding + w.Backup; math.Abs(sum-1) > 1e-6 {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("fusion weights must sum to 1, got %.4f", sum))
	}
	if c.BackupTimeout <= 0 {
		return dErrors.New(dErrors.CodeValidation, "backup timeout must be positive")
	}
	if c.BackupMatchThreshold <= 0 || c.BackupMatchThreshold > 100 {
		return dErrors.New(dErrors.CodeValidation, "backup match threshold must be in (0, 100]")
	}
	return nil
}
