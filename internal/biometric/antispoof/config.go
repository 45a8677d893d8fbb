package antispoof

import (
	"math"

	dErrors "facegate/pkg/domain-errors"
)

const VersionWeightedV2 = "weighted-v2"

type Weights struct {
	Model      float64 `mapstructure:"model" validate:"gte=0,lte=1"`
	Texture    float64 `mapstructure:"texture" validate:"gte=0,lte=1"`
	Frequency  float64 `mapstructure:"frequency" validate:"gte=0,lte=1"`
	Reflection float64 `mapstructure:"reflection" validate:"gte=0,lte=1"`
	Color      float64 `mapstructure:"color" validate:"gte=0,lte=1"`
}

func (w Weights) sum() float64 { return w.Model + w.Texture + w.Frequency + w.Reflection + w.Color }

type Config struct {
	Version string  `mapstructure:"version"`
	Weights Weights `mapstructure:"weights"`
	// Captures with SpoofScore at or below this are accepted as real.
	MaxSpoofScore float64 `mapstructure:"max_spoof_score" validate:"gte=0,lte=100"`
	CheckPass     float64 `mapstructure:"check_pass" validate:"gte=0,lte=100"`
	// Laplacian variance that counts as fully sharp.
	LaplacianFullScale float64 `mapstructure:"laplacian_full_scale" validate:"gt=0"`
	// High-frequency energy ratio that counts as fully natural detail.
	FrequencyFullScale float64 `mapstructure:"frequency_full_scale" validate:"gt=0,lte=1"`
	MinSaturation      float64 `mapstructure:"min_saturation" validate:"gte=0,lte=1"`
	MaxSaturation      float64 `mapstructure:"max_saturation" validate:"gte=0,lte=1"`
}

func DefaultConfig() Config {
	return Config{
		Version: VersionWeightedV2,
		Weights: Weights{
			Model:      0.40,
			Texture:    0.20,
			Frequency:  0.15,
			Reflection: 0.15,
			Color:      0.10,
		},
		MaxSpoofScore:      40,
		CheckPass:          50,
		LaplacianFullScale: 200,
		FrequencyFullScale: 0.30,
		MinSaturation:      0.15,
		MaxSaturation:      0.85,
	}
}

func (c Config) Validate() error {
	if math.Abs(c.Weights.sum()-1) > 1e-9 {
		return dErrors.New(dErrors.CodeValidation, "anti-spoof weights must sum to 1")
	}
	if c.MinSaturation > c.MaxSaturation {
		return dErrors.New(dErrors.CodeValidation, "anti-spoof min_saturation must not exceed max_saturation")
	}
	if c.LaplacianFullScale <= 0 || c.FrequencyFullScale <= 0 {
		return dErrors.New(dErrors.CodeValidation, "anti-spoof full-scale values must be positive")
	}
	return nil
}
