package liveness

import (
	"math"

	dErrors "facegate/pkg/domain-errors"
)

const VersionWeightedV2 = "weighted-v2"

// Weights for the five sub-checks; they must sum to 1.
type Weights struct {
	Blink   float64 `mapstructure:"blink" validate:"gte=0,lte=1"`
	Pose    float64 `mapstructure:"pose" validate:"gte=0,lte=1"`
	Motion  float64 `mapstructure:"motion" validate:"gte=0,lte=1"`
	Depth   float64 `mapstructure:"depth" validate:"gte=0,lte=1"`
	Texture float64 `mapstructure:"texture" validate:"gte=0,lte=1"`
}

func (w Weights) sum() float64 { return w.Blink + w.Pose + w.Motion + w.Depth + w.Texture }

type Config struct {
	Version       string  `mapstructure:"version"`
	Weights       Weights `mapstructure:"weights"`
	LiveThreshold float64 `mapstructure:"live_threshold" validate:"gte=0,lte=100"`
	CheckPass     float64 `mapstructure:"check_pass" validate:"gte=0,lte=100"`
	MinLandmarks  int     `mapstructure:"min_landmarks" validate:"gte=0"`
	// EAR outside this window suggests a closed-eye photo or a detector glitch.
	MinEyeAspectRatio float64 `mapstructure:"min_ear" validate:"gte=0,lte=1"`
	MaxEyeAspectRatio float64 `mapstructure:"max_ear" validate:"gte=0,lte=1"`
	// Total yaw+pitch+roll spread, in degrees, that earns a full pose score.
	PoseFullScale float64 `mapstructure:"pose_full_scale" validate:"gt=0"`
}

func DefaultConfig() Config {
	return Config{
		Version: VersionWeightedV2,
		Weights: Weights{
			Blink:   0.25,
			Pose:    0.20,
			Motion:  0.15,
			Depth:   0.20,
			Texture: 0.20,
		},
		LiveThreshold:     60,
		CheckPass:         50,
		MinLandmarks:      5,
		MinEyeAspectRatio: 0.15,
		MaxEyeAspectRatio: 0.45,
		PoseFullScale:     20,
	}
}

func (c Config) Validate() error {
	if math.Abs(c.Weights.sum()-1) > 1e-9 {
		return dErrors.New(dErrors.CodeValidation, "liveness weights must sum to 1")
	}
	if c.MinEyeAspectRatio > c.MaxEyeAspectRatio {
		return dErrors.New(dErrors.CodeValidation, "liveness min_ear must not exceed max_ear")
	}
	if c.PoseFullScale <= 0 {
		return dErrors.New(dErrors.CodeValidation, "liveness pose_full_scale must be positive")
	}
	return nil
}
