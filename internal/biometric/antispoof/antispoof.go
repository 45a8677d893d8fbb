// Package antispoof estimates whether a capture is a presentation attack
// (printed photo, screen replay, synthetic face) from image-quality cues.
//
// Each sub-check yields a realness score in [0, 100]. Scores are inverted
// before weighting, so the aggregate SpoofScore grows with the likelihood of
// an attack.
package antispoof

import (
	"fmt"
	"math"
	"strings"

	dErrors "facegate/pkg/domain-errors"
)

type Features struct {
	SpoofProbability   float64 `json:"spoof_probability"`
	LaplacianVariance  float64 `json:"laplacian_variance"`
	TextureVariance    float64 `json:"texture_variance"`
	HighFrequencyRatio float64 `json:"high_frequency_ratio"`
	MoireScore         float64 `json:"moire_score"`
	ReflectionScore    float64 `json:"reflection_score"`
	ColorNaturalness   float64 `json:"color_naturalness"`
	Saturation         float64 `json:"saturation"`
}

type Check string

const (
	CheckModel      Check = "model"
	CheckTexture    Check = "texture"
	CheckFrequency  Check = "frequency"
	CheckReflection Check = "reflection"
	CheckColor      Check = "color"
)

// AttackType is a diagnostic label attached to rejected captures only.
type AttackType string

const (
	AttackNone     AttackType = ""
	AttackPhoto    AttackType = "PHOTO"
	AttackVideo    AttackType = "VIDEO"
	AttackDeepfake AttackType = "DEEPFAKE"
	AttackUnknown  AttackType = "UNKNOWN"
)

// CheckResult holds one sub-check's realness score in [0, 100].
type CheckResult struct {
	Check  Check   `json:"check"`
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"`
}

type Result struct {
	IsReal     bool          `json:"is_real"`
	SpoofScore float64       `json:"spoof_score"`
	PassScore  float64       `json:"pass_score"`
	Confidence float64       `json:"confidence"`
	Checks     []CheckResult `json:"checks"`
	AttackType AttackType    `json:"attack_type,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Version    string        `json:"version"`
}

type Scorer interface {
	// Validate rejects malformed features without scoring them.
	Validate(f Features) error
	Score(f Features) (Result, error)
	Version() string
}

// New returns the scorer selected by cfg.Version.
func New(cfg Config) (Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Version {
	case VersionWeightedV2, "":
		return &weightedScorer{cfg: cfg}, nil
	default:
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown anti-spoof scorer version %q", cfg.Version))
	}
}

func validate(f Features) error {
	if math.IsNaN(f.LaplacianVariance) || math.IsInf(f.LaplacianVariance, 0) || f.LaplacianVariance < 0 {
		return dErrors.New(dErrors.CodeValidation, "laplacian_variance must be a non-negative finite number")
	}
	for _, field := range []struct {
		name string
		v    float64
	}{
		{"spoof_probability", f.SpoofProbability},
		{"texture_variance", f.TextureVariance},
		{"high_frequency_ratio", f.HighFrequencyRatio},
		{"moire_score", f.MoireScore},
		{"reflection_score", f.ReflectionScore},
		{"color_naturalness", f.ColorNaturalness},
		{"saturation", f.Saturation},
	} {
		if math.IsNaN(field.v) || field.v < 0 || field.v > 1 {
			return dErrors.New(dErrors.CodeValidation, field.name+" must be within [0, 1]")
		}
	}
	return nil
}

func clamp100(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func reasonFor(checks []CheckResult, attack AttackType) string {
	var failed []string
	for _, c := range checks {
		if !c.Passed {
			failed = append(failed, string(c.Check))
		}
	}
	reason := "presentation attack suspected"
	if attack != AttackNone {
		reason += " (" + strings.ToLower(string(attack)) + ")"
	}
	if len(failed) > 0 {
		reason += ": failed checks: " + strings.Join(failed, ", ")
	}
	return reason
}
