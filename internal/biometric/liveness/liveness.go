// Package liveness scores whether a capture comes from a live person present
// at the terminal, using motion and depth cues extracted upstream.
package liveness

import (
	"fmt"
	"math"
	"strings"

	dErrors "facegate/pkg/domain-errors"
)

// Features are the liveness cues produced by the perception provider for one
// capture window. Ratios and scores are normalized to [0, 1]; pose ranges are
// the observed min-to-max spread in degrees.
type Features struct {
	BlinkCount     int     `json:"blink_count"`
	EyeAspectRatio float64 `json:"eye_aspect_ratio"`
	YawRange       float64 `json:"yaw_range"`
	PitchRange     float64 `json:"pitch_range"`
	RollRange      float64 `json:"roll_range"`
	MotionScore    float64 `json:"motion_score"`
	DepthScore     float64 `json:"depth_score"`
	TextureScore   float64 `json:"texture_score"`
	LandmarkCount  int     `json:"landmark_count"`
}

// Check names the five sub-checks.
type Check string

const (
	CheckBlink   Check = "blink"
	CheckPose    Check = "head_pose"
	CheckMotion  Check = "motion"
	CheckDepth   Check = "depth"
	CheckTexture Check = "texture"
)

// CheckResult is one sub-check outcome. Score is in [0, 100].
type CheckResult struct {
	Check  Check   `json:"check"`
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"`
}

// Result is the typed liveness outcome consumed by the cascade.
type Result struct {
	IsLive     bool          `json:"is_live"`
	Score      float64       `json:"score"`
	Confidence float64       `json:"confidence"`
	Checks     []CheckResult `json:"checks"`
	Reason     string        `json:"reason,omitempty"`
	Version    string        `json:"version"`
}

// FailedChecks lists the names of sub-checks that did not pass.
func (r Result) FailedChecks() []Check {
	var failed []Check
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c.Check)
		}
	}
	return failed
}

// Scorer is implemented by each versioned liveness algorithm.
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
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown liveness scorer version %q", cfg.Version))
	}
}

func validate(f Features, minLandmarks int) error {
	if f.LandmarkCount < minLandmarks {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("insufficient facial landmarks: got %d, need %d", f.LandmarkCount, minLandmarks))
	}
	if f.BlinkCount < 0 {
		return dErrors.New(dErrors.CodeValidation, "blink_count must not be negative")
	}
	for _, field := range []struct {
		name string
		v    float64
	}{
		{"eye_aspect_ratio", f.EyeAspectRatio},
		{"motion_score", f.MotionScore},
		{"depth_score", f.DepthScore},
		{"texture_score", f.TextureScore},
	} {
		if math.IsNaN(field.v) || field.v < 0 || field.v > 1 {
			return dErrors.New(dErrors.CodeValidation, field.name+" must be within [0, 1]")
		}
	}
	for _, field := range []struct {
		name string
		v    float64
	}{
		{"yaw_range", f.YawRange},
		{"pitch_range", f.PitchRange},
		{"roll_range", f.RollRange},
	} {
		if math.IsNaN(field.v) || field.v < 0 || field.v > 360 {
			return dErrors.New(dErrors.CodeValidation, field.name+" must be within [0, 360] degrees")
		}
	}
	return nil
}

func reasonFor(failed []Check) string {
	if len(failed) == 0 {
		return ""
	}
	names := make([]string, len(failed))
	for i, c := range failed {
		names[i] = string(c)
	}
	return "failed checks: " + strings.Join(names, ", ")
}

func clamp100(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
