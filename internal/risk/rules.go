package risk

import (
	"fmt"
	"math"
	"strconv"

	"facegate/internal/session"
	dErrors "facegate/pkg/domain-errors"
)

// finding is an alert before it has an identity or a session.
type finding struct {
	Type         AlertType
	Severity     Severity
	Description  string
	Evidence     map[string]string
	Contribution float64
}

// assess applies the per-signal rules. This is pure domain logic: absent
// scores raise nothing, and every rule that fires yields its own finding.
func assess(cfg Config, scores session.Scores) (float64, []finding) {
	checks := []struct {
		score    *float64
		rule     Rule
		typ      AlertType
		severity Severity
		label    string
	}{
		{scores.Liveness, cfg.Liveness, AlertLivenessFailed, SeverityCritical, "liveness"},
		{scores.FaceMatch, cfg.FaceMatch, AlertIdentitySpoofing, SeverityHigh, "face match"},
		{scores.Document, cfg.Document, AlertFaceDocumentMismatch, SeverityHigh, "document photo match"},
		{scores.Fingerprint, cfg.Fingerprint, AlertFingerprintMismatch, SeverityMedium, "fingerprint match"},
	}

	var total float64
	var findings []finding
	for _, c := range checks {
		if c.score == nil || *c.score >= c.rule.Min {
			continue
		}
		total += c.rule.Contribution
		findings = append(findings, finding{
			Type:         c.typ,
			Severity:     c.severity,
			Description:  fmt.Sprintf("%s score %.2f below %.2f", c.label, *c.score, c.rule.Min),
			Contribution: c.rule.Contribution,
			Evidence: map[string]string{
				"score":     formatScore(*c.score),
				"threshold": formatScore(c.rule.Min),
			},
		})
	}
	return clamp01(total), findings
}

func recommend(cfg Config, risk float64, alerts int) Recommendation {
	switch {
	case risk >= cfg.BlockThreshold:
		return RecommendBlock
	case risk >= cfg.AlertThreshold:
		return RecommendAlert
	case alerts > 0:
		return RecommendRedirect
	default:
		return RecommendAllow
	}
}

func validateScores(scores session.Scores) error {
	fields := []struct {
		name  string
		value *float64
	}{
		{"liveness", scores.Liveness},
		{"anti_spoof", scores.AntiSpoof},
		{"face_match", scores.FaceMatch},
		{"fingerprint", scores.Fingerprint},
		{"document", scores.Document},
	}
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		v := *f.value
		if math.IsNaN(v) || v < 0 || v > 1 {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s score must be within [0,1]", f.name))
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
