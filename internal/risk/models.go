// Package risk turns per-session verification scores into fraud alerts and
// an allow/redirect/alert/block recommendation.
package risk

import (
	"time"

	id "facegate/pkg/domain"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

type AlertType string

const (
	AlertLivenessFailed       AlertType = "LIVENESS_FAILED"
	AlertIdentitySpoofing     AlertType = "IDENTITY_SPOOFING"
	AlertFaceDocumentMismatch AlertType = "FACE_DOCUMENT_MISMATCH"
	AlertFingerprintMismatch  AlertType = "FINGERPRINT_MISMATCH"
	AlertDuplicateFingerprint AlertType = "DUPLICATE_FINGERPRINT"
)

type Recommendation string

const (
	RecommendAllow    Recommendation = "ALLOW"
	RecommendRedirect Recommendation = "REDIRECT"
	RecommendAlert    Recommendation = "ALERT"
	RecommendBlock    Recommendation = "BLOCK"
)

// Alert is created by the aggregator and only ever mutated by resolution.
type Alert struct {
	ID           id.AlertID        `json:"id"`
	SessionID    id.SessionID      `json:"session_id"`
	Type         AlertType         `json:"type"`
	Severity     Severity          `json:"severity"`
	Description  string            `json:"description"`
	Evidence     map[string]string `json:"evidence,omitempty"`
	Contribution float64           `json:"contribution"`
	IsResolved   bool              `json:"is_resolved"`
	ResolvedBy   string            `json:"resolved_by,omitempty"`
	Resolution   string            `json:"resolution,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	ResolvedAt   *time.Time        `json:"resolved_at,omitempty"`
}

// Result is the outcome of one risk evaluation.
type Result struct {
	SessionID      id.SessionID   `json:"session_id"`
	RiskScore      float64        `json:"risk_score"`
	Recommendation Recommendation `json:"recommendation"`
	Alerts         []*Alert       `json:"alerts"`
	EvaluatedAt    time.Time      `json:"evaluated_at"`
}

// HasCritical reports whether any alert is CRITICAL. Routing keys off this.
func (r *Result) HasCritical() bool {
	for _, a := range r.Alerts {
		if a.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
