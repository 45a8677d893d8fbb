// Package cascade runs a capture through the liveness, anti-spoof and
// embedding gates, escalates borderline matches to a backup comparison
// provider, and fuses the signals into one decision.
package cascade

import (
	"time"

	"facegate/internal/biometric/antispoof"
	"facegate/internal/biometric/embedding"
	"facegate/internal/biometric/liveness"
	"facegate/internal/session"
	id "facegate/pkg/domain"
)

type Decision string

const (
	DecisionMatch          Decision = "MATCH"
	DecisionNoMatch        Decision = "NO_MATCH"
	DecisionLivenessFailed Decision = "LIVENESS_FAILED"
	DecisionSpoofDetected  Decision = "SPOOF_DETECTED"
	DecisionError          Decision = "ERROR"
)

// ReasonBackupUnavailable is reported when a borderline match could not be
// confirmed remotely.
const ReasonBackupUnavailable = "borderline, backup unavailable"

// Capture is one verification attempt. Candidates is optional; when empty
// the active enrolled embeddings are used.
type Capture struct {
	SessionID  id.SessionID
	Embedding  []float64
	Liveness   liveness.Features
	AntiSpoof  antispoof.Features
	Image      []byte
	Candidates []embedding.Embedding
}

type Gate string

const (
	GateLiveness  Gate = "liveness"
	GateAntiSpoof Gate = "anti_spoof"
	GateEmbedding Gate = "embedding"
	GateBackup    Gate = "backup"
)

// GateResult is one row of the per-provider breakdown. Score is on the
// 0-100 scale of the gate.
type GateResult struct {
	Gate   Gate    `json:"gate"`
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"`
	Detail string  `json:"detail,omitempty"`
}

// BackupResult records the remote comparison, if one was attempted.
type BackupResult struct {
	Attempted  bool          `json:"attempted"`
	Available  bool          `json:"available"`
	Similarity float64       `json:"similarity"`
	Matched    bool          `json:"matched"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Result is immutable once returned; one per attempt.
type Result struct {
	AttemptID  id.AttemptID                `json:"attempt_id"`
	SessionID  id.SessionID                `json:"session_id,omitempty"`
	State      session.Status              `json:"state"`
	Decision   Decision                    `json:"decision"`
	Confidence float64                     `json:"confidence"`
	SubjectID  id.SubjectID                `json:"subject_id,omitempty"`
	Level      embedding.MatchLevel        `json:"match_level,omitempty"`
	Gates      []GateResult                `json:"gates"`
	Liveness   *liveness.Result            `json:"liveness,omitempty"`
	AntiSpoof  *antispoof.Result           `json:"anti_spoof,omitempty"`
	Match      *embedding.ComparisonResult `json:"match,omitempty"`
	Backup     *BackupResult               `json:"backup,omitempty"`
	Reason     string                      `json:"reason,omitempty"`
	StartedAt  time.Time                   `json:"started_at"`
	Duration   time.Duration               `json:"duration"`
}

// Scores converts the gate results to the [0,1] session scores the risk
// aggregator consumes.
func (r *Result) Scores() session.Scores {
	var s session.Scores
	if r.Liveness != nil {
		s.Liveness = session.Score(r.Liveness.Score / 100)
	}
	if r.AntiSpoof != nil {
		s.AntiSpoof = session.Score(r.AntiSpoof.PassScore / 100)
	}
	if r.Match != nil {
		s.FaceMatch = session.Score(r.Match.Similarity / 100)
	}
	return s
}
