// Package session models a verification session at a terminal and the
// stores that hold it while the cascade, risk and routing steps run.
package session

import (
	"fmt"
	"time"

	id "facegate/pkg/domain"
	"facegate/pkg/platform/sentinel"
)

// Status mirrors the cascade state machine. Terminal statuses end the
// session's verification phase.
type Status string

const (
	StatusInitiated      Status = "INITIATED"
	StatusLivenessCheck  Status = "LIVENESS_CHECK"
	StatusAntiSpoofCheck Status = "ANTISPOOF_CHECK"
	StatusEmbeddingMatch Status = "EMBEDDING_MATCH"
	StatusBackupVerify   Status = "BACKUP_VERIFY"
	StatusDirectDecision Status = "DIRECT_DECISION"
	StatusDecision       Status = "DECISION"
	StatusLivenessFailed Status = "LIVENESS_FAILED"
	StatusSpoofDetected  Status = "SPOOF_DETECTED"
	StatusError          Status = "ERROR"
)

const terminalRank = 5

var statusRank = map[Status]int{
	StatusInitiated:      0,
	StatusLivenessCheck:  1,
	StatusAntiSpoofCheck: 2,
	StatusEmbeddingMatch: 3,
	StatusBackupVerify:   4,
	StatusDirectDecision: terminalRank,
	StatusDecision:       terminalRank,
	StatusLivenessFailed: terminalRank,
	StatusSpoofDetected:  terminalRank,
	StatusError:          terminalRank,
}

func (s Status) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return statusRank[s] == terminalRank
}

// Scores are normalized to [0, 1]. Nil means the signal was not captured.
type Scores struct {
	Liveness    *float64 `json:"liveness,omitempty"`
	AntiSpoof   *float64 `json:"anti_spoof,omitempty"`
	FaceMatch   *float64 `json:"face_match,omitempty"`
	Fingerprint *float64 `json:"fingerprint,omitempty"`
	Document    *float64 `json:"document,omitempty"`
}

// Score returns a pointer for building Scores literals.
func Score(v float64) *float64 { return &v }

// Merge overlays the non-nil values of other.
func (s Scores) Merge(other Scores) Scores {
	if other.Liveness != nil {
		s.Liveness = other.Liveness
	}
	if other.AntiSpoof != nil {
		s.AntiSpoof = other.AntiSpoof
	}
	if other.FaceMatch != nil {
		s.FaceMatch = other.FaceMatch
	}
	if other.Fingerprint != nil {
		s.Fingerprint = other.Fingerprint
	}
	if other.Document != nil {
		s.Document = other.Document
	}
	return s
}

// Fill takes values from other only for signals s has not captured. Scores
// the cascade recorded stay authoritative.
func (s Scores) Fill(other Scores) Scores {
	if s.Liveness == nil {
		s.Liveness = other.Liveness
	}
	if s.AntiSpoof == nil {
		s.AntiSpoof = other.AntiSpoof
	}
	if s.FaceMatch == nil {
		s.FaceMatch = other.FaceMatch
	}
	if s.Fingerprint == nil {
		s.Fingerprint = other.Fingerprint
	}
	if s.Document == nil {
		s.Document = other.Document
	}
	return s
}

// Routing is the destination recorded on a completed session.
type Routing struct {
	Destination string    `json:"destination"`
	Priority    string    `json:"priority"`
	Rule        string    `json:"rule"`
	DecidedAt   time.Time `json:"decided_at"`
}

type Session struct {
	ID               id.SessionID  `json:"id"`
	TerminalID       id.TerminalID `json:"terminal_id"`
	TerminalType     string        `json:"terminal_type"`
	RequestedService string        `json:"requested_service,omitempty"`
	SubjectID        id.SubjectID  `json:"subject_id"`
	Status           Status        `json:"status"`
	Scores           Scores        `json:"scores"`
	RiskScore        *float64      `json:"risk_score,omitempty"`
	Routing          *Routing      `json:"routing,omitempty"`
	FingerprintHash  string        `json:"fingerprint_hash,omitempty"`
	LastAttemptID    id.AttemptID  `json:"last_attempt_id"`
	StartedAt        time.Time     `json:"started_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

// Advance moves the session forward. Moving backwards, staying put, or
// leaving a terminal status is rejected with sentinel.ErrInvalidState.
func (s *Session) Advance(to Status, now time.Time) error {
	if !to.IsValid() {
		return fmt.Errorf("unknown status %q: %w", to, sentinel.ErrInvalidState)
	}
	if s.Status.IsTerminal() {
		return fmt.Errorf("session %s already %s: %w", s.ID, s.Status, sentinel.ErrInvalidState)
	}
	if statusRank[to] <= statusRank[s.Status] {
		return fmt.Errorf("session %s cannot move from %s to %s: %w", s.ID, s.Status, to, sentinel.ErrInvalidState)
	}
	s.Status = to
	s.UpdatedAt = now
	if to.IsTerminal() {
		completed := now
		s.CompletedAt = &completed
	}
	return nil
}
