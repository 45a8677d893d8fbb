package audit

import (
	"fmt"
	"time"

	dErrors "facegate/pkg/domain-errors"
)

// GenesisHash is the previous-hash of the first event in a chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Outcome classifies how the audited step ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
	OutcomeError   Outcome = "ERROR"
)

func (o Outcome) IsValid() bool {
	return o == OutcomeSuccess || o == OutcomeFailure || o == OutcomeError
}

// Action names an audited step. Callers of the public append operation may
// use their own actions; these are the ones emitted internally.
type Action string

const (
	ActionCascadeStarted    Action = "cascade.started"
	ActionCascadeRejected   Action = "cascade.rejected"
	ActionLivenessChecked   Action = "cascade.liveness_checked"
	ActionAntiSpoofChecked  Action = "cascade.antispoof_checked"
	ActionEmbeddingMatched  Action = "cascade.embedding_matched"
	ActionBackupVerified    Action = "cascade.backup_verified"
	ActionCascadeDecided    Action = "cascade.decided"
	ActionEnrollmentCreated Action = "enrollment.created"
	ActionRiskEvaluated     Action = "risk.evaluated"
	ActionRiskAlertRaised   Action = "risk.alert_raised"
	ActionRiskAlertResolved Action = "risk.alert_resolved"
	ActionRoutingDecided    Action = "routing.decided"
)

// Record is what callers submit; the chain fills in identity, ordering and
// hashes.
type Record struct {
	Action    Action
	Resource  string
	Outcome   Outcome
	Actor     string
	SessionID string
	Detail    map[string]string
}

// Event is an immutable, hash-linked audit entry. Validity is never stored;
// it is recomputed by VerifyIntegrity.
type Event struct {
	ID           string            `json:"id"`
	Sequence     int64             `json:"sequence"`
	Action       Action            `json:"action"`
	Resource     string            `json:"resource"`
	Outcome      Outcome           `json:"outcome"`
	Actor        string            `json:"actor,omitempty"`
	SessionID    string            `json:"session_id,omitempty"`
	RequestID    string            `json:"request_id,omitempty"`
	Detail       map[string]string `json:"detail,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	PreviousHash string            `json:"previous_hash"`
	Hash         string            `json:"hash"`
	Signature    string            `json:"signature"`
}

// Range selects events by sequence, inclusive. Zero bounds are open.
type Range struct {
	FromSequence int64
	ToSequence   int64
}

func (r Range) Contains(seq int64) bool {
	if r.FromSequence > 0 && seq < r.FromSequence {
		return false
	}
	if r.ToSequence > 0 && seq > r.ToSequence {
		return false
	}
	return true
}

// IntegrityReport is the outcome of a verification pass.
type IntegrityReport struct {
	Valid           bool      `json:"valid"`
	Checked         int       `json:"checked"`
	InvalidEventIDs []string  `json:"invalid_event_ids"`
	FirstInvalid    string    `json:"first_invalid,omitempty"`
	VerifiedAt      time.Time `json:"verified_at"`
}

// Err converts a failed report into an integrity error for callers that must
// stop on tampering, such as the startup check.
func (r IntegrityReport) Err() error {
	if r.Valid {
		return nil
	}
	return dErrors.New(dErrors.CodeIntegrity,
		fmt.Sprintf("audit chain integrity violated at event %s (%d invalid of %d checked)", r.FirstInvalid, len(r.InvalidEventIDs), r.Checked))
}
