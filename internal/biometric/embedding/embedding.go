// Package embedding compares face embeddings and classifies match strength.
//
// Vectors are compared with cosine distance (1 - cos θ, range [0, 2]). The
// Matcher validates every vector against the deployment's fixed dimension
// before use; malformed vectors never reach the distance computation.
package embedding

import (
	"fmt"
	"time"

	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"
)

// Angle is the head orientation a reference embedding was captured at.
type Angle string

const (
	AngleFrontal  Angle = "FRONTAL"
	AngleLeft     Angle = "LEFT"
	AngleRight    Angle = "RIGHT"
	AngleUp       Angle = "UP"
	AngleDown     Angle = "DOWN"
	AngleAveraged Angle = "AVERAGED"
)

func (a Angle) IsValid() bool {
	switch a {
	case AngleFrontal, AngleLeft, AngleRight, AngleUp, AngleDown, AngleAveraged:
		return true
	}
	return false
}

// Embedding is a stored reference vector for a subject. Vectors are unit
// length once persisted. Inactive embeddings are kept for history and never
// matched against.
type Embedding struct {
	ID        id.EmbeddingID `json:"id"`
	SubjectID id.SubjectID   `json:"subject_id"`
	Vector    []float64      `json:"vector"`
	Quality   float64        `json:"quality"`
	Angle     Angle          `json:"angle"`
	IsPrimary bool           `json:"is_primary"`
	IsActive  bool           `json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
}

// MatchLevel buckets a distance into a confidence band.
type MatchLevel string

const (
	LevelHigh   MatchLevel = "HIGH"
	LevelMedium MatchLevel = "MEDIUM"
	LevelLow    MatchLevel = "LOW"
	LevelNone   MatchLevel = "NONE"
)

// ComparisonResult describes one query/reference comparison.
type ComparisonResult struct {
	Distance   float64    `json:"distance"`
	Similarity float64    `json:"similarity"`
	Level      MatchLevel `json:"level"`
}

// Match is the outcome of a best-match search over a candidate pool.
// Found is false when no active, well-formed candidate existed.
type Match struct {
	Found     bool             `json:"found"`
	Candidate Embedding        `json:"candidate"`
	Index     int              `json:"index"`
	Result    ComparisonResult `json:"result"`
	Skipped   int              `json:"skipped"`
}

var (
	ErrDimensionMismatch = dErrors.New(dErrors.CodeValidation, "embedding dimension mismatch")
	ErrMalformedVector   = dErrors.New(dErrors.CodeValidation, "malformed embedding vector")
	ErrEmptySampleSet    = dErrors.New(dErrors.CodeValidation, "at least one embedding sample is required")
)

func dimensionError(got, want int) error {
	return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, got, want)
}
