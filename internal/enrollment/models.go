// Package enrollment registers a subject's reference embeddings and images
// and serves them back to the cascade.
package enrollment

import (
	"time"

	"facegate/internal/biometric/antispoof"
	"facegate/internal/biometric/embedding"
	"facegate/internal/biometric/liveness"
	id "facegate/pkg/domain"
)

// Sample is one capture offered for enrollment.
type Sample struct {
	Embedding   []float64          `json:"embedding"`
	Angle       embedding.Angle    `json:"angle"`
	Liveness    liveness.Features  `json:"liveness"`
	AntiSpoof   antispoof.Features `json:"anti_spoof"`
	Image       []byte             `json:"image"`
	ContentType string             `json:"content_type,omitempty"`
}

type Request struct {
	SubjectID id.SubjectID
	Samples   []Sample
}

// Record summarizes a completed enrollment.
type Record struct {
	SubjectID        id.SubjectID     `json:"subject_id"`
	PrimaryID        id.EmbeddingID   `json:"primary_embedding_id"`
	EmbeddingIDs     []id.EmbeddingID `json:"embedding_ids"`
	Quality          float64          `json:"quality"`
	SampleCount      int              `json:"sample_count"`
	DeactivatedCount int              `json:"deactivated_count"`
	EnrolledAt       time.Time        `json:"enrolled_at"`
}

// ReferenceImage is the capture an embedding was derived from, kept for the
// backup comparison provider.
type ReferenceImage struct {
	EmbeddingID id.EmbeddingID
	SubjectID   id.SubjectID
	Angle       embedding.Angle
	Data        []byte
	ContentType string
	CreatedAt   time.Time
}

type Subject struct {
	ID                id.SubjectID `json:"id"`
	EnrolledAt        time.Time    `json:"enrolled_at"`
	LastVerifiedAt    *time.Time   `json:"last_verified_at,omitempty"`
	VerificationCount int          `json:"verification_count"`
}
