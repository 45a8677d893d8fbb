package cascade

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks CandidateSource,ReferenceImages,BackupProvider,SubjectDirectory,SessionStore,AuditAppender

import (
	"context"
	"time"

	"facegate/internal/biometric/embedding"
	"facegate/internal/session"
	id "facegate/pkg/domain"
	"facegate/pkg/platform/audit"
)

// CandidateSource lists the active enrolled embeddings.
type CandidateSource interface {
	ActiveEmbeddings(ctx context.Context) ([]embedding.Embedding, error)
}

// ReferenceImages resolves the enrolled image behind a candidate embedding.
type ReferenceImages interface {
	ReferenceImage(ctx context.Context, candidate embedding.Embedding) ([]byte, error)
}

// BackupProvider compares two images and returns a similarity in [0, 100].
type BackupProvider interface {
	Compare(ctx context.Context, capture, reference []byte) (float64, error)
}

type SubjectDirectory interface {
	RecordVerification(ctx context.Context, subjectID id.SubjectID, at time.Time) error
}

type SessionStore interface {
	Update(ctx context.Context, sessionID id.SessionID, fn func(*session.Session) error) (*session.Session, error)
}

type AuditAppender interface {
	Append(ctx context.Context, rec audit.Record) (*audit.Event, error)
}
