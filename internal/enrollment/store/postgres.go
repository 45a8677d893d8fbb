package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"facegate/internal/biometric/embedding"
	"facegate/internal/enrollment"
	id "facegate/pkg/domain"
	"facegate/pkg/platform/sentinel"
	"facegate/pkg/platform/tx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS subjects (
		id                 UUID PRIMARY KEY,
		enrolled_at        TIMESTAMPTZ NOT NULL,
		last_verified_at   TIMESTAMPTZ,
		verification_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS face_embeddings (
		id         UUID PRIMARY KEY,
		subject_id UUID NOT NULL REFERENCES subjects(id),
		vector     DOUBLE PRECISION[] NOT NULL,
		quality    DOUBLE PRECISION NOT NULL,
		angle      TEXT NOT NULL,
		is_primary BOOLEAN NOT NULL DEFAULT FALSE,
		is_active  BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_face_embeddings_active ON face_embeddings (is_active) WHERE is_active`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_face_embeddings_one_primary
		ON face_embeddings (subject_id) WHERE is_primary AND is_active`,
	`CREATE TABLE IF NOT EXISTS reference_images (
		embedding_id UUID PRIMARY KEY REFERENCES face_embeddings(id),
		subject_id   UUID NOT NULL REFERENCES subjects(id),
		angle        TEXT NOT NULL,
		data         BYTEA NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		is_active    BOOLEAN NOT NULL DEFAULT TRUE,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reference_images_subject ON reference_images (subject_id) WHERE is_active`,
}

// PostgresStore keeps subjects, embeddings and reference images in
// PostgreSQL through database/sql and lib/pq.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) conn(ctx context.Context) execer {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure enrollment schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Replace(ctx context.Context, subjectID id.SubjectID, embeddings []embedding.Embedding, images []enrollment.ReferenceImage, at time.Time) (int, error) {
	var deactivated int
	err := tx.RunInTx(ctx, s.db, func(ctx context.Context) error {
		c := s.conn(ctx)
		subject := uuid.UUID(subjectID)

		if _, err := c.ExecContext(ctx, `
			INSERT INTO subjects (id, enrolled_at) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET enrolled_at = EXCLUDED.enrolled_at`,
			subject, at); err != nil {
			return fmt.Errorf("upsert subject: %w", err)
		}

		res, err := c.ExecContext(ctx, `
			UPDATE face_embeddings SET is_active = FALSE, is_primary = FALSE
			WHERE subject_id = $1 AND is_active`, subject)
		if err != nil {
			return fmt.Errorf("deactivate embeddings: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("deactivate embeddings: %w", err)
		}
		deactivated = int(n)

		if _, err := c.ExecContext(ctx,
			`UPDATE reference_images SET is_active = FALSE WHERE subject_id = $1 AND is_active`, subject); err != nil {
			return fmt.Errorf("deactivate reference images: %w", err)
		}

		for _, e := range embeddings {
			if _, err := c.ExecContext(ctx, `
				INSERT INTO face_embeddings (id, subject_id, vector, quality, angle, is_primary, is_active, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				uuid.UUID(e.ID), subject, pq.Array(e.Vector), e.Quality, string(e.Angle), e.IsPrimary, e.IsActive, e.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert embedding: %w", err)
			}
		}
		for _, img := range images {
			if _, err := c.ExecContext(ctx, `
				INSERT INTO reference_images (embedding_id, subject_id, angle, data, content_type, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				uuid.UUID(img.EmbeddingID), subject, string(img.Angle), img.Data, img.ContentType, img.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert reference image: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deactivated, nil
}

func (s *PostgresStore) ActiveEmbeddings(ctx context.Context) ([]embedding.Embedding, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, subject_id, vector, quality, angle, is_primary, is_active, created_at
		FROM face_embeddings WHERE is_active ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list active embeddings: %w", err)
	}
	defer rows.Close()

	out := make([]embedding.Embedding, 0)
	for rows.Next() {
		var (
			e                embedding.Embedding
			embID, subjectID uuid.UUID
			vector           []float64
			angle            string
		)
		if err := rows.Scan(&embID, &subjectID, pq.Array(&vector), &e.Quality, &angle, &e.IsPrimary, &e.IsActive, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		e.ID = id.EmbeddingID(embID)
		e.SubjectID = id.SubjectID(subjectID)
		e.Vector = vector
		e.Angle = embedding.Angle(angle)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ImagesForSubject(ctx context.Context, subjectID id.SubjectID) ([]enrollment.ReferenceImage, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT embedding_id, angle, data, content_type, created_at
		FROM reference_images WHERE subject_id = $1 AND is_active ORDER BY created_at, embedding_id`,
		uuid.UUID(subjectID))
	if err != nil {
		return nil, fmt.Errorf("list reference images: %w", err)
	}
	defer rows.Close()

	var out []enrollment.ReferenceImage
	for rows.Next() {
		var (
			img   enrollment.ReferenceImage
			embID uuid.UUID
			angle string
		)
		if err := rows.Scan(&embID, &angle, &img.Data, &img.ContentType, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reference image: %w", err)
		}
		img.EmbeddingID = id.EmbeddingID(embID)
		img.SubjectID = subjectID
		img.Angle = embedding.Angle(angle)
		out = append(out, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference images: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetSubject(ctx context.Context, subjectID id.SubjectID) (*enrollment.Subject, error) {
	subject := enrollment.Subject{ID: subjectID}
	var lastVerify sql.NullTime
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT enrolled_at, last_verified_at, verification_count FROM subjects WHERE id = $1`,
		uuid.UUID(subjectID)).Scan(&subject.EnrolledAt, &lastVerify, &subject.VerificationCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	if lastVerify.Valid {
		t := lastVerify.Time
		subject.LastVerifiedAt = &t
	}
	return &subject, nil
}

func (s *PostgresStore) RecordVerification(ctx context.Context, subjectID id.SubjectID, at time.Time) error {
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE subjects SET last_verified_at = $2, verification_count = verification_count + 1
		WHERE id = $1`, uuid.UUID(subjectID), at)
	if err != nil {
		return fmt.Errorf("record verification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record verification: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
