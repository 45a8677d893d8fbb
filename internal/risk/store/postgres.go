package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"facegate/internal/risk"
	id "facegate/pkg/domain"
	"facegate/pkg/platform/sentinel"
	"facegate/pkg/platform/tx"
)

const uniqueViolation = "23505"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS risk_alerts (
		id           UUID PRIMARY KEY,
		session_id   UUID NOT NULL,
		alert_type   TEXT NOT NULL,
		severity     TEXT NOT NULL,
		description  TEXT NOT NULL,
		evidence     JSONB,
		contribution DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_resolved  BOOLEAN NOT NULL DEFAULT FALSE,
		resolved_by  TEXT,
		resolution   TEXT,
		created_at   TIMESTAMPTZ NOT NULL,
		resolved_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_risk_alerts_session ON risk_alerts (session_id, created_at)`,
}

const alertColumns = `id, session_id, alert_type, severity, description, evidence, contribution,
	is_resolved, resolved_by, resolution, created_at, resolved_at`

// PostgresStore persists alerts with database/sql. Writes join a
// transaction carried in context when one is present.
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
			return fmt.Errorf("ensure risk schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, alert *risk.Alert) error {
	evidence, err := json.Marshal(alert.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO risk_alerts (id, session_id, alert_type, severity, description, evidence, contribution, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.UUID(alert.ID), uuid.UUID(alert.SessionID), string(alert.Type), string(alert.Severity),
		alert.Description, evidence, alert.Contribution, alert.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, alertID id.AlertID) (*risk.Alert, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `SELECT `+alertColumns+` FROM risk_alerts WHERE id = $1`, uuid.UUID(alertID))
	return scanAlert(row)
}

func (s *PostgresStore) ListBySession(ctx context.Context, sessionID id.SessionID) ([]*risk.Alert, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+alertColumns+` FROM risk_alerts WHERE session_id = $1 ORDER BY created_at, alert_type`,
		uuid.UUID(sessionID))
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	out := make([]*risk.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

// Resolve locks the row so two resolvers cannot both succeed.
func (s *PostgresStore) Resolve(ctx context.Context, alertID id.AlertID, resolvedBy, resolution string, at time.Time) (*risk.Alert, error) {
	var out *risk.Alert
	err := tx.RunInTx(ctx, s.db, func(ctx context.Context) error {
		c := s.conn(ctx)
		var resolved bool
		err := c.QueryRowContext(ctx, `SELECT is_resolved FROM risk_alerts WHERE id = $1 FOR UPDATE`, uuid.UUID(alertID)).Scan(&resolved)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock alert: %w", err)
		}
		if resolved {
			return sentinel.ErrConflict
		}
		row := c.QueryRowContext(ctx, `
			UPDATE risk_alerts
			SET is_resolved = TRUE, resolved_by = $2, resolution = $3, resolved_at = $4
			WHERE id = $1
			RETURNING `+alertColumns,
			uuid.UUID(alertID), resolvedBy, resolution, at)
		out, err = scanAlert(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(row scanner) (*risk.Alert, error) {
	var (
		a                      risk.Alert
		alertID, sessionID     uuid.UUID
		alertType, severity    string
		evidence               []byte
		resolvedBy, resolution sql.NullString
		resolvedAt             sql.NullTime
	)
	err := row.Scan(&alertID, &sessionID, &alertType, &severity, &a.Description, &evidence, &a.Contribution,
		&a.IsResolved, &resolvedBy, &resolution, &a.CreatedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	a.ID = id.AlertID(alertID)
	a.SessionID = id.SessionID(sessionID)
	a.Type = risk.AlertType(alertType)
	a.Severity = risk.Severity(severity)
	a.ResolvedBy = resolvedBy.String
	a.Resolution = resolution.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	if len(evidence) > 0 && string(evidence) != "null" {
		if err := json.Unmarshal(evidence, &a.Evidence); err != nil {
			return nil, fmt.Errorf("unmarshal evidence: %w", err)
		}
	}
	return &a, nil
}
