package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	audit "facegate/pkg/platform/audit"
	"facegate/pkg/platform/sentinel"
)

// chainLockKey identifies the advisory lock guarding the chain tail.
const chainLockKey int64 = 0x6661636567617465

var schema = []string{`
CREATE TABLE IF NOT EXISTS audit_chain (
	sequence      BIGINT PRIMARY KEY,
	id            TEXT NOT NULL UNIQUE,
	action        TEXT NOT NULL,
	resource      TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	actor         TEXT NOT NULL DEFAULT '',
	session_id    TEXT NOT NULL DEFAULT '',
	request_id    TEXT NOT NULL DEFAULT '',
	detail        JSONB,
	occurred_at   TIMESTAMPTZ NOT NULL,
	previous_hash TEXT NOT NULL,
	hash          TEXT NOT NULL,
	signature     TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_chain_session ON audit_chain (session_id)`,
}

const selectColumns = `sequence, id, action, resource, outcome, actor, session_id, request_id, detail, occurred_at, previous_hash, hash, signature`

// Store persists the audit chain in PostgreSQL. Appends run in a transaction
// holding a transaction-scoped advisory lock, so concurrent writers across
// processes serialize on the tail read.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the chain table if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create audit_chain schema: %w", err)
		}
	}
	return nil
}

func (s *Store) AppendLinked(ctx context.Context, build func(prev *audit.Event) (*audit.Event, error)) (*audit.Event, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin audit tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, chainLockKey); err != nil {
		return nil, fmt.Errorf("lock audit chain: %w", err)
	}

	prev, err := scanEvent(tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM audit_chain ORDER BY sequence DESC LIMIT 1`))
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("read audit tail: %w", err)
	}

	e, err := build(prev)
	if err != nil {
		return nil, err
	}

	var detail []byte
	if e.Detail != nil {
		if detail, err = json.Marshal(e.Detail); err != nil {
			return nil, fmt.Errorf("marshal audit detail: %w", err)
		}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO audit_chain (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.Sequence, e.ID, string(e.Action), e.Resource, string(e.Outcome), e.Actor, e.SessionID, e.RequestID,
		detail, e.Timestamp, e.PreviousHash, e.Hash, e.Signature,
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit audit event: %w", err)
	}
	return e, nil
}

func (s *Store) Last(ctx context.Context) (*audit.Event, error) {
	return scanEvent(s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM audit_chain ORDER BY sequence DESC LIMIT 1`))
}

func (s *Store) GetBySequence(ctx context.Context, seq int64) (*audit.Event, error) {
	return scanEvent(s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM audit_chain WHERE sequence = $1`, seq))
}

func (s *Store) List(ctx context.Context, r audit.Range) ([]audit.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+` FROM audit_chain
		WHERE ($1::bigint = 0 OR sequence >= $1) AND ($2::bigint = 0 OR sequence <= $2)
		ORDER BY sequence ASC`, r.FromSequence, r.ToSequence)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func scanEvent(row pgx.Row) (*audit.Event, error) {
	var (
		e       audit.Event
		action  string
		outcome string
		detail  []byte
	)
	err := row.Scan(&e.Sequence, &e.ID, &action, &e.Resource, &outcome, &e.Actor, &e.SessionID, &e.RequestID,
		&detail, &e.Timestamp, &e.PreviousHash, &e.Hash, &e.Signature)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan audit event: %w", err)
	}
	e.Action = audit.Action(action)
	e.Outcome = audit.Outcome(outcome)
	e.Timestamp = e.Timestamp.UTC()
	if len(detail) > 0 && string(detail) != "null" {
		if err := json.Unmarshal(detail, &e.Detail); err != nil {
			return nil, fmt.Errorf("unmarshal audit detail: %w", err)
		}
	}
	return &e, nil
}
