// Package audit implements the tamper-evident, hash-linked audit log.
//
// Every event commits to its predecessor's hash, so altering or removing a
// stored event breaks verification for that event and everything after it.
// Append is fail-closed: a failed write is returned to the caller, whose
// operation must not be reported as successful.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/oklog/ulid/v2"

	dErrors "facegate/pkg/domain-errors"
	"facegate/pkg/platform/sentinel"
	"facegate/pkg/requestcontext"
)

type Chain struct {
	store     Store
	secret    []byte
	logger    *slog.Logger
	metrics   *Metrics
	forwarder Forwarder
}

type Option func(*Chain)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) { c.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Chain) { c.metrics = m }
}

// WithForwarder fans committed events out to a downstream sink.
func WithForwarder(f Forwarder) Option {
	return func(c *Chain) { c.forwarder = f }
}

func NewChain(store Store, secret []byte, opts ...Option) (*Chain, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	if len(secret) == 0 {
		return nil, errors.New("audit signing secret is required")
	}
	c := &Chain{store: store, secret: secret, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Append links a new event to the persisted tail.
func (c *Chain) Append(ctx context.Context, rec Record) (*Event, error) {
	if err := validateRecord(rec); err != nil {
		return nil, err
	}
	detail := maps.Clone(rec.Detail)
	if len(detail) == 0 {
		detail = nil
	}
	now := requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)
	requestID := requestcontext.RequestID(ctx)

	start := time.Now()
	event, err := c.store.AppendLinked(ctx, func(prev *Event) (*Event, error) {
		e := &Event{
			ID:           ulid.Make().String(),
			Sequence:     1,
			Action:       rec.Action,
			Resource:     rec.Resource,
			Outcome:      rec.Outcome,
			Actor:        rec.Actor,
			SessionID:    rec.SessionID,
			RequestID:    requestID,
			Detail:       detail,
			Timestamp:    now,
			PreviousHash: GenesisHash,
		}
		if prev != nil {
			e.Sequence = prev.Sequence + 1
			e.PreviousHash = prev.Hash
		}
		hash, err := ComputeHash(e)
		if err != nil {
			return nil, fmt.Errorf("hash audit event: %w", err)
		}
		e.Hash = hash
		e.Signature = Sign(hash, c.secret)
		return e, nil
	})
	c.metrics.ObserveAppend(time.Since(start), err)
	if err != nil {
		c.logger.ErrorContext(ctx, "audit append failed",
			"action", rec.Action,
			"session_id", rec.SessionID,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append audit event")
	}

	if c.forwarder != nil {
		c.forwarder.Forward(ctx, *event)
	}
	return event, nil
}

func validateRecord(rec Record) error {
	if rec.Action == "" {
		return dErrors.New(dErrors.CodeValidation, "audit action is required")
	}
	if rec.Resource == "" {
		return dErrors.New(dErrors.CodeValidation, "audit resource is required")
	}
	if !rec.Outcome.IsValid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid audit outcome %q", rec.Outcome))
	}
	return nil
}

// VerifyIntegrity recomputes the chain over r. An event is invalid when its
// previous hash does not match the recomputed hash of its predecessor, its
// own hash or signature does not recompute, its sequence skips, or any
// earlier event in the walk was invalid. A ranged walk anchors on the stored
// event just before the range.
func (c *Chain) VerifyIntegrity(ctx context.Context, r Range) (IntegrityReport, error) {
	if r.ToSequence > 0 && r.FromSequence > r.ToSequence {
		return IntegrityReport{}, dErrors.New(dErrors.CodeValidation, "range start must not exceed range end")
	}

	expectedPrev := GenesisHash
	expectedSeq := int64(1)
	if r.FromSequence > 1 {
		anchor, err := c.store.GetBySequence(ctx, r.FromSequence-1)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			// Missing anchor: the first event in range is checked against it and fails.
			expectedPrev = ""
			expectedSeq = r.FromSequence
		case err != nil:
			return IntegrityReport{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit anchor")
		default:
			expectedPrev = anchor.Hash
			expectedSeq = anchor.Sequence + 1
		}
	}

	events, err := c.store.List(ctx, r)
	if err != nil {
		return IntegrityReport{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events")
	}

	report := IntegrityReport{Valid: true, Checked: len(events), InvalidEventIDs: []string{}, VerifiedAt: requestcontext.Now(ctx).UTC()}
	broken := false
	for i := range events {
		e := &events[i]
		recomputed, err := ComputeHash(e)
		ok := err == nil &&
			e.Sequence == expectedSeq &&
			e.PreviousHash == expectedPrev &&
			e.Hash == recomputed &&
			e.Signature == Sign(recomputed, c.secret)
		if !ok || broken {
			broken = true
			report.Valid = false
			report.InvalidEventIDs = append(report.InvalidEventIDs, e.ID)
			if report.FirstInvalid == "" {
				report.FirstInvalid = e.ID
			}
		}
		expectedPrev = recomputed
		expectedSeq = e.Sequence + 1
	}

	if !report.Valid {
		c.metrics.AddIntegrityFailures(len(report.InvalidEventIDs))
		c.logger.WarnContext(ctx, "audit chain integrity violation",
			"first_invalid", report.FirstInvalid,
			"invalid_count", len(report.InvalidEventIDs),
			"checked", report.Checked,
		)
	}
	return report, nil
}
