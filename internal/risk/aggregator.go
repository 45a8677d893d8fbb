package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"facegate/internal/risk/metrics"
	"facegate/internal/session"
	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"
	"facegate/pkg/platform/audit"
	"facegate/pkg/platform/sentinel"
	"facegate/pkg/requestcontext"
)

// Store persists alerts. Resolve fails with sentinel.ErrConflict when the
// alert is already resolved.
type Store interface {
	Save(ctx context.Context, alert *Alert) error
	Get(ctx context.Context, alertID id.AlertID) (*Alert, error)
	ListBySession(ctx context.Context, sessionID id.SessionID) ([]*Alert, error)
	Resolve(ctx context.Context, alertID id.AlertID, resolvedBy, resolution string, at time.Time) (*Alert, error)
}

// SessionStore is the subset of the session store the aggregator writes to.
type SessionStore interface {
	Update(ctx context.Context, sessionID id.SessionID, fn func(*session.Session) error) (*session.Session, error)
	FindByFingerprintHash(ctx context.Context, hash string) ([]*session.Session, error)
}

type AuditAppender interface {
	Append(ctx context.Context, rec audit.Record) (*audit.Event, error)
}

type Aggregator struct {
	cfg      Config
	store    Store
	auditor  AuditAppender
	sessions SessionStore
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Aggregator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithSessions writes evaluated risk back to sessions and enables the
// duplicate-fingerprint scan.
func WithSessions(s SessionStore) Option {
	return func(a *Aggregator) { a.sessions = s }
}

func NewAggregator(cfg Config, store Store, auditor AuditAppender, opts ...Option) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("risk alert store is required")
	}
	if auditor == nil {
		return nil, errors.New("audit appender is required")
	}
	a := &Aggregator{cfg: cfg, store: store, auditor: auditor, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// EvaluateSession scores a session and persists one alert per rule that
// fired. The risk score is clamped to [0,1]. With a session store, signals
// already recorded on the session win over scores; scores only fill gaps.
func (a *Aggregator) EvaluateSession(ctx context.Context, sessionID id.SessionID, scores session.Scores) (*Result, error) {
	if sessionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "session ID is required")
	}
	if err := validateScores(scores); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	score, findings := assess(a.cfg, scores)

	if a.sessions != nil {
		_, err := a.sessions.Update(ctx, sessionID, func(s *session.Session) error {
			s.Scores = s.Scores.Fill(scores)
			score, findings = assess(a.cfg, s.Scores)
			s.RiskScore = &score
			s.UpdatedAt = now
			return nil
		})
		if err != nil {
			return nil, session.TranslateError(err, "failed to record session risk")
		}
	}

	result := &Result{
		SessionID:      sessionID,
		RiskScore:      score,
		Recommendation: recommend(a.cfg, score, len(findings)),
		Alerts:         make([]*Alert, 0, len(findings)),
		EvaluatedAt:    now,
	}

	for _, f := range findings {
		alert, err := a.raise(ctx, sessionID, f, now)
		if err != nil {
			return nil, err
		}
		result.Alerts = append(result.Alerts, alert)
	}

	if _, err := a.auditor.Append(ctx, audit.Record{
		Action:    audit.ActionRiskEvaluated,
		Resource:  "session/" + sessionID.String(),
		Outcome:   audit.OutcomeSuccess,
		Actor:     actor(ctx),
		SessionID: sessionID.String(),
		Detail: map[string]string{
			"risk_score":     formatScore(score),
			"recommendation": string(result.Recommendation),
			"alerts":         fmt.Sprint(len(result.Alerts)),
		},
	}); err != nil {
		return nil, err
	}

	a.metrics.IncrementEvaluation(string(result.Recommendation), score)
	a.logger.InfoContext(ctx, "session risk evaluated",
		"session_id", sessionID,
		"risk_score", score,
		"recommendation", result.Recommendation,
		"alerts", len(result.Alerts),
	)
	return result, nil
}

// CheckDuplicateFingerprint records templateHash on the session and scans
// other sessions for the same hash. A hit owned by a different subject
// raises a CRITICAL alert, which is returned; no hit returns nil.
func (a *Aggregator) CheckDuplicateFingerprint(ctx context.Context, sessionID id.SessionID, subjectID id.SubjectID, templateHash string) (*Alert, error) {
	if a.sessions == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "duplicate fingerprint scan requires a session store")
	}
	if sessionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "session ID is required")
	}
	templateHash = strings.TrimSpace(templateHash)
	if templateHash == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "fingerprint template hash is required")
	}

	now := requestcontext.Now(ctx)
	current, err := a.sessions.Update(ctx, sessionID, func(s *session.Session) error {
		s.FingerprintHash = templateHash
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, session.TranslateError(err, "failed to record fingerprint hash")
	}
	if subjectID.IsNil() {
		subjectID = current.SubjectID
	}
	if subjectID.IsNil() {
		return nil, nil
	}

	others, err := a.sessions.FindByFingerprintHash(ctx, templateHash)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to scan fingerprint hashes")
	}
	var sessionIDs, subjectIDs []string
	for _, other := range others {
		if other.ID == sessionID || other.SubjectID.IsNil() || other.SubjectID == subjectID {
			continue
		}
		sessionIDs = append(sessionIDs, other.ID.String())
		subjectIDs = append(subjectIDs, other.SubjectID.String())
	}
	if len(sessionIDs) == 0 {
		return nil, nil
	}

	return a.raise(ctx, sessionID, finding{
		Type:        AlertDuplicateFingerprint,
		Severity:    SeverityCritical,
		Description: fmt.Sprintf("fingerprint template already presented by %d other subject session(s)", len(sessionIDs)),
		Evidence: map[string]string{
			"template_hash":       templateHash,
			"subject_id":          subjectID.String(),
			"matched_session_ids": strings.Join(sessionIDs, ","),
			"matched_subject_ids": strings.Join(subjectIDs, ","),
		},
	}, now)
}

// ResolveAlert is the only mutation an alert accepts.
func (a *Aggregator) ResolveAlert(ctx context.Context, alertID id.AlertID, resolvedBy, resolution string) (*Alert, error) {
	resolvedBy, resolution = strings.TrimSpace(resolvedBy), strings.TrimSpace(resolution)
	if resolvedBy == "" || resolution == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "resolver and resolution are required")
	}
	alert, err := a.store.Resolve(ctx, alertID, resolvedBy, resolution, requestcontext.Now(ctx))
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "alert not found")
	case errors.Is(err, sentinel.ErrConflict):
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "alert already resolved")
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve alert")
	}

	if _, err := a.auditor.Append(ctx, audit.Record{
		Action:    audit.ActionRiskAlertResolved,
		Resource:  "alert/" + alert.ID.String(),
		Outcome:   audit.OutcomeSuccess,
		Actor:     resolvedBy,
		SessionID: alert.SessionID.String(),
		Detail:    map[string]string{"type": string(alert.Type), "resolution": resolution},
	}); err != nil {
		return nil, err
	}
	a.metrics.IncrementResolution()
	return alert, nil
}

func (a *Aggregator) ListAlerts(ctx context.Context, sessionID id.SessionID) ([]*Alert, error) {
	alerts, err := a.store.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list alerts")
	}
	return alerts, nil
}

func (a *Aggregator) raise(ctx context.Context, sessionID id.SessionID, f finding, now time.Time) (*Alert, error) {
	alert := &Alert{
		ID:           id.NewAlertID(),
		SessionID:    sessionID,
		Type:         f.Type,
		Severity:     f.Severity,
		Description:  f.Description,
		Evidence:     f.Evidence,
		Contribution: f.Contribution,
		CreatedAt:    now,
	}
	if err := a.store.Save(ctx, alert); err != nil {
		if _, auditErr := a.auditor.Append(ctx, audit.Record{
			Action:    audit.ActionRiskAlertRaised,
			Resource:  "alert/" + alert.ID.String(),
			Outcome:   audit.OutcomeError,
			Actor:     actor(ctx),
			SessionID: sessionID.String(),
			Detail:    map[string]string{"type": string(f.Type), "severity": string(f.Severity), "error": err.Error()},
		}); auditErr != nil {
			return nil, auditErr
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist alert")
	}

	detail := maps.Clone(f.Evidence)
	if detail == nil {
		detail = map[string]string{}
	}
	detail["type"] = string(f.Type)
	detail["severity"] = string(f.Severity)
	if _, err := a.auditor.Append(ctx, audit.Record{
		Action:    audit.ActionRiskAlertRaised,
		Resource:  "alert/" + alert.ID.String(),
		Outcome:   audit.OutcomeSuccess,
		Actor:     actor(ctx),
		SessionID: sessionID.String(),
		Detail:    detail,
	}); err != nil {
		return nil, err
	}

	a.metrics.IncrementAlert(string(f.Type), string(f.Severity))
	a.logger.WarnContext(ctx, "risk alert raised",
		"session_id", sessionID,
		"alert_id", alert.ID,
		"type", f.Type,
		"severity", f.Severity,
	)
	return alert, nil
}

func actor(ctx context.Context) string {
	if t := requestcontext.TerminalID(ctx); !t.IsNil() {
		return "terminal/" + t.String()
	}
	return "system"
}
