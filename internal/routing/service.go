package routing

import (
	"context"
	"errors"
	"log/slog"

	"facegate/internal/risk"
	"facegate/internal/session"
	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"
	"facegate/pkg/platform/audit"
	"facegate/pkg/platform/sentinel"
	"facegate/pkg/requestcontext"
)

type SessionStore interface {
	Get(ctx context.Context, sessionID id.SessionID) (*session.Session, error)
	Update(ctx context.Context, sessionID id.SessionID, fn func(*session.Session) error) (*session.Session, error)
}

type AlertSource interface {
	ListAlerts(ctx context.Context, sessionID id.SessionID) ([]*risk.Alert, error)
}

type AuditAppender interface {
	Append(ctx context.Context, rec audit.Record) (*audit.Event, error)
}

// Request carries the session context. TerminalType and RequestedService
// fill in what the session lacks. RiskScore and HasCriticalAlert can only
// escalate: the stored risk score and open alerts always apply.
type Request struct {
	SessionID        id.SessionID
	TerminalType     string
	RequestedService string
	RiskScore        *float64
	HasCriticalAlert *bool
}

type Service struct {
	engine   *Engine
	auditor  AuditAppender
	sessions SessionStore
	alerts   AlertSource
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithSessions(store SessionStore) Option {
	return func(s *Service) { s.sessions = store }
}

func WithAlerts(source AlertSource) Option {
	return func(s *Service) { s.alerts = source }
}

func NewService(engine *Engine, auditor AuditAppender, opts ...Option) (*Service, error) {
	if engine == nil {
		return nil, errors.New("routing engine is required")
	}
	if auditor == nil {
		return nil, errors.New("audit appender is required")
	}
	s := &Service{engine: engine, auditor: auditor, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Decide routes a completed session and records the decision on the
// session and in the audit chain.
func (s *Service) Decide(ctx context.Context, req Request) (Decision, error) {
	if req.SessionID.IsNil() {
		return Decision{}, dErrors.New(dErrors.CodeValidation, "session ID is required")
	}
	in, err := s.resolveInput(ctx, req)
	if err != nil {
		return Decision{}, err
	}
	decision := s.engine.Decide(in)
	now := requestcontext.Now(ctx)

	if s.sessions != nil {
		_, err := s.sessions.Update(ctx, req.SessionID, func(sess *session.Session) error {
			if !sess.Status.IsTerminal() {
				return sentinel.ErrInvalidState
			}
			sess.Routing = &session.Routing{
				Destination: string(decision.Destination),
				Priority:    string(decision.Priority),
				Rule:        string(decision.Rule),
				DecidedAt:   now,
			}
			sess.UpdatedAt = now
			return nil
		})
		if err != nil {
			if auditErr := s.auditFailure(ctx, req.SessionID, err); auditErr != nil {
				return Decision{}, auditErr
			}
			return Decision{}, session.TranslateError(err, "failed to record routing decision")
		}
	}

	if _, err := s.auditor.Append(ctx, audit.Record{
		Action:    audit.ActionRoutingDecided,
		Resource:  "session/" + req.SessionID.String(),
		Outcome:   audit.OutcomeSuccess,
		SessionID: req.SessionID.String(),
		Detail: map[string]string{
			"destination": string(decision.Destination),
			"priority":    string(decision.Priority),
			"rule":        string(decision.Rule),
		},
	}); err != nil {
		return Decision{}, err
	}

	s.logger.InfoContext(ctx, "session routed",
		"session_id", req.SessionID,
		"destination", decision.Destination,
		"priority", decision.Priority,
		"rule", decision.Rule,
	)
	return decision, nil
}

func (s *Service) resolveInput(ctx context.Context, req Request) (Input, error) {
	in := Input{TerminalType: req.TerminalType, RequestedService: req.RequestedService}
	if req.RiskScore != nil {
		in.RiskScore = *req.RiskScore
	}
	if req.HasCriticalAlert != nil {
		in.HasCriticalAlert = *req.HasCriticalAlert
	}

	if s.sessions != nil {
		sess, err := s.sessions.Get(ctx, req.SessionID)
		if err != nil {
			return Input{}, session.TranslateError(err, "failed to load session")
		}
		if !sess.Status.IsTerminal() {
			return Input{}, dErrors.New(dErrors.CodeConflict, "session verification has not completed")
		}
		if in.TerminalType == "" {
			in.TerminalType = sess.TerminalType
		}
		if in.RequestedService == "" {
			in.RequestedService = sess.RequestedService
		}
		if sess.RiskScore != nil {
			in.RiskScore = max(in.RiskScore, *sess.RiskScore)
		}
	}

	if !in.HasCriticalAlert && s.alerts != nil {
		alerts, err := s.alerts.ListAlerts(ctx, req.SessionID)
		if err != nil {
			return Input{}, err
		}
		for _, a := range alerts {
			if a.Severity == risk.SeverityCritical && !a.IsResolved {
				in.HasCriticalAlert = true
				break
			}
		}
	}
	return in, nil
}

func (s *Service) auditFailure(ctx context.Context, sessionID id.SessionID, cause error) error {
	_, err := s.auditor.Append(ctx, audit.Record{
		Action:    audit.ActionRoutingDecided,
		Resource:  "session/" + sessionID.String(),
		Outcome:   audit.OutcomeError,
		SessionID: sessionID.String(),
		Detail:    map[string]string{"error": cause.Error()},
	})
	return err
}
