package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"
	"facegate/pkg/platform/sentinel"
	"facegate/pkg/requestcontext"
)

// Store holds sessions. Update applies fn atomically with respect to other
// updates of the same session.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, sessionID id.SessionID) (*Session, error)
	Update(ctx context.Context, sessionID id.SessionID, fn func(s *Session) error) (*Session, error)
	FindByFingerprintHash(ctx context.Context, hash string) ([]*Session, error)
}

type StartRequest struct {
	TerminalID       id.TerminalID
	TerminalType     string
	RequestedService string
	SubjectID        id.SubjectID
}

type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start opens a session in INITIATED status.
func (s *Service) Start(ctx context.Context, req StartRequest) (*Session, error) {
	if req.TerminalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "terminal ID is required")
	}
	now := requestcontext.Now(ctx)
	sess := &Session{
		ID:               id.NewSessionID(),
		TerminalID:       req.TerminalID,
		TerminalType:     strings.ToUpper(strings.TrimSpace(req.TerminalType)),
		RequestedService: strings.ToLower(strings.TrimSpace(req.RequestedService)),
		SubjectID:        req.SubjectID,
		Status:           StatusInitiated,
		StartedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
	}
	s.logger.InfoContext(ctx, "verification session started",
		"session_id", sess.ID,
		"terminal_id", sess.TerminalID,
		"terminal_type", sess.TerminalType,
	)
	return sess, nil
}

func (s *Service) Get(ctx context.Context, sessionID id.SessionID) (*Session, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, TranslateError(err, "failed to load session")
	}
	return sess, nil
}

// TranslateError maps store sentinels to domain errors.
func TranslateError(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "session not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeConflict, "session state does not allow this operation")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
