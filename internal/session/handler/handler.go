package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"facegate/internal/session"
	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"
	"facegate/pkg/platform/httputil"
	"facegate/pkg/requestcontext"
)

type Service interface {
	Start(ctx context.Context, req session.StartRequest) (*session.Session, error)
	Get(ctx context.Context, sessionID id.SessionID) (*session.Session, error)
}

// Handler exposes session lifecycle endpoints to terminals.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/sessions", h.HandleStart)
	r.Get("/v1/sessions/{id}", h.HandleGet)
}

// StartRequest is the body of POST /v1/sessions. The terminal identity comes
// from the bearer token.
type StartRequest struct {
	RequestedService string `json:"requested_service"`
	SubjectID        string `json:"subject_id,omitempty"`

	subjectID id.SubjectID
}

func (r *StartRequest) Validate() error {
	r.RequestedService = strings.TrimSpace(r.RequestedService)
	if len(r.RequestedService) > 64 {
		return dErrors.New(dErrors.CodeValidation, "requested_service must be at most 64 characters")
	}
	if s := strings.TrimSpace(r.SubjectID); s != "" {
		subjectID, err := id.ParseSubjectID(s)
		if err != nil {
			return err
		}
		r.subjectID = subjectID
	}
	return nil
}

func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[StartRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	sess, err := h.service.Start(ctx, session.StartRequest{
		TerminalID:       requestcontext.TerminalID(ctx),
		TerminalType:     requestcontext.TerminalType(ctx),
		RequestedService: req.RequestedService,
		SubjectID:        req.subjectID,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to start session",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sess)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sess, err := h.service.Get(r.Context(), sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sess)
}
