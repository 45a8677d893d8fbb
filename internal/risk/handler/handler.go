package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"facegate/internal/risk"
	"facegate/internal/session"
	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"
	"facegate/pkg/platform/httputil"
	"facegate/pkg/requestcontext"
)

type Service interface {
	EvaluateSession(ctx context.Context, sessionID id.SessionID, scores session.Scores) (*risk.Result, error)
	CheckDuplicateFingerprint(ctx context.Context, sessionID id.SessionID, subjectID id.SubjectID, templateHash string) (*risk.Alert, error)
	ResolveAlert(ctx context.Context, alertID id.AlertID, resolvedBy, resolution string) (*risk.Alert, error)
	ListAlerts(ctx context.Context, sessionID id.SessionID) ([]*risk.Alert, error)
}

// SessionReader supplies the scores the cascade already recorded.
type SessionReader interface {
	Get(ctx context.Context, sessionID id.SessionID) (*session.Session, error)
}

type Handler struct {
	service  Service
	sessions SessionReader
	logger   *slog.Logger
}

// New builds the handler. With a session reader, scores stored on the
// session take precedence over the request; the request fills the gaps.
func New(service Service, sessions SessionReader, logger *slog.Logger) *Handler {
	return &Handler{service: service, sessions: sessions, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/sessions/{id}/risk", h.HandleEvaluate)
	r.Post("/v1/sessions/{id}/fingerprint", h.HandleFingerprint)
	r.Get("/v1/sessions/{id}/alerts", h.HandleListAlerts)
}

// RegisterReview mounts alert resolution, which only a reviewer may perform.
func (h *Handler) RegisterReview(r chi.Router) {
	r.Post("/v1/alerts/{id}/resolve", h.HandleResolve)
}

type EvaluateRequest struct {
	Scores session.Scores `json:"scores"`
}

func (r *EvaluateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

type FingerprintRequest struct {
	Template  []byte `json:"template"`
	SubjectID string `json:"subject_id,omitempty"`

	subjectID id.SubjectID
}

func (r *FingerprintRequest) Validate() error {
	if r == nil || len(r.Template) == 0 {
		return dErrors.New(dErrors.CodeValidation, "template is required")
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

type FingerprintResponse struct {
	Duplicate bool        `json:"duplicate"`
	Alert     *risk.Alert `json:"alert,omitempty"`
}

// ResolveRequest carries the outcome of a review. The resolver is the
// authenticated reviewer.
type ResolveRequest struct {
	Resolution string `json:"resolution"`
}

func (r *ResolveRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Resolution = strings.TrimSpace(r.Resolution)
	if r.Resolution == "" {
		return dErrors.New(dErrors.CodeValidation, "resolution is required")
	}
	if len(r.Resolution) > 1024 {
		return dErrors.New(dErrors.CodeValidation, "resolution must be at most 1024 characters")
	}
	return nil
}

func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[EvaluateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	scores := req.Scores
	if h.sessions != nil {
		sess, err := h.sessions.Get(ctx, sessionID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		scores = sess.Scores.Fill(req.Scores)
	}

	result, err := h.service.EvaluateSession(ctx, sessionID, scores)
	if err != nil {
		h.logger.ErrorContext(ctx, "risk evaluation failed",
			"request_id", requestID,
			"session_id", sessionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleFingerprint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[FingerprintRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	alert, err := h.service.CheckDuplicateFingerprint(ctx, sessionID, req.subjectID, risk.HashTemplate(req.Template))
	if err != nil {
		h.logger.ErrorContext(ctx, "fingerprint check failed",
			"request_id", requestID,
			"session_id", sessionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FingerprintResponse{Duplicate: alert != nil, Alert: alert})
}

func (h *Handler) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	alerts, err := h.service.ListAlerts(r.Context(), sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	reviewer := requestcontext.Reviewer(ctx)
	if reviewer == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "reviewer identity required"))
		return
	}
	alertID, err := id.ParseAlertID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ResolveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	alert, err := h.service.ResolveAlert(ctx, alertID, reviewer, req.Resolution)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "risk alert resolved",
		"request_id", requestID,
		"alert_id", alertID,
		"resolved_by", reviewer,
	)
	httputil.WriteJSON(w, http.StatusOK, alert)
}
