package handler

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"facegate/internal/routing"
	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"
	"facegate/pkg/platform/httputil"
	"facegate/pkg/requestcontext"
)

type Service interface {
	Decide(ctx context.Context, req routing.Request) (routing.Decision, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/sessions/{id}/routing", h.HandleDecide)
}

// DecideRequest supplements what the session already knows. Every field is
// optional; risk_score and has_critical_alert only escalate.
type DecideRequest struct {
	TerminalType     string   `json:"terminal_type,omitempty"`
	RequestedService string   `json:"requested_service,omitempty"`
	RiskScore        *float64 `json:"risk_score,omitempty"`
	HasCriticalAlert *bool    `json:"has_critical_alert,omitempty"`
}

func (r *DecideRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.TerminalType = strings.TrimSpace(r.TerminalType)
	r.RequestedService = strings.TrimSpace(r.RequestedService)
	if r.RiskScore != nil && (math.IsNaN(*r.RiskScore) || *r.RiskScore < 0 || *r.RiskScore > 1) {
		return dErrors.New(dErrors.CodeValidation, "risk_score must be within [0, 1]")
	}
	return nil
}

func (h *Handler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[DecideRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	decision, err := h.service.Decide(ctx, routing.Request{
		SessionID:        sessionID,
		TerminalType:     req.TerminalType,
		RequestedService: req.RequestedService,
		RiskScore:        req.RiskScore,
		HasCriticalAlert: req.HasCriticalAlert,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "routing decision failed",
			"request_id", requestID,
			"session_id", sessionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, decision)
}
