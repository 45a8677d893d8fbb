package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"facegate/internal/biometric/antispoof"
	"facegate/internal/biometric/liveness"
	"facegate/internal/cascade"
	"facegate/internal/perception"
	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"
	"facegate/pkg/platform/httputil"
	"facegate/pkg/requestcontext"
)

type Orchestrator interface {
	Evaluate(ctx context.Context, capture cascade.Capture) (*cascade.Result, error)
	Reject(ctx context.Context, sessionID id.SessionID, cause error) error
}

// Handler accepts verification captures from terminals.
type Handler struct {
	orchestrator Orchestrator
	perception   perception.Provider
	logger       *slog.Logger
}

// New builds the handler. perception may be nil, in which case captures
// must carry pre-extracted features.
func New(orchestrator Orchestrator, provider perception.Provider, logger *slog.Logger) *Handler {
	return &Handler{orchestrator: orchestrator, perception: provider, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/captures", h.HandleCapture)
}

// CaptureRequest is the body of POST /v1/captures. Either the extracted
// features are supplied, or only the image and the server asks the
// perception provider.
type CaptureRequest struct {
	SessionID   string              `json:"session_id"`
	Embedding   []float64           `json:"embedding,omitempty"`
	Liveness    *liveness.Features  `json:"liveness,omitempty"`
	AntiSpoof   *antispoof.Features `json:"anti_spoof,omitempty"`
	Image       []byte              `json:"image,omitempty"`
	ContentType string              `json:"content_type,omitempty"`

	sessionID id.SessionID
}

func (r *CaptureRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	sessionID, err := id.ParseSessionID(strings.TrimSpace(r.SessionID))
	if err != nil {
		return err
	}
	r.sessionID = sessionID

	if r.extracted() {
		return nil
	}
	if len(r.Embedding) > 0 || r.Liveness != nil || r.AntiSpoof != nil {
		return dErrors.New(dErrors.CodeValidation, "embedding, liveness and anti_spoof must be supplied together")
	}
	if len(r.Image) == 0 {
		return dErrors.New(dErrors.CodeValidation, "image is required when features are not supplied")
	}
	return nil
}

func (r *CaptureRequest) extracted() bool {
	return len(r.Embedding) > 0 && r.Liveness != nil && r.AntiSpoof != nil
}

func (h *Handler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[CaptureRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	capture, err := h.toCapture(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "capture feature extraction failed",
			"request_id", requestID,
			"session_id", req.sessionID,
			"error", err,
		)
		if auditErr := h.orchestrator.Reject(ctx, req.sessionID, err); auditErr != nil {
			httputil.WriteError(w, auditErr)
			return
		}
		httputil.WriteError(w, err)
		return
	}

	result, err := h.orchestrator.Evaluate(ctx, capture)
	if err != nil {
		h.logger.ErrorContext(ctx, "capture evaluation failed",
			"request_id", requestID,
			"session_id", req.sessionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "capture evaluated",
		"request_id", requestID,
		"session_id", req.sessionID,
		"attempt_id", result.AttemptID,
		"decision", result.Decision,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) toCapture(ctx context.Context, req *CaptureRequest) (cascade.Capture, error) {
	capture := cascade.Capture{SessionID: req.sessionID, Image: req.Image}
	if req.extracted() {
		capture.Embedding = req.Embedding
		capture.Liveness = *req.Liveness
		capture.AntiSpoof = *req.AntiSpoof
		return capture, nil
	}
	if h.perception == nil {
		return cascade.Capture{}, dErrors.New(dErrors.CodeValidation, "no perception provider configured; supply extracted features")
	}
	ext, err := h.perception.Extract(ctx, perception.Capture{Image: req.Image, ContentType: req.ContentType})
	if err != nil {
		return cascade.Capture{}, err
	}
	capture.Embedding = ext.Embedding
	capture.Liveness = ext.Liveness
	capture.AntiSpoof = ext.AntiSpoof
	return capture, nil
}
