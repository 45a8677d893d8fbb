package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"facegate/internal/enrollment"
	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"
	"facegate/pkg/platform/httputil"
	"facegate/pkg/requestcontext"
)

type Service interface {
	Enroll(ctx context.Context, req enrollment.Request) (*enrollment.Record, error)
	GetSubject(ctx context.Context, subjectID id.SubjectID) (*enrollment.Subject, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/enrollments", h.HandleEnroll)
	r.Get("/v1/subjects/{id}", h.HandleGetSubject)
}

// EnrollRequest is the body of POST /v1/enrollments.
type EnrollRequest struct {
	SubjectID string              `json:"subject_id"`
	Samples   []enrollment.Sample `json:"samples"`

	subjectID id.SubjectID
}

func (r *EnrollRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	subjectID, err := id.ParseSubjectID(strings.TrimSpace(r.SubjectID))
	if err != nil {
		return err
	}
	r.subjectID = subjectID
	if len(r.Samples) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one sample is required")
	}
	return nil
}

func (h *Handler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[EnrollRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	record, err := h.service.Enroll(ctx, enrollment.Request{SubjectID: req.subjectID, Samples: req.Samples})
	if err != nil {
		h.logger.WarnContext(ctx, "enrollment failed",
			"request_id", requestID,
			"subject_id", req.subjectID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, record)
}

func (h *Handler) HandleGetSubject(w http.ResponseWriter, r *http.Request) {
	subjectID, err := id.ParseSubjectID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	subject, err := h.service.GetSubject(r.Context(), subjectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, subject)
}
