// Package handler exposes the audit chain: externally submitted events and
// integrity verification.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	dErrors "facegate/pkg/domain-errors"
	"facegate/pkg/platform/audit"
	"facegate/pkg/platform/httputil"
	"facegate/pkg/requestcontext"
)

type Chain interface {
	Append(ctx context.Context, rec audit.Record) (*audit.Event, error)
	VerifyIntegrity(ctx context.Context, r audit.Range) (audit.IntegrityReport, error)
}

type Handler struct {
	chain  Chain
	logger *slog.Logger
}

func New(chain Chain, logger *slog.Logger) *Handler {
	return &Handler{chain: chain, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/audit/events", h.HandleAppend)
}

// RegisterReview mounts chain verification for reviewers.
func (h *Handler) RegisterReview(r chi.Router) {
	r.Get("/v1/audit/integrity", h.HandleVerify)
}

const (
	maxDetailEntries = 32
	maxDetailValue   = 1024
)

type AppendRequest struct {
	Action    string            `json:"action"`
	Resource  string            `json:"resource"`
	Outcome   string            `json:"outcome"`
	SessionID string            `json:"session_id,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

func (r *AppendRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Action = strings.TrimSpace(r.Action)
	r.Resource = strings.TrimSpace(r.Resource)
	r.Outcome = strings.ToUpper(strings.TrimSpace(r.Outcome))
	if r.Action == "" || r.Resource == "" {
		return dErrors.New(dErrors.CodeValidation, "action and resource are required")
	}
	if !audit.Outcome(r.Outcome).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "outcome must be SUCCESS, FAILURE or ERROR")
	}
	if len(r.Detail) > maxDetailEntries {
		return dErrors.New(dErrors.CodeValidation, "detail has too many entries")
	}
	for _, v := range r.Detail {
		if len(v) > maxDetailValue {
			return dErrors.New(dErrors.CodeValidation, "detail value too long")
		}
	}
	return nil
}

func (h *Handler) HandleAppend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[AppendRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	detail := make(map[string]string, len(req.Detail)+2)
	for k, v := range req.Detail {
		detail[k] = v
	}
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		detail["client_ip"] = ip
	}
	if ua := requestcontext.UserAgent(ctx); ua != "" {
		detail["user_agent"] = ua
	}

	rec := audit.Record{
		Action:    audit.Action(req.Action),
		Resource:  req.Resource,
		Outcome:   audit.Outcome(req.Outcome),
		SessionID: req.SessionID,
		Detail:    detail,
	}
	if t := requestcontext.TerminalID(ctx); !t.IsNil() {
		rec.Actor = "terminal/" + t.String()
	}

	event, err := h.chain.Append(ctx, rec)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit append failed",
			"request_id", requestID,
			"action", req.Action,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, event)
}

// HandleVerify checks the chain, optionally bounded by ?from= and ?to=
// sequence numbers. An invalid chain is still a 200 with valid=false.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rng, err := parseRange(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	report, err := h.chain.VerifyIntegrity(ctx, rng)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !report.Valid {
		h.logger.WarnContext(ctx, "audit chain integrity check failed",
			"request_id", requestcontext.RequestID(ctx),
			"reviewer", requestcontext.Reviewer(ctx),
			"first_invalid", report.FirstInvalid,
			"invalid_count", len(report.InvalidEventIDs),
		)
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func parseRange(r *http.Request) (audit.Range, error) {
	var rng audit.Range
	q := r.URL.Query()
	parse := func(name string) (int64, error) {
		raw := q.Get(name)
		if raw == "" {
			return 0, nil
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 1 {
			return 0, dErrors.New(dErrors.CodeValidation, name+" must be a positive sequence number")
		}
		return v, nil
	}
	var err error
	if rng.FromSequence, err = parse("from"); err != nil {
		return audit.Range{}, err
	}
	if rng.ToSequence, err = parse("to"); err != nil {
		return audit.Range{}, err
	}
	if rng.ToSequence > 0 && rng.FromSequence > rng.ToSequence {
		return audit.Range{}, dErrors.New(dErrors.CodeValidation, "from must not exceed to")
	}
	return rng, nil
}
