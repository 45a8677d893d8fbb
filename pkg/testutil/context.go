package testutil

import (
	"net/http"

	id "facegate/pkg/domain"
	"facegate/pkg/requestcontext"
)

// WithTerminal simulates what the terminal auth middleware places in the
// request context.
func WithTerminal(req *http.Request, terminalID id.TerminalID, terminalType string) *http.Request {
	ctx := requestcontext.WithTerminalID(req.Context(), terminalID)
	ctx = requestcontext.WithTerminalType(ctx, terminalType)
	return req.WithContext(ctx)
}

// WithReviewer simulates what the reviewer middleware places in the request
// context.
func WithReviewer(req *http.Request, name string) *http.Request {
	return req.WithContext(requestcontext.WithReviewer(req.Context(), name))
}
