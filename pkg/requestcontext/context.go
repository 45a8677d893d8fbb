// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets the values; services read them without importing net/http.
//
//	terminalID := requestcontext.TerminalID(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "facegate/pkg/domain"
)

type (
	terminalIDKey   struct{}
	terminalTypeKey struct{}
	clientIPKey     struct{}
	userAgentKey    struct{}
	requestIDKey    struct{}
	requestTimeKey  struct{}
	reviewerKey     struct{}
)

var (
	ContextKeyTerminalID   = terminalIDKey{}
	ContextKeyTerminalType = terminalTypeKey{}
	ContextKeyClientIP     = clientIPKey{}
	ContextKeyUserAgent    = userAgentKey{}
	ContextKeyRequestID    = requestIDKey{}
	ContextKeyRequestTime  = requestTimeKey{}
	ContextKeyReviewer     = reviewerKey{}
)

// -----------------------------------------------------------------------------
// Terminal identity
// -----------------------------------------------------------------------------

// TerminalID returns the authenticated terminal, or the nil ID.
func TerminalID(ctx context.Context) id.TerminalID {
	if v, ok := ctx.Value(ContextKeyTerminalID).(id.TerminalID); ok {
		return v
	}
	return id.TerminalID{}
}

func WithTerminalID(ctx context.Context, terminalID id.TerminalID) context.Context {
	return context.WithValue(ctx, ContextKeyTerminalID, terminalID)
}

// TerminalType returns the kiosk type claimed in the terminal token.
func TerminalType(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyTerminalType).(string); ok {
		return v
	}
	return ""
}

func WithTerminalType(ctx context.Context, terminalType string) context.Context {
	return context.WithValue(ctx, ContextKeyTerminalType, terminalType)
}

// Reviewer returns the authenticated human reviewer, or "".
func Reviewer(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyReviewer).(string); ok {
		return v
	}
	return ""
}

func WithReviewer(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ContextKeyReviewer, name)
}

// -----------------------------------------------------------------------------
// Client metadata
// -----------------------------------------------------------------------------

func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return v
	}
	return ""
}

func UserAgent(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return v
	}
	return ""
}

func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	return context.WithValue(ctx, ContextKeyUserAgent, userAgent)
}

// -----------------------------------------------------------------------------
// Request correlation
// -----------------------------------------------------------------------------

func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return v
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() outside HTTP requests (workers, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a fixed time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
