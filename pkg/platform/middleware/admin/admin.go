// Package admin guards human review endpoints with per-reviewer tokens sent
// in X-Admin-Token. The matching reviewer's name becomes the actor.
package admin

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"facegate/pkg/requestcontext"
)

const (
	HeaderToken    = "X-Admin-Token"
	minTokenLength = 16
)

type credential struct {
	name  string
	token []byte
}

// Reviewers is the set of configured review credentials.
type Reviewers struct {
	credentials []credential
}

// ParseReviewers reads "name:token" entries. Names must be unique and tokens
// at least 16 characters.
func ParseReviewers(entries []string) (*Reviewers, error) {
	r := &Reviewers{}
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, token, ok := strings.Cut(entry, ":")
		name, token = strings.TrimSpace(name), strings.TrimSpace(token)
		if !ok || name == "" {
			return nil, errors.New("reviewer entry must be name:token")
		}
		if len(token) < minTokenLength {
			return nil, fmt.Errorf("reviewer %q token must be at least %d characters", name, minTokenLength)
		}
		if seen[name] {
			return nil, fmt.Errorf("reviewer %q is configured twice", name)
		}
		seen[name] = true
		r.credentials = append(r.credentials, credential{name: name, token: []byte(token)})
	}
	return r, nil
}

func (r *Reviewers) Len() int {
	if r == nil {
		return 0
	}
	return len(r.credentials)
}

// match compares against every credential so timing does not reveal which
// reviewer, if any, matched.
func (r *Reviewers) match(token string) (string, bool) {
	if r == nil || token == "" {
		return "", false
	}
	var name string
	for _, c := range r.credentials {
		if subtle.ConstantTimeCompare([]byte(token), c.token) == 1 {
			name = c.name
		}
	}
	return name, name != ""
}

// RequireReviewer rejects requests without a configured reviewer token. With
// no reviewers configured every request is rejected.
func RequireReviewer(reviewers *Reviewers, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			name, ok := reviewers.match(r.Header.Get(HeaderToken))
			if !ok {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"reviewer token required"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithReviewer(ctx, name)))
		})
	}
}
