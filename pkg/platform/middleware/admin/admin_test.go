package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facegate/pkg/requestcontext"
)

func TestParseReviewers(t *testing.T) {
	t.Run("valid entries", func(t *testing.T) {
		r, err := ParseReviewers([]string{"officer-7:abcdefghijklmnop", " ", "auditor:qrstuvwxyz012345"})
		require.NoError(t, err)
		assert.Equal(t, 2, r.Len())
	})

	cases := map[string][]string{
		"missing separator": {"officer-7"},
		"missing name":      {":abcdefghijklmnop"},
		"short token":       {"officer-7:short"},
		"duplicate name":    {"a:abcdefghijklmnop", "a:qrstuvwxyz012345"},
	}
	for name, entries := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseReviewers(entries)
			assert.Error(t, err)
		})
	}
}

func TestRequireReviewer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reviewers, err := ParseReviewers([]string{"officer-7:abcdefghijklmnop", "auditor:qrstuvwxyz012345"})
	require.NoError(t, err)

	var seen string
	h := RequireReviewer(reviewers, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.Reviewer(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("matching token names the reviewer", func(t *testing.T) {
		seen = ""
		r := httptest.NewRequest(http.MethodPost, "/v1/alerts/x/resolve", nil)
		r.Header.Set(HeaderToken, "qrstuvwxyz012345")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "auditor", seen)
	})

	t.Run("wrong or missing token", func(t *testing.T) {
		for _, token := range []string{"", "abcdefghijklmnoq", "abcdefghijklmnop-longer"} {
			seen = ""
			r := httptest.NewRequest(http.MethodPost, "/v1/alerts/x/resolve", nil)
			if token != "" {
				r.Header.Set(HeaderToken, token)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, http.StatusUnauthorized, w.Code, "token %q", token)
			assert.Empty(t, seen)
		}
	})

	t.Run("no reviewers configured rejects everything", func(t *testing.T) {
		empty, err := ParseReviewers(nil)
		require.NoError(t, err)
		closed := RequireReviewer(empty, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		r := httptest.NewRequest(http.MethodGet, "/v1/audit/integrity", nil)
		r.Header.Set(HeaderToken, "abcdefghijklmnop")
		w := httptest.NewRecorder()
		closed.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
