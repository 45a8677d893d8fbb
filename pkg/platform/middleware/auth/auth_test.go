package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"
	"facegate/pkg/requestcontext"
)

func TestRequireTerminal(t *testing.T) {
	tokens := NewTokenService("test-key", "facegate")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	terminalID := id.NewTerminalID()

	var seen id.TerminalID
	var seenType string
	h := RequireTerminal(tokens, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.TerminalID(r.Context())
		seenType = requestcontext.TerminalType(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("valid token populates terminal identity", func(t *testing.T) {
		token, err := tokens.Issue(terminalID, "LAB_KIOSK", time.Minute)
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodPost, "/v1/captures", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, terminalID, seen)
		assert.Equal(t, "LAB_KIOSK", seenType)
	})

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/captures", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token signed with another key", func(t *testing.T) {
		other := NewTokenService("other-key", "facegate")
		token, err := other.Issue(terminalID, "LAB_KIOSK", time.Minute)
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodPost, "/v1/captures", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestValidate_ExpiredToken(t *testing.T) {
	tokens := NewTokenService("test-key", "facegate")
	token, err := tokens.Issue(id.NewTerminalID(), "PHARMACY_KIOSK", -time.Minute)
	require.NoError(t, err)

	_, err = tokens.Validate(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
