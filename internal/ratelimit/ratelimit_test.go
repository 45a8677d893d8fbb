package ratelimit_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facegate/internal/platform/config"
	"facegate/internal/ratelimit"
	"facegate/internal/ratelimit/store"
	id "facegate/pkg/domain"
	"facegate/pkg/testutil"
)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*ratelimit.Result, error) {
	return nil, errors.New("redis down")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestMiddleware(t *testing.T) {
	cfg := config.RateLimit{Enabled: true, Limit: 2, Window: time.Minute}

	testutil.Given(t, "a terminal within its window", func(t *testing.T) {
		h := ratelimit.New(store.NewInMemoryStore(), cfg).Handler(okHandler())
		terminal := id.NewTerminalID()

		testutil.When(t, "it exceeds the limit", func(t *testing.T) {
			for range 2 {
				req := testutil.WithTerminal(testutil.NewRequest(t, http.MethodGet, "/v1/sessions/x"), terminal, "LAB_KIOSK")
				rr := testutil.DoRequest(h, req)
				require.Equal(t, http.StatusNoContent, rr.Code)
			}
			req := testutil.WithTerminal(testutil.NewRequest(t, http.MethodGet, "/v1/sessions/x"), terminal, "LAB_KIOSK")
			rr := testutil.DoRequest(h, req)

			testutil.Then(t, "the request is rejected with retry headers", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusTooManyRequests)
				body := testutil.UnmarshalResponse[struct {
					Error      string `json:"error"`
					RetryAfter int    `json:"retry_after"`
				}](t, rr)
				assert.Equal(t, "rate_limit_exceeded", body.Error)
				assert.Equal(t, 60, body.RetryAfter)
				assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
				assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
				assert.NotEmpty(t, rr.Header().Get("Retry-After"))
			})
		})

		testutil.When(t, "another terminal calls", func(t *testing.T) {
			req := testutil.WithTerminal(testutil.NewRequest(t, http.MethodGet, "/v1/sessions/x"), id.NewTerminalID(), "LAB_KIOSK")
			rr := testutil.DoRequest(h, req)

			testutil.Then(t, "it has its own window", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusNoContent)
				assert.Equal(t, "1", rr.Header().Get("X-RateLimit-Remaining"))
			})
		})
	})

	testutil.Given(t, "a failing store", func(t *testing.T) {
		h := ratelimit.New(failingStore{}, cfg).Handler(okHandler())
		req := testutil.WithTerminal(testutil.NewRequest(t, http.MethodGet, "/"), id.NewTerminalID(), "LAB_KIOSK")
		rr := testutil.DoRequest(h, req)

		testutil.Then(t, "the request passes through", func(t *testing.T) {
			testutil.AssertStatus(t, rr, http.StatusNoContent)
		})
	})

	testutil.Given(t, "limiting disabled", func(t *testing.T) {
		m := ratelimit.New(store.NewInMemoryStore(), config.RateLimit{Enabled: false, Limit: 1, Window: time.Minute})

		testutil.Then(t, "no middleware is built and requests pass", func(t *testing.T) {
			assert.Nil(t, m)
			h := m.Handler(okHandler())
			for range 3 {
				rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/"))
				testutil.AssertStatus(t, rr, http.StatusNoContent)
			}
		})
	})

	testutil.Given(t, "an unauthenticated request", func(t *testing.T) {
		h := ratelimit.New(store.NewInMemoryStore(), config.RateLimit{Enabled: true, Limit: 1, Window: time.Minute}).Handler(okHandler())

		testutil.Then(t, "it is not counted", func(t *testing.T) {
			for range 3 {
				rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/"))
				testutil.AssertStatus(t, rr, http.StatusNoContent)
			}
		})
	})
}

func TestRetryAfterSeconds(t *testing.T) {
	now := time.Unix(100, 0)
	assert.Equal(t, 0, ratelimit.RetryAfterSeconds(now, now))
	assert.Equal(t, 1, ratelimit.RetryAfterSeconds(now, now.Add(200*time.Millisecond)))
	assert.Equal(t, 2, ratelimit.RetryAfterSeconds(now, now.Add(2*time.Second)))
}
