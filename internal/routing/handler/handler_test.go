package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facegate/internal/routing"
	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"
	"facegate/pkg/testutil"
)

type fakeRouter struct {
	got routing.Request
	err error
}

func (f *fakeRouter) Decide(_ context.Context, req routing.Request) (routing.Decision, error) {
	f.got = req
	if f.err != nil {
		return routing.Decision{}, f.err
	}
	return routing.Decision{
		Destination: routing.DestinationAuditOffice,
		Priority:    routing.PriorityUrgent,
		Rule:        routing.RuleHighRisk,
	}, nil
}

func newRouter(svc Service) chi.Router {
	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r
}

func TestHandleDecide(t *testing.T) {
	sessionID := id.NewSessionID()
	path := "/v1/sessions/" + sessionID.String() + "/routing"

	t.Run("passes overrides through", func(t *testing.T) {
		svc := &fakeRouter{}
		rr := testutil.DoRequest(newRouter(svc), testutil.NewJSONRequest(t, http.MethodPost, path, map[string]any{
			"terminal_type":      " PHARMACY_KIOSK ",
			"risk_score":         0.9,
			"has_critical_alert": false,
		}))
		testutil.AssertStatus(t, rr, http.StatusOK)

		decision := testutil.UnmarshalResponse[routing.Decision](t, rr)
		assert.Equal(t, routing.DestinationAuditOffice, decision.Destination)

		assert.Equal(t, sessionID, svc.got.SessionID)
		assert.Equal(t, "PHARMACY_KIOSK", svc.got.TerminalType)
		require.NotNil(t, svc.got.RiskScore)
		assert.InDelta(t, 0.9, *svc.got.RiskScore, 1e-9)
		require.NotNil(t, svc.got.HasCriticalAlert)
		assert.False(t, *svc.got.HasCriticalAlert)
		assert.Empty(t, svc.got.RequestedService)
	})

	t.Run("empty body leaves everything to the session", func(t *testing.T) {
		svc := &fakeRouter{}
		rr := testutil.DoRequest(newRouter(svc), testutil.NewJSONRequest(t, http.MethodPost, path, map[string]any{}))
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Nil(t, svc.got.RiskScore)
		assert.Nil(t, svc.got.HasCriticalAlert)
	})

	t.Run("risk score out of range", func(t *testing.T) {
		svc := &fakeRouter{}
		rr := testutil.DoRequest(newRouter(svc), testutil.NewJSONRequest(t, http.MethodPost, path, map[string]any{"risk_score": 1.5}))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		assert.True(t, svc.got.SessionID.IsNil(), "service not called")
	})

	t.Run("non-terminal session conflicts", func(t *testing.T) {
		svc := &fakeRouter{err: dErrors.New(dErrors.CodeConflict, "session has not reached a decision")}
		rr := testutil.DoRequest(newRouter(svc), testutil.NewJSONRequest(t, http.MethodPost, path, map[string]any{}))
		testutil.AssertStatus(t, rr, http.StatusConflict)
		testutil.AssertErrorCode(t, rr, "conflict")
	})

	t.Run("malformed session id", func(t *testing.T) {
		rr := testutil.DoRequest(newRouter(&fakeRouter{}), testutil.NewJSONRequest(t, http.MethodPost, "/v1/sessions/xyz/routing", map[string]any{}))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}
