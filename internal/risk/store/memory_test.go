package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facegate/internal/risk"
	id "facegate/pkg/domain"
	"facegate/pkg/platform/sentinel"
)

func newAlert(sessionID id.SessionID, at time.Time) *risk.Alert {
	return &risk.Alert{
		ID:          id.NewAlertID(),
		SessionID:   sessionID,
		Type:        risk.AlertIdentitySpoofing,
		Severity:    risk.SeverityHigh,
		Description: "face match score 0.50 below 0.70",
		Evidence:    map[string]string{"score": "0.5000"},
		CreatedAt:   at,
	}
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("save and list by session in creation order", func(t *testing.T) {
		s := NewInMemoryStore()
		sessionID := id.NewSessionID()
		later := newAlert(sessionID, now.Add(time.Minute))
		earlier := newAlert(sessionID, now)
		require.NoError(t, s.Save(ctx, later))
		require.NoError(t, s.Save(ctx, earlier))
		require.NoError(t, s.Save(ctx, newAlert(id.NewSessionID(), now)))

		alerts, err := s.ListBySession(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, alerts, 2)
		assert.Equal(t, earlier.ID, alerts[0].ID)
		assert.Equal(t, later.ID, alerts[1].ID)
	})

	t.Run("stored evidence is isolated from the caller", func(t *testing.T) {
		s := NewInMemoryStore()
		a := newAlert(id.NewSessionID(), now)
		require.NoError(t, s.Save(ctx, a))
		a.Evidence["score"] = "tampered"

		got, err := s.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "0.5000", got.Evidence["score"])
	})

	t.Run("resolve once", func(t *testing.T) {
		s := NewInMemoryStore()
		a := newAlert(id.NewSessionID(), now)
		require.NoError(t, s.Save(ctx, a))

		resolved, err := s.Resolve(ctx, a.ID, "officer", "checked", now.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, resolved.IsResolved)

		_, err = s.Resolve(ctx, a.ID, "officer", "checked", now.Add(2*time.Hour))
		assert.True(t, errors.Is(err, sentinel.ErrConflict))

		_, err = s.Resolve(ctx, id.NewAlertID(), "officer", "checked", now)
		assert.True(t, errors.Is(err, sentinel.ErrNotFound))
	})

	t.Run("duplicate id conflicts", func(t *testing.T) {
		s := NewInMemoryStore()
		a := newAlert(id.NewSessionID(), now)
		require.NoError(t, s.Save(ctx, a))
		assert.True(t, errors.Is(s.Save(ctx, a), sentinel.ErrConflict))
	})
}
