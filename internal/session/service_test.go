package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facegate/internal/session"
	"facegate/internal/session/store"
	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"
	"facegate/pkg/requestcontext"
)

func TestService(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	newService := func(t *testing.T) *session.Service {
		svc, err := session.NewService(store.NewInMemoryStore())
		require.NoError(t, err)
		return svc
	}

	t.Run("requires a store", func(t *testing.T) {
		_, err := session.NewService(nil)
		assert.Error(t, err)
	})

	t.Run("start normalizes terminal metadata", func(t *testing.T) {
		svc := newService(t)
		sess, err := svc.Start(ctx, session.StartRequest{
			TerminalID:       id.NewTerminalID(),
			TerminalType:     " lab_kiosk ",
			RequestedService: "Laboratory",
		})
		require.NoError(t, err)
		assert.Equal(t, session.StatusInitiated, sess.Status)
		assert.Equal(t, "LAB_KIOSK", sess.TerminalType)
		assert.Equal(t, "laboratory", sess.RequestedService)
		assert.Equal(t, now, sess.StartedAt)

		loaded, err := svc.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess.ID, loaded.ID)
	})

	t.Run("start without terminal is a validation error", func(t *testing.T) {
		svc := newService(t)
		_, err := svc.Start(ctx, session.StartRequest{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("unknown session is not found", func(t *testing.T) {
		svc := newService(t)
		_, err := svc.Get(ctx, id.NewSessionID())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
