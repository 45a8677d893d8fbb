package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "facegate/pkg/domain"
	"facegate/pkg/platform/sentinel"
)

func TestAdvance(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	newSession := func() *Session {
		return &Session{ID: id.NewSessionID(), Status: StatusInitiated, StartedAt: now, UpdatedAt: now}
	}

	t.Run("moves forward through the cascade", func(t *testing.T) {
		s := newSession()
		for _, next := range []Status{StatusLivenessCheck, StatusAntiSpoofCheck, StatusEmbeddingMatch, StatusBackupVerify, StatusDecision} {
			require.NoError(t, s.Advance(next, now.Add(time.Second)))
		}
		assert.Equal(t, StatusDecision, s.Status)
		require.NotNil(t, s.CompletedAt)
		assert.Equal(t, now.Add(time.Second), *s.CompletedAt)
	})

	t.Run("may skip intermediate states", func(t *testing.T) {
		s := newSession()
		require.NoError(t, s.Advance(StatusLivenessCheck, now))
		require.NoError(t, s.Advance(StatusLivenessFailed, now))
		assert.True(t, s.Status.IsTerminal())
	})

	t.Run("rejects moving backwards", func(t *testing.T) {
		s := newSession()
		require.NoError(t, s.Advance(StatusEmbeddingMatch, now))
		err := s.Advance(StatusLivenessCheck, now)
		assert.True(t, errors.Is(err, sentinel.ErrInvalidState))
		assert.Equal(t, StatusEmbeddingMatch, s.Status)
	})

	t.Run("rejects staying put", func(t *testing.T) {
		s := newSession()
		err := s.Advance(StatusInitiated, now)
		assert.True(t, errors.Is(err, sentinel.ErrInvalidState))
	})

	t.Run("terminal status is final", func(t *testing.T) {
		s := newSession()
		require.NoError(t, s.Advance(StatusSpoofDetected, now))
		err := s.Advance(StatusDecision, now)
		assert.True(t, errors.Is(err, sentinel.ErrInvalidState))
		assert.Equal(t, StatusSpoofDetected, s.Status)
	})

	t.Run("unknown status", func(t *testing.T) {
		s := newSession()
		err := s.Advance(Status("BOGUS"), now)
		assert.True(t, errors.Is(err, sentinel.ErrInvalidState))
	})
}

func TestScoresMerge(t *testing.T) {
	base := Scores{Liveness: Score(0.9), FaceMatch: Score(0.8)}
	merged := base.Merge(Scores{FaceMatch: Score(0.5), Document: Score(0.7)})

	require.NotNil(t, merged.Liveness)
	assert.Equal(t, 0.9, *merged.Liveness)
	assert.Equal(t, 0.5, *merged.FaceMatch)
	assert.Equal(t, 0.7, *merged.Document)
	assert.Nil(t, merged.Fingerprint)
	assert.Equal(t, 0.8, *base.FaceMatch, "merge must not mutate the receiver")
}

func TestScoresFill(t *testing.T) {
	base := Scores{Liveness: Score(0.2), FaceMatch: Score(0.8)}
	filled := base.Fill(Scores{Liveness: Score(1.0), Document: Score(0.7)})

	require.NotNil(t, filled.Liveness)
	assert.Equal(t, 0.2, *filled.Liveness)
	assert.Equal(t, 0.8, *filled.FaceMatch)
	require.NotNil(t, filled.Document)
	assert.Equal(t, 0.7, *filled.Document)
	assert.Nil(t, filled.AntiSpoof)
}
