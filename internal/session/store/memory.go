package store

import (
	"context"
	"sync"

	"facegate/internal/session"
	id "facegate/pkg/domain"
	"facegate/pkg/platform/sentinel"
)

// InMemoryStore keeps sessions in a map; values are copied in and out so
// callers never share mutable state with the store.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]session.Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[id.SessionID]session.Session)}
}

func (s *InMemoryStore) Create(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return sentinel.ErrConflict
	}
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, sessionID id.SessionID) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &sess, nil
}

func (s *InMemoryStore) Update(_ context.Context, sessionID id.SessionID, fn func(*session.Session) error) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := fn(&sess); err != nil {
		return nil, err
	}
	s.sessions[sessionID] = sess
	out := sess
	return &out, nil
}

func (s *InMemoryStore) FindByFingerprintHash(_ context.Context, hash string) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*session.Session
	for _, sess := range s.sessions {
		if hash != "" && sess.FingerprintHash == hash {
			c := sess
			out = append(out, &c)
		}
	}
	return out, nil
}
