package store

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"facegate/internal/risk"
	id "facegate/pkg/domain"
	"facegate/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	alerts map[id.AlertID]risk.Alert
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{alerts: make(map[id.AlertID]risk.Alert)}
}

func (s *InMemoryStore) Save(_ context.Context, alert *risk.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.alerts[alert.ID]; exists {
		return sentinel.ErrConflict
	}
	s.alerts[alert.ID] = clone(*alert)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, alertID id.AlertID) (*risk.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[alertID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := clone(a)
	return &out, nil
}

func (s *InMemoryStore) ListBySession(_ context.Context, sessionID id.SessionID) ([]*risk.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*risk.Alert, 0)
	for _, a := range s.alerts {
		if a.SessionID == sessionID {
			c := clone(a)
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Type < out[j].Type
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) Resolve(_ context.Context, alertID id.AlertID, resolvedBy, resolution string, at time.Time) (*risk.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[alertID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if a.IsResolved {
		return nil, sentinel.ErrConflict
	}
	a.IsResolved = true
	a.ResolvedBy = resolvedBy
	a.Resolution = resolution
	a.ResolvedAt = &at
	s.alerts[alertID] = a
	out := clone(a)
	return &out, nil
}

func clone(a risk.Alert) risk.Alert {
	a.Evidence = maps.Clone(a.Evidence)
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		a.ResolvedAt = &t
	}
	return a
}
