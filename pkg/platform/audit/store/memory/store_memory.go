package memory

import (
	"context"
	"maps"
	"sync"

	audit "facegate/pkg/platform/audit"
	"facegate/pkg/platform/sentinel"
)

// InMemoryStore keeps the chain in a slice ordered by sequence. The mutex is
// the append serialization point.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) AppendLinked(_ context.Context, build func(prev *audit.Event) (*audit.Event, error)) (*audit.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev *audit.Event
	if n := len(s.events); n > 0 {
		last := clone(s.events[n-1])
		prev = &last
	}
	e, err := build(prev)
	if err != nil {
		return nil, err
	}
	s.events = append(s.events, clone(*e))
	return e, nil
}

func (s *InMemoryStore) Last(_ context.Context) (*audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.events) == 0 {
		return nil, sentinel.ErrNotFound
	}
	e := clone(s.events[len(s.events)-1])
	return &e, nil
}

func (s *InMemoryStore) GetBySequence(_ context.Context, seq int64) (*audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.events {
		if e.Sequence == seq {
			c := clone(e)
			return &c, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) List(_ context.Context, r audit.Range) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, 0, len(s.events))
	for _, e := range s.events {
		if r.Contains(e.Sequence) {
			out = append(out, clone(e))
		}
	}
	return out, nil
}

func clone(e audit.Event) audit.Event {
	e.Detail = maps.Clone(e.Detail)
	return e
}
