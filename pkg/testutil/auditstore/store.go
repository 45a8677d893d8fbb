// Package auditstore wraps an audit store with the storage-level faults
// tests need: rewritten rows, deleted rows and failing appends.
package auditstore

import (
	"context"
	"sync"

	audit "facegate/pkg/platform/audit"
	"facegate/pkg/platform/audit/store/memory"
	"facegate/pkg/platform/sentinel"
)

// Store applies tampering on every read, so the chain sees what an attacker
// with database access would leave behind.
type Store struct {
	inner audit.Store

	mu        sync.Mutex
	mutations map[int64][]func(e *audit.Event)
	deleted   map[int64]bool
	appendErr error
}

// New wraps an in-memory store.
func New() *Store {
	return Wrap(memory.NewInMemoryStore())
}

func Wrap(inner audit.Store) *Store {
	return &Store{
		inner:     inner,
		mutations: make(map[int64][]func(e *audit.Event)),
		deleted:   make(map[int64]bool),
	}
}

// Tamper rewrites the stored event at seq. It reports false when no such
// event exists.
func (s *Store) Tamper(seq int64, mutate func(e *audit.Event)) bool {
	if _, err := s.inner.GetBySequence(context.Background(), seq); err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutations[seq] = append(s.mutations[seq], mutate)
	return true
}

// Delete hides the stored event at seq from every read.
func (s *Store) Delete(seq int64) bool {
	if _, err := s.inner.GetBySequence(context.Background(), seq); err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted[seq] = true
	return true
}

// FailAppends makes every later append return err. A nil err restores
// normal appends.
func (s *Store) FailAppends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendErr = err
}

func (s *Store) AppendLinked(ctx context.Context, build func(prev *audit.Event) (*audit.Event, error)) (*audit.Event, error) {
	s.mu.Lock()
	err := s.appendErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.inner.AppendLinked(ctx, func(prev *audit.Event) (*audit.Event, error) {
		if prev != nil {
			s.apply(prev)
		}
		return build(prev)
	})
}

func (s *Store) Last(ctx context.Context) (*audit.Event, error) {
	e, err := s.inner.Last(ctx)
	if err != nil {
		return nil, err
	}
	if s.isDeleted(e.Sequence) {
		return s.GetBySequence(ctx, e.Sequence-1)
	}
	s.apply(e)
	return e, nil
}

func (s *Store) GetBySequence(ctx context.Context, seq int64) (*audit.Event, error) {
	if s.isDeleted(seq) {
		return nil, sentinel.ErrNotFound
	}
	e, err := s.inner.GetBySequence(ctx, seq)
	if err != nil {
		return nil, err
	}
	s.apply(e)
	return e, nil
}

func (s *Store) List(ctx context.Context, r audit.Range) ([]audit.Event, error) {
	events, err := s.inner.List(ctx, r)
	if err != nil {
		return nil, err
	}
	out := events[:0]
	for i := range events {
		if s.isDeleted(events[i].Sequence) {
			continue
		}
		s.apply(&events[i])
		out = append(out, events[i])
	}
	return out, nil
}

func (s *Store) isDeleted(seq int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted[seq]
}

func (s *Store) apply(e *audit.Event) {
	s.mu.Lock()
	mutations := s.mutations[e.Sequence]
	s.mu.Unlock()
	for _, mutate := range mutations {
		mutate(e)
	}
}
