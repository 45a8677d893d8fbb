package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"facegate/internal/biometric/embedding"
	"facegate/internal/enrollment"
	id "facegate/pkg/domain"
	"facegate/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu         sync.RWMutex
	subjects   map[id.SubjectID]enrollment.Subject
	embeddings []embedding.Embedding
	images     map[id.SubjectID][]enrollment.ReferenceImage
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		subjects: make(map[id.SubjectID]enrollment.Subject),
		images:   make(map[id.SubjectID][]enrollment.ReferenceImage),
	}
}

func (s *InMemoryStore) Replace(_ context.Context, subjectID id.SubjectID, embeddings []embedding.Embedding, images []enrollment.ReferenceImage, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deactivated := 0
	for i := range s.embeddings {
		if s.embeddings[i].SubjectID == subjectID && s.embeddings[i].IsActive {
			s.embeddings[i].IsActive = false
			s.embeddings[i].IsPrimary = false
			deactivated++
		}
	}
	for _, e := range embeddings {
		e.Vector = slices.Clone(e.Vector)
		s.embeddings = append(s.embeddings, e)
	}
	kept := make([]enrollment.ReferenceImage, 0, len(images))
	for _, img := range images {
		img.Data = slices.Clone(img.Data)
		kept = append(kept, img)
	}
	s.images[subjectID] = kept

	subject, ok := s.subjects[subjectID]
	if !ok {
		subject = enrollment.Subject{ID: subjectID}
	}
	subject.EnrolledAt = at
	s.subjects[subjectID] = subject
	return deactivated, nil
}

func (s *InMemoryStore) ActiveEmbeddings(_ context.Context) ([]embedding.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]embedding.Embedding, 0, len(s.embeddings))
	for _, e := range s.embeddings {
		if e.IsActive {
			e.Vector = slices.Clone(e.Vector)
			out = append(out, e)
		}
	}
	return out, nil
}

// Embeddings returns every stored embedding of a subject, active or not.
func (s *InMemoryStore) Embeddings(subjectID id.SubjectID) []embedding.Embedding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []embedding.Embedding
	for _, e := range s.embeddings {
		if e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	return out
}

func (s *InMemoryStore) ImagesForSubject(_ context.Context, subjectID id.SubjectID) ([]enrollment.ReferenceImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.images[subjectID]), nil
}

func (s *InMemoryStore) GetSubject(_ context.Context, subjectID id.SubjectID) (*enrollment.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subject, ok := s.subjects[subjectID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &subject, nil
}

func (s *InMemoryStore) RecordVerification(_ context.Context, subjectID id.SubjectID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subject, ok := s.subjects[subjectID]
	if !ok {
		return sentinel.ErrNotFound
	}
	subject.LastVerifiedAt = &at
	subject.VerificationCount++
	s.subjects[subjectID] = subject
	return nil
}
