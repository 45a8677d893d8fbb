package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"facegate/internal/biometric/antispoof"
	"facegate/internal/biometric/embedding"
	"facegate/internal/biometric/liveness"
	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"
	"facegate/pkg/platform/audit"
	"facegate/pkg/platform/sentinel"
	"facegate/pkg/requestcontext"
)

// Store persists enrollments. Replace deactivates the subject's current
// embeddings and inserts the new set in one unit of work, returning how
// many embeddings were deactivated.
type Store interface {
	Replace(ctx context.Context, subjectID id.SubjectID, embeddings []embedding.Embedding, images []ReferenceImage, at time.Time) (int, error)
	ActiveEmbeddings(ctx context.Context) ([]embedding.Embedding, error)
	ImagesForSubject(ctx context.Context, subjectID id.SubjectID) ([]ReferenceImage, error)
	GetSubject(ctx context.Context, subjectID id.SubjectID) (*Subject, error)
	RecordVerification(ctx context.Context, subjectID id.SubjectID, at time.Time) error
}

type AuditAppender interface {
	Append(ctx context.Context, rec audit.Record) (*audit.Event, error)
}

const defaultMaxSamples = 10

type Service struct {
	store      Store
	matcher    *embedding.Matcher
	liveness   liveness.Scorer
	antispoof  antispoof.Scorer
	auditor    AuditAppender
	maxSamples int
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMaxSamples(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSamples = n
		}
	}
}

func NewService(store Store, matcher *embedding.Matcher, live liveness.Scorer, spoof antispoof.Scorer, auditor AuditAppender, opts ...Option) (*Service, error) {
	switch {
	case store == nil:
		return nil, errors.New("enrollment store is required")
	case matcher == nil:
		return nil, errors.New("embedding matcher is required")
	case live == nil:
		return nil, errors.New("liveness scorer is required")
	case spoof == nil:
		return nil, errors.New("anti-spoof scorer is required")
	case auditor == nil:
		return nil, errors.New("audit appender is required")
	}
	s := &Service{
		store:      store,
		matcher:    matcher,
		liveness:   live,
		antispoof:  spoof,
		auditor:    auditor,
		maxSamples: defaultMaxSamples,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Enroll accepts a sample set only if every sample passes liveness and
// anti-spoof. The previous reference set is deactivated, never deleted.
func (s *Service) Enroll(ctx context.Context, req Request) (*Record, error) {
	if err := s.checkSamples(req); err != nil {
		return nil, s.auditRejection(ctx, req.SubjectID, audit.OutcomeFailure, err)
	}

	now := requestcontext.Now(ctx)
	vectors := make([][]float64, len(req.Samples))
	for i, sample := range req.Samples {
		v, err := s.matcher.Normalize(sample.Embedding)
		if err != nil {
			return nil, s.auditRejection(ctx, req.SubjectID, audit.OutcomeFailure, sampleError(i, err))
		}
		vectors[i] = v
	}
	quality, err := s.matcher.QualityFromSamples(vectors)
	if err != nil {
		return nil, s.auditRejection(ctx, req.SubjectID, audit.OutcomeFailure, err)
	}

	embeddings := make([]embedding.Embedding, 0, len(req.Samples)+1)
	images := make([]ReferenceImage, 0, len(req.Samples))
	for i, sample := range req.Samples {
		e := embedding.Embedding{
			ID:        id.NewEmbeddingID(),
			SubjectID: req.SubjectID,
			Vector:    vectors[i],
			Quality:   quality,
			Angle:     sample.Angle,
			IsActive:  true,
			CreatedAt: now,
		}
		embeddings = append(embeddings, e)
		images = append(images, ReferenceImage{
			EmbeddingID: e.ID,
			SubjectID:   req.SubjectID,
			Angle:       sample.Angle,
			Data:        sample.Image,
			ContentType: sample.ContentType,
			CreatedAt:   now,
		})
	}

	// One sample is its own primary; several are averaged into one.
	if len(embeddings) == 1 {
		embeddings[0].IsPrimary = true
	} else {
		avg, err := s.matcher.Average(vectors)
		if err != nil {
			return nil, s.auditRejection(ctx, req.SubjectID, audit.OutcomeFailure, err)
		}
		embeddings = append(embeddings, embedding.Embedding{
			ID:        id.NewEmbeddingID(),
			SubjectID: req.SubjectID,
			Vector:    avg,
			Quality:   quality,
			Angle:     embedding.AngleAveraged,
			IsPrimary: true,
			IsActive:  true,
			CreatedAt: now,
		})
	}

	deactivated, err := s.store.Replace(ctx, req.SubjectID, embeddings, images, now)
	if err != nil {
		return nil, s.auditRejection(ctx, req.SubjectID, audit.OutcomeError,
			dErrors.Wrap(err, dErrors.CodeInternal, "failed to store enrollment"))
	}

	record := &Record{
		SubjectID:        req.SubjectID,
		PrimaryID:        embeddings[len(embeddings)-1].ID,
		EmbeddingIDs:     make([]id.EmbeddingID, 0, len(embeddings)),
		Quality:          quality,
		SampleCount:      len(req.Samples),
		DeactivatedCount: deactivated,
		EnrolledAt:       now,
	}
	for _, e := range embeddings {
		record.EmbeddingIDs = append(record.EmbeddingIDs, e.ID)
	}

	if _, err := s.auditor.Append(ctx, audit.Record{
		Action:   audit.ActionEnrollmentCreated,
		Resource: "subject/" + req.SubjectID.String(),
		Outcome:  audit.OutcomeSuccess,
		Detail: map[string]string{
			"samples":     strconv.Itoa(record.SampleCount),
			"quality":     strconv.FormatFloat(quality, 'f', 4, 64),
			"primary_id":  record.PrimaryID.String(),
			"deactivated": strconv.Itoa(deactivated),
		},
	}); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "subject enrolled",
		"subject_id", req.SubjectID,
		"samples", record.SampleCount,
		"quality", quality,
		"deactivated", deactivated,
	)
	return record, nil
}

func (s *Service) checkSamples(req Request) error {
	if req.SubjectID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "subject ID is required")
	}
	if len(req.Samples) == 0 {
		return embedding.ErrEmptySampleSet
	}
	if len(req.Samples) > s.maxSamples {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("at most %d samples may be enrolled at once", s.maxSamples))
	}
	for i, sample := range req.Samples {
		if !sample.Angle.IsValid() || sample.Angle == embedding.AngleAveraged {
			return sampleError(i, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid capture angle %q", sample.Angle)))
		}
		if len(sample.Image) == 0 {
			return sampleError(i, dErrors.New(dErrors.CodeValidation, "reference image is required"))
		}
		if err := s.matcher.Validate(sample.Embedding); err != nil {
			return sampleError(i, err)
		}
		live, err := s.liveness.Score(sample.Liveness)
		if err != nil {
			return sampleError(i, err)
		}
		if !live.IsLive {
			return sampleError(i, dErrors.New(dErrors.CodeValidation, "failed liveness: "+live.Reason))
		}
		spoof, err := s.antispoof.Score(sample.AntiSpoof)
		if err != nil {
			return sampleError(i, err)
		}
		if !spoof.IsReal {
			return sampleError(i, dErrors.New(dErrors.CodeValidation, "failed anti-spoof: "+spoof.Reason))
		}
	}
	return nil
}

func sampleError(i int, err error) error {
	return dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("sample %d rejected", i))
}

// auditRejection records a refused or failed enrollment and returns cause,
// or the audit error when the event could not be written.
func (s *Service) auditRejection(ctx context.Context, subjectID id.SubjectID, outcome audit.Outcome, cause error) error {
	resource := "subject/unknown"
	if !subjectID.IsNil() {
		resource = "subject/" + subjectID.String()
	}
	if _, err := s.auditor.Append(ctx, audit.Record{
		Action:   audit.ActionEnrollmentCreated,
		Resource: resource,
		Outcome:  outcome,
		Detail:   map[string]string{"error": cause.Error()},
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to audit enrollment rejection", "subject_id", subjectID, "error", err)
		return err
	}
	return cause
}

// ActiveEmbeddings serves the cascade's default candidate pool.
func (s *Service) ActiveEmbeddings(ctx context.Context) ([]embedding.Embedding, error) {
	return s.store.ActiveEmbeddings(ctx)
}

// ReferenceImage returns the image behind candidate. An averaged primary
// has no image of its own, so the subject's frontal capture stands in,
// then any capture.
func (s *Service) ReferenceImage(ctx context.Context, candidate embedding.Embedding) ([]byte, error) {
	images, err := s.store.ImagesForSubject(ctx, candidate.SubjectID)
	if err != nil {
		return nil, err
	}
	var fallback []byte
	for _, img := range images {
		if img.EmbeddingID == candidate.ID {
			return img.Data, nil
		}
		if img.Angle == embedding.AngleFrontal || fallback == nil {
			fallback = img.Data
		}
	}
	if fallback == nil {
		return nil, sentinel.ErrNotFound
	}
	return fallback, nil
}

func (s *Service) RecordVerification(ctx context.Context, subjectID id.SubjectID, at time.Time) error {
	return s.store.RecordVerification(ctx, subjectID, at)
}

func (s *Service) GetSubject(ctx context.Context, subjectID id.SubjectID) (*Subject, error) {
	subject, err := s.store.GetSubject(ctx, subjectID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "subject not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subject")
	}
	return subject, nil
}
