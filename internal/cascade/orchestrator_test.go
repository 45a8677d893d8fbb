package cascade

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"facegate/internal/biometric/antispoof"
	"facegate/internal/biometric/embedding"
	"facegate/internal/biometric/liveness"
	"facegate/internal/cascade/mocks"
	"facegate/internal/session"
	sessionstore "facegate/internal/session/store"
	id "facegate/pkg/domain"
	dErrors "facegate/pkg/domain-errors"
	"facegate/pkg/platform/audit"
	auditmemory "facegate/pkg/platform/audit/store/memory"
	"facegate/pkg/requestcontext"
)

// =============================================================================
// Cascade Orchestrator Test Suite
// =============================================================================
// Justification for unit tests: the orchestrator owns the gate ordering, the
// backup escalation and the fail-closed rules. Each branch of the decision
// table is exercised here with real scorers and a real audit chain; only the
// remote collaborators are mocked.

type OrchestratorSuite struct {
	suite.Suite
	ctx        context.Context
	now        time.Time
	ctrl       *gomock.Controller
	backup     *mocks.MockBackupProvider
	images     *mocks.MockReferenceImages
	subjects   *mocks.MockSubjectDirectory
	auditStore *auditmemory.InMemoryStore
	chain      *audit.Chain
	matcher    *embedding.Matcher
	live       liveness.Scorer
	spoof      antispoof.Scorer
	cfg        Config
	logger     *slog.Logger
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.ctrl = gomock.NewController(s.T())
	s.backup = mocks.NewMockBackupProvider(s.ctrl)
	s.images = mocks.NewMockReferenceImages(s.ctrl)
	s.subjects = mocks.NewMockSubjectDirectory(s.ctrl)
	s.auditStore = auditmemory.NewInMemoryStore()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	var err error
	s.chain, err = audit.NewChain(s.auditStore, []byte("cascade-secret"))
	s.Require().NoError(err)

	ecfg := embedding.DefaultConfig()
	ecfg.Dimension = 4
	s.matcher, err = embedding.NewMatcher(ecfg)
	s.Require().NoError(err)
	s.live, err = liveness.New(liveness.DefaultConfig())
	s.Require().NoError(err)
	s.spoof, err = antispoof.New(antispoof.DefaultConfig())
	s.Require().NoError(err)

	s.cfg = DefaultConfig()
	s.cfg.BackupTimeout = 50 * time.Millisecond
}

func (s *OrchestratorSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *OrchestratorSuite) orchestrator(opts ...Option) *Orchestrator {
	opts = append([]Option{WithLogger(s.logger)}, opts...)
	o, err := NewOrchestrator(s.cfg, s.matcher, s.live, s.spoof, s.chain, opts...)
	s.Require().NoError(err)
	return o
}

func (s *OrchestratorSuite) actions() []audit.Action {
	events, err := s.auditStore.List(s.ctx, audit.Range{})
	s.Require().NoError(err)
	out := make([]audit.Action, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

var (
	subjectA = id.NewSubjectID()
	captured = []float64{1, 0, 0, 0}
)

// candidate builds an enrolled embedding at a chosen cosine distance from captured.
func candidate(subject id.SubjectID, vector ...float64) embedding.Embedding {
	return embedding.Embedding{
		ID:        id.NewEmbeddingID(),
		SubjectID: subject,
		Vector:    vector,
		Angle:     embedding.AngleFrontal,
		IsPrimary: true,
		IsActive:  true,
	}
}

var (
	exactCandidate      = func() embedding.Embedding { return candidate(subjectA, 1, 0, 0, 0) }            // distance 0, HIGH
	mediumCandidate     = func() embedding.Embedding { return candidate(subjectA, 0.6, 0.8, 0, 0) }        // distance 0.4, MEDIUM
	borderlineCandidate = func() embedding.Embedding { return candidate(subjectA, 1, math.Sqrt(3), 0, 0) } // distance 0.5, LOW
	strangerCandidate   = func() embedding.Embedding { return candidate(subjectA, 0, 1, 0, 0) }            // distance 1, NONE
)

func liveCapture(candidates ...embedding.Embedding) Capture {
	return Capture{
		Embedding: captured,
		Liveness: liveness.Features{
			BlinkCount: 2, EyeAspectRatio: 0.30, YawRange: 10, PitchRange: 5, RollRange: 2,
			MotionScore: 0.70, DepthScore: 0.80, TextureScore: 0.75, LandmarkCount: 68,
		},
		AntiSpoof: antispoof.Features{
			SpoofProbability: 0.05, LaplacianVariance: 300, TextureVariance: 0.70, HighFrequencyRatio: 0.30,
			MoireScore: 0.05, ReflectionScore: 0.10, ColorNaturalness: 0.90, Saturation: 0.50,
		},
		Image:      []byte("capture-jpeg"),
		Candidates: candidates,
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *OrchestratorSuite) TestNewOrchestrator() {
	s.Run("nil matcher", func() {
		_, err := NewOrchestrator(s.cfg, nil, s.live, s.spoof, s.chain)
		s.ErrorContains(err, "embedding matcher is required")
	})
	s.Run("nil auditor", func() {
		_, err := NewOrchestrator(s.cfg, s.matcher, s.live, s.spoof, nil)
		s.ErrorContains(err, "audit appender is required")
	})
	s.Run("invalid weights", func() {
		cfg := s.cfg
		cfg.Weights.Embedding = 0.9
		_, err := NewOrchestrator(cfg, s.matcher, s.live, s.spoof, s.chain)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// Decision Table
// =============================================================================

func (s *OrchestratorSuite) TestHighConfidenceMatchDecidesDirectly() {
	s.subjects.EXPECT().RecordVerification(gomock.Any(), subjectA, s.now).Return(nil)

	res, err := s.orchestrator(WithSubjectDirectory(s.subjects)).Evaluate(s.ctx, liveCapture(exactCandidate()))
	s.Require().NoError(err)

	s.Equal(DecisionMatch, res.Decision)
	s.Equal(session.StatusDirectDecision, res.State)
	s.Equal(embedding.LevelHigh, res.Level)
	s.Equal(subjectA, res.SubjectID)
	s.Nil(res.Backup)
	// 0.15*78.5 + 0.15*91.75 + 0.5*100 + 0.2*100
	s.InDelta(95.5375, res.Confidence, 1e-6)
	s.Equal([]audit.Action{
		audit.ActionCascadeStarted,
		audit.ActionLivenessChecked,
		audit.ActionAntiSpoofChecked,
		audit.ActionEmbeddingMatched,
		audit.ActionCascadeDecided,
	}, s.actions())
}

func (s *OrchestratorSuite) TestMediumMatchDecidesDirectly() {
	res, err := s.orchestrator().Evaluate(s.ctx, liveCapture(mediumCandidate()))
	s.Require().NoError(err)
	s.Equal(DecisionMatch, res.Decision)
	s.Equal(embedding.LevelMedium, res.Level)
	s.Equal(session.StatusDirectDecision, res.State)
}

func (s *OrchestratorSuite) TestBorderlineConfirmedByBackup() {
	cand := borderlineCandidate()
	s.images.EXPECT().ReferenceImage(gomock.Any(), cand).Return([]byte("ref-jpeg"), nil)
	s.backup.EXPECT().Compare(gomock.Any(), []byte("capture-jpeg"), []byte("ref-jpeg")).Return(95.0, nil)

	res, err := s.orchestrator(WithBackup(s.backup, s.images)).Evaluate(s.ctx, liveCapture(cand))
	s.Require().NoError(err)

	s.Equal(DecisionMatch, res.Decision)
	s.Equal(session.StatusDecision, res.State)
	s.Equal(embedding.LevelLow, res.Level)
	s.Require().NotNil(res.Backup)
	s.True(res.Backup.Available)
	s.True(res.Backup.Matched)
	s.InDelta(95.0, res.Backup.Similarity, 1e-9)
	// embedding slot is the mean of local (75) and backup (95)
	s.InDelta(87.0375, res.Confidence, 1e-3)
	s.Contains(s.actions(), audit.ActionBackupVerified)
}

func (s *OrchestratorSuite) TestBorderlineRejectedByBackup() {
	cand := borderlineCandidate()
	s.images.EXPECT().ReferenceImage(gomock.Any(), cand).Return([]byte("ref-jpeg"), nil)
	s.backup.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any()).Return(62.0, nil)

	res, err := s.orchestrator(WithBackup(s.backup, s.images)).Evaluate(s.ctx, liveCapture(cand))
	s.Require().NoError(err)

	s.Equal(DecisionNoMatch, res.Decision)
	s.Equal(session.StatusDecision, res.State)
	s.Zero(res.Confidence)
	s.True(res.SubjectID.IsNil())
	s.False(res.Backup.Matched)
}

func (s *OrchestratorSuite) TestBorderlineWithoutBackupFailsClosed() {
	res, err := s.orchestrator().Evaluate(s.ctx, liveCapture(borderlineCandidate()))
	s.Require().NoError(err)

	s.Equal(DecisionNoMatch, res.Decision)
	s.Equal(session.StatusDecision, res.State)
	s.Equal(ReasonBackupUnavailable, res.Reason)
	s.Require().NotNil(res.Backup)
	s.True(res.Backup.Attempted)
	s.False(res.Backup.Available)
}

func (s *OrchestratorSuite) TestBackupTimeoutFailsClosed() {
	cand := borderlineCandidate()
	s.images.EXPECT().ReferenceImage(gomock.Any(), cand).Return([]byte("ref-jpeg"), nil)
	s.backup.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _, _ []byte) (float64, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		}).Times(1)

	start := time.Now()
	res, err := s.orchestrator(WithBackup(s.backup, s.images)).Evaluate(s.ctx, liveCapture(cand))
	s.Require().NoError(err)

	s.Less(time.Since(start), time.Second)
	s.Equal(DecisionNoMatch, res.Decision)
	s.Equal(ReasonBackupUnavailable, res.Reason)
	s.NotEmpty(res.Backup.Error)
}

func (s *OrchestratorSuite) TestBackupErrorIsNotRetried() {
	cand := borderlineCandidate()
	s.images.EXPECT().ReferenceImage(gomock.Any(), cand).Return([]byte("ref-jpeg"), nil)
	s.backup.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any()).Return(0.0, errors.New("connection refused")).Times(1)

	res, err := s.orchestrator(WithBackup(s.backup, s.images)).Evaluate(s.ctx, liveCapture(cand))
	s.Require().NoError(err)
	s.Equal(DecisionNoMatch, res.Decision)
	s.Equal(ReasonBackupUnavailable, res.Reason)
}

func (s *OrchestratorSuite) TestMissingReferenceImageFailsClosed() {
	s.images.EXPECT().ReferenceImage(gomock.Any(), gomock.Any()).Return(nil, errors.New("not found"))

	res, err := s.orchestrator(WithBackup(s.backup, s.images)).Evaluate(s.ctx, liveCapture(borderlineCandidate()))
	s.Require().NoError(err)
	s.Equal(DecisionNoMatch, res.Decision)
	s.Equal(ReasonBackupUnavailable, res.Reason)
}

func (s *OrchestratorSuite) TestNoMatch() {
	res, err := s.orchestrator().Evaluate(s.ctx, liveCapture(strangerCandidate()))
	s.Require().NoError(err)
	s.Equal(DecisionNoMatch, res.Decision)
	s.Equal(session.StatusDirectDecision, res.State)
	s.Equal(embedding.LevelNone, res.Level)
	s.Zero(res.Confidence)
}

func (s *OrchestratorSuite) TestEmptyCandidatePool() {
	res, err := s.orchestrator().Evaluate(s.ctx, liveCapture())
	s.Require().NoError(err)
	s.Equal(DecisionNoMatch, res.Decision)
	s.Equal(session.StatusDirectDecision, res.State)
}

func (s *OrchestratorSuite) TestCandidatesLoadedFromSource() {
	src := mocks.NewMockCandidateSource(s.ctrl)
	src.EXPECT().ActiveEmbeddings(gomock.Any()).Return([]embedding.Embedding{exactCandidate()}, nil)

	res, err := s.orchestrator(WithCandidateSource(src)).Evaluate(s.ctx, liveCapture())
	s.Require().NoError(err)
	s.Equal(DecisionMatch, res.Decision)
}

func (s *OrchestratorSuite) TestLivenessFailureStopsCascade() {
	c := liveCapture(exactCandidate())
	c.Liveness.BlinkCount = 0
	c.Liveness.YawRange, c.Liveness.PitchRange, c.Liveness.RollRange = 0, 0, 0
	c.Liveness.MotionScore = 0.10
	c.Liveness.DepthScore = 0.20

	res, err := s.orchestrator().Evaluate(s.ctx, c)
	s.Require().NoError(err)

	s.Equal(DecisionLivenessFailed, res.Decision)
	s.Equal(session.StatusLivenessFailed, res.State)
	s.Nil(res.AntiSpoof)
	s.Nil(res.Match)
	s.Len(res.Gates, 1)
	s.NotContains(s.actions(), audit.ActionEmbeddingMatched)
}

func (s *OrchestratorSuite) TestSpoofStopsCascade() {
	c := liveCapture(exactCandidate())
	c.AntiSpoof.SpoofProbability = 0.80
	c.AntiSpoof.LaplacianVariance = 150
	c.AntiSpoof.TextureVariance = 0.20
	c.AntiSpoof.MoireScore = 0.70
	c.AntiSpoof.ReflectionScore = 0.80
	c.AntiSpoof.ColorNaturalness = 0.70

	res, err := s.orchestrator().Evaluate(s.ctx, c)
	s.Require().NoError(err)

	s.Equal(DecisionSpoofDetected, res.Decision)
	s.Equal(session.StatusSpoofDetected, res.State)
	s.Equal(antispoof.AttackVideo, res.AntiSpoof.AttackType)
	s.Nil(res.Match)
}

// =============================================================================
// Failure Handling
// =============================================================================

func (s *OrchestratorSuite) TestMalformedCaptureIsRejectedBeforeGates() {
	c := liveCapture(exactCandidate())
	c.Embedding = []float64{1, 0}

	res, err := s.orchestrator().Evaluate(s.ctx, c)
	s.Nil(res)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal([]audit.Action{audit.ActionCascadeRejected}, s.actions())
}

func (s *OrchestratorSuite) TestRejectRecordsExtractionFailure() {
	sessionID := id.NewSessionID()
	err := s.orchestrator().Reject(s.ctx, sessionID, errors.New("perception provider timed out"))
	s.Require().NoError(err)

	events, err := s.auditStore.List(s.ctx, audit.Range{})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.ActionCascadeRejected, events[0].Action)
	s.Equal(audit.OutcomeError, events[0].Outcome)
	s.Equal(sessionID.String(), events[0].SessionID)
	s.Equal("perception provider timed out", events[0].Detail["error"])
}

func (s *OrchestratorSuite) TestRejectReturnsAuditFailure() {
	auditor := mocks.NewMockAuditAppender(s.ctrl)
	auditor.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil, errors.New("audit store offline"))

	o, err := NewOrchestrator(s.cfg, s.matcher, s.live, s.spoof, auditor, WithLogger(s.logger))
	s.Require().NoError(err)

	err = o.Reject(s.ctx, id.NewSessionID(), errors.New("bad image"))
	s.ErrorContains(err, "audit store offline")
}

func (s *OrchestratorSuite) TestPanicBecomesErrorDecision() {
	src := mocks.NewMockCandidateSource(s.ctrl)
	src.EXPECT().ActiveEmbeddings(gomock.Any()).DoAndReturn(func(context.Context) ([]embedding.Embedding, error) {
		panic("index corrupted")
	})

	res, err := s.orchestrator(WithCandidateSource(src)).Evaluate(s.ctx, liveCapture())
	s.Require().NoError(err)
	s.Equal(DecisionError, res.Decision)
	s.Equal(session.StatusError, res.State)
	s.Contains(res.Reason, "index corrupted")
	s.Zero(res.Confidence)

	actions := s.actions()
	s.Equal(audit.ActionCascadeDecided, actions[len(actions)-1])
}

func (s *OrchestratorSuite) TestCandidateLoadErrorBecomesErrorDecision() {
	src := mocks.NewMockCandidateSource(s.ctrl)
	src.EXPECT().ActiveEmbeddings(gomock.Any()).Return(nil, errors.New("db down"))

	res, err := s.orchestrator(WithCandidateSource(src)).Evaluate(s.ctx, liveCapture())
	s.Require().NoError(err)
	s.Equal(DecisionError, res.Decision)
}

func (s *OrchestratorSuite) TestAuditFailureIsFatal() {
	auditor := mocks.NewMockAuditAppender(s.ctrl)
	auditor.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil, errors.New("audit store offline"))

	o, err := NewOrchestrator(s.cfg, s.matcher, s.live, s.spoof, auditor, WithLogger(s.logger))
	s.Require().NoError(err)

	res, err := o.Evaluate(s.ctx, liveCapture(exactCandidate()))
	s.Nil(res)
	s.ErrorContains(err, "audit store offline")
}

func (s *OrchestratorSuite) TestAuditFailureOnDecisionIsFatal() {
	auditor := mocks.NewMockAuditAppender(s.ctrl)
	gomock.InOrder(
		auditor.EXPECT().Append(gomock.Any(), gomock.Any()).Return(&audit.Event{}, nil).Times(4),
		auditor.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil, errors.New("disk full")),
	)

	o, err := NewOrchestrator(s.cfg, s.matcher, s.live, s.spoof, auditor, WithLogger(s.logger))
	s.Require().NoError(err)

	res, err := o.Evaluate(s.ctx, liveCapture(exactCandidate()))
	s.Nil(res)
	s.ErrorContains(err, "disk full")
}

func (s *OrchestratorSuite) TestSubjectUpdateFailureDoesNotChangeDecision() {
	s.subjects.EXPECT().RecordVerification(gomock.Any(), subjectA, s.now).Return(errors.New("timeout"))

	res, err := s.orchestrator(WithSubjectDirectory(s.subjects)).Evaluate(s.ctx, liveCapture(exactCandidate()))
	s.Require().NoError(err)
	s.Equal(DecisionMatch, res.Decision)
}

func (s *OrchestratorSuite) TestCancelledCallerStillCompletes() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	res, err := s.orchestrator().Evaluate(ctx, liveCapture(exactCandidate()))
	s.Require().NoError(err)
	s.Equal(DecisionMatch, res.Decision)
}

// =============================================================================
// Session Tracking
// =============================================================================

// recordingSessions notes every status a session passes through.
type recordingSessions struct {
	*sessionstore.InMemoryStore
	seen []session.Status
}

func (r *recordingSessions) Update(ctx context.Context, sessionID id.SessionID, fn func(*session.Session) error) (*session.Session, error) {
	sess, err := r.InMemoryStore.Update(ctx, sessionID, fn)
	if err == nil {
		r.seen = append(r.seen, sess.Status)
	}
	return sess, err
}

func (s *OrchestratorSuite) newSession(store *recordingSessions) id.SessionID {
	sess := &session.Session{
		ID:           id.NewSessionID(),
		TerminalID:   id.NewTerminalID(),
		TerminalType: "LAB_KIOSK",
		Status:       session.StatusInitiated,
		StartedAt:    s.now,
		UpdatedAt:    s.now,
	}
	s.Require().NoError(store.Create(s.ctx, sess))
	return sess.ID
}

func (s *OrchestratorSuite) TestSessionFollowsCascadeStates() {
	store := &recordingSessions{InMemoryStore: sessionstore.NewInMemoryStore()}
	sessionID := s.newSession(store)
	cand := borderlineCandidate()
	s.images.EXPECT().ReferenceImage(gomock.Any(), cand).Return([]byte("ref-jpeg"), nil)
	s.backup.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any()).Return(93.0, nil)

	c := liveCapture(cand)
	c.SessionID = sessionID
	res, err := s.orchestrator(WithSessions(store), WithBackup(s.backup, s.images)).Evaluate(s.ctx, c)
	s.Require().NoError(err)
	s.Equal(DecisionMatch, res.Decision)

	s.Equal([]session.Status{
		session.StatusLivenessCheck,
		session.StatusAntiSpoofCheck,
		session.StatusEmbeddingMatch,
		session.StatusBackupVerify,
		session.StatusDecision,
	}, store.seen)

	sess, err := store.Get(s.ctx, sessionID)
	s.Require().NoError(err)
	s.Equal(session.StatusDecision, sess.Status)
	s.Equal(res.AttemptID, sess.LastAttemptID)
	s.Equal(subjectA, sess.SubjectID)
	s.Require().NotNil(sess.Scores.Liveness)
	s.InDelta(0.785, *sess.Scores.Liveness, 1e-9)
	s.Require().NotNil(sess.Scores.FaceMatch)
	s.InDelta(0.75, *sess.Scores.FaceMatch, 1e-3)
}

func (s *OrchestratorSuite) TestTerminalSessionIsConflict() {
	store := &recordingSessions{InMemoryStore: sessionstore.NewInMemoryStore()}
	sessionID := s.newSession(store)
	o := s.orchestrator(WithSessions(store))

	c := liveCapture(strangerCandidate())
	c.SessionID = sessionID
	_, err := o.Evaluate(s.ctx, c)
	s.Require().NoError(err)

	_, err = o.Evaluate(s.ctx, c)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *OrchestratorSuite) TestUnknownSessionIsNotFound() {
	store := &recordingSessions{InMemoryStore: sessionstore.NewInMemoryStore()}
	c := liveCapture(exactCandidate())
	c.SessionID = id.NewSessionID()

	_, err := s.orchestrator(WithSessions(store)).Evaluate(s.ctx, c)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
