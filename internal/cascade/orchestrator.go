package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"facegate/internal/biometric/antispoof"
	"facegate/internal/biometric/embedding"
	"facegate/internal/biometric/liveness"
	"facegate/internal/cascade/metrics"
	"facegate/internal/session"
	id "facegate/pkg/domain"
	"facegate/pkg/platform/audit"
	"facegate/pkg/requestcontext"
)

const tracerName = "facegate/internal/cascade"

// Orchestrator sequences the gates. It holds no per-attempt state; every
// Evaluate call is independent.
type Orchestrator struct {
	cfg       Config
	matcher   *embedding.Matcher
	liveness  liveness.Scorer
	antispoof antispoof.Scorer
	auditor   AuditAppender

	candidates CandidateSource
	images     ReferenceImages
	backup     BackupProvider
	subjects   SubjectDirectory
	sessions   SessionStore

	metrics *metrics.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithCandidateSource supplies the pool used when a capture brings none.
func WithCandidateSource(src CandidateSource) Option {
	return func(o *Orchestrator) { o.candidates = src }
}

// WithBackup enables escalation of borderline matches.
func WithBackup(provider BackupProvider, images ReferenceImages) Option {
	return func(o *Orchestrator) {
		o.backup = provider
		o.images = images
	}
}

func WithSubjectDirectory(d SubjectDirectory) Option {
	return func(o *Orchestrator) { o.subjects = d }
}

// WithSessions makes sessions named by a capture follow the cascade states.
func WithSessions(s SessionStore) Option {
	return func(o *Orchestrator) { o.sessions = s }
}

func NewOrchestrator(cfg Config, matcher *embedding.Matcher, live liveness.Scorer, spoof antispoof.Scorer, auditor AuditAppender, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case matcher == nil:
		return nil, errors.New("embedding matcher is required")
	case live == nil:
		return nil, errors.New("liveness scorer is required")
	case spoof == nil:
		return nil, errors.New("anti-spoof scorer is required")
	case auditor == nil:
		return nil, errors.New("audit appender is required")
	}
	o := &Orchestrator{
		cfg:       cfg,
		matcher:   matcher,
		liveness:  live,
		antispoof: spoof,
		auditor:   auditor,
		tracer:    otel.Tracer(tracerName),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// auditError marks a failed audit write. It is the one failure that aborts
// an attempt instead of turning into an ERROR decision.
type auditError struct{ err error }

func (e *auditError) Error() string { return e.err.Error() }
func (e *auditError) Unwrap() error { return e.err }

// run carries one attempt through the gates.
type run struct {
	o       *Orchestrator
	capture Capture
	result  *Result
	span    trace.Span
	now     time.Time
}

// Evaluate runs one verification attempt. Invalid input is returned as a
// validation error before any gate runs. Gate failures, panics and store
// errors become an ERROR decision; a failed audit write is returned as an
// error because the attempt would otherwise go unrecorded.
func (o *Orchestrator) Evaluate(ctx context.Context, capture Capture) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "cascade.Evaluate")
	defer span.End()
	start := time.Now()

	r := &run{
		o:       o,
		capture: capture,
		span:    span,
		now:     requestcontext.Now(ctx),
	}
	r.result = &Result{
		AttemptID: id.NewAttemptID(),
		SessionID: capture.SessionID,
		State:     session.StatusInitiated,
		StartedAt: r.now,
	}
	span.SetAttributes(attribute.String("cascade.attempt_id", r.result.AttemptID.String()))

	if err := o.validate(capture); err != nil {
		o.metrics.IncrementRejection()
		return nil, r.reject(ctx, err)
	}

	// An attempt that has started runs to completion; only the backup call
	// carries its own deadline.
	ctx = context.WithoutCancel(ctx)

	if err := r.begin(ctx); err != nil {
		return nil, err
	}

	err := r.safely(ctx)
	var ae *auditError
	if errors.As(err, &ae) {
		span.SetStatus(codes.Error, "audit append failed")
		return nil, ae.err
	}
	if err != nil {
		r.fail(err)
	}

	if err := r.complete(ctx); err != nil {
		span.SetStatus(codes.Error, "audit append failed")
		return nil, err
	}

	res := r.result
	res.Duration = time.Since(start)
	o.metrics.ObserveDecision(string(res.Decision), string(res.State), res.Duration)
	span.SetAttributes(
		attribute.String("cascade.decision", string(res.Decision)),
		attribute.String("cascade.state", string(res.State)),
		attribute.Float64("cascade.confidence", res.Confidence),
	)
	if res.Decision == DecisionError {
		span.SetStatus(codes.Error, res.Reason)
	}
	o.logger.InfoContext(ctx, "cascade decided",
		"attempt_id", res.AttemptID,
		"session_id", res.SessionID,
		"decision", res.Decision,
		"state", res.State,
		"confidence", res.Confidence,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// Reject records an attempt that never reached the gates, such as a capture
// whose features could not be extracted. It returns the audit error when
// the rejection could not be written, nil otherwise.
func (o *Orchestrator) Reject(ctx context.Context, sessionID id.SessionID, cause error) error {
	r := &run{
		o:       o,
		capture: Capture{SessionID: sessionID},
		result:  &Result{AttemptID: id.NewAttemptID(), SessionID: sessionID},
		now:     requestcontext.Now(ctx),
	}
	o.metrics.IncrementRejection()
	err := r.audit(ctx, audit.ActionCascadeRejected, audit.OutcomeError, map[string]string{"error": cause.Error()})
	var ae *auditError
	if errors.As(err, &ae) {
		return ae.err
	}
	return err
}

func (o *Orchestrator) validate(c Capture) error {
	if err := o.matcher.Validate(c.Embedding); err != nil {
		return err
	}
	if err := o.liveness.Validate(c.Liveness); err != nil {
		return err
	}
	return o.antispoof.Validate(c.AntiSpoof)
}

func (r *run) reject(ctx context.Context, cause error) error {
	r.span.SetStatus(codes.Error, "capture rejected")
	if err := r.audit(ctx, audit.ActionCascadeRejected, audit.OutcomeFailure, map[string]string{"error": cause.Error()}); err != nil {
		return err
	}
	return cause
}

// begin claims the session for this attempt and records the start.
func (r *run) begin(ctx context.Context) error {
	if r.tracked() {
		_, err := r.o.sessions.Update(ctx, r.capture.SessionID, func(s *session.Session) error {
			if err := s.Advance(session.StatusLivenessCheck, r.now); err != nil {
				return err
			}
			s.LastAttemptID = r.result.AttemptID
			return nil
		})
		if err != nil {
			return r.reject(ctx, session.TranslateError(err, "failed to start cascade on session"))
		}
	}
	r.result.State = session.StatusLivenessCheck
	r.span.AddEvent("state", trace.WithAttributes(attribute.String("state", string(r.result.State))))
	return r.audit(ctx, audit.ActionCascadeStarted, audit.OutcomeSuccess, map[string]string{
		"candidates": strconv.Itoa(len(r.capture.Candidates)),
	})
}

func (r *run) safely(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("cascade panicked in %s: %v", r.result.State, p)
		}
	}()
	return r.execute(ctx)
}

func (r *run) execute(ctx context.Context) error {
	o, c, res := r.o, r.capture, r.result

	live, err := guard(GateLiveness, func() (liveness.Result, error) { return o.liveness.Score(c.Liveness) })
	if err != nil {
		return err
	}
	res.Liveness = &live
	r.gate(GateLiveness, live.IsLive, live.Score, live.Reason)
	if err := r.audit(ctx, audit.ActionLivenessChecked, outcome(live.IsLive), map[string]string{
		"score":      formatScore(live.Score),
		"confidence": formatScore(live.Confidence),
		"version":    live.Version,
	}); err != nil {
		return err
	}
	if !live.IsLive {
		r.finish(session.StatusLivenessFailed, DecisionLivenessFailed, live.Reason)
		return nil
	}

	if err := r.enter(ctx, session.StatusAntiSpoofCheck); err != nil {
		return err
	}
	spoof, err := guard(GateAntiSpoof, func() (antispoof.Result, error) { return o.antispoof.Score(c.AntiSpoof) })
	if err != nil {
		return err
	}
	res.AntiSpoof = &spoof
	r.gate(GateAntiSpoof, spoof.IsReal, spoof.PassScore, spoof.Reason)
	detail := map[string]string{
		"spoof_score": formatScore(spoof.SpoofScore),
		"version":     spoof.Version,
	}
	if spoof.AttackType != "" {
		detail["attack_type"] = string(spoof.AttackType)
	}
	if err := r.audit(ctx, audit.ActionAntiSpoofChecked, outcome(spoof.IsReal), detail); err != nil {
		return err
	}
	if !spoof.IsReal {
		r.finish(session.StatusSpoofDetected, DecisionSpoofDetected, spoof.Reason)
		return nil
	}

	if err := r.enter(ctx, session.StatusEmbeddingMatch); err != nil {
		return err
	}
	candidates := c.Candidates
	if len(candidates) == 0 && o.candidates != nil {
		candidates, err = o.candidates.ActiveEmbeddings(ctx)
		if err != nil {
			return fmt.Errorf("load candidates: %w", err)
		}
	}
	match, err := guard(GateEmbedding, func() (embedding.Match, error) {
		return o.matcher.BestMatch(ctx, c.Embedding, candidates)
	})
	if err != nil {
		return err
	}
	res.Match = &match.Result
	res.Level = match.Result.Level
	direct := match.Result.Level == embedding.LevelHigh || match.Result.Level == embedding.LevelMedium
	r.gate(GateEmbedding, direct, match.Result.Similarity, string(match.Result.Level))

	matchDetail := map[string]string{
		"level":      string(match.Result.Level),
		"distance":   strconv.FormatFloat(match.Result.Distance, 'f', 4, 64),
		"similarity": formatScore(match.Result.Similarity),
		"candidates": strconv.Itoa(len(candidates)),
		"skipped":    strconv.Itoa(match.Skipped),
	}
	if match.Found {
		matchDetail["candidate_subject_id"] = match.Candidate.SubjectID.String()
	}
	if err := r.audit(ctx, audit.ActionEmbeddingMatched, outcome(match.Found && match.Result.Level != embedding.LevelNone), matchDetail); err != nil {
		return err
	}

	switch {
	case !match.Found:
		r.finish(session.StatusDirectDecision, DecisionNoMatch, "no active enrolled embedding to compare against")
	case direct:
		res.SubjectID = match.Candidate.SubjectID
		res.Confidence = Fuse(o.cfg.Weights, live.Score, spoof.PassScore, match.Result.Similarity, nil)
		r.finish(session.StatusDirectDecision, DecisionMatch, fmt.Sprintf("%s embedding match", match.Result.Level))
	case match.Result.Level == embedding.LevelLow:
		return r.escalate(ctx, match)
	default:
		r.finish(session.StatusDirectDecision, DecisionNoMatch, "no enrolled embedding within match distance")
	}
	return nil
}

// escalate asks the backup provider to settle a borderline match. Any
// failure there degrades to a local NO_MATCH.
func (r *run) escalate(ctx context.Context, match embedding.Match) error {
	o, res := r.o, r.result
	if err := r.enter(ctx, session.StatusBackupVerify); err != nil {
		return err
	}

	br := &BackupResult{Attempted: true}
	res.Backup = br
	start := time.Now()
	sim, err := r.callBackup(ctx, match.Candidate)
	br.Duration = time.Since(start)

	candidate := match.Candidate.SubjectID.String()
	if err != nil {
		br.Error = err.Error()
		r.gate(GateBackup, false, 0, err.Error())
		o.metrics.ObserveBackup("unavailable", br.Duration)
		o.logger.WarnContext(ctx, "backup comparison unavailable",
			"attempt_id", res.AttemptID,
			"error", err,
		)
		if err := r.audit(ctx, audit.ActionBackupVerified, audit.OutcomeError, map[string]string{
			"error":                err.Error(),
			"candidate_subject_id": candidate,
		}); err != nil {
			return err
		}
		r.finish(session.StatusDecision, DecisionNoMatch, ReasonBackupUnavailable)
		return nil
	}

	br.Available = true
	br.Similarity = sim
	br.Matched = sim >= o.cfg.BackupMatchThreshold
	r.gate(GateBackup, br.Matched, sim, "")
	if br.Matched {
		o.metrics.ObserveBackup("matched", br.Duration)
	} else {
		o.metrics.ObserveBackup("rejected", br.Duration)
	}
	if err := r.audit(ctx, audit.ActionBackupVerified, outcome(br.Matched), map[string]string{
		"similarity":           formatScore(sim),
		"threshold":            formatScore(o.cfg.BackupMatchThreshold),
		"candidate_subject_id": candidate,
	}); err != nil {
		return err
	}

	if !br.Matched {
		r.finish(session.StatusDecision, DecisionNoMatch,
			fmt.Sprintf("borderline match rejected by backup (similarity %.1f below %.1f)", sim, o.cfg.BackupMatchThreshold))
		return nil
	}
	res.SubjectID = match.Candidate.SubjectID
	local := match.Result.Similarity
	// embedding slot takes the local/backup mean, backup slot the backup score
	res.Confidence = Fuse(o.cfg.Weights, res.Liveness.Score, res.AntiSpoof.PassScore, (local+sim)/2, &sim)
	r.finish(session.StatusDecision, DecisionMatch, fmt.Sprintf("borderline match confirmed by backup (similarity %.1f)", sim))
	return nil
}

type backupReply struct {
	similarity float64
	err        error
}

// callBackup makes the single, bounded backup call. The deadline holds even
// if the provider ignores its context.
func (r *run) callBackup(ctx context.Context, candidate embedding.Embedding) (float64, error) {
	o := r.o
	if o.backup == nil || o.images == nil {
		return 0, errors.New("no backup provider configured")
	}
	if len(r.capture.Image) == 0 {
		return 0, errors.New("capture carries no image for backup comparison")
	}

	bctx, cancel := context.WithTimeout(ctx, o.cfg.BackupTimeout)
	defer cancel()

	reference, err := o.images.ReferenceImage(bctx, candidate)
	if err != nil {
		return 0, fmt.Errorf("reference image: %w", err)
	}

	replies := make(chan backupReply, 1)
	go func() {
		sim, err := guard(GateBackup, func() (float64, error) {
			return o.backup.Compare(bctx, r.capture.Image, reference)
		})
		replies <- backupReply{similarity: sim, err: err}
	}()

	select {
	case rep := <-replies:
		if rep.err != nil {
			return 0, rep.err
		}
		if math.IsNaN(rep.similarity) || rep.similarity < 0 || rep.similarity > 100 {
			return 0, fmt.Errorf("backup similarity %v outside [0, 100]", rep.similarity)
		}
		return rep.similarity, nil
	case <-bctx.Done():
		return 0, fmt.Errorf("backup comparison timed out after %s: %w", o.cfg.BackupTimeout, bctx.Err())
	}
}

func (r *run) enter(ctx context.Context, state session.Status) error {
	if r.tracked() {
		_, err := r.o.sessions.Update(ctx, r.capture.SessionID, func(s *session.Session) error {
			return s.Advance(state, r.now)
		})
		if err != nil {
			return fmt.Errorf("advance session to %s: %w", state, err)
		}
	}
	r.result.State = state
	r.span.AddEvent("state", trace.WithAttributes(attribute.String("state", string(state))))
	return nil
}

func (r *run) finish(state session.Status, decision Decision, reason string) {
	r.result.State = state
	r.result.Decision = decision
	r.result.Reason = reason
	if decision != DecisionMatch {
		r.result.Confidence = 0
		r.result.SubjectID = id.SubjectID{}
	}
}

// fail maps an unexpected error to the ERROR decision. Never MATCH.
func (r *run) fail(err error) {
	r.o.logger.Error("cascade step failed",
		"attempt_id", r.result.AttemptID,
		"state", r.result.State,
		"error", err,
	)
	r.finish(session.StatusError, DecisionError, err.Error())
}

// complete writes the terminal state to the session, updates the subject
// on a match and records the decision.
func (r *run) complete(ctx context.Context) error {
	o, res := r.o, r.result

	if r.tracked() {
		_, err := o.sessions.Update(ctx, r.capture.SessionID, func(s *session.Session) error {
			if err := s.Advance(res.State, r.now); err != nil {
				return err
			}
			s.Scores = s.Scores.Merge(res.Scores())
			if res.Decision == DecisionMatch && s.SubjectID.IsNil() {
				s.SubjectID = res.SubjectID
			}
			return nil
		})
		if err != nil && res.Decision != DecisionError {
			r.fail(fmt.Errorf("record session outcome: %w", err))
		} else if err != nil {
			o.logger.ErrorContext(ctx, "failed to record errored cascade on session",
				"session_id", r.capture.SessionID,
				"error", err,
			)
		}
	}

	if res.Decision == DecisionMatch && o.subjects != nil {
		if err := o.subjects.RecordVerification(ctx, res.SubjectID, r.now); err != nil {
			o.logger.WarnContext(ctx, "failed to record subject verification",
				"subject_id", res.SubjectID,
				"error", err,
			)
		}
	}

	detail := map[string]string{
		"decision":   string(res.Decision),
		"state":      string(res.State),
		"confidence": formatScore(res.Confidence),
	}
	if res.Reason != "" {
		detail["reason"] = res.Reason
	}
	if !res.SubjectID.IsNil() {
		detail["subject_id"] = res.SubjectID.String()
	}
	var out audit.Outcome
	switch res.Decision {
	case DecisionMatch:
		out = audit.OutcomeSuccess
	case DecisionError:
		out = audit.OutcomeError
	default:
		out = audit.OutcomeFailure
	}
	if err := r.audit(ctx, audit.ActionCascadeDecided, out, detail); err != nil {
		var ae *auditError
		if errors.As(err, &ae) {
			return ae.err
		}
		return err
	}
	return nil
}

func (r *run) tracked() bool {
	return r.o.sessions != nil && !r.capture.SessionID.IsNil()
}

func (r *run) gate(g Gate, passed bool, score float64, detail string) {
	r.result.Gates = append(r.result.Gates, GateResult{Gate: g, Passed: passed, Score: score, Detail: detail})
	r.span.AddEvent("gate", trace.WithAttributes(
		attribute.String("gate", string(g)),
		attribute.Bool("passed", passed),
		attribute.Float64("score", score),
	))
}

func (r *run) audit(ctx context.Context, action audit.Action, out audit.Outcome, detail map[string]string) error {
	rec := audit.Record{
		Action:   action,
		Resource: "attempt/" + r.result.AttemptID.String(),
		Outcome:  out,
		Detail:   detail,
	}
	if !r.capture.SessionID.IsNil() {
		rec.SessionID = r.capture.SessionID.String()
	}
	if t := requestcontext.TerminalID(ctx); !t.IsNil() {
		rec.Actor = "terminal/" + t.String()
	}
	if _, err := r.o.auditor.Append(ctx, rec); err != nil {
		return &auditError{err: err}
	}
	return nil
}

// guard runs one gate, turning a panic into an error.
func guard[T any](g Gate, fn func() (T, error)) (out T, err error) {
	defer func() {
		if p := recover(); p != nil {
			var zero T
			out, err = zero, fmt.Errorf("%s gate panicked: %v", g, p)
		}
	}()
	out, err = fn()
	if err != nil {
		return out, fmt.Errorf("%s gate: %w", g, err)
	}
	return out, nil
}

func outcome(passed bool) audit.Outcome {
	if passed {
		return audit.OutcomeSuccess
	}
	return audit.OutcomeFailure
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
