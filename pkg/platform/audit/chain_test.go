package audit_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	dErrors "facegate/pkg/domain-errors"
	audit "facegate/pkg/platform/audit"
	"facegate/pkg/platform/audit/store/memory"
	"facegate/pkg/requestcontext"
	"facegate/pkg/testutil/auditstore"
)

// =============================================================================
// Audit Chain Test Suite
// =============================================================================
// Justification for unit tests: tamper evidence is the chain's whole purpose;
// the transitive invalidation rule must hold for every field and position.

type ChainSuite struct {
	suite.Suite
	store *auditstore.Store
	chain *audit.Chain
	ctx   context.Context
}

func TestChainSuite(t *testing.T) {
	suite.Run(t, new(ChainSuite))
}

func (s *ChainSuite) SetupTest() {
	s.store = auditstore.New()
	chain, err := audit.NewChain(s.store, []byte("test-secret"))
	s.Require().NoError(err)
	s.chain = chain
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC))
}

func (s *ChainSuite) appendN(n int) []*audit.Event {
	events := make([]*audit.Event, 0, n)
	for i := 0; i < n; i++ {
		e, err := s.chain.Append(s.ctx, audit.Record{
			Action:    audit.ActionCascadeDecided,
			Resource:  fmt.Sprintf("attempt/%d", i),
			Outcome:   audit.OutcomeSuccess,
			SessionID: "session-1",
			Detail:    map[string]string{"decision": "MATCH", "index": fmt.Sprint(i)},
		})
		s.Require().NoError(err)
		events = append(events, e)
	}
	return events
}

func (s *ChainSuite) TestAppendLinksEvents() {
	events := s.appendN(3)

	s.Equal(audit.GenesisHash, events[0].PreviousHash)
	s.Equal(int64(1), events[0].Sequence)
	for i := 1; i < len(events); i++ {
		s.Equal(events[i-1].Hash, events[i].PreviousHash)
		s.Equal(events[i-1].Sequence+1, events[i].Sequence)
	}
	s.Len(events[0].Hash, 64)
	s.Equal(audit.Sign(events[0].Hash, []byte("test-secret")), events[0].Signature)
	s.Equal(0, events[0].Timestamp.Nanosecond()%1000, "timestamps are truncated to microseconds")
}

func (s *ChainSuite) TestAppendValidation() {
	cases := map[string]audit.Record{
		"missing action":   {Resource: "x", Outcome: audit.OutcomeSuccess},
		"missing resource": {Action: audit.ActionRoutingDecided, Outcome: audit.OutcomeSuccess},
		"unknown outcome":  {Action: audit.ActionRoutingDecided, Resource: "x", Outcome: "MAYBE"},
	}
	for name, rec := range cases {
		s.Run(name, func() {
			_, err := s.chain.Append(s.ctx, rec)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func (s *ChainSuite) TestVerifyUntouchedChain() {
	s.Run("single event", func() {
		s.appendN(1)
		report, err := s.chain.VerifyIntegrity(s.ctx, audit.Range{})
		s.Require().NoError(err)
		s.True(report.Valid)
		s.Equal(1, report.Checked)
		s.Empty(report.InvalidEventIDs)
		s.NoError(report.Err())
	})

	s.Run("many events", func() {
		s.appendN(9)
		report, err := s.chain.VerifyIntegrity(s.ctx, audit.Range{})
		s.Require().NoError(err)
		s.True(report.Valid)
		s.Equal(10, report.Checked)
	})
}

func (s *ChainSuite) TestTamperInvalidatesEventAndSuccessors() {
	mutations := map[string]func(e *audit.Event){
		"detail":    func(e *audit.Event) { e.Detail["decision"] = "NO_MATCH" },
		"outcome":   func(e *audit.Event) { e.Outcome = audit.OutcomeFailure },
		"timestamp": func(e *audit.Event) { e.Timestamp = e.Timestamp.Add(time.Second) },
		"resource":  func(e *audit.Event) { e.Resource = "attempt/forged" },
		"prev hash": func(e *audit.Event) { e.PreviousHash = audit.GenesisHash },
	}
	for name, mutate := range mutations {
		s.Run(name, func() {
			s.SetupTest()
			events := s.appendN(5)
			s.Require().True(s.store.Tamper(3, mutate))

			report, err := s.chain.VerifyIntegrity(s.ctx, audit.Range{})
			s.Require().NoError(err)
			s.False(report.Valid)
			s.Equal([]string{events[2].ID, events[3].ID, events[4].ID}, report.InvalidEventIDs)
			s.Equal(events[2].ID, report.FirstInvalid)
			s.True(dErrors.HasCode(report.Err(), dErrors.CodeIntegrity))
		})
	}
}

func (s *ChainSuite) TestRewrittenHashStillDetected() {
	events := s.appendN(3)
	// An attacker without the secret recomputes the hash but cannot sign it.
	s.store.Tamper(2, func(e *audit.Event) {
		e.Resource = "attempt/forged"
		e.Hash, _ = audit.ComputeHash(e)
	})

	report, err := s.chain.VerifyIntegrity(s.ctx, audit.Range{})
	s.Require().NoError(err)
	s.Equal([]string{events[1].ID, events[2].ID}, report.InvalidEventIDs)
}

func (s *ChainSuite) TestDeletedEventDetected() {
	events := s.appendN(4)
	s.Require().True(s.store.Delete(2))

	report, err := s.chain.VerifyIntegrity(s.ctx, audit.Range{})
	s.Require().NoError(err)
	s.False(report.Valid)
	s.Equal([]string{events[2].ID, events[3].ID}, report.InvalidEventIDs)
}

func (s *ChainSuite) TestRangedVerification() {
	events := s.appendN(6)

	s.Run("clean range anchors on predecessor", func() {
		report, err := s.chain.VerifyIntegrity(s.ctx, audit.Range{FromSequence: 3, ToSequence: 5})
		s.Require().NoError(err)
		s.True(report.Valid)
		s.Equal(3, report.Checked)
	})

	s.Run("tamper inside range", func() {
		s.store.Tamper(4, func(e *audit.Event) { e.Actor = "intruder" })
		report, err := s.chain.VerifyIntegrity(s.ctx, audit.Range{FromSequence: 3, ToSequence: 5})
		s.Require().NoError(err)
		s.Equal([]string{events[3].ID, events[4].ID}, report.InvalidEventIDs)
	})

	s.Run("inverted range", func() {
		_, err := s.chain.VerifyIntegrity(s.ctx, audit.Range{FromSequence: 5, ToSequence: 2})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestChain_ConcurrentAppendsFormSingleChain(t *testing.T) {
	store := memory.NewInMemoryStore()
	chain, err := audit.NewChain(store, []byte("k"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := chain.Append(context.Background(), audit.Record{
				Action: audit.ActionRiskEvaluated, Resource: "session", Outcome: audit.OutcomeSuccess,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	report, err := chain.VerifyIntegrity(context.Background(), audit.Range{})
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 50, report.Checked)
}

type failingStore struct{ audit.Store }

func (failingStore) AppendLinked(context.Context, func(*audit.Event) (*audit.Event, error)) (*audit.Event, error) {
	return nil, errors.New("disk full")
}

func TestChain_AppendFailureIsFatal(t *testing.T) {
	chain, err := audit.NewChain(failingStore{}, []byte("k"))
	require.NoError(t, err)

	_, err = chain.Append(context.Background(), audit.Record{
		Action: audit.ActionRoutingDecided, Resource: "session", Outcome: audit.OutcomeSuccess,
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

type recordingForwarder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (f *recordingForwarder) Forward(_ context.Context, e audit.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func TestChain_ForwardsCommittedEvents(t *testing.T) {
	fwd := &recordingForwarder{}
	chain, err := audit.NewChain(memory.NewInMemoryStore(), []byte("k"), audit.WithForwarder(fwd))
	require.NoError(t, err)

	e, err := chain.Append(context.Background(), audit.Record{
		Action: audit.ActionRoutingDecided, Resource: "session", Outcome: audit.OutcomeSuccess,
	})
	require.NoError(t, err)
	require.Len(t, fwd.events, 1)
	assert.Equal(t, e.Hash, fwd.events[0].Hash)
}

func TestNewChain_RequiresDependencies(t *testing.T) {
	_, err := audit.NewChain(nil, []byte("k"))
	assert.Error(t, err)
	_, err = audit.NewChain(memory.NewInMemoryStore(), nil)
	assert.Error(t, err)
}
