package draft

import (
	"battle-arena/internal/domain"
	"battle-arena/internal/failure"
	"battle-arena/internal/pubsub"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePicker struct {
	mu     sync.Mutex
	keys   []string
	err    error
	server []domain.DraftPick
	block  chan struct{}

	// runs under mu after a pick is recorded
	onSubmit func()
}

func (f *fakePicker) SubmitDraftPick(_ context.Context, _, participantID, unitID, key string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if f.err != nil {
		return f.err
	}
	f.server = append(f.server, domain.DraftPick{ParticipantID: participantID, UnitID: unitID})
	if f.onSubmit != nil {
		f.onSubmit()
	}
	return nil
}

func (f *fakePicker) GetDraftState(context.Context, string) ([]domain.DraftPick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.DraftPick(nil), f.server...), nil
}

func (f *fakePicker) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type recorder struct {
	mu     sync.Mutex
	events []pubsub.Event
}

func (r *recorder) Publish(ev pubsub.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []pubsub.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]pubsub.Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind()
	}
	return out
}

func testMatch(rules domain.DraftRules) domain.Match {
	return domain.Match{
		ID:     "m1",
		Status: domain.MatchInProgress,
		Participants: []domain.MatchParticipant{
			{ID: "A", UserID: "u-a", JoinOrder: 1},
			{ID: "B", UserID: "u-b", JoinOrder: 2},
		},
		Draft: rules,
	}
}

func newSession(rules domain.DraftRules) (*Session, *fakePicker, *recorder) {
	client := &fakePicker{}
	bus := &recorder{}
	return NewSession(testMatch(rules), client, bus, zerolog.Nop()), client, bus
}

func TestSubmitPickConfirmsAndCompletes(t *testing.T) {
	s, client, bus := newSession(domain.DraftRules{Mode: domain.PickAlternating, PicksPerParticipant: 1})
	ctx := context.Background()

	ack, err := s.SubmitPick(ctx, "A", "knight")
	require.NoError(t, err)
	assert.False(t, ack.Duplicate)
	assert.False(t, ack.Completed)
	assert.Equal(t, []string{"B"}, s.ExpectedPickers())

	ack, err = s.SubmitPick(ctx, "B", "archer")
	require.NoError(t, err)
	assert.True(t, ack.Completed)

	select {
	case <-s.Done():
	default:
		t.Fatal("done channel should be closed")
	}
	assert.Equal(t, []string{"draft:m1:A:0", "draft:m1:B:0"}, client.keys)
	assert.Equal(t, []pubsub.Kind{
		pubsub.KindDraftPickConfirmed,
		pubsub.KindDraftPickConfirmed,
		pubsub.KindDraftCompleted,
	}, bus.kinds())
}

func TestResubmittedPickIsNoOp(t *testing.T) {
	s, client, _ := newSession(domain.DraftRules{Mode: domain.PickAlternating, PicksPerParticipant: 2})
	ctx := context.Background()

	_, err := s.SubmitPick(ctx, "A", "knight")
	require.NoError(t, err)

	ack, err := s.SubmitPick(ctx, "A", "knight")
	require.NoError(t, err)
	assert.True(t, ack.Duplicate)
	assert.Len(t, client.keys, 1)
	assert.Equal(t, map[string][]string{"A": {"knight"}, "B": nil}, s.Picks())
}

func TestEarlierPickRepeatedOnNextTurnIsRejected(t *testing.T) {
	s, client, bus := newSession(domain.DraftRules{Mode: domain.PickAlternating, PicksPerParticipant: 2})
	ctx := context.Background()

	_, err := s.SubmitPick(ctx, "A", "knight")
	require.NoError(t, err)
	_, err = s.SubmitPick(ctx, "B", "archer")
	require.NoError(t, err)

	ack, err := s.SubmitPick(ctx, "A", "knight")
	require.ErrorIs(t, err, failure.ErrConflict)
	require.ErrorIs(t, err, ErrDuplicateUnit)
	assert.Equal(t, Ack{}, ack)
	assert.Len(t, client.keys, 2)
	assert.Equal(t, []string{"A"}, s.ExpectedPickers())
	assert.Equal(t, pubsub.KindDraftPickRejected, bus.kinds()[len(bus.kinds())-1])
}

func TestAcknowledgedPickThatNoLongerFitsResyncs(t *testing.T) {
	s, client, _ := newSession(domain.DraftRules{Mode: domain.PickAlternating, PicksPerParticipant: 1})
	client.onSubmit = func() {
		// the server kept a pick made elsewhere and its echo lands first
		client.server = []domain.DraftPick{{ParticipantID: "A", UnitID: "archer"}}
		require.NoError(t, s.ApplyRemote(domain.DraftPick{ParticipantID: "A", UnitID: "archer"}))
	}

	ack, err := s.SubmitPick(context.Background(), "A", "knight")
	require.NoError(t, err)
	assert.False(t, ack.Duplicate)
	assert.False(t, ack.Completed)
	assert.Equal(t, map[string][]string{"A": {"archer"}, "B": nil}, s.Picks())
	assert.Equal(t, []string{"B"}, s.ExpectedPickers())
}

func TestOutOfTurnPickRejectedLocally(t *testing.T) {
	s, client, bus := newSession(domain.DraftRules{Mode: domain.PickAlternating, PicksPerParticipant: 1})

	_, err := s.SubmitPick(context.Background(), "B", "archer")
	require.ErrorIs(t, err, failure.ErrConflict)
	require.ErrorIs(t, err, ErrWrongTurn)
	assert.Empty(t, client.keys)
	assert.Equal(t, []pubsub.Kind{pubsub.KindDraftPickRejected}, bus.kinds())
}

func TestOpponentUnitForbiddenByDefault(t *testing.T) {
	s, _, _ := newSession(domain.DraftRules{Mode: domain.PickAlternating, PicksPerParticipant: 1})
	ctx := context.Background()

	_, err := s.SubmitPick(ctx, "A", "knight")
	require.NoError(t, err)
	_, err = s.SubmitPick(ctx, "B", "knight")
	require.ErrorIs(t, err, ErrDuplicateUnit)
}

func TestNetworkFailureLeavesNoPick(t *testing.T) {
	s, client, bus := newSession(domain.DraftRules{Mode: domain.PickAlternating, PicksPerParticipant: 1})
	client.setErr(failure.Network("submitDraftPick", errors.New("connection reset")))

	_, err := s.SubmitPick(context.Background(), "A", "knight")
	require.ErrorIs(t, err, failure.ErrNetwork)

	_, pending := s.Pending("A")
	assert.False(t, pending)
	assert.Equal(t, map[string][]string{"A": nil, "B": nil}, s.Picks())
	assert.Empty(t, bus.kinds(), "network errors do not announce a rejection")

	client.setErr(nil)
	_, err = s.SubmitPick(context.Background(), "A", "knight")
	require.NoError(t, err)
	assert.Equal(t, []string{"draft:m1:A:0", "draft:m1:A:0"}, client.keys, "retry reuses the idempotency key")
}

func TestConflictRollsBackAndResyncs(t *testing.T) {
	s, client, bus := newSession(domain.DraftRules{Mode: domain.PickAlternating, PicksPerParticipant: 2})
	ctx := context.Background()

	// the server already holds a pick the client never saw
	client.server = []domain.DraftPick{{ParticipantID: "A", UnitID: "mage"}}
	client.setErr(failure.Conflict("submitDraftPick", errors.New("status 409")))

	_, err := s.SubmitPick(ctx, "A", "knight")
	require.ErrorIs(t, err, failure.ErrConflict)

	assert.Equal(t, map[string][]string{"A": {"mage"}, "B": nil}, s.Picks())
	assert.Equal(t, []string{"B"}, s.ExpectedPickers())
	assert.Contains(t, bus.kinds(), pubsub.KindDraftPickRejected)
}

func TestConcurrentPickForSameParticipantConflicts(t *testing.T) {
	s, client, _ := newSession(domain.DraftRules{Mode: domain.PickSimultaneous, PicksPerParticipant: 1})
	client.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := s.SubmitPick(context.Background(), "A", "knight")
		done <- err
	}()

	require.Eventually(t, func() bool {
		_, ok := s.Pending("A")
		return ok
	}, time.Second, time.Millisecond)

	_, err := s.SubmitPick(context.Background(), "A", "mage")
	require.ErrorIs(t, err, ErrSubmissionInFlight)

	close(client.block)
	require.NoError(t, <-done)
}

func TestApplyRemotePick(t *testing.T) {
	s, _, bus := newSession(domain.DraftRules{Mode: domain.PickAlternating, PicksPerParticipant: 1})
	ctx := context.Background()

	_, err := s.SubmitPick(ctx, "A", "knight")
	require.NoError(t, err)

	require.NoError(t, s.ApplyRemote(domain.DraftPick{ParticipantID: "B", UnitID: "archer"}))
	require.NoError(t, s.ApplyRemote(domain.DraftPick{ParticipantID: "B", UnitID: "archer"}))
	assert.True(t, s.Completed())

	err = s.ApplyRemote(domain.DraftPick{ParticipantID: "B", UnitID: "mage"})
	require.ErrorIs(t, err, ErrDraftCompleted)

	kinds := bus.kinds()
	assert.Equal(t, pubsub.KindDraftCompleted, kinds[len(kinds)-1])
	assert.Len(t, kinds, 3)
}
