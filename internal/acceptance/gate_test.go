package acceptance

import (
	"battle-arena/internal/countdown"
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

type fakeResponder struct {
	mu      sync.Mutex
	accepts int
	rejects int
	err     error
	block   chan struct{}
}

func (f *fakeResponder) AcceptMatch(context.Context, string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepts++
	return f.err
}

func (f *fakeResponder) RejectMatch(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejects++
	return f.err
}

func (f *fakeResponder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accepts + f.rejects
}

type fakeQueue struct {
	mu       sync.Mutex
	released []string
}

func (q *fakeQueue) ReleaseQueue(matchID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.released = append(q.released, matchID)
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.released)
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

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newGate(t *testing.T, client *fakeResponder) (*Gate, *countdown.ManualClock, *fakeQueue, *recorder) {
	t.Helper()
	clock := countdown.NewManualClock(base)
	queue := &fakeQueue{}
	bus := &recorder{}
	found := domain.MatchFound{
		MatchID: "m1",
		Match:   domain.Match{ID: "m1", Status: domain.MatchPending, AcceptanceDeadline: base.Add(30 * time.Second)},
	}
	return NewGate(found, clock, client, queue, bus, zerolog.Nop()), clock, queue, bus
}

func TestExpiresAtDeadlineAndReleasesQueueOnce(t *testing.T) {
	client := &fakeResponder{}
	g, clock, queue, bus := newGate(t, client)

	assert.True(t, g.Tick(clock.Now()))
	assert.Equal(t, 30*time.Second, g.Remaining(clock.Now()))

	assert.True(t, g.Tick(clock.Advance(29*time.Second)))
	assert.Equal(t, AwaitingResponse, g.State())
	assert.Equal(t, time.Second, g.Remaining(clock.Now()))

	assert.False(t, g.Tick(clock.Advance(time.Second)))
	assert.Equal(t, Expired, g.State())
	assert.Nil(t, g.Found())
	assert.Equal(t, time.Duration(0), g.Remaining(clock.Now()))

	g.Tick(clock.Advance(5 * time.Second))
	g.Close()
	assert.Equal(t, 1, queue.count())
	assert.Equal(t, 0, client.calls(), "expiry makes no network call")

	require.Len(t, bus.events, 1)
	assert.Equal(t, pubsub.KindAcceptanceExpired, bus.events[0].Kind())
}

func TestRemainingDerivedFromDeadlineAfterSuspension(t *testing.T) {
	g, clock, _, _ := newGate(t, &fakeResponder{})
	g.Tick(clock.Now())
	// no ticks for 20s, as if the process was suspended
	clock.Advance(20 * time.Second)
	assert.Equal(t, 10*time.Second, g.Remaining(clock.Now()))
}

func TestAcceptIsTerminalAndIdempotent(t *testing.T) {
	client := &fakeResponder{}
	g, clock, queue, bus := newGate(t, client)

	state, err := g.Accept(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Accepted, state)

	state, err = g.Accept(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Accepted, state)

	state, err = g.Reject(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Accepted, state)

	assert.Equal(t, 1, client.calls())
	assert.False(t, g.Tick(clock.Advance(time.Minute)))
	assert.Equal(t, Accepted, g.State())
	assert.Equal(t, 0, queue.count())
	require.Len(t, bus.events, 1)
}

func TestRejectReturnsToLobby(t *testing.T) {
	client := &fakeResponder{}
	g, _, queue, _ := newGate(t, client)

	state, err := g.Reject(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Rejected, state)
	assert.Equal(t, 1, queue.count())
	assert.Nil(t, g.Found())

	state, err = g.Accept(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Rejected, state)
	assert.Equal(t, 1, client.calls())
}

func TestAcceptAfterDeadlineExpires(t *testing.T) {
	client := &fakeResponder{}
	g, clock, queue, _ := newGate(t, client)
	clock.Advance(31 * time.Second)

	state, err := g.Accept(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Expired, state)
	assert.Equal(t, 0, client.calls())
	assert.Equal(t, 1, queue.count())
}

func TestFailedAcceptKeepsAwaiting(t *testing.T) {
	client := &fakeResponder{err: failure.Network("acceptMatch", errors.New("timeout"))}
	g, _, _, _ := newGate(t, client)

	state, err := g.Accept(context.Background())
	require.ErrorIs(t, err, failure.ErrNetwork)
	assert.Equal(t, AwaitingResponse, state)

	client.mu.Lock()
	client.err = nil
	client.mu.Unlock()
	state, err = g.Accept(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Accepted, state)
}

func TestInFlightResponseHoldsExpiry(t *testing.T) {
	client := &fakeResponder{block: make(chan struct{})}
	g, clock, queue, _ := newGate(t, client)

	done := make(chan State)
	go func() {
		state, _ := g.Accept(context.Background())
		done <- state
	}()

	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.inFlight
	}, time.Second, time.Millisecond)

	assert.True(t, g.Tick(clock.Advance(time.Minute)))
	assert.Equal(t, AwaitingResponse, g.State())

	// a second tap while the first is in flight is ignored
	state, err := g.Accept(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AwaitingResponse, state)

	close(client.block)
	assert.Equal(t, Accepted, <-done)
	assert.Equal(t, 0, queue.count())
}

func TestCloseClearsLocalStateOnly(t *testing.T) {
	client := &fakeResponder{}
	g, clock, queue, _ := newGate(t, client)

	g.Close()
	assert.False(t, g.Tick(clock.Now()))
	assert.Equal(t, 1, queue.count())
	assert.Equal(t, 0, client.calls())
}
