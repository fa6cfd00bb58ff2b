package matchmaking

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

type result struct {
	found  *domain.MatchFound
	failed *domain.MatchmakingFailed
	err    error
}

type fakeMatchmaker struct {
	results chan result
}

func (f *fakeMatchmaker) RequestMatch(ctx context.Context) (*domain.MatchFound, *domain.MatchmakingFailed, error) {
	select {
	case r := <-f.results:
		return r.found, r.failed, r.err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

type permit struct{ err error }

func (p permit) Permit() error { return p.err }

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
	var out []pubsub.Kind
	for _, ev := range r.events {
		out = append(out, ev.Kind())
	}
	return out
}

func matchFound(id string) domain.MatchFound {
	a := domain.MatchParticipant{ID: "pa", MatchID: id, UserID: "ua"}
	b := domain.MatchParticipant{ID: "pb", MatchID: id, UserID: "ub", JoinOrder: 1}
	return domain.MatchFound{
		Match:       domain.Match{ID: id, Status: domain.MatchPending, Participants: []domain.MatchParticipant{a, b}},
		MatchID:     id,
		Participant: a,
		Opponent:    b,
	}
}

func waitOutcome(t *testing.T, c *Coordinator) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, err := c.Wait(ctx)
	require.NoError(t, err)
	return out
}

func TestRequestMatchRequiresSeason(t *testing.T) {
	c := NewCoordinator(&fakeMatchmaker{}, permit{err: failure.Conflict("requestMatch", errors.New("not joined"))}, &recorder{}, zerolog.Nop())
	defer c.Close()

	err := c.RequestMatch(context.Background())
	require.ErrorIs(t, err, failure.ErrConflict)
	assert.Equal(t, PhaseIdle, c.Phase())
}

func TestRequestMatchFound(t *testing.T) {
	mm := &fakeMatchmaker{results: make(chan result, 1)}
	bus := &recorder{}
	c := NewCoordinator(mm, permit{}, bus, zerolog.Nop())
	defer c.Close()

	require.NoError(t, c.RequestMatch(context.Background()))
	assert.Equal(t, PhasePending, c.Phase())
	assert.True(t, c.InQueue())

	require.ErrorIs(t, c.RequestMatch(context.Background()), ErrAlreadyPending)

	f := matchFound("m1")
	mm.results <- result{found: &f}

	out := waitOutcome(t, c)
	found, ok := out.(Found)
	require.True(t, ok)
	assert.Equal(t, "m1", found.MatchID)
	assert.False(t, found.AfterCancel)
	assert.Equal(t, PhaseFound, c.Phase())
	assert.False(t, c.InQueue())
	assert.Equal(t, []pubsub.Kind{pubsub.KindMatchmakingStarted, pubsub.KindMatchFound}, bus.kinds())
}

func TestMatchFoundAfterCancelIsSurfaced(t *testing.T) {
	mm := &fakeMatchmaker{results: make(chan result, 1)}
	bus := &recorder{}
	c := NewCoordinator(mm, permit{}, bus, zerolog.Nop())
	defer c.Close()

	require.NoError(t, c.RequestMatch(context.Background()))
	require.NoError(t, c.Cancel())
	assert.Equal(t, PhaseCancelling, c.Phase())
	assert.False(t, c.InQueue())

	f := matchFound("m2")
	mm.results <- result{found: &f}

	out := waitOutcome(t, c)
	found, ok := out.(Found)
	require.True(t, ok)
	assert.True(t, found.AfterCancel)
	assert.Equal(t, "m2", c.Found().MatchID)
	assert.Contains(t, bus.kinds(), pubsub.KindMatchFound)
}

func TestCancelSettlesToIdle(t *testing.T) {
	mm := &fakeMatchmaker{results: make(chan result, 1)}
	c := NewCoordinator(mm, permit{}, &recorder{}, zerolog.Nop())
	defer c.Close()

	require.NoError(t, c.RequestMatch(context.Background()))
	require.NoError(t, c.Cancel())
	mm.results <- result{failed: &domain.MatchmakingFailed{Reason: "left queue"}}

	_, ok := waitOutcome(t, c).(Cancelled)
	require.True(t, ok)
	assert.Equal(t, PhaseIdle, c.Phase())

	require.ErrorIs(t, c.Cancel(), ErrNothingPending)
}

func TestMatchmakingFailed(t *testing.T) {
	mm := &fakeMatchmaker{results: make(chan result, 1)}
	bus := &recorder{}
	c := NewCoordinator(mm, permit{}, bus, zerolog.Nop())
	defer c.Close()

	require.NoError(t, c.RequestMatch(context.Background()))
	mm.results <- result{err: failure.Network("requestMatch", errors.New("reset"))}

	failed, ok := waitOutcome(t, c).(Failed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, failure.ErrNetwork)
	assert.Equal(t, PhaseFailed, c.Phase())
	assert.Contains(t, bus.kinds(), pubsub.KindMatchmakingFailed)

	// a failed request can be retried
	require.NoError(t, c.RequestMatch(context.Background()))
}

func TestStreamMatchFoundDeduplicated(t *testing.T) {
	mm := &fakeMatchmaker{results: make(chan result, 1)}
	bus := &recorder{}
	c := NewCoordinator(mm, permit{}, bus, zerolog.Nop())
	defer c.Close()

	require.NoError(t, c.RequestMatch(context.Background()))
	f := matchFound("m3")
	c.HandleMatchFound(f)
	mm.results <- result{found: &f}
	waitOutcome(t, c)

	require.Eventually(t, func() bool { return len(mm.results) == 0 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	found := 0
	for _, k := range bus.kinds() {
		if k == pubsub.KindMatchFound {
			found++
		}
	}
	assert.Equal(t, 1, found)

	c.ReleaseQueue("m3")
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Nil(t, c.Found())
}
