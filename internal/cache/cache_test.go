package cache

import (
	"battle-arena/internal/countdown"
	"battle-arena/internal/domain"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestMemoryStoreExpiry(t *testing.T) {
	clock := countdown.NewManualClock(base)
	s := NewMemoryStore(clock)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 10*time.Second))
	b, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), b)

	clock.Advance(10 * time.Second)
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

type countingFetcher struct {
	calls int
	err   error
}

func (f *countingFetcher) GetRoundState(_ context.Context, matchID string) (*domain.RoundState, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RoundState{
		Match:  domain.Match{ID: matchID, Status: domain.MatchInProgress},
		Rounds: []domain.Round{{ID: "r1", MatchID: matchID, Number: domain.RoundOne, Status: domain.RoundSelecting}},
	}, nil
}

func TestRoundStateCacheReadThrough(t *testing.T) {
	clock := countdown.NewManualClock(base)
	fetcher := &countingFetcher{}
	c := NewRoundStateCache(NewMemoryStore(clock), fetcher, 30*time.Second, zerolog.Nop())
	ctx := context.Background()

	state, err := c.GetRoundState(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", state.Match.ID)

	state, err = c.GetRoundState(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, state.Rounds, 1)
	assert.Equal(t, domain.RoundSelecting, state.Rounds[0].Status)
	assert.Equal(t, 1, fetcher.calls)

	c.Invalidate(ctx, "m1")
	_, err = c.GetRoundState(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)

	clock.Advance(time.Minute)
	_, err = c.GetRoundState(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 3, fetcher.calls)
}

func TestRoundStateCacheDoesNotStoreErrors(t *testing.T) {
	fetcher := &countingFetcher{err: errors.New("boom")}
	c := NewRoundStateCache(NewMemoryStore(countdown.NewManualClock(base)), fetcher, time.Minute, zerolog.Nop())

	_, err := c.GetRoundState(context.Background(), "m1")
	require.Error(t, err)

	fetcher.err = nil
	_, err = c.GetRoundState(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
}
