package service

import (
	"battle-arena/internal/domain"
	"battle-arena/internal/identity"
	"battle-arena/internal/repository"
	"battle-arena/internal/season"
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSeasons struct {
	fakeBattle
	checks   atomic.Int32
	claims   []string
	claimErr error
}

func (c *countingSeasons) GetMembership(ctx context.Context) (*domain.Membership, error) {
	c.checks.Add(1)
	return c.fakeBattle.GetMembership(ctx)
}

func (c *countingSeasons) ClaimSeasonReward(_ context.Context, id string) error {
	c.claims = append(c.claims, id)
	return c.claimErr
}

func newSeasonService(t *testing.T) (*SeasonService, *countingSeasons, *season.Gate) {
	t.Helper()
	client := &countingSeasons{}
	gate := season.NewGate(client, &recorder{}, zerolog.Nop())
	standings := repository.NewStandingRepository(openDB(t), zerolog.Nop())
	svc := NewSeasonService(gate, client, standings, identity.Identity{UserID: "ua"}, zerolog.Nop())
	return svc, client, gate
}

func TestMembershipServedFromCache(t *testing.T) {
	svc, client, _ := newSeasonService(t)
	ctx := context.Background()

	view, err := svc.GetMembership(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, season.MembershipActive, view.Membership)
	assert.False(t, view.Cached)
	require.NotNil(t, view.Standing)
	assert.Equal(t, "Spring", view.Standing.SeasonName)

	view, err = svc.GetMembership(ctx, false)
	require.NoError(t, err)
	assert.True(t, view.Cached)
	assert.Equal(t, domain.TierN4, view.Standing.Tier)
	assert.Equal(t, int32(1), client.checks.Load())

	_, err = svc.GetMembership(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), client.checks.Load())
}

func TestClaimRewardDropsCachedStanding(t *testing.T) {
	svc, client, _ := newSeasonService(t)
	ctx := context.Background()

	_, err := svc.GetMembership(ctx, false)
	require.NoError(t, err)
	require.NoError(t, svc.ClaimSeasonReward(ctx, "sh-1"))
	assert.Equal(t, []string{"sh-1"}, client.claims)

	view, err := svc.GetMembership(ctx, false)
	require.NoError(t, err)
	assert.False(t, view.Cached)

	client.claimErr = errors.New("reward already claimed")
	require.Error(t, svc.ClaimSeasonReward(ctx, "sh-1"))
}

func TestRecordStandingUpdatesGateAndCache(t *testing.T) {
	svc, _, gate := newSeasonService(t)
	ctx := context.Background()

	_, err := svc.GetMembership(ctx, false)
	require.NoError(t, err)
	svc.RecordStanding(ctx, domain.RankStanding{Tier: domain.TierN3, Rating: 1231})
	assert.Equal(t, domain.TierN3, gate.Standing().Tier)

	view, err := svc.GetMembership(ctx, false)
	require.NoError(t, err)
	assert.True(t, view.Cached)
	assert.Equal(t, 1231, view.Standing.Rating)
}
