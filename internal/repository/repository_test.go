package repository

import (
	"battle-arena/internal/database"
	"battle-arena/internal/domain"
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "history.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func record(id string, playedAt time.Time, winner *string) domain.MatchRecord {
	return domain.MatchRecord{
		MatchID:             id,
		SeasonID:            "s1",
		Status:              domain.MatchCompleted,
		ParticipantID:       "p-" + id,
		OpponentUserID:      "rival",
		SelfTotal:           26,
		OpponentTotal:       29,
		WinnerParticipantID: winner,
		PlayedAt:            playedAt,
	}
}

func TestMatchRecordBatchAndList(t *testing.T) {
	repo := NewMatchRecordRepository(openDB(t), zerolog.Nop())
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	winner := "opp"

	entries := []domain.HistoryEntry{
		{Record: record("m1", start, &winner), RankChange: &domain.RankChangeInfo{
			From:           domain.RankStanding{Tier: domain.TierN4, Rating: 1200},
			To:             domain.RankStanding{Tier: domain.TierN5, Rating: 1180},
			Classification: domain.RankDown,
		}},
		{Record: record("m2", start.Add(time.Hour), nil)},
		{Record: record("m3", start.Add(2*time.Hour), nil)},
	}
	require.NoError(t, repo.UpsertBatch(ctx, entries))
	// replaying the same page is harmless
	require.NoError(t, repo.UpsertBatch(ctx, entries))

	page, total, err := repo.List(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "m3", page[0].Record.MatchID)
	assert.Equal(t, "m2", page[1].Record.MatchID)

	page, _, err = repo.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	got := page[0]
	assert.Equal(t, "m1", got.Record.MatchID)
	require.NotNil(t, got.Record.WinnerParticipantID)
	assert.Equal(t, "opp", *got.Record.WinnerParticipantID)
	require.NotNil(t, got.RankChange)
	assert.Equal(t, domain.RankDown, got.RankChange.Classification)
	assert.Equal(t, 1180, got.RankChange.To.Rating)

	latest, err := repo.LatestPlayedAt(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(start.Add(2*time.Hour)))
}

func TestMatchRecordGet(t *testing.T) {
	repo := NewMatchRecordRepository(openDB(t), zerolog.Nop())
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrRecordNotFound)

	latest, err := repo.LatestPlayedAt(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, repo.Upsert(ctx, record("m1", time.Now(), nil)))
	entry, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, entry.RankChange)
	assert.Nil(t, entry.Record.WinnerParticipantID)
	assert.Equal(t, 26, entry.Record.SelfTotal)
}

func TestRankChangeRecord(t *testing.T) {
	db := openDB(t)
	matches := NewMatchRecordRepository(db, zerolog.Nop())
	changes := NewRankChangeRepository(db, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, matches.Upsert(ctx, record("m1", time.Now(), nil)))

	change := &domain.RankChange{
		MatchID:        "m1",
		FromTier:       domain.TierN3,
		FromRating:     1500,
		ToTier:         domain.TierN2,
		ToRating:       1530,
		Classification: domain.RankUp,
	}
	require.NoError(t, changes.Record(ctx, change))
	assert.NotEmpty(t, change.ID)

	got, err := changes.GetByMatchID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, change.ID, got.ID)
	assert.Equal(t, domain.TierN2, got.ToTier)

	recent, err := changes.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	_, err = changes.GetByMatchID(ctx, "m2")
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestStandingShouldRefresh(t *testing.T) {
	repo := NewStandingRepository(openDB(t), zerolog.Nop())
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	refresh, err := repo.ShouldRefresh(ctx, "u1", time.Minute)
	require.NoError(t, err)
	assert.True(t, refresh)

	require.NoError(t, repo.Upsert(ctx, &domain.Standing{
		UserID:     "u1",
		SeasonID:   "s1",
		SeasonName: "Spring",
		Tier:       domain.TierN4,
		Rating:     1210,
	}))

	refresh, err = repo.ShouldRefresh(ctx, "u1", time.Minute)
	require.NoError(t, err)
	assert.False(t, refresh)

	now = now.Add(2 * time.Minute)
	refresh, err = repo.ShouldRefresh(ctx, "u1", time.Minute)
	require.NoError(t, err)
	assert.True(t, refresh)

	s, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierN4, s.Tier)
	assert.Equal(t, "Spring", s.SeasonName)

	require.NoError(t, repo.Invalidate(ctx, "u1"))
	_, err = repo.Get(ctx, "u1")
	require.ErrorIs(t, err, ErrRecordNotFound)
}
