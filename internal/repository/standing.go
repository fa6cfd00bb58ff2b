package repository

import (
	"battle-arena/internal/domain"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type StandingRepository struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

func NewStandingRepository(sqlDB *sql.DB, logger zerolog.Logger) *StandingRepository {
	return &StandingRepository{
		db:     sqlDB,
		logger: logger,
		now:    time.Now,
	}
}

func (r *StandingRepository) Get(ctx context.Context, userID string) (*domain.Standing, error) {
	var (
		s    domain.Standing
		tier string
	)
	err := r.db.QueryRowContext(ctx, `
SELECT user_id, season_id, season_name, tier, rating, last_fetch_at, created_at, updated_at
FROM standings WHERE user_id = ?`, userID).Scan(
		&s.UserID, &s.SeasonID, &s.SeasonName, &tier, &s.Rating, &s.LastFetchAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get standing: %w", err)
	}
	s.Tier = domain.RankTier(tier)
	return &s, nil
}

func (r *StandingRepository) Upsert(ctx context.Context, s *domain.Standing) error {
	now := r.now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.LastFetchAt.IsZero() {
		s.LastFetchAt = now
	}
	s.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
INSERT INTO standings (user_id, season_id, season_name, tier, rating, last_fetch_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
    season_id = excluded.season_id,
    season_name = excluded.season_name,
    tier = excluded.tier,
    rating = excluded.rating,
    last_fetch_at = excluded.last_fetch_at,
    updated_at = excluded.updated_at`,
		s.UserID, s.SeasonID, s.SeasonName, string(s.Tier), s.Rating,
		s.LastFetchAt.UTC(), s.CreatedAt.UTC(), s.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", s.UserID).Msg("failed to upsert standing")
		return fmt.Errorf("failed to upsert standing: %w", err)
	}
	return nil
}

// ShouldRefresh reports whether the stored standing is missing or older
// than ttl.
func (r *StandingRepository) ShouldRefresh(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	var lastFetchAt time.Time
	err := r.db.QueryRowContext(ctx, `SELECT last_fetch_at FROM standings WHERE user_id = ?`, userID).Scan(&lastFetchAt)
	if errors.Is(err, sql.ErrNoRows) {
		r.logger.Debug().Str("user_id", userID).Msg("standing not cached, should refresh")
		return true, nil
	}
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", userID).Msg("failed to read standing")
		return false, err
	}

	timeSince := r.now().Sub(lastFetchAt)
	shouldRefresh := timeSince > ttl
	r.logger.Debug().
		Str("user_id", userID).
		Time("last_fetch_at", lastFetchAt).
		Dur("time_since", timeSince).
		Dur("ttl", ttl).
		Bool("should_refresh", shouldRefresh).
		Msg("checking if standing should refresh")

	return shouldRefresh, nil
}

// Invalidate forces the next read to go to the server.
func (r *StandingRepository) Invalidate(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM standings WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to invalidate standing: %w", err)
	}
	return nil
}
