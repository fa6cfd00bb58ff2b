package repository

import (
	"battle-arena/internal/domain"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type RankChangeRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewRankChangeRepository(sqlDB *sql.DB, logger zerolog.Logger) *RankChangeRepository {
	return &RankChangeRepository{
		db:     sqlDB,
		logger: logger,
	}
}

const upsertRankChangeQuery = `
INSERT INTO rank_changes (id, match_id, from_tier, from_rating, to_tier, to_rating, classification, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (match_id) DO UPDATE SET
    from_tier = excluded.from_tier,
    from_rating = excluded.from_rating,
    to_tier = excluded.to_tier,
    to_rating = excluded.to_rating,
    classification = excluded.classification`

// upsertRankChange assigns a nanoid when change.ID is empty. One change is
// kept per match.
func upsertRankChange(ctx context.Context, db execer, change *domain.RankChange) error {
	if change.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		change.ID = id
	}
	if change.CreatedAt.IsZero() {
		change.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, upsertRankChangeQuery,
		change.ID,
		change.MatchID,
		string(change.FromTier),
		change.FromRating,
		string(change.ToTier),
		change.ToRating,
		string(change.Classification),
		change.CreatedAt.UTC(),
	)
	return err
}

// Record stores the rank transition of a match. The match record must exist.
func (r *RankChangeRepository) Record(ctx context.Context, change *domain.RankChange) error {
	if err := upsertRankChange(ctx, r.db, change); err != nil {
		r.logger.Error().Err(err).Str("match_id", change.MatchID).Msg("failed to record rank change")
		return fmt.Errorf("failed to record rank change: %w", err)
	}
	return nil
}

func (r *RankChangeRepository) GetByMatchID(ctx context.Context, matchID string) (*domain.RankChange, error) {
	var (
		c                       domain.RankChange
		fromTier, toTier, class string
	)
	err := r.db.QueryRowContext(ctx, `
SELECT id, match_id, from_tier, from_rating, to_tier, to_rating, classification, created_at
FROM rank_changes WHERE match_id = ?`, matchID).Scan(
		&c.ID, &c.MatchID, &fromTier, &c.FromRating, &toTier, &c.ToRating, &class, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rank change: %w", err)
	}
	c.FromTier = domain.RankTier(fromTier)
	c.ToTier = domain.RankTier(toTier)
	c.Classification = domain.RankClassification(class)
	return &c, nil
}

// Recent returns the newest rank changes, newest first.
func (r *RankChangeRepository) Recent(ctx context.Context, limit int) ([]domain.RankChange, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, match_id, from_tier, from_rating, to_tier, to_rating, classification, created_at
FROM rank_changes ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rank changes: %w", err)
	}
	defer rows.Close()

	result := []domain.RankChange{}
	for rows.Next() {
		var (
			c                       domain.RankChange
			fromTier, toTier, class string
		)
		if err := rows.Scan(&c.ID, &c.MatchID, &fromTier, &c.FromRating, &toTier, &c.ToRating, &class, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rank change: %w", err)
		}
		c.FromTier = domain.RankTier(fromTier)
		c.ToTier = domain.RankTier(toTier)
		c.Classification = domain.RankClassification(class)
		result = append(result, c)
	}
	return result, rows.Err()
}
