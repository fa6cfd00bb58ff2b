package repository

import (
	"battle-arena/internal/constants"
	"battle-arena/internal/domain"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

var ErrRecordNotFound = errors.New("match record not found")

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// MatchRecordRepository keeps terminal matches for offline history reads.
type MatchRecordRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMatchRecordRepository(sqlDB *sql.DB, logger zerolog.Logger) *MatchRecordRepository {
	return &MatchRecordRepository{
		db:     sqlDB,
		logger: logger,
	}
}

const upsertMatchRecord = `
INSERT INTO match_records (
    match_id, season_id, status, participant_id, opponent_user_id,
    self_total, opponent_total, winner_participant_id, played_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (match_id) DO UPDATE SET
    season_id = excluded.season_id,
    status = excluded.status,
    participant_id = excluded.participant_id,
    opponent_user_id = excluded.opponent_user_id,
    self_total = excluded.self_total,
    opponent_total = excluded.opponent_total,
    winner_participant_id = excluded.winner_participant_id,
    played_at = excluded.played_at,
    updated_at = excluded.updated_at`

func upsertRecord(ctx context.Context, db execer, rec domain.MatchRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	_, err := db.ExecContext(ctx, upsertMatchRecord,
		rec.MatchID,
		rec.SeasonID,
		string(rec.Status),
		rec.ParticipantID,
		rec.OpponentUserID,
		rec.SelfTotal,
		rec.OpponentTotal,
		nullString(rec.WinnerParticipantID),
		rec.PlayedAt.UTC(),
		rec.CreatedAt.UTC(),
		now,
	)
	return err
}

func (r *MatchRecordRepository) Upsert(ctx context.Context, rec domain.MatchRecord) error {
	if err := upsertRecord(ctx, r.db, rec); err != nil {
		return fmt.Errorf("failed to upsert match record %s: %w", rec.MatchID, err)
	}
	return nil
}

// UpsertBatch stores a page of history entries and their rank changes in one
// transaction.
func (r *MatchRecordRepository) UpsertBatch(ctx context.Context, entries []domain.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := 0; i < len(entries); i += constants.DBBatchSize {
		end := min(i+constants.DBBatchSize, len(entries))
		for _, entry := range entries[i:end] {
			if err := upsertRecord(ctx, tx, entry.Record); err != nil {
				return fmt.Errorf("failed to upsert match record %s: %w", entry.Record.MatchID, err)
			}
			if entry.RankChange == nil {
				continue
			}
			change := domain.RankChange{
				MatchID:        entry.Record.MatchID,
				FromTier:       entry.RankChange.From.Tier,
				FromRating:     entry.RankChange.From.Rating,
				ToTier:         entry.RankChange.To.Tier,
				ToRating:       entry.RankChange.To.Rating,
				Classification: entry.RankChange.Classification,
			}
			if err := upsertRankChange(ctx, tx, &change); err != nil {
				return fmt.Errorf("failed to upsert rank change for %s: %w", entry.Record.MatchID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history batch: %w", err)
	}
	r.logger.Debug().Int("entries", len(entries)).Msg("history batch stored")
	return nil
}

const selectHistory = `
SELECT m.match_id, m.season_id, m.status, m.participant_id, m.opponent_user_id,
       m.self_total, m.opponent_total, m.winner_participant_id, m.played_at, m.created_at, m.updated_at,
       c.from_tier, c.from_rating, c.to_tier, c.to_rating, c.classification
FROM match_records m
LEFT JOIN rank_changes c ON c.match_id = m.match_id`

// List returns one page of stored history, newest first, and the total row
// count. page is 1-based.
func (r *MatchRecordRepository) List(ctx context.Context, page, pageSize int) ([]domain.HistoryEntry, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM match_records`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count match records: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, selectHistory+` ORDER BY m.played_at DESC, m.match_id LIMIT ? OFFSET ?`,
		pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list match records: %w", err)
	}
	defer rows.Close()

	entries := []domain.HistoryEntry{}
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read match records: %w", err)
	}
	return entries, total, nil
}

func (r *MatchRecordRepository) Get(ctx context.Context, matchID string) (*domain.HistoryEntry, error) {
	row := r.db.QueryRowContext(ctx, selectHistory+` WHERE m.match_id = ?`, matchID)
	entry, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// LatestPlayedAt returns nil when nothing is stored yet.
func (r *MatchRecordRepository) LatestPlayedAt(ctx context.Context) (*time.Time, error) {
	var latest time.Time
	err := r.db.QueryRowContext(ctx, `SELECT played_at FROM match_records ORDER BY played_at DESC LIMIT 1`).Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest match: %w", err)
	}
	return &latest, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHistory(s scanner) (domain.HistoryEntry, error) {
	var (
		rec                     domain.MatchRecord
		status                  string
		winner                  sql.NullString
		fromTier, toTier, class sql.NullString
		fromRating, toRating    sql.NullInt64
	)
	err := s.Scan(
		&rec.MatchID, &rec.SeasonID, &status, &rec.ParticipantID, &rec.OpponentUserID,
		&rec.SelfTotal, &rec.OpponentTotal, &winner, &rec.PlayedAt, &rec.CreatedAt, &rec.UpdatedAt,
		&fromTier, &fromRating, &toTier, &toRating, &class,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.HistoryEntry{}, err
		}
		return domain.HistoryEntry{}, fmt.Errorf("failed to scan match record: %w", err)
	}
	rec.Status = domain.MatchStatus(status)
	if winner.Valid {
		rec.WinnerParticipantID = &winner.String
	}

	entry := domain.HistoryEntry{Record: rec}
	if class.Valid {
		entry.RankChange = &domain.RankChangeInfo{
			From:           domain.RankStanding{Tier: domain.RankTier(fromTier.String), Rating: int(fromRating.Int64)},
			To:             domain.RankStanding{Tier: domain.RankTier(toTier.String), Rating: int(toRating.Int64)},
			Classification: domain.RankClassification(class.String),
		}
	}
	return entry, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
