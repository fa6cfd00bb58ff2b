package service

import (
	"battle-arena/internal/constants"
	"battle-arena/internal/domain"
	"battle-arena/internal/failure"
	"battle-arena/internal/repository"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type HistoryClient interface {
	GetMatchHistory(ctx context.Context, page, pageSize int) (*domain.HistoryPage, error)
}

// HistoryService reads match history through the Battle service and keeps a
// local copy for when the service is unreachable.
type HistoryService struct {
	client  HistoryClient
	repo    *repository.MatchRecordRepository
	changes *repository.RankChangeRepository
	logger  zerolog.Logger
}

func NewHistoryService(client HistoryClient, repo *repository.MatchRecordRepository, changes *repository.RankChangeRepository, logger zerolog.Logger) *HistoryService {
	return &HistoryService{
		client:  client,
		repo:    repo,
		changes: changes,
		logger:  logger.With().Str("component", "history").Logger(),
	}
}

func (s *HistoryService) GetMatchHistory(ctx context.Context, page, pageSize int) (*domain.HistoryPage, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = constants.HistoryPageSize
	}
	pageSize = min(pageSize, constants.MaxHistoryPageSize)

	s.logger.Debug().Int("page", page).Int("page_size", pageSize).Msg("getting match history")

	apiCtx, apiCancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer apiCancel()

	remote, err := s.client.GetMatchHistory(apiCtx, page, pageSize)
	if err == nil {
		if err := s.repo.UpsertBatch(ctx, remote.Results); err != nil {
			s.logger.Warn().Err(err).Int("page", page).Msg("failed to store history page")
		}
		return remote, nil
	}
	if !errors.Is(err, failure.ErrNetwork) {
		s.logger.Error().Err(err).Int("page", page).Msg("failed to fetch match history")
		return nil, err
	}

	s.logger.Warn().Err(err).Int("page", page).Msg("battle service unreachable, serving stored history")
	entries, total, dbErr := s.repo.List(ctx, page, pageSize)
	if dbErr != nil {
		return nil, fmt.Errorf("failed to read stored history: %w", dbErr)
	}
	return &domain.HistoryPage{
		Results:    entries,
		Pagination: domain.Pagination{Page: page, PageSize: pageSize, Total: total},
	}, nil
}

// GetMatchRecord returns a stored terminal match. Records are read only.
func (s *HistoryService) GetMatchRecord(ctx context.Context, matchID string) (*domain.HistoryEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	entry, err := s.repo.Get(ctx, matchID)
	if errors.Is(err, repository.ErrRecordNotFound) {
		return nil, failure.Conflict("getMatchRecord", err)
	}
	return entry, err
}

// RecordResult stores a finished match as soon as it completes so history
// works before the next server fetch.
func (s *HistoryService) RecordResult(ctx context.Context, view ResultView) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	var opponentTotal int
	for id, total := range view.Totals {
		if id != view.SelfParticipantID {
			opponentTotal = total
		}
	}
	change := view.RankChange
	entry := domain.HistoryEntry{
		Record: domain.MatchRecord{
			MatchID:             view.Match.ID,
			SeasonID:            view.SeasonID,
			Status:              view.Match.Status,
			ParticipantID:       view.SelfParticipantID,
			OpponentUserID:      view.OpponentUserID,
			SelfTotal:           view.Totals[view.SelfParticipantID],
			OpponentTotal:       opponentTotal,
			WinnerParticipantID: view.WinnerParticipantID,
			PlayedAt:            playedAt(view),
		},
	}
	if change.Classification != "" {
		entry.RankChange = &change
	}

	if err := s.repo.UpsertBatch(ctx, []domain.HistoryEntry{entry}); err != nil {
		s.logger.Error().Err(err).Str("match_id", view.Match.ID).Msg("failed to record match result")
		return err
	}
	return nil
}

// RecentRankChanges lists stored rank transitions, newest first.
func (s *HistoryService) RecentRankChanges(ctx context.Context, limit int) ([]domain.RankChange, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if limit <= 0 {
		limit = constants.HistoryPageSize
	}
	return s.changes.Recent(ctx, min(limit, constants.MaxHistoryPageSize))
}

func playedAt(view ResultView) time.Time {
	if !view.Match.CreatedAt.IsZero() {
		return view.Match.CreatedAt
	}
	return view.CreatedAt
}
