package service

import (
	"battle-arena/internal/constants"
	"battle-arena/internal/domain"
	"battle-arena/internal/identity"
	"battle-arena/internal/repository"
	"battle-arena/internal/season"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type RewardClient interface {
	ClaimSeasonReward(ctx context.Context, seasonHistoryID string) error
}

type MembershipView struct {
	Membership season.Membership
	Season     *domain.Season
	Standing   *domain.Standing
	Cached     bool
}

// SeasonService fronts the season gate with a locally cached standing.
type SeasonService struct {
	gate      *season.Gate
	client    RewardClient
	standings *repository.StandingRepository
	self      identity.Identity
	logger    zerolog.Logger
}

func NewSeasonService(gate *season.Gate, client RewardClient, standings *repository.StandingRepository, self identity.Identity, logger zerolog.Logger) *SeasonService {
	return &SeasonService{
		gate:      gate,
		client:    client,
		standings: standings,
		self:      self,
		logger:    logger.With().Str("component", "season").Logger(),
	}
}

// GetMembership serves the cached standing while it is fresh and the gate
// already knows the membership; otherwise it asks the server.
func (s *SeasonService) GetMembership(ctx context.Context, refresh bool) (*MembershipView, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	userID := s.self.UserID
	if !refresh && s.gate.Membership() == season.MembershipActive {
		stale, err := s.standings.ShouldRefresh(ctx, userID, constants.StandingRefreshTTL)
		if err != nil {
			return nil, err
		}
		if !stale {
			standing, err := s.standings.Get(ctx, userID)
			if err == nil {
				s.logger.Debug().Str("user_id", userID).Msg("returning cached standing")
				return &MembershipView{Membership: season.MembershipActive, Season: s.gate.Season(), Standing: standing, Cached: true}, nil
			}
		}
	}

	apiCtx, apiCancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer apiCancel()

	membership, err := s.gate.CheckMembership(apiCtx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}

	view := &MembershipView{Membership: membership, Season: s.gate.Season()}
	if standing := s.gate.Standing(); standing != nil && membership == season.MembershipActive {
		view.Standing = s.storeStanding(ctx, *standing)
	}
	return view, nil
}

func (s *SeasonService) JoinSeason(ctx context.Context) (*domain.SeasonJoinResult, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	res, err := s.gate.Join(ctx)
	if err != nil {
		return nil, err
	}
	s.storeStanding(ctx, domain.RankStanding{Tier: res.InitialRankTier, Rating: res.InitialRating})
	return res, nil
}

func (s *SeasonService) ClaimSeasonReward(ctx context.Context, seasonHistoryID string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	s.logger.Info().Str("season_history_id", seasonHistoryID).Msg("claiming season reward")
	if err := s.client.ClaimSeasonReward(ctx, seasonHistoryID); err != nil {
		s.logger.Error().Err(err).Str("season_history_id", seasonHistoryID).Msg("failed to claim season reward")
		return err
	}

	// the reward may move the standing
	if err := s.standings.Invalidate(ctx, s.self.UserID); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate standing")
	}
	return nil
}

// RecordStanding keeps the cached standing in line with a match result.
func (s *SeasonService) RecordStanding(ctx context.Context, standing domain.RankStanding) {
	s.gate.UpdateStanding(standing)
	s.storeStanding(ctx, standing)
}

func (s *SeasonService) storeStanding(ctx context.Context, standing domain.RankStanding) *domain.Standing {
	st := &domain.Standing{
		UserID:      s.self.UserID,
		Tier:        standing.Tier,
		Rating:      standing.Rating,
		LastFetchAt: time.Now(),
	}
	if sn := s.gate.Season(); sn != nil {
		st.SeasonID = sn.ID
		st.SeasonName = sn.Name
	}
	if err := s.standings.Upsert(ctx, st); err != nil {
		s.logger.Warn().Err(err).Str("user_id", s.self.UserID).Msg("failed to cache standing")
	}
	return st
}
