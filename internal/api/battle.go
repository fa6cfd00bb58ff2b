package api

import (
	"battle-arena/internal/config"
	"battle-arena/internal/constants"
	"battle-arena/internal/domain"
	"battle-arena/internal/failure"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/valyala/fasthttp"
)

type BattleClient struct {
	baseURL     string
	token       string
	client      *fasthttp.Client
	retryBase   time.Duration
	maxAttempts uint64
	logger      zerolog.Logger
}

func NewBattleClient(cfg *config.Config, logger zerolog.Logger) *BattleClient {
	return newBattleClient(cfg.BattleAPIURL, cfg.BattleAccessToken, &fasthttp.Client{
		MaxConnsPerHost:     16,
		ReadTimeout:         constants.MatchmakingTimeout,
		WriteTimeout:        constants.ExternalAPITimeout,
		MaxIdleConnDuration: 1 * time.Minute,
	}, logger)
}

func newBattleClient(baseURL, token string, hc *fasthttp.Client, logger zerolog.Logger) *BattleClient {
	return &BattleClient{
		baseURL:     baseURL,
		token:       token,
		client:      hc,
		retryBase:   constants.RetryBaseBackoff,
		maxAttempts: constants.MaxNetworkRetries,
		logger:      logger.With().Str("component", "battle_client").Logger(),
	}
}

func (c *BattleClient) RequestMatch(ctx context.Context) (*domain.MatchFound, *domain.MatchmakingFailed, error) {
	const op = "requestMatch"
	// one key for every retry so a lost response never queues twice
	key := "matchmaking:" + uuid.NewString()
	var resp *MatchmakingResponse
	err := c.withRetry(ctx, op, func(ctx context.Context) error {
		var err error
		resp, err = doRequest[MatchmakingResponse](ctx, c, op, fasthttp.MethodPost, "/v1/matchmaking", nil, key)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	switch resp.Type {
	case matchmakingFound:
		if resp.Found == nil {
			return nil, nil, failure.Validation(op, errors.New("MATCH_FOUND without matchFound payload"))
		}
		found, err := resp.Found.toDomain()
		if err != nil {
			return nil, nil, failure.Validation(op, err)
		}
		return &found, nil, nil
	case matchmakingFailed:
		return nil, &domain.MatchmakingFailed{Reason: resp.Reason}, nil
	default:
		return nil, nil, failure.Validation(op, fmt.Errorf("unknown matchmaking result %q", resp.Type))
	}
}

func (c *BattleClient) GetMatchStatus(ctx context.Context, matchID string) (*domain.MatchStatusUpdate, error) {
	const op = "getMatchStatus"
	var resp *MatchStatusResponse
	err := c.withRetry(ctx, op, func(ctx context.Context) error {
		var err error
		resp, err = doRequest[MatchStatusResponse](ctx, c, op, fasthttp.MethodGet, "/v1/matches/"+url.PathEscape(matchID)+"/status", nil, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	status := domain.MatchStatus(resp.Status)
	if !status.Valid() {
		return nil, failure.Validation(op, fmt.Errorf("%w: %q", domain.ErrUnknownStatus, resp.Status))
	}
	return &domain.MatchStatusUpdate{MatchID: matchID, Status: status, Message: resp.Message}, nil
}

func (c *BattleClient) GetRoundState(ctx context.Context, matchID string) (*domain.RoundState, error) {
	const op = "getRoundState"
	var resp *RoundStateResponse
	err := c.withRetry(ctx, op, func(ctx context.Context) error {
		var err error
		resp, err = doRequest[RoundStateResponse](ctx, c, op, fasthttp.MethodGet, "/v1/matches/"+url.PathEscape(matchID)+"/rounds", nil, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	match, err := resp.Match.toDomain()
	if err != nil {
		return nil, failure.Validation(op, err)
	}
	rounds, err := roundsToDomain(resp.Rounds, &match)
	if err != nil {
		return nil, failure.Validation(op, err)
	}
	return &domain.RoundState{Match: match, Rounds: rounds}, nil
}

func (c *BattleClient) GetMatchResult(ctx context.Context, matchID string) (*domain.MatchResult, error) {
	const op = "getMatchResult"
	var resp *MatchResultResponse
	err := c.withRetry(ctx, op, func(ctx context.Context) error {
		var err error
		resp, err = doRequest[MatchResultResponse](ctx, c, op, fasthttp.MethodGet, "/v1/matches/"+url.PathEscape(matchID)+"/result", nil, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	match, err := resp.Match.toDomain()
	if err != nil {
		return nil, failure.Validation(op, err)
	}
	rounds, err := roundsToDomain(resp.Rounds, &match)
	if err != nil {
		return nil, failure.Validation(op, err)
	}
	return &domain.MatchResult{
		Match:    match,
		Rounds:   rounds,
		RankFrom: resp.RankFrom.toDomain(),
		RankTo:   resp.RankTo.toDomain(),
	}, nil
}

func (c *BattleClient) AcceptMatch(ctx context.Context, matchID string) error {
	return c.ack(ctx, "acceptMatch", "/v1/matches/"+url.PathEscape(matchID)+"/accept", nil, "accept:"+matchID)
}

func (c *BattleClient) RejectMatch(ctx context.Context, matchID string) error {
	return c.ack(ctx, "rejectMatch", "/v1/matches/"+url.PathEscape(matchID)+"/reject", nil, "reject:"+matchID)
}

func (c *BattleClient) SubmitDraftPick(ctx context.Context, matchID, participantID, unitID, idempotencyKey string) error {
	body := pickRequest{ParticipantID: participantID, UnitID: unitID}
	return c.ack(ctx, "submitDraftPick", "/v1/matches/"+url.PathEscape(matchID)+"/picks", body, idempotencyKey)
}

func (c *BattleClient) GetDraftState(ctx context.Context, matchID string) ([]domain.DraftPick, error) {
	const op = "getDraftState"
	var resp *DraftStateResponse
	err := c.withRetry(ctx, op, func(ctx context.Context) error {
		var err error
		resp, err = doRequest[DraftStateResponse](ctx, c, op, fasthttp.MethodGet, "/v1/matches/"+url.PathEscape(matchID)+"/picks", nil, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	picks := make([]domain.DraftPick, 0, len(resp.Picks))
	for _, p := range resp.Picks {
		if p.ParticipantID == "" || p.UnitID == "" {
			return nil, failure.Validation(op, errors.New("draft pick missing participant or unit"))
		}
		picks = append(picks, domain.DraftPick{ParticipantID: p.ParticipantID, UnitID: p.UnitID, PickedAt: p.PickedAt})
	}
	return picks, nil
}

func (c *BattleClient) ChooseUnit(ctx context.Context, matchID string, round domain.RoundNumber, participantID, unitID, idempotencyKey string) error {
	body := pickRequest{ParticipantID: participantID, UnitID: unitID, RoundNumber: RoundNumberName(round)}
	return c.ack(ctx, "chooseUnit", "/v1/matches/"+url.PathEscape(matchID)+"/selections", body, idempotencyKey)
}

func (c *BattleClient) GetMatchHistory(ctx context.Context, page, pageSize int) (*domain.HistoryPage, error) {
	const op = "getMatchHistory"
	path := "/v1/history?page=" + strconv.Itoa(page) + "&pageSize=" + strconv.Itoa(pageSize)
	var resp *HistoryResponse
	err := c.withRetry(ctx, op, func(ctx context.Context) error {
		var err error
		resp, err = doRequest[HistoryResponse](ctx, c, op, fasthttp.MethodGet, path, nil, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &domain.HistoryPage{
		Pagination: domain.Pagination{
			Page:     resp.Pagination.Page,
			PageSize: resp.Pagination.PageSize,
			Total:    resp.Pagination.Total,
		},
	}
	for _, h := range resp.Results {
		entry, err := h.toDomain()
		if err != nil {
			return nil, failure.Validation(op, err)
		}
		out.Results = append(out.Results, entry)
	}
	return out, nil
}

func (c *BattleClient) GetMembership(ctx context.Context) (*domain.Membership, error) {
	const op = "getMembership"
	var resp *MembershipResponse
	err := c.withRetry(ctx, op, func(ctx context.Context) error {
		var err error
		resp, err = doRequest[MembershipResponse](ctx, c, op, fasthttp.MethodGet, "/v1/seasons/membership", nil, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	m := &domain.Membership{Active: resp.Active}
	if resp.Season != nil {
		m.Season = &domain.Season{
			ID:       resp.Season.ID,
			Name:     resp.Season.Name,
			StartsAt: resp.Season.StartsAt,
			EndsAt:   resp.Season.EndsAt,
			Active:   resp.Season.Active,
		}
	}
	if resp.Standing != nil {
		standing := resp.Standing.toDomain()
		m.Standing = &standing
	}
	if m.Active && m.Season == nil {
		return nil, failure.Validation(op, errors.New("active membership without season"))
	}
	return m, nil
}

func (c *BattleClient) JoinSeason(ctx context.Context) (*domain.SeasonJoinResult, error) {
	const op = "joinSeason"
	key := "season-join:" + uuid.NewString()
	var resp *SeasonJoinResponse
	err := c.withRetry(ctx, op, func(ctx context.Context) error {
		var err error
		resp, err = doRequest[SeasonJoinResponse](ctx, c, op, fasthttp.MethodPost, "/v1/seasons/join", nil, key)
		return err
	})
	if err != nil {
		return nil, err
	}

	if resp.SeasonID == "" || resp.InitialRankTier == "" {
		return nil, failure.Validation(op, errors.New("season join result missing season or tier"))
	}
	return &domain.SeasonJoinResult{
		SeasonID:        resp.SeasonID,
		InitialRating:   resp.InitialRating,
		InitialRankTier: domain.RankTier(resp.InitialRankTier),
	}, nil
}

func (c *BattleClient) ClaimSeasonReward(ctx context.Context, seasonHistoryID string) error {
	return c.ack(ctx, "claimSeasonReward", "/v1/seasons/rewards/"+url.PathEscape(seasonHistoryID)+"/claim", nil, "reward:"+seasonHistoryID)
}

// PollMatchTracking returns the id of the match the user is currently in, or
// the empty string.
func (c *BattleClient) PollMatchTracking(ctx context.Context) (string, error) {
	const op = "pollMatchTracking"
	var resp *TrackingResponse
	err := c.withRetry(ctx, op, func(ctx context.Context) error {
		var err error
		resp, err = doRequest[TrackingResponse](ctx, c, op, fasthttp.MethodGet, "/v1/tracking", nil, "")
		return err
	})
	if err != nil {
		return "", err
	}
	if resp.CurrentMatchID == nil {
		return "", nil
	}
	return *resp.CurrentMatchID, nil
}

func (c *BattleClient) ack(ctx context.Context, op, path string, body any, idempotencyKey string) error {
	return c.withRetry(ctx, op, func(ctx context.Context) error {
		resp, err := doRequest[AckResponse](ctx, c, op, fasthttp.MethodPost, path, body, idempotencyKey)
		if err != nil {
			return err
		}
		if !resp.OK {
			return failure.Validation(op, errors.New("acknowledgement not ok"))
		}
		return nil
	})
}

// withRetry retries network failures with exponential backoff. Everything
// else is returned on the first attempt.
func (c *BattleClient) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(c.maxAttempts, retry.NewExponential(c.retryBase))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil && failure.Retryable(err) {
			c.logger.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("retrying battle service call")
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if _, ok := failure.KindOf(err); !ok {
		err = failure.Network(op, err)
	}
	c.logger.Error().Err(err).Str("op", op).Int("attempts", attempt).Msg("battle service call failed")
	return err
}

func doRequest[T any](ctx context.Context, client *BattleClient, op, method, path string, body any, idempotencyKey string) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(client.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "Bearer "+client.token)
	req.Header.Set("X-Request-ID", uuid.New().String())
	req.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	if err := ctx.Err(); err != nil {
		return nil, failure.Network(op, err)
	}
	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, failure.Network(op, err)
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return nil, failure.Network(op, err)
		}
	}

	var result envelope[T]
	decodeErr := json.Unmarshal(resp.Body(), &result)

	if status := resp.StatusCode(); status < 200 || status > 299 {
		return nil, classifyStatus(op, status, result.Error)
	}
	if decodeErr != nil {
		return nil, failure.Validation(op, fmt.Errorf("failed to decode response: %w", decodeErr))
	}
	if result.Error != nil {
		return nil, failure.Conflict(op, fmt.Errorf("%s: %s", result.Error.Code, result.Error.Message))
	}
	return &result.Data, nil
}

func classifyStatus(op string, status int, apiErr *apiError) error {
	err := fmt.Errorf("battle service returned %d", status)
	if apiErr != nil {
		err = fmt.Errorf("battle service returned %d: %s: %s", status, apiErr.Code, apiErr.Message)
	}

	switch {
	case status == fasthttp.StatusTooManyRequests || status >= 500:
		return failure.Network(op, err)
	case status == fasthttp.StatusConflict,
		status == fasthttp.StatusNotFound,
		status == fasthttp.StatusPreconditionFailed,
		status == fasthttp.StatusForbidden,
		status == fasthttp.StatusGone:
		return failure.Conflict(op, err)
	default:
		return failure.Validation(op, err)
	}
}
