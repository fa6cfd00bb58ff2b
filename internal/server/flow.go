package server

import (
	"battle-arena/internal/config"
	"battle-arena/internal/failure"
	"battle-arena/internal/pubsub"
	"battle-arena/internal/service"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const BattleFlowPath = "/battle.v1.BattleFlow/"

// FlowServer exposes the match flow to a local presentation process.
type FlowServer struct {
	flow    *service.Flow
	seasons *service.SeasonService
	history *service.HistoryService
	bus     *pubsub.Bus
	origins []string
	logger  zerolog.Logger
}

func NewFlowServer(flow *service.Flow, seasons *service.SeasonService, history *service.HistoryService, bus *pubsub.Bus, cfg *config.Config, logger zerolog.Logger) *FlowServer {
	return &FlowServer{
		flow:    flow,
		seasons: seasons,
		history: history,
		bus:     bus,
		origins: cfg.AllowedOrigins,
		logger:  logger.With().Str("component", "flow_server").Logger(),
	}
}

// Routes mounts every procedure under BattleFlowPath plus /events and
// /healthz.
func (s *FlowServer) Routes() chi.Router {
	r := chi.NewRouter()
	opts := connect.WithHandlerOptions(connect.WithCodec(jsonCodec{}))

	unary(r, s.logger, "JoinSeason", s.JoinSeason, opts)
	unary(r, s.logger, "GetMembership", s.GetMembership, opts)
	unary(r, s.logger, "ClaimSeasonReward", s.ClaimSeasonReward, opts)
	unary(r, s.logger, "RequestMatch", s.RequestMatch, opts)
	unary(r, s.logger, "CancelMatchmaking", s.CancelMatchmaking, opts)
	unary(r, s.logger, "AcceptMatch", s.AcceptMatch, opts)
	unary(r, s.logger, "RejectMatch", s.RejectMatch, opts)
	unary(r, s.logger, "SubmitPick", s.SubmitPick, opts)
	unary(r, s.logger, "SelectUnit", s.SelectUnit, opts)
	unary(r, s.logger, "GetSnapshot", s.GetSnapshot, opts)
	unary(r, s.logger, "GetResult", s.GetResult, opts)
	unary(r, s.logger, "AcknowledgeResult", s.AcknowledgeResult, opts)
	unary(r, s.logger, "GetHistory", s.GetHistory, opts)
	unary(r, s.logger, "GetRankChanges", s.GetRankChanges, opts)

	r.Get("/events", s.Events)
	r.Get("/healthz", s.Healthz)
	return r
}

// requestLogger prefers the request-scoped logger set by the request id
// middleware and falls back to base.
func requestLogger(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l.With().Str("component", "flow_server").Logger()
	}
	return base
}

func unary[Req, Res any](r chi.Router, logger zerolog.Logger, name string, fn func(context.Context, *Req) (*Res, error), opts ...connect.HandlerOption) {
	procedure := BattleFlowPath + name
	r.Handle(procedure, connect.NewUnaryHandler(procedure,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
			res, err := fn(ctx, req.Msg)
			if err != nil {
				cerr := toConnectError(err)
				log := requestLogger(ctx, logger)
				log.Warn().Err(err).
					Str("procedure", procedure).
					Str("code", cerr.Code().String()).
					Msg("procedure failed")
				return nil, cerr
			}
			return connect.NewResponse(res), nil
		},
		opts...,
	))
}

func toConnectError(err error) *connect.Error {
	kind, ok := failure.KindOf(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			return connect.NewError(connect.CodeDeadlineExceeded, err)
		}
		return connect.NewError(connect.CodeInternal, err)
	}
	switch kind {
	case failure.KindValidation:
		return connect.NewError(connect.CodeInvalidArgument, err)
	case failure.KindConflict:
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case failure.KindNetwork:
		return connect.NewError(connect.CodeUnavailable, err)
	}
	return connect.NewError(connect.CodeUnknown, err)
}

func (s *FlowServer) JoinSeason(ctx context.Context, _ *Empty) (*JoinSeasonResponse, error) {
	res, err := s.seasons.JoinSeason(ctx)
	if err != nil {
		return nil, err
	}
	return &JoinSeasonResponse{
		SeasonID:        res.SeasonID,
		InitialRating:   res.InitialRating,
		InitialRankTier: string(res.InitialRankTier),
	}, nil
}

func (s *FlowServer) GetMembership(ctx context.Context, req *GetMembershipRequest) (*MembershipResponse, error) {
	view, err := s.seasons.GetMembership(ctx, req.Refresh)
	if err != nil {
		return nil, err
	}
	resp := &MembershipResponse{Membership: string(view.Membership), Cached: view.Cached}
	if view.Season != nil {
		resp.SeasonID = view.Season.ID
		resp.SeasonName = view.Season.Name
	}
	if view.Standing != nil {
		resp.Tier = string(view.Standing.Tier)
		resp.Rating = view.Standing.Rating
	}
	return resp, nil
}

func (s *FlowServer) ClaimSeasonReward(ctx context.Context, req *ClaimRewardRequest) (*Empty, error) {
	if req.SeasonHistoryID == "" {
		return nil, failure.Validation("claimSeasonReward", errors.New("seasonHistoryId is required"))
	}
	if err := s.seasons.ClaimSeasonReward(ctx, req.SeasonHistoryID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *FlowServer) RequestMatch(ctx context.Context, _ *Empty) (*StageResponse, error) {
	if err := s.flow.RequestMatch(ctx); err != nil {
		return nil, err
	}
	return &StageResponse{Stage: string(s.flow.Snapshot().Stage)}, nil
}

func (s *FlowServer) CancelMatchmaking(_ context.Context, _ *Empty) (*StageResponse, error) {
	if err := s.flow.CancelMatchmaking(); err != nil {
		return nil, err
	}
	return &StageResponse{Stage: string(s.flow.Snapshot().Stage)}, nil
}

func (s *FlowServer) AcceptMatch(ctx context.Context, _ *Empty) (*AcceptanceResponse, error) {
	state, err := s.flow.AcceptMatch(ctx)
	if err != nil {
		return nil, err
	}
	return &AcceptanceResponse{State: string(state)}, nil
}

func (s *FlowServer) RejectMatch(ctx context.Context, _ *Empty) (*AcceptanceResponse, error) {
	state, err := s.flow.RejectMatch(ctx)
	if err != nil {
		return nil, err
	}
	return &AcceptanceResponse{State: string(state)}, nil
}

func (s *FlowServer) SubmitPick(ctx context.Context, req *UnitRequest) (*PickResponse, error) {
	ack, err := s.flow.SubmitPick(ctx, req.UnitID)
	if err != nil {
		return nil, err
	}
	return &PickResponse{
		ParticipantID: ack.ParticipantID,
		UnitID:        ack.UnitID,
		Duplicate:     ack.Duplicate,
		Completed:     ack.Completed,
	}, nil
}

func (s *FlowServer) SelectUnit(ctx context.Context, req *UnitRequest) (*SelectionResponse, error) {
	ack, err := s.flow.SelectUnit(ctx, req.UnitID)
	if err != nil {
		return nil, err
	}
	return &SelectionResponse{Round: int(ack.Round), UnitID: ack.UnitID, Duplicate: ack.Duplicate}, nil
}

func (s *FlowServer) GetSnapshot(_ context.Context, _ *Empty) (*SnapshotResponse, error) {
	return toSnapshotResponse(s.flow.Snapshot()), nil
}

func (s *FlowServer) GetResult(_ context.Context, req *HandleRequest) (*ResultResponse, error) {
	view, err := s.flow.Result(req.Handle)
	if err != nil {
		return nil, err
	}
	return toResultResponse(view), nil
}

func (s *FlowServer) AcknowledgeResult(_ context.Context, req *HandleRequest) (*StageResponse, error) {
	if err := s.flow.AcknowledgeResult(req.Handle); err != nil {
		return nil, err
	}
	return &StageResponse{Stage: string(s.flow.Snapshot().Stage)}, nil
}

func (s *FlowServer) GetHistory(ctx context.Context, req *GetHistoryRequest) (*HistoryResponse, error) {
	page, err := s.history.GetMatchHistory(ctx, req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}
	return toHistoryResponse(page), nil
}

func (s *FlowServer) GetRankChanges(ctx context.Context, req *GetRankChangesRequest) (*RankChangesResponse, error) {
	changes, err := s.history.RecentRankChanges(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	resp := &RankChangesResponse{Changes: make([]RankChangeEntryMessage, 0, len(changes))}
	for _, c := range changes {
		resp.Changes = append(resp.Changes, RankChangeEntryMessage{
			MatchID: c.MatchID,
			RankChangeMessage: RankChangeMessage{
				Classification: string(c.Classification),
				FromTier:       string(c.FromTier),
				FromRating:     c.FromRating,
				ToTier:         string(c.ToTier),
				ToRating:       c.ToRating,
			},
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
		})
	}
	return resp, nil
}

// Events streams every bus event to one websocket client as a JSON envelope.
func (s *FlowServer) Events(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r.Context(), s.logger)
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		log.Warn().Err(err).Msg("failed to accept event stream")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	// the client never sends; CloseRead cancels ctx when it goes away
	ctx := conn.CloseRead(r.Context())
	log.Debug().Str("remote_addr", r.RemoteAddr).Msg("event stream opened")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			payload, err := json.Marshal(pubsub.Envelope{Kind: ev.Kind(), Payload: ev, PublishedAt: time.Now()})
			if err != nil {
				log.Error().Err(err).Str("kind", string(ev.Kind())).Msg("failed to encode event")
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				log.Debug().Err(err).Msg("event stream closed")
				return
			}
		}
	}
}

func (s *FlowServer) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"stage":  string(s.flow.Snapshot().Stage),
	})
}
