package fx

import (
	"battle-arena/internal/api"
	"battle-arena/internal/cache"
	"battle-arena/internal/config"
	"battle-arena/internal/countdown"
	"battle-arena/internal/database"
	"battle-arena/internal/identity"
	"battle-arena/internal/logger"
	"battle-arena/internal/matchmaking"
	"battle-arena/internal/pubsub"
	"battle-arena/internal/repository"
	"battle-arena/internal/season"
	"battle-arena/internal/server"
	"battle-arena/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideClock() countdown.Clock {
	return countdown.SystemClock{}
}

func ProvideSeasonGate(client *api.BattleClient, bus *pubsub.Bus, logger zerolog.Logger) *season.Gate {
	return season.NewGate(client, bus, logger)
}

func ProvideCoordinator(client *api.BattleClient, gate *season.Gate, bus *pubsub.Bus, logger zerolog.Logger) *matchmaking.Coordinator {
	return matchmaking.NewCoordinator(client, gate, bus, logger)
}

func ProvideRoundStateCache(store cache.Store, client *api.BattleClient, cfg *config.Config, logger zerolog.Logger) *cache.RoundStateCache {
	return cache.NewRoundStateCache(store, client, cfg.RoundStateTTL, logger)
}

func ProvideHistoryService(client *api.BattleClient, matches *repository.MatchRecordRepository, changes *repository.RankChangeRepository, logger zerolog.Logger) *service.HistoryService {
	return service.NewHistoryService(client, matches, changes, logger)
}

func ProvideSeasonService(gate *season.Gate, client *api.BattleClient, standings *repository.StandingRepository, self identity.Identity, logger zerolog.Logger) *service.SeasonService {
	return service.NewSeasonService(gate, client, standings, self, logger)
}

type flowParams struct {
	fx.In

	Client      *api.BattleClient
	Events      *api.EventStream
	RoundStates *cache.RoundStateCache
	Gate        *season.Gate
	Matchmaking *matchmaking.Coordinator
	Results     *service.ResultSessions
	History     *service.HistoryService
	Seasons     *service.SeasonService
	Bus         *pubsub.Bus
	Clock       countdown.Clock
	Config      *config.Config
	Self        identity.Identity
	Logger      zerolog.Logger
}

func ProvideFlow(p flowParams) *service.Flow {
	return service.NewFlow(service.FlowDeps{
		Client:       p.Client,
		Events:       p.Events,
		RoundStates:  p.RoundStates,
		Gate:         p.Gate,
		Matchmaking:  p.Matchmaking,
		Results:      p.Results,
		History:      p.History,
		Seasons:      p.Seasons,
		Bus:          p.Bus,
		Clock:        p.Clock,
		TickInterval: p.Config.TickInterval,
		Self:         p.Self,
		Logger:       p.Logger,
	})
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	fx.Provide(identity.FromConfig),
	fx.Provide(ProvideClock),
	// repos
	fx.Provide(repository.NewStandingRepository),
	fx.Provide(repository.NewMatchRecordRepository),
	fx.Provide(repository.NewRankChangeRepository),
	// battle service
	fx.Provide(api.NewBattleClient),
	fx.Provide(api.NewEventStream),
	fx.Provide(pubsub.NewBus),
	fx.Provide(cache.NewStore),
	fx.Provide(ProvideRoundStateCache),
	// components
	fx.Provide(ProvideSeasonGate),
	fx.Provide(ProvideCoordinator),
	// svc
	fx.Provide(service.NewResultSessions),
	fx.Provide(ProvideHistoryService),
	fx.Provide(ProvideSeasonService),
	fx.Provide(ProvideFlow),
	// server
	fx.Provide(server.NewFlowServer),
)
