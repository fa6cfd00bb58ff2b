package cache

import (
	"battle-arena/internal/config"
	"battle-arena/internal/countdown"
	"battle-arena/internal/domain"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RoundStateFetcher interface {
	GetRoundState(ctx context.Context, matchID string) (*domain.RoundState, error)
}

// RoundStateCache serves getRoundState through a Store. Mutations on a match
// must call Invalidate so the next read goes to the server.
type RoundStateCache struct {
	store  Store
	client RoundStateFetcher
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRoundStateCache(store Store, client RoundStateFetcher, ttl time.Duration, logger zerolog.Logger) *RoundStateCache {
	return &RoundStateCache{
		store:  store,
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "round_cache").Logger(),
	}
}

// NewStore picks the backend named by CACHE_BACKEND.
func NewStore(cfg *config.Config, logger zerolog.Logger) (Store, error) {
	if cfg.CacheBackend != "redis" {
		return NewMemoryStore(countdown.SystemClock{}), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
	return NewRedisStore(rdb, "battle:"), nil
}

func roundKey(matchID string) string {
	return "rounds:" + matchID
}

func (c *RoundStateCache) GetRoundState(ctx context.Context, matchID string) (*domain.RoundState, error) {
	key := roundKey(matchID)
	if b, ok, err := c.store.Get(ctx, key); err != nil {
		c.logger.Warn().Err(err).Str("match_id", matchID).Msg("cache read failed")
	} else if ok {
		var state domain.RoundState
		if err := json.Unmarshal(b, &state); err == nil {
			return &state, nil
		}
		c.logger.Warn().Str("match_id", matchID).Msg("dropping undecodable cache entry")
	}

	state, err := c.client.GetRoundState(ctx, matchID)
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(state)
	if err == nil {
		if err := c.store.Set(ctx, key, b, c.ttl); err != nil {
			c.logger.Warn().Err(err).Str("match_id", matchID).Msg("cache write failed")
		}
	}
	return state, nil
}

func (c *RoundStateCache) Invalidate(ctx context.Context, matchID string) {
	if err := c.store.Delete(ctx, roundKey(matchID)); err != nil {
		c.logger.Warn().Err(err).Str("match_id", matchID).Msg("cache invalidate failed")
	}
}
