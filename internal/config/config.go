package config

import (
	"battle-arena/internal/constants"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	BattleAPIURL      string
	BattleEventsURL   string
	BattleAccessToken string
	DBPath            string
	ServerPort        string
	LogLevel          string
	AllowedOrigins    []string
	CacheBackend      string
	RedisAddr         string
	NATSURL           string
	NATSSubject       string
	TickInterval      time.Duration
	RoundStateTTL     time.Duration
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		BattleAPIURL:      strings.TrimRight(getEnv("BATTLE_API_URL", "https://battle.local/api"), "/"),
		BattleEventsURL:   getEnv("BATTLE_EVENTS_URL", ""),
		BattleAccessToken: getEnv("BATTLE_ACCESS_TOKEN", ""),
		DBPath:            getEnv("DB_PATH", "battle.db"),
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		AllowedOrigins:    splitList(getEnv("ALLOWED_ORIGINS", "*")),
		CacheBackend:      getEnv("CACHE_BACKEND", "memory"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		NATSURL:           getEnv("NATS_URL", ""),
		NATSSubject:       getEnv("NATS_SUBJECT", "battle.events"),
		TickInterval:      getDuration("TICK_INTERVAL", constants.TickInterval),
		RoundStateTTL:     getDuration("ROUND_STATE_TTL", constants.RoundStateCacheTTL),
	}

	if cfg.BattleAccessToken == "" {
		return nil, fmt.Errorf("BATTLE_ACCESS_TOKEN is required")
	}
	if cfg.BattleEventsURL == "" {
		cfg.BattleEventsURL = deriveEventsURL(cfg.BattleAPIURL)
	}
	if cfg.CacheBackend != "memory" && cfg.CacheBackend != "redis" {
		return nil, fmt.Errorf("CACHE_BACKEND must be memory or redis, got %q", cfg.CacheBackend)
	}

	logger.Info().
		Str("battle_api_url", cfg.BattleAPIURL).
		Str("battle_events_url", cfg.BattleEventsURL).
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Str("cache_backend", cfg.CacheBackend).
		Bool("nats_enabled", cfg.NATSURL != "").
		Dur("tick_interval", cfg.TickInterval).
		Msg("configuration loaded")

	return cfg, nil
}

func deriveEventsURL(apiURL string) string {
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		return "wss://" + strings.TrimPrefix(apiURL, "https://") + "/v1/events"
	case strings.HasPrefix(apiURL, "http://"):
		return "ws://" + strings.TrimPrefix(apiURL, "http://") + "/v1/events"
	}
	return apiURL + "/v1/events"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var Module = fx.Provide(Load)
