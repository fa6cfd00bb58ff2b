package constants

import "time"

const (
	StandingRefreshTTL = 5 * time.Minute
	HistoryRefreshTTL  = 2 * time.Minute
	RoundStateCacheTTL = 30 * time.Second
	HistoryPageSize    = 20
	MaxHistoryPageSize = 100
)

const (
	ExternalAPITimeout = 10 * time.Second
	MatchmakingTimeout = 3 * time.Minute
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	TickInterval        = 1 * time.Second
	MaxNetworkRetries   = 3
	RetryBaseBackoff    = 200 * time.Millisecond
	EventReconnectDelay = 2 * time.Second
	SubscriberBuffer    = 32
)

const (
	AcceptanceRecheckInterval = 5 * time.Second
	AcceptanceGracePeriod     = 30 * time.Second
)

const (
	DBMaxOpenConns    = 16
	DBMaxIdleConns    = 4
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	ShutdownTimeout = 5 * time.Second
)
