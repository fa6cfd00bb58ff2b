package pubsub

import (
	"battle-arena/internal/config"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

type NATSUpstream struct {
	nc      *nats.Conn
	subject string
}

func NewNATSUpstream(natsURL, subject string) (*NATSUpstream, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("battle-arena"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSUpstream{nc: nc, subject: subject}, nil
}

func (u *NATSUpstream) Forward(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := u.nc.Publish(u.subject+"."+string(env.Kind), data); err != nil {
		return fmt.Errorf("failed to publish to NATS: %w", err)
	}
	return nil
}

func (u *NATSUpstream) Close() {
	if u.nc != nil {
		u.nc.Drain()
	}
}

// NewBus builds the process event bus, bridged to NATS when NATS_URL is set.
func NewBus(cfg *config.Config, logger zerolog.Logger) (*Bus, error) {
	if cfg.NATSURL == "" {
		return New(logger), nil
	}
	upstream, err := NewNATSUpstream(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		logger.Error().Err(err).Str("url", cfg.NATSURL).Msg("failed to connect notification upstream")
		return nil, err
	}
	logger.Info().Str("url", cfg.NATSURL).Str("subject", cfg.NATSSubject).Msg("notification upstream connected")
	return NewWithUpstream(upstream, logger), nil
}
