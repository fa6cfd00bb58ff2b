package pubsub

import (
	"battle-arena/internal/constants"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Envelope is the wire form of an Event sent to an upstream.
type Envelope struct {
	Kind        Kind      `json:"kind"`
	Payload     Event     `json:"payload"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Upstream receives a copy of every published event, e.g. a NATS subject
// watched by out-of-process presenters.
type Upstream interface {
	Forward(Envelope) error
	Close()
}

type Bus struct {
	mu          sync.RWMutex
	subscribers []chan Event
	upstream    Upstream
	logger      zerolog.Logger
}

func New(logger zerolog.Logger) *Bus {
	return &Bus{logger: logger.With().Str("component", "pubsub").Logger()}
}

func NewWithUpstream(upstream Upstream, logger zerolog.Logger) *Bus {
	b := New(logger)
	b.upstream = upstream
	return b
}

func (b *Bus) Subscribe() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, constants.SubscriberBuffer)
	b.subscribers = append(b.subscribers, ch)
	b.logger.Debug().Int("subscribers", len(b.subscribers)).Msg("subscriber added")
	return ch
}

func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub == ch {
			close(ch)
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			break
		}
	}
}

// Publish never blocks: a subscriber whose buffer is full misses the event.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := make([]chan Event, len(b.subscribers))
	copy(subs, b.subscribers)
	upstream := b.upstream
	b.mu.RUnlock()

	b.logger.Debug().Str("kind", string(ev.Kind())).Int("subscribers", len(subs)).Msg("publishing event")

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn().Str("kind", string(ev.Kind())).Msg("subscriber full, event dropped")
		}
	}

	if upstream != nil {
		if err := upstream.Forward(Envelope{Kind: ev.Kind(), Payload: ev, PublishedAt: time.Now()}); err != nil {
			b.logger.Error().Err(err).Str("kind", string(ev.Kind())).Msg("failed to forward event upstream")
		}
	}
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = nil
	if b.upstream != nil {
		b.upstream.Close()
		b.upstream = nil
	}
}
