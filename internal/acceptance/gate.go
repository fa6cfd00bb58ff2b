package acceptance

import (
	"battle-arena/internal/countdown"
	"battle-arena/internal/domain"
	"battle-arena/internal/pubsub"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type State string

const (
	AwaitingResponse State = "AWAITING_RESPONSE"
	Accepted         State = "ACCEPTED"
	Rejected         State = "REJECTED"
	Expired          State = "EXPIRED"
)

func (s State) Terminal() bool {
	return s != AwaitingResponse
}

type Responder interface {
	AcceptMatch(ctx context.Context, matchID string) error
	RejectMatch(ctx context.Context, matchID string) error
}

type QueueReleaser interface {
	ReleaseQueue(matchID string)
}

type Publisher interface {
	Publish(pubsub.Event)
}

// Gate resolves a found match against its server-issued acceptance deadline.
type Gate struct {
	mu       sync.Mutex
	client   Responder
	queue    QueueReleaser
	bus      Publisher
	clock    countdown.Clock
	logger   zerolog.Logger
	matchID  string
	found    *domain.MatchFound
	deadline countdown.Deadline
	state    State
	inFlight bool
	closed   bool
	released bool
}

func NewGate(found domain.MatchFound, clock countdown.Clock, client Responder, queue QueueReleaser, bus Publisher, logger zerolog.Logger) *Gate {
	return &Gate{
		client:   client,
		queue:    queue,
		bus:      bus,
		clock:    clock,
		logger:   logger.With().Str("component", "acceptance").Str("match_id", found.MatchID).Logger(),
		matchID:  found.MatchID,
		found:    &found,
		deadline: countdown.NewDeadline(found.Match.AcceptanceDeadline),
		state:    AwaitingResponse,
	}
}

// Tick expires the gate once the deadline passes with no response. A
// response awaiting acknowledgement holds expiry until it settles.
func (g *Gate) Tick(now time.Time) bool {
	g.mu.Lock()
	if g.state != AwaitingResponse || g.closed {
		g.mu.Unlock()
		return false
	}
	if g.inFlight || !g.deadline.Expired(now) {
		g.mu.Unlock()
		return true
	}
	g.expireLocked()
	g.mu.Unlock()

	g.logger.Info().Time("deadline", g.deadline.At).Msg("acceptance expired")
	g.bus.Publish(pubsub.AcceptanceExpired{MatchID: g.matchID})
	return false
}

func (g *Gate) Accept(ctx context.Context) (State, error) {
	return g.respond(ctx, Accepted)
}

func (g *Gate) Reject(ctx context.Context) (State, error) {
	return g.respond(ctx, Rejected)
}

func (g *Gate) respond(ctx context.Context, target State) (State, error) {
	g.mu.Lock()
	if g.state.Terminal() || g.closed || g.inFlight {
		state := g.state
		g.mu.Unlock()
		g.logger.Debug().Str("state", string(state)).Str("requested", string(target)).Msg("ignoring repeated response")
		return state, nil
	}
	if g.deadline.Expired(g.clock.Now()) {
		g.expireLocked()
		g.mu.Unlock()
		g.bus.Publish(pubsub.AcceptanceExpired{MatchID: g.matchID})
		return Expired, nil
	}
	g.inFlight = true
	g.mu.Unlock()

	var err error
	if target == Accepted {
		err = g.client.AcceptMatch(ctx, g.matchID)
	} else {
		err = g.client.RejectMatch(ctx, g.matchID)
	}

	g.mu.Lock()
	g.inFlight = false
	if err != nil {
		state := g.state
		g.mu.Unlock()
		g.logger.Error().Err(err).Str("requested", string(target)).Msg("failed to respond to match")
		return state, err
	}
	g.state = target
	if target == Rejected {
		g.releaseLocked()
	}
	g.mu.Unlock()

	g.logger.Info().Str("state", string(target)).Msg("acceptance resolved")
	g.bus.Publish(pubsub.AcceptanceResolved{MatchID: g.matchID, State: string(target)})
	return target, nil
}

// Close drops the gate locally without telling the server.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	if g.state == AwaitingResponse {
		g.releaseLocked()
	}
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) MatchID() string {
	return g.matchID
}

// Found returns the held match, nil once expired or rejected.
func (g *Gate) Found() *domain.MatchFound {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.found
}

func (g *Gate) Remaining(now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != AwaitingResponse || g.closed {
		return 0
	}
	return g.deadline.Remaining(now)
}

// Overdue reports how long an accepted gate has been waiting past its
// deadline for the server to move the match on.
func (g *Gate) Overdue(now time.Time) (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Accepted || g.closed || !g.deadline.Expired(now) {
		return 0, false
	}
	return now.Sub(g.deadline.At), true
}

func (g *Gate) expireLocked() {
	g.state = Expired
	g.releaseLocked()
}

func (g *Gate) releaseLocked() {
	g.found = nil
	if g.released {
		return
	}
	g.released = true
	g.queue.ReleaseQueue(g.matchID)
}
