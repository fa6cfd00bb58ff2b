package matchmaking

import (
	"battle-arena/internal/constants"
	"battle-arena/internal/domain"
	"battle-arena/internal/failure"
	"battle-arena/internal/pubsub"
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrAlreadyPending = errors.New("matchmaking already pending")
	ErrMatchHeld      = errors.New("a found match has not been released")
	ErrNothingPending = errors.New("no matchmaking request")
)

type Phase string

const (
	PhaseIdle       Phase = "IDLE"
	PhasePending    Phase = "PENDING"
	PhaseCancelling Phase = "CANCELLING"
	PhaseFound      Phase = "FOUND"
	PhaseFailed     Phase = "FAILED"
)

type Matchmaker interface {
	RequestMatch(ctx context.Context) (*domain.MatchFound, *domain.MatchmakingFailed, error)
}

type Permitter interface {
	Permit() error
}

type Publisher interface {
	Publish(pubsub.Event)
}

// Outcome is one of Found, Failed or Cancelled.
type Outcome interface {
	isOutcome()
}

type Found struct {
	domain.MatchFound
	AfterCancel bool
}

type Failed struct {
	Reason string
	Err    error
}

type Cancelled struct{}

func (Found) isOutcome()     {}
func (Failed) isOutcome()    {}
func (Cancelled) isOutcome() {}

type Coordinator struct {
	mu      sync.Mutex
	mm      Matchmaker
	gate    Permitter
	bus     Publisher
	logger  zerolog.Logger
	ctx     context.Context
	stop    context.CancelFunc
	phase   Phase
	attempt uint64
	inQueue bool
	cancel  bool
	found   *domain.MatchFound
	outcome Outcome
	done    chan struct{}
}

func NewCoordinator(mm Matchmaker, gate Permitter, bus Publisher, logger zerolog.Logger) *Coordinator {
	ctx, stop := context.WithCancel(context.Background())
	return &Coordinator{
		mm:     mm,
		gate:   gate,
		bus:    bus,
		logger: logger.With().Str("component", "matchmaking").Logger(),
		ctx:    ctx,
		stop:   stop,
		phase:  PhaseIdle,
	}
}

// RequestMatch enters the queue and returns immediately; the outcome arrives
// through Wait and the event bus.
func (c *Coordinator) RequestMatch(ctx context.Context) error {
	const op = "requestMatch"
	if err := c.gate.Permit(); err != nil {
		return err
	}

	c.mu.Lock()
	switch c.phase {
	case PhasePending, PhaseCancelling:
		c.mu.Unlock()
		return failure.Conflict(op, ErrAlreadyPending)
	case PhaseFound:
		c.mu.Unlock()
		return failure.Conflict(op, ErrMatchHeld)
	}
	c.phase = PhasePending
	c.cancel = false
	c.inQueue = true
	c.outcome = nil
	c.attempt++
	c.done = make(chan struct{})
	attempt := c.attempt
	c.mu.Unlock()

	c.logger.Info().Uint64("attempt", attempt).Msg("matchmaking requested")
	c.bus.Publish(pubsub.MatchmakingStarted{})

	// The request outlives ctx: cancelling must not drop a match the server
	// has already committed.
	go c.await(attempt)
	return nil
}

func (c *Coordinator) await(attempt uint64) {
	ctx, cancel := context.WithTimeout(c.ctx, constants.MatchmakingTimeout)
	defer cancel()

	found, failed, err := c.mm.RequestMatch(ctx)
	switch {
	case err != nil:
		c.resolveFailure(attempt, err.Error(), err)
	case failed != nil:
		c.resolveFailure(attempt, failed.Reason, nil)
	case found != nil:
		c.HandleMatchFound(*found)
	}
}

// HandleMatchFound surfaces a found match from the request or the server event
// stream. Duplicates of the held match are ignored.
func (c *Coordinator) HandleMatchFound(found domain.MatchFound) {
	c.mu.Lock()
	if c.found != nil {
		held := c.found.MatchID
		c.mu.Unlock()
		if held != found.MatchID {
			c.logger.Warn().Str("held_match_id", held).Str("match_id", found.MatchID).Msg("second match found while one is held")
		}
		return
	}
	afterCancel := c.cancel
	c.phase = PhaseFound
	c.found = &found
	c.inQueue = false
	c.outcome = Found{MatchFound: found, AfterCancel: afterCancel}
	c.closeDone()
	c.mu.Unlock()

	c.logger.Info().Str("match_id", found.MatchID).Bool("after_cancel", afterCancel).Msg("match found")
	c.bus.Publish(pubsub.MatchFound{Found: found, AfterCancel: afterCancel})
}

func (c *Coordinator) resolveFailure(attempt uint64, reason string, err error) {
	c.mu.Lock()
	if attempt != c.attempt || (c.phase != PhasePending && c.phase != PhaseCancelling) {
		c.mu.Unlock()
		return
	}
	c.inQueue = false
	if c.cancel {
		c.phase = PhaseIdle
		c.outcome = Cancelled{}
		c.closeDone()
		c.mu.Unlock()
		c.logger.Debug().Str("reason", reason).Msg("cancelled matchmaking request settled")
		return
	}
	c.phase = PhaseFailed
	c.outcome = Failed{Reason: reason, Err: err}
	c.closeDone()
	c.mu.Unlock()

	c.logger.Warn().Err(err).Str("reason", reason).Msg("matchmaking failed")
	c.bus.Publish(pubsub.MatchmakingFailed{Reason: reason})
}

// Cancel is best effort and local: the queue membership is dropped here, but
// a match found afterwards is still surfaced.
func (c *Coordinator) Cancel() error {
	c.mu.Lock()
	if c.phase != PhasePending {
		c.mu.Unlock()
		return failure.Conflict("cancelMatchmaking", ErrNothingPending)
	}
	c.phase = PhaseCancelling
	c.cancel = true
	c.inQueue = false
	c.mu.Unlock()

	c.logger.Info().Msg("matchmaking cancel requested")
	c.bus.Publish(pubsub.MatchmakingCancelled{})
	return nil
}

// ReleaseQueue drops local queue membership and the reference to matchID.
// It never talks to the server.
func (c *Coordinator) ReleaseQueue(matchID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inQueue = false
	if c.found != nil && c.found.MatchID == matchID {
		c.found = nil
		c.phase = PhaseIdle
	}
	c.logger.Debug().Str("match_id", matchID).Msg("queue membership released")
}

// Wait blocks until the current request resolves.
func (c *Coordinator) Wait(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil, failure.Conflict("waitMatchmaking", ErrNothingPending)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome, nil
}

func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Coordinator) InQueue() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inQueue
}

func (c *Coordinator) Found() *domain.MatchFound {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.found == nil {
		return nil
	}
	f := *c.found
	return &f
}

func (c *Coordinator) Close() {
	c.stop()
}

func (c *Coordinator) closeDone() {
	if c.done == nil {
		c.done = make(chan struct{})
	}
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}
