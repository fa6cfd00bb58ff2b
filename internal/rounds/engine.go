// Package rounds runs the three timed unit-selection rounds of a match.
package rounds

import (
	"battle-arena/internal/countdown"
	"battle-arena/internal/domain"
	"battle-arena/internal/failure"
	"battle-arena/internal/pubsub"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrDraftIncomplete    = errors.New("round one requires a completed draft")
	ErrPreviousRoundOpen  = errors.New("previous round is not completed")
	ErrRoundOutOfOrder    = errors.New("round does not follow the current round")
	ErrNoActiveRound      = errors.New("no round is accepting selections")
	ErrSelectionClosed    = errors.New("selection deadline has passed")
	ErrSelectionLocked    = errors.New("a different unit is already selected for this round")
	ErrSubmissionInFlight = errors.New("a selection is awaiting acknowledgement")
	ErrNotSelected        = errors.New("round has not finished selection")
)

type Selector interface {
	ChooseUnit(ctx context.Context, matchID string, round domain.RoundNumber, participantID, unitID, idempotencyKey string) error
	GetRoundState(ctx context.Context, matchID string) (*domain.RoundState, error)
}

type Publisher interface {
	Publish(pubsub.Event)
}

type Ack struct {
	Round     domain.RoundNumber
	UnitID    string
	Duplicate bool
}

// Engine tracks the rounds of one match from the local participant's side.
// Server updates are merged forward only; a stale update never moves a round
// back.
type Engine struct {
	mu        sync.Mutex
	client    Selector
	bus       Publisher
	clock     countdown.Clock
	logger    zerolog.Logger
	match     domain.Match
	self      string
	rounds    [domain.RoundsPerMatch]*domain.Round
	draftDone bool
	pending   string
	closed    bool
}

func NewEngine(match domain.Match, selfParticipantID string, clock countdown.Clock, client Selector, bus Publisher, logger zerolog.Logger) *Engine {
	return &Engine{
		client: client,
		bus:    bus,
		clock:  clock,
		logger: logger.With().Str("component", "rounds").Str("match_id", match.ID).Logger(),
		match:  match,
		self:   selfParticipantID,
	}
}

// DraftCompleted unlocks round one.
func (e *Engine) DraftCompleted() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.draftDone = true
}

// StartRound opens a round created by the server. Round one needs the draft
// to be complete and every later round needs its predecessor COMPLETED.
func (e *Engine) StartRound(r domain.Round) error {
	const op = "startRound"
	if err := r.Validate(&e.match); err != nil {
		return failure.Validation(op, err)
	}

	e.mu.Lock()
	if existing := e.rounds[r.Number-1]; existing != nil {
		e.mu.Unlock()
		return e.ApplyRoundUpdate(r)
	}
	if err := e.canStartLocked(r.Number); err != nil {
		e.mu.Unlock()
		return failure.Conflict(op, err)
	}
	round := r.Clone()
	if round.Status == domain.RoundPending {
		round.Status = domain.RoundSelecting
	}
	e.rounds[r.Number-1] = &round
	e.mu.Unlock()

	e.logger.Info().
		Int("round", int(r.Number)).
		Time("deadline", r.SelectionDeadline).
		Msg("round started")
	e.bus.Publish(pubsub.RoundStarted{MatchID: e.match.ID, Round: r.Number, Deadline: r.SelectionDeadline})
	e.afterMerge(nil, round)
	return nil
}

func (e *Engine) canStartLocked(n domain.RoundNumber) error {
	if n == domain.RoundOne {
		if !e.draftDone {
			return ErrDraftIncomplete
		}
		return nil
	}
	prev := e.rounds[n-2]
	if prev == nil {
		return fmt.Errorf("%w: round %d before round %d", ErrRoundOutOfOrder, n, n-1)
	}
	if prev.Status != domain.RoundCompleted {
		return ErrPreviousRoundOpen
	}
	return nil
}

// SelectUnit locks in the local participant's unit for the open round. The
// selection is only recorded once the server acknowledges it, and is
// immutable afterwards.
func (e *Engine) SelectUnit(ctx context.Context, unitID string) (Ack, error) {
	const op = "selectUnit"
	if unitID == "" {
		return Ack{}, failure.Validation(op, errors.New("unit id is empty"))
	}

	e.mu.Lock()
	round := e.currentLocked()
	if round == nil || round.Status != domain.RoundSelecting || e.closed {
		e.mu.Unlock()
		return Ack{}, failure.Conflict(op, ErrNoActiveRound)
	}
	number := round.Number
	if p := round.Participant(e.self); p != nil && p.SelectedUnitID != nil {
		selected := *p.SelectedUnitID
		e.mu.Unlock()
		if selected == unitID {
			return Ack{Round: number, UnitID: unitID, Duplicate: true}, nil
		}
		return Ack{}, failure.Conflict(op, ErrSelectionLocked)
	}
	if e.pending != "" {
		e.mu.Unlock()
		return Ack{}, failure.Conflict(op, ErrSubmissionInFlight)
	}
	if countdown.NewDeadline(round.SelectionDeadline).Expired(e.clock.Now()) {
		e.mu.Unlock()
		return Ack{}, failure.Conflict(op, ErrSelectionClosed)
	}
	e.pending = unitID
	e.mu.Unlock()

	key := fmt.Sprintf("round:%s:%d:%s", e.match.ID, number, e.self)
	err := e.client.ChooseUnit(ctx, e.match.ID, number, e.self, unitID, key)

	e.mu.Lock()
	e.pending = ""
	if err != nil {
		e.mu.Unlock()
		e.logger.Error().Err(err).Int("round", int(number)).Str("unit_id", unitID).Msg("failed to select unit")
		if errors.Is(err, failure.ErrConflict) {
			if syncErr := e.Resync(ctx); syncErr != nil {
				e.logger.Warn().Err(syncErr).Msg("round resync failed")
			}
		}
		return Ack{}, err
	}

	round = e.rounds[number-1]
	p := round.Participant(e.self)
	if p == nil {
		e.mu.Unlock()
		return Ack{}, failure.Validation(op, fmt.Errorf("participant %q not in round %d", e.self, number))
	}
	if p.SelectedUnitID != nil {
		// the server echo landed first
		e.mu.Unlock()
		return Ack{Round: number, UnitID: *p.SelectedUnitID, Duplicate: true}, nil
	}
	before := round.Clone()
	now := e.clock.Now()
	unit := unitID
	p.SelectedUnitID = &unit
	p.SelectionTimestamp = &now
	if round.Status == domain.RoundSelecting && round.AllSelected() {
		round.Status = domain.RoundSelected
	}
	after := round.Clone()
	e.mu.Unlock()

	e.logger.Info().Int("round", int(number)).Str("unit_id", unitID).Msg("unit selected")
	e.afterMerge(&before, after)
	return Ack{Round: number, UnitID: unitID}, nil
}

// Tick closes selection once the deadline passes. Participants without a
// selection forfeit the round. A selection awaiting acknowledgement holds
// the deadline until it settles.
func (e *Engine) Tick(now time.Time) bool {
	e.mu.Lock()
	if e.closed || e.finishedLocked() {
		e.mu.Unlock()
		return false
	}
	round := e.currentLocked()
	if round == nil || round.Status != domain.RoundSelecting || e.pending != "" {
		e.mu.Unlock()
		return true
	}
	if !countdown.NewDeadline(round.SelectionDeadline).Expired(now) {
		e.mu.Unlock()
		return true
	}
	before := round.Clone()
	round.Status = domain.RoundSelected
	var forfeits []string
	for _, p := range round.Participants {
		if p.SelectedUnitID == nil {
			forfeits = append(forfeits, p.MatchParticipantID)
		}
	}
	after := round.Clone()
	e.mu.Unlock()

	e.logger.Info().
		Int("round", int(after.Number)).
		Strs("forfeited", forfeits).
		Msg("selection deadline passed")
	e.afterMerge(&before, after)
	return true
}

// Complete records the externally computed outcome of a SELECTED round.
// A participant who never selected scores 0 whatever the input says.
func (e *Engine) Complete(n domain.RoundNumber, points map[string]int) error {
	const op = "completeRound"
	if !n.Valid() {
		return failure.Validation(op, fmt.Errorf("%w: %d", domain.ErrRoundNumber, n))
	}

	e.mu.Lock()
	round := e.rounds[n-1]
	if round == nil {
		e.mu.Unlock()
		return failure.Conflict(op, ErrNoActiveRound)
	}
	if round.Status == domain.RoundCompleted {
		e.mu.Unlock()
		return nil
	}
	if round.Status != domain.RoundSelected {
		e.mu.Unlock()
		return failure.Conflict(op, ErrNotSelected)
	}
	next := round.Clone()
	for i := range next.Participants {
		p := &next.Participants[i]
		pts, ok := points[p.MatchParticipantID]
		if !ok {
			e.mu.Unlock()
			return failure.Validation(op, fmt.Errorf("no points for participant %q", p.MatchParticipantID))
		}
		if pts < 0 {
			e.mu.Unlock()
			return failure.Validation(op, domain.ErrNegativePoints)
		}
		if p.SelectedUnitID == nil {
			pts = 0
		}
		p.PointsEarned = pts
	}
	next.Status = domain.RoundCompleted
	before := round.Clone()
	*round = next
	e.mu.Unlock()

	e.afterMerge(&before, next)
	return nil
}

// ApplyRoundUpdate merges a server snapshot of one round. Status and
// selections only move forward; an unseen round is started.
func (e *Engine) ApplyRoundUpdate(r domain.Round) error {
	const op = "applyRoundUpdate"
	if err := r.Validate(&e.match); err != nil {
		return failure.Validation(op, err)
	}

	e.mu.Lock()
	local := e.rounds[r.Number-1]
	if local == nil {
		e.mu.Unlock()
		return e.StartRound(r)
	}
	if r.Status.Before(local.Status) {
		e.mu.Unlock()
		e.logger.Debug().
			Int("round", int(r.Number)).
			Str("local", string(local.Status)).
			Str("remote", string(r.Status)).
			Msg("ignoring stale round update")
		return nil
	}
	before := local.Clone()
	merged := merge(*local, r)
	*local = merged
	e.mu.Unlock()

	e.afterMerge(&before, merged.Clone())
	return nil
}

func merge(local, remote domain.Round) domain.Round {
	out := local.Clone()
	if local.Status.Before(remote.Status) {
		out.Status = remote.Status
	}
	if !remote.SelectionDeadline.IsZero() {
		out.SelectionDeadline = remote.SelectionDeadline
	}
	for _, rp := range remote.Participants {
		lp := out.Participant(rp.MatchParticipantID)
		if lp == nil {
			continue
		}
		if lp.SelectedUnitID == nil && rp.SelectedUnitID != nil {
			unit := *rp.SelectedUnitID
			lp.SelectedUnitID = &unit
			if rp.SelectionTimestamp != nil {
				ts := *rp.SelectionTimestamp
				lp.SelectionTimestamp = &ts
			}
		}
		if remote.Status == domain.RoundCompleted {
			lp.PointsEarned = rp.PointsEarned
			if lp.SelectedUnitID == nil {
				lp.PointsEarned = 0
			}
		}
	}
	if out.Status == domain.RoundSelecting && out.AllSelected() {
		out.Status = domain.RoundSelected
	}
	return out
}

// Resync replaces local rounds with the server's view, merged forward.
func (e *Engine) Resync(ctx context.Context) error {
	state, err := e.client.GetRoundState(ctx, e.match.ID)
	if err != nil {
		return err
	}
	for _, r := range state.Rounds {
		if err := e.ApplyRoundUpdate(r); err != nil {
			return err
		}
	}
	return nil
}

// afterMerge publishes the transitions between two snapshots of a round.
func (e *Engine) afterMerge(before *domain.Round, after domain.Round) {
	prev := domain.RoundSelecting
	if before != nil {
		prev = before.Status
	}
	if prev.Before(domain.RoundSelected) && !after.Status.Before(domain.RoundSelected) {
		e.bus.Publish(pubsub.RoundSelected{MatchID: e.match.ID, Round: after.Number})
	}
	if prev != domain.RoundCompleted && after.Status == domain.RoundCompleted {
		e.logger.Info().Int("round", int(after.Number)).Msg("round completed")
		e.bus.Publish(pubsub.RoundCompleted{MatchID: e.match.ID, Round: after})
	}
}

func (e *Engine) currentLocked() *domain.Round {
	for i := len(e.rounds) - 1; i >= 0; i-- {
		if e.rounds[i] != nil {
			return e.rounds[i]
		}
	}
	return nil
}

func (e *Engine) finishedLocked() bool {
	last := e.rounds[domain.RoundsPerMatch-1]
	return last != nil && last.Status == domain.RoundCompleted
}

// Rounds returns copies of every started round in order.
func (e *Engine) Rounds() []domain.Round {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []domain.Round
	for _, r := range e.rounds {
		if r != nil {
			out = append(out, r.Clone())
		}
	}
	return out
}

func (e *Engine) Current() (domain.Round, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.currentLocked()
	if r == nil {
		return domain.Round{}, false
	}
	return r.Clone(), true
}

// Remaining is the selection time left in the open round, 0 otherwise.
func (e *Engine) Remaining(now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.currentLocked()
	if r == nil || r.Status != domain.RoundSelecting || e.closed {
		return 0
	}
	return countdown.NewDeadline(r.SelectionDeadline).Remaining(now)
}

// Pending returns the unit awaiting acknowledgement, if any.
func (e *Engine) Pending() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending, e.pending != ""
}

// Finished reports whether round three is COMPLETED.
func (e *Engine) Finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finishedLocked()
}

func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}
