package draft

import (
	"battle-arena/internal/domain"
	"battle-arena/internal/failure"
	"battle-arena/internal/pubsub"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"
)

var ErrSubmissionInFlight = errors.New("a pick for this participant is awaiting acknowledgement")

type Picker interface {
	SubmitDraftPick(ctx context.Context, matchID, participantID, unitID, idempotencyKey string) error
	GetDraftState(ctx context.Context, matchID string) ([]domain.DraftPick, error)
}

type Publisher interface {
	Publish(pubsub.Event)
}

type Ack struct {
	ParticipantID string
	UnitID        string
	Duplicate     bool
	Completed     bool
}

// Session runs the pre-round draft for one match. Local picks stay pending
// until the server acknowledges them and are discarded on rejection.
type Session struct {
	mu      sync.Mutex
	client  Picker
	bus     Publisher
	logger  zerolog.Logger
	matchID string
	rules   domain.DraftRules
	state   State
	pending map[string]string
	done    chan struct{}
}

func NewSession(match domain.Match, client Picker, bus Publisher, logger zerolog.Logger) *Session {
	participants := match.ParticipantIDs()
	return &Session{
		client:  client,
		bus:     bus,
		logger:  logger.With().Str("component", "draft").Str("match_id", match.ID).Logger(),
		matchID: match.ID,
		rules:   match.Draft,
		state:   NewState(match.Draft, participants),
		pending: map[string]string{},
		done:    make(chan struct{}),
	}
}

func (s *Session) SubmitPick(ctx context.Context, participantID, unitID string) (Ack, error) {
	const op = "submitPick"
	cmd := Command{ParticipantID: participantID, UnitID: unitID}

	s.mu.Lock()
	if s.isRetryLocked(participantID, unitID) {
		completed := Done(s.state)
		s.mu.Unlock()
		return Ack{ParticipantID: participantID, UnitID: unitID, Duplicate: true, Completed: completed}, nil
	}
	if _, busy := s.pending[participantID]; busy {
		s.mu.Unlock()
		return Ack{}, failure.Conflict(op, ErrSubmissionInFlight)
	}
	if _, _, err := Apply(s.state, cmd); err != nil {
		s.mu.Unlock()
		s.logger.Warn().Err(err).Str("participant_id", participantID).Str("unit_id", unitID).Msg("pick rejected locally")
		s.bus.Publish(pubsub.DraftPickRejected{MatchID: s.matchID, ParticipantID: participantID, UnitID: unitID, Reason: err.Error()})
		return Ack{}, failure.Conflict(op, err)
	}
	key := fmt.Sprintf("draft:%s:%s:%d", s.matchID, participantID, len(s.state.Picks[participantID]))
	s.pending[participantID] = unitID
	s.mu.Unlock()

	err := s.client.SubmitDraftPick(ctx, s.matchID, participantID, unitID, key)

	s.mu.Lock()
	delete(s.pending, participantID)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error().Err(err).Str("participant_id", participantID).Str("unit_id", unitID).Msg("failed to submit pick")
		if failure.RollsBack(err) {
			s.bus.Publish(pubsub.DraftPickRejected{MatchID: s.matchID, ParticipantID: participantID, UnitID: unitID, Reason: err.Error()})
		}
		if errors.Is(err, failure.ErrConflict) {
			if syncErr := s.Resync(ctx); syncErr != nil {
				s.logger.Warn().Err(syncErr).Msg("draft resync failed")
			}
		}
		return Ack{}, err
	}

	completed, applied, err := s.confirmLocked(cmd)
	s.mu.Unlock()

	if err != nil {
		// acknowledged by the server but no longer fits local state
		if syncErr := s.Resync(ctx); syncErr != nil {
			s.logger.Warn().Err(syncErr).Msg("draft resync failed")
			return Ack{}, failure.Conflict(op, err)
		}
		return Ack{ParticipantID: participantID, UnitID: unitID, Completed: s.Completed()}, nil
	}
	if !applied {
		// the server echo already landed through the event stream
		return Ack{ParticipantID: participantID, UnitID: unitID, Duplicate: true, Completed: completed}, nil
	}
	s.announce(cmd, false, completed)
	return Ack{ParticipantID: participantID, UnitID: unitID, Completed: completed}, nil
}

// ApplyRemote records a pick pushed by the server, normally the opponent's.
// Picks already recorded are ignored.
func (s *Session) ApplyRemote(pick domain.DraftPick) error {
	cmd := Command{ParticipantID: pick.ParticipantID, UnitID: pick.UnitID}

	s.mu.Lock()
	if slices.Contains(s.state.Picks[pick.ParticipantID], pick.UnitID) {
		s.mu.Unlock()
		return nil
	}
	_, next, err := Apply(s.state, cmd)
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn().Err(err).Str("participant_id", pick.ParticipantID).Str("unit_id", pick.UnitID).Msg("remote pick does not fit local draft")
		return failure.Conflict("applyRemotePick", err)
	}
	s.state = next
	completed := Done(next)
	s.mu.Unlock()

	s.announce(cmd, true, completed)
	return nil
}

// Resync replaces local draft state with the server's pick list.
func (s *Session) Resync(ctx context.Context) error {
	picks, err := s.client.GetDraftState(ctx, s.matchID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	state, err := Reduce(s.rules, s.state.Participants, picks)
	if err != nil {
		s.mu.Unlock()
		return failure.Validation("resyncDraft", err)
	}
	wasDone := Done(s.state)
	s.state = state
	completed := Done(state)
	s.mu.Unlock()

	s.logger.Info().Int("picks", len(picks)).Bool("completed", completed).Msg("draft resynced")
	if completed && !wasDone {
		s.complete()
	}
	return nil
}

// isRetryLocked reports whether unitID repeats the participant's latest
// confirmed pick while it is not their turn to pick again.
func (s *Session) isRetryLocked(participantID, unitID string) bool {
	picks := s.state.Picks[participantID]
	if len(picks) == 0 || picks[len(picks)-1] != unitID {
		return false
	}
	return !slices.Contains(ExpectedPickers(s.state), participantID)
}

func (s *Session) confirmLocked(cmd Command) (completed, applied bool, err error) {
	if s.isRetryLocked(cmd.ParticipantID, cmd.UnitID) {
		return Done(s.state), false, nil
	}
	_, next, err := Apply(s.state, cmd)
	if err != nil {
		s.logger.Warn().Err(err).Str("participant_id", cmd.ParticipantID).Msg("acknowledged pick no longer applies locally")
		return Done(s.state), false, err
	}
	s.state = next
	return Done(next), true, nil
}

func (s *Session) announce(cmd Command, remote, completed bool) {
	s.logger.Info().
		Str("participant_id", cmd.ParticipantID).
		Str("unit_id", cmd.UnitID).
		Bool("remote", remote).
		Msg("pick confirmed")
	s.bus.Publish(pubsub.DraftPickConfirmed{MatchID: s.matchID, ParticipantID: cmd.ParticipantID, UnitID: cmd.UnitID, Remote: remote})
	if completed {
		s.complete()
	}
}

func (s *Session) complete() {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
		close(s.done)
	}
	picks := s.picksLocked()
	s.mu.Unlock()

	s.logger.Info().Msg("draft completed")
	s.bus.Publish(pubsub.DraftCompleted{MatchID: s.matchID, Picks: picks})
}

// Done is closed once every required pick is confirmed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Done(s.state)
}

func (s *Session) ExpectedPickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ExpectedPickers(s.state)
}

func (s *Session) Picks() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.picksLocked()
}

// Pending returns the unit awaiting acknowledgement for participantID.
func (s *Session) Pending(participantID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unit, ok := s.pending[participantID]
	return unit, ok
}

func (s *Session) picksLocked() map[string][]string {
	out := make(map[string][]string, len(s.state.Picks))
	for k, v := range s.state.Picks {
		out[k] = slices.Clone(v)
	}
	return out
}
