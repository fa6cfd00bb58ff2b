package draft

import (
	"battle-arena/internal/domain"
	"errors"
	"slices"
)

var ErrWrongTurn = errors.New("not this participant's turn")
var ErrDuplicateUnit = errors.New("unit already picked")
var ErrDraftCompleted = errors.New("draft already completed")
var ErrUnknownParticipant = errors.New("unknown participant")
var ErrInvalidUnit = errors.New("unit id is empty")

// TurnStep lists who picks at one position of the order. A simultaneous step
// names both participants and closes once each has picked.
type TurnStep struct {
	Pickers []string
}

type State struct {
	Order           []TurnStep
	Cursor          int
	StepPicks       map[string]string
	Picks           map[string][]string
	Participants    [2]string
	AllowDuplicates bool
}

type Command struct {
	ParticipantID string
	UnitID        string
}

type EventType string

const (
	EvtUnitPicked     EventType = "UnitPicked"
	EvtTurnAdvanced   EventType = "TurnAdvanced"
	EvtDraftCompleted EventType = "DraftCompleted"
)

type Event struct {
	Type          EventType
	ParticipantID string
	UnitID        string
}

// BuildOrder expands the match draft rules into a picker sequence.
// participants must be ordered by join order; the first one picks first.
func BuildOrder(rules domain.DraftRules, participants [2]string) []TurnStep {
	n := rules.PicksPerParticipant
	if n <= 0 {
		n = 1
	}

	var order []TurnStep
	switch rules.Mode {
	case domain.PickSimultaneous:
		for i := 0; i < n; i++ {
			order = append(order, TurnStep{Pickers: []string{participants[0], participants[1]}})
		}
	case domain.PickSnake:
		// A B B A A B ...
		for i := 0; i < 2*n; i++ {
			round, inRound := i/2, i%2
			idx := inRound
			if round%2 == 1 {
				idx = 1 - inRound
			}
			order = append(order, TurnStep{Pickers: []string{participants[idx]}})
		}
	default:
		for i := 0; i < 2*n; i++ {
			order = append(order, TurnStep{Pickers: []string{participants[i%2]}})
		}
	}
	return order
}

func NewState(rules domain.DraftRules, participants [2]string) State {
	return State{
		Order:           BuildOrder(rules, participants),
		StepPicks:       map[string]string{},
		Picks:           map[string][]string{participants[0]: nil, participants[1]: nil},
		Participants:    participants,
		AllowDuplicates: rules.AllowDuplicates,
	}
}

func Apply(s State, cmd Command) ([]Event, State, error) {
	if Done(s) {
		return nil, s, ErrDraftCompleted
	}
	if cmd.ParticipantID != s.Participants[0] && cmd.ParticipantID != s.Participants[1] {
		return nil, s, ErrUnknownParticipant
	}
	if cmd.UnitID == "" {
		return nil, s, ErrInvalidUnit
	}

	step := s.Order[s.Cursor]
	if !slices.Contains(step.Pickers, cmd.ParticipantID) {
		return nil, s, ErrWrongTurn
	}
	if _, picked := s.StepPicks[cmd.ParticipantID]; picked {
		return nil, s, ErrWrongTurn
	}
	if !canPick(s, cmd.ParticipantID, cmd.UnitID) {
		return nil, s, ErrDuplicateUnit
	}

	next := s.clone()
	next.Picks[cmd.ParticipantID] = append(next.Picks[cmd.ParticipantID], cmd.UnitID)
	next.StepPicks[cmd.ParticipantID] = cmd.UnitID
	events := []Event{{Type: EvtUnitPicked, ParticipantID: cmd.ParticipantID, UnitID: cmd.UnitID}}

	if len(next.StepPicks) == len(step.Pickers) {
		next.Cursor++
		next.StepPicks = map[string]string{}
		events = append(events, Event{Type: EvtTurnAdvanced})
		if Done(next) {
			events = append(events, Event{Type: EvtDraftCompleted})
		}
	}
	return events, next, nil
}

// Reduce replays picks in order, as reported by the server on resync.
func Reduce(rules domain.DraftRules, participants [2]string, picks []domain.DraftPick) (State, error) {
	s := NewState(rules, participants)
	for _, p := range picks {
		var err error
		_, s, err = Apply(s, Command{ParticipantID: p.ParticipantID, UnitID: p.UnitID})
		if err != nil {
			return s, err
		}
	}
	return s, nil
}

func Done(s State) bool {
	return s.Cursor >= len(s.Order)
}

// ExpectedPickers returns who may still pick in the current step.
func ExpectedPickers(s State) []string {
	if Done(s) {
		return nil
	}
	var out []string
	for _, p := range s.Order[s.Cursor].Pickers {
		if _, picked := s.StepPicks[p]; !picked {
			out = append(out, p)
		}
	}
	return out
}

func hasPick(s State, unitID string) bool {
	for _, picks := range s.Picks {
		if slices.Contains(picks, unitID) {
			return true
		}
	}
	return false
}

func canPick(s State, participantID, unitID string) bool {
	if slices.Contains(s.Picks[participantID], unitID) {
		return false
	}
	if s.AllowDuplicates {
		return true
	}
	return !hasPick(s, unitID)
}

func (s State) clone() State {
	next := s
	next.StepPicks = make(map[string]string, len(s.StepPicks))
	for k, v := range s.StepPicks {
		next.StepPicks[k] = v
	}
	next.Picks = make(map[string][]string, len(s.Picks))
	for k, v := range s.Picks {
		next.Picks[k] = slices.Clone(v)
	}
	return next
}
