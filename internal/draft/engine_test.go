package draft

import (
	"battle-arena/internal/domain"
	"errors"
	"testing"
)

var pair = [2]string{"A", "B"}

func pickers(order []TurnStep) [][]string {
	out := make([][]string, len(order))
	for i, step := range order {
		out[i] = step.Pickers
	}
	return out
}

func TestBuildOrder(t *testing.T) {
	tests := []struct {
		name  string
		rules domain.DraftRules
		want  [][]string
	}{
		{"alternating", domain.DraftRules{Mode: domain.PickAlternating, PicksPerParticipant: 2}, [][]string{{"A"}, {"B"}, {"A"}, {"B"}}},
		{"snake", domain.DraftRules{Mode: domain.PickSnake, PicksPerParticipant: 3}, [][]string{{"A"}, {"B"}, {"B"}, {"A"}, {"A"}, {"B"}}},
		{"simultaneous", domain.DraftRules{Mode: domain.PickSimultaneous, PicksPerParticipant: 2}, [][]string{{"A", "B"}, {"A", "B"}}},
		{"defaults to one alternating pick", domain.DraftRules{}, [][]string{{"A"}, {"B"}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := pickers(BuildOrder(tc.rules, pair))
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if len(got[i]) != len(tc.want[i]) {
					t.Fatalf("step %d: got %v, want %v", i, got[i], tc.want[i])
				}
				for j := range got[i] {
					if got[i][j] != tc.want[i][j] {
						t.Fatalf("step %d: got %v, want %v", i, got[i], tc.want[i])
					}
				}
			}
		})
	}
}

func TestApplyAlternating(t *testing.T) {
	s := NewState(domain.DraftRules{Mode: domain.PickAlternating, PicksPerParticipant: 1}, pair)

	if _, _, err := Apply(s, Command{ParticipantID: "B", UnitID: "u1"}); !errors.Is(err, ErrWrongTurn) {
		t.Fatalf("expected ErrWrongTurn, got %v", err)
	}

	events, s, err := Apply(s, Command{ParticipantID: "A", UnitID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 || events[0].Type != EvtUnitPicked || events[1].Type != EvtTurnAdvanced {
		t.Fatalf("unexpected events %+v", events)
	}

	if _, _, err := Apply(s, Command{ParticipantID: "B", UnitID: "u1"}); !errors.Is(err, ErrDuplicateUnit) {
		t.Fatalf("expected ErrDuplicateUnit, got %v", err)
	}

	events, s, err = Apply(s, Command{ParticipantID: "B", UnitID: "u2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if events[len(events)-1].Type != EvtDraftCompleted {
		t.Fatalf("expected completion, got %+v", events)
	}
	if !Done(s) {
		t.Fatal("draft should be done")
	}

	if _, _, err := Apply(s, Command{ParticipantID: "A", UnitID: "u3"}); !errors.Is(err, ErrDraftCompleted) {
		t.Fatalf("expected ErrDraftCompleted, got %v", err)
	}
}

func TestApplyAllowsOpponentDuplicateWhenRulesPermit(t *testing.T) {
	s := NewState(domain.DraftRules{Mode: domain.PickAlternating, PicksPerParticipant: 2, AllowDuplicates: true}, pair)
	_, s, _ = Apply(s, Command{ParticipantID: "A", UnitID: "u1"})

	_, s, err := Apply(s, Command{ParticipantID: "B", UnitID: "u1"})
	if err != nil {
		t.Fatalf("duplicate across sides should be allowed: %v", err)
	}
	if _, _, err := Apply(s, Command{ParticipantID: "A", UnitID: "u1"}); !errors.Is(err, ErrDuplicateUnit) {
		t.Fatalf("same side repeat should fail, got %v", err)
	}
}

func TestApplySimultaneousStep(t *testing.T) {
	s := NewState(domain.DraftRules{Mode: domain.PickSimultaneous, PicksPerParticipant: 1}, pair)

	_, s, err := Apply(s, Command{ParticipantID: "B", UnitID: "u2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ExpectedPickers(s); len(got) != 1 || got[0] != "A" {
		t.Fatalf("expected only A to pick, got %v", got)
	}
	if _, _, err := Apply(s, Command{ParticipantID: "B", UnitID: "u3"}); !errors.Is(err, ErrWrongTurn) {
		t.Fatalf("expected ErrWrongTurn, got %v", err)
	}

	_, s, err = Apply(s, Command{ParticipantID: "A", UnitID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Done(s) {
		t.Fatal("draft should be done")
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	s := NewState(domain.DraftRules{Mode: domain.PickAlternating, PicksPerParticipant: 1}, pair)
	_, next, err := Apply(s, Command{ParticipantID: "A", UnitID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Picks["A"]) != 0 || s.Cursor != 0 {
		t.Fatalf("input state mutated: %+v", s)
	}
	if len(next.Picks["A"]) != 1 {
		t.Fatalf("next state missing pick: %+v", next)
	}
}

func TestApplyRejectsUnknownInput(t *testing.T) {
	s := NewState(domain.DraftRules{}, pair)
	if _, _, err := Apply(s, Command{ParticipantID: "Z", UnitID: "u1"}); !errors.Is(err, ErrUnknownParticipant) {
		t.Fatalf("expected ErrUnknownParticipant, got %v", err)
	}
	if _, _, err := Apply(s, Command{ParticipantID: "A"}); !errors.Is(err, ErrInvalidUnit) {
		t.Fatalf("expected ErrInvalidUnit, got %v", err)
	}
}

func TestReduce(t *testing.T) {
	rules := domain.DraftRules{Mode: domain.PickSnake, PicksPerParticipant: 2}
	s, err := Reduce(rules, pair, []domain.DraftPick{
		{ParticipantID: "A", UnitID: "u1"},
		{ParticipantID: "B", UnitID: "u2"},
		{ParticipantID: "B", UnitID: "u3"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Cursor != 3 {
		t.Fatalf("cursor = %d, want 3", s.Cursor)
	}
	if got := ExpectedPickers(s); len(got) != 1 || got[0] != "A" {
		t.Fatalf("expected A next, got %v", got)
	}

	if _, err := Reduce(rules, pair, []domain.DraftPick{{ParticipantID: "B", UnitID: "u1"}}); !errors.Is(err, ErrWrongTurn) {
		t.Fatalf("expected ErrWrongTurn, got %v", err)
	}
}
