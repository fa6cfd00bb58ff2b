package domain

import (
	"errors"
	"fmt"
)

var (
	ErrParticipantCount = errors.New("match must have exactly 2 participants")
	ErrRoundNumber      = errors.New("round number out of range")
	ErrUnknownStatus    = errors.New("unknown status")
	ErrNegativePoints   = errors.New("points earned must not be negative")
)

type MatchStatus string

const (
	MatchPending    MatchStatus = "PENDING"
	MatchAccepted   MatchStatus = "ACCEPTED"
	MatchDrafting   MatchStatus = "DRAFTING"
	MatchInProgress MatchStatus = "IN_PROGRESS"
	MatchCompleted  MatchStatus = "COMPLETED"
	MatchCancelled  MatchStatus = "CANCELLED"
)

func (s MatchStatus) Valid() bool {
	switch s {
	case MatchPending, MatchAccepted, MatchDrafting, MatchInProgress, MatchCompleted, MatchCancelled:
		return true
	}
	return false
}

func (s MatchStatus) Terminal() bool {
	return s == MatchCompleted || s == MatchCancelled
}

type RoundNumber int

const (
	RoundOne   RoundNumber = 1
	RoundTwo   RoundNumber = 2
	RoundThree RoundNumber = 3

	RoundsPerMatch = 3
)

func (n RoundNumber) Valid() bool {
	return n >= RoundOne && n <= RoundThree
}

type RoundStatus string

const (
	RoundPending   RoundStatus = "PENDING"
	RoundSelecting RoundStatus = "SELECTING"
	RoundSelected  RoundStatus = "SELECTED"
	RoundCompleted RoundStatus = "COMPLETED"
)

var roundStatusOrder = map[RoundStatus]int{
	RoundPending:   0,
	RoundSelecting: 1,
	RoundSelected:  2,
	RoundCompleted: 3,
}

func (s RoundStatus) Valid() bool {
	_, ok := roundStatusOrder[s]
	return ok
}

// Before reports whether s comes strictly earlier than other in the round lifecycle.
func (s RoundStatus) Before(other RoundStatus) bool {
	return roundStatusOrder[s] < roundStatusOrder[other]
}

type PickMode string

const (
	PickAlternating  PickMode = "ALTERNATING"
	PickSnake        PickMode = "SNAKE"
	PickSimultaneous PickMode = "SIMULTANEOUS"
)

func (m PickMode) Valid() bool {
	switch m {
	case PickAlternating, PickSnake, PickSimultaneous:
		return true
	}
	return false
}

type RankTier string

const (
	TierN5 RankTier = "N5"
	TierN4 RankTier = "N4"
	TierN3 RankTier = "N3"
	TierN2 RankTier = "N2"
	TierN1 RankTier = "N1"
)

type RankClassification string

const (
	RankUp       RankClassification = "RANK_UP"
	RankDown     RankClassification = "RANK_DOWN"
	RankMaintain RankClassification = "RANK_MAINTAIN"
)

func (m *Match) Validate() error {
	if m.ID == "" {
		return errors.New("match id is empty")
	}
	if !m.Status.Valid() {
		return fmt.Errorf("%w: match status %q", ErrUnknownStatus, m.Status)
	}
	if len(m.Participants) != 2 {
		return fmt.Errorf("%w: got %d", ErrParticipantCount, len(m.Participants))
	}
	if m.Participants[0].ID == "" || m.Participants[0].ID == m.Participants[1].ID {
		return errors.New("match participants must have distinct ids")
	}
	if m.Draft.Mode != "" && !m.Draft.Mode.Valid() {
		return fmt.Errorf("%w: pick mode %q", ErrUnknownStatus, m.Draft.Mode)
	}
	return nil
}

// Validate checks a round against the match it belongs to.
func (r *Round) Validate(m *Match) error {
	if !r.Number.Valid() {
		return fmt.Errorf("%w: %d", ErrRoundNumber, r.Number)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: round status %q", ErrUnknownStatus, r.Status)
	}
	if len(r.Participants) != 2 {
		return fmt.Errorf("round %d: %w", r.Number, ErrParticipantCount)
	}
	seen := map[string]bool{}
	for _, p := range r.Participants {
		if p.PointsEarned < 0 {
			return fmt.Errorf("round %d: %w", r.Number, ErrNegativePoints)
		}
		if m != nil {
			if _, ok := m.Participant(p.MatchParticipantID); !ok {
				return fmt.Errorf("round %d: unknown participant %q", r.Number, p.MatchParticipantID)
			}
		}
		if seen[p.MatchParticipantID] {
			return fmt.Errorf("round %d: duplicate participant %q", r.Number, p.MatchParticipantID)
		}
		seen[p.MatchParticipantID] = true
	}
	return nil
}
