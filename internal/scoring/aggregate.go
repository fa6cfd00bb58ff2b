package scoring

import (
	"battle-arena/internal/domain"
	"sort"
)

type Result struct {
	Totals              map[string]int
	WinnerParticipantID *string
}

// Aggregate sums points per participant over completed rounds only. A strict
// maximum wins; equal top totals leave the winner nil.
func Aggregate(rounds []domain.Round) Result {
	totals := make(map[string]int)
	for _, r := range rounds {
		for _, p := range r.Participants {
			if _, ok := totals[p.MatchParticipantID]; !ok {
				totals[p.MatchParticipantID] = 0
			}
			if r.Status != domain.RoundCompleted {
				continue
			}
			totals[p.MatchParticipantID] += p.PointsEarned
		}
	}

	return Result{Totals: totals, WinnerParticipantID: leader(totals)}
}

func leader(totals map[string]int) *string {
	ids := make([]string, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var best string
	bestScore, tied := 0, false
	for i, id := range ids {
		score := totals[id]
		switch {
		case i == 0 || score > bestScore:
			best, bestScore, tied = id, score, false
		case score == bestScore:
			tied = true
		}
	}
	if best == "" || tied {
		return nil
	}
	return &best
}

// Finalize applies a result to the match record. The winner is only set once
// the match is COMPLETED.
func Finalize(m *domain.Match, res Result) {
	if m.Status != domain.MatchCompleted {
		m.WinnerParticipantID = nil
		return
	}
	m.WinnerParticipantID = res.WinnerParticipantID
}

// TotalFor returns the participant's total, zero when absent.
func (r Result) TotalFor(participantID string) int {
	return r.Totals[participantID]
}
