package scoring

import (
	"battle-arena/internal/domain"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func round(n domain.RoundNumber, status domain.RoundStatus, a, b int) domain.Round {
	return domain.Round{
		Number: n,
		Status: status,
		Participants: []domain.RoundParticipant{
			{MatchParticipantID: "A", PointsEarned: a},
			{MatchParticipantID: "B", PointsEarned: b},
		},
	}
}

func TestAggregateWorkedExample(t *testing.T) {
	res := Aggregate([]domain.Round{
		round(domain.RoundOne, domain.RoundCompleted, 10, 8),
		round(domain.RoundTwo, domain.RoundCompleted, 7, 12),
		round(domain.RoundThree, domain.RoundCompleted, 9, 9),
	})

	assert.Equal(t, 26, res.TotalFor("A"))
	assert.Equal(t, 29, res.TotalFor("B"))
	require.NotNil(t, res.WinnerParticipantID)
	assert.Equal(t, "B", *res.WinnerParticipantID)
}

func TestAggregateTieHasNoWinner(t *testing.T) {
	res := Aggregate([]domain.Round{
		round(domain.RoundOne, domain.RoundCompleted, 10, 8),
		round(domain.RoundTwo, domain.RoundCompleted, 8, 10),
	})
	assert.Equal(t, 18, res.TotalFor("A"))
	assert.Equal(t, 18, res.TotalFor("B"))
	assert.Nil(t, res.WinnerParticipantID)
}

func TestAggregateIgnoresIncompleteRounds(t *testing.T) {
	tests := []struct {
		name   string
		status domain.RoundStatus
	}{
		{"pending", domain.RoundPending},
		{"selecting", domain.RoundSelecting},
		{"selected", domain.RoundSelected},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Aggregate([]domain.Round{
				round(domain.RoundOne, domain.RoundCompleted, 3, 5),
				round(domain.RoundTwo, tc.status, 100, 0),
			})
			assert.Equal(t, 3, res.TotalFor("A"))
			assert.Equal(t, 5, res.TotalFor("B"))
			require.NotNil(t, res.WinnerParticipantID)
			assert.Equal(t, "B", *res.WinnerParticipantID)
		})
	}
}

func TestAggregateSumsMatchPerParticipantPoints(t *testing.T) {
	rounds := []domain.Round{
		round(domain.RoundOne, domain.RoundCompleted, 4, 0),
		round(domain.RoundTwo, domain.RoundCompleted, 0, 0),
		round(domain.RoundThree, domain.RoundCompleted, 11, 6),
	}
	res := Aggregate(rounds)

	for _, id := range []string{"A", "B"} {
		sum := 0
		for _, r := range rounds {
			sum += r.Participant(id).PointsEarned
		}
		assert.Equal(t, sum, res.TotalFor(id), id)
	}
}

func TestAggregateNoRounds(t *testing.T) {
	res := Aggregate(nil)
	assert.Empty(t, res.Totals)
	assert.Nil(t, res.WinnerParticipantID)
}

func TestFinalizeOnlySetsWinnerWhenCompleted(t *testing.T) {
	winner := "A"
	res := Result{Totals: map[string]int{"A": 2, "B": 1}, WinnerParticipantID: &winner}

	m := domain.Match{Status: domain.MatchInProgress}
	Finalize(&m, res)
	assert.Nil(t, m.WinnerParticipantID)

	m.Status = domain.MatchCompleted
	Finalize(&m, res)
	require.NotNil(t, m.WinnerParticipantID)
	assert.Equal(t, "A", *m.WinnerParticipantID)
}
