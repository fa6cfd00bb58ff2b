package service

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultSessions(t *testing.T) {
	sessions := NewResultSessions(zerolog.Nop())
	winner := "pb"

	handle, err := sessions.Create(ResultView{SelfParticipantID: "pa", WinnerParticipantID: &winner})
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	other, err := sessions.Create(ResultView{SelfParticipantID: "pa"})
	require.NoError(t, err)
	assert.NotEqual(t, handle, other)
	assert.Equal(t, 2, sessions.Len())

	view, err := sessions.Get(handle)
	require.NoError(t, err)
	assert.Equal(t, handle, view.Handle)
	assert.Equal(t, "LOSS", view.Outcome())

	require.NoError(t, sessions.Acknowledge(handle))
	_, err = sessions.Get(handle)
	require.ErrorIs(t, err, ErrUnknownResult)
	require.ErrorIs(t, sessions.Acknowledge(handle), ErrUnknownResult)
	assert.Equal(t, 1, sessions.Len())
}

func TestResultOutcome(t *testing.T) {
	self := "pa"
	assert.Equal(t, "WIN", ResultView{SelfParticipantID: "pa", WinnerParticipantID: &self}.Outcome())
	assert.Equal(t, "DRAW", ResultView{SelfParticipantID: "pa"}.Outcome())
}
