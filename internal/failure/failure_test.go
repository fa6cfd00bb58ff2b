package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name      string
		err       error
		kind      Kind
		retryable bool
		visible   bool
	}{
		{"network", Network("getMatchStatus", cause), KindNetwork, true, false},
		{"validation", Validation("getRoundState", cause), KindValidation, false, true},
		{"conflict", Conflict("joinSeason", cause), KindConflict, false, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("failed to call: %w", tc.err)
			kind, ok := KindOf(wrapped)
			assert.True(t, ok)
			assert.Equal(t, tc.kind, kind)
			assert.Equal(t, tc.retryable, Retryable(wrapped))
			assert.Equal(t, tc.visible, Visible(wrapped))
			assert.ErrorIs(t, wrapped, cause)
		})
	}
}

func TestUnclassified(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, Retryable(errors.New("plain")))
	assert.False(t, errors.Is(Network("op", nil), ErrConflict))
}
