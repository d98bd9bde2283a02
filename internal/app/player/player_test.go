package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateUnstarted, "unstarted"},
		{StateEnded, "ended"},
		{StatePlaying, "playing"},
		{StatePaused, "paused"},
		{StateBuffering, "buffering"},
		{StateCued, "cued"},
		{State(4), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "video not found", ErrVideoNotFound.String())
	assert.Equal(t, "embedding not allowed", ErrEmbedNotAllowed.String())
	assert.Equal(t, "embedding not allowed", ErrEmbedNotAllowedAlt.String())
	assert.Equal(t, "unknown player error", ErrorCode(999).String())
}
