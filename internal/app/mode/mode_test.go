package mode

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepeat_Cycle(t *testing.T) {
	r := RepeatNone
	var seen []string
	for i := 0; i < 4; i++ {
		r = r.Next()
		seen = append(seen, r.String())
	}
	assert.Equal(t, []string{"all", "one", "none", "all"}, seen)
}

func TestParseRepeat(t *testing.T) {
	tests := []struct {
		in      string
		want    Repeat
		wantErr bool
	}{
		{"none", RepeatNone, false},
		{"all", RepeatAll, false},
		{"one", RepeatOne, false},
		{"", RepeatNone, false},
		{"twice", RepeatNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRepeat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestState_SetVolume(t *testing.T) {
	tests := []struct {
		name        string
		muted       bool
		volume      float64
		wantVolume  float64
		wantMuted   bool
		wantUnmuted bool
	}{
		{"plain change", false, 0.4, 0.4, false, false},
		{"clamps above one", false, 1.7, 1, false, false},
		{"clamps below zero", false, -0.2, 0, false, false},
		{"positive volume unmutes", true, 0.3, 0.3, false, true},
		{"zero volume keeps mute", true, 0, 0, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.Muted = tt.muted
			unmuted := s.SetVolume(tt.volume)
			assert.Equal(t, tt.wantVolume, s.Volume)
			assert.Equal(t, tt.wantMuted, s.Muted)
			assert.Equal(t, tt.wantUnmuted, unmuted)
		})
	}
}

func TestState_Toggles(t *testing.T) {
	s := New()
	assert.Equal(t, 100, s.PlayerVolume())

	assert.True(t, s.ToggleMute())
	assert.False(t, s.ToggleMute())
	assert.True(t, s.ToggleShuffle())
	assert.Equal(t, RepeatAll, s.CycleRepeat())
}

func TestState_JSON(t *testing.T) {
	s := State{Shuffle: true, Repeat: RepeatOne, Volume: 0.5, Muted: true}
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"shuffle":true,"repeat":"one","volume":0.5,"muted":true}`, string(data))

	var decoded State
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, s, decoded)
}
