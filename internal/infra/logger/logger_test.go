package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
		wantErr  bool
	}{
		{input: "", expected: zerolog.InfoLevel},
		{input: "debug", expected: zerolog.DebugLevel},
		{input: "INFO", expected: zerolog.InfoLevel},
		{input: "warning", expected: zerolog.WarnLevel},
		{input: "error", expected: zerolog.ErrorLevel},
		{input: "verbose", expected: zerolog.InfoLevel, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, Config{Output: "file.log", Level: "warn"})
	require.NoError(t, err)

	l.Info().Msg("dropped")
	l.Warn().Str("track", "v1").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "v1", entry["track"])
	assert.Contains(t, entry, "time")
	assert.NotContains(t, entry, "caller")
}

func TestNew_DebugAddsCaller(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, Config{Level: "debug", Format: FormatJSON})
	require.NoError(t, err)

	l.Debug().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Contains(t, entry["caller"], "logger/logger_test.go:")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, Config{Output: "app.log", Format: "console"})
	require.NoError(t, err)

	l.Info().Msg("console line")

	assert.Contains(t, buf.String(), "console line")
	assert.False(t, json.Valid(buf.Bytes()))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Config{Format: "xml"})
	assert.Error(t, err)

	_, err = New(&bytes.Buffer{}, Config{Level: "loud"})
	assert.Error(t, err)
}

func TestInit_File(t *testing.T) {
	saved := zlog.Logger
	savedLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		zlog.Logger = saved
		zerolog.SetGlobalLevel(savedLevel)
	})

	path := filepath.Join(t.TempDir(), "logs", "server.log")
	require.NoError(t, Init(Config{Output: path, Level: "info"}))

	zlog.Info().Msg("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "to file", entry["message"])
}
