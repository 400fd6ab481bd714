package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":         zerolog.InfoLevel,
		"debug":    zerolog.DebugLevel,
		"WARN":     zerolog.WarnLevel,
		"Error":    zerolog.ErrorLevel,
		"DISABLED": zerolog.Disabled,
	}
	for name, want := range tests {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{AppName: "fid", Level: "info", JSON: true, Out: &buf}))
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	log.Debug().Msg("hidden")
	log.Info().Int("iteration", 1000).Msg("scored")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &event))
	assert.Equal(t, "scored", event["message"])
	assert.Equal(t, "fid", event["app"])
	assert.Equal(t, RunID(), event["run_id"])
	assert.EqualValues(t, 1000, event["iteration"])
	assert.NotEmpty(t, RunID())
}

func TestInitKeepsRunID(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: "warn", Out: &buf}))
	first := RunID()
	require.NoError(t, Init(Options{Level: "warn", Out: &buf}))
	assert.Equal(t, first, RunID())

	assert.Error(t, Init(Options{Level: "loud"}))
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
}
