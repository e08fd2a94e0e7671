package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponent_JSON(t *testing.T) {
	t.Setenv(EnvLevel, "")
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(Config{Output: &bytes.Buffer{}}) })

	l := Component("runner")
	l.Debug().Str("run_id", "abc").Msg("run finished")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "runner", entry["component"])
	assert.Equal(t, "abc", entry["run_id"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "run finished", entry["message"])
}

func TestInit_LevelFilters(t *testing.T) {
	t.Setenv(EnvLevel, "")
	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(Config{Output: &bytes.Buffer{}}) })

	l := Component("x")
	l.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	l.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestInit_EnvOverridesLevel(t *testing.T) {
	t.Setenv(EnvLevel, "error")
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(Config{Output: &bytes.Buffer{}}) })

	l := Component("x")
	l.Warn().Msg("hidden")
	assert.Zero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}
