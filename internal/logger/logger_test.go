package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"bogus":   zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "debug")
	t.Cleanup(func() { InitWriter(&bytes.Buffer{}, "info") })

	WithComponent("vaapi").Info().Str("profile", "H264Main").Msg("created config")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "vaapi", entry["component"])
	assert.Equal(t, "H264Main", entry["profile"])
	assert.Equal(t, "created config", entry["message"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "warn")
	t.Cleanup(func() { InitWriter(&bytes.Buffer{}, "info") })

	WithComponent("loader").Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	WithComponent("loader").Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
