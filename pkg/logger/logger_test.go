package logger

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParsesLevel(t *testing.T) {
	New(Config{Level: "debug"})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	New(Config{Level: "WARN"})
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	New(Config{Level: "loud"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	New(Config{})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestNewWritesJSONToWriter(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Writer: &buf})

	log.Info().Str("k", "v").Msg("hello")

	line := buf.String()
	require.NotEmpty(t, line)
	assert.Contains(t, line, `"k":"v"`)
	assert.Contains(t, line, `"message":"hello"`)
}

func TestNewPrettyUsesTimeFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Pretty: true, TimeFormat: "2006", Writer: &buf})

	log.Info().Msg("pretty line")

	line := buf.String()
	require.NotEmpty(t, line)
	// The formatted timestamp is a bare year under the 2006 layout.
	assert.Contains(t, line, "pretty line")
	assert.NotContains(t, line, `"message"`, "pretty output must not be JSON")
	assert.True(t, strings.Contains(line, time.Now().Format("2006")), "got %q", line)
}
