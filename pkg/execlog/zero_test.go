package execlog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewZeroLogger_JSON(t *testing.T) {
	var buf bytes.Buffer

	logger := NewZeroLogger("", "info", false)
	l := logger.Output(&buf)
	l.Info().Msg("test message")

	out := buf.String()

	if !strings.Contains(out, `"level":"info"`) {
		t.Fatalf("expected JSON output with level field, got: %s", out)
	}
	if !strings.Contains(out, `"message":"test message"`) {
		t.Fatalf("expected JSON output with message field, got: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	for _, tt := range []struct {
		in  string
		exp zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"bogus", zerolog.InfoLevel},
	} {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.exp, parseLevel(tt.in))
		})
	}
}

func TestLoggerToFile(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "exec.log")

	logger := NewZeroLogger(path, "debug", false)
	logger.Debug().Str("node", "filter").Msg("executing")

	data, err := os.ReadFile(path)
	assert.NoError(err)
	assert.Contains(string(data), `"node":"filter"`)
}
