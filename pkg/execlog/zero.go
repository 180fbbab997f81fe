package execlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var Zero = NewZeroLogger("", "info", true)

// NewZeroLogger builds a logger writing to filepath (stdout when empty).
// Pretty output uses the console writer, otherwise records are JSON.
func NewZeroLogger(filepath string, level string, pretty bool) *zerolog.Logger {
	_, writer, err := newWriter(filepath)
	if err != nil {
		writer = os.Stdout
	}
	if pretty {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(writer).With().Timestamp().Logger().Level(parseLevel(level))

	return &logger
}

func UpdateZeroLogLevel(logLevel string) error {
	level := parseLevel(logLevel)
	zeroLogger := Zero.With().Logger().Level(level)
	Zero = &zeroLogger
	return nil
}

// ReloadLogger swaps the global logger for one writing to filepath.
func ReloadLogger(filepath string, level string, pretty bool) {
	Zero = NewZeroLogger(filepath, level, pretty)
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// newWriter opens filepath for appending. An empty path means stdout.
func newWriter(filepath string) (*os.File, io.Writer, error) {
	if filepath == "" {
		return nil, os.Stdout, nil
	}
	f, err := os.OpenFile(filepath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}
