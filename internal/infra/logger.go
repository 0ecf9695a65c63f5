package infra

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// NewLogger constructs a zerolog.Logger with sane defaults for the service.
// Development builds and interactive terminals get the human-readable console
// writer; everything else logs JSON lines.
func NewLogger(appEnv string) zerolog.Logger {
	return newLogger(appEnv, os.Stdout, isTerminal(os.Stdout))
}

func newLogger(appEnv string, out io.Writer, tty bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()

	if appEnv == "development" || tty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: !tty})
	}

	return logger
}

// NopLogger returns a logger that discards everything, for optional wiring.
func NopLogger() *Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Logger aliases the zerolog.Logger so callers outside the infra package can
// depend on the logging contract without importing the third-party module
// directly.
type Logger = zerolog.Logger
