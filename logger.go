package netloop

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Logger is the injectable leveled logger used throughout the library.
// Hosts that want their own formatting can supply any implementation via
// SetLogger; the default wraps zerolog the same way the reference sessions
// and event loops do.
type Logger interface {
	Tracef(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Level mirrors the four levels called out in the external-interfaces
// contract: TRACE, INFO, WARNING, ERROR.
type Level int

const (
	LevelTrace Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

type zerologLogger struct {
	log zerolog.Logger
}

func (z *zerologLogger) Tracef(format string, args ...any) { z.log.Trace().Msgf(format, args...) }
func (z *zerologLogger) Infof(format string, args ...any)  { z.log.Info().Msgf(format, args...) }
func (z *zerologLogger) Warnf(format string, args ...any)  { z.log.Warn().Msgf(format, args...) }
func (z *zerologLogger) Errorf(format string, args ...any) { z.log.Error().Msgf(format, args...) }

func newDefaultLogger() Logger {
	return &zerologLogger{log: zerolog.New(os.Stderr).With().Timestamp().Logger()}
}

var defaultLogger atomic.Value // Logger

func init() {
	defaultLogger.Store(newDefaultLogger())
}

// SetLogger installs the process-wide default logger. Call before any
// EventLoop starts running, per the external-interfaces contract: minimum
// level (and now implementation) is process-wide and fixed before loop
// start.
func SetLogger(l Logger) {
	if l == nil {
		l = newDefaultLogger()
	}
	defaultLogger.Store(l)
}

// SetLevel sets the process-wide minimum log level for the default
// zerolog-backed logger. Has no effect if a custom Logger was installed
// with SetLogger.
func SetLevel(lvl Level) {
	switch lvl {
	case LevelTrace:
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case LevelInfo:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case LevelWarning:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case LevelError:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}
}

func logger() Logger {
	return defaultLogger.Load().(Logger)
}

// ParseLevel maps a config-file level string to a Level, defaulting to
// LevelInfo for anything unrecognised.
func ParseLevel(s string) Level {
	switch s {
	case "trace":
		return LevelTrace
	case "warning", "warn":
		return LevelWarning
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}
