package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ServiceName tags every log line.
const ServiceName = "exstem-rewards"

// Setup sets the global level and returns the pipeline logger.
// format "pretty" (or "console") writes human-readable lines; anything else
// writes JSON. An unknown level falls back to info.
func Setup(level, format string) zerolog.Logger {
	var writer io.Writer

	if format == "pretty" || format == "console" {
		writer = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	} else {
		writer = os.Stdout
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(writer).
		With().
		Timestamp().
		Str("service", ServiceName).
		Caller().
		Logger()
}

// CronLogger adapts a zerolog.Logger to robfig/cron's Logger interface.
type CronLogger struct {
	Log zerolog.Logger
}

// Info logs routine scheduler events at debug level; cron is chatty.
func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Log.Debug().Fields(keysAndValues).Msg(msg)
}

// Error logs scheduler errors, including recovered panics.
func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
