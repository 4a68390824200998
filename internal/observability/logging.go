package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// NewLogger returns a structured JSON logger on stdout tagged with the
// component name. The level comes from WCISIM_LOG_LEVEL (debug, info, warn,
// error); unset or unrecognized means info.
func NewLogger(component string) zerolog.Logger {
	return NewLoggerWithLevel(component, levelFromEnv())
}

func NewLoggerWithLevel(component string, level zerolog.Level) zerolog.Logger {
	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

func levelFromEnv() zerolog.Level {
	lvl, err := zerolog.ParseLevel(os.Getenv("WCISIM_LOG_LEVEL"))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
