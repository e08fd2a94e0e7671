// Package logging configures the process-wide zerolog logger and hands out
// component-scoped children.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EnvLevel overrides the configured level when set.
const EnvLevel = "REDGREEN_LOG_LEVEL"

// Config controls the base logger.
type Config struct {
	Level  string    // debug, info, warn, error; empty means info
	Format string    // "json" or "console"; empty means console
	Output io.Writer // defaults to os.Stderr
}

var (
	mu   sync.RWMutex
	base = zerolog.Nop()
)

// Init replaces the base logger. Components created before Init keep the
// logger they were given.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !strings.EqualFold(cfg.Format, "json") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	level := cfg.Level
	if env := os.Getenv(EnvLevel); env != "" {
		level = env
	}

	l := zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Logger()

	mu.Lock()
	base = l
	mu.Unlock()
}

// ParseLevel maps a level name to a zerolog level, falling back to info.
func ParseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Logger returns the base logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Component returns a child of the base logger tagged with name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}
