// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config mirrors the logging section of the server configuration.
type Config struct {
	// Level accepts zerolog level names plus "warning". Unknown names log at info.
	Level string
	// Format is "json" (default) or "console" for local development.
	Format string
	// Caller adds file:line to every entry.
	Caller bool
	// Timestamp adds an RFC3339Nano "time" field.
	Timestamp bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

var global atomic.Pointer[zerolog.Logger]

//nolint:gochecknoinits // package-level helpers log before main calls Init
func init() {
	Init(Config{Timestamp: true})
}

// Init rebuilds the global logger from cfg and sets zerolog's global level.
// Calling it again replaces the previous logger.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "time"
	zerolog.MessageFieldName = "message"

	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}

	c := zerolog.New(out).With()
	if cfg.Timestamp {
		c = c.Timestamp()
	}
	if cfg.Caller {
		c = c.Caller()
	}
	l := c.Logger()
	global.Store(&l)
}

func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		return zerolog.WarnLevel
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Logger returns a copy of the global logger.
func Logger() zerolog.Logger {
	return *global.Load()
}

// SetLogger replaces the global logger without touching the global level.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func SetLogger(l zerolog.Logger) {
	global.Store(&l)
}

// With starts a child logger context from the global logger.
func With() zerolog.Context { return global.Load().With() }

// Debug starts a debug-level event on the global logger.
func Debug() *zerolog.Event { return global.Load().Debug() }

// Info starts an info-level event on the global logger.
func Info() *zerolog.Event { return global.Load().Info() }

// Warn starts a warn-level event on the global logger.
func Warn() *zerolog.Event { return global.Load().Warn() }

// Error starts an error-level event on the global logger.
func Error() *zerolog.Event { return global.Load().Error() }

// Fatal starts a fatal-level event; os.Exit(1) follows the write.
func Fatal() *zerolog.Event { return global.Load().Fatal() }

// Err starts an error-level event carrying err, or info when err is nil.
func Err(err error) *zerolog.Event { return global.Load().Err(err) }

// WithComponent returns a logger tagged with a component name.
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}

// WithConnection returns a logger tagged with a socket's identity. Empty
// user or session IDs are omitted.
func WithConnection(connID, userID, sessionID string) zerolog.Logger {
	c := With().Str("component", "socket").Str("conn_id", connID)
	if userID != "" {
		c = c.Str("user_id", userID)
	}
	if sessionID != "" {
		c = c.Str("session_id", sessionID)
	}
	return c.Logger()
}
