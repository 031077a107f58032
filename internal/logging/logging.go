// Package logging provides structured logging setup using log/slog.
//
// Levels are given as strings (error, warn, info, debug) and output is
// either logfmt text or JSON. When a file is configured, output goes to a
// size-rotated file instead of stderr.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures NewLogger.
type Options struct {
	// Level is error, warn, info or debug. Invalid levels mean info.
	Level string

	// Format is text or json. Anything else means text.
	Format string

	// File, when set, receives the logs and is rotated at MaxSizeMB.
	File       string
	MaxSizeMB  int
	MaxBackups int

	// Writer receives the logs when File is empty. Defaults to os.Stderr.
	Writer io.Writer
}

// NewLogger creates a logger from opts. The returned closer releases the
// log file and must be called on shutdown; it is a no-op without one.
func NewLogger(opts Options) (*slog.Logger, io.Closer) {
	var (
		w      io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	switch {
	case opts.File != "":
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		w, closer = rotating, rotating
	case opts.Writer != nil:
		w = opts.Writer
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	return slog.New(handler), closer
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for invalid or empty levels.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "ERROR":
		return slog.LevelError
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "INFO":
		return slog.LevelInfo
	case "DEBUG":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
