// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides the leveled, key-value logger used throughout
// the harness (logger.Info("msg", "k", v)), backed by log/slog and
// fanning out to stderr and the run's human log file simultaneously.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with the call shape the rest of the harness
// uses: leveled methods taking a message and alternating key/value pairs.
type Logger struct {
	slog *slog.Logger
	file *os.File
}

// New creates a Logger that writes to stderr and, if path is non-empty,
// also appends to the human log file at path.
func New(path string, verbose bool) (*Logger, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	var f *os.File
	if path != "" {
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		w = io.MultiWriter(os.Stderr, f)
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{slog: slog.New(handler), file: f}, nil
}

// NewDiscard returns a Logger that drops everything, for tests.
func NewDiscard() *Logger {
	return &Logger{slog: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// Close releases the underlying log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) Debug(msg string, kv ...any) { l.slog.Debug(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.slog.Info(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.slog.Warn(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.slog.Error(msg, kv...) }

// With returns a Logger that always includes the given key/value pairs.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{slog: l.slog.With(kv...), file: l.file}
}
