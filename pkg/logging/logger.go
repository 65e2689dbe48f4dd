// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for wakedock components.
//
// The default logger writes human-readable records to stderr, keeping stdout
// free for command output (status tables, logs passthrough). File logging can
// be enabled to additionally write JSON records under the state directory,
// one file per day.
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("deploy starting", "session_id", sessionID)
//	logger.Error("build failed", "service", name, "error", err)
//
// # File Logging
//
//	logger, err := logging.New(logging.Config{
//	    Level:  logging.LevelDebug,
//	    LogDir: "~/.wakedock/logs", // supports ~ expansion
//	})
//	defer logger.Close()
//
// # Thread Safety
//
// Logger is safe for concurrent use; it is a thin layer over slog.
//
// # Security Considerations
//
// Nothing is redacted automatically. Callers must not log tokens or other
// secrets; log presence flags instead ("token_present", token != "").
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level. Unknown values get LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config controls logger construction.
type Config struct {
	// Level is the minimum severity to emit. Default: LevelInfo.
	Level Level

	// LogDir, when set, enables JSON file logging under this directory.
	// Supports ~ expansion. Files are named wakedock_YYYY-MM-DD.log.
	LogDir string

	// Stderr overrides the text destination. Default: os.Stderr.
	// Used by tests to capture output.
	Stderr io.Writer
}

// Logger wraps slog with an optional file sink.
type Logger struct {
	slog *slog.Logger

	mu   sync.Mutex
	file *os.File
}

// New builds a Logger from config.
//
// # Outputs
//
//   - *Logger: Always usable; file problems degrade to stderr-only.
//   - error: Non-nil only when LogDir was requested and could not be opened.
//     The returned Logger still works in that case.
func New(config Config) (*Logger, error) {
	stderr := config.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}
	handlers := []slog.Handler{slog.NewTextHandler(stderr, opts)}

	l := &Logger{}
	var fileErr error
	if config.LogDir != "" {
		file, err := openLogFile(expandPath(config.LogDir))
		if err != nil {
			fileErr = fmt.Errorf("file logging disabled: %w", err)
		} else {
			l.file = file
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		}
	}

	if len(handlers) == 1 {
		l.slog = slog.New(handlers[0])
	} else {
		l.slog = slog.New(&multiHandler{handlers: handlers})
	}
	return l, fileErr
}

// Default returns a stderr-only logger at info level.
func Default() *Logger {
	l, _ := New(Config{Level: LevelInfo})
	return l
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a Logger whose records carry the given attributes. The child
// shares the parent's file handle; only the parent should Close.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

// Slog exposes the underlying slog.Logger for packages that take one.
func (l *Logger) Slog() *slog.Logger { return l.slog }

// Close flushes and closes the log file, if any. Idempotent.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Sync()
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	return err
}

func openLogFile(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("wakedock_%s.log", time.Now().Format("2006-01-02"))
	return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
