// Package logging provides structured logging for hookline on top of
// zerolog, with date-based log files and retention cleanup.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with component tagging and file management.
type Logger struct {
	zl   zerolog.Logger
	file *os.File
}

// Config holds logging configuration.
type Config struct {
	Level         string // debug, info, warn, error
	Dir           string // log directory; empty logs to stderr only
	Format        string // json, text
	RetentionDays int    // days to keep log files (default 7)
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// Init installs the global logger.
func Init(cfg Config) error {
	logger, err := New(cfg)
	if err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger != nil && globalLogger.file != nil {
		_ = globalLogger.file.Close()
	}
	globalLogger = logger
	return nil
}

// New creates a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 7
	}

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	logger := &Logger{}
	var output io.Writer = os.Stderr

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log dir: %w", err)
		}
		path := filepath.Join(cfg.Dir, "hookline-"+time.Now().UTC().Format("2006-01-02")+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		logger.file = f
		output = f

		go cleanOldLogs(cfg.Dir, cfg.RetentionDays)
	}

	if cfg.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339, NoColor: true}
	}

	logger.zl = zerolog.New(output).Level(level).With().Timestamp().Logger()
	return logger, nil
}

// cleanOldLogs removes log files past the retention window.
func cleanOldLogs(dir string, retentionDays int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "hookline-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		dateStr := strings.TrimSuffix(strings.TrimPrefix(name, "hookline-"), ".log")
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		if date.Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, name))
		}
	}
}

// WithComponent returns a Logger tagged with a component field.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		zl:   l.zl.With().Str("component", component).Logger(),
		file: l.file,
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }

// Info logs an info message.
func (l *Logger) Info(msg string) { l.zl.Info().Msg(msg) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string) { l.zl.Warn().Msg(msg) }

// Error logs an error message.
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

// Infof logs a formatted info message.
func (l *Logger) Infof(format string, args ...any) { l.zl.Info().Msgf(format, args...) }

// Warnf logs a formatted warning message.
func (l *Logger) Warnf(format string, args ...any) { l.zl.Warn().Msgf(format, args...) }

// Errorf logs a formatted error message.
func (l *Logger) Errorf(format string, args ...any) { l.zl.Error().Msgf(format, args...) }

// InfoCtx logs an info message with structured fields.
func (l *Logger) InfoCtx(msg string, fields map[string]any) { logCtx(l.zl.Info(), msg, fields) }

// WarnCtx logs a warning message with structured fields.
func (l *Logger) WarnCtx(msg string, fields map[string]any) { logCtx(l.zl.Warn(), msg, fields) }

// ErrorCtx logs an error message with structured fields.
func (l *Logger) ErrorCtx(msg string, fields map[string]any) { logCtx(l.zl.Error(), msg, fields) }

// DebugCtx logs a debug message with structured fields.
func (l *Logger) DebugCtx(msg string, fields map[string]any) { logCtx(l.zl.Debug(), msg, fields) }

func logCtx(ev *zerolog.Event, msg string, fields map[string]any) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// Err returns an error-level event with the error attached.
func (l *Logger) Err(err error) *zerolog.Event {
	return l.zl.Error().Err(err)
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Get returns the global logger, defaulting to stderr if Init was
// never called.
func Get() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return &Logger{zl: zerolog.New(os.Stderr).With().Timestamp().Logger()}
	}
	return globalLogger
}

// Component returns the global logger tagged with a component.
func Component(name string) *Logger {
	return Get().WithComponent(name)
}

func parseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}
