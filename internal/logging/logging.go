// Package logging builds the slog loggers used by wlime.
//
// Loggers write text or JSON to stderr, stdout or a rotated file. The level
// can be changed while running, and attributes that carry typed text or
// credentials are replaced with Redacted before they reach any output.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level aliases slog.Level so callers need not import slog for levels.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format selects the slog handler.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Redacted replaces the value of sensitive attributes.
const Redacted = "[REDACTED]"

// Config describes one logger.
type Config struct {
	Level  Level
	Format Format
	// Output is "stderr", "stdout", "file" or "both" (stderr and file).
	Output string
	Rotate RotateConfig

	AddSource bool
	Component string

	// Writer, when set, replaces Output entirely.
	Writer io.Writer
}

// DefaultConfig logs text at info level to stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: FormatText,
		Output: "stderr",
		Rotate: RotateConfig{
			Path:       defaultLogPath(),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Component: "wlime",
	}
}

func defaultLogPath() string {
	state := os.Getenv("XDG_STATE_HOME")
	if state == "" {
		home, _ := os.UserHomeDir()
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, "wlime", "wlime.log")
}

// Logger is a slog.Logger whose level is shared with every logger derived
// through WithComponent.
type Logger struct {
	*slog.Logger

	level *slog.LevelVar

	mu      sync.Mutex
	rotator *FileRotator
}

// New builds a Logger from cfg, or from DefaultConfig when cfg is nil.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	w, rotator, err := openOutput(cfg)
	if err != nil {
		return nil, fmt.Errorf("open log output: %w", err)
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: redact,
	}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	}
	if cfg.Component != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("component", cfg.Component)})
	}

	return &Logger{Logger: slog.New(h), level: level, rotator: rotator}, nil
}

func openOutput(cfg *Config) (io.Writer, *FileRotator, error) {
	if cfg.Writer != nil {
		return cfg.Writer, nil, nil
	}

	out := strings.ToLower(cfg.Output)
	switch out {
	case "file", "both":
		r, err := NewFileRotator(cfg.Rotate)
		if err != nil {
			return nil, nil, err
		}
		if out == "both" {
			return io.MultiWriter(os.Stderr, r), r, nil
		}
		return r, r, nil
	case "stdout":
		return os.Stdout, nil, nil
	default:
		return os.Stderr, nil, nil
	}
}

// SetDefault installs l as slog's default logger.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}

// contentKeys name attributes that hold text the user typed. They are
// matched exactly so keys like "keycode" stay readable.
var contentKeys = map[string]struct{}{
	"text":             {},
	"preedit":          {},
	"char":             {},
	"surrounding_text": {},
	"commit":           {},
}

// credentialMarkers are matched anywhere in a key.
var credentialMarkers = []string{
	"password", "secret", "token", "credential", "private",
	"cookie", "api_key", "apikey", "bearer",
}

func shouldRedact(key string) bool {
	k := strings.ToLower(key)
	if _, ok := contentKeys[k]; ok {
		return true
	}
	for _, m := range credentialMarkers {
		if strings.Contains(k, m) {
			return true
		}
	}
	return false
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if shouldRedact(a.Key) {
		a.Value = slog.StringValue(Redacted)
	}
	return a
}

// SetLevel changes the level of l and of every logger derived from it.
func (l *Logger) SetLevel(level Level) { l.level.Set(level) }

// Level returns the current level.
func (l *Logger) Level() Level { return l.level.Level() }

// WithComponent returns a logger tagged with another component name. It
// shares the level and output of l.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger:  l.Logger.With(slog.String("component", name)),
		level:   l.level,
		rotator: l.rotator,
	}
}

// Sync flushes the log file, if any.
func (l *Logger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Sync()
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Close()
}

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
func ParseLevel(s string) (Level, error) {
	if lvl, ok := levelNames[strings.ToLower(s)]; ok {
		return lvl, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// ParseFormat accepts "text", "json" or the empty string.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format %q", s)
}

// LevelString is the inverse of ParseLevel. Unknown levels print as info.
func LevelString(level Level) string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "info"
}
