package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Module tags rendered as "[tag]" message prefixes.
const (
	TagBootstrap = "bootstrap"
	TagHTTP      = "http"
	TagAuth      = "auth"
	TagWallet    = "wallet"
	TagLedger    = "ledger"
	TagMint      = "mint"
	TagObs       = "obs"
)

// Config captures logging configuration options.
type Config struct {
	Level    string
	Dir      string
	Filename string
	Console  io.Writer
	NoColor  bool
}

// Logger writes human readable lines to the console and JSON lines to an optional file.
type Logger struct {
	slog  *slog.Logger
	level slog.Level
	file  *os.File
}

// New creates a Logger. An empty Dir disables the JSON file sink.
func New(cfg Config) (*Logger, error) {
	level := parseLevel(cfg.Level)

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}
	handlers := fanoutHandler{newConsoleHandler(console, level, !cfg.NoColor)}

	var file *os.File
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		name := cfg.Filename
		if name == "" {
			name = "client.log"
		}
		f, err := os.OpenFile(filepath.Join(cfg.Dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	}

	return &Logger{
		slog:  slog.New(handlers),
		level: level,
		file:  file,
	}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{
		slog:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		level: slog.LevelError + 1,
	}
}

// Slog exposes the structured logger for new integrations.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close releases the file sink.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) logf(level slog.Level, msg string, args ...any) {
	if l == nil || level < l.level {
		return
	}
	if len(args) > 0 && strings.Contains(msg, "%") {
		msg = fmt.Sprintf(msg, args...)
		args = nil
	}
	l.slog.Log(context.Background(), level, msg, args...)
}

func (l *Logger) Debug(msg string, args ...any) { l.logf(slog.LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logf(slog.LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logf(slog.LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logf(slog.LevelError, msg, args...) }

// FormatLog prefixes message with a single "[tag]" unless it already carries one.
func FormatLog(tag, message string) string {
	tag = strings.TrimSpace(tag)
	message = strings.TrimSpace(message)
	if tag == "" || strings.HasPrefix(message, "[") {
		return message
	}
	return fmt.Sprintf("[%s] %s", tag, message)
}

func (l *Logger) DebugTag(tag, msg string, args ...any) {
	l.logf(slog.LevelDebug, FormatLog(tag, msg), args...)
}

func (l *Logger) InfoTag(tag, msg string, args ...any) {
	l.logf(slog.LevelInfo, FormatLog(tag, msg), args...)
}

func (l *Logger) WarnTag(tag, msg string, args ...any) {
	l.logf(slog.LevelWarn, FormatLog(tag, msg), args...)
}

func (l *Logger) ErrorTag(tag, msg string, args ...any) {
	l.logf(slog.LevelError, FormatLog(tag, msg), args...)
}

// Tagged returns a view whose Debug/Info/Warn/Error calls carry tag.
func (l *Logger) Tagged(tag string) *TaggedLogger {
	return &TaggedLogger{base: l, tag: tag}
}

// TaggedLogger satisfies the domain Logger interfaces with a fixed module tag.
type TaggedLogger struct {
	base *Logger
	tag  string
}

func (t *TaggedLogger) Debug(msg string, args ...any) { t.base.DebugTag(t.tag, msg, args...) }
func (t *TaggedLogger) Info(msg string, args ...any)  { t.base.InfoTag(t.tag, msg, args...) }
func (t *TaggedLogger) Warn(msg string, args ...any)  { t.base.WarnTag(t.tag, msg, args...) }
func (t *TaggedLogger) Error(msg string, args ...any) { t.base.ErrorTag(t.tag, msg, args...) }

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
