package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

var (
	colorReset = "\x1b[0m"
	colorTime  = "\x1b[90m"
	colorDebug = "\x1b[36m"
	colorInfo  = "\x1b[32m"
	colorWarn  = "\x1b[33m"
	colorError = "\x1b[31m"
)

// tagColors maps module tags to console colours.
var tagColors = map[string]string{
	TagBootstrap: "\x1b[96m",
	TagHTTP:      "\x1b[95m",
	TagAuth:      "\x1b[94m",
	TagWallet:    "\x1b[93m",
	TagLedger:    "\x1b[34m",
	TagMint:      "\x1b[92m",
	TagObs:       "\x1b[90m",
}

// consoleHandler renders records as coloured single lines.
type consoleHandler struct {
	writer io.Writer
	level  slog.Level
	color  bool
	attrs  []slog.Attr
	mu     *sync.Mutex
}

func newConsoleHandler(w io.Writer, level slog.Level, color bool) *consoleHandler {
	return &consoleHandler{writer: w, level: level, color: color, mu: &sync.Mutex{}}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	timeStr := r.Time.Format("2006-01-02 15:04:05.000")

	var b strings.Builder
	moduleColor, isModule := h.moduleColor(r.Message)
	if isModule {
		fmt.Fprintf(&b, "%s %s", h.paint(colorTime, "["+timeStr+"]"), h.paint(moduleColor, r.Message))
	} else {
		fmt.Fprintf(&b, "%s %s %s",
			h.paint(colorTime, "["+timeStr+"]"),
			h.paint(levelColor(r.Level), "["+r.Level.String()+"]"),
			r.Message)
	}

	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	if len(attrs) > 0 {
		b.WriteString(" {")
		for _, a := range attrs {
			fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		}
		b.WriteString(" }")
	}
	b.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *consoleHandler) WithGroup(string) slog.Handler {
	return h
}

func (h *consoleHandler) paint(color, s string) string {
	if !h.color {
		return s
	}
	return color + s + colorReset
}

func (h *consoleHandler) moduleColor(msg string) (string, bool) {
	if !strings.HasPrefix(msg, "[") {
		return "", false
	}
	end := strings.Index(msg, "]")
	if end < 0 {
		return "", false
	}
	color, ok := tagColors[msg[1:end]]
	return color, ok
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorError
	case level >= slog.LevelWarn:
		return colorWarn
	case level >= slog.LevelInfo:
		return colorInfo
	default:
		return colorDebug
	}
}

// fanoutHandler duplicates records to every enabled child handler.
type fanoutHandler []slog.Handler

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanoutHandler, len(f))
	for i, h := range f {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	next := make(fanoutHandler, len(f))
	for i, h := range f {
		next[i] = h.WithGroup(name)
	}
	return next
}
