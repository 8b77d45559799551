package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

type prettyHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Leveler
	source bool
	attrs  []slog.Attr
	group  string
}

func NewPrettyHandler(out io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if out == nil {
		out = os.Stdout
	}
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &prettyHandler{
		mu:     &sync.Mutex{},
		out:    out,
		level:  opts.Level,
		source: opts.AddSource,
	}
}

// Init installs the process wide logger. format is "pretty" (default) or "json".
func Init(levelName, format string) *slog.Logger {
	logger := New(os.Stdout, levelName, format)
	slog.SetDefault(logger)
	return logger
}

func New(out io.Writer, levelName, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(levelName),
		AddSource: true,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = NewPrettyHandler(out, opts)
	}
	return slog.New(handler)
}

func (h *prettyHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	if h.level == nil {
		return lvl >= slog.LevelInfo
	}
	return lvl >= h.level.Level()
}

func (h *prettyHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.Enabled(ctx, r.Level) {
		return nil
	}

	var buf bytes.Buffer

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	fmt.Fprintf(&buf, "%s ", ts.Format("2006-01-02 15:04:05.000"))

	fmt.Fprintf(&buf, "%s%-5s%s ", colorForLevel(r.Level), levelToUpper(r.Level), "\033[0m")

	if h.source && r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		if f, _ := frames.Next(); f.File != "" {
			loc := fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
			fmt.Fprintf(&buf, "%-25s ", loc)
		}
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&buf, h.group, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&buf, h.group, a)
		return true
	})

	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		next.group = h.group + "." + name
	} else {
		next.group = name
	}
	return &next
}

func writeAttr(buf *bytes.Buffer, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(buf, key, ga)
		}
		return
	}
	fmt.Fprintf(buf, " %s=%v", key, a.Value.Any())
}

func levelToUpper(l slog.Level) string {
	switch {
	case l <= slog.LevelDebug:
		return "DEBUG"
	case l == slog.LevelInfo:
		return "INFO"
	case l == slog.LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

func ParseLevel(l string) slog.Level {
	switch strings.ToLower(l) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func colorForLevel(l slog.Level) string {
	switch {
	case l <= slog.LevelDebug:
		return "\033[36m" // cyan
	case l == slog.LevelInfo:
		return "\033[32m" // green
	case l == slog.LevelWarn:
		return "\033[33m" // yellow
	default:
		return "\033[31m" // red
	}
}
