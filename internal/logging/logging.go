// Package logging sets up structured logging to a size-rotated file,
// optionally fanned out to extra handlers (stderr, a UI log pane).
package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	*slog.Logger
	LogFile string
	Start   time.Time

	w *lumberjack.Logger
}

// ParseLevel maps a config level name to a slog level. Unknown names
// are reported and treated as info.
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%s: invalid log level", level)
	}
}

// New creates a logger writing JSON records to <dir>/<name>.slog. An empty
// dir means the user config directory. Records at or above the level are
// also passed to every extra handler.
func New(level, dir, name string, extra ...slog.Handler) *Logger {
	if dir == "" {
		var err error
		dir, err = os.UserConfigDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Unable to find user config dir: %v", err)
			dir = "."
		}
		dir = filepath.Join(dir, "skytrack")
	}

	w := &lumberjack.Logger{
		Filename:   filepath.Join(dir, name+".slog"),
		MaxSize:    32, // MB
		MaxBackups: 2,
	}
	if level == "debug" {
		w.MaxSize = 256
	}

	lvl, err := ParseLevel(level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	var h slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	if len(extra) > 0 {
		h = Fanout(append([]slog.Handler{h}, extra...)...)
	}

	l := &Logger{
		Logger:  slog.New(h),
		LogFile: w.Filename,
		Start:   time.Now(),
		w:       w,
	}

	l.Info("Hello logging", slog.Time("start", l.Start))
	l.Info("System information",
		slog.String("GOARCH", runtime.GOARCH),
		slog.String("GOOS", runtime.GOOS),
		slog.Int("NumCPUs", runtime.NumCPU()))

	return l
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l == nil || l.w == nil {
		return nil
	}
	return l.w.Close()
}

type fanout []slog.Handler

// Fanout returns a handler passing each record to all handlers that
// accept its level.
func Fanout(handlers ...slog.Handler) slog.Handler {
	return fanout(handlers)
}

func (f fanout) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, lvl) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
