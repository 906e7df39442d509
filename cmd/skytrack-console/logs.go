package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// LogManager manages the log panel and message history
type LogManager struct {
	// textView is the tview component for displaying logs
	textView *tview.TextView

	// messages stores recent log messages
	messages []LogMessage

	// maxMessages is the maximum number of messages to keep
	maxMessages int

	// mu protects concurrent access to messages
	mu sync.Mutex
}

// LogMessage represents a single log entry
type LogMessage struct {
	Time    time.Time
	Level   LogLevel
	Message string
}

// NewLogManager creates a new log manager
func NewLogManager(maxMessages int) *LogManager {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetMaxLines(maxMessages)

	textView.SetBorder(true).SetTitle(" Logs ")
	textView.ScrollToEnd()

	return &LogManager{
		textView:    textView,
		messages:    make([]LogMessage, 0, maxMessages),
		maxMessages: maxMessages,
	}
}

// GetView returns the tview component
func (lm *LogManager) GetView() *tview.TextView {
	return lm.textView
}

// AddLog adds a log message with the specified level. It may be called
// from any goroutine: the text view serializes its own writes.
func (lm *LogManager) AddLog(level LogLevel, format string, args ...any) {
	msg := LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	}

	lm.mu.Lock()
	lm.messages = append(lm.messages, msg)
	if len(lm.messages) > lm.maxMessages {
		lm.messages = lm.messages[len(lm.messages)-lm.maxMessages:]
	}
	lm.mu.Unlock()

	// Format: [HH:MM:SS] LEVEL Message
	fmt.Fprintf(lm.textView, "[gray]%s[-] [%s]%-5s[-] %s\n",
		msg.Time.Format("15:04:05"), colorForLevel(level), level, tview.Escape(msg.Message))
}

// Info logs an info message
func (lm *LogManager) Info(format string, args ...any) {
	lm.AddLog(LogLevelInfo, format, args...)
}

// Error logs an error message
func (lm *LogManager) Error(format string, args ...any) {
	lm.AddLog(LogLevelError, format, args...)
}

// Messages returns a copy of the retained history.
func (lm *LogManager) Messages() []LogMessage {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return append([]LogMessage(nil), lm.messages...)
}

// colorForLevel returns the tview color tag for a log level
func colorForLevel(level LogLevel) string {
	switch level {
	case LogLevelDebug:
		return "gray"
	case LogLevelWarn:
		return "yellow"
	case LogLevelError:
		return "red"
	default:
		return "white"
	}
}

func levelFor(l slog.Level) LogLevel {
	switch {
	case l >= slog.LevelError:
		return LogLevelError
	case l >= slog.LevelWarn:
		return LogLevelWarn
	case l >= slog.LevelInfo:
		return LogLevelInfo
	default:
		return LogLevelDebug
	}
}

// Handler returns a slog handler that mirrors records at or above level
// into the log panel as "message key=value ...".
func (lm *LogManager) Handler(level slog.Leveler) slog.Handler {
	return &paneHandler{lm: lm, level: level}
}

type paneHandler struct {
	lm    *LogManager
	level slog.Leveler
	attrs []slog.Attr
	group string
}

func (h *paneHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *paneHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	write := func(a slog.Attr) bool {
		if a.Equal(slog.Attr{}) {
			return true
		}
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		fmt.Fprintf(&b, " %s=%v", key, a.Value.Resolve())
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(write)

	h.lm.AddLog(levelFor(r.Level), "%s", b.String())
	return nil
}

func (h *paneHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &c
}

func (h *paneHandler) WithGroup(name string) slog.Handler {
	c := *h
	if c.group != "" {
		name = c.group + "." + name
	}
	c.group = name
	return &c
}
