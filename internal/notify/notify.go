// Package notify delivers user-facing messages (the wallet's toasts).
package notify

import (
	"sync"
	"time"

	logger "log/slog"
)

// Level is the severity of a user-facing message.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notifier reports outcomes to the account holder.
type Notifier interface {
	Info(msg string)
	Success(msg string)
	Warning(msg string)
	Error(msg string)
}

// Message is one delivered notification.
type Message struct {
	Level Level     `json:"level"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier returns a notifier backed by l, or slog.Default() when l is nil.
func NewLogNotifier(l *logger.Logger) *LogNotifier {
	if l == nil {
		l = logger.Default()
	}
	return &LogNotifier{log: l.With("component", "notify")}
}

func (n *LogNotifier) Info(msg string)    { n.log.Info(msg, "level", LevelInfo) }
func (n *LogNotifier) Success(msg string) { n.log.Info(msg, "level", LevelSuccess) }
func (n *LogNotifier) Warning(msg string) { n.log.Warn(msg, "level", LevelWarning) }
func (n *LogNotifier) Error(msg string)   { n.log.Error(msg, "level", LevelError) }

// Recorder keeps the most recent notifications and forwards them to Next.
type Recorder struct {
	Next Notifier

	mu       sync.Mutex
	limit    int
	messages []Message
}

// NewRecorder keeps up to limit messages.
func NewRecorder(next Notifier, limit int) *Recorder {
	if limit <= 0 {
		limit = 50
	}
	return &Recorder{Next: next, limit: limit}
}

func (r *Recorder) record(level Level, msg string) {
	r.mu.Lock()
	r.messages = append(r.messages, Message{Level: level, Text: msg, At: time.Now()})
	if len(r.messages) > r.limit {
		r.messages = r.messages[len(r.messages)-r.limit:]
	}
	r.mu.Unlock()
}

func (r *Recorder) Info(msg string) {
	r.record(LevelInfo, msg)
	if r.Next != nil {
		r.Next.Info(msg)
	}
}

func (r *Recorder) Success(msg string) {
	r.record(LevelSuccess, msg)
	if r.Next != nil {
		r.Next.Success(msg)
	}
}

func (r *Recorder) Warning(msg string) {
	r.record(LevelWarning, msg)
	if r.Next != nil {
		r.Next.Warning(msg)
	}
}

func (r *Recorder) Error(msg string) {
	r.record(LevelError, msg)
	if r.Next != nil {
		r.Next.Error(msg)
	}
}

// Messages returns a copy of the recorded messages, oldest first.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Count returns how many recorded messages have the given level.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.Level == level {
			n++
		}
	}
	return n
}
