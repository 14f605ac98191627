package notification

import (
	"context"
	"log"
	"strings"
	"sync"
)

// Severity of a user-facing notification
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// FallbackMessage replaces an empty message
const FallbackMessage = "Opps, error occurred, please try again"

// Notification is a single message shown to the user
type Notification struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// New builds a notification, substituting FallbackMessage for blank text
func New(severity Severity, message string) Notification {
	if strings.TrimSpace(message) == "" {
		message = FallbackMessage
	}
	return Notification{Severity: severity, Message: message}
}

// Notifier delivers notifications to the user or to other listeners
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Func adapts a function to Notifier
type Func func(ctx context.Context, n Notification) error

func (f Func) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// MetricsRecorder counts delivered notifications
type MetricsRecorder interface {
	RecordNotification(ctx context.Context, severity string)
}

// LogNotifier writes notifications to the standard logger
type LogNotifier struct {
	logger  *log.Logger
	metrics MetricsRecorder
}

// NewLogNotifier writes to logger, or to the standard logger when nil
func NewLogNotifier(logger *log.Logger, metrics MetricsRecorder) *LogNotifier {
	return &LogNotifier{logger: logger, metrics: metrics}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	n = New(n.Severity, n.Message)
	line := "[" + strings.ToUpper(string(n.Severity)) + "] " + n.Message
	if l.logger != nil {
		l.logger.Println(line)
	} else {
		log.Println(line)
	}
	if l.metrics != nil {
		l.metrics.RecordNotification(ctx, string(n.Severity))
	}
	return nil
}

// Multi fans a notification out to every notifier. A failing notifier
// does not stop the others; the first error is returned.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var first error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			log.Printf("Notifier failed: %v", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Recorder keeps every notification in memory
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *Recorder) Notify(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// All returns a copy of the recorded notifications in delivery order
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// Reset drops recorded notifications
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
