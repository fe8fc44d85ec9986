package reminders

import (
	"context"

	"github.com/jrazmi/taskdeck/sdk/logger"
)

// Notification kinds.
const (
	TypeReminder  = "task_reminder"
	TypeCompleted = "task_completed"
)

// Notification is a user-facing message produced by the scheduler. UserID is
// routing metadata for notifier implementations, not payload.
type Notification struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	UserID string `json:"-"`
}

// Notifier delivers notifications to the user. Delivery failure is degraded
// service, not a data error: callers log and move on.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

// Send implements Notifier.
func (f NotifierFunc) Send(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// LogNotifier writes notifications to the structured log. It stands in for
// the platform push channel in development and test runs.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Send implements Notifier.
func (l *LogNotifier) Send(ctx context.Context, n Notification) error {
	l.log.InfoContext(ctx, "notification",
		"type", n.Type,
		"task_id", n.TaskID,
		"user_id", n.UserID,
		"title", n.Title,
		"body", n.Body,
	)
	return nil
}

// Fanout delivers each notification to every wrapped notifier. One
// notifier's failure does not stop the others; the first error is returned.
type Fanout []Notifier

// Send implements Notifier.
func (f Fanout) Send(ctx context.Context, n Notification) error {
	var first error
	for _, notifier := range f {
		if err := notifier.Send(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
