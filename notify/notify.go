// Package notify publishes workflow lifecycle events to observers. The
// front-end collaborator consumes these to render progress to a human.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	EventPlanStarted   EventType = "plan_started"
	EventPlanCompleted EventType = "plan_completed"
	EventPlanFailed    EventType = "plan_failed"
	EventPlanPaused    EventType = "plan_paused"
	EventTaskStarted   EventType = "task_started"
	EventTaskInReview  EventType = "task_in_review"
	EventTaskApproved  EventType = "task_approved"
	EventTaskRejected  EventType = "task_rejected"
	EventTaskFailed    EventType = "task_failed"
)

// Event is one lifecycle notification.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	PlanID    string    `json:"plan_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Reasons   []string  `json:"reasons,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds an event with a fresh ID and timestamp.
func NewEvent(t EventType, planID, taskID, message string, reasons ...string) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		PlanID:    planID,
		TaskID:    taskID,
		Message:   message,
		Reasons:   reasons,
		Timestamp: time.Now().UTC(),
	}
}

// Notifier delivers lifecycle events to observers. Delivery is best-effort;
// orchestration never depends on it.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Publish implements Notifier.
func (n *LogNotifier) Publish(_ context.Context, event Event) error {
	n.logger.Info("Workflow event",
		"type", string(event.Type),
		"plan_id", event.PlanID,
		"task_id", event.TaskID,
		"message", event.Message,
		"reasons", event.Reasons)
	return nil
}

// Fanout delivers each event to every notifier, collecting no errors: a
// failing observer must not disturb the others.
type Fanout []Notifier

// Publish implements Notifier.
func (f Fanout) Publish(ctx context.Context, event Event) error {
	for _, n := range f {
		_ = n.Publish(ctx, event)
	}
	return nil
}
