// Package workflow implements the orchestration engine for a multi-stage,
// resumable development workflow: a goal is decomposed into dependent tasks,
// each task is driven through develop, review, and decide stages, and
// progress is persisted so the workflow survives restarts.
package workflow

import (
	"time"
)

// PlanStatus represents the lifecycle state of a plan.
type PlanStatus string

const (
	// PlanActive indicates the plan is being worked on.
	PlanActive PlanStatus = "active"
	// PlanPaused indicates the plan was stopped after a step and preserves state.
	PlanPaused PlanStatus = "paused"
	// PlanCompleted indicates every task was approved.
	PlanCompleted PlanStatus = "completed"
	// PlanFailed indicates the plan can make no further progress.
	PlanFailed PlanStatus = "failed"
)

// String returns the string representation of the status.
func (s PlanStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized plan status.
func (s PlanStatus) IsValid() bool {
	switch s {
	case PlanActive, PlanPaused, PlanCompleted, PlanFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once the plan will not run again without a reset.
func (s PlanStatus) IsTerminal() bool {
	return s == PlanCompleted || s == PlanFailed
}

// TaskStatus represents the lifecycle state of a single task.
type TaskStatus string

const (
	// TaskPending indicates the task has not started its current attempt.
	TaskPending TaskStatus = "pending"
	// TaskInProgress indicates the development stage is underway.
	TaskInProgress TaskStatus = "in_progress"
	// TaskInReview indicates the review stage is underway.
	TaskInReview TaskStatus = "in_review"
	// TaskApproved indicates the task passed review.
	TaskApproved TaskStatus = "approved"
	// TaskRejected indicates the last attempt was rejected and may be retried.
	TaskRejected TaskStatus = "rejected"
	// TaskFailed indicates the task exhausted its attempts.
	TaskFailed TaskStatus = "failed"
	// TaskBlocked indicates a dependency terminally failed.
	TaskBlocked TaskStatus = "blocked"
)

// String returns the string representation of the status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized task status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskInReview, TaskApproved,
		TaskRejected, TaskFailed, TaskBlocked:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the task will never be scheduled again.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskApproved || s == TaskFailed || s == TaskBlocked
}

// Glyph returns a short marker for status rendering. The switch is
// exhaustive over valid statuses so new states surface immediately.
func (s TaskStatus) Glyph() string {
	switch s {
	case TaskPending:
		return "·"
	case TaskInProgress:
		return "▶"
	case TaskInReview:
		return "?"
	case TaskApproved:
		return "✓"
	case TaskRejected:
		return "✗"
	case TaskFailed:
		return "!"
	case TaskBlocked:
		return "⊘"
	default:
		return " "
	}
}

// DefaultMaxAttempts is the attempt cap applied to tasks that do not
// declare their own.
const DefaultMaxAttempts = 3

// RejectionRecord captures one rejected attempt of a task.
type RejectionRecord struct {
	Attempt   int       `json:"attempt"`
	Comments  []string  `json:"comments,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReviewResult is the structured outcome of one review cycle. It is not
// persisted independently; its fields are folded into the owning task.
type ReviewResult struct {
	Approved      bool     `json:"approved"`
	Summary       string   `json:"summary,omitempty"`
	Comments      []string `json:"comments,omitempty"`
	TestsPassed   *bool    `json:"tests_passed,omitempty"`
	FilesReviewed []string `json:"files_reviewed,omitempty"`
}

// Task is one unit of work within a plan.
type Task struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`

	// DependsOn lists task IDs that must be approved before this task is
	// ready. Dangling references are tolerated as never satisfied.
	DependsOn []string `json:"depends_on,omitempty"`

	Status      TaskStatus `json:"status"`
	Attempt     int        `json:"attempt"`
	MaxAttempts int        `json:"max_attempts"`

	// Report holds the tail of the most recent development report.
	Report string `json:"report,omitempty"`

	// LastVerdict, LastSummary, and LastComments record the most recent
	// review outcome.
	LastVerdict  string   `json:"last_verdict,omitempty"`
	LastSummary  string   `json:"last_summary,omitempty"`
	LastComments []string `json:"last_comments,omitempty"`

	Rejections []RejectionRecord `json:"rejections,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// AttemptsExhausted returns true when the task has no attempts remaining.
func (t *Task) AttemptsExhausted() bool {
	return t.Attempt >= t.EffectiveMaxAttempts()
}

// EffectiveMaxAttempts returns the task's attempt cap, applying the default
// for tasks that never declared one.
func (t *Task) EffectiveMaxAttempts() int {
	if t.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return t.MaxAttempts
}

// Analysis is an optional snapshot of project state taken at decomposition
// time. Immutable once attached to a plan.
type Analysis struct {
	CurrentState  string   `json:"current_state,omitempty"`
	AlreadyDone   []string `json:"already_done,omitempty"`
	RemainingWork []string `json:"remaining_work,omitempty"`
}

// Plan is the durable record of one workflow run for a project goal.
// Task declaration order is significant: it is the scan order for scheduling.
type Plan struct {
	ID            string     `json:"id"`
	Goal          string     `json:"goal"`
	Tasks         []Task     `json:"tasks"`
	Analysis      *Analysis  `json:"analysis,omitempty"`
	Status        PlanStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CurrentTaskID string     `json:"current_task_id,omitempty"`
	FinalReport   string     `json:"final_report,omitempty"`
}

// Task returns a pointer to the task with the given ID, or nil.
func (p *Plan) Task(id string) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// AllApproved returns true when every task in the plan is approved.
func (p *Plan) AllApproved() bool {
	for i := range p.Tasks {
		if p.Tasks[i].Status != TaskApproved {
			return false
		}
	}
	return true
}

// TruncateTail keeps the last max bytes of s. Development reports are
// consumed as context in later stages, where only the most recent output
// matters.
func TruncateTail(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
