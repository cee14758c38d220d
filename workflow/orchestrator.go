package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/c360studio/foreman/notify"
)

// Developer performs the development stage for one task. The concrete
// implementation delegates to an external collaborator and may hang; callers
// always bound it with a deadline and interrupt it on expiry.
type Developer interface {
	Develop(ctx context.Context, req DevelopRequest) (string, error)

	// Interrupt asks the collaborator to abort its current operation for the
	// task, so no zombie background work continues after the orchestrator has
	// moved on.
	Interrupt(ctx context.Context, taskID string) error
}

// DevelopRequest carries everything the development collaborator needs for
// one attempt.
type DevelopRequest struct {
	TaskID             string
	Goal               string
	Title              string
	Description        string
	AcceptanceCriteria []string

	// Context carries prior-attempt feedback and the tail of earlier reports.
	Context string

	// Deadline is the stage budget, already applied to the call's context.
	Deadline time.Time
}

// Reviewer runs the review stage for one task and returns the collaborator's
// raw output, free-text or structured. Implementations wrap the delegated
// executor in the retry policy.
type Reviewer interface {
	Review(ctx context.Context, req ReviewRequest) (string, error)
}

// ReviewRequest carries the inputs of one review cycle.
type ReviewRequest struct {
	TaskID             string
	Goal               string
	Title              string
	AcceptanceCriteria []string
	Report             string
	Deadline           time.Time
}

// Oracle is the language-model collaborator used for verdict normalization
// and final report composition. Optional: a nil Oracle disables both.
type Oracle interface {
	NormalizeVerdict(ctx context.Context, reviewOutput string) (*Verdict, error)
	ComposeReport(ctx context.Context, plan *Plan) (string, error)
}

// Options bound the orchestrator's external calls and report retention.
type Options struct {
	DevelopTimeout time.Duration
	ReviewTimeout  time.Duration
	ReportTimeout  time.Duration

	// ReportTailBytes bounds the stored development report.
	ReportTailBytes int
}

// DefaultOptions returns the stage budgets used when none are configured.
func DefaultOptions() Options {
	return Options{
		DevelopTimeout:  30 * time.Minute,
		ReviewTimeout:   10 * time.Minute,
		ReportTimeout:   2 * time.Minute,
		ReportTailBytes: 16 * 1024,
	}
}

// Orchestrator drives one plan through the task lifecycle until the plan
// reaches a terminal status or is paused.
type Orchestrator struct {
	store     *Store
	developer Developer
	reviewer  Reviewer
	oracle    Oracle
	notifier  notify.Notifier
	opts      Options
	logger    *slog.Logger

	paused atomic.Bool
}

// NewOrchestrator wires the loop's collaborators. The oracle may be nil.
func NewOrchestrator(store *Store, developer Developer, reviewer Reviewer, oracle Oracle, notifier notify.Notifier, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	if opts.DevelopTimeout <= 0 {
		opts.DevelopTimeout = DefaultOptions().DevelopTimeout
	}
	if opts.ReviewTimeout <= 0 {
		opts.ReviewTimeout = DefaultOptions().ReviewTimeout
	}
	if opts.ReportTimeout <= 0 {
		opts.ReportTimeout = DefaultOptions().ReportTimeout
	}
	if opts.ReportTailBytes <= 0 {
		opts.ReportTailBytes = DefaultOptions().ReportTailBytes
	}

	return &Orchestrator{
		store:     store,
		developer: developer,
		reviewer:  reviewer,
		oracle:    oracle,
		notifier:  notifier,
		opts:      opts,
		logger:    logger,
	}
}

// Pause requests a stop after the current step. State is preserved; an
// explicit resume continues the plan.
func (o *Orchestrator) Pause() {
	o.paused.Store(true)
}

// Run executes the plan until it reaches a terminal status, is paused, or the
// context is cancelled. The plan is persisted after every state transition,
// so a crash at any point resumes from the last completed step.
func (o *Orchestrator) Run(ctx context.Context, projectPath string, plan *Plan) error {
	if plan.Status == "" {
		plan.Status = PlanActive
	}
	if plan.Status != PlanActive {
		return fmt.Errorf("plan is %s, not active", plan.Status)
	}
	if err := o.store.Save(projectPath, plan); err != nil {
		return fmt.Errorf("persist plan: %w", err)
	}
	o.publish(ctx, notify.NewEvent(notify.EventPlanStarted, plan.ID, "", plan.Goal))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if o.paused.Load() {
			plan.Status = PlanPaused
			plan.CurrentTaskID = ""
			o.persist(projectPath, plan)
			o.publish(ctx, notify.NewEvent(notify.EventPlanPaused, plan.ID, "", "paused"))
			return nil
		}

		task := NextReady(plan)
		if task == nil {
			return o.finish(ctx, projectPath, plan)
		}

		o.runAttempt(ctx, projectPath, plan, task)
	}
}

// runAttempt drives one task attempt through develop, review, and decide.
// A failure at any stage is recorded on the task; the loop then re-evaluates
// the whole plan rather than aborting.
func (o *Orchestrator) runAttempt(ctx context.Context, projectPath string, plan *Plan, task *Task) {
	plan.CurrentTaskID = task.ID

	// A task resumed in_review goes straight back to review with its stored
	// report; its attempt was already counted when development began.
	resumeReview := task.Status == TaskInReview && task.Report != ""

	if !resumeReview {
		// Only a freshly selected task pays for an attempt; a task resumed
		// mid-stage after a restart already counted this one.
		if task.Status == TaskPending {
			task.Attempt++
		}
		task.Status = TaskInProgress
		if task.StartedAt == nil {
			now := time.Now().UTC()
			task.StartedAt = &now
		}
		o.persist(projectPath, plan)
		o.publish(ctx, notify.NewEvent(notify.EventTaskStarted, plan.ID, task.ID,
			fmt.Sprintf("attempt %d/%d: %s", task.Attempt, task.EffectiveMaxAttempts(), task.Title)))

		if !o.develop(ctx, projectPath, plan, task) {
			return
		}
	}

	output, reviewErr := o.review(ctx, projectPath, plan, task)

	var review ReviewResult
	if reviewErr != nil {
		review = ReviewResult{
			Approved: false,
			Comments: []string{fmt.Sprintf("review failed: %v", reviewErr)},
		}
	} else {
		review = ParseReviewResult(output)
	}

	decision := o.decide(ctx, review, output)
	o.apply(ctx, projectPath, plan, task, review, decision)
}

// develop runs the development stage. Returns false when the attempt failed
// and the loop should continue without reviewing.
func (o *Orchestrator) develop(ctx context.Context, projectPath string, plan *Plan, task *Task) bool {
	deadline := time.Now().Add(o.opts.DevelopTimeout)
	dctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	start := time.Now()
	report, err := o.developer.Develop(dctx, DevelopRequest{
		TaskID:             task.ID,
		Goal:               plan.Goal,
		Title:              task.Title,
		Description:        task.Description,
		AcceptanceCriteria: task.AcceptanceCriteria,
		Context:            o.attemptContext(task),
		Deadline:           deadline,
	})
	stageDuration.WithLabelValues("develop").Observe(time.Since(start).Seconds())

	if err != nil {
		if dctx.Err() != nil {
			// The stage deadline expired or the run was stopped mid-call.
			// Either way the collaborator may still be working in the
			// background and must be told to abort.
			o.interruptDeveloper(task.ID)
		}
		o.logger.Warn("Development stage failed",
			"task_id", task.ID,
			"attempt", task.Attempt,
			"error", err)

		task.Status = TaskFailed
		o.persist(projectPath, plan)
		o.publish(ctx, notify.NewEvent(notify.EventTaskFailed, plan.ID, task.ID,
			fmt.Sprintf("development failed: %v", err)))
		return false
	}

	task.Report = TruncateTail(report, o.opts.ReportTailBytes)
	return true
}

// interruptDeveloper signals the collaborator to abort, bounded so a hung
// collaborator cannot stall the loop.
func (o *Orchestrator) interruptDeveloper(taskID string) {
	ictx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := o.developer.Interrupt(ictx, taskID); err != nil {
		o.logger.Warn("Failed to interrupt development collaborator",
			"task_id", taskID,
			"error", err)
	}
}

// review runs the review stage and returns the collaborator's raw output.
func (o *Orchestrator) review(ctx context.Context, projectPath string, plan *Plan, task *Task) (string, error) {
	task.Status = TaskInReview
	o.persist(projectPath, plan)
	o.publish(ctx, notify.NewEvent(notify.EventTaskInReview, plan.ID, task.ID, task.Title))

	deadline := time.Now().Add(o.opts.ReviewTimeout)
	rctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	start := time.Now()
	output, err := o.reviewer.Review(rctx, ReviewRequest{
		TaskID:             task.ID,
		Goal:               plan.Goal,
		Title:              task.Title,
		AcceptanceCriteria: task.AcceptanceCriteria,
		Report:             task.Report,
		Deadline:           deadline,
	})
	stageDuration.WithLabelValues("review").Observe(time.Since(start).Seconds())
	return output, err
}

// decide merges the review result with the optional oracle override.
func (o *Orchestrator) decide(ctx context.Context, review ReviewResult, rawOutput string) Decision {
	var override *Verdict
	if o.oracle != nil && strings.TrimSpace(rawOutput) != "" {
		vctx, cancel := context.WithTimeout(ctx, o.opts.ReportTimeout)
		verdict, err := o.oracle.NormalizeVerdict(vctx, rawOutput)
		cancel()
		if err != nil {
			o.logger.Debug("Verdict normalization failed, using review verdict", "error", err)
		} else {
			override = verdict
		}
	}
	return Decide(review, override)
}

// apply records the decision on the task and notifies observers.
func (o *Orchestrator) apply(ctx context.Context, projectPath string, plan *Plan, task *Task, review ReviewResult, decision Decision) {
	now := time.Now().UTC()

	if review.Summary != "" {
		task.LastSummary = review.Summary
	}

	if decision.Approved {
		task.Status = TaskApproved
		task.LastVerdict = VerdictApproved
		task.LastComments = decision.Reasons
		task.CompletedAt = &now
		taskOutcomes.WithLabelValues("approved").Inc()
		o.persist(projectPath, plan)
		o.publish(ctx, notify.NewEvent(notify.EventTaskApproved, plan.ID, task.ID, task.Title))
		return
	}

	task.Rejections = append(task.Rejections, RejectionRecord{
		Attempt:   task.Attempt,
		Comments:  decision.Reasons,
		Timestamp: now,
	})
	task.Status = TaskRejected
	task.LastVerdict = VerdictRejected
	task.LastComments = decision.Reasons
	taskOutcomes.WithLabelValues("rejected").Inc()

	if task.AttemptsExhausted() {
		task.Status = TaskFailed
		task.CompletedAt = &now
		taskOutcomes.WithLabelValues("failed").Inc()
	}

	o.persist(projectPath, plan)
	o.publish(ctx, notify.NewEvent(notify.EventTaskRejected, plan.ID, task.ID, task.Title, decision.Reasons...))
	if task.Status == TaskFailed {
		o.publish(ctx, notify.NewEvent(notify.EventTaskFailed, plan.ID, task.ID,
			fmt.Sprintf("%s: attempts exhausted", task.Title)))
	}
}

// finish resolves the plan's terminal status, persists it, and composes the
// final report.
func (o *Orchestrator) finish(ctx context.Context, projectPath string, plan *Plan) error {
	plan.CurrentTaskID = ""

	if plan.AllApproved() {
		plan.Status = PlanCompleted
	} else {
		plan.Status = PlanFailed
		for i := range plan.Tasks {
			switch plan.Tasks[i].Status {
			case TaskPending, TaskRejected:
				plan.Tasks[i].Status = TaskBlocked
			}
		}
	}

	o.persist(projectPath, plan)
	plansFinished.WithLabelValues(string(plan.Status)).Inc()

	eventType := notify.EventPlanCompleted
	if plan.Status == PlanFailed {
		eventType = notify.EventPlanFailed
	}
	o.publish(ctx, notify.NewEvent(eventType, plan.ID, "", plan.Goal))

	o.composeFinalReport(ctx, plan)
	o.persist(projectPath, plan)

	o.logger.Info("Plan finished",
		"plan_id", plan.ID,
		"status", string(plan.Status))
	return nil
}

// composeFinalReport asks the oracle for a human-readable summary, falling
// back to a locally built one.
func (o *Orchestrator) composeFinalReport(ctx context.Context, plan *Plan) {
	if o.oracle != nil {
		rctx, cancel := context.WithTimeout(ctx, o.opts.ReportTimeout)
		report, err := o.oracle.ComposeReport(rctx, plan)
		cancel()
		if err == nil && strings.TrimSpace(report) != "" {
			plan.FinalReport = report
			return
		}
		if err != nil {
			o.logger.Warn("Final report composition failed, using local summary", "error", err)
		}
	}
	plan.FinalReport = localReport(plan)
}

// localReport summarizes the plan without any collaborator.
func localReport(plan *Plan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Plan %s: %s\n\n", plan.Status, plan.Goal)
	for i := range plan.Tasks {
		t := &plan.Tasks[i]
		fmt.Fprintf(&sb, "%s %s — %s (attempts: %d)\n", t.Status.Glyph(), t.Title, t.Status, t.Attempt)
		for _, r := range t.Rejections {
			for _, c := range r.Comments {
				fmt.Fprintf(&sb, "    attempt %d: %s\n", r.Attempt, c)
			}
		}
	}
	return sb.String()
}

// attemptContext builds the feedback context for a retry attempt.
func (o *Orchestrator) attemptContext(task *Task) string {
	if len(task.Rejections) == 0 && task.Report == "" {
		return ""
	}

	var sb strings.Builder
	if len(task.Rejections) > 0 {
		sb.WriteString("Previous attempts were rejected:\n")
		for _, r := range task.Rejections {
			for _, c := range r.Comments {
				fmt.Fprintf(&sb, "- attempt %d: %s\n", r.Attempt, c)
			}
		}
	}
	if task.Report != "" {
		sb.WriteString("\nMost recent development report (tail):\n")
		sb.WriteString(task.Report)
	}
	return sb.String()
}

// persist writes through after a state transition. Persistence failures are
// logged and the loop continues: the orchestrator degrades rather than
// crashing on I/O errors.
func (o *Orchestrator) persist(projectPath string, plan *Plan) {
	if err := o.store.Save(projectPath, plan); err != nil {
		o.logger.Error("Failed to persist plan",
			"project", projectPath,
			"plan_id", plan.ID,
			"error", err)
	}
}

// publish delivers an event, best effort.
func (o *Orchestrator) publish(ctx context.Context, event notify.Event) {
	if err := o.notifier.Publish(ctx, event); err != nil {
		o.logger.Debug("Failed to publish event", "type", string(event.Type), "error", err)
	}
}
