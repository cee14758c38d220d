package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDeveloper scripts per-call reports and records interrupts.
type fakeDeveloper struct {
	mu          sync.Mutex
	reports     []string
	err         error
	block       bool
	calls       int
	interrupted []string
}

func (f *fakeDeveloper) Develop(ctx context.Context, req DevelopRequest) (string, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	if idx < len(f.reports) {
		return f.reports[idx], nil
	}
	return "work done", nil
}

func (f *fakeDeveloper) Interrupt(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupted = append(f.interrupted, taskID)
	return nil
}

func (f *fakeDeveloper) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeReviewer scripts per-call review outputs.
type fakeReviewer struct {
	outputs []string
	err     error
	calls   int
}

func (f *fakeReviewer) Review(_ context.Context, req ReviewRequest) (string, error) {
	idx := f.calls
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if idx < len(f.outputs) {
		return f.outputs[idx], nil
	}
	return `{"approved": true}`, nil
}

func newTestOrchestrator(t *testing.T, dev Developer, rev Reviewer, opts Options) (*Orchestrator, string) {
	t.Helper()
	dir := t.TempDir()
	store := NewStore(nil)
	return NewOrchestrator(store, dev, rev, nil, nil, opts, nil), dir
}

func TestRunApprovesAllTasks(t *testing.T) {
	dev := &fakeDeveloper{reports: []string{"built a", "built b"}}
	rev := &fakeReviewer{outputs: []string{`{"approved": true}`, `{"approved": true}`}}
	orch, dir := newTestOrchestrator(t, dev, rev, Options{})

	plan := twoTaskPlan()
	require.NoError(t, orch.Run(context.Background(), dir, plan))

	assert.Equal(t, PlanCompleted, plan.Status)
	assert.Equal(t, TaskApproved, plan.Tasks[0].Status)
	assert.Equal(t, TaskApproved, plan.Tasks[1].Status)
	assert.Equal(t, 1, plan.Tasks[0].Attempt)
	assert.NotNil(t, plan.Tasks[0].CompletedAt)
	assert.NotEmpty(t, plan.FinalReport)
	assert.Empty(t, plan.CurrentTaskID)

	// The finished plan round-trips through the store.
	loaded, err := NewStore(nil).Load(dir)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, PlanCompleted, loaded.Status)
}

func TestRunRetriesRejectedTask(t *testing.T) {
	dev := &fakeDeveloper{}
	rev := &fakeReviewer{outputs: []string{
		`{"approved": false, "comments": ["missing tests"]}`,
		`{"approved": true}`,
	}}
	orch, dir := newTestOrchestrator(t, dev, rev, Options{})

	plan := &Plan{
		ID: "p1", Goal: "g", Status: PlanActive,
		Tasks: []Task{{ID: "a", Title: "Only", Status: TaskPending, MaxAttempts: 3}},
	}
	require.NoError(t, orch.Run(context.Background(), dir, plan))

	assert.Equal(t, PlanCompleted, plan.Status)
	assert.Equal(t, TaskApproved, plan.Tasks[0].Status)
	assert.Equal(t, 2, plan.Tasks[0].Attempt)
	require.Len(t, plan.Tasks[0].Rejections, 1)
	assert.Equal(t, 1, plan.Tasks[0].Rejections[0].Attempt)
	assert.Equal(t, []string{"missing tests"}, plan.Tasks[0].Rejections[0].Comments)
}

func TestRunExhaustsAttemptsAndFailsPlan(t *testing.T) {
	dev := &fakeDeveloper{}
	rev := &fakeReviewer{outputs: []string{
		`{"approved": false, "comments": ["wrong"]}`,
		`{"approved": false, "comments": ["still wrong"]}`,
	}}
	orch, dir := newTestOrchestrator(t, dev, rev, Options{})

	plan := &Plan{
		ID: "p1", Goal: "g", Status: PlanActive,
		Tasks: []Task{
			{ID: "a", Title: "First", Status: TaskPending, MaxAttempts: 2},
			{ID: "b", Title: "Second", Status: TaskPending, MaxAttempts: 2, DependsOn: []string{"a"}},
		},
	}
	require.NoError(t, orch.Run(context.Background(), dir, plan))

	assert.Equal(t, PlanFailed, plan.Status)
	assert.Equal(t, TaskFailed, plan.Tasks[0].Status)
	assert.Equal(t, 2, plan.Tasks[0].Attempt)
	assert.Len(t, plan.Tasks[0].Rejections, 2)
	assert.Equal(t, TaskBlocked, plan.Tasks[1].Status, "dependent never ran and is blocked")
	assert.Equal(t, 2, dev.callCount())
	assert.NotEmpty(t, plan.FinalReport)
}

func TestRunDevelopTimeoutInterruptsAndRetries(t *testing.T) {
	dev := &fakeDeveloper{block: true}
	rev := &fakeReviewer{}
	orch, dir := newTestOrchestrator(t, dev, rev, Options{DevelopTimeout: 50 * time.Millisecond})

	plan := &Plan{
		ID: "p1", Goal: "g", Status: PlanActive,
		Tasks: []Task{{ID: "a", Title: "Hangs", Status: TaskPending, MaxAttempts: 2}},
	}
	require.NoError(t, orch.Run(context.Background(), dir, plan))

	assert.Equal(t, PlanFailed, plan.Status)
	assert.Equal(t, TaskFailed, plan.Tasks[0].Status)
	assert.Equal(t, 2, dev.callCount(), "a timed-out attempt is retried until exhaustion")
	assert.Equal(t, []string{"a", "a"}, dev.interrupted, "every timeout interrupts the collaborator")
	assert.Equal(t, 0, rev.calls, "a failed development stage never reaches review")
}

func TestRunCancelInterruptsDeveloper(t *testing.T) {
	// An external stop mid-development is not just a cancelled call: the
	// delegated operation keeps running in the background unless the
	// collaborator is told to abort.
	dev := &fakeDeveloper{block: true}
	rev := &fakeReviewer{}
	orch, dir := newTestOrchestrator(t, dev, rev, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	plan := &Plan{
		ID: "p1", Goal: "g", Status: PlanActive,
		Tasks: []Task{{ID: "a", Title: "Hangs", Status: TaskPending, MaxAttempts: 3}},
	}
	err := orch.Run(ctx, dir, plan)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []string{"a"}, dev.interrupted, "a cancelled run aborts the in-flight operation")
	assert.Equal(t, 0, rev.calls)
}

func TestRunStoresReviewSummary(t *testing.T) {
	dev := &fakeDeveloper{}
	rev := &fakeReviewer{outputs: []string{`{"approved": true, "summary": "clean implementation"}`}}
	orch, dir := newTestOrchestrator(t, dev, rev, Options{})

	plan := &Plan{
		ID: "p1", Goal: "g", Status: PlanActive,
		Tasks: []Task{{ID: "a", Title: "Only", Status: TaskPending, MaxAttempts: 1}},
	}
	require.NoError(t, orch.Run(context.Background(), dir, plan))

	assert.Equal(t, "clean implementation", plan.Tasks[0].LastSummary)
	assert.Equal(t, VerdictApproved, plan.Tasks[0].LastVerdict)
}

func TestRunReviewErrorCountsAsRejection(t *testing.T) {
	dev := &fakeDeveloper{}
	rev := &fakeReviewer{err: errors.New("review backend down")}
	orch, dir := newTestOrchestrator(t, dev, rev, Options{})

	plan := &Plan{
		ID: "p1", Goal: "g", Status: PlanActive,
		Tasks: []Task{{ID: "a", Title: "Only", Status: TaskPending, MaxAttempts: 1}},
	}
	require.NoError(t, orch.Run(context.Background(), dir, plan))

	assert.Equal(t, PlanFailed, plan.Status)
	assert.Equal(t, TaskFailed, plan.Tasks[0].Status)
	require.Len(t, plan.Tasks[0].Rejections, 1)
	assert.Contains(t, plan.Tasks[0].Rejections[0].Comments[0], "review failed")
}

func TestRunResumesTaskInReview(t *testing.T) {
	// A restart finds the task already in review with a stored report: review
	// runs again without redeveloping and without bumping the attempt.
	dev := &fakeDeveloper{}
	rev := &fakeReviewer{outputs: []string{`{"approved": true}`}}
	orch, dir := newTestOrchestrator(t, dev, rev, Options{})

	plan := &Plan{
		ID: "p1", Goal: "g", Status: PlanActive,
		Tasks: []Task{{
			ID: "a", Title: "Resumed", Status: TaskInReview,
			Attempt: 1, MaxAttempts: 3, Report: "work from before the crash",
		}},
	}
	require.NoError(t, orch.Run(context.Background(), dir, plan))

	assert.Equal(t, PlanCompleted, plan.Status)
	assert.Equal(t, 0, dev.callCount(), "resume skips redevelopment")
	assert.Equal(t, 1, rev.calls)
	assert.Equal(t, 1, plan.Tasks[0].Attempt, "resume does not re-count the attempt")
}

func TestRunPause(t *testing.T) {
	dev := &fakeDeveloper{}
	rev := &fakeReviewer{}
	orch, dir := newTestOrchestrator(t, dev, rev, Options{})
	orch.Pause()

	plan := &Plan{
		ID: "p1", Goal: "g", Status: PlanActive,
		Tasks: []Task{{ID: "a", Title: "Never runs", Status: TaskPending, MaxAttempts: 3}},
	}
	require.NoError(t, orch.Run(context.Background(), dir, plan))

	assert.Equal(t, PlanPaused, plan.Status)
	assert.Equal(t, TaskPending, plan.Tasks[0].Status, "pause preserves task state")
	assert.Equal(t, 0, dev.callCount())
}

func TestRunRejectsNonActivePlan(t *testing.T) {
	orch, dir := newTestOrchestrator(t, &fakeDeveloper{}, &fakeReviewer{}, Options{})

	plan := &Plan{ID: "p1", Goal: "g", Status: PlanCompleted}
	assert.Error(t, orch.Run(context.Background(), dir, plan))
}

func TestRunWithOracleOverride(t *testing.T) {
	dev := &fakeDeveloper{}
	rev := &fakeReviewer{outputs: []string{`{"approved": true}`}}
	oracle := &fakeOracle{verdict: &Verdict{Verdict: VerdictRejected, Reasons: []string{"oracle disagrees"}}}

	dir := t.TempDir()
	orch := NewOrchestrator(NewStore(nil), dev, rev, oracle, nil, Options{}, nil)

	plan := &Plan{
		ID: "p1", Goal: "g", Status: PlanActive,
		Tasks: []Task{{ID: "a", Title: "Only", Status: TaskPending, MaxAttempts: 1}},
	}
	require.NoError(t, orch.Run(context.Background(), dir, plan))

	assert.Equal(t, PlanFailed, plan.Status)
	assert.Equal(t, TaskFailed, plan.Tasks[0].Status, "oracle rejection overrides reviewer approval")
	require.Len(t, plan.Tasks[0].Rejections, 1)
	assert.Equal(t, []string{"oracle disagrees"}, plan.Tasks[0].Rejections[0].Comments)
	assert.Equal(t, "oracle report", plan.FinalReport)
}

type fakeOracle struct {
	verdict *Verdict
}

func (f *fakeOracle) NormalizeVerdict(_ context.Context, _ string) (*Verdict, error) {
	if f.verdict == nil {
		return nil, errors.New("no verdict")
	}
	return f.verdict, nil
}

func (f *fakeOracle) ComposeReport(_ context.Context, _ *Plan) (string, error) {
	return "oracle report", nil
}
