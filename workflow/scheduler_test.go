package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoTaskPlan() *Plan {
	return &Plan{
		ID:     "p1",
		Goal:   "ship",
		Status: PlanActive,
		Tasks: []Task{
			{ID: "a", Title: "First", Status: TaskPending, MaxAttempts: 3},
			{ID: "b", Title: "Second", Status: TaskPending, MaxAttempts: 3, DependsOn: []string{"a"}},
		},
	}
}

func TestNextReadyDeclaredOrder(t *testing.T) {
	plan := &Plan{Tasks: []Task{
		{ID: "x", Status: TaskPending},
		{ID: "y", Status: TaskPending},
	}}

	got := NextReady(plan)
	require.NotNil(t, got)
	assert.Equal(t, "x", got.ID, "scan follows declared task order")
}

func TestNextReadyWaitsForDependencies(t *testing.T) {
	plan := twoTaskPlan()

	got := NextReady(plan)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.ID)

	plan.Tasks[0].Status = TaskApproved
	got = NextReady(plan)
	require.NotNil(t, got)
	assert.Equal(t, "b", got.ID, "dependency approval unblocks the dependent")
}

func TestNextReadySkipsApprovedAndBlocked(t *testing.T) {
	plan := &Plan{Tasks: []Task{
		{ID: "a", Status: TaskApproved},
		{ID: "b", Status: TaskBlocked},
		{ID: "c", Status: TaskPending},
	}}

	got := NextReady(plan)
	require.NotNil(t, got)
	assert.Equal(t, "c", got.ID)
}

func TestNextReadyNormalizesRejectedToPending(t *testing.T) {
	plan := &Plan{Tasks: []Task{
		{ID: "a", Status: TaskRejected, Attempt: 1, MaxAttempts: 3},
	}}

	got := NextReady(plan)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, TaskPending, got.Status, "rejected with attempts left resets to pending")
}

func TestNextReadyResumesInFlightInPlace(t *testing.T) {
	// A restart finds tasks mid-stage; they resume without status reset.
	for _, status := range []TaskStatus{TaskInProgress, TaskInReview} {
		plan := &Plan{Tasks: []Task{
			{ID: "a", Status: status, Attempt: 1, MaxAttempts: 3},
		}}

		got := NextReady(plan)
		require.NotNil(t, got, string(status))
		assert.Equal(t, status, got.Status, "in-flight status is preserved for resume")
	}
}

func TestNextReadyExhaustedBecomesFailed(t *testing.T) {
	plan := &Plan{Tasks: []Task{
		{ID: "a", Status: TaskRejected, Attempt: 3, MaxAttempts: 3},
		{ID: "b", Status: TaskPending},
	}}

	got := NextReady(plan)
	require.NotNil(t, got)
	assert.Equal(t, "b", got.ID)
	assert.Equal(t, TaskFailed, plan.Tasks[0].Status, "exhausted task parks as failed")
}

func TestNextReadyCascadeBlocksDependents(t *testing.T) {
	plan := &Plan{Tasks: []Task{
		{ID: "a", Status: TaskFailed, Attempt: 3, MaxAttempts: 3},
		{ID: "b", Status: TaskPending, DependsOn: []string{"a"}},
		{ID: "c", Status: TaskPending, DependsOn: []string{"b"}},
		{ID: "d", Status: TaskPending},
	}}

	got := NextReady(plan)
	require.NotNil(t, got)
	assert.Equal(t, "d", got.ID)
	assert.Equal(t, TaskBlocked, plan.Tasks[1].Status, "dependent of a terminal failure is blocked")
	assert.Equal(t, TaskBlocked, plan.Tasks[2].Status, "blocking cascades transitively within one scan")

	plan.Tasks[3].Status = TaskApproved
	assert.Nil(t, NextReady(plan), "nothing left to schedule")
	assert.True(t, IsBlocked(plan))
}

func TestNextReadyDanglingDependency(t *testing.T) {
	plan := &Plan{Tasks: []Task{
		{ID: "a", Status: TaskPending, DependsOn: []string{"no-such-task"}},
		{ID: "b", Status: TaskPending},
	}}

	got := NextReady(plan)
	require.NotNil(t, got)
	assert.Equal(t, "b", got.ID)
	assert.Equal(t, TaskPending, plan.Tasks[0].Status, "dangling deps leave the task pending, not blocked")
}

func TestNextReadyFailedDepWithAttemptsLeftIsNotCascade(t *testing.T) {
	// A failed dependency that still has attempts will be rescheduled, so its
	// dependents wait rather than block. The dependency itself is the next
	// ready task.
	plan := &Plan{Tasks: []Task{
		{ID: "a", Status: TaskFailed, Attempt: 1, MaxAttempts: 3},
		{ID: "b", Status: TaskPending, DependsOn: []string{"a"}},
	}}

	got := NextReady(plan)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, TaskPending, plan.Tasks[1].Status)
}

func TestNextReadyEmptyPlan(t *testing.T) {
	assert.Nil(t, NextReady(&Plan{}))
}

func TestNextReadyUnknownStatusLeftAlone(t *testing.T) {
	plan := &Plan{Tasks: []Task{
		{ID: "a", Status: TaskStatus("garbage")},
		{ID: "b", Status: TaskPending},
	}}

	got := NextReady(plan)
	require.NotNil(t, got)
	assert.Equal(t, "b", got.ID)
	assert.Equal(t, TaskStatus("garbage"), plan.Tasks[0].Status)
}

func TestIsBlocked(t *testing.T) {
	tests := []struct {
		name string
		plan *Plan
		want bool
	}{
		{
			name: "all approved is not blocked",
			plan: &Plan{Tasks: []Task{{ID: "a", Status: TaskApproved}}},
			want: false,
		},
		{
			name: "pending task can progress",
			plan: &Plan{Tasks: []Task{{ID: "a", Status: TaskPending}}},
			want: false,
		},
		{
			name: "rejected with attempts left can progress",
			plan: &Plan{Tasks: []Task{{ID: "a", Status: TaskRejected, Attempt: 1, MaxAttempts: 3}}},
			want: false,
		},
		{
			name: "exhausted failure blocks",
			plan: &Plan{Tasks: []Task{{ID: "a", Status: TaskFailed, Attempt: 3, MaxAttempts: 3}}},
			want: true,
		},
		{
			name: "approved plus blocked is blocked",
			plan: &Plan{Tasks: []Task{
				{ID: "a", Status: TaskApproved},
				{ID: "b", Status: TaskBlocked},
			}},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBlocked(tt.plan))
		})
	}
}

func TestAttemptsExhaustedDefaultCap(t *testing.T) {
	task := Task{Attempt: 2}
	assert.False(t, task.AttemptsExhausted())
	task.Attempt = 3
	assert.True(t, task.AttemptsExhausted(), "undeclared cap falls back to the default")

	task = Task{Attempt: 1, MaxAttempts: 1}
	assert.True(t, task.AttemptsExhausted())
}
