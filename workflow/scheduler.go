package workflow

// Scheduling is a pure scan over the plan's declared task order. The only
// side effects are status normalizations recorded in place: stale in-flight
// statuses found after a restart are resumed, retryable failures are reset
// to pending, and exhausted or cascade-blocked tasks are parked.

// NextReady returns the next task eligible to run, or nil when the scan
// finds none. Evaluated in declared task order:
//
//  1. Approved and blocked tasks are skipped.
//  2. A rejected or failed task with attempts remaining is normalized to
//     pending; one found in_progress or in_review is resumed in place so a
//     restart continues from the stage it was in. Either way, a task whose
//     attempts are exhausted transitions to failed and is skipped.
//  3. A candidate is ready only when every dependency is approved. When a
//     dependency can never be satisfied because it terminally failed, the
//     candidate is marked blocked and the scan continues.
func NextReady(plan *Plan) *Task {
	for i := range plan.Tasks {
		task := &plan.Tasks[i]

		switch task.Status {
		case TaskApproved, TaskBlocked:
			continue

		case TaskRejected, TaskFailed, TaskInProgress, TaskInReview:
			if task.AttemptsExhausted() {
				task.Status = TaskFailed
				continue
			}
			if task.Status == TaskRejected || task.Status == TaskFailed {
				task.Status = TaskPending
			}

		case TaskPending:
			// Candidate as-is.

		default:
			// Unrecognized status in a hand-edited plan file. Leave it alone.
			continue
		}

		unmet := false
		cascade := false
		for _, depID := range task.DependsOn {
			dep := plan.Task(depID)
			if dep == nil {
				// Dangling reference: tolerated as never satisfied.
				unmet = true
				continue
			}
			if dep.Status == TaskApproved {
				continue
			}
			unmet = true
			if depNeverSatisfiable(dep) {
				cascade = true
			}
		}

		if cascade {
			task.Status = TaskBlocked
			continue
		}
		if unmet {
			continue
		}

		return task
	}

	return nil
}

// depNeverSatisfiable reports whether a dependency can never reach approved:
// it terminally failed, or was itself blocked by a failed dependency.
func depNeverSatisfiable(dep *Task) bool {
	switch dep.Status {
	case TaskBlocked:
		return true
	case TaskFailed:
		return dep.AttemptsExhausted()
	default:
		return false
	}
}

// IsBlocked reports whether the scan can make no further progress while the
// goal is not fully met. This drives the terminal failed-versus-completed
// decision.
func IsBlocked(plan *Plan) bool {
	if plan.AllApproved() {
		return false
	}
	for i := range plan.Tasks {
		if taskCanProgress(&plan.Tasks[i]) {
			return false
		}
	}
	return true
}

// taskCanProgress reports whether a task could still be scheduled.
func taskCanProgress(task *Task) bool {
	switch task.Status {
	case TaskPending:
		return true
	case TaskRejected, TaskFailed, TaskInProgress, TaskInReview:
		return !task.AttemptsExhausted()
	default:
		return false
	}
}
