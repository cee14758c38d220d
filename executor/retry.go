package executor

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// Backend is the external collaborator that performs delegated work.
type Backend interface {
	Execute(ctx context.Context, req Request) (*Response, error)

	// Interrupt asks the collaborator to abort any in-flight work for the
	// task.
	Interrupt(ctx context.Context, taskID string) error
}

// RetryConfig bounds the retry policy around a delegated call.
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
}

// DefaultRetryConfig returns the default executor retry budget.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 2}
}

// Backoff schedule constants: the delay before retry k (0-indexed) is
// backoffBase × 2^k plus a uniform jitter in [0, backoffJitter).
const (
	backoffBase   = 600 * time.Millisecond
	backoffJitter = 200 * time.Millisecond
)

// backoffDelay returns the jittered delay before retry k.
func backoffDelay(k int) time.Duration {
	delay := backoffBase << uint(k)
	return delay + time.Duration(rand.Int63n(int64(backoffJitter)))
}

// ExecuteWithRetry wraps one delegated call with bounded retries.
// Classification: a timeout is retried only while attempts remain; a
// blocking denial abandons retries immediately; any other error is retried
// only when it matches the transient heuristic. A validation failure is
// raised before any work starts and never retried. Exhausting the budget
// yields a terminal error response carrying the last error's message.
func ExecuteWithRetry(ctx context.Context, backend Backend, req Request, cfg RetryConfig, logger *slog.Logger) (*Response, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt - 1)
			logger.Debug("Retrying delegated call",
				"task_id", req.TaskID,
				"attempt", attempt+1,
				"max_attempts", cfg.MaxRetries+1,
				"backoff", delay,
				"error", lastErr)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := backend.Execute(ctx, req)
		if err == nil {
			if verr := resp.Validate(); verr != nil {
				// A malformed response is a contract violation, not a
				// transient condition.
				return nil, verr
			}
			return resp, nil
		}
		lastErr = err

		if IsTimeout(err) {
			continue
		}
		if IsBlocked(err) {
			logger.Warn("Delegated call blocked, abandoning retries",
				"task_id", req.TaskID,
				"error", err)
			break
		}
		if !IsTransient(err) {
			break
		}
	}

	return &Response{
		TaskID:  req.TaskID,
		Status:  StatusError,
		Summary: lastErr.Error(),
	}, nil
}
