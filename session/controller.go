// Package session serializes work per session: at most one unit runs per
// session at a time, later submissions queue in FIFO order, and an interrupt
// cancels the in-flight unit without losing the backlog.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrDuplicate is returned when a unit with the same ID is already running or
// queued for the session.
var ErrDuplicate = errors.New("unit already dispatched for session")

// Unit is one serialized piece of work.
type Unit struct {
	ID  string
	Run func(ctx context.Context) error
}

// AbortFunc is called during an interrupt so the collaborator behind the unit
// can stop its background work. The unit's context is already cancelled when
// it runs.
type AbortFunc func(ctx context.Context, unitID string) error

// Controller owns the per-session dispatch state.
type Controller struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
	abort    AbortFunc
	logger   *slog.Logger
	wg       sync.WaitGroup
}

type sessionState struct {
	busy      bool
	active    string
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	backlog   []Unit
}

// NewController builds a controller. The abort callback is optional.
func NewController(abort AbortFunc, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		sessions: make(map[string]*sessionState),
		abort:    abort,
		logger:   logger,
	}
}

// Submit dispatches the unit for the session, or queues it when one is
// already in flight. A unit ID that is already running or queued for the same
// session is rejected with ErrDuplicate.
func (c *Controller) Submit(sessionID string, unit Unit) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if unit.ID == "" || unit.Run == nil {
		return fmt.Errorf("unit requires an id and a run function")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.sessions[sessionID]
	if st == nil {
		st = &sessionState{}
		c.sessions[sessionID] = st
	}

	if st.active == unit.ID {
		return ErrDuplicate
	}
	for _, queued := range st.backlog {
		if queued.ID == unit.ID {
			return ErrDuplicate
		}
	}

	if st.busy {
		st.backlog = append(st.backlog, unit)
		c.logger.Debug("Unit queued behind active work",
			"session_id", sessionID,
			"unit_id", unit.ID,
			"backlog", len(st.backlog))
		return nil
	}

	c.dispatch(sessionID, st, unit)
	return nil
}

// dispatch starts the unit. Caller holds the lock.
func (c *Controller) dispatch(sessionID string, st *sessionState, unit Unit) {
	ctx, cancel := context.WithCancel(context.Background())
	st.busy = true
	st.active = unit.ID
	st.startedAt = time.Now().UTC()
	st.cancel = cancel
	st.done = make(chan struct{})

	c.wg.Add(1)
	go c.run(ctx, sessionID, unit, st.done)
}

// run executes the unit outside the lock, then releases the session and pops
// exactly one queued unit.
func (c *Controller) run(ctx context.Context, sessionID string, unit Unit, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)

	c.logger.Debug("Unit started", "session_id", sessionID, "unit_id", unit.ID)
	if err := unit.Run(ctx); err != nil {
		c.logger.Warn("Unit finished with error",
			"session_id", sessionID,
			"unit_id", unit.ID,
			"error", err)
	}

	c.release(sessionID)
}

// release clears the busy state and dispatches the next queued unit, if any,
// as a fresh unit with its own context.
func (c *Controller) release(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.sessions[sessionID]
	if st == nil {
		return
	}
	st.busy = false
	st.active = ""
	st.startedAt = time.Time{}
	st.cancel = nil
	st.done = nil

	if len(st.backlog) == 0 {
		return
	}
	next := st.backlog[0]
	st.backlog = st.backlog[1:]
	c.dispatch(sessionID, st, next)
}

// Interrupt cancels the session's in-flight unit, signals the abort callback,
// and waits for the unit to return. Queued units stay queued; the next one
// starts once the cancelled unit finishes. A session with nothing in flight
// is a no-op.
func (c *Controller) Interrupt(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	st := c.sessions[sessionID]
	if st == nil || !st.busy {
		c.mu.Unlock()
		return nil
	}
	active := st.active
	startedAt := st.startedAt
	cancel := st.cancel
	done := st.done
	c.mu.Unlock()

	c.logger.Info("Interrupting session",
		"session_id", sessionID,
		"unit_id", active,
		"running_for", time.Since(startedAt))
	cancel()

	if c.abort != nil {
		if err := c.abort(ctx, active); err != nil {
			c.logger.Warn("Abort callback failed",
				"session_id", sessionID,
				"unit_id", active,
				"error", err)
		}
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for interrupted unit %s: %w", active, ctx.Err())
	}
}

// StartedAt reports when the session's in-flight unit began, or the zero time
// when nothing is running.
func (c *Controller) StartedAt(sessionID string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.sessions[sessionID]
	if st == nil || !st.busy {
		return time.Time{}
	}
	return st.startedAt
}

// Busy reports whether the session has a unit in flight.
func (c *Controller) Busy(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.sessions[sessionID]
	return st != nil && st.busy
}

// Backlog reports how many units are queued behind the active one.
func (c *Controller) Backlog(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.sessions[sessionID]
	if st == nil {
		return 0
	}
	return len(st.backlog)
}

// Wait blocks until every dispatched unit has returned. Intended for
// shutdown, after interrupting or draining sessions.
func (c *Controller) Wait() {
	c.wg.Wait()
}
