package llm

import "errors"

// errKind classifies a collaborator failure for retry decisions. The same
// taxonomy covers the model endpoint and the delegated executor: transient
// failures are retried, fatal ones are not, and blocked ones are permanent
// denials that callers surface differently from ordinary failures.
type errKind int

const (
	kindTransient errKind = iota
	kindFatal
	kindBlocked
)

// classified wraps an error with its retry classification.
type classified struct {
	kind errKind
	err  error
}

func (e *classified) Error() string { return e.err.Error() }

func (e *classified) Unwrap() error { return e.err }

// NewTransientError marks an error as retryable.
func NewTransientError(err error) error {
	return &classified{kind: kindTransient, err: err}
}

// NewFatalError marks an error as permanent; retrying cannot help.
func NewFatalError(err error) error {
	return &classified{kind: kindFatal, err: err}
}

// NewBlockedError marks an explicit permission or policy denial. Retries are
// abandoned immediately, regardless of remaining budget.
func NewBlockedError(err error) error {
	return &classified{kind: kindBlocked, err: err}
}

func is(err error, kind errKind) bool {
	var c *classified
	return errors.As(err, &c) && c.kind == kind
}

// IsTransient reports whether the error was classified as retryable.
func IsTransient(err error) bool { return is(err, kindTransient) }

// IsFatal reports whether the error was classified as permanent.
func IsFatal(err error) bool { return is(err, kindFatal) }

// IsBlocked reports whether the error was classified as a denial.
func IsBlocked(err error) bool { return is(err, kindBlocked) }
