package executor

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/c360studio/foreman/llm"
)

// blockedKeywords indicate a denial in an error message from a collaborator
// that doesn't use typed errors.
var blockedKeywords = []string{
	"blocked",
	"not allowed",
	"not permitted",
	"permission denied",
	"forbidden",
}

// IsBlocked returns true for typed denials and for messages that indicate an
// explicit block/not-allowed condition.
func IsBlocked(err error) bool {
	if err == nil {
		return false
	}
	if llm.IsBlocked(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range blockedKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// IsTimeout returns true when the error is a deadline expiry at either the
// context or network layer.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// transientKeywords match the usual spellings of temporary network trouble.
var transientKeywords = []string{
	"timeout",
	"timed out",
	"connection",
	"reset",
	"temporary",
	"unavailable",
}

// IsTransient returns true when the error looks worth retrying: a recognized
// transient error kind, or a message matching the transient heuristic.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if llm.IsTransient(err) {
		return true
	}
	if IsTimeout(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range transientKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
