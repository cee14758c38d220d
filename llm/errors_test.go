package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")

	assert.True(t, IsTransient(NewTransientError(base)))
	assert.True(t, IsFatal(NewFatalError(base)))
	assert.True(t, IsBlocked(NewBlockedError(base)))

	// Each kind matches only its own predicate.
	assert.False(t, IsTransient(NewFatalError(base)))
	assert.False(t, IsFatal(NewBlockedError(base)))
	assert.False(t, IsBlocked(NewTransientError(base)))

	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(base))
}

func TestClassifiedUnwraps(t *testing.T) {
	base := errors.New("quota exceeded")
	wrapped := NewFatalError(base)
	require.ErrorIs(t, wrapped, base)
	assert.Equal(t, "quota exceeded", wrapped.Error())
}
