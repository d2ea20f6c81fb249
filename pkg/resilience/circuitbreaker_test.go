package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Name:             "test",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		RetryTimeout:     20 * time.Millisecond,
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(testConfig(), nil)
	failing := errors.New("downstream down")

	for i := 0; i < 3; i++ {
		err := cb.Execute(func() error { return failing })
		assert.ErrorIs(t, err, failing)
	}
	assert.Equal(t, StateOpen, cb.State())

	// Short-circuited without invoking the function
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(testConfig(), nil)
	failing := errors.New("downstream down")

	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return failing })
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(30 * time.Millisecond)

	// First probe after the retry timeout is allowed through
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker(testConfig(), nil)
	failing := errors.New("downstream down")

	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return failing })
	}
	time.Sleep(30 * time.Millisecond)

	err := cb.Execute(func() error { return failing })
	assert.ErrorIs(t, err, failing)
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(testConfig(), nil)
	failing := errors.New("flaky")

	cb.Execute(func() error { return failing })
	cb.Execute(func() error { return failing })
	require.NoError(t, cb.Execute(func() error { return nil }))

	// The two earlier failures no longer count toward the threshold
	cb.Execute(func() error { return failing })
	cb.Execute(func() error { return failing })
	assert.Equal(t, StateClosed, cb.State())
}
