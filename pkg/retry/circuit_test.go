package retry

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(clk clockwork.Clock) *CircuitBreaker {
	return NewCircuitBreakerWithClock(CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
	}, clk)
}

func TestCircuitBreaker_ClosedAllowsUntilThreshold(t *testing.T) {
	clk := clockwork.NewFakeClock()
	cb := newTestBreaker(clk)

	for i := 0; i < 2; i++ {
		require.True(t, cb.Allow())
		cb.RecordFailure()
		assert.Equal(t, StateClosed, cb.State())
	}

	require.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_SuccessResetsFailureCountWhileClosed(t *testing.T) {
	clk := clockwork.NewFakeClock()
	cb := newTestBreaker(clk)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	assert.Equal(t, StateClosed, cb.State(), "success should have reset the streak below threshold")
}

func TestCircuitBreaker_OpenRejectsUntilTimeoutElapses(t *testing.T) {
	clk := clockwork.NewFakeClock()
	cb := newTestBreaker(clk)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	require.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow(), "open breaker must reject before the cooldown elapses")

	clk.Advance(59 * time.Second)
	assert.False(t, cb.Allow(), "must still reject one second before cooldown expiry")

	clk.Advance(2 * time.Second)
	assert.True(t, cb.Allow(), "cooldown elapsed, breaker must probe in half-open")
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	clk := clockwork.NewFakeClock()
	cb := newTestBreaker(clk)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	clk.Advance(time.Minute)
	require.True(t, cb.Allow())
	require.Equal(t, StateHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, StateHalfOpen, cb.State(), "one success is below SuccessThreshold=2")
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopensImmediately(t *testing.T) {
	clk := clockwork.NewFakeClock()
	cb := newTestBreaker(clk)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	clk.Advance(time.Minute)
	require.True(t, cb.Allow())
	require.Equal(t, StateHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := newTestBreaker(clockwork.NewFakeClock())
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestBreakers_PerDeviceIsolation(t *testing.T) {
	reg := NewBreakers(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute})

	a := reg.For("switch-a")
	a.RecordFailure()
	assert.Equal(t, StateOpen, reg.For("switch-a").State())
	assert.Equal(t, StateClosed, reg.For("switch-b").State(), "a different device's breaker must be unaffected")

	assert.Same(t, a, reg.For("switch-a"), "repeated lookups for the same device must return the same breaker")
}
