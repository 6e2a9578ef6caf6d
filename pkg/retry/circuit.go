package retry

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// CircuitState is the state of a per-device CircuitBreaker.
type CircuitState int

const (
	// StateClosed lets connect/command attempts through normally.
	StateClosed CircuitState = iota
	// StateOpen rejects attempts immediately, without touching the device.
	StateOpen
	// StateHalfOpen allows one attempt through to probe recovery.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failed operations
	// (connect or command execution, after their own retry policy has
	// given up) before the breaker opens for a device.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes in
	// half-open state required to fully close the breaker again.
	SuccessThreshold int
	// Timeout is how long the breaker stays open before allowing a
	// single half-open probe.
	Timeout time.Duration
}

// DefaultCircuitBreakerConfig returns the default per-device breaker
// configuration: five consecutive failures opens the circuit, two
// consecutive successes closes it, with a one-minute cooldown.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
	}
}

// CircuitBreaker stops an executor from repeatedly retrying connect or
// command attempts against a switch that is consistently failing. It
// sits above Policy: Policy governs one operation's internal attempts,
// CircuitBreaker governs whether that operation is attempted at all.
type CircuitBreaker struct {
	mu sync.RWMutex

	config       CircuitBreakerConfig
	clock        clockwork.Clock
	state        CircuitState
	failureCount int
	successCount int
	lastFailure  time.Time
	openedAt     time.Time
}

// NewCircuitBreaker creates a closed CircuitBreaker with the given config,
// using the real wall clock.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{config: config, state: StateClosed, clock: clockwork.NewRealClock()}
}

// NewCircuitBreakerWithClock creates a CircuitBreaker driven by clock,
// so tests can advance the open-state cooldown deterministically with a
// clockwork.FakeClock instead of sleeping.
func NewCircuitBreakerWithClock(config CircuitBreakerConfig, clock clockwork.Clock) *CircuitBreaker {
	return &CircuitBreaker{config: config, state: StateClosed, clock: clock}
}

// Allow reports whether an attempt should proceed. It also performs the
// open-to-half-open transition once the cooldown has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.clock.Since(cb.openedAt) >= cb.config.Timeout {
			cb.state = StateHalfOpen
			cb.failureCount = 0
			cb.successCount = 0
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

// RecordSuccess reports a successful attempt.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
}

// RecordFailure reports a failed attempt.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = cb.clock.Now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.openedAt = cb.clock.Now()
		}
	case StateHalfOpen:
		cb.state = StateOpen
		cb.openedAt = cb.clock.Now()
		cb.successCount = 0
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Stats returns a snapshot of the breaker's counters, for status output.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return CircuitBreakerStats{
		State:        cb.state,
		FailureCount: cb.failureCount,
		SuccessCount: cb.successCount,
		LastFailure:  cb.lastFailure,
		OpenedAt:     cb.openedAt,
	}
}

// Reset forces the breaker back to closed, discarding its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.lastFailure = time.Time{}
	cb.openedAt = time.Time{}
}

// CircuitBreakerStats is a point-in-time snapshot of a CircuitBreaker.
type CircuitBreakerStats struct {
	State        CircuitState
	FailureCount int
	SuccessCount int
	LastFailure  time.Time
	OpenedAt     time.Time
}

// Breakers is a registry of per-device circuit breakers, created lazily
// on first use with the default configuration. An executor holds one
// Breakers registry for the lifetime of a CLI invocation (or daemon, for
// fleet-wide operations), keyed by device id.
type Breakers struct {
	mu       sync.Mutex
	config   CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewBreakers creates a registry using config for every device's breaker.
func NewBreakers(config CircuitBreakerConfig) *Breakers {
	return &Breakers{config: config, breakers: make(map[string]*CircuitBreaker)}
}

// For returns the CircuitBreaker for deviceID, creating it if absent.
func (b *Breakers) For(deviceID string) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[deviceID]
	if !ok {
		cb = NewCircuitBreaker(b.config)
		b.breakers[deviceID] = cb
	}
	return cb
}
