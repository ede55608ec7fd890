package circuit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/T3-Labs/edge-av1/pkg/logger"
	"github.com/T3-Labs/edge-av1/pkg/metrics"
)

// ErrOpen is returned by Call while the breaker rejects requests.
var ErrOpen = errors.New("circuit breaker open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

type Option func(*Breaker)

// WithInitialBackoff overrides the first open period. The default is half the
// reset timeout with a floor of five seconds.
func WithInitialBackoff(d time.Duration) Option {
	return func(cb *Breaker) {
		cb.initialBackoff = d
		cb.currentBackoff = d
	}
}

func WithHalfOpenSuccesses(n int) Option {
	return func(cb *Breaker) {
		cb.halfOpenSuccesses = n
	}
}

// Breaker guards a flaky sink. The open period doubles each time a half-open
// probe fails, up to maxBackoff, and resets once the breaker closes again.
type Breaker struct {
	name              string
	maxFailures       int64
	resetTimeout      time.Duration
	halfOpenSuccesses int

	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	currentBackoff    time.Duration

	mu            sync.RWMutex
	state         State
	failures      int64
	successes     int64
	lastFailTime  time.Time
	lastStateTime time.Time
}

func NewBreaker(name string, maxFailures int64, resetTimeout time.Duration, opts ...Option) *Breaker {
	initialBackoff := resetTimeout / 2
	if initialBackoff < 5*time.Second {
		initialBackoff = 5 * time.Second
	}

	cb := &Breaker{
		name:              name,
		maxFailures:       maxFailures,
		resetTimeout:      resetTimeout,
		halfOpenSuccesses: 3,
		initialBackoff:    initialBackoff,
		maxBackoff:        10 * time.Minute,
		backoffMultiplier: 2.0,
		currentBackoff:    initialBackoff,
		state:             StateClosed,
		lastStateTime:     time.Now(),
	}
	for _, opt := range opts {
		opt(cb)
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return cb
}

func (cb *Breaker) Call(fn func() error) error {
	if !cb.Allow() {
		return fmt.Errorf("%s: %w", cb.name, ErrOpen)
	}

	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}

	cb.RecordSuccess()
	return nil
}

func (cb *Breaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailTime) > cb.currentBackoff {
			cb.setState(StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

func (cb *Breaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successes++

	switch cb.state {
	case StateClosed:
		cb.failures = 0
		cb.currentBackoff = cb.initialBackoff
	case StateHalfOpen:
		if cb.successes >= int64(cb.halfOpenSuccesses) {
			cb.failures = 0
			cb.successes = 0
			cb.currentBackoff = cb.initialBackoff
			cb.setState(StateClosed)
		}
	}
}

func (cb *Breaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailTime = time.Now()
	cb.successes = 0

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.maxFailures {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.growBackoff()
		cb.setState(StateOpen)
	}
}

func (cb *Breaker) growBackoff() {
	cb.currentBackoff = time.Duration(float64(cb.currentBackoff) * cb.backoffMultiplier)
	if cb.currentBackoff > cb.maxBackoff {
		cb.currentBackoff = cb.maxBackoff
	}
}

func (cb *Breaker) setState(newState State) {
	if cb.state == newState {
		return
	}
	oldState := cb.state
	cb.state = newState
	cb.lastStateTime = time.Now()
	metrics.CircuitBreakerState.WithLabelValues(cb.name).Set(float64(newState))
	logger.L().Infow("Circuit breaker state change",
		"breaker", cb.name,
		"from", oldState.String(),
		"to", newState.String(),
		"failures", cb.failures,
		"backoff", cb.currentBackoff)
}

func (cb *Breaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

func (cb *Breaker) Stats() BreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return BreakerStats{
		Name:            cb.name,
		State:           cb.state,
		Failures:        cb.failures,
		Successes:       cb.successes,
		MaxFailures:     cb.maxFailures,
		CurrentBackoff:  cb.currentBackoff,
		LastFailTime:    cb.lastFailTime,
		LastStateChange: cb.lastStateTime,
	}
}

func (cb *Breaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.successes = 0
	cb.currentBackoff = cb.initialBackoff
	cb.setState(StateClosed)
}

type BreakerStats struct {
	Name            string
	State           State
	Failures        int64
	Successes       int64
	MaxFailures     int64
	CurrentBackoff  time.Duration
	LastFailTime    time.Time
	LastStateChange time.Time
}

func (bs BreakerStats) String() string {
	return fmt.Sprintf("Circuit[%s]: %s, Failures: %d/%d, Successes: %d, NextRetry: %v",
		bs.Name, bs.State, bs.Failures, bs.MaxFailures, bs.Successes, bs.CurrentBackoff)
}
