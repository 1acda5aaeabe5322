package resilience

import (
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker is a Closed/Open/HalfOpen circuit breaker. All state lives behind a
// single mutex so that no two goroutines can both observe HalfOpen and both
// issue a trial request: the AllowRequest call that sees the break window
// elapse is itself the single trial.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	breakDuration    time.Duration

	state        State
	failures     int
	lastFailure  time.Time
	trialStarted time.Time

	now func() time.Time
}

// NewBreaker creates a breaker that opens after failureThreshold consecutive
// failures and stays open for breakDuration.
func NewBreaker(failureThreshold int, breakDuration time.Duration) *Breaker {
	return &Breaker{
		failureThreshold: failureThreshold,
		breakDuration:    breakDuration,
		state:            Closed,
		now:              time.Now,
	}
}

// AllowRequest reports whether a request may be attempted. While Open it
// returns false until the break duration has elapsed; the first call after
// that transitions to HalfOpen and is granted as the one trial request. A
// trial abandoned without an outcome stalls further requests only for one
// more break window, after which a new trial is granted.
func (b *Breaker) AllowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.lastFailure) >= b.breakDuration {
			b.state = HalfOpen
			b.trialStarted = b.now()
			return true
		}
		return false
	case HalfOpen:
		// A trial that never records an outcome (caller cancelled, permanent
		// error propagated) must not wedge the breaker: once a full break
		// window passes without a verdict, grant a fresh trial.
		if b.now().Sub(b.trialStarted) >= b.breakDuration {
			b.trialStarted = b.now()
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.state = Closed
}

// RecordFailure counts a failure. Reaching the threshold while Closed, or any
// failure while HalfOpen, opens the circuit and restarts the break timer.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	switch b.state {
	case HalfOpen:
		b.state = Open
		b.lastFailure = b.now()
	case Closed:
		if b.failures >= b.failureThreshold {
			b.state = Open
			b.lastFailure = b.now()
		}
	case Open:
		b.lastFailure = b.now()
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
