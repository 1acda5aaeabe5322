package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Operation is a fallible external call wrapped by a Caller.
type Operation[I, O any] func(ctx context.Context, input I) (O, error)

// CallerConfig holds the resilience policy knobs for one wrapped capability.
type CallerConfig struct {
	FailureThreshold      int
	BreakDuration         time.Duration
	MaxRetryAttempts      int
	MaxConcurrentRequests int
	RequestsPerSecond     float64
	// Timeout bounds each individual attempt. Zero disables the per-attempt
	// deadline (the search capability runs without one, the LLM with one).
	Timeout time.Duration
}

// Caller decorates an external capability with a circuit breaker, rate
// limiting, a concurrency cap, and bounded retry with exponential backoff.
// One Caller (and therefore one breaker) is shared per capability.
type Caller[I, O any] struct {
	name    string
	breaker *Breaker
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	cfg     CallerConfig
	log     *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewCaller builds a Caller for the named capability.
func NewCaller[I, O any](name string, cfg CallerConfig, logger *slog.Logger) *Caller[I, O] {
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = 1
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Caller[I, O]{
		name:    name,
		breaker: NewBreaker(cfg.FailureThreshold, cfg.BreakDuration),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
		cfg:     cfg,
		log:     logger,
		sleep:   sleepCtx,
	}
}

// Breaker exposes the capability's shared circuit breaker.
func (c *Caller[I, O]) Breaker() *Breaker {
	return c.breaker
}

// Execute runs op under the resilience policy. It returns ErrUnavailable (and
// the zero result) when the circuit is open or the retry budget is exhausted,
// so call sites handle sustained unavailability like an empty result instead
// of an exceptional condition. Non-transient errors propagate immediately;
// caller cancellation is never retried.
func (c *Caller[I, O]) Execute(ctx context.Context, op Operation[I, O], input I) (O, error) {
	var zero O

	if !c.breaker.AllowRequest() {
		c.log.Warn("circuit open, rejecting request", "capability", c.name)
		return zero, ErrUnavailable
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return zero, err
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	defer c.sem.Release(1)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			c.log.Warn("retrying request", "capability", c.name, "attempt", attempt, "backoff", backoff, "last_error", lastErr)
			if err := c.sleep(ctx, backoff); err != nil {
				return zero, err
			}
		}

		out, err := c.attempt(ctx, op, input)
		if err == nil {
			c.breaker.RecordSuccess()
			return out, nil
		}
		if ctx.Err() != nil {
			// Caller-initiated cancellation unwinds immediately.
			return zero, ctx.Err()
		}
		if !IsTransient(err) {
			c.log.Error("permanent failure", "capability", c.name, "error", err)
			return zero, err
		}
		lastErr = err
	}

	c.breaker.RecordFailure()
	c.log.Warn("retries exhausted", "capability", c.name, "attempts", c.cfg.MaxRetryAttempts+1, "error", lastErr)
	return zero, errors.Join(ErrUnavailable, lastErr)
}

func (c *Caller[I, O]) attempt(ctx context.Context, op Operation[I, O], input I) (O, error) {
	if c.cfg.Timeout <= 0 {
		return op(ctx, input)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	out, err := op(attemptCtx, input)
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return out, fmt.Errorf("%w after %s: %v", ErrTimeout, c.cfg.Timeout, err)
	}
	return out, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
