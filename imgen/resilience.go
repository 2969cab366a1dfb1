package imgen

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/imageflow/types"
)

// RetryPolicy bounds retries and time for one backend operation.
type RetryPolicy struct {
	MaxAttempts    int           `json:"max_attempts" yaml:"max_attempts"`
	BaseDelay      time.Duration `json:"base_delay" yaml:"base_delay"`
	MaxDelay       time.Duration `json:"max_delay" yaml:"max_delay"`
	AttemptTimeout time.Duration `json:"attempt_timeout" yaml:"attempt_timeout"`
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      1 * time.Second,
		MaxDelay:       30 * time.Second,
		AttemptTimeout: 60 * time.Second,
	}
}

func normalizeRetryPolicy(p *RetryPolicy) *RetryPolicy {
	if p == nil {
		return DefaultRetryPolicy()
	}
	out := *p
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = 1 * time.Second
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = 30 * time.Second
	}
	if out.AttemptTimeout <= 0 {
		out.AttemptTimeout = 60 * time.Second
	}
	return &out
}

// BreakerConfig configures the per-backend circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold" yaml:"success_threshold"`
	OpenTimeout      time.Duration `json:"open_timeout" yaml:"open_timeout"`
}

// DefaultBreakerConfig returns sensible breaker defaults.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
	}
}

type breakerState int32

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// circuitBreaker is a small mutex-guarded breaker protecting one backend.
type circuitBreaker struct {
	cfg         *BreakerConfig
	mu          sync.Mutex
	state       breakerState
	failures    int
	successes   int
	lastFailure time.Time
	logger      *zap.Logger
}

func newCircuitBreaker(cfg *BreakerConfig, logger *zap.Logger) *circuitBreaker {
	if cfg == nil {
		cfg = DefaultBreakerConfig()
	}
	return &circuitBreaker{cfg: cfg, logger: logger}
}

// allow reports whether a call may proceed, transitioning Open→HalfOpen
// once the open timeout has elapsed.
func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == breakerOpen {
		if time.Since(cb.lastFailure) > cb.cfg.OpenTimeout {
			cb.state = breakerHalfOpen
			cb.successes = 0
			return true
		}
		return false
	}
	return true
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.lastFailure = time.Now()
	if cb.failures >= cb.cfg.FailureThreshold && cb.state != breakerOpen {
		cb.state = breakerOpen
		cb.logger.Warn("circuit breaker opened", zap.Int("failures", cb.failures))
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == breakerHalfOpen {
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.state = breakerClosed
			cb.failures = 0
			cb.logger.Info("circuit breaker closed")
		}
		return
	}
	cb.failures = 0
}

// Executor runs backend operations with bounded time and bounded
// retries. All adapters share the same executor shape so the retry and
// classification policy is centralized.
type Executor struct {
	backend string
	policy  *RetryPolicy
	breaker *circuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger

	// onRetry, when set, is invoked once per retry before the backoff.
	onRetry func(operation string)

	// sleep is swapped in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithBreaker enables a circuit breaker for the executor's backend.
func WithBreaker(cfg *BreakerConfig) ExecutorOption {
	return func(e *Executor) {
		e.breaker = newCircuitBreaker(cfg, e.logger)
	}
}

// WithRateLimiter applies a client-side rate limit ahead of every
// attempt.
func WithRateLimiter(limiter *rate.Limiter) ExecutorOption {
	return func(e *Executor) { e.limiter = limiter }
}

// WithRetryObserver registers a callback invoked once per retry, used
// to feed retry counters.
func WithRetryObserver(fn func(operation string)) ExecutorOption {
	return func(e *Executor) { e.onRetry = fn }
}

// NewExecutor creates an executor for one backend.
func NewExecutor(backend string, policy *RetryPolicy, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		backend: backend,
		policy:  normalizeRetryPolicy(policy),
		logger:  logger,
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
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

// Do executes fn with the executor's retry policy: each attempt races
// against a per-attempt deadline, non-retryable failures short-circuit,
// retryable failures back off exponentially (base * 2^(attempt-1), no
// jitter), and exhaustion yields OPERATION_FAILED wrapping the last
// error. Operations that outlive their deadline are abandoned and their
// results discarded.
func Do[T any](ctx context.Context, e *Executor, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if e.breaker != nil && !e.breaker.allow() {
		return zero, types.NewError(types.ErrServiceUnavailable,
			fmt.Sprintf("%s: circuit breaker open", e.backend)).
			WithBackend(e.backend)
	}

	var lastErr *types.Error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return zero, Classify(err, e.backend, "")
			}
		}

		result, err := e.attempt(ctx, func(c context.Context) (any, error) { return fn(c) })
		if err == nil {
			if e.breaker != nil {
				e.breaker.recordSuccess()
			}
			return result.(T), nil
		}

		lastErr = Classify(err, e.backend, "")
		if e.breaker != nil {
			e.breaker.recordFailure()
		}

		if !lastErr.Retryable {
			return zero, lastErr
		}
		if attempt == e.policy.MaxAttempts {
			break
		}

		if e.onRetry != nil {
			e.onRetry(operation)
		}
		delay := backoffDelay(e.policy, attempt)
		e.logger.Warn("retrying backend operation",
			zap.String("backend", e.backend),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", e.policy.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return zero, Classify(err, e.backend, "")
		}
	}

	return zero, types.NewError(types.ErrOperationFailed,
		fmt.Sprintf("%s %s failed after %d attempts", e.backend, operation, e.policy.MaxAttempts)).
		WithCause(lastErr).
		WithBackend(e.backend)
}

// attempt runs fn once under the per-attempt deadline. When the deadline
// fires first the in-flight call is left to finish in the background and
// its outcome is dropped; the caller sees TIMEOUT.
func (e *Executor) attempt(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.policy.AttemptTimeout)
	defer cancel()

	type outcome struct {
		val any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		val, err := fn(attemptCtx)
		done <- outcome{val: val, err: err}
	}()

	select {
	case <-attemptCtx.Done():
		return nil, types.NewError(types.ErrTimeout,
			fmt.Sprintf("%s: attempt exceeded %s", e.backend, e.policy.AttemptTimeout)).
			WithBackend(e.backend).
			WithCause(attemptCtx.Err())
	case o := <-done:
		return o.val, o.err
	}
}

func backoffDelay(p *RetryPolicy, attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}
