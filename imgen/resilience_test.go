package imgen

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/types"
)

// fastExecutor returns an executor whose sleep only records the delay.
func fastExecutor(policy *RetryPolicy, opts ...ExecutorOption) (*Executor, *[]time.Duration) {
	e := NewExecutor("test", policy, zap.NewNop(), opts...)
	delays := &[]time.Duration{}
	e.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return e, delays
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	e, delays := fastExecutor(nil)

	calls := 0
	result, err := Do(context.Background(), e, "generate", func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
}

func TestDoRetriesRetryableUpToMaxAttempts(t *testing.T) {
	e, delays := fastExecutor(&RetryPolicy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Minute, AttemptTimeout: time.Minute})

	calls := 0
	_, err := Do(context.Background(), e, "generate", func(ctx context.Context) (string, error) {
		calls++
		return "", types.NewError(types.ErrServiceUnavailable, "overloaded")
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls, "exactly maxAttempts invocations")

	// Delays double per retry: base * 2^(n-1).
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}, *delays)

	te, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrOperationFailed, te.Code)
	cause, ok := types.AsError(te.Cause)
	require.True(t, ok)
	assert.Equal(t, types.ErrServiceUnavailable, cause.Code)
}

func TestDoBackoffCappedAtMaxDelay(t *testing.T) {
	e, delays := fastExecutor(&RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 3 * time.Second, AttemptTimeout: time.Minute})

	_, err := Do(context.Background(), e, "generate", func(ctx context.Context) (int, error) {
		return 0, types.NewError(types.ErrTimeout, "slow")
	})
	require.Error(t, err)
	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		3 * time.Second,
		3 * time.Second,
	}, *delays)
}

func TestDoNonRetryableShortCircuits(t *testing.T) {
	e, delays := fastExecutor(&RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Minute, AttemptTimeout: time.Minute})

	calls := 0
	_, err := Do(context.Background(), e, "generate", func(ctx context.Context) (string, error) {
		calls++
		return "", types.NewError(types.ErrAuthenticationFailed, "bad key")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "non-retryable errors must not be retried")
	assert.Empty(t, *delays)
	assert.Equal(t, types.ErrAuthenticationFailed, types.CodeOf(err))
}

func TestDoSucceedsAfterRetry(t *testing.T) {
	e, delays := fastExecutor(&RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Minute, AttemptTimeout: time.Minute})

	calls := 0
	result, err := Do(context.Background(), e, "generate", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", types.NewError(types.ErrNetworkError, "connection reset")
		}
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, 3, calls)
	assert.Len(t, *delays, 2)
}

func TestDoRetryObserverInvokedPerRetry(t *testing.T) {
	var observed []string
	e, _ := fastExecutor(
		&RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second, AttemptTimeout: time.Minute},
		WithRetryObserver(func(operation string) { observed = append(observed, operation) }),
	)

	_, err := Do(context.Background(), e, "generate", func(ctx context.Context) (string, error) {
		return "", types.NewError(types.ErrNetworkError, "reset")
	})
	require.Error(t, err)
	assert.Equal(t, []string{"generate", "generate"}, observed, "two retries after three attempts")
}

func TestDoAttemptTimeoutAbandonsSlowCall(t *testing.T) {
	e, _ := fastExecutor(&RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Second, AttemptTimeout: 20 * time.Millisecond})

	blocked := make(chan struct{})
	_, err := Do(context.Background(), e, "generate", func(ctx context.Context) (string, error) {
		<-blocked
		return "too late", nil
	})
	close(blocked)
	require.Error(t, err)

	te, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrOperationFailed, te.Code)
	assert.Equal(t, types.ErrTimeout, types.CodeOf(te.Cause))
}

func TestDoCancelledContextStopsRetries(t *testing.T) {
	e := NewExecutor("test", &RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second, AttemptTimeout: time.Minute}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, e, "generate", func(ctx context.Context) (string, error) {
		calls++
		cancel()
		return "", types.NewError(types.ErrServiceUnavailable, "overloaded")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "cancellation during backoff must stop the loop")
	assert.Equal(t, types.ErrTimeout, types.CodeOf(err))
}

func TestDoBreakerOpensAfterFailures(t *testing.T) {
	e, _ := fastExecutor(
		&RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Second, AttemptTimeout: time.Minute},
		WithBreaker(&BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, OpenTimeout: time.Hour}),
	)

	calls := 0
	fail := func(ctx context.Context) (string, error) {
		calls++
		return "", types.NewError(types.ErrServiceUnavailable, "down")
	}
	for i := 0; i < 2; i++ {
		_, err := Do(context.Background(), e, "generate", fail)
		require.Error(t, err)
	}
	assert.Equal(t, 2, calls)

	// Breaker is now open: calls fail fast without invoking fn.
	_, err := Do(context.Background(), e, "generate", fail)
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, types.ErrServiceUnavailable, types.CodeOf(err))
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	cb := newCircuitBreaker(&BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Nanosecond}, zap.NewNop())

	cb.recordFailure()
	assert.Equal(t, breakerOpen, cb.state)

	time.Sleep(time.Millisecond)
	assert.True(t, cb.allow(), "open timeout elapsed, probe allowed")
	assert.Equal(t, breakerHalfOpen, cb.state)

	cb.recordSuccess()
	assert.Equal(t, breakerClosed, cb.state)
}

func TestNormalizeRetryPolicyFillsDefaults(t *testing.T) {
	p := normalizeRetryPolicy(&RetryPolicy{MaxAttempts: -1})
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, 30*time.Second, p.MaxDelay)
	assert.Equal(t, 60*time.Second, p.AttemptTimeout)

	assert.Equal(t, DefaultRetryPolicy(), normalizeRetryPolicy(nil))
}
