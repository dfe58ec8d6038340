package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(ctx context.Context) (int, error) { return 0, errors.New("upstream down") }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_, _ = ExecuteVal(context.Background(), cb, failing)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	called := false
	_, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
		called = true
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	_, _ = ExecuteVal(context.Background(), cb, failing)
	_, _ = ExecuteVal(context.Background(), cb, failing)
	v, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, _ = ExecuteVal(context.Background(), cb, failing)
	_, _ = ExecuteVal(context.Background(), cb, failing)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Second,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	cb.now = func() time.Time { return now }

	_, _ = ExecuteVal(context.Background(), cb, failing)
	assert.Equal(t, CircuitOpen, cb.State())

	now = now.Add(11 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	_, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	cb.now = func() time.Time { return now }

	_, _ = ExecuteVal(context.Background(), cb, failing)
	now = now.Add(11 * time.Second)
	_, _ = ExecuteVal(context.Background(), cb, failing)

	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_ShouldTripFilters(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ShouldTrip: IsTransient})

	_, _ = ExecuteVal(context.Background(), cb, failing)
	assert.Equal(t, CircuitClosed, cb.State())

	_, _ = ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
		return 0, NewTransientError(errors.New("503"), 503)
	})
	assert.Equal(t, CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestServiceBreakers_PerService(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1})

	assert.Same(t, sb.Get("google"), sb.Get("google"))
	assert.NotSame(t, sb.Get("google"), sb.Get("nominatim"))

	_, _ = ExecuteVal(context.Background(), sb.Get("google"), failing)

	states := sb.States()
	assert.Equal(t, CircuitOpen, states["google"])
	assert.Equal(t, CircuitClosed, states["nominatim"])
}

func TestFromCircuitConfig(t *testing.T) {
	cfg := FromCircuitConfig(0, 0)
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.ResetTimeout)

	cfg = FromCircuitConfig(2, 5)
	assert.Equal(t, 2, cfg.FailureThreshold)
	assert.Equal(t, 5*time.Second, cfg.ResetTimeout)
}
