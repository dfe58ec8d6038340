package resilience

import (
	"context"

	"go.uber.org/zap"
)

// Guard combines a retry policy with per-provider circuit breakers. A nil
// *Guard calls straight through.
type Guard struct {
	retry    RetryConfig
	breakers *ServiceBreakers
}

// NewGuard creates a Guard. Breakers trip only on transient failures so that
// "no match" answers never open a provider's circuit.
func NewGuard(retry RetryConfig, circuit CircuitBreakerConfig) *Guard {
	if circuit.ShouldTrip == nil {
		circuit.ShouldTrip = IsTransient
	}
	return &Guard{retry: retry, breakers: NewServiceBreakers(circuit)}
}

// States reports breaker state per provider.
func (g *Guard) States() map[string]CircuitState {
	if g == nil {
		return nil
	}
	return g.breakers.States()
}

// Call runs fn for provider through its breaker, retrying transient failures.
// The breaker sees each attempt, so a retry storm still opens the circuit.
func Call[T any](ctx context.Context, g *Guard, provider, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	if g == nil {
		return fn(ctx)
	}
	cb := g.breakers.Get(provider)
	cfg := g.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = RetryLogger(provider, operation)
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = IsTransient
	}
	val, err := DoVal(ctx, cfg, func(ctx context.Context) (T, error) {
		return ExecuteVal(ctx, cb, fn)
	})
	if err != nil && cb.State() == CircuitOpen {
		zap.L().Debug("provider circuit open",
			zap.String("component", "resilience"),
			zap.String("provider", provider),
			zap.String("operation", operation),
		)
	}
	return val, err
}
