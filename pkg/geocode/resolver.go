package geocode

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/monitoring"
	"github.com/sells-group/siteplan/internal/resilience"
)

// Resolver runs the fallback chain: known-location table, shared result
// cache, then each provider in order. It never returns an error from Resolve;
// provider failures advance the chain.
type Resolver struct {
	known     *KnownTable
	cache     ResultCache
	providers []Provider
	reverser  Reverser
	tracts    TractLocator
	guard     *resilience.Guard
	sink      monitoring.Sink
	timeout   time.Duration
	log       *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithKnownTable sets the static known-location table.
func WithKnownTable(t *KnownTable) ResolverOption {
	return func(r *Resolver) { r.known = t }
}

// WithCache enables the shared result cache.
func WithCache(c ResultCache) ResolverOption {
	return func(r *Resolver) { r.cache = c }
}

// WithProviders sets the forward providers in fallback order.
func WithProviders(p ...Provider) ResolverOption {
	return func(r *Resolver) { r.providers = p }
}

// WithReverser sets the reverse geocoding backend.
func WithReverser(rv Reverser) ResolverOption {
	return func(r *Resolver) { r.reverser = rv }
}

// WithTractLocator sets the census tract backend.
func WithTractLocator(t TractLocator) ResolverOption {
	return func(r *Resolver) { r.tracts = t }
}

// WithGuard routes provider calls through retries and circuit breakers.
func WithGuard(g *resilience.Guard) ResolverOption {
	return func(r *Resolver) { r.guard = g }
}

// WithSink sets the event sink.
func WithSink(s monitoring.Sink) ResolverOption {
	return func(r *Resolver) { r.sink = s }
}

// WithTimeout bounds each provider call. Zero disables the bound.
func WithTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.timeout = d }
}

// NewResolver creates a Resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		timeout: 10 * time.Second,
		log:     zap.L().With(zap.String("component", "geocode")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve geocodes a free-text description. ok is false when every source
// missed or failed.
func (r *Resolver) Resolve(ctx context.Context, description string) (Result, bool) {
	if Normalize(description) == "" {
		return Result{}, false
	}

	if res, ok := r.known.Lookup(description); ok {
		r.resolved(description, res)
		return res, true
	}

	key := cacheKey(description)
	if r.cache != nil {
		cached, err := r.cache.Get(ctx, key)
		if err != nil {
			r.log.Debug("result cache lookup failed", zap.Error(err))
		} else if cached != nil {
			r.resolved(description, *cached)
			return *cached, true
		}
	}

	for _, p := range r.providers {
		if !p.Available() {
			r.log.Debug("provider unavailable, skipping", zap.String("provider", p.Name()))
			continue
		}
		res, err := r.geocode(ctx, p, description)
		if err != nil {
			r.log.Debug("provider error, trying next",
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			monitoring.Emit(r.sink, monitoring.EventProviderDegraded, monitoring.SeverityDebug,
				"geocoding provider failed", map[string]any{"provider": p.Name(), "error": err.Error()})
			continue
		}
		if res == nil {
			continue
		}
		if r.cache != nil {
			if err := r.cache.Set(ctx, key, *res); err != nil {
				r.log.Debug("result cache store failed", zap.Error(err))
			}
		}
		r.resolved(description, *res)
		return *res, true
	}

	monitoring.Emit(r.sink, monitoring.EventGeocodeMissed, monitoring.SeverityInfo,
		"location not found", map[string]any{"query": description})
	return Result{}, false
}

// ResolveCoords wraps user-supplied coordinates as a manual result.
func (r *Resolver) ResolveCoords(lat, lng float64) Result {
	return Result{Latitude: lat, Longitude: lng, Confidence: 1, Source: SourceManual, Provider: "manual"}
}

// ReverseGeocode returns address components for a coordinate, or nil when
// nothing is known about it.
func (r *Resolver) ReverseGeocode(ctx context.Context, lat, lng float64) (*ReverseResult, error) {
	if r.reverser == nil {
		return nil, nil
	}
	return guarded(ctx, r, "nominatim", "reverse", func(ctx context.Context) (*ReverseResult, error) {
		return r.reverser.Reverse(ctx, lat, lng)
	})
}

// CensusTract returns the census tract containing a coordinate, or nil.
func (r *Resolver) CensusTract(ctx context.Context, lat, lng float64) (*Tract, error) {
	if r.tracts == nil {
		return nil, nil
	}
	return guarded(ctx, r, "census", "tract", func(ctx context.Context) (*Tract, error) {
		return r.tracts.Tract(ctx, lat, lng)
	})
}

// ProviderStates reports circuit state per provider.
func (r *Resolver) ProviderStates() map[string]resilience.CircuitState {
	return r.guard.States()
}

func (r *Resolver) geocode(ctx context.Context, p Provider, text string) (*Result, error) {
	return guarded(ctx, r, p.Name(), "geocode", func(ctx context.Context) (*Result, error) {
		return p.Geocode(ctx, text)
	})
}

func guarded[T any](ctx context.Context, r *Resolver, provider, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return resilience.Call(ctx, r.guard, provider, op, fn)
}

func (r *Resolver) resolved(query string, res Result) {
	monitoring.Emit(r.sink, monitoring.EventGeocodeResolved, monitoring.SeverityDebug,
		"location resolved", map[string]any{
			"query":      query,
			"source":     string(res.Source),
			"provider":   res.Provider,
			"confidence": res.Confidence,
		})
}
