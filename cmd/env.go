package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/boundary"
	"github.com/sells-group/siteplan/internal/config"
	"github.com/sells-group/siteplan/internal/db"
	"github.com/sells-group/siteplan/internal/monitoring"
	"github.com/sells-group/siteplan/internal/parcel"
	"github.com/sells-group/siteplan/internal/resilience"
	"github.com/sells-group/siteplan/pkg/geocode"
)

// env holds the collaborators shared by the serving commands.
type env struct {
	Resolver *geocode.Resolver
	Source   parcel.Source
	Store    boundary.Store
	Sink     monitoring.Sink

	closers []func()
}

// Close releases everything initEnv opened, in reverse order.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

func initEnv(ctx context.Context, c *config.Config) (*env, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	e := &env{Sink: monitoring.NewLogSink(zap.L())}

	resolver, closeResolver := buildResolver(ctx, c, e.Sink)
	e.Resolver = resolver
	e.closers = append(e.closers, closeResolver)

	src, closeSrc, err := buildParcelSource(ctx, c)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.Source = src
	e.closers = append(e.closers, closeSrc)

	store, err := boundary.NewStore(ctx, c.Store)
	if err != nil {
		e.Close()
		return nil, eris.Wrap(err, "open boundary store")
	}
	e.Store = store
	e.closers = append(e.closers, func() {
		if err := store.Close(); err != nil {
			zap.L().Warn("close boundary store", zap.Error(err))
		}
	})

	return e, nil
}

// buildResolver assembles the geocoding chain: curated table, shared cache,
// then Google (when keyed) ahead of Nominatim. A cache that cannot connect is
// skipped.
func buildResolver(ctx context.Context, c *config.Config, sink monitoring.Sink) (*geocode.Resolver, func()) {
	log := zap.L().With(zap.String("component", "geocode"))
	g := c.Geocode

	opts := []geocode.ResolverOption{
		geocode.WithSink(sink),
		geocode.WithTimeout(g.Timeout()),
		geocode.WithGuard(resilience.NewGuard(
			resilience.FromRetryConfig(
				c.Resilience.MaxAttempts,
				c.Resilience.InitialBackoffMs,
				c.Resilience.MaxBackoffMs,
				c.Resilience.Multiplier,
				c.Resilience.JitterFraction,
			),
			resilience.FromCircuitConfig(c.Resilience.FailureThreshold, c.Resilience.ResetTimeoutSecs),
		)),
	}

	known, err := geocode.DefaultKnownTable()
	if err != nil {
		log.Warn("known location table unavailable", zap.Error(err))
	} else {
		opts = append(opts, geocode.WithKnownTable(known))
	}

	closeFn := func() {}
	if c.Redis.URL != "" {
		ttl := time.Duration(c.Redis.CacheTTLHours) * time.Hour
		cache, err := geocode.NewRedisCache(ctx, c.Redis.URL, c.Redis.KeyPrefix, ttl)
		if err != nil {
			log.Warn("geocode cache disabled", zap.Error(err))
		} else {
			opts = append(opts, geocode.WithCache(cache))
			closeFn = func() { _ = cache.Close() }
		}
	}

	var providers []geocode.Provider
	if g.GoogleKey != "" {
		providers = append(providers, geocode.NewGoogleProvider(g.GoogleKey,
			geocode.WithBaseURL(g.GoogleBaseURL),
		))
	}
	nominatim := geocode.NewNominatimProvider(
		geocode.WithBaseURL(g.NominatimBaseURL),
		geocode.WithUserAgent(g.UserAgent),
		geocode.WithCountryCodes(g.CountryCodes),
		geocode.WithRateLimit(g.RateLimit),
	)
	providers = append(providers, nominatim)

	opts = append(opts,
		geocode.WithProviders(providers...),
		geocode.WithReverser(nominatim),
		geocode.WithTractLocator(geocode.NewCensusLocator(
			geocode.WithBaseURL(g.CensusBaseURL),
			geocode.WithUserAgent(g.UserAgent),
		)),
	)

	return geocode.NewResolver(opts...), closeFn
}

func buildParcelSource(ctx context.Context, c *config.Config) (parcel.Source, func(), error) {
	switch c.Parcels.Source {
	case "postgis":
		pool, err := db.Open(ctx, c.Store.DatabaseURL, db.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
		if err != nil {
			return nil, nil, eris.Wrap(err, "open parcel pool")
		}
		src, err := parcel.NewPostGISSource(pool, c.Parcels.Table, c.Parcels.MaxFeatures)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return src, pool.Close, nil
	case "geojson":
		src, err := parcel.LoadGeoJSONFile(c.Parcels.GeoJSONPath)
		if err != nil {
			return nil, nil, err
		}
		zap.L().Info("loaded parcels from geojson",
			zap.String("path", c.Parcels.GeoJSONPath),
			zap.Int("parcels", src.Len()),
		)
		return src, func() {}, nil
	default:
		return nil, nil, eris.Errorf("unsupported parcel source %q", c.Parcels.Source)
	}
}
