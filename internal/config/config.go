package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Parcels    ParcelsConfig    `yaml:"parcels" mapstructure:"parcels"`
	Workflow   WorkflowConfig   `yaml:"workflow" mapstructure:"workflow"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the boundary persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RedisConfig configures the shared geocode result cache. Empty URL disables it.
type RedisConfig struct {
	URL           string `yaml:"url" mapstructure:"url"`
	KeyPrefix     string `yaml:"key_prefix" mapstructure:"key_prefix"`
	CacheTTLHours int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// GeocodeConfig holds provider credentials and endpoints.
type GeocodeConfig struct {
	GoogleKey        string  `yaml:"google_key" mapstructure:"google_key"`
	GoogleBaseURL    string  `yaml:"google_base_url" mapstructure:"google_base_url"`
	NominatimBaseURL string  `yaml:"nominatim_base_url" mapstructure:"nominatim_base_url"`
	CensusBaseURL    string  `yaml:"census_base_url" mapstructure:"census_base_url"`
	UserAgent        string  `yaml:"user_agent" mapstructure:"user_agent"`
	CountryCodes     string  `yaml:"country_codes" mapstructure:"country_codes"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// Timeout returns the per-call timeout for external geocoding requests.
func (g GeocodeConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSecs) * time.Second
}

// ParcelsConfig configures the spatial parcel source and viewport loader.
type ParcelsConfig struct {
	Source           string `yaml:"source" mapstructure:"source"`
	Table            string `yaml:"table" mapstructure:"table"`
	GeoJSONPath      string `yaml:"geojson_path" mapstructure:"geojson_path"`
	MinZoom          int    `yaml:"min_zoom" mapstructure:"min_zoom"`
	DebounceMs       int    `yaml:"debounce_ms" mapstructure:"debounce_ms"`
	FetchTimeoutSecs int    `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	MaxFeatures      int    `yaml:"max_features" mapstructure:"max_features"`
}

// Debounce returns the viewport reload debounce delay.
func (p ParcelsConfig) Debounce() time.Duration {
	return time.Duration(p.DebounceMs) * time.Millisecond
}

// FetchTimeout returns the per-fetch timeout for the parcel source.
func (p ParcelsConfig) FetchTimeout() time.Duration {
	return time.Duration(p.FetchTimeoutSecs) * time.Second
}

// WorkflowConfig configures the project setup state machine.
type WorkflowConfig struct {
	DocumentIngest  bool `yaml:"document_ingest" mapstructure:"document_ingest"`
	SaveTimeoutSecs int  `yaml:"save_timeout_secs" mapstructure:"save_timeout_secs"`
}

// ResilienceConfig configures retries and circuit breakers for external providers.
type ResilienceConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	SessionTTLMins int      `yaml:"session_ttl_mins" mapstructure:"session_ttl_mins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load(".env")

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SITEPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Empty-string defaults register keys so env overrides unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("geocode.google_key", "")
	v.SetDefault("parcels.geojson_path", "")
	v.SetDefault("store.sqlite_path", "siteplan.db")
	v.SetDefault("redis.key_prefix", "siteplan:geocode:")
	v.SetDefault("redis.cache_ttl_hours", 24*30)
	v.SetDefault("geocode.google_base_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("geocode.nominatim_base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.census_base_url", "https://geocoding.geo.census.gov/geocoder")
	v.SetDefault("geocode.user_agent", "siteplan/1.0")
	v.SetDefault("geocode.country_codes", "us")
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.rate_limit", 1.0)
	v.SetDefault("parcels.source", "postgis")
	v.SetDefault("parcels.table", "parcels.parcels")
	v.SetDefault("parcels.min_zoom", 10)
	v.SetDefault("parcels.debounce_ms", 500)
	v.SetDefault("parcels.fetch_timeout_secs", 10)
	v.SetDefault("parcels.max_features", 5000)
	v.SetDefault("workflow.document_ingest", false)
	v.SetDefault("workflow.save_timeout_secs", 10)
	v.SetDefault("resilience.max_attempts", 2)
	v.SetDefault("resilience.initial_backoff_ms", 250)
	v.SetDefault("resilience.max_backoff_ms", 2000)
	v.SetDefault("resilience.multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.session_ttl_mins", 120)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks cross-field constraints that defaults cannot express. Commands
// that open stores or parcel sources call it; offline commands do not.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required for the postgres driver")
		}
	case "sqlite", "memory":
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}

	switch c.Parcels.Source {
	case "postgis":
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required for the postgis parcel source")
		}
	case "geojson":
		if c.Parcels.GeoJSONPath == "" {
			return eris.New("config: parcels.geojson_path is required for the geojson parcel source")
		}
	default:
		return eris.Errorf("config: unsupported parcel source %q", c.Parcels.Source)
	}

	if c.Parcels.MinZoom < 0 {
		return eris.Errorf("config: parcels.min_zoom must be >= 0, got %d", c.Parcels.MinZoom)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
