// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/skyglance/skyglance/internal/database"
)

// Cache mirror backends.
const (
	MirrorNone     = "none"
	MirrorPostgres = "postgres"
	MirrorRedis    = "redis"
	MirrorSQLite   = "sqlite"
)

// Feature flag stores.
const (
	FlagStoreMemory   = "memory"
	FlagStorePostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	Env  string
	Port string

	// DefaultLanguage and DefaultUnits apply when a request does not say.
	DefaultLanguage string
	DefaultUnits    string

	// RequireTLS rejects plain-HTTP requests forwarded by a load balancer.
	RequireTLS bool

	Telemetry TelemetryConfig
	Admin     AdminConfig
	Providers ProvidersConfig
	Region    RegionConfig
	Cache     CacheConfig
	Database  database.Config
	Flags     FlagsConfig
	RateLimit RateLimitConfig
	Worker    WorkerConfig
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRatio  float64
}

// AdminConfig configures operator token validation. An empty signing key
// disables the operator routes.
type AdminConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

// ProvidersConfig configures the upstream adapters.
type ProvidersConfig struct {
	OpenMeteoForecastURL  string
	OpenMeteoGeocodingURL string

	// OpenWeatherMapAPIKey enables the secondary provider when set.
	OpenWeatherMapAPIKey  string
	OpenWeatherMapBaseURL string

	NominatimBaseURL   string
	NominatimUserAgent string
	NominatimEnabled   bool
}

// RegionConfig configures primary-provider reachability probing.
type RegionConfig struct {
	Enabled      bool
	ProbeTimeout time.Duration
}

// CacheConfig selects the persistent cache mirror.
type CacheConfig struct {
	Mirror string

	// MaxEntries caps the in-memory store; zero means cache.DefaultMaxEntries.
	MaxEntries int

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	SQLitePath string
}

// FlagsConfig selects the feature flag store.
type FlagsConfig struct {
	Store    string
	CacheTTL time.Duration
}

// RateLimitConfig bounds public API traffic per client IP.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
}

// WorkerConfig configures the favourites refresh worker.
type WorkerConfig struct {
	// Favourites is the raw "Name:lat,lon;..." list.
	Favourites string

	Cron         string
	Interval     time.Duration
	Concurrency  int
	Timeout      time.Duration
	RefreshNames bool

	PubSubProject      string
	PubSubSubscription string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads configuration from the environment only.
func FromEnv() (Config, error) {
	var errs []error
	p := parser{errs: &errs}

	cfg := Config{
		Env:             getenvDefault("APP_ENV", "development"),
		Port:            getenvDefault("APP_PORT", "8080"),
		DefaultLanguage: getenvDefault("DEFAULT_LANGUAGE", "en"),
		DefaultUnits:    getenvDefault("DEFAULT_UNITS", "metric"),
		RequireTLS:      p.bool("REQUIRE_TLS", false),
		Telemetry: TelemetryConfig{
			Enabled:      p.bool("OTEL_ENABLED", false),
			OTLPEndpoint: getenvDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRatio:  p.float("OTEL_SAMPLE_RATIO", 1),
		},
		Admin: AdminConfig{
			SigningKey: os.Getenv("ADMIN_JWT_SECRET"),
			Issuer:     os.Getenv("ADMIN_JWT_ISSUER"),
			Audience:   getenvDefault("ADMIN_JWT_AUDIENCE", "skyglance-ops"),
		},
		Providers: ProvidersConfig{
			OpenMeteoForecastURL:  os.Getenv("OPENMETEO_FORECAST_URL"),
			OpenMeteoGeocodingURL: os.Getenv("OPENMETEO_GEOCODING_URL"),
			OpenWeatherMapAPIKey:  os.Getenv("OPENWEATHERMAP_API_KEY"),
			OpenWeatherMapBaseURL: os.Getenv("OPENWEATHERMAP_BASE_URL"),
			NominatimBaseURL:      os.Getenv("NOMINATIM_BASE_URL"),
			NominatimUserAgent:    os.Getenv("NOMINATIM_USER_AGENT"),
			NominatimEnabled:      p.bool("NOMINATIM_ENABLED", true),
		},
		Region: RegionConfig{
			Enabled:      p.bool("REGION_DETECTION_ENABLED", true),
			ProbeTimeout: p.duration("REGION_PROBE_TIMEOUT", 2500*time.Millisecond),
		},
		Cache: CacheConfig{
			Mirror:         strings.ToLower(getenvDefault("CACHE_MIRROR", MirrorNone)),
			MaxEntries:     p.int("CACHE_MAX_ENTRIES", 0),
			RedisAddr:      getenvDefault("REDIS_ADDR", "localhost:6379"),
			RedisPassword:  os.Getenv("REDIS_PASSWORD"),
			RedisDB:        p.int("REDIS_DB", 0),
			RedisKeyPrefix: getenvDefault("REDIS_KEY_PREFIX", "skyglance:"),
			SQLitePath:     getenvDefault("SQLITE_PATH", "skyglance-cache.db"),
		},
		Database: database.ConfigFromEnv(),
		Flags: FlagsConfig{
			Store:    strings.ToLower(getenvDefault("FLAG_STORE", FlagStoreMemory)),
			CacheTTL: p.duration("FLAG_CACHE_TTL", time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled:           p.bool("RATE_LIMIT_ENABLED", true),
			RequestsPerMinute: p.int("RATE_LIMIT_RPM", 120),
		},
		Worker: WorkerConfig{
			Favourites:         os.Getenv("FAVOURITES"),
			Cron:               os.Getenv("REFRESH_CRON"),
			Interval:           p.duration("REFRESH_INTERVAL", 15*time.Minute),
			Concurrency:        p.int("REFRESH_CONCURRENCY", 3),
			Timeout:            p.duration("REFRESH_TIMEOUT", 30*time.Second),
			RefreshNames:       p.bool("REFRESH_NAMES", false),
			PubSubProject:      os.Getenv("PUBSUB_PROJECT_ID"),
			PubSubSubscription: os.Getenv("PUBSUB_SUBSCRIPTION"),
		},
	}

	switch cfg.Cache.Mirror {
	case MirrorNone, MirrorPostgres, MirrorRedis, MirrorSQLite:
	default:
		errs = append(errs, fmt.Errorf("CACHE_MIRROR: unknown mirror %q", cfg.Cache.Mirror))
	}

	switch cfg.Flags.Store {
	case FlagStoreMemory, FlagStorePostgres:
	default:
		errs = append(errs, fmt.Errorf("FLAG_STORE: unknown store %q", cfg.Flags.Store))
	}

	if cfg.DefaultUnits != "metric" && cfg.DefaultUnits != "imperial" {
		errs = append(errs, fmt.Errorf("DEFAULT_UNITS: must be metric or imperial, got %q", cfg.DefaultUnits))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NeedsDatabase reports whether any component is backed by Postgres.
func (c Config) NeedsDatabase() bool {
	return c.Cache.Mirror == MirrorPostgres || c.Flags.Store == FlagStorePostgres
}

// parser collects conversion errors so every bad variable is reported at once.
type parser struct {
	errs *[]error
}

func (p parser) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (p parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p parser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (p parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
