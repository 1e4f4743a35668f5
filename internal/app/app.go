// Package app assembles the weather client from configuration. Both the API
// server and the refresh worker build their dependencies through New.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/skyglance/skyglance/internal/cache"
	"github.com/skyglance/skyglance/internal/config"
	"github.com/skyglance/skyglance/internal/database"
	"github.com/skyglance/skyglance/internal/featureflags"
	"github.com/skyglance/skyglance/internal/provider/resilience"
	"github.com/skyglance/skyglance/internal/region"
	"github.com/skyglance/skyglance/internal/weather"
	"github.com/skyglance/skyglance/internal/weather/nominatim"
	"github.com/skyglance/skyglance/internal/weather/openmeteo"
	"github.com/skyglance/skyglance/internal/weather/openweathermap"
)

// UserAgent is sent to every upstream that does not need its own.
const UserAgent = "skyglance (+https://skyglance.dev)"

// App holds the assembled components.
type App struct {
	Cache    *cache.Store
	Flags    *featureflags.Service
	Registry *resilience.Registry
	Region   *region.Detector
	Weather  *weather.Service

	logger  zerolog.Logger
	closers []func()
}

// New connects the configured backends and builds the facade. Cache mirror
// failures are logged and the cache runs memory-only; a database that is
// required for feature flags is fatal.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{logger: logger}

	var pool *pgxpool.Pool
	if cfg.NeedsDatabase() {
		p, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		pool = p
		a.closers = append(a.closers, p.Close)
		logger.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")
	}

	a.Cache = cache.New(cache.Config{
		Mirror:     a.openMirror(ctx, cfg, pool),
		Logger:     logger,
		MaxEntries: cfg.Cache.MaxEntries,
	})

	flags, err := a.newFlags(ctx, cfg, pool)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Flags = flags

	metrics, err := weather.NewMetrics()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating weather metrics: %w", err)
	}

	a.Registry = resilience.NewRegistry()

	primary := openmeteo.NewClient(openmeteo.ClientConfig{
		ForecastURL:  cfg.Providers.OpenMeteoForecastURL,
		GeocodingURL: cfg.Providers.OpenMeteoGeocodingURL,
		HTTPClient:   a.httpClient(openmeteo.ProviderName, UserAgent),
		Logger:       logger,
	})

	// Optional providers stay untyped nil when absent.
	var secondary, tertiary weather.Provider
	if cfg.Providers.OpenWeatherMapAPIKey != "" {
		secondary = openweathermap.NewClient(openweathermap.ClientConfig{
			APIKey:     cfg.Providers.OpenWeatherMapAPIKey,
			BaseURL:    cfg.Providers.OpenWeatherMapBaseURL,
			HTTPClient: a.httpClient(openweathermap.ProviderName, UserAgent),
			Logger:     logger,
		})
	} else {
		logger.Warn().Msg("OPENWEATHERMAP_API_KEY not set, secondary provider disabled")
	}
	if cfg.Providers.NominatimEnabled {
		tertiary = nominatim.NewClient(nominatim.ClientConfig{
			BaseURL:    cfg.Providers.NominatimBaseURL,
			UserAgent:  cfg.Providers.NominatimUserAgent,
			HTTPClient: a.httpClient(nominatim.ProviderName, ""),
			Logger:     logger,
		})
	}

	a.Region = region.NewDetector(region.Config{
		ProbeURL: primary.ProbeURL(),
		Store:    a.Cache,
		Timeout:  cfg.Region.ProbeTimeout,
		Enabled: func(ctx context.Context) bool {
			return cfg.Region.Enabled && flags.RegionDetectionEnabled(ctx)
		},
		Logger: logger,
	})

	a.Weather = weather.NewService(weather.ServiceConfig{
		Primary:         primary,
		Secondary:       secondary,
		Tertiary:        tertiary,
		Region:          a.Region,
		Cache:           a.Cache,
		Connectivity:    flags,
		TertiaryEnabled: flags.TertiaryGeocoderEnabled,
		Logger:          logger,
		Metrics:         metrics,
		DefaultLanguage: cfg.DefaultLanguage,
		DefaultUnits:    cfg.DefaultUnits,
	})

	logger.Info().
		Bool("secondary", secondary != nil).
		Bool("tertiary", tertiary != nil).
		Str("cache_mirror", a.Cache.Stats().Mirror).
		Msg("weather service initialized")

	return a, nil
}

// Close releases backend connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) httpClient(name, userAgent string) *resilience.Client {
	cfg := resilience.DefaultClientConfig(name)
	cfg.Registry = a.Registry
	cfg.UserAgent = userAgent
	return resilience.NewClient(cfg)
}

// openMirror returns nil (never a typed nil) when no mirror is usable.
func (a *App) openMirror(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) cache.Mirror {
	switch cfg.Cache.Mirror {
	case config.MirrorPostgres:
		m := cache.NewPostgresMirror(pool)
		if err := m.EnsureSchema(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("postgres cache mirror unavailable, running memory-only")
			return nil
		}
		return m

	case config.MirrorRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Cache.RedisAddr},
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		a.closers = append(a.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			// Keep the mirror; its failures are absorbed per call and it
			// recovers once Redis is reachable.
			a.logger.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("redis not reachable yet")
		}
		return cache.NewRedisMirror(client, cfg.Cache.RedisKeyPrefix)

	case config.MirrorSQLite:
		m, err := cache.OpenSQLiteMirror(ctx, cfg.Cache.SQLitePath)
		if err != nil {
			a.logger.Warn().Err(err).Msg("sqlite cache mirror unavailable, running memory-only")
			return nil
		}
		a.closers = append(a.closers, func() { _ = m.Close() })
		return m

	default:
		return nil
	}
}

func (a *App) newFlags(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) (*featureflags.Service, error) {
	var repo featureflags.Repository
	switch cfg.Flags.Store {
	case config.FlagStorePostgres:
		pg := featureflags.NewPostgresRepository(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("creating feature_flags table: %w", err)
		}
		repo = pg
	default:
		repo = featureflags.NewInMemoryRepository()
	}

	return featureflags.NewService(featureflags.ServiceConfig{
		Repository: repo,
		Logger:     a.logger,
		CacheTTL:   cfg.Flags.CacheTTL,
	}), nil
}
