// Package api provides the HTTP API for SkyGlance.
package api

import (
	"context"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/skyglance/skyglance/internal/api/handler"
	"github.com/skyglance/skyglance/internal/api/middleware"
	"github.com/skyglance/skyglance/internal/featureflags"
	"github.com/skyglance/skyglance/internal/provider/resilience"
	"github.com/skyglance/skyglance/internal/region"
	"github.com/skyglance/skyglance/internal/weather"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	Weather  *weather.Service
	Registry *resilience.Registry
	Region   *region.Detector
	Flags    *featureflags.Service

	// Admin protects the operator routes. With an empty signing key the
	// operator routes are not mounted; health and readiness stay public.
	Admin middleware.AdminAuthConfig

	// RateLimit bounds the public weather routes per client IP. Zero disables it.
	RateLimit middleware.RateLimitConfig

	// RequireTLS rejects plain-HTTP requests forwarded by a load balancer.
	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "skyglance-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	var forceRefresh func(ctx context.Context) bool
	if cfg.Flags != nil {
		forceRefresh = cfg.Flags.ForceRefresh
	}

	opsCfg := handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Flags:     cfg.Flags,
		Logger:    cfg.Logger,
	}
	// Typed nils would defeat the handler's nil checks.
	if cfg.Weather != nil {
		opsCfg.Cache = cfg.Weather
	}
	if cfg.Registry != nil {
		opsCfg.Providers = cfg.Registry
	}
	if cfg.Region != nil {
		opsCfg.Region = cfg.Region
	}

	opsHandler := handler.NewOpsHandler(opsCfg)
	weatherHandler := handler.NewWeatherHandler(cfg.Weather, forceRefresh)

	r.Route("/v1", func(r chi.Router) {
		// Public weather endpoints
		r.Group(func(r chi.Router) {
			if cfg.RateLimit.RequestLimit > 0 {
				r.Use(middleware.RateLimitByIP(cfg.RateLimit))
			}
			r.Use(middleware.CacheBypass(cfg.Admin))
			r.Get("/geocode", weatherHandler.Geocode)
			r.Get("/reverse", weatherHandler.ReverseGeocode)
			r.Get("/autocomplete", weatherHandler.Autocomplete)
			r.Get("/forecast", weatherHandler.Forecast)
		})

		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)

			if cfg.Admin.SigningKey == "" {
				return
			}

			// Operator endpoints
			r.Group(func(r chi.Router) {
				r.Use(middleware.AdminAuth(cfg.Admin))
				r.Use(middleware.RateLimitByAdmin(middleware.AdminRateLimit))

				r.Get("/status", opsHandler.SystemStatus)
				r.Delete("/cache", opsHandler.InvalidateCache)

				if cfg.Flags != nil {
					flagsHandler := handler.NewFeatureFlagsHandler(cfg.Flags, cfg.Logger)
					r.Get("/flags", flagsHandler.ListFeatureFlags)
					r.With(middleware.RequireJSON).Put("/flags", flagsHandler.UpsertFeatureFlags)
					r.Post("/flags/invalidate", flagsHandler.InvalidateCache)
				}
			})
		})
	})

	return r
}
