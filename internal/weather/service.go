package weather

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skyglance/skyglance/internal/cache"
)

// Autocomplete limits.
const (
	MinAutocompleteQuery   = 2
	MaxAutocompleteResults = 5
)

// ServiceConfig holds configuration for the weather service.
type ServiceConfig struct {
	// Primary serves forecasts and geocoding (Open-Meteo).
	Primary Provider

	// Secondary serves forecasts and geocoding when the primary fails (OpenWeatherMap). Optional.
	Secondary Provider

	// Tertiary serves geocoding only, after both others are exhausted (Nominatim). Optional.
	Tertiary Provider

	// Region orders primary and secondary for geocoding. Nil means primary first.
	Region RegionPreference

	// Cache stores results. Nil means a private memory-only store.
	Cache *cache.Store

	// Connectivity short-circuits calls while offline. Nil means always online.
	Connectivity Connectivity

	// TertiaryEnabled gates the tertiary geocoder per call. Nil means enabled.
	TertiaryEnabled func(ctx context.Context) bool

	// Logger for service operations.
	Logger zerolog.Logger

	// Metrics records cache and provider outcomes. Optional.
	Metrics *Metrics

	// DefaultLanguage applies when a call has no WithLanguage (default: "en").
	DefaultLanguage string

	// DefaultUnits applies when a call has no WithUnits (default: metric).
	DefaultUnits string
}

// Service is the weather facade: cache lookup, provider fallback and
// write-through for geocoding and forecasts.
type Service struct {
	primary         Provider
	secondary       Provider
	tertiary        Provider
	region          RegionPreference
	cache           *cache.Store
	connectivity    Connectivity
	tertiaryEnabled func(ctx context.Context) bool
	logger          zerolog.Logger
	metrics         *Metrics
	tracer          trace.Tracer
	defaultLanguage string
	defaultUnits    string
}

// NewService creates a new weather service.
func NewService(cfg ServiceConfig) *Service {
	store := cfg.Cache
	if store == nil {
		store = cache.New(cache.Config{Logger: cfg.Logger})
	}

	lang := "en"
	if cfg.DefaultLanguage != "" {
		lang = MatchLanguage(cfg.DefaultLanguage)
	}

	units := cfg.DefaultUnits
	if units != UnitsImperial {
		units = UnitsMetric
	}

	return &Service{
		primary:         cfg.Primary,
		secondary:       cfg.Secondary,
		tertiary:        cfg.Tertiary,
		region:          cfg.Region,
		cache:           store,
		connectivity:    cfg.Connectivity,
		tertiaryEnabled: cfg.TertiaryEnabled,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		tracer:          otel.Tracer(instrumentationName),
		defaultLanguage: lang,
		defaultUnits:    units,
	}
}

// GetCoordinates geocodes a place name. Providers are tried in region order,
// the tertiary geocoder last; the first match wins and is cached for 7 days.
func (s *Service) GetCoordinates(ctx context.Context, name string, opts ...Option) (*Location, error) {
	o := s.resolveOptions(opts)
	ctx, span := s.tracer.Start(ctx, "weather.GetCoordinates")
	defer span.End()

	query := strings.TrimSpace(name)
	if query == "" {
		return nil, newError(KindLocationNotFound, MsgLocationNotFound, o.lang, nil)
	}

	key := cache.LocationKey(query, o.lang)
	if !o.bypassCache {
		loc, ok := cache.Lookup[Location](ctx, s.cache, key)
		s.metrics.recordCache(ctx, "geocode", ok)
		if ok {
			return &loc, nil
		}
	}

	if err := s.checkOnline(ctx, o.lang); err != nil {
		return nil, s.fail(span, err)
	}

	var (
		errs     []error
		answered bool
	)
	for _, p := range s.geocodingOrder(ctx) {
		g, ok := p.(Geocoder)
		if !ok {
			continue
		}

		start := time.Now()
		results, err := g.Geocode(ctx, query, 1, o.lang)
		if err != nil {
			errs = append(errs, s.attemptFailed(ctx, p, "geocode", start, err))
			continue
		}
		if len(results) == 0 {
			answered = true
			s.metrics.recordAttempt(ctx, p.Name(), "geocode", outcomeAbsent, time.Since(start))
			continue
		}
		s.metrics.recordAttempt(ctx, p.Name(), "geocode", outcomeSuccess, time.Since(start))

		loc := results[0]
		s.store(ctx, key, loc)
		span.SetAttributes(attribute.String("weather.provider", p.Name()))
		return &loc, nil
	}

	msg := MsgLocationNotFound
	if !answered && len(errs) > 0 {
		msg = MsgNetworkError
	}
	return nil, s.fail(span, newError(KindLocationNotFound, msg, o.lang, errors.Join(errs...)))
}

// GetReverseGeocode resolves coordinates to a place name. An empty name with
// a nil error means no provider could name the point; only invalid
// coordinates and offline state are errors.
func (s *Service) GetReverseGeocode(ctx context.Context, lat, lon float64, opts ...Option) (string, error) {
	o := s.resolveOptions(opts)
	ctx, span := s.tracer.Start(ctx, "weather.GetReverseGeocode")
	defer span.End()

	if err := validateCoordinates(lat, lon, o.lang); err != nil {
		return "", s.fail(span, err)
	}

	key := cache.ReverseKey(lat, lon, o.lang)
	if !o.bypassCache {
		name, ok := cache.Lookup[string](ctx, s.cache, key)
		s.metrics.recordCache(ctx, "reverse", ok)
		if ok {
			return name, nil
		}
	}

	if err := s.checkOnline(ctx, o.lang); err != nil {
		return "", s.fail(span, err)
	}

	for _, p := range s.geocodingOrder(ctx) {
		rg, ok := p.(ReverseGeocoder)
		if !ok {
			continue
		}

		start := time.Now()
		name, err := rg.ReverseGeocode(ctx, lat, lon, o.lang)
		if err != nil {
			s.attemptFailed(ctx, p, "reverse", start, err)
			continue
		}
		if name == "" {
			s.metrics.recordAttempt(ctx, p.Name(), "reverse", outcomeAbsent, time.Since(start))
			continue
		}
		s.metrics.recordAttempt(ctx, p.Name(), "reverse", outcomeSuccess, time.Since(start))

		s.store(ctx, key, name)
		return name, nil
	}

	s.logger.Debug().
		Float64("lat", lat).
		Float64("lon", lon).
		Msg("no provider could name location")
	return "", nil
}

// GetAutocompleteResults returns up to 5 suggestions from the first provider
// that has any. Queries shorter than 2 characters return an empty list
// without a network call. Empty lists are not cached.
func (s *Service) GetAutocompleteResults(ctx context.Context, query string, opts ...Option) ([]Location, error) {
	o := s.resolveOptions(opts)

	q := strings.TrimSpace(query)
	if len([]rune(q)) < MinAutocompleteQuery {
		return []Location{}, nil
	}

	ctx, span := s.tracer.Start(ctx, "weather.GetAutocompleteResults")
	defer span.End()

	key := cache.AutocompleteKey(q, o.lang)
	if !o.bypassCache {
		results, ok := cache.Lookup[[]Location](ctx, s.cache, key)
		s.metrics.recordCache(ctx, "autocomplete", ok)
		if ok {
			return results, nil
		}
	}

	if err := s.checkOnline(ctx, o.lang); err != nil {
		return nil, s.fail(span, err)
	}

	var (
		errs     []error
		answered bool
	)
	for _, p := range s.geocodingOrder(ctx) {
		g, ok := p.(Geocoder)
		if !ok {
			continue
		}

		start := time.Now()
		results, err := g.Geocode(ctx, q, MaxAutocompleteResults, o.lang)
		if err != nil {
			errs = append(errs, s.attemptFailed(ctx, p, "autocomplete", start, err))
			continue
		}
		if len(results) == 0 {
			answered = true
			s.metrics.recordAttempt(ctx, p.Name(), "autocomplete", outcomeAbsent, time.Since(start))
			continue
		}
		s.metrics.recordAttempt(ctx, p.Name(), "autocomplete", outcomeSuccess, time.Since(start))

		if len(results) > MaxAutocompleteResults {
			results = results[:MaxAutocompleteResults]
		}
		s.store(ctx, key, results)
		return results, nil
	}

	if !answered && len(errs) > 0 {
		return nil, s.fail(span, newError(KindLocationNotFound, MsgNetworkError, o.lang, errors.Join(errs...)))
	}
	return []Location{}, nil
}

// FetchWeatherData returns the forecast for a point. The primary provider is
// always tried first regardless of region; snapshots are cached for 30 minutes
// per unit system.
func (s *Service) FetchWeatherData(ctx context.Context, lat, lon float64, opts ...Option) (*Snapshot, error) {
	o := s.resolveOptions(opts)
	ctx, span := s.tracer.Start(ctx, "weather.FetchWeatherData")
	defer span.End()

	if err := validateCoordinates(lat, lon, o.lang); err != nil {
		return nil, s.fail(span, err)
	}

	key := cache.WeatherKey(lat, lon, o.units)
	if !o.bypassCache {
		snap, ok := cache.Lookup[Snapshot](ctx, s.cache, key)
		s.metrics.recordCache(ctx, "forecast", ok)
		if ok {
			return &snap, nil
		}
	}

	if err := s.checkOnline(ctx, o.lang); err != nil {
		return nil, s.fail(span, err)
	}

	var errs []error
	for _, p := range []Provider{s.primary, s.secondary} {
		f, ok := p.(Forecaster)
		if !ok {
			continue
		}

		start := time.Now()
		snap, err := f.Forecast(ctx, lat, lon)
		if err != nil {
			errs = append(errs, s.attemptFailed(ctx, p, "forecast", start, err))
			continue
		}
		if snap == nil {
			s.metrics.recordAttempt(ctx, p.Name(), "forecast", outcomeAbsent, time.Since(start))
			continue
		}
		s.metrics.recordAttempt(ctx, p.Name(), "forecast", outcomeSuccess, time.Since(start))

		if o.units == UnitsImperial {
			snap = snap.Imperial()
		}
		s.store(ctx, key, snap)
		span.SetAttributes(attribute.String("weather.provider", p.Name()))
		return snap, nil
	}

	return nil, s.fail(span, newError(KindWeatherUnavailable, MsgAPILimit, o.lang, errors.Join(errs...)))
}

// InvalidateCache clears cached entries whose key starts with prefix
// (everything when empty) and returns the number removed from memory.
func (s *Service) InvalidateCache(ctx context.Context, prefix string) int {
	removed := s.cache.Clear(ctx, prefix)
	s.logger.Info().
		Str("prefix", prefix).
		Int("removed", removed).
		Msg("weather cache invalidated")
	return removed
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// geocodingOrder returns primary and secondary in region order, then the tertiary geocoder.
func (s *Service) geocodingOrder(ctx context.Context) []Provider {
	order := make([]Provider, 0, 3)

	if s.region == nil || s.region.PrimaryReachable() {
		order = appendProvider(order, s.primary, s.secondary)
	} else {
		order = appendProvider(order, s.secondary, s.primary)
	}

	if s.tertiaryEnabled == nil || s.tertiaryEnabled(ctx) {
		order = appendProvider(order, s.tertiary)
	}

	return order
}

func appendProvider(order []Provider, providers ...Provider) []Provider {
	for _, p := range providers {
		if p != nil {
			order = append(order, p)
		}
	}
	return order
}

func (s *Service) checkOnline(ctx context.Context, lang string) error {
	if s.connectivity != nil && !s.connectivity.Online(ctx) {
		return newError(KindOffline, MsgNetworkError, lang, nil)
	}
	return nil
}

func (s *Service) attemptFailed(ctx context.Context, p Provider, operation string, start time.Time, err error) error {
	s.metrics.recordAttempt(ctx, p.Name(), operation, outcomeError, time.Since(start))
	s.logger.Warn().Err(err).
		Str("provider", p.Name()).
		Str("operation", operation).
		Msg("provider attempt failed, trying next")
	return fmt.Errorf("%s: %w", p.Name(), err)
}

// store writes through to the cache. A failure only costs a future cache hit.
func (s *Service) store(ctx context.Context, key string, v any) {
	if err := s.cache.Put(ctx, key, v); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to cache result")
	}
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
	return err
}

func validateCoordinates(lat, lon float64, lang string) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return newError(KindInvalidCoordinates, MsgUnknownError, lang, nil)
	}
	return nil
}
