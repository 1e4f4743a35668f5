package weather

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/skyglance/skyglance/internal/weather"

// Metrics holds the OpenTelemetry instruments for the facade.
// A nil *Metrics records nothing.
type Metrics struct {
	cacheLookups     metric.Int64Counter
	providerAttempts metric.Int64Counter
	providerDuration metric.Float64Histogram
}

// NewMetrics creates facade instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	cacheLookups, err := meter.Int64Counter(
		"weather.cache.lookups",
		metric.WithDescription("Facade cache lookups by namespace and result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	providerAttempts, err := meter.Int64Counter(
		"weather.provider.attempts",
		metric.WithDescription("Provider attempts by provider, operation and outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	providerDuration, err := meter.Float64Histogram(
		"weather.provider.duration",
		metric.WithDescription("Duration of provider attempts in seconds, retries included"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		cacheLookups:     cacheLookups,
		providerAttempts: providerAttempts,
		providerDuration: providerDuration,
	}, nil
}

func (m *Metrics) recordCache(ctx context.Context, operation string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
}

// Provider outcomes.
const (
	outcomeSuccess = "success"
	outcomeAbsent  = "absent"
	outcomeError   = "error"
)

func (m *Metrics) recordAttempt(ctx context.Context, provider, operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.providerAttempts.Add(ctx, 1, attrs)
	m.providerDuration.Record(ctx, elapsed.Seconds(), attrs)
}
