package weather

import "context"

// Provider is an upstream adapter. Adapters implement any subset of the
// capability interfaces below; the Service asks for the one it needs.
type Provider interface {
	// Name returns the provider name for logging and metrics.
	Name() string
}

// Geocoder resolves a place name. An empty slice with a nil error means the
// provider answered with no matches.
type Geocoder interface {
	Provider
	Geocode(ctx context.Context, name string, count int, lang string) ([]Location, error)
}

// ReverseGeocoder resolves coordinates to a display name. An empty name with
// a nil error means the provider knows no name for the point.
type ReverseGeocoder interface {
	Provider
	ReverseGeocode(ctx context.Context, lat, lon float64, lang string) (string, error)
}

// Forecaster fetches a metric snapshot. A nil snapshot with a nil error means
// the provider has no data for the point.
type Forecaster interface {
	Provider
	Forecast(ctx context.Context, lat, lon float64) (*Snapshot, error)
}

// RegionPreference decides whether the primary provider goes first.
type RegionPreference interface {
	PrimaryReachable() bool
}

// Connectivity reports whether outbound requests can be made at all.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// ConnectivityFunc adapts a function to Connectivity.
type ConnectivityFunc func(ctx context.Context) bool

// Online implements Connectivity.
func (f ConnectivityFunc) Online(ctx context.Context) bool {
	return f(ctx)
}
