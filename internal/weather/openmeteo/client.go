// Package openmeteo implements the primary weather provider on top of the
// Open-Meteo forecast and geocoding APIs.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/skyglance/skyglance/internal/provider/resilience"
	"github.com/skyglance/skyglance/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "openmeteo"

	// DefaultForecastURL is the Open-Meteo forecast API base URL.
	DefaultForecastURL = "https://api.open-meteo.com/v1"

	// DefaultGeocodingURL is the Open-Meteo geocoding API base URL.
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1"
)

const (
	currentFields = "temperature_2m,apparent_temperature,relative_humidity_2m,weather_code,wind_speed_10m,wind_direction_10m,uv_index"
	hourlyFields  = "temperature_2m,weather_code,precipitation_probability"
	dailyFields   = "weather_code,temperature_2m_max,temperature_2m_min,precipitation_sum,sunrise,sunset"
)

// ClientConfig holds configuration for the Open-Meteo client.
type ClientConfig struct {
	// ForecastURL is the forecast API base URL (optional).
	ForecastURL string

	// GeocodingURL is the geocoding API base URL (optional).
	GeocodingURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// ForecastPolicy applies to forecast calls. Default: resilience.DefaultPolicy().
	ForecastPolicy *resilience.Policy

	// GeocodingPolicy applies to geocoding calls. Default: resilience.GeocodingPolicy().
	GeocodingPolicy *resilience.Policy

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an Open-Meteo API client.
type Client struct {
	forecastURL     string
	geocodingURL    string
	httpClient      *resilience.Client
	forecastPolicy  resilience.Policy
	geocodingPolicy resilience.Policy
	logger          zerolog.Logger
}

// NewClient creates a new Open-Meteo client.
func NewClient(cfg ClientConfig) *Client {
	forecastURL := cfg.ForecastURL
	if forecastURL == "" {
		forecastURL = DefaultForecastURL
	}

	geocodingURL := cfg.GeocodingURL
	if geocodingURL == "" {
		geocodingURL = DefaultGeocodingURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	forecastPolicy := resilience.DefaultPolicy()
	if cfg.ForecastPolicy != nil {
		forecastPolicy = *cfg.ForecastPolicy
	}

	geocodingPolicy := resilience.GeocodingPolicy()
	if cfg.GeocodingPolicy != nil {
		geocodingPolicy = *cfg.GeocodingPolicy
	}

	return &Client{
		forecastURL:     strings.TrimRight(forecastURL, "/"),
		geocodingURL:    strings.TrimRight(geocodingURL, "/"),
		httpClient:      httpClient,
		forecastPolicy:  forecastPolicy,
		geocodingPolicy: geocodingPolicy,
		logger:          cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// ProbeURL returns a cheap forecast URL suitable for a reachability HEAD request.
func (c *Client) ProbeURL() string {
	return c.forecastURL + "/forecast?latitude=0&longitude=0&current=temperature_2m"
}

// Forecast fetches current, hourly and 7-day daily forecast in metric units.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) (*weather.Snapshot, error) {
	q := url.Values{}
	q.Set("latitude", formatCoord(lat))
	q.Set("longitude", formatCoord(lon))
	q.Set("current", currentFields)
	q.Set("hourly", hourlyFields)
	q.Set("daily", dailyFields)
	q.Set("timezone", "auto")
	q.Set("wind_speed_unit", "ms")
	q.Set("forecast_days", strconv.Itoa(weather.MaxDailyEntries))

	var resp forecastResponse
	if err := c.getJSON(ctx, c.forecastURL+"/forecast?"+q.Encode(), c.forecastPolicy, &resp); err != nil {
		return nil, err
	}

	snap, err := parseForecast(&resp)
	if err != nil {
		return nil, &weather.ParseError{Provider: ProviderName, Err: err}
	}
	return snap, nil
}

// Geocode searches places by name. An empty result set is not an error.
func (c *Client) Geocode(ctx context.Context, name string, count int, lang string) ([]weather.Location, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("count", strconv.Itoa(count))
	q.Set("language", lang)
	q.Set("format", "json")

	var resp searchResponse
	if err := c.getJSON(ctx, c.geocodingURL+"/search?"+q.Encode(), c.geocodingPolicy, &resp); err != nil {
		return nil, err
	}

	locations := make([]weather.Location, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Name == "" {
			continue
		}
		locations = append(locations, weather.NewLocation(r.Latitude, r.Longitude, r.Name, r.Country, r.Admin1))
	}

	return locations, nil
}

// ReverseGeocode names a point as "name, city, country", skipping missing
// parts. An empty string means no feature was found.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64, lang string) (string, error) {
	q := url.Values{}
	q.Set("latitude", formatCoord(lat))
	q.Set("longitude", formatCoord(lon))
	q.Set("language", lang)

	var resp reverseResponse
	if err := c.getJSON(ctx, c.geocodingURL+"/reverse?"+q.Encode(), c.geocodingPolicy, &resp); err != nil {
		return "", err
	}

	if len(resp.Features) == 0 {
		return "", nil
	}

	props := resp.Features[0].Properties
	parts := make([]string, 0, 3)
	for _, p := range []string{props.Name, props.City, props.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", "), nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, policy resilience.Policy, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.DoWithPolicy(ctx, req, policy)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return &weather.ParseError{Provider: ProviderName, Err: err}
	}
	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
