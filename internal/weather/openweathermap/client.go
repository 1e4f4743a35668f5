// Package openweathermap implements the secondary weather provider on top of
// the OpenWeatherMap One Call and Geocoding APIs.
package openweathermap

import (
	"context"
	"encoding/json"
	"errors"
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
	ProviderName = "openweathermap"

	// DefaultBaseURL is the OpenWeatherMap API base URL.
	DefaultBaseURL = "https://api.openweathermap.org"
)

// ErrMissingAPIKey is returned by every call when no API key is configured.
var ErrMissingAPIKey = errors.New("openweathermap: api key not configured")

// ClientConfig holds configuration for the OpenWeatherMap client.
type ClientConfig struct {
	// APIKey is the OpenWeatherMap API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to OpenWeatherMap API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// ForecastPolicy applies to One Call requests. Default: resilience.DefaultPolicy().
	ForecastPolicy *resilience.Policy

	// GeocodingPolicy applies to geocoding requests. Default: resilience.GeocodingPolicy().
	GeocodingPolicy *resilience.Policy

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenWeatherMap API client.
type Client struct {
	apiKey          string
	baseURL         string
	httpClient      *resilience.Client
	forecastPolicy  resilience.Policy
	geocodingPolicy resilience.Policy
	logger          zerolog.Logger
}

// NewClient creates a new OpenWeatherMap client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
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
		apiKey:          cfg.APIKey,
		baseURL:         strings.TrimRight(baseURL, "/"),
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

// Forecast fetches current, hourly (24h) and daily (7d) forecast in metric
// units and converts it to the canonical snapshot with WMO codes.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) (*weather.Snapshot, error) {
	q := url.Values{}
	q.Set("lat", formatCoord(lat))
	q.Set("lon", formatCoord(lon))
	q.Set("exclude", "minutely")
	q.Set("units", "metric")

	var resp oneCallResponse
	if err := c.getJSON(ctx, "/data/2.5/onecall", q, c.forecastPolicy, &resp); err != nil {
		return nil, err
	}

	snap, err := parseOneCall(&resp)
	if err != nil {
		return nil, &weather.ParseError{Provider: ProviderName, Err: err}
	}
	return snap, nil
}

// Geocode resolves a place name through the direct geocoding endpoint. The
// localized name is used when the provider has one for lang.
func (c *Client) Geocode(ctx context.Context, name string, count int, lang string) ([]weather.Location, error) {
	q := url.Values{}
	q.Set("q", name)
	q.Set("limit", strconv.Itoa(count))

	var resp []geoResult
	if err := c.getJSON(ctx, "/geo/1.0/direct", q, c.geocodingPolicy, &resp); err != nil {
		return nil, err
	}

	locations := make([]weather.Location, 0, len(resp))
	for _, r := range resp {
		if r.Name == "" {
			continue
		}
		locations = append(locations, weather.NewLocation(r.Lat, r.Lon, r.localName(lang), r.Country, r.State))
	}

	return locations, nil
}

// ReverseGeocode names a point as "name, country". An empty string means no match.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64, lang string) (string, error) {
	q := url.Values{}
	q.Set("lat", formatCoord(lat))
	q.Set("lon", formatCoord(lon))
	q.Set("limit", "1")

	var resp []geoResult
	if err := c.getJSON(ctx, "/geo/1.0/reverse", q, c.geocodingPolicy, &resp); err != nil {
		return "", err
	}

	if len(resp) == 0 || resp[0].Name == "" {
		return "", nil
	}
	return weather.NewLocation(resp[0].Lat, resp[0].Lon, resp[0].localName(lang), resp[0].Country, "").DisplayName, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, policy resilience.Policy, dst any) error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}
	q.Set("appid", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

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
