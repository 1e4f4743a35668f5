// Package nominatim implements the tertiary, geocoding-only provider on top
// of the OpenStreetMap Nominatim API.
package nominatim

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
	// ProviderName identifies this geocoding provider.
	ProviderName = "nominatim"

	// DefaultBaseURL is the public Nominatim instance.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	// DefaultUserAgent is sent when none is configured; the usage policy rejects anonymous clients.
	DefaultUserAgent = "SkyGlance/1.0 (+https://github.com/skyglance/skyglance)"
)

// ClientConfig holds configuration for the Nominatim client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional).
	BaseURL string

	// UserAgent identifies the application to Nominatim (optional).
	UserAgent string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Policy applies to every request. Default: resilience.GeocodingPolicy().
	Policy *resilience.Policy

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Nominatim API client. It does not serve forecasts.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *resilience.Client
	policy     resilience.Policy
	logger     zerolog.Logger
}

// NewClient creates a new Nominatim client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	policy := resilience.GeocodingPolicy()
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: httpClient,
		policy:     policy,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Geocode searches places by free-form query.
func (c *Client) Geocode(ctx context.Context, name string, count int, lang string) ([]weather.Location, error) {
	q := url.Values{}
	q.Set("q", name)
	q.Set("format", "jsonv2")
	q.Set("limit", strconv.Itoa(count))
	q.Set("addressdetails", "1")
	q.Set("accept-language", lang)

	var resp []place
	if err := c.getJSON(ctx, "/search", q, &resp); err != nil {
		return nil, err
	}

	locations := make([]weather.Location, 0, len(resp))
	for _, p := range resp {
		loc, ok := p.location()
		if !ok {
			c.logger.Debug().Str("display_name", p.DisplayName).Msg("skipping nominatim result without coordinates")
			continue
		}
		locations = append(locations, loc)
	}

	return locations, nil
}

// ReverseGeocode names a point as "locality, country", falling back to the
// full display name. An empty string means Nominatim could not geocode it.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64, lang string) (string, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("format", "jsonv2")
	q.Set("accept-language", lang)

	var resp place
	if err := c.getJSON(ctx, "/reverse", q, &resp); err != nil {
		return "", err
	}

	if resp.Error != "" {
		return "", nil
	}

	if locality := resp.locality(); locality != "" {
		if resp.Address.Country != "" {
			return locality + ", " + resp.Address.Country, nil
		}
		return locality, nil
	}
	return resp.DisplayName, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.DoWithPolicy(ctx, req, c.policy)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return &weather.ParseError{Provider: ProviderName, Err: err}
	}
	return nil
}

// place is a Nominatim jsonv2 result. Coordinates are encoded as strings.
type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"address"`
}

func (p place) locality() string {
	for _, n := range []string{p.Name, p.Address.City, p.Address.Town, p.Address.Village} {
		if n != "" {
			return n
		}
	}
	return ""
}

func (p place) location() (weather.Location, bool) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return weather.Location{}, false
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return weather.Location{}, false
	}

	name := p.locality()
	if name == "" {
		name, _, _ = strings.Cut(p.DisplayName, ",")
	}
	if name == "" {
		return weather.Location{}, false
	}

	return weather.NewLocation(lat, lon, name, p.Address.Country, p.Address.State), true
}
