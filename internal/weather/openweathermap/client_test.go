package openweathermap_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyglance/skyglance/internal/provider/resilience"
	"github.com/skyglance/skyglance/internal/weather"
	"github.com/skyglance/skyglance/internal/weather/openweathermap"
)

func newTestClient(server *httptest.Server) *openweathermap.Client {
	policy := resilience.Policy{Timeout: time.Second, MaxRetries: 0, InitialInterval: time.Millisecond}
	return openweathermap.NewClient(openweathermap.ClientConfig{
		APIKey:          "test-key",
		BaseURL:         server.URL,
		HTTPClient:      resilience.NewClient(resilience.ClientConfig{Name: "owm-test"}),
		ForecastPolicy:  &policy,
		GeocodingPolicy: &policy,
	})
}

func conditions(id int) []map[string]any {
	return []map[string]any{{"id": id, "main": "x", "description": "x"}}
}

func TestClient_Forecast(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).Unix()

	hourly := make([]map[string]any, 0, 48)
	for i := 0; i < 48; i++ {
		hourly = append(hourly, map[string]any{
			"dt":      base + int64(i)*3600,
			"temp":    10.0 + float64(i),
			"pop":     0.35,
			"weather": conditions(500),
		})
	}

	daily := make([]map[string]any, 0, 8)
	for i := 0; i < 8; i++ {
		day := map[string]any{
			"dt":      base + int64(i)*86400,
			"sunrise": base - 5*3600,
			"sunset":  base + 6*3600,
			"temp":    map[string]float64{"min": -1, "max": 6},
			"weather": conditions(601),
		}
		if i == 0 {
			day["rain"] = 1.5
			day["snow"] = 0.5
		}
		daily = append(daily, day)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/2.5/onecall", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "52.3700", q.Get("lat"))
		assert.Equal(t, "4.8950", q.Get("lon"))
		assert.Equal(t, "test-key", q.Get("appid"))
		assert.Equal(t, "metric", q.Get("units"))
		assert.Equal(t, "minutely", q.Get("exclude"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"lat":             52.37,
			"lon":             4.895,
			"timezone":        "Europe/Amsterdam",
			"timezone_offset": 3600,
			"current": map[string]any{
				"dt":         base,
				"temp":       0.0,
				"feels_like": -2.5,
				"humidity":   81,
				"uvi":        0.4,
				"wind_speed": 5.1,
				"wind_deg":   220,
				"weather":    conditions(804),
			},
			"hourly": hourly,
			"daily":  daily,
		})
	}))
	defer server.Close()

	snap, err := newTestClient(server).Forecast(context.Background(), 52.37, 4.895)
	require.NoError(t, err)
	require.NoError(t, snap.Validate())

	assert.Equal(t, openweathermap.ProviderName, snap.Provider)
	assert.Equal(t, "2025-03-01T13:00", snap.Current.Time, "times are rendered in the location's zone")
	require.NotNil(t, snap.Current.Temperature)
	assert.InDelta(t, 0.0, *snap.Current.Temperature, 1e-9)
	assert.Equal(t, 3, snap.Current.WeatherCode)
	require.NotNil(t, snap.Current.RelativeHumidity)
	assert.Equal(t, 81, *snap.Current.RelativeHumidity)

	assert.Len(t, snap.Hourly.Time, 24, "hourly is capped at 24")
	assert.Equal(t, 61, snap.Hourly.WeatherCode[0])
	require.NotNil(t, snap.Hourly.PrecipitationProbability[0])
	assert.Equal(t, 35, *snap.Hourly.PrecipitationProbability[0], "pop is a percentage")

	assert.Len(t, snap.Daily.Time, 7, "daily is capped at 7")
	assert.Equal(t, "2025-03-01", snap.Daily.Time[0])
	assert.Equal(t, 73, snap.Daily.WeatherCode[0])
	require.NotNil(t, snap.Daily.PrecipitationSum[0])
	assert.InDelta(t, 2.0, *snap.Daily.PrecipitationSum[0], 1e-9)
	require.NotNil(t, snap.Daily.PrecipitationSum[1])
	assert.InDelta(t, 0.0, *snap.Daily.PrecipitationSum[1], 1e-9)
	assert.Equal(t, "2025-03-01T08:00", snap.Daily.Sunrise[0])
}

func TestClient_Forecast_CodeTranslation(t *testing.T) {
	ids := []int{200, 300, 500, 600, 701, 800, 804}
	want := []int{95, 51, 61, 71, 45, 0, 3}

	hourly := make([]map[string]any, 0, len(ids))
	for i, id := range ids {
		hourly = append(hourly, map[string]any{"dt": int64(i) * 3600, "temp": 1.0, "pop": 0.0, "weather": conditions(id)})
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"current": map[string]any{"dt": 0, "weather": conditions(999)},
			"hourly":  hourly,
		})
	}))
	defer server.Close()

	snap, err := newTestClient(server).Forecast(context.Background(), 0, 0)
	require.NoError(t, err)

	assert.Equal(t, want, snap.Hourly.WeatherCode)
	assert.Equal(t, weather.CodeOvercast, snap.Current.WeatherCode, "unknown ids fall back to overcast")
	for _, c := range snap.Hourly.WeatherCode {
		assert.True(t, weather.IsWMO(c))
	}
}

func TestClient_Forecast_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server).Forecast(context.Background(), 1, 1)

	var statusErr *resilience.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.NotContains(t, err.Error(), "test-key")
}

func TestClient_Forecast_Malformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"lat": 1}`))
	}))
	defer server.Close()

	_, err := newTestClient(server).Forecast(context.Background(), 1, 1)

	var parseErr *weather.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, openweathermap.ProviderName, parseErr.Provider)
}

func TestClient_MissingAPIKey(t *testing.T) {
	client := openweathermap.NewClient(openweathermap.ClientConfig{})

	_, err := client.Geocode(context.Background(), "Paris", 1, "en")
	assert.ErrorIs(t, err, openweathermap.ErrMissingAPIKey)
}

func TestClient_Geocode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geo/1.0/direct", r.URL.Path)
		assert.Equal(t, "Tehran", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))

		_, _ = w.Write([]byte(`[
			{"name":"Tehran","local_names":{"fa":"تهران"},"lat":35.6892,"lon":51.389,"country":"IR","state":"Tehran Province"},
			{"name":"","lat":0,"lon":0,"country":"IR"}
		]`))
	}))
	defer server.Close()

	client := newTestClient(server)

	locations, err := client.Geocode(context.Background(), "Tehran", 5, "en")
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, "Tehran", locations[0].Name)
	assert.Equal(t, "Tehran Province", locations[0].State)
	assert.Equal(t, "Tehran, IR", locations[0].DisplayName)

	locations, err = client.Geocode(context.Background(), "Tehran", 5, "fa")
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, "تهران", locations[0].Name)
}

func TestClient_Geocode_NoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	locations, err := newTestClient(server).Geocode(context.Background(), "Nowhereville", 1, "en")
	require.NoError(t, err)
	assert.Empty(t, locations)
}

func TestClient_ReverseGeocode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geo/1.0/reverse", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		if r.URL.Query().Get("lat") == "0.0000" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[{"name":"Amsterdam","lat":52.37,"lon":4.895,"country":"NL"}]`))
	}))
	defer server.Close()

	client := newTestClient(server)

	name, err := client.ReverseGeocode(context.Background(), 52.37, 4.895, "en")
	require.NoError(t, err)
	assert.Equal(t, "Amsterdam, NL", name)

	name, err = client.ReverseGeocode(context.Background(), 0, 0, "en")
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(server).Geocode(ctx, "Paris", 1, "en")
	assert.Error(t, err)
}

func TestClient_Name(t *testing.T) {
	client := openweathermap.NewClient(openweathermap.ClientConfig{APIKey: "k"})
	assert.Equal(t, "openweathermap", client.Name())
}
