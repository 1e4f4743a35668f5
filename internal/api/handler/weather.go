package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/skyglance/skyglance/internal/api/middleware"
	"github.com/skyglance/skyglance/internal/api/models"
	"github.com/skyglance/skyglance/internal/api/response"
	"github.com/skyglance/skyglance/internal/weather"
)

// Facade is the subset of weather.Service the HTTP API needs.
type Facade interface {
	GetCoordinates(ctx context.Context, name string, opts ...weather.Option) (*weather.Location, error)
	GetReverseGeocode(ctx context.Context, lat, lon float64, opts ...weather.Option) (string, error)
	GetAutocompleteResults(ctx context.Context, query string, opts ...weather.Option) ([]weather.Location, error)
	FetchWeatherData(ctx context.Context, lat, lon float64, opts ...weather.Option) (*weather.Snapshot, error)
}

// WeatherHandler exposes the facade operations.
type WeatherHandler struct {
	facade       Facade
	forceRefresh func(ctx context.Context) bool
}

// NewWeatherHandler creates a new WeatherHandler. forceRefresh may be nil.
func NewWeatherHandler(facade Facade, forceRefresh func(ctx context.Context) bool) *WeatherHandler {
	return &WeatherHandler{facade: facade, forceRefresh: forceRefresh}
}

// Geocode handles GET /v1/geocode?name=&lang=.
func (h *WeatherHandler) Geocode(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		response.BadRequest(w, r, "name is required", []models.FieldError{
			{Field: "name", Message: "is required", Code: "REQUIRED"},
		})
		return
	}

	loc, err := h.facade.GetCoordinates(r.Context(), name, h.options(r)...)
	if err != nil {
		response.WeatherError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, loc)
}

// ReverseGeocode handles GET /v1/reverse?lat=&lon=&lang=.
func (h *WeatherHandler) ReverseGeocode(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := parseCoordinates(w, r)
	if !ok {
		return
	}

	name, err := h.facade.GetReverseGeocode(r.Context(), lat, lon, h.options(r)...)
	if err != nil {
		response.WeatherError(w, r, err)
		return
	}

	resp := models.ReverseGeocodeResponse{}
	if name != "" {
		resp.Name = &name
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// Autocomplete handles GET /v1/autocomplete?q=&lang=. Queries shorter than
// two characters return an empty list.
func (h *WeatherHandler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	items, err := h.facade.GetAutocompleteResults(r.Context(), r.URL.Query().Get("q"), h.options(r)...)
	if err != nil {
		response.WeatherError(w, r, err)
		return
	}
	if items == nil {
		items = []weather.Location{}
	}
	response.JSON(w, r, http.StatusOK, models.AutocompleteResponse{Items: items})
}

// Forecast handles GET /v1/forecast?lat=&lon=&units=&lang=.
func (h *WeatherHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := parseCoordinates(w, r)
	if !ok {
		return
	}

	opts := h.options(r)
	if units := r.URL.Query().Get("units"); units != "" {
		if units != weather.UnitsMetric && units != weather.UnitsImperial {
			response.BadRequest(w, r, "invalid units", []models.FieldError{
				{Field: "units", Message: "must be metric or imperial", Code: "INVALID_VALUE"},
			})
			return
		}
		opts = append(opts, weather.WithUnits(units))
	}

	snapshot, err := h.facade.FetchWeatherData(r.Context(), lat, lon, opts...)
	if err != nil {
		response.WeatherError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, snapshot)
}

// options derives per-call options from the request: lang (or
// Accept-Language) and cache bypass. The cache is skipped for an operator's
// no-cache request (see middleware.CacheBypass) or while force_refresh is on.
func (h *WeatherHandler) options(r *http.Request) []weather.Option {
	var opts []weather.Option

	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = r.Header.Get("Accept-Language")
	}
	if lang != "" {
		opts = append(opts, weather.WithLanguage(lang))
	}

	if middleware.CacheBypassRequested(r.Context()) || (h.forceRefresh != nil && h.forceRefresh(r.Context())) {
		opts = append(opts, weather.BypassCache())
	}
	return opts
}

// parseCoordinates reads lat and lon, writing a 400 when either is missing or
// not a number. Range checks are left to the facade.
func parseCoordinates(w http.ResponseWriter, r *http.Request) (lat, lon float64, ok bool) {
	var fieldErrors []models.FieldError

	parse := func(field string) float64 {
		raw := r.URL.Query().Get(field)
		if raw == "" {
			fieldErrors = append(fieldErrors, models.FieldError{Field: field, Message: "is required", Code: "REQUIRED"})
			return 0
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{Field: field, Message: "must be a number", Code: "INVALID_NUMBER"})
			return 0
		}
		return v
	}

	lat = parse("lat")
	lon = parse("lon")
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid coordinates", fieldErrors)
		return 0, 0, false
	}
	return lat, lon, true
}
