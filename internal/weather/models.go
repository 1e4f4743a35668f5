package weather

import (
	"fmt"
	"time"
)

// Unit systems.
const (
	UnitsMetric   = "metric"
	UnitsImperial = "imperial"
)

// Location is a geocoded place.
type Location struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Name        string  `json:"name"`
	Country     string  `json:"country"`
	State       string  `json:"state,omitempty"`
	DisplayName string  `json:"displayName"`
}

// NewLocation builds a Location with its derived display name.
func NewLocation(lat, lon float64, name, country, state string) Location {
	display := name
	if country != "" {
		display = name + ", " + country
	}
	return Location{
		Latitude:    lat,
		Longitude:   lon,
		Name:        name,
		Country:     country,
		State:       state,
		DisplayName: display,
	}
}

// Snapshot is the normalized forecast for one location.
// Measurements a provider did not report are nil; WeatherCode is always a WMO code.
type Snapshot struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timezone  string    `json:"timezone,omitempty"`
	Provider  string    `json:"provider"`
	Units     string    `json:"units"`
	Current   Current   `json:"current"`
	Hourly    Hourly    `json:"hourly"`
	Daily     Daily     `json:"daily"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Current holds current conditions.
type Current struct {
	Time                string   `json:"time,omitempty"`
	Temperature         *float64 `json:"temperature_2m"`
	ApparentTemperature *float64 `json:"apparent_temperature"`
	RelativeHumidity    *int     `json:"relative_humidity_2m"`
	WeatherCode         int      `json:"weather_code"`
	WindSpeed           *float64 `json:"wind_speed_10m"`
	WindDirection       *int     `json:"wind_direction_10m"`
	UVIndex             *float64 `json:"uv_index"`
}

// Hourly holds parallel hourly arrays keyed by Time (ISO8601).
type Hourly struct {
	Time                     []string   `json:"time"`
	Temperature              []*float64 `json:"temperature_2m"`
	WeatherCode              []int      `json:"weather_code"`
	PrecipitationProbability []*int     `json:"precipitation_probability"`
}

// Daily holds parallel daily arrays keyed by Time (ISO8601 date).
type Daily struct {
	Time             []string   `json:"time"`
	WeatherCode      []int      `json:"weather_code"`
	TemperatureMax   []*float64 `json:"temperature_2m_max"`
	TemperatureMin   []*float64 `json:"temperature_2m_min"`
	PrecipitationSum []*float64 `json:"precipitation_sum"`
	Sunrise          []string   `json:"sunrise"`
	Sunset           []string   `json:"sunset"`
}

// MaxDailyEntries caps the daily section.
const MaxDailyEntries = 7

// Validate checks the section invariants: parallel arrays share a length,
// the daily section has at most 7 entries and every weather code is WMO.
func (s *Snapshot) Validate() error {
	if !IsWMO(s.Current.WeatherCode) {
		return fmt.Errorf("current weather_code %d is not a WMO code", s.Current.WeatherCode)
	}

	h := s.Hourly
	n := len(h.Time)
	if len(h.Temperature) != n || len(h.WeatherCode) != n || len(h.PrecipitationProbability) != n {
		return fmt.Errorf("hourly arrays differ in length (time=%d)", n)
	}
	for _, c := range h.WeatherCode {
		if !IsWMO(c) {
			return fmt.Errorf("hourly weather_code %d is not a WMO code", c)
		}
	}

	d := s.Daily
	n = len(d.Time)
	if n > MaxDailyEntries {
		return fmt.Errorf("daily section has %d entries, max %d", n, MaxDailyEntries)
	}
	if len(d.WeatherCode) != n || len(d.TemperatureMax) != n || len(d.TemperatureMin) != n ||
		len(d.PrecipitationSum) != n || len(d.Sunrise) != n || len(d.Sunset) != n {
		return fmt.Errorf("daily arrays differ in length (time=%d)", n)
	}
	for _, c := range d.WeatherCode {
		if !IsWMO(c) {
			return fmt.Errorf("daily weather_code %d is not a WMO code", c)
		}
	}

	return nil
}

// Imperial returns a copy converted to Fahrenheit, mph and inches.
// Snapshots already in imperial units are returned unchanged.
func (s *Snapshot) Imperial() *Snapshot {
	if s.Units == UnitsImperial {
		return s
	}

	out := *s
	out.Units = UnitsImperial

	out.Current.Temperature = mapFloat(s.Current.Temperature, celsiusToFahrenheit)
	out.Current.ApparentTemperature = mapFloat(s.Current.ApparentTemperature, celsiusToFahrenheit)
	out.Current.WindSpeed = mapFloat(s.Current.WindSpeed, msToMph)

	out.Hourly.Temperature = mapFloats(s.Hourly.Temperature, celsiusToFahrenheit)
	out.Daily.TemperatureMax = mapFloats(s.Daily.TemperatureMax, celsiusToFahrenheit)
	out.Daily.TemperatureMin = mapFloats(s.Daily.TemperatureMin, celsiusToFahrenheit)
	out.Daily.PrecipitationSum = mapFloats(s.Daily.PrecipitationSum, mmToInch)

	return &out
}

func celsiusToFahrenheit(c float64) float64 { return c*9/5 + 32 }
func msToMph(v float64) float64             { return v * 2.236936 }
func mmToInch(v float64) float64            { return v / 25.4 }

func mapFloat(v *float64, fn func(float64) float64) *float64 {
	if v == nil {
		return nil
	}
	r := fn(*v)
	return &r
}

func mapFloats(vs []*float64, fn func(float64) float64) []*float64 {
	if vs == nil {
		return nil
	}
	out := make([]*float64, len(vs))
	for i, v := range vs {
		out[i] = mapFloat(v, fn)
	}
	return out
}
