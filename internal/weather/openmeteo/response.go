package openmeteo

import (
	"errors"
	"math"
	"time"

	"github.com/skyglance/skyglance/internal/weather"
)

// Open-Meteo API response structures. Every measurement is a pointer so a
// missing or null value stays distinguishable from zero.

type forecastResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	Current   *struct {
		Time                string   `json:"time"`
		Temperature         *float64 `json:"temperature_2m"`
		ApparentTemperature *float64 `json:"apparent_temperature"`
		RelativeHumidity    *float64 `json:"relative_humidity_2m"`
		WeatherCode         *int     `json:"weather_code"`
		WindSpeed           *float64 `json:"wind_speed_10m"`
		WindDirection       *float64 `json:"wind_direction_10m"`
		UVIndex             *float64 `json:"uv_index"`
	} `json:"current"`
	Hourly struct {
		Time                     []string   `json:"time"`
		Temperature              []*float64 `json:"temperature_2m"`
		WeatherCode              []*int     `json:"weather_code"`
		PrecipitationProbability []*float64 `json:"precipitation_probability"`
	} `json:"hourly"`
	Daily struct {
		Time             []string   `json:"time"`
		WeatherCode      []*int     `json:"weather_code"`
		TemperatureMax   []*float64 `json:"temperature_2m_max"`
		TemperatureMin   []*float64 `json:"temperature_2m_min"`
		PrecipitationSum []*float64 `json:"precipitation_sum"`
		Sunrise          []string   `json:"sunrise"`
		Sunset           []string   `json:"sunset"`
	} `json:"daily"`
}

type searchResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Country   string  `json:"country"`
		Admin1    string  `json:"admin1"`
	} `json:"results"`
}

type reverseResponse struct {
	Features []struct {
		Properties struct {
			Name    string `json:"name"`
			City    string `json:"city"`
			Country string `json:"country"`
		} `json:"properties"`
	} `json:"features"`
}

var errMissingCurrent = errors.New("response has no current section")

// parseForecast converts a decoded forecast into a snapshot and checks its invariants.
func parseForecast(resp *forecastResponse) (*weather.Snapshot, error) {
	if resp.Current == nil {
		return nil, errMissingCurrent
	}

	cur := resp.Current
	snap := &weather.Snapshot{
		Latitude:  resp.Latitude,
		Longitude: resp.Longitude,
		Timezone:  resp.Timezone,
		Provider:  ProviderName,
		Units:     weather.UnitsMetric,
		Current: weather.Current{
			Time:                cur.Time,
			Temperature:         cur.Temperature,
			ApparentTemperature: cur.ApparentTemperature,
			RelativeHumidity:    roundInt(cur.RelativeHumidity),
			WeatherCode:         code(cur.WeatherCode),
			WindSpeed:           cur.WindSpeed,
			WindDirection:       roundInt(cur.WindDirection),
			UVIndex:             cur.UVIndex,
		},
		Hourly: weather.Hourly{
			Time:                     nonNil(resp.Hourly.Time),
			Temperature:              nonNil(resp.Hourly.Temperature),
			WeatherCode:              codes(resp.Hourly.WeatherCode),
			PrecipitationProbability: roundInts(resp.Hourly.PrecipitationProbability),
		},
		Daily: weather.Daily{
			Time:             nonNil(resp.Daily.Time),
			WeatherCode:      codes(resp.Daily.WeatherCode),
			TemperatureMax:   nonNil(resp.Daily.TemperatureMax),
			TemperatureMin:   nonNil(resp.Daily.TemperatureMin),
			PrecipitationSum: nonNil(resp.Daily.PrecipitationSum),
			Sunrise:          nonNil(resp.Daily.Sunrise),
			Sunset:           nonNil(resp.Daily.Sunset),
		},
		FetchedAt: time.Now().UTC(),
	}

	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

func code(c *int) int {
	if c == nil {
		return weather.CodeOvercast
	}
	return weather.NormalizeWMO(*c)
}

func codes(cs []*int) []int {
	out := make([]int, len(cs))
	for i, c := range cs {
		out[i] = code(c)
	}
	return out
}

func roundInt(v *float64) *int {
	if v == nil {
		return nil
	}
	r := int(math.Round(*v))
	return &r
}

func roundInts(vs []*float64) []*int {
	out := make([]*int, len(vs))
	for i, v := range vs {
		out[i] = roundInt(v)
	}
	return out
}

func nonNil[T any](vs []T) []T {
	if vs == nil {
		return []T{}
	}
	return vs
}
