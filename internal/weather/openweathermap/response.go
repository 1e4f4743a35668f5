package openweathermap

import (
	"errors"
	"math"
	"time"

	"github.com/skyglance/skyglance/internal/weather"
)

// Snapshot section caps.
const (
	maxHourly = 24
	maxDaily  = weather.MaxDailyEntries
)

const (
	timeLayout = "2006-01-02T15:04"
	dateLayout = "2006-01-02"
)

// OpenWeatherMap API response structures.

type condition struct {
	ID int `json:"id"`
}

type oneCallResponse struct {
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	Timezone       string  `json:"timezone"`
	TimezoneOffset int     `json:"timezone_offset"`
	Current        *struct {
		Dt        int64       `json:"dt"`
		Temp      *float64    `json:"temp"`
		FeelsLike *float64    `json:"feels_like"`
		Humidity  *float64    `json:"humidity"`
		UVI       *float64    `json:"uvi"`
		WindSpeed *float64    `json:"wind_speed"`
		WindDeg   *float64    `json:"wind_deg"`
		Weather   []condition `json:"weather"`
	} `json:"current"`
	Hourly []struct {
		Dt      int64       `json:"dt"`
		Temp    *float64    `json:"temp"`
		Pop     *float64    `json:"pop"` // Probability of precipitation (0-1)
		Weather []condition `json:"weather"`
	} `json:"hourly"`
	Daily []struct {
		Dt      int64 `json:"dt"`
		Sunrise int64 `json:"sunrise"`
		Sunset  int64 `json:"sunset"`
		Temp    struct {
			Min *float64 `json:"min"`
			Max *float64 `json:"max"`
		} `json:"temp"`
		Rain    *float64    `json:"rain"`
		Snow    *float64    `json:"snow"`
		Weather []condition `json:"weather"`
	} `json:"daily"`
}

type geoResult struct {
	Name       string            `json:"name"`
	LocalNames map[string]string `json:"local_names"`
	Lat        float64           `json:"lat"`
	Lon        float64           `json:"lon"`
	Country    string            `json:"country"`
	State      string            `json:"state"`
}

func (g geoResult) localName(lang string) string {
	if n := g.LocalNames[lang]; n != "" {
		return n
	}
	return g.Name
}

var errMissingCurrent = errors.New("response has no current section")

// parseOneCall converts a One Call response into the canonical snapshot:
// condition ids become WMO codes, pop becomes a percentage, hourly is capped
// at 24 entries and daily at 7.
func parseOneCall(resp *oneCallResponse) (*weather.Snapshot, error) {
	if resp.Current == nil {
		return nil, errMissingCurrent
	}

	zone := time.FixedZone(resp.Timezone, resp.TimezoneOffset)
	format := func(unix int64, layout string) string {
		return time.Unix(unix, 0).In(zone).Format(layout)
	}

	cur := resp.Current
	snap := &weather.Snapshot{
		Latitude:  resp.Lat,
		Longitude: resp.Lon,
		Timezone:  resp.Timezone,
		Provider:  ProviderName,
		Units:     weather.UnitsMetric,
		Current: weather.Current{
			Time:                format(cur.Dt, timeLayout),
			Temperature:         cur.Temp,
			ApparentTemperature: cur.FeelsLike,
			RelativeHumidity:    roundInt(cur.Humidity),
			WeatherCode:         wmoCode(cur.Weather),
			WindSpeed:           cur.WindSpeed,
			WindDirection:       roundInt(cur.WindDeg),
			UVIndex:             cur.UVI,
		},
		FetchedAt: time.Now().UTC(),
	}

	hourly := resp.Hourly
	if len(hourly) > maxHourly {
		hourly = hourly[:maxHourly]
	}
	h := weather.Hourly{
		Time:                     make([]string, 0, len(hourly)),
		Temperature:              make([]*float64, 0, len(hourly)),
		WeatherCode:              make([]int, 0, len(hourly)),
		PrecipitationProbability: make([]*int, 0, len(hourly)),
	}
	for _, hr := range hourly {
		h.Time = append(h.Time, format(hr.Dt, timeLayout))
		h.Temperature = append(h.Temperature, hr.Temp)
		h.WeatherCode = append(h.WeatherCode, wmoCode(hr.Weather))
		h.PrecipitationProbability = append(h.PrecipitationProbability, percent(hr.Pop))
	}
	snap.Hourly = h

	daily := resp.Daily
	if len(daily) > maxDaily {
		daily = daily[:maxDaily]
	}
	d := weather.Daily{
		Time:             make([]string, 0, len(daily)),
		WeatherCode:      make([]int, 0, len(daily)),
		TemperatureMax:   make([]*float64, 0, len(daily)),
		TemperatureMin:   make([]*float64, 0, len(daily)),
		PrecipitationSum: make([]*float64, 0, len(daily)),
		Sunrise:          make([]string, 0, len(daily)),
		Sunset:           make([]string, 0, len(daily)),
	}
	for _, day := range daily {
		d.Time = append(d.Time, format(day.Dt, dateLayout))
		d.WeatherCode = append(d.WeatherCode, wmoCode(day.Weather))
		d.TemperatureMax = append(d.TemperatureMax, day.Temp.Max)
		d.TemperatureMin = append(d.TemperatureMin, day.Temp.Min)
		d.PrecipitationSum = append(d.PrecipitationSum, precipitation(day.Rain, day.Snow))
		d.Sunrise = append(d.Sunrise, format(day.Sunrise, timeLayout))
		d.Sunset = append(d.Sunset, format(day.Sunset, timeLayout))
	}
	snap.Daily = d

	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

func wmoCode(conditions []condition) int {
	if len(conditions) == 0 {
		return weather.CodeOvercast
	}
	return weather.FromOpenWeatherMap(conditions[0].ID)
}

// precipitation sums rain and snow in mm. OpenWeatherMap omits both fields on
// dry days, so two missing values mean zero.
func precipitation(rain, snow *float64) *float64 {
	total := 0.0
	if rain != nil {
		total += *rain
	}
	if snow != nil {
		total += *snow
	}
	return &total
}

func percent(pop *float64) *int {
	if pop == nil {
		return nil
	}
	p := int(math.Round(*pop * 100))
	return &p
}

func roundInt(v *float64) *int {
	if v == nil {
		return nil
	}
	r := int(math.Round(*v))
	return &r
}
