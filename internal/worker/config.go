// Package worker keeps favourite locations warm in the weather cache.
package worker

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/skyglance/skyglance/internal/weather"
)

// Favourite is a saved location refreshed in the background.
type Favourite struct {
	// Name is the human-readable name of the location.
	Name string

	Lat float64
	Lon float64
}

// RefreshConfig holds configuration for the favourites refresh job.
type RefreshConfig struct {
	// Favourites are the locations to refresh.
	Favourites []Favourite

	// Concurrency is the number of concurrent refreshes.
	// Default: 3
	Concurrency int

	// Timeout bounds each location's refresh.
	// Default: 30 seconds
	Timeout time.Duration

	// Units selects the cached unit system.
	// Default: metric
	Units string

	// Language is used for reverse geocoding names.
	// Default: en
	Language string

	// RefreshNames also refreshes the reverse-geocoded name of each favourite.
	RefreshNames bool
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Concurrency: 3,
		Timeout:     30 * time.Second,
		Units:       weather.UnitsMetric,
		Language:    "en",
	}
}

func (c RefreshConfig) withDefaults() RefreshConfig {
	d := DefaultRefreshConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Units == "" {
		c.Units = d.Units
	}
	if c.Language == "" {
		c.Language = d.Language
	}
	return c
}

// ParseFavourites parses "Name:lat,lon" entries separated by semicolons,
// e.g. "Tehran:35.6892,51.3890;Erbil:36.19,44.01". The name is optional.
func ParseFavourites(s string) ([]Favourite, error) {
	var favourites []Favourite
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, coords, found := strings.Cut(entry, ":")
		if !found {
			name, coords = "", entry
		}

		latStr, lonStr, ok := strings.Cut(coords, ",")
		if !ok {
			return nil, fmt.Errorf("favourite %q: expected lat,lon", entry)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
		if err != nil || lat < -90 || lat > 90 {
			return nil, fmt.Errorf("favourite %q: invalid latitude", entry)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
		if err != nil || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("favourite %q: invalid longitude", entry)
		}

		favourites = append(favourites, Favourite{Name: strings.TrimSpace(name), Lat: lat, Lon: lon})
	}
	return favourites, nil
}
