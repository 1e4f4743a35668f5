// Package featureflags provides feature flag management for runtime configuration.
package featureflags

import "time"

// Well-known feature flag keys.
const (
	// FlagForceRefresh makes every facade call skip the cache lookup.
	FlagForceRefresh = "force_refresh"

	// FlagDisableTertiaryGeocoder removes Nominatim from the geocoding chain.
	FlagDisableTertiaryGeocoder = "disable_tertiary_geocoder"

	// FlagDisableRegionDetection keeps the last known provider order and skips probing.
	FlagDisableRegionDetection = "disable_region_detection"

	// FlagOfflineMode reports the client offline so calls are served from cache only.
	FlagOfflineMode = "offline_mode"
)

// IsKnown reports whether key is one of the well-known flags.
func IsKnown(key string) bool {
	switch key {
	case FlagForceRefresh, FlagDisableTertiaryGeocoder, FlagDisableRegionDetection, FlagOfflineMode:
		return true
	default:
		return false
	}
}

// Flag represents a feature flag with its current value.
type Flag struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// FlagList represents a list of feature flags.
type FlagList struct {
	Items []Flag `json:"items"`
}

// FlagUpdate represents a single flag update request.
type FlagUpdate struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// FlagUpdateRequest represents a request to update feature flags.
type FlagUpdateRequest struct {
	Updates []FlagUpdate `json:"updates"`
	Reason  string       `json:"reason"`
}

// BoolValue returns the flag value as a boolean.
// Returns the default value if the flag is nil, not found, or not a boolean.
func (f *Flag) BoolValue(defaultValue bool) bool {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		// JSON unmarshals numbers as float64
		return v != 0
	default:
		return defaultValue
	}
}

// DefaultFlags returns the default feature flags for the application.
func DefaultFlags() map[string]*Flag {
	now := time.Now()
	flags := make(map[string]*Flag, 4)
	for _, key := range []string{
		FlagForceRefresh,
		FlagDisableTertiaryGeocoder,
		FlagDisableRegionDetection,
		FlagOfflineMode,
	} {
		flags[key] = &Flag{Key: key, Value: false, UpdatedAt: now}
	}
	return flags
}
