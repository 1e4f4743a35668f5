package cache

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Namespace groups keys that share a TTL. It is the key text before the first underscore.
type Namespace string

// Cache namespaces.
const (
	NamespaceWeather      Namespace = "weather"
	NamespaceLocation     Namespace = "location"
	NamespaceAutocomplete Namespace = "autocomplete"
	NamespaceReverse      Namespace = "revgeo"
	NamespaceRegion       Namespace = "region"
)

// TTLs per namespace.
const (
	WeatherTTL      = 30 * time.Minute
	LocationTTL     = 7 * 24 * time.Hour
	AutocompleteTTL = 30 * time.Minute
	ReverseTTL      = 7 * 24 * time.Hour
	RegionTTL       = 24 * time.Hour
)

// RegionKey is the key of the persisted region-detection decision.
const RegionKey = "region_status"

// TTL returns the namespace's time-to-live, or zero for unknown namespaces.
func (n Namespace) TTL() time.Duration {
	switch n {
	case NamespaceWeather:
		return WeatherTTL
	case NamespaceLocation:
		return LocationTTL
	case NamespaceAutocomplete:
		return AutocompleteTTL
	case NamespaceReverse:
		return ReverseTTL
	case NamespaceRegion:
		return RegionTTL
	default:
		return 0
	}
}

// NamespaceOf returns the namespace a key belongs to.
func NamespaceOf(key string) Namespace {
	ns, _, _ := strings.Cut(key, "_")
	return Namespace(ns)
}

// WeatherKey returns the forecast key for rounded coordinates and a unit system.
func WeatherKey(lat, lon float64, units string) string {
	return "weather_" + Coord(lat) + "_" + Coord(lon) + "_" + Normalize(units)
}

// LocationKey returns the forward-geocoding key for a place name.
func LocationKey(name, lang string) string {
	return "location_" + Normalize(name) + "_" + Normalize(lang)
}

// AutocompleteKey returns the autocomplete key for a partial query.
func AutocompleteKey(query, lang string) string {
	return "autocomplete_" + Normalize(query) + "_" + Normalize(lang)
}

// ReverseKey returns the reverse-geocoding key for rounded coordinates.
func ReverseKey(lat, lon float64, lang string) string {
	return "revgeo_" + Coord(lat) + "_" + Coord(lon) + "_" + Normalize(lang)
}

// Normalize trims, lowercases and collapses inner whitespace.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Coord formats a coordinate rounded to 4 decimal places (~11m).
func Coord(v float64) string {
	r := math.Round(v*1e4) / 1e4
	if r == 0 {
		r = 0 // drop the sign of -0
	}
	return strconv.FormatFloat(r, 'f', 4, 64)
}
