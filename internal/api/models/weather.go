package models

import "github.com/skyglance/skyglance/internal/weather"

// ReverseGeocodeResponse carries the display name for a point. Name is null
// when no provider knows the place.
type ReverseGeocodeResponse struct {
	Name *string `json:"name"`
}

// AutocompleteResponse lists suggestions for a partial query.
type AutocompleteResponse struct {
	Items []weather.Location `json:"items"`
}
