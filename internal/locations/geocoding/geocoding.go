// Package geocoding resolves free text places to coordinates through
// interchangeable public services.
package geocoding

import (
	"context"
	"errors"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
)

// ErrNotFound is not fatal: the mention is kept without coordinates.
var ErrNotFound = errors.New("location not found")

type Result struct {
	Point   findingModel.Point
	Address string
}

type Geocoder interface {
	Name() string
	// MinInterval is the service's published spacing between calls.
	MinInterval() time.Duration
	Geocode(ctx context.Context, query string) (Result, error)
}

// New picks the adapter named in settings. The google variant needs a key.
func New(name string, apiKey string) (Geocoder, error) {
	switch name {
	case "", config.GeocodingProviderFree:
		return NewNominatim(config.NominatimURL, config.NominatimUserAgent), nil
	case config.GeocodingProviderGoogle:
		if apiKey == "" {
			return nil, errors.New("google geocoding needs GOOGLE_MAPS_API_KEY")
		}
		return NewGoogle(config.GoogleGeocodeURL, apiKey), nil
	}
	return nil, errors.New("unknown geocoder " + name)
}
