package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campusride/internal/utils"
	"campusride/pkg/logger"
	"campusride/pkg/maps"
)

var errNoGeocodeResults = errors.New("no geocoding results")

// MapsGeocoder adapts a maps provider (Google or Mapbox) to the Geocoder and
// ReverseGeocoder interfaces.
type MapsGeocoder struct {
	provider maps.MapsProvider
}

func NewMapsGeocoder(provider maps.MapsProvider) *MapsGeocoder {
	return &MapsGeocoder{provider: provider}
}

func (g *MapsGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	resp, err := g.provider.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		return "", err
	}
	address := resp.FirstAddress()
	if address == "" {
		return "", errNoGeocodeResults
	}
	return address, nil
}

func (g *MapsGeocoder) Geocode(ctx context.Context, address string) (float64, float64, error) {
	resp, err := g.provider.Geocode(ctx, address)
	if err != nil {
		return 0, 0, err
	}
	if len(resp.Results) == 0 {
		return 0, 0, errNoGeocodeResults
	}
	loc := resp.Results[0].Coordinates
	return loc.Latitude, loc.Longitude, nil
}

// addressResolver turns coordinates into display addresses. Failures fall
// back to a formatted coordinate string and are only logged.
type addressResolver struct {
	geocoder ReverseGeocoder
	timeout  time.Duration
	logger   *logger.Logger
}

func (r addressResolver) resolve(ctx context.Context, p utils.Point) string {
	fallback := utils.FormatCoordinates(p.Lat, p.Lng)
	if r.geocoder == nil {
		return fallback
	}

	timeout := r.timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	address, err := r.geocoder.ReverseGeocode(ctx, p.Lat, p.Lng)
	if err != nil || address == "" {
		r.logger.WithError(err).WithField("point", p.String()).Warn("reverse geocoding failed, using coordinates")
		return fallback
	}
	return address
}

// resolvePair resolves two points concurrently.
func (r addressResolver) resolvePair(ctx context.Context, a, b utils.Point) (string, string) {
	var addrB string
	done := make(chan struct{})
	go func() {
		defer close(done)
		addrB = r.resolve(ctx, b)
	}()
	addrA := r.resolve(ctx, a)
	<-done
	return addrA, addrB
}

// forwardGeocode is used when a rider supplies only an address.
func forwardGeocode(ctx context.Context, geocoder Geocoder, address string, timeout time.Duration) (float64, float64, error) {
	if geocoder == nil {
		return 0, 0, fmt.Errorf("no geocoder configured")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lat, lng, err := geocoder.Geocode(ctx, address)
	if err != nil {
		return 0, 0, err
	}
	if !utils.IsValidCoordinates(lat, lng) {
		return 0, 0, fmt.Errorf("geocoder returned invalid coordinates %f,%f", lat, lng)
	}
	return lat, lng, nil
}
