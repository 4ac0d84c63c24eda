package maps

import "context"

// MapsProvider covers the address <-> coordinate lookups the matching engine
// needs. Routing and place search are not used.
type MapsProvider interface {
	Geocode(ctx context.Context, address string) (*GeocodeResponse, error)
	ReverseGeocode(ctx context.Context, lat, lng float64) (*GeocodeResponse, error)
}

type GeocodeResponse struct {
	Results []GeocodeResult `json:"results"`
}

type GeocodeResult struct {
	PlaceID     string   `json:"place_id"`
	Address     string   `json:"formatted_address"`
	Coordinates Location `json:"geometry"`
	Types       []string `json:"types"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// FirstAddress returns the formatted address of the best result, or "".
func (r *GeocodeResponse) FirstAddress() string {
	if r == nil {
		return ""
	}
	for _, result := range r.Results {
		if result.Address != "" {
			return result.Address
		}
	}
	return ""
}
