package models

// Location is a point on a route. Geohash is set on ride request endpoints
// and left empty on computed meeting points.
type Location struct {
	Latitude  float64 `json:"latitude" bson:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude" validate:"longitude"`
	Address   string  `json:"address" bson:"address"`
	Geohash   string  `json:"geohash,omitempty" bson:"geohash,omitempty"`
}

func (l Location) IsZero() bool {
	return l.Latitude == 0 && l.Longitude == 0
}
