package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReverseGeocoder resolves a coordinate to a human-readable address.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// Geocoder resolves an address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lng float64, err error)
}

// Locker serialises writers on a key across processes.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// Notifier delivers best-effort messages to users. Notify must not block on
// delivery and never reports failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, userIDs []primitive.ObjectID, notification Notification)
}

type Notification struct {
	Type  string
	Title string
	Body  string
	Data  map[string]string
}
