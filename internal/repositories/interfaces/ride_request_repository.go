package interfaces

import (
	"context"

	"campusride/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RideRequestRepository interface {
	Create(ctx context.Context, request *models.RideRequest) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.RideRequest, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.RideRequest, error)
	GetByUser(ctx context.Context, userID primitive.ObjectID, status *models.RideRequestStatus) ([]*models.RideRequest, error)

	// FindSearchingInGeohashRange returns searching requests whose origin
	// geohash lies in [start, end], excluding excludeID.
	FindSearchingInGeohashRange(ctx context.Context, start, end string, excludeID primitive.ObjectID) ([]*models.RideRequest, error)

	// UpdateIfStatus applies updates only while the request still has the
	// expected status. It reports whether the write happened.
	UpdateIfStatus(ctx context.Context, id primitive.ObjectID, expected models.RideRequestStatus, updates map[string]interface{}) (bool, error)
	DeleteIfStatus(ctx context.Context, id primitive.ObjectID, expected models.RideRequestStatus) (bool, error)

	// DetachFromMatch resets a matched request to searching and clears its
	// match pointers. When matchID is non-nil the request must still point
	// at that match.
	DetachFromMatch(ctx context.Context, id primitive.ObjectID, matchID *primitive.ObjectID) (bool, error)

	// UpdateStatusForMatch moves every request of matchID in status from to
	// status to, returning the number changed.
	UpdateStatusForMatch(ctx context.Context, matchID primitive.ObjectID, from, to models.RideRequestStatus) (int64, error)
}
