package interfaces

import (
	"context"
	"time"

	"campusride/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MatchRepository interface {
	Create(ctx context.Context, match *models.RideMatch) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.RideMatch, error)

	// UpdateIfVersion applies updates only when the stored version equals
	// version, incrementing it. It reports whether the write happened.
	UpdateIfVersion(ctx context.Context, id primitive.ObjectID, version int64, updates map[string]interface{}) (bool, error)

	FindActiveByRequestIDs(ctx context.Context, requestIDs []primitive.ObjectID) ([]*models.RideMatch, error)
	FindPendingDepartedBefore(ctx context.Context, before time.Time, limit int64) ([]*models.RideMatch, error)
	FindPendingCreatedBefore(ctx context.Context, before time.Time, limit int64) ([]*models.RideMatch, error)
	GetByParticipant(ctx context.Context, userID primitive.ObjectID, status *models.MatchStatus) ([]*models.RideMatch, error)
}
