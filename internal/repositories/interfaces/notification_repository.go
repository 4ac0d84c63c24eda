package interfaces

import (
	"context"

	"campusride/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationRepository interface {
	CreateMany(ctx context.Context, notifications []*models.Notification) error
	GetByUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]*models.Notification, error)
}
