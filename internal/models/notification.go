package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationType string
type NotificationStatus string

const (
	NotificationTypeMatchFound     NotificationType = "match_found"
	NotificationTypeMatchConfirmed NotificationType = "match_confirmed"
	NotificationTypeMatchUpdated   NotificationType = "match_updated"
	NotificationTypeMatchCancelled NotificationType = "match_cancelled"
	NotificationTypeRideStarted    NotificationType = "ride_started"
	NotificationTypeRideCompleted  NotificationType = "ride_completed"

	NotificationStatusUnread NotificationStatus = "unread"
	NotificationStatusRead   NotificationStatus = "read"
)

type Notification struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID    primitive.ObjectID `json:"user_id" bson:"user_id"`
	Type      NotificationType   `json:"type" bson:"type"`
	Status    NotificationStatus `json:"status" bson:"status"`
	Title     string             `json:"title" bson:"title"`
	Message   string             `json:"message" bson:"message"`
	Data      map[string]string  `json:"data" bson:"data"`
	ReadAt    *time.Time         `json:"read_at,omitempty" bson:"read_at,omitempty"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}
