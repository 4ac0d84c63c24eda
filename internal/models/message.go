package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeSystem MessageType = "system"
)

// Message is a chat entry in a match's room. System messages have no sender.
type Message struct {
	ID         primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	ChatRoomID string              `json:"chat_room_id" bson:"chat_room_id"`
	SenderID   *primitive.ObjectID `json:"sender_id,omitempty" bson:"sender_id,omitempty"`
	Type       MessageType         `json:"type" bson:"type"`
	Content    string              `json:"content" bson:"content"`
	CreatedAt  time.Time           `json:"created_at" bson:"created_at"`
}
