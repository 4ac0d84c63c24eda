package mongodb

import (
	"context"
	"fmt"
	"time"

	"campusride/internal/models"
	"campusride/internal/repositories/interfaces"
	"campusride/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type chatRepository struct {
	collection *mongo.Collection
	timeout    opTimeout
}

func NewChatRepository(db *mongo.Database, timeout time.Duration) interfaces.ChatRepository {
	return &chatRepository{
		collection: db.Collection(database.CollectionMessages),
		timeout:    opTimeout(timeout),
	}
}

func (r *chatRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	ctx, cancel := r.timeout.with(ctx)
	defer cancel()

	if message.ID.IsZero() {
		message.ID = primitive.NewObjectID()
	}

	if _, err := r.collection.InsertOne(ctx, message); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *chatRepository) GetByChatRoom(ctx context.Context, chatRoomID string, limit int64) ([]*models.Message, error) {
	ctx, cancel := r.timeout.with(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.collection.Find(ctx, bson.M{"chat_room_id": chatRoomID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	return messages, nil
}
