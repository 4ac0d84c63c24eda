package interfaces

import (
	"context"

	"campusride/internal/models"
)

type ChatRepository interface {
	CreateMessage(ctx context.Context, message *models.Message) error
	GetByChatRoom(ctx context.Context, chatRoomID string, limit int64) ([]*models.Message, error)
}
