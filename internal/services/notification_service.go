package services

import (
	"context"
	"time"

	"campusride/internal/models"
	"campusride/internal/repositories/interfaces"
	"campusride/pkg/logger"
	"campusride/pkg/push"
	"campusride/pkg/websocket"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

const defaultNotifyTimeout = 10 * time.Second

// RealtimeSender pushes an event to a user's open websocket connections.
type RealtimeSender interface {
	SendToUser(userID primitive.ObjectID, message websocket.Message)
}

type NotificationService interface {
	Notifier
	GetUserNotifications(ctx context.Context, userID primitive.ObjectID, limit int64) ([]*models.Notification, error)
}

type NotificationServiceDeps struct {
	Notifications interfaces.NotificationRepository
	Users         interfaces.UserRepository
	Realtime      RealtimeSender
	FCM           push.PushProvider // android and web tokens
	APNS          push.PushProvider // ios tokens
	Clock         Clock
	Logger        *logger.Logger
	Timeout       time.Duration
}

type notificationService struct {
	notificationRepo interfaces.NotificationRepository
	userRepo         interfaces.UserRepository
	realtime         RealtimeSender
	fcm              push.PushProvider
	apns             push.PushProvider
	clock            Clock
	logger           *logger.Logger
	timeout          time.Duration
}

func NewNotificationService(deps NotificationServiceDeps) NotificationService {
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Timeout <= 0 {
		deps.Timeout = defaultNotifyTimeout
	}
	return &notificationService{
		notificationRepo: deps.Notifications,
		userRepo:         deps.Users,
		realtime:         deps.Realtime,
		fcm:              deps.FCM,
		apns:             deps.APNS,
		clock:            deps.Clock,
		logger:           deps.Logger,
		timeout:          deps.Timeout,
	}
}

// Notify hands delivery to a background goroutine and returns at once. The
// caller's cancellation does not abort delivery; the service timeout does.
func (s *notificationService) Notify(ctx context.Context, userIDs []primitive.ObjectID, notification Notification) {
	if len(userIDs) == 0 {
		return
	}
	ids := make([]primitive.ObjectID, len(userIDs))
	copy(ids, userIDs)

	go func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		if err := s.dispatch(dctx, ids, notification); err != nil {
			s.logger.WithError(err).WithField("type", notification.Type).Warn("notification delivery incomplete")
		}
	}()
}

// dispatch writes the inbox entries, then fans out over websocket and push.
// Channel failures are independent; the first error is returned after all
// channels have been tried.
func (s *notificationService) dispatch(ctx context.Context, userIDs []primitive.ObjectID, n Notification) error {
	now := s.clock.Now()

	records := make([]*models.Notification, len(userIDs))
	for i, id := range userIDs {
		records[i] = &models.Notification{
			UserID:    id,
			Type:      models.NotificationType(n.Type),
			Status:    models.NotificationStatusUnread,
			Title:     n.Title,
			Message:   n.Body,
			Data:      n.Data,
			CreatedAt: now,
		}
	}

	var g errgroup.Group

	g.Go(func() error {
		return s.notificationRepo.CreateMany(ctx, records)
	})

	if s.realtime != nil {
		data := make(map[string]interface{}, len(n.Data)+2)
		for k, v := range n.Data {
			data[k] = v
		}
		data["title"] = n.Title
		data["body"] = n.Body
		for _, id := range userIDs {
			s.realtime.SendToUser(id, websocket.Message{
				Type:      n.Type,
				UserID:    id,
				Timestamp: now.Unix(),
				Data:      data,
			})
		}
	}

	if s.fcm != nil || s.apns != nil {
		g.Go(func() error {
			return s.sendPush(ctx, userIDs, n)
		})
	}

	return g.Wait()
}

func (s *notificationService) sendPush(ctx context.Context, userIDs []primitive.ObjectID, n Notification) error {
	users, err := s.userRepo.GetByIDs(ctx, userIDs)
	if err != nil {
		return err
	}

	var fcmReqs, apnsReqs []*push.NotificationRequest
	for _, id := range userIDs {
		user, ok := users[id]
		if !ok {
			continue
		}
		for _, t := range user.DeviceTokens {
			req := &push.NotificationRequest{
				Token:    t.Token,
				Title:    n.Title,
				Body:     n.Body,
				Data:     n.Data,
				Sound:    "default",
				Priority: push.PriorityHigh,
			}
			switch t.Platform {
			case models.DevicePlatformIOS:
				apnsReqs = append(apnsReqs, req)
			case models.DevicePlatformAndroid, models.DevicePlatformWeb:
				fcmReqs = append(fcmReqs, req)
			}
		}
	}

	var g errgroup.Group
	if s.fcm != nil && len(fcmReqs) > 0 {
		g.Go(func() error { return s.sendBatch(ctx, "fcm", s.fcm, fcmReqs) })
	}
	if s.apns != nil && len(apnsReqs) > 0 {
		g.Go(func() error { return s.sendBatch(ctx, "apns", s.apns, apnsReqs) })
	}
	return g.Wait()
}

func (s *notificationService) sendBatch(ctx context.Context, name string, provider push.PushProvider, reqs []*push.NotificationRequest) error {
	responses, err := provider.SendBulkNotifications(ctx, reqs)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range responses {
		if r != nil && !r.Success {
			failed++
		}
	}
	if failed > 0 {
		s.logger.WithFields(map[string]interface{}{
			"provider": name,
			"failed":   failed,
			"total":    len(reqs),
		}).Warn("some push notifications were rejected")
	}
	return nil
}

func (s *notificationService) GetUserNotifications(ctx context.Context, userID primitive.ObjectID, limit int64) ([]*models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	notifications, err := s.notificationRepo.GetByUser(ctx, userID, limit)
	if err != nil {
		return nil, storeError(err, "notifications")
	}
	return notifications, nil
}
