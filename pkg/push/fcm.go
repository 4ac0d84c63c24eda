package push

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMProvider delivers to Android and web device tokens.
type FCMProvider struct {
	client *messaging.Client
}

func NewFCMProvider(ctx context.Context, credentialsFile string) (*FCMProvider, error) {
	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	return &FCMProvider{
		client: client,
	}, nil
}

func (f *FCMProvider) SendNotification(ctx context.Context, request *NotificationRequest) (*NotificationResponse, error) {
	response, err := f.client.Send(ctx, buildFCMMessage(request))
	if err != nil {
		return &NotificationResponse{
			Success: false,
			Error:   err.Error(),
			Token:   request.Token,
		}, err
	}

	return &NotificationResponse{
		MessageID: response,
		Success:   true,
		Token:     request.Token,
	}, nil
}

func (f *FCMProvider) SendBulkNotifications(ctx context.Context, requests []*NotificationRequest) ([]*NotificationResponse, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	messages := make([]*messaging.Message, len(requests))
	for i, req := range requests {
		messages[i] = buildFCMMessage(req)
	}

	batchResponse, err := f.client.SendEach(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to send bulk notifications: %w", err)
	}

	responses := make([]*NotificationResponse, len(requests))
	for i, response := range batchResponse.Responses {
		if response.Success {
			responses[i] = &NotificationResponse{
				MessageID: response.MessageID,
				Success:   true,
				Token:     requests[i].Token,
			}
			continue
		}
		responses[i] = &NotificationResponse{
			Success: false,
			Error:   response.Error.Error(),
			Token:   requests[i].Token,
		}
	}

	return responses, nil
}

func buildFCMMessage(request *NotificationRequest) *messaging.Message {
	message := &messaging.Message{
		Token: request.Token,
		Data:  request.Data,
		Notification: &messaging.Notification{
			Title: request.Title,
			Body:  request.Body,
		},
	}

	android := &messaging.AndroidConfig{
		Priority:    PriorityNormal,
		CollapseKey: request.CollapseKey,
		Notification: &messaging.AndroidNotification{
			Sound:     request.Sound,
			ChannelID: request.ChannelID,
		},
	}
	if request.Priority == PriorityHigh {
		android.Priority = PriorityHigh
	}
	if request.TTL > 0 {
		ttl := time.Duration(request.TTL) * time.Second
		android.TTL = &ttl
	}
	message.Android = android

	return message
}
