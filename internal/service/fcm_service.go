package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMService sends push notifications via Firebase Cloud Messaging.
type FCMService struct {
	client *messaging.Client
}

// NewFCMService creates an FCM service. Returns nil, nil if Firebase is not configured.
func NewFCMService(ctx context.Context, serviceAccountPath string) (*FCMService, error) {
	if serviceAccountPath == "" {
		return nil, nil
	}
	opt := option.WithCredentialsFile(serviceAccountPath)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging client: %w", err)
	}
	return &FCMService{client: client}, nil
}

// Send sends a push notification to the given FCM token.
func (s *FCMService) Send(ctx context.Context, token string, title, body string, data map[string]string) error {
	if s == nil || token == "" {
		return nil
	}
	if _, err := s.client.Send(ctx, fcmMessage(token, title, body, data)); err != nil {
		if messaging.IsUnregistered(err) {
			return fmt.Errorf("%w: %v", errTokenUnregistered, err)
		}
		return err
	}
	return nil
}

// priceUpdateTTL drops undelivered price updates; a stale quote is worse than none.
const priceUpdateTTL = time.Hour

// fcmMessage builds the push. Updates for the same coin share a collapse key so
// the device shows only the newest one.
func fcmMessage(token, title, body string, data map[string]string) *messaging.Message {
	ttl := priceUpdateTTL
	collapse := "price-update"
	if sym := data["coin_symbol"]; sym != "" {
		collapse += "-" + strings.ToLower(sym)
	}
	return &messaging.Message{
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data:  data,
		Token: token,
		Android: &messaging.AndroidConfig{
			Priority:    "high",
			CollapseKey: collapse,
			TTL:         &ttl,
			Notification: &messaging.AndroidNotification{
				Sound:     "default",
				Tag:       collapse,
				ChannelID: "price_updates",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-collapse-id": collapse,
				"apns-expiration":  strconv.FormatInt(time.Now().Add(ttl).Unix(), 10),
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
					Badge: intPtr(1),
				},
			},
		},
	}
}

func intPtr(i int) *int { return &i }
