package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"cryptopulse/internal/repository"
	"cryptopulse/pkg/expo"
)

// errTokenUnregistered marks a provider answer that the device token is dead.
var errTokenUnregistered = errors.New("push token no longer registered")

// PushMessage is one notification for one device.
type PushMessage struct {
	UserID uint
	Token  string
	Title  string
	Body   string
	Data   map[string]string
}

// ExpoSender delivers through the Expo push service.
type ExpoSender interface {
	Send(ctx context.Context, msg expo.Message) (string, error)
}

// FCMSender delivers through Firebase Cloud Messaging.
type FCMSender interface {
	Send(ctx context.Context, token string, title, body string, data map[string]string) error
}

// PushService routes messages to Expo or FCM by token shape and paces sends.
type PushService struct {
	tokens  *repository.PushTokenRepository
	expo    ExpoSender
	fcm     FCMSender
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewPushService builds the router. fcm may be nil when Firebase is not
// configured; ratePerSec <= 0 disables pacing.
func NewPushService(tokens *repository.PushTokenRepository, expoSender ExpoSender, fcm FCMSender, ratePerSec int, log zerolog.Logger) *PushService {
	s := &PushService{
		tokens: tokens,
		expo:   expoSender,
		fcm:    fcm,
		log:    log.With().Str("component", "push").Logger(),
	}
	if ratePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return s
}

// TokenFor returns the user's device token, "" when none is registered.
func (s *PushService) TokenFor(ctx context.Context, userID uint) (string, error) {
	tok, err := s.tokens.WithContext(ctx).Get(userID)
	if err != nil {
		return "", storageErr("load push token", err)
	}
	return tok, nil
}

// RegisterToken stores the device token handed over by the app.
func (s *PushService) RegisterToken(ctx context.Context, userID uint, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return s.ForgetToken(ctx, userID)
	}
	if err := s.tokens.WithContext(ctx).Set(userID, token); err != nil {
		return storageErr("store push token", err)
	}
	return nil
}

func (s *PushService) ForgetToken(ctx context.Context, userID uint) error {
	if err := s.tokens.WithContext(ctx).Delete(userID); err != nil {
		return storageErr("delete push token", err)
	}
	return nil
}

// Send delivers msg. An empty token is a successful no-op. Provider failures
// are ErrDeliveryFailed; a token the provider reports as dead is forgotten.
func (s *PushService) Send(ctx context.Context, msg PushMessage) error {
	if msg.Token == "" {
		return nil
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		}
	}

	var err error
	switch {
	case expo.IsExpoToken(msg.Token):
		if s.expo == nil {
			return fmt.Errorf("%w: expo delivery not configured", ErrDeliveryFailed)
		}
		_, err = s.expo.Send(ctx, expo.Message{
			To:    msg.Token,
			Title: msg.Title,
			Body:  msg.Body,
			Data:  msg.Data,
			Badge: 1,
		})
		if errors.Is(err, expo.ErrDeviceNotRegistered) {
			err = fmt.Errorf("%w: %v", errTokenUnregistered, err)
		}
	default:
		if s.fcm == nil {
			return fmt.Errorf("%w: fcm delivery not configured", ErrDeliveryFailed)
		}
		err = s.fcm.Send(ctx, msg.Token, msg.Title, msg.Body, msg.Data)
	}
	if err == nil {
		return nil
	}

	if errors.Is(err, errTokenUnregistered) && msg.UserID != 0 {
		if ferr := s.ForgetToken(ctx, msg.UserID); ferr != nil {
			s.log.Warn().Err(ferr).Uint("user_id", msg.UserID).Msg("drop dead push token")
		} else {
			s.log.Info().Uint("user_id", msg.UserID).Msg("dropped unregistered push token")
		}
	}
	return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
}
