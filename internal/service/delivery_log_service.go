package service

import (
	"context"
	"time"

	"cryptopulse/internal/models"
	"cryptopulse/internal/repository"
)

const (
	DefaultLogLimit = 50
	MaxLogLimit     = 200
)

type DeliveryLogService struct {
	logs *repository.DeliveryLogRepository
	now  func() time.Time
}

func NewDeliveryLogService(logs *repository.DeliveryLogRepository) *DeliveryLogService {
	return &DeliveryLogService{logs: logs, now: Now}
}

func (s *DeliveryLogService) SetClock(now func() time.Time) { s.now = now }

// ListByUser pages through the user's history, newest first.
func (s *DeliveryLogService) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.DeliveryLog, int64, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}
	if offset < 0 {
		offset = 0
	}
	list, total, err := s.logs.WithContext(ctx).ListByUser(userID, limit, offset)
	if err != nil {
		return nil, 0, storageErr("list delivery log", err)
	}
	return list, total, nil
}

// Stats summarizes the user's history; "recent" is the last seven days.
func (s *DeliveryLogService) Stats(ctx context.Context, userID uint) (*repository.LogStats, error) {
	st, err := s.logs.WithContext(ctx).Stats(userID, s.now().AddDate(0, 0, -7))
	if err != nil {
		return nil, storageErr("delivery log stats", err)
	}
	return st, nil
}

// Delete removes one of the user's entries.
func (s *DeliveryLogService) Delete(ctx context.Context, userID, id uint) error {
	ok, err := s.logs.WithContext(ctx).Delete(userID, id)
	if err != nil {
		return storageErr("delete delivery log", err)
	}
	if !ok {
		return ErrLogNotFound
	}
	return nil
}
