package repository

import (
	"context"
	"time"

	"cryptopulse/internal/models"

	"gorm.io/gorm"
)

type DeliveryLogRepository struct {
	db *gorm.DB
}

func NewDeliveryLogRepository(db *gorm.DB) *DeliveryLogRepository {
	return &DeliveryLogRepository{db: db}
}

// WithContext scopes every query of the returned repository to ctx.
func (r *DeliveryLogRepository) WithContext(ctx context.Context) *DeliveryLogRepository {
	return &DeliveryLogRepository{db: r.db.WithContext(ctx)}
}

// Append inserts one entry. Dispatches call it on a transaction-scoped
// repository inside RuleRepository.FinishDispatch.
func (r *DeliveryLogRepository) Append(entry *models.DeliveryLog) error {
	return r.db.Create(entry).Error
}

// ExistsByKey reports whether a dispatch key was already logged.
func (r *DeliveryLogRepository) ExistsByKey(key string) (bool, error) {
	var n int64
	err := r.db.Model(&models.DeliveryLog{}).Where("dispatch_key = ?", key).Count(&n).Error
	return n > 0, err
}

// ListByUser returns the newest entries first.
func (r *DeliveryLogRepository) ListByUser(userID uint, limit, offset int) ([]models.DeliveryLog, int64, error) {
	var total int64
	if err := r.db.Model(&models.DeliveryLog{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.DeliveryLog
	q := r.db.Where("user_id = ?", userID).Order("notified_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	err := q.Find(&list).Error
	return list, total, err
}

// CoinCount is one row of the per-coin breakdown.
type CoinCount struct {
	CoinID     uint   `json:"coin_id"`
	CoinName   string `json:"coin_name"`
	CoinSymbol string `json:"coin_symbol"`
	Count      int64  `json:"count"`
}

type LogStats struct {
	Total    int64       `json:"total_logs"`
	Recent   int64       `json:"recent_logs_7_days"`
	TopCoins []CoinCount `json:"logs_by_coin"`
}

// Stats counts a user's entries overall, since `since`, and for the five most
// notified coins.
func (r *DeliveryLogRepository) Stats(userID uint, since time.Time) (*LogStats, error) {
	var s LogStats
	base := r.db.Model(&models.DeliveryLog{}).Where("user_id = ?", userID)
	if err := base.Session(&gorm.Session{}).Count(&s.Total).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Where("notified_at >= ?", since.UTC()).Count(&s.Recent).Error; err != nil {
		return nil, err
	}
	err := base.Session(&gorm.Session{}).
		Select("coin_id, MAX(coin_name) AS coin_name, MAX(coin_symbol) AS coin_symbol, COUNT(*) AS count").
		Group("coin_id").
		Order("count DESC").Order("coin_id ASC").
		Limit(5).
		Scan(&s.TopCoins).Error
	if err != nil {
		return nil, err
	}
	if s.TopCoins == nil {
		s.TopCoins = []CoinCount{}
	}
	return &s, nil
}

// Delete removes an entry owned by userID.
func (r *DeliveryLogRepository) Delete(userID, id uint) (bool, error) {
	res := r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.DeliveryLog{})
	return res.RowsAffected > 0, res.Error
}
