package repository

import (
	"context"
	"errors"

	"cryptopulse/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PushTokenRepository struct {
	db *gorm.DB
}

func NewPushTokenRepository(db *gorm.DB) *PushTokenRepository {
	return &PushTokenRepository{db: db}
}

// WithContext scopes every query of the returned repository to ctx.
func (r *PushTokenRepository) WithContext(ctx context.Context) *PushTokenRepository {
	return &PushTokenRepository{db: r.db.WithContext(ctx)}
}

// Get returns the user's token, or "" when none is registered.
func (r *PushTokenRepository) Get(userID uint) (string, error) {
	var t models.PushToken
	err := r.db.Where("user_id = ?", userID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return t.Token, nil
}

func (r *PushTokenRepository) Set(userID uint, token string) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "updated_at"}),
	}).Create(&models.PushToken{UserID: userID, Token: token}).Error
}

func (r *PushTokenRepository) Delete(userID uint) error {
	return r.db.Where("user_id = ?", userID).Delete(&models.PushToken{}).Error
}
