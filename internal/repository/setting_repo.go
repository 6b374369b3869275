package repository

import (
	"context"
	"errors"

	"cryptopulse/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

func (r *SettingRepository) WithContext(ctx context.Context) *SettingRepository {
	return &SettingRepository{db: r.db.WithContext(ctx)}
}

// Get returns the value for key, "" when unset.
func (r *SettingRepository) Get(key string) (string, error) {
	var s models.SystemSetting
	err := r.db.Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return s.Value, nil
}

func (r *SettingRepository) Set(key, value string) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.SystemSetting{Key: key, Value: value}).Error
}
