package repository

import (
	"context"

	"cryptopulse/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FavoriteRepository struct {
	db *gorm.DB
}

func NewFavoriteRepository(db *gorm.DB) *FavoriteRepository {
	return &FavoriteRepository{db: db}
}

// WithContext scopes every query of the returned repository to ctx.
func (r *FavoriteRepository) WithContext(ctx context.Context) *FavoriteRepository {
	return &FavoriteRepository{db: r.db.WithContext(ctx)}
}

// Add stores the favorite and reports whether it was new.
func (r *FavoriteRepository) Add(userID, coinID uint) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Favorite{UserID: userID, CoinID: coinID})
	return res.RowsAffected > 0, res.Error
}

// Remove deletes the favorite and reports whether one existed.
func (r *FavoriteRepository) Remove(userID, coinID uint) (bool, error) {
	res := r.db.Where("user_id = ? AND coin_id = ?", userID, coinID).Delete(&models.Favorite{})
	return res.RowsAffected > 0, res.Error
}

func (r *FavoriteRepository) IsFavorite(userID, coinID uint) (bool, error) {
	var c int64
	err := r.db.Model(&models.Favorite{}).Where("user_id = ? AND coin_id = ?", userID, coinID).Count(&c).Error
	return c > 0, err
}

// ListByUser returns the user's favorites with coin and cached price, oldest first.
func (r *FavoriteRepository) ListByUser(userID uint) ([]models.Favorite, error) {
	var list []models.Favorite
	err := r.db.Where("user_id = ?", userID).
		Preload("Coin").Preload("Coin.Price").
		Order("created_at ASC").Order("id ASC").
		Find(&list).Error
	return list, err
}
