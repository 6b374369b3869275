package repository

import (
	"context"

	"cryptopulse/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CoinRepository struct {
	db *gorm.DB
}

func NewCoinRepository(db *gorm.DB) *CoinRepository {
	return &CoinRepository{db: db}
}

// WithContext scopes every query of the returned repository to ctx.
func (r *CoinRepository) WithContext(ctx context.Context) *CoinRepository {
	return &CoinRepository{db: r.db.WithContext(ctx)}
}

// List returns the catalog with cached prices, ordered by id.
func (r *CoinRepository) List() ([]models.Coin, error) {
	var list []models.Coin
	err := r.db.Preload("Price").Order("id ASC").Find(&list).Error
	return list, err
}

func (r *CoinRepository) GetByID(id uint) (*models.Coin, error) {
	var c models.Coin
	if err := r.db.Preload("Price").Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CoinRepository) Exists(id uint) (bool, error) {
	var n int64
	err := r.db.Model(&models.Coin{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// WithGeckoID returns the coins that have a price feed.
func (r *CoinRepository) WithGeckoID() ([]models.Coin, error) {
	var list []models.Coin
	err := r.db.Where("gecko_id <> ''").Order("id ASC").Find(&list).Error
	return list, err
}

func (r *CoinRepository) Create(c *models.Coin) error {
	return r.db.Create(c).Error
}

func (r *CoinRepository) Delete(id uint) error {
	return r.db.Where("id = ?", id).Delete(&models.Coin{}).Error
}

// UpsertPrice replaces the cached quote for p.CoinID.
func (r *CoinRepository) UpsertPrice(p *models.CoinPrice) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "coin_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"price", "change", "is_positive", "updated_at"}),
	}).Create(p).Error
}
