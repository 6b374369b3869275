package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Coin struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Name    string `gorm:"size:100;not null" json:"name"`
	Symbol  string `gorm:"size:20;not null;uniqueIndex" json:"symbol"`
	Color   string `gorm:"size:20;not null" json:"color"`
	GeckoID string `gorm:"size:64" json:"-"` // CoinGecko id, empty when the coin has no price feed

	Price *CoinPrice `gorm:"foreignKey:CoinID" json:"price,omitempty"`
}

func (Coin) TableName() string {
	return "coins"
}

// CoinPrice is the latest cached quote for a coin.
type CoinPrice struct {
	CoinID     uint                `gorm:"primaryKey;autoIncrement:false" json:"coin_id"`
	Price      decimal.Decimal     `gorm:"type:decimal(30,10);not null" json:"price"`
	Change     decimal.NullDecimal `gorm:"type:decimal(20,10)" json:"change"`
	IsPositive *bool               `json:"is_positive"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

func (CoinPrice) TableName() string {
	return "coin_prices"
}
