package models

import "time"

// Favorite marks a coin on a user's watch list.
type Favorite struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_fav_user_coin" json:"user_id"`
	CoinID    uint      `gorm:"not null;uniqueIndex:idx_fav_user_coin" json:"coin_id"`
	CreatedAt time.Time `json:"created_at"`

	Coin Coin `gorm:"foreignKey:CoinID" json:"-"`
}

func (Favorite) TableName() string {
	return "favorites"
}
