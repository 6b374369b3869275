package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DeliveryStatusSent        = "sent"
	DeliveryStatusFailed      = "delivery_failed"
	DeliveryStatusNoRecipient = "no_recipient"
)

// DeliveryLog records one dispatch attempt. RuleID is a plain reference: entries
// outlive their rule, so coin metadata is copied in at dispatch time.
type DeliveryLog struct {
	ID            uint                `gorm:"primaryKey" json:"id"`
	DispatchKey   string              `gorm:"size:80;not null;uniqueIndex" json:"-"`
	RuleID        string              `gorm:"size:36;not null;index" json:"rule_id"`
	UserID        uint                `gorm:"not null;index:idx_log_user_time" json:"user_id"`
	CoinID        uint                `gorm:"not null;index" json:"coin_id"`
	CoinName      string              `gorm:"size:100" json:"-"`
	CoinSymbol    string              `gorm:"size:20" json:"-"`
	CoinColor     string              `gorm:"size:20" json:"-"`
	Price         decimal.Decimal     `gorm:"type:decimal(30,10);not null" json:"price"`
	ChangePercent decimal.NullDecimal `gorm:"type:decimal(20,10)" json:"change_percent"`
	Message       string              `gorm:"type:text" json:"message"`
	Status        string              `gorm:"size:20;not null" json:"status"`
	Error         string              `gorm:"type:text" json:"error,omitempty"`
	NotifiedAt    time.Time           `gorm:"not null;index:idx_log_user_time" json:"notified_at"`
}

func (DeliveryLog) TableName() string {
	return "delivery_logs"
}

// LogCoin is the coin summary embedded in a serialized log entry.
type LogCoin struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Color  string `json:"color"`
}

// MarshalJSON nests the copied coin metadata under "coin".
func (l DeliveryLog) MarshalJSON() ([]byte, error) {
	type plain DeliveryLog
	return json.Marshal(struct {
		plain
		Coin LogCoin `json:"coin"`
	}{
		plain: plain(l),
		Coin:  LogCoin{ID: l.CoinID, Name: l.CoinName, Symbol: l.CoinSymbol, Color: l.CoinColor},
	})
}
