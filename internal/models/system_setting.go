package models

import "time"

// SystemSetting is a key/value row for runtime status the process records
// about itself, such as the last successful price refresh.
type SystemSetting struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Key       string    `gorm:"uniqueIndex;size:100;not null" json:"key"`
	Value     string    `gorm:"size:255;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SystemSetting) TableName() string { return "system_settings" }

// SettingPricesRefreshedAt holds the RFC 3339 time of the last price refresh.
const SettingPricesRefreshedAt = "prices.refreshed_at"
