package models

import "time"

// PushToken is the device token a user's app registered for push delivery.
type PushToken struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Token     string    `gorm:"size:512;not null" json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PushToken) TableName() string {
	return "push_tokens"
}
