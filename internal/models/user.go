package models

import "time"

// User is a signed-up account. The access tokens of this service carry its ID.
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Email        string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Username     *string    `gorm:"uniqueIndex;size:64" json:"username"` // nil until chosen
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	LastSignInAt *time.Time `json:"last_sign_in_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
