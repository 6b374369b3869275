package models

import (
	"fmt"
	"time"

	"cryptopulse/internal/recurrence"
)

// NotificationRule is a user's recurring price notification for one coin.
type NotificationRule struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	UserID          uint       `gorm:"not null;index:idx_rule_user_coin" json:"user_id"`
	CoinID          uint       `gorm:"not null;index:idx_rule_user_coin" json:"coin_id"`
	FrequencyType   string     `gorm:"size:20;not null" json:"frequency_type"` // hourly | daily | weekly | custom
	IntervalHours   *int       `json:"interval_hours"`
	PreferredTime   *string    `gorm:"size:5" json:"preferred_time"` // HH:MM, UTC
	PreferredDay    *string    `gorm:"size:10" json:"preferred_day"`
	IsActive        bool       `gorm:"not null;index" json:"is_active"`
	LastSentAt      *time.Time `json:"last_sent_at"`
	NextScheduledAt time.Time  `gorm:"not null;index" json:"next_scheduled_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// ActiveKey is "<user>:<coin>" while active and NULL otherwise, so the
	// unique index only constrains active rules.
	ActiveKey *string `gorm:"size:64;uniqueIndex" json:"-"`
	// ClaimToken is unique per claim; a reclaim after an expired lease gets a
	// new one, so the stale holder can no longer renew or finish.
	ClaimToken   *string    `gorm:"size:36" json:"-"`
	ClaimedUntil *time.Time `json:"-"`
	FailureCount int        `gorm:"not null" json:"-"`
	Version      int        `gorm:"not null" json:"-"`
}

func (NotificationRule) TableName() string {
	return "notification_rules"
}

// ActivePairKey is the ActiveKey value for an active rule on (userID, coinID).
func ActivePairKey(userID, coinID uint) string {
	return fmt.Sprintf("%d:%d", userID, coinID)
}

// Spec returns the stored recurrence fields.
func (r *NotificationRule) Spec() recurrence.Spec {
	return recurrence.Spec{
		FrequencyType: r.FrequencyType,
		IntervalHours: r.IntervalHours,
		PreferredTime: r.PreferredTime,
		PreferredDay:  r.PreferredDay,
	}
}

// Recurrence parses the stored recurrence fields.
func (r *NotificationRule) Recurrence() (recurrence.Recurrence, error) {
	return recurrence.FromSpec(r.Spec())
}

// SetRecurrence overwrites the recurrence fields, clearing the ones rec does not use.
func (r *NotificationRule) SetRecurrence(rec recurrence.Recurrence) {
	s := recurrence.ToSpec(rec)
	r.FrequencyType = s.FrequencyType
	r.IntervalHours = s.IntervalHours
	r.PreferredTime = s.PreferredTime
	r.PreferredDay = s.PreferredDay
}

// Claimed reports whether an unexpired dispatch lease is held at now.
func (r *NotificationRule) Claimed(now time.Time) bool {
	return r.ClaimToken != nil && r.ClaimedUntil != nil && r.ClaimedUntil.After(now)
}
