package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptopulse/internal/models"

	"gorm.io/gorm"
)

// ErrVersionConflict means a compare-and-swap update matched no row: the rule
// changed (or vanished) since it was read.
var ErrVersionConflict = errors.New("rule version conflict")

type RuleRepository struct {
	db *gorm.DB
}

func NewRuleRepository(db *gorm.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// WithContext scopes every query of the returned repository to ctx.
func (r *RuleRepository) WithContext(ctx context.Context) *RuleRepository {
	return &RuleRepository{db: r.db.WithContext(ctx)}
}

// ClaimToken identifies one dispatch attempt: the rule and the fire it is for.
func DispatchKey(ruleID string, scheduledAt time.Time) string {
	return fmt.Sprintf("%s@%d", ruleID, scheduledAt.Unix())
}

func (r *RuleRepository) Create(rule *models.NotificationRule) error {
	return r.db.Create(rule).Error
}

func (r *RuleRepository) GetByID(id string) (*models.NotificationRule, error) {
	var rule models.NotificationRule
	if err := r.db.Where("id = ?", id).First(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

// FindActiveByUserCoin returns the active rule for the pair or gorm.ErrRecordNotFound.
func (r *RuleRepository) FindActiveByUserCoin(userID, coinID uint) (*models.NotificationRule, error) {
	var rule models.NotificationRule
	err := r.db.Where("user_id = ? AND coin_id = ? AND is_active = ?", userID, coinID, true).
		First(&rule).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// FindByUserCoin prefers the active rule for the pair, then the newest inactive one.
func (r *RuleRepository) FindByUserCoin(userID, coinID uint) (*models.NotificationRule, error) {
	var rule models.NotificationRule
	err := r.db.Where("user_id = ? AND coin_id = ?", userID, coinID).
		Order("is_active DESC").Order("created_at DESC").
		First(&rule).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *RuleRepository) ListByUser(userID uint) ([]models.NotificationRule, error) {
	var list []models.NotificationRule
	err := r.db.Where("user_id = ?", userID).Order("created_at ASC").Order("id ASC").Find(&list).Error
	return list, err
}

// FindDue returns active rules whose fire time has passed and that carry no
// live claim, oldest first.
func (r *RuleRepository) FindDue(now time.Time, limit int) ([]models.NotificationRule, error) {
	now = now.UTC()
	q := r.db.Where("is_active = ? AND next_scheduled_at <= ?", true, now).
		Where("claim_token IS NULL OR claimed_until IS NULL OR claimed_until <= ?", now).
		Order("next_scheduled_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var list []models.NotificationRule
	err := q.Find(&list).Error
	return list, err
}

// Save writes every mutable column of rule if the stored version still equals
// rule.Version, then bumps rule.Version.
func (r *RuleRepository) Save(rule *models.NotificationRule) error {
	return saveCAS(r.db, rule)
}

func saveCAS(db *gorm.DB, rule *models.NotificationRule) error {
	rule.UpdatedAt = db.NowFunc()
	res := db.Model(&models.NotificationRule{}).
		Where("id = ? AND version = ?", rule.ID, rule.Version).
		Updates(map[string]any{
			"frequency_type":    rule.FrequencyType,
			"interval_hours":    rule.IntervalHours,
			"preferred_time":    rule.PreferredTime,
			"preferred_day":     rule.PreferredDay,
			"is_active":         rule.IsActive,
			"active_key":        rule.ActiveKey,
			"last_sent_at":      rule.LastSentAt,
			"next_scheduled_at": rule.NextScheduledAt.UTC(),
			"claim_token":         rule.ClaimToken,
			"claimed_until":     rule.ClaimedUntil,
			"failure_count":     rule.FailureCount,
			"version":           rule.Version + 1,
			"updated_at":        rule.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	rule.Version++
	return nil
}

// Delete removes the rule if it belongs to userID. Log entries are untouched.
func (r *RuleRepository) Delete(userID uint, id string) (bool, error) {
	res := r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.NotificationRule{})
	return res.RowsAffected > 0, res.Error
}

// Claim leases the rule for one dispatch under token. It fails with
// ErrVersionConflict if the rule changed since it was read or is no longer active.
func (r *RuleRepository) Claim(rule *models.NotificationRule, token string, until time.Time) error {
	until = until.UTC()
	now := r.db.NowFunc()
	res := r.db.Model(&models.NotificationRule{}).
		Where("id = ? AND version = ? AND is_active = ?", rule.ID, rule.Version, true).
		Updates(map[string]any{
			"claim_token":   token,
			"claimed_until": until,
			"version":       rule.Version + 1,
			"updated_at":    now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	rule.ClaimToken = &token
	rule.ClaimedUntil = &until
	rule.Version++
	rule.UpdatedAt = now
	return nil
}

// updateClaimed applies updates only while the rule still holds token.
func (r *RuleRepository) updateClaimed(id, token string, updates map[string]any) (bool, error) {
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = r.db.NowFunc()
	res := r.db.Model(&models.NotificationRule{}).
		Where("id = ? AND claim_token = ?", id, token).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// Renew extends the lease to until if the rule is active and token still holds
// an unexpired claim at now. False means the claim is gone or was taken over.
func (r *RuleRepository) Renew(id, token string, now, until time.Time) (bool, error) {
	res := r.db.Model(&models.NotificationRule{}).
		Where("id = ? AND claim_token = ? AND is_active = ? AND claimed_until > ?", id, token, true, now.UTC()).
		Updates(map[string]any{
			"claimed_until": until.UTC(),
			"version":       gorm.Expr("version + 1"),
			"updated_at":    r.db.NowFunc(),
		})
	return res.RowsAffected > 0, res.Error
}

// Release drops the claim without touching the schedule.
func (r *RuleRepository) Release(id, token string) (bool, error) {
	return r.updateClaimed(id, token, map[string]any{
		"claim_token":     nil,
		"claimed_until": nil,
	})
}

// RecordFailure reschedules a claimed rule after a failed attempt and stores
// the consecutive failure count.
func (r *RuleRepository) RecordFailure(id, token string, failures int, next time.Time) (bool, error) {
	return r.updateClaimed(id, token, map[string]any{
		"failure_count":     failures,
		"next_scheduled_at": next.UTC(),
		"claim_token":         nil,
		"claimed_until":     nil,
	})
}

// Deactivate switches a claimed rule off and frees its active pair slot.
func (r *RuleRepository) Deactivate(id, token string) (bool, error) {
	return r.updateClaimed(id, token, map[string]any{
		"is_active":     false,
		"active_key":    nil,
		"claim_token":     nil,
		"claimed_until": nil,
	})
}

// DispatchLogged reports whether the fire identified by key already has a log entry.
func (r *RuleRepository) DispatchLogged(key string) (bool, error) {
	return NewDeliveryLogRepository(r.db).ExistsByKey(key)
}

// FinishResult reports what FinishDispatch changed.
type FinishResult struct {
	Logged      bool // entry inserted
	Duplicate   bool // an entry for the dispatch key already existed
	RuleExists  bool
	Rescheduled bool
}

// FinishDispatch appends entry and, in the same transaction, stamps the rule:
// lastSentAt when the entry is a successful send, and nextScheduledAt = next
// when the rule is active and still holds token. A deleted rule only gets the
// log entry.
func (r *RuleRepository) FinishDispatch(entry *models.DeliveryLog, token string, next time.Time) (FinishResult, error) {
	var out FinishResult
	err := r.db.Transaction(func(tx *gorm.DB) error {
		out = FinishResult{}
		logs := NewDeliveryLogRepository(tx)
		exists, err := logs.ExistsByKey(entry.DispatchKey)
		if err != nil {
			return err
		}
		if exists {
			out.Duplicate = true
			return nil
		}
		if err := logs.Append(entry); err != nil {
			if IsDuplicateKey(err) {
				out.Duplicate = true
				return nil
			}
			return err
		}
		out.Logged = true

		var rule models.NotificationRule
		err = tx.Where("id = ?", entry.RuleID).First(&rule).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out.RuleExists = true

		if entry.Status == models.DeliveryStatusSent {
			sent := entry.NotifiedAt.UTC()
			rule.LastSentAt = &sent
		}
		if rule.IsActive && rule.ClaimToken != nil && *rule.ClaimToken == token {
			rule.NextScheduledAt = next.UTC()
			rule.ClaimToken = nil
			rule.ClaimedUntil = nil
			rule.FailureCount = 0
			out.Rescheduled = true
		}
		return saveCAS(tx, &rule)
	})
	if err != nil {
		return FinishResult{}, err
	}
	return out, nil
}

// IsDuplicateKey reports a unique-index violation across the supported drivers.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate entry")
}
