package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"cryptopulse/internal/models"
	"cryptopulse/internal/recurrence"
	"cryptopulse/internal/repository"
)

// casRetries bounds how often a user operation re-reads a rule that changed
// underneath it.
const casRetries = 3

// CreateRuleInput is a new rule for (UserID, CoinID).
type CreateRuleInput struct {
	UserID uint
	CoinID uint
	recurrence.Spec
}

// RulePatch holds the recurrence fields a client wants to change; nil means keep.
type RulePatch struct {
	FrequencyType *string
	IntervalHours *int
	PreferredTime *string
	PreferredDay  *string
}

func (p RulePatch) apply(s recurrence.Spec) recurrence.Spec {
	if p.FrequencyType != nil {
		s.FrequencyType = *p.FrequencyType
	}
	if p.IntervalHours != nil {
		s.IntervalHours = p.IntervalHours
	}
	if p.PreferredTime != nil {
		s.PreferredTime = p.PreferredTime
	}
	if p.PreferredDay != nil {
		s.PreferredDay = p.PreferredDay
	}
	return s
}

type RuleService struct {
	rules *repository.RuleRepository
	coins *repository.CoinRepository
	log   zerolog.Logger
	now   func() time.Time
}

func NewRuleService(rules *repository.RuleRepository, coins *repository.CoinRepository, log zerolog.Logger) *RuleService {
	return &RuleService{
		rules: rules,
		coins: coins,
		log:   log.With().Str("component", "rules").Logger(),
		now:   Now,
	}
}

// Now is the engine clock: UTC, whole seconds.
func Now() time.Time { return time.Now().UTC().Truncate(time.Second) }

// SetClock replaces the clock, for tests.
func (s *RuleService) SetClock(now func() time.Time) { s.now = now }

func (s *RuleService) CreateRule(ctx context.Context, in CreateRuleInput) (*models.NotificationRule, error) {
	rec, err := recurrence.FromSpec(in.Spec)
	if err != nil {
		return nil, err
	}
	ok, err := s.coins.WithContext(ctx).Exists(in.CoinID)
	if err != nil {
		return nil, storageErr("look up coin", err)
	}
	if !ok {
		return nil, ErrCoinNotFound
	}

	rules := s.rules.WithContext(ctx)
	if existing, err := s.activeRule(rules, in.UserID, in.CoinID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, &RuleExistsError{Existing: existing}
	}

	now := s.now()
	key := models.ActivePairKey(in.UserID, in.CoinID)
	rule := &models.NotificationRule{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		CoinID:          in.CoinID,
		IsActive:        true,
		ActiveKey:       &key,
		NextScheduledAt: rec.Next(now),
	}
	rule.SetRecurrence(rec)
	if err := rules.Create(rule); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, s.existsError(rules, in.UserID, in.CoinID)
		}
		return nil, storageErr("create rule", err)
	}
	s.log.Info().Str("rule_id", rule.ID).Uint("user_id", rule.UserID).Uint("coin_id", rule.CoinID).
		Str("frequency", rule.FrequencyType).Time("next", rule.NextScheduledAt).Msg("rule created")
	return rule, nil
}

// UpdateRule merges patch into the rule, revalidates it and schedules the next
// fire from now. Failure backoff and any in-flight claim are discarded.
func (s *RuleService) UpdateRule(ctx context.Context, userID uint, ruleID string, patch RulePatch) (*models.NotificationRule, error) {
	rules := s.rules.WithContext(ctx)
	for attempt := 0; attempt < casRetries; attempt++ {
		rule, err := s.owned(rules, userID, ruleID)
		if err != nil {
			return nil, err
		}
		rec, err := recurrence.FromSpec(patch.apply(rule.Spec()))
		if err != nil {
			return nil, err
		}
		rule.SetRecurrence(rec)
		rule.NextScheduledAt = rec.Next(s.now())
		rule.FailureCount = 0
		rule.ClaimToken = nil
		rule.ClaimedUntil = nil

		err = rules.Save(rule)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, storageErr("update rule", err)
		}
		s.log.Info().Str("rule_id", rule.ID).Str("frequency", rule.FrequencyType).
			Time("next", rule.NextScheduledAt).Msg("rule updated")
		return rule, nil
	}
	return nil, fmt.Errorf("update rule %s: %w", ruleID, ErrConflict)
}

// UpdateRuleByCoin updates the user's rule for coinID, preferring the active one.
func (s *RuleService) UpdateRuleByCoin(ctx context.Context, userID, coinID uint, patch RulePatch) (*models.NotificationRule, error) {
	rule, err := s.byCoin(ctx, userID, coinID)
	if err != nil {
		return nil, err
	}
	return s.UpdateRule(ctx, userID, rule.ID, patch)
}

// ToggleActive flips isActive. Activation schedules from now; deactivation
// leaves nextScheduledAt as it was.
func (s *RuleService) ToggleActive(ctx context.Context, userID uint, ruleID string) (*models.NotificationRule, error) {
	rules := s.rules.WithContext(ctx)
	for attempt := 0; attempt < casRetries; attempt++ {
		rule, err := s.owned(rules, userID, ruleID)
		if err != nil {
			return nil, err
		}
		if rule.IsActive {
			rule.IsActive = false
			rule.ActiveKey = nil
		} else {
			if existing, err := s.activeRule(rules, rule.UserID, rule.CoinID); err != nil {
				return nil, err
			} else if existing != nil {
				return nil, &RuleExistsError{Existing: existing}
			}
			rec, err := rule.Recurrence()
			if err != nil {
				return nil, err
			}
			key := models.ActivePairKey(rule.UserID, rule.CoinID)
			rule.IsActive = true
			rule.ActiveKey = &key
			rule.NextScheduledAt = rec.Next(s.now())
			rule.FailureCount = 0
			rule.ClaimToken = nil
			rule.ClaimedUntil = nil
		}

		err = rules.Save(rule)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if repository.IsDuplicateKey(err) {
			return nil, s.existsError(rules, rule.UserID, rule.CoinID)
		}
		if err != nil {
			return nil, storageErr("toggle rule", err)
		}
		s.log.Info().Str("rule_id", rule.ID).Bool("active", rule.IsActive).Msg("rule toggled")
		return rule, nil
	}
	return nil, fmt.Errorf("toggle rule %s: %w", ruleID, ErrConflict)
}

// DeleteRule removes the rule. Its delivery log stays.
func (s *RuleService) DeleteRule(ctx context.Context, userID uint, ruleID string) error {
	ok, err := s.rules.WithContext(ctx).Delete(userID, ruleID)
	if err != nil {
		return storageErr("delete rule", err)
	}
	if !ok {
		return ErrRuleNotFound
	}
	s.log.Info().Str("rule_id", ruleID).Uint("user_id", userID).Msg("rule deleted")
	return nil
}

func (s *RuleService) DeleteRuleByCoin(ctx context.Context, userID, coinID uint) error {
	rule, err := s.byCoin(ctx, userID, coinID)
	if err != nil {
		return err
	}
	return s.DeleteRule(ctx, userID, rule.ID)
}

// FindByUserCoin returns the active rule for the pair; no rule is (nil, false, nil).
func (s *RuleService) FindByUserCoin(ctx context.Context, userID, coinID uint) (*models.NotificationRule, bool, error) {
	rule, err := s.activeRule(s.rules.WithContext(ctx), userID, coinID)
	if err != nil {
		return nil, false, err
	}
	return rule, rule != nil, nil
}

// ListRules returns the user's rules, oldest first.
func (s *RuleService) ListRules(ctx context.Context, userID uint) ([]models.NotificationRule, error) {
	list, err := s.rules.WithContext(ctx).ListByUser(userID)
	if err != nil {
		return nil, storageErr("list rules", err)
	}
	return list, nil
}

// FindDue returns up to limit active, unclaimed rules due at now.
func (s *RuleService) FindDue(ctx context.Context, now time.Time, limit int) ([]models.NotificationRule, error) {
	list, err := s.rules.WithContext(ctx).FindDue(now, limit)
	if err != nil {
		return nil, storageErr("find due rules", err)
	}
	return list, nil
}

// ClaimTicket is a successful claim on one fire of a rule.
type ClaimTicket struct {
	Token       string // unique to this claim
	DispatchKey string // shared by every claim of the same fire
}

// Claim leases rule for one dispatch until now+lease under a fresh token.
// ErrConflict means someone else changed the rule first; the caller skips it.
func (s *RuleService) Claim(ctx context.Context, rule *models.NotificationRule, now time.Time, lease time.Duration) (ClaimTicket, error) {
	ticket := ClaimTicket{
		Token:       uuid.NewString(),
		DispatchKey: repository.DispatchKey(rule.ID, rule.NextScheduledAt),
	}
	err := s.rules.WithContext(ctx).Claim(rule, ticket.Token, now.Add(lease))
	if errors.Is(err, repository.ErrVersionConflict) {
		return ClaimTicket{}, ErrConflict
	}
	if err != nil {
		return ClaimTicket{}, storageErr("claim rule", err)
	}
	return ticket, nil
}

// Release gives a claim back without changing the schedule.
func (s *RuleService) Release(ctx context.Context, ruleID, token string) error {
	if _, err := s.rules.WithContext(ctx).Release(ruleID, token); err != nil {
		return storageErr("release claim", err)
	}
	return nil
}

// Renew extends an unexpired claim to now+lease. It reports false when the
// rule is gone, inactive, expired or claimed under another token.
func (s *RuleService) Renew(ctx context.Context, ruleID, token string, now time.Time, lease time.Duration) (bool, error) {
	ok, err := s.rules.WithContext(ctx).Renew(ruleID, token, now, now.Add(lease))
	if err != nil {
		return false, storageErr("renew claim", err)
	}
	return ok, nil
}

// HoldForPush renews the claim right before a push. A rule deleted,
// deactivated or edited while the dispatch was in flight still lets the attempt
// complete. It reports false only when the fire was taken over: another token
// holds the rule, the own lease ran out, or the dispatch key is already logged.
func (s *RuleService) HoldForPush(ctx context.Context, ruleID, token, dispatchKey string, now time.Time, lease time.Duration) (bool, error) {
	rules := s.rules.WithContext(ctx)
	ok, err := rules.Renew(ruleID, token, now, now.Add(lease))
	if err != nil {
		return false, storageErr("renew claim", err)
	}
	if ok {
		return true, nil
	}
	rule, err := rules.GetByID(ruleID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, storageErr("load rule", err)
	}
	if !rule.IsActive {
		return true, nil
	}
	if rule.ClaimToken != nil {
		return false, nil
	}
	logged, err := rules.DispatchLogged(dispatchKey)
	if err != nil {
		return false, storageErr("check dispatch log", err)
	}
	return !logged, nil
}

// FinishDispatch logs entry and, if token still holds the claim, reschedules
// the rule to next in one transaction. A concurrent user edit makes the
// transaction retry.
func (s *RuleService) FinishDispatch(ctx context.Context, entry *models.DeliveryLog, token string, next time.Time) (repository.FinishResult, error) {
	rules := s.rules.WithContext(ctx)
	for attempt := 0; attempt < casRetries; attempt++ {
		e := *entry
		res, err := rules.FinishDispatch(&e, token, next)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return repository.FinishResult{}, storageErr("finish dispatch", err)
		}
		*entry = e
		return res, nil
	}
	return repository.FinishResult{}, fmt.Errorf("finish dispatch %s: %w", entry.DispatchKey, ErrConflict)
}

// RecordFailure stores a failed attempt on a claimed rule and moves its next
// fire to next. It reports false when the claim was already lost.
func (s *RuleService) RecordFailure(ctx context.Context, ruleID, token string, failures int, next time.Time) (bool, error) {
	ok, err := s.rules.WithContext(ctx).RecordFailure(ruleID, token, failures, next)
	if err != nil {
		return false, storageErr("record failure", err)
	}
	return ok, nil
}

// Deactivate switches off a claimed rule that can never fire again.
func (s *RuleService) Deactivate(ctx context.Context, ruleID, token string) (bool, error) {
	ok, err := s.rules.WithContext(ctx).Deactivate(ruleID, token)
	if err != nil {
		return false, storageErr("deactivate rule", err)
	}
	return ok, nil
}

func (s *RuleService) owned(rules *repository.RuleRepository, userID uint, ruleID string) (*models.NotificationRule, error) {
	if strings.TrimSpace(ruleID) == "" {
		return nil, ErrRuleNotFound
	}
	rule, err := rules.GetByID(ruleID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, storageErr("load rule", err)
	}
	if rule.UserID != userID {
		return nil, ErrRuleNotFound
	}
	return rule, nil
}

func (s *RuleService) byCoin(ctx context.Context, userID, coinID uint) (*models.NotificationRule, error) {
	rule, err := s.rules.WithContext(ctx).FindByUserCoin(userID, coinID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, storageErr("load rule", err)
	}
	return rule, nil
}

func (s *RuleService) activeRule(rules *repository.RuleRepository, userID, coinID uint) (*models.NotificationRule, error) {
	rule, err := rules.FindActiveByUserCoin(userID, coinID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("load active rule", err)
	}
	return rule, nil
}

// existsError builds the error for a unique-index violation on the active pair.
func (s *RuleService) existsError(rules *repository.RuleRepository, userID, coinID uint) error {
	existing, err := s.activeRule(rules, userID, coinID)
	if err != nil {
		return err
	}
	return &RuleExistsError{Existing: existing}
}
