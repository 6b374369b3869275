package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"cryptopulse/internal/database"
	"cryptopulse/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMemory(t.Name())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

var t0 = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func newRule(userID, coinID uint, next time.Time) *models.NotificationRule {
	key := models.ActivePairKey(userID, coinID)
	one := 1
	return &models.NotificationRule{
		ID:              uuid.NewString(),
		UserID:          userID,
		CoinID:          coinID,
		FrequencyType:   "hourly",
		IntervalHours:   &one,
		IsActive:        true,
		ActiveKey:       &key,
		NextScheduledAt: next,
	}
}

func TestActivePairIsUnique(t *testing.T) {
	repo := NewRuleRepository(newTestDB(t))
	if err := repo.Create(newRule(42, 7, t0)); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := repo.Create(newRule(42, 7, t0))
	if !IsDuplicateKey(err) {
		t.Fatalf("second active rule: got %v, want duplicate key", err)
	}

	inactive := newRule(42, 7, t0)
	inactive.IsActive = false
	inactive.ActiveKey = nil
	if err := repo.Create(inactive); err != nil {
		t.Fatalf("inactive rule for the same pair: %v", err)
	}
}

func TestFindDue(t *testing.T) {
	repo := NewRuleRepository(newTestDB(t))

	due := newRule(1, 1, t0.Add(-time.Minute))
	exact := newRule(1, 2, t0)
	future := newRule(1, 3, t0.Add(time.Minute))
	off := newRule(1, 4, t0.Add(-time.Hour))
	off.IsActive = false
	off.ActiveKey = nil
	claimed := newRule(1, 5, t0.Add(-time.Hour))
	expired := newRule(1, 6, t0.Add(-2*time.Hour))
	for _, r := range []*models.NotificationRule{due, exact, future, off, claimed, expired} {
		if err := repo.Create(r); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := repo.Claim(claimed, DispatchKey(claimed.ID, claimed.NextScheduledAt), t0.Add(5*time.Minute)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := repo.Claim(expired, DispatchKey(expired.ID, expired.NextScheduledAt), t0.Add(-time.Minute)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	got, err := repo.FindDue(t0, 0)
	if err != nil {
		t.Fatalf("find due: %v", err)
	}
	want := []string{expired.ID, due.ID, exact.ID}
	if len(got) != len(want) {
		t.Fatalf("got %d due rules, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("due[%d] = %s (coin %d), want %s", i, got[i].ID, got[i].CoinID, id)
		}
	}

	limited, err := repo.FindDue(t0, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limit 1: got %d rules, err %v", len(limited), err)
	}
}

func TestSaveDetectsStaleVersion(t *testing.T) {
	repo := NewRuleRepository(newTestDB(t))
	rule := newRule(1, 1, t0)
	if err := repo.Create(rule); err != nil {
		t.Fatalf("create: %v", err)
	}

	a, _ := repo.GetByID(rule.ID)
	b, _ := repo.GetByID(rule.ID)

	a.NextScheduledAt = t0.Add(time.Hour)
	if err := repo.Save(a); err != nil {
		t.Fatalf("first save: %v", err)
	}
	b.IsActive = false
	if err := repo.Save(b); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale save: got %v, want ErrVersionConflict", err)
	}
	if err := repo.Claim(b, DispatchKey(b.ID, b.NextScheduledAt), t0); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale claim: got %v, want ErrVersionConflict", err)
	}

	stored, _ := repo.GetByID(rule.ID)
	if !stored.IsActive || !stored.NextScheduledAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("stored rule = %+v", stored)
	}
}

func logFor(rule *models.NotificationRule, key, status string) *models.DeliveryLog {
	return &models.DeliveryLog{
		DispatchKey: key,
		RuleID:      rule.ID,
		UserID:      rule.UserID,
		CoinID:      rule.CoinID,
		CoinSymbol:  "BTC",
		Price:       decimal.RequireFromString("65000.5"),
		Message:     "Push notification sent for BTC",
		Status:      status,
		NotifiedAt:  t0,
	}
}

func TestFinishDispatchIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewRuleRepository(db)
	rule := newRule(1, 1, t0)
	if err := repo.Create(rule); err != nil {
		t.Fatalf("create: %v", err)
	}
	key := DispatchKey(rule.ID, rule.NextScheduledAt)
	if err := repo.Claim(rule, key, t0.Add(5*time.Minute)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	next := t0.Add(time.Hour)
	res, err := repo.FinishDispatch(logFor(rule, key, models.DeliveryStatusSent), key, next)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if !res.Logged || !res.Rescheduled || res.Duplicate {
		t.Fatalf("first finish = %+v", res)
	}

	res, err = repo.FinishDispatch(logFor(rule, key, models.DeliveryStatusSent), key, next.Add(time.Hour))
	if err != nil {
		t.Fatalf("second finish: %v", err)
	}
	if !res.Duplicate || res.Logged {
		t.Fatalf("second finish = %+v", res)
	}

	var n int64
	db.Model(&models.DeliveryLog{}).Where("rule_id = ?", rule.ID).Count(&n)
	if n != 1 {
		t.Fatalf("log entries = %d, want 1", n)
	}
	stored, _ := repo.GetByID(rule.ID)
	if stored.ClaimToken != nil || !stored.NextScheduledAt.Equal(next) {
		t.Fatalf("rule after finish: claim=%v next=%v", stored.ClaimToken, stored.NextScheduledAt)
	}
	if stored.LastSentAt == nil || !stored.LastSentAt.Equal(t0) {
		t.Fatalf("last_sent_at = %v, want %v", stored.LastSentAt, t0)
	}
}

func TestFinishDispatchForDeletedRule(t *testing.T) {
	db := newTestDB(t)
	repo := NewRuleRepository(db)
	rule := newRule(1, 1, t0)
	if err := repo.Create(rule); err != nil {
		t.Fatalf("create: %v", err)
	}
	key := DispatchKey(rule.ID, rule.NextScheduledAt)
	if err := repo.Claim(rule, key, t0.Add(5*time.Minute)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if ok, err := repo.Delete(rule.UserID, rule.ID); !ok || err != nil {
		t.Fatalf("delete: %v %v", ok, err)
	}

	res, err := repo.FinishDispatch(logFor(rule, key, models.DeliveryStatusSent), key, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if !res.Logged || res.RuleExists || res.Rescheduled {
		t.Fatalf("finish = %+v", res)
	}
	if _, err := repo.GetByID(rule.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("deleted rule came back: %v", err)
	}
}

func TestFinishDispatchLeavesDeactivatedRuleUnscheduled(t *testing.T) {
	repo := NewRuleRepository(newTestDB(t))
	rule := newRule(1, 1, t0)
	if err := repo.Create(rule); err != nil {
		t.Fatalf("create: %v", err)
	}
	key := DispatchKey(rule.ID, rule.NextScheduledAt)
	if err := repo.Claim(rule, key, t0.Add(5*time.Minute)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	rule.IsActive = false
	rule.ActiveKey = nil
	if err := repo.Save(rule); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	res, err := repo.FinishDispatch(logFor(rule, key, models.DeliveryStatusFailed), key, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if !res.Logged || res.Rescheduled {
		t.Fatalf("finish = %+v", res)
	}
	stored, _ := repo.GetByID(rule.ID)
	if !stored.NextScheduledAt.Equal(t0) || stored.LastSentAt != nil {
		t.Fatalf("rule after finish: next=%v last=%v", stored.NextScheduledAt, stored.LastSentAt)
	}
}

func TestClaimedUpdatesRequireMatchingKey(t *testing.T) {
	repo := NewRuleRepository(newTestDB(t))
	rule := newRule(1, 1, t0)
	if err := repo.Create(rule); err != nil {
		t.Fatalf("create: %v", err)
	}
	key := DispatchKey(rule.ID, rule.NextScheduledAt)
	if err := repo.Claim(rule, key, t0.Add(5*time.Minute)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if ok, err := repo.RecordFailure(rule.ID, "other@1", 1, t0.Add(time.Minute)); ok || err != nil {
		t.Fatalf("foreign key failure update: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.RecordFailure(rule.ID, key, 1, t0.Add(time.Minute)); !ok || err != nil {
		t.Fatalf("record failure: ok=%v err=%v", ok, err)
	}
	stored, _ := repo.GetByID(rule.ID)
	if stored.FailureCount != 1 || stored.ClaimToken != nil || !stored.NextScheduledAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("after failure: %+v", stored)
	}
	if stored.Version != rule.Version+1 {
		t.Fatalf("version = %d, want %d", stored.Version, rule.Version+1)
	}
	if ok, _ := repo.Release(rule.ID, key); ok {
		t.Fatal("release after the claim was cleared should match nothing")
	}
}

func TestRenewRequiresLiveClaim(t *testing.T) {
	repo := NewRuleRepository(newTestDB(t))
	rule := newRule(1, 1, t0)
	if err := repo.Create(rule); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Claim(rule, "first", t0.Add(5*time.Minute)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if ok, err := repo.Renew(rule.ID, "first", t0.Add(time.Minute), t0.Add(6*time.Minute)); !ok || err != nil {
		t.Fatalf("renew live claim: ok=%v err=%v", ok, err)
	}
	stored, _ := repo.GetByID(rule.ID)
	if stored.ClaimedUntil == nil || !stored.ClaimedUntil.Equal(t0.Add(6*time.Minute)) {
		t.Fatalf("claimed_until = %v", stored.ClaimedUntil)
	}

	if ok, _ := repo.Renew(rule.ID, "first", t0.Add(6*time.Minute), t0.Add(11*time.Minute)); ok {
		t.Fatal("renewed an expired lease")
	}
	if ok, _ := repo.Renew(rule.ID, "second", t0.Add(time.Minute), t0.Add(6*time.Minute)); ok {
		t.Fatal("renewed with a foreign token")
	}

	// A reclaim after expiry hands out a new token; the old one is dead.
	stored, _ = repo.GetByID(rule.ID)
	if err := repo.Claim(stored, "second", t0.Add(12*time.Minute)); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if ok, _ := repo.Renew(rule.ID, "first", t0.Add(7*time.Minute), t0.Add(12*time.Minute)); ok {
		t.Fatal("stale holder renewed after reclaim")
	}
	key := DispatchKey(rule.ID, rule.NextScheduledAt)
	res, err := repo.FinishDispatch(logFor(rule, key, models.DeliveryStatusSent), "first", t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("finish with stale token: %v", err)
	}
	if !res.Logged || res.Rescheduled {
		t.Fatalf("stale finish = %+v, want logged and not rescheduled", res)
	}
	stored, _ = repo.GetByID(rule.ID)
	if stored.ClaimToken == nil || *stored.ClaimToken != "second" {
		t.Fatalf("stale finish touched the live claim: %v", stored.ClaimToken)
	}
}
