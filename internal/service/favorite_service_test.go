package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"cryptopulse/internal/models"
	"cryptopulse/internal/repository"
)

func TestFavorites(t *testing.T) {
	_, _, db := newRuleService(t, wed)
	coins := repository.NewCoinRepository(db)
	if err := coins.UpsertPrice(&models.CoinPrice{CoinID: 7, Price: decimal.RequireFromString("142.5"), UpdatedAt: wed}); err != nil {
		t.Fatal(err)
	}
	svc := NewFavoriteService(repository.NewFavoriteRepository(db), coins)
	ctx := context.Background()

	if _, err := svc.Add(ctx, 42, 99); !errors.Is(err, ErrCoinNotFound) {
		t.Fatalf("unknown coin err = %v", err)
	}
	for _, coin := range []uint{7, 1} {
		added, err := svc.Add(ctx, 42, coin)
		if err != nil || !added {
			t.Fatalf("add %d = %v, %v", coin, added, err)
		}
	}
	if added, err := svc.Add(ctx, 42, 7); err != nil || added {
		t.Fatalf("re-add = %v, %v", added, err)
	}

	list, err := svc.List(ctx, 42)
	if err != nil || len(list) != 2 {
		t.Fatalf("list = %v, %v", list, err)
	}
	if list[0].ID != 7 || list[0].Price == nil || !list[0].Price.Price.Equal(decimal.RequireFromString("142.5")) {
		t.Fatalf("first favorite = %+v", list[0])
	}
	if list[1].ID != 1 || list[1].Price != nil {
		t.Fatalf("second favorite = %+v", list[1])
	}
	if other, _ := svc.List(ctx, 43); len(other) != 0 {
		t.Fatalf("other user sees %v", other)
	}

	if ok, _ := svc.IsFavorite(ctx, 42, 1); !ok {
		t.Fatal("coin 1 should be a favorite")
	}
	if err := svc.Remove(ctx, 42, 1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := svc.Remove(ctx, 42, 1); !errors.Is(err, ErrFavoriteNotFound) {
		t.Fatalf("second remove err = %v", err)
	}
	if ok, _ := svc.IsFavorite(ctx, 42, 1); ok {
		t.Fatal("coin 1 still a favorite")
	}
}
