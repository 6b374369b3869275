package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cryptopulse/internal/models"
	"cryptopulse/internal/repository"
	"cryptopulse/pkg/coingecko"
)

type fakeFeed struct {
	quotes map[string]coingecko.Quote
	err    error
	asked  []string
}

func (f *fakeFeed) SimplePrice(_ context.Context, ids []string) (map[string]coingecko.Quote, error) {
	f.asked = ids
	return f.quotes, f.err
}

func TestPriceRefreshAndLookup(t *testing.T) {
	db := newTestDB(t)
	coins := repository.NewCoinRepository(db)
	for _, c := range []models.Coin{
		{ID: 1, Name: "Bitcoin", Symbol: "BTC", Color: "#FFEDD5", GeckoID: "bitcoin"},
		{ID: 2, Name: "Ethereum", Symbol: "ETH", Color: "#DBEAFE", GeckoID: "ethereum"},
		{ID: 3, Name: "Local", Symbol: "LOC", Color: "#000000"},
	} {
		if err := coins.Create(&c); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	feed := &fakeFeed{quotes: map[string]coingecko.Quote{
		"bitcoin": {USD: decimal.RequireFromString("65000.5"), Change24h: decimal.NewNullDecimal(decimal.RequireFromString("-2.25"))},
	}}
	clk := &clock{t: wed}
	svc := NewPriceService(coins, feed, 30*time.Minute, zerolog.Nop()).
		WithStatus(repository.NewSettingRepository(db))
	svc.SetClock(clk.now)
	ctx := context.Background()

	if _, ok, err := svc.LastRefresh(ctx); ok || err != nil {
		t.Fatalf("last refresh before any refresh: ok=%v err=%v", ok, err)
	}
	n, err := svc.Refresh(ctx)
	if err != nil || n != 1 {
		t.Fatalf("refresh = %d, %v", n, err)
	}
	if at, ok, err := svc.LastRefresh(ctx); err != nil || !ok || !at.Equal(wed) {
		t.Fatalf("last refresh = %v, %v, %v", at, ok, err)
	}
	if len(feed.asked) != 2 {
		t.Fatalf("feed asked for %v, want the two coins with gecko ids", feed.asked)
	}

	q, err := svc.Lookup(ctx, 1)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !q.CurrentPrice.Equal(decimal.RequireFromString("65000.5")) || q.IsPositive || q.Coin.Symbol != "BTC" {
		t.Fatalf("quote = %+v", q)
	}

	if _, err := svc.Lookup(ctx, 2); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("coin without price: got %v", err)
	}
	if _, err := svc.Lookup(ctx, 99); !errors.Is(err, ErrCoinNotFound) {
		t.Fatalf("unknown coin: got %v", err)
	}

	clk.advance(31 * time.Minute)
	if _, err := svc.Lookup(ctx, 1); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("stale price: got %v", err)
	}

	feed.err = errors.New("upstream down")
	if _, err := svc.Refresh(ctx); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("feed failure: got %v", err)
	}
}
