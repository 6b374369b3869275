package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"cryptopulse/internal/models"
	"cryptopulse/internal/repository"
	"cryptopulse/pkg/coingecko"
)

// PriceFeed is the upstream quote source.
type PriceFeed interface {
	SimplePrice(ctx context.Context, ids []string) (map[string]coingecko.Quote, error)
}

// Quote is a coin's cached price at lookup time.
type Quote struct {
	Coin         models.Coin
	CurrentPrice decimal.Decimal
	Change24h    decimal.NullDecimal
	IsPositive   bool
	UpdatedAt    time.Time
}

// PriceService serves quotes from the coin_prices cache and refreshes it from a feed.
type PriceService struct {
	coins  *repository.CoinRepository
	feed   PriceFeed
	maxAge time.Duration
	log    zerolog.Logger
	now    func() time.Time

	status *repository.SettingRepository
}

func NewPriceService(coins *repository.CoinRepository, feed PriceFeed, maxAge time.Duration, log zerolog.Logger) *PriceService {
	return &PriceService{
		coins:  coins,
		feed:   feed,
		maxAge: maxAge,
		log:    log.With().Str("component", "prices").Logger(),
		now:    Now,
	}
}

func (s *PriceService) SetClock(now func() time.Time) { s.now = now }

// WithStatus records the time of each successful refresh in settings.
func (s *PriceService) WithStatus(settings *repository.SettingRepository) *PriceService {
	s.status = settings
	return s
}

// LastRefresh returns when prices were last refreshed; ok is false if never.
func (s *PriceService) LastRefresh(ctx context.Context) (time.Time, bool, error) {
	if s.status == nil {
		return time.Time{}, false, nil
	}
	v, err := s.status.WithContext(ctx).Get(models.SettingPricesRefreshedAt)
	if err != nil {
		return time.Time{}, false, storageErr("load refresh status", err)
	}
	if v == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}

// Lookup returns the cached quote for coinID. A missing coin is ErrCoinNotFound;
// a missing, zero or stale price is ErrPriceUnavailable.
func (s *PriceService) Lookup(ctx context.Context, coinID uint) (*Quote, error) {
	coin, err := s.coins.WithContext(ctx).GetByID(coinID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCoinNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	p := coin.Price
	if p == nil || !p.Price.IsPositive() {
		return nil, fmt.Errorf("%w: no cached price for %s", ErrPriceUnavailable, coin.Symbol)
	}
	if s.maxAge > 0 && s.now().Sub(p.UpdatedAt) > s.maxAge {
		return nil, fmt.Errorf("%w: price for %s is stale (%s)", ErrPriceUnavailable, coin.Symbol, p.UpdatedAt.UTC().Format(time.RFC3339))
	}
	q := &Quote{
		Coin:         *coin,
		CurrentPrice: p.Price,
		Change24h:    p.Change,
		UpdatedAt:    p.UpdatedAt,
	}
	q.Coin.Price = nil
	switch {
	case p.IsPositive != nil:
		q.IsPositive = *p.IsPositive
	case p.Change.Valid:
		q.IsPositive = !p.Change.Decimal.IsNegative()
	}
	return q, nil
}

// ListCoins returns the catalog with cached prices.
func (s *PriceService) ListCoins(ctx context.Context) ([]models.Coin, error) {
	list, err := s.coins.WithContext(ctx).List()
	if err != nil {
		return nil, storageErr("list coins", err)
	}
	return list, nil
}

// Refresh pulls fresh quotes for every coin with a CoinGecko id and returns the
// number of prices written.
func (s *PriceService) Refresh(ctx context.Context) (int, error) {
	if s.feed == nil {
		return 0, nil
	}
	coins := s.coins.WithContext(ctx)
	list, err := coins.WithGeckoID()
	if err != nil {
		return 0, storageErr("list coins", err)
	}
	if len(list) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.GeckoID)
	}
	quotes, err := s.feed.SimplePrice(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}

	now := s.now()
	written := 0
	for _, c := range list {
		q, ok := quotes[c.GeckoID]
		if !ok || !q.USD.IsPositive() {
			s.log.Debug().Str("symbol", c.Symbol).Msg("no quote from feed")
			continue
		}
		var positive *bool
		if q.Change24h.Valid {
			v := !q.Change24h.Decimal.IsNegative()
			positive = &v
		}
		err := coins.UpsertPrice(&models.CoinPrice{
			CoinID:     c.ID,
			Price:      q.USD,
			Change:     q.Change24h,
			IsPositive: positive,
			UpdatedAt:  now,
		})
		if err != nil {
			return written, storageErr("store price", err)
		}
		written++
	}
	if s.status != nil && written > 0 {
		if err := s.status.WithContext(ctx).Set(models.SettingPricesRefreshedAt, now.Format(time.RFC3339)); err != nil {
			s.log.Warn().Err(err).Msg("record refresh status")
		}
	}
	s.log.Info().Int("coins", len(list)).Int("updated", written).Msg("prices refreshed")
	return written, nil
}
