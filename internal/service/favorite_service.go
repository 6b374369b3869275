package service

import (
	"context"
	"time"

	"cryptopulse/internal/models"
	"cryptopulse/internal/repository"
)

// FavoriteCoin is a watched coin with its cached price.
type FavoriteCoin struct {
	models.Coin
	FavoritedAt time.Time `json:"favorited_at"`
}

type FavoriteService struct {
	favorites *repository.FavoriteRepository
	coins     *repository.CoinRepository
}

func NewFavoriteService(favorites *repository.FavoriteRepository, coins *repository.CoinRepository) *FavoriteService {
	return &FavoriteService{favorites: favorites, coins: coins}
}

// Add reports whether the coin was newly added; adding twice is not an error.
func (s *FavoriteService) Add(ctx context.Context, userID, coinID uint) (bool, error) {
	ok, err := s.coins.WithContext(ctx).Exists(coinID)
	if err != nil {
		return false, storageErr("check coin", err)
	}
	if !ok {
		return false, ErrCoinNotFound
	}
	added, err := s.favorites.WithContext(ctx).Add(userID, coinID)
	if err != nil {
		return false, storageErr("add favorite", err)
	}
	return added, nil
}

func (s *FavoriteService) Remove(ctx context.Context, userID, coinID uint) error {
	ok, err := s.favorites.WithContext(ctx).Remove(userID, coinID)
	if err != nil {
		return storageErr("remove favorite", err)
	}
	if !ok {
		return ErrFavoriteNotFound
	}
	return nil
}

func (s *FavoriteService) IsFavorite(ctx context.Context, userID, coinID uint) (bool, error) {
	ok, err := s.favorites.WithContext(ctx).IsFavorite(userID, coinID)
	if err != nil {
		return false, storageErr("check favorite", err)
	}
	return ok, nil
}

func (s *FavoriteService) List(ctx context.Context, userID uint) ([]FavoriteCoin, error) {
	favs, err := s.favorites.WithContext(ctx).ListByUser(userID)
	if err != nil {
		return nil, storageErr("list favorites", err)
	}
	out := make([]FavoriteCoin, 0, len(favs))
	for _, f := range favs {
		out = append(out, FavoriteCoin{Coin: f.Coin, FavoritedAt: f.CreatedAt})
	}
	return out, nil
}
