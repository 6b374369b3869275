package handler

import (
	"net/http"

	"cryptopulse/internal/service"

	"github.com/gin-gonic/gin"
)

type CoinHandler struct {
	prices *service.PriceService
}

func NewCoinHandler(prices *service.PriceService) *CoinHandler {
	return &CoinHandler{prices: prices}
}

// List returns the catalog with the last cached price of each coin.
func (h *CoinHandler) List(c *gin.Context) {
	coins, err := h.prices.ListCoins(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coins": coins})
}
