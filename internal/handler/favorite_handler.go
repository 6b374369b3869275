package handler

import (
	"net/http"

	"cryptopulse/internal/middleware"
	"cryptopulse/internal/service"

	"github.com/gin-gonic/gin"
)

type FavoriteHandler struct {
	favorites *service.FavoriteService
}

func NewFavoriteHandler(favorites *service.FavoriteService) *FavoriteHandler {
	return &FavoriteHandler{favorites: favorites}
}

func (h *FavoriteHandler) List(c *gin.Context) {
	list, err := h.favorites.List(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorites": list})
}

// Add answers 201 for a new favorite and 200 when it was already there.
func (h *FavoriteHandler) Add(c *gin.Context) {
	coinID, ok := coinParam(c)
	if !ok {
		return
	}
	added, err := h.favorites.Add(c.Request.Context(), middleware.GetUserID(c), coinID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !added {
		c.JSON(http.StatusOK, gin.H{"coin_id": coinID, "message": "already in favorites"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"coin_id": coinID, "message": "added to favorites"})
}

func (h *FavoriteHandler) Check(c *gin.Context) {
	coinID, ok := coinParam(c)
	if !ok {
		return
	}
	is, err := h.favorites.IsFavorite(c.Request.Context(), middleware.GetUserID(c), coinID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coin_id": coinID, "is_favorite": is})
}

func (h *FavoriteHandler) Remove(c *gin.Context) {
	coinID, ok := coinParam(c)
	if !ok {
		return
	}
	if err := h.favorites.Remove(c.Request.Context(), middleware.GetUserID(c), coinID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
