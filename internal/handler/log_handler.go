package handler

import (
	"net/http"
	"strconv"

	"cryptopulse/internal/middleware"
	"cryptopulse/internal/service"

	"github.com/gin-gonic/gin"
)

type LogHandler struct {
	logs *service.DeliveryLogService
}

func NewLogHandler(logs *service.DeliveryLogService) *LogHandler {
	return &LogHandler{logs: logs}
}

func (h *LogHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(service.DefaultLogLimit)))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	list, total, err := h.logs.ListByUser(c.Request.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": list, "total": total, "limit": limit, "offset": offset})
}

func (h *LogHandler) Stats(c *gin.Context) {
	st, err := h.logs.Stats(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *LogHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "id must be a positive integer")
		return
	}
	if err := h.logs.Delete(c.Request.Context(), middleware.GetUserID(c), uint(id)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
