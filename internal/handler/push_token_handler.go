package handler

import (
	"net/http"

	"cryptopulse/internal/middleware"
	"cryptopulse/internal/service"

	"github.com/gin-gonic/gin"
)

type PushTokenHandler struct {
	push *service.PushService
}

func NewPushTokenHandler(push *service.PushService) *PushTokenHandler {
	return &PushTokenHandler{push: push}
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

// Put stores the device token; an empty token forgets it.
func (h *PushTokenHandler) Put(c *gin.Context) {
	var req pushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	if err := h.push.RegisterToken(c.Request.Context(), middleware.GetUserID(c), req.Token); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
