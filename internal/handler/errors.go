package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cryptopulse/internal/service"
)

const hintRuleExists = "update or toggle the existing rule instead of creating a new one"

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": msg})
}

// writeError maps service errors to status codes and the error envelope.
func writeError(c *gin.Context, err error) {
	var exists *service.RuleExistsError
	switch {
	case errors.As(err, &exists):
		c.JSON(http.StatusConflict, gin.H{
			"error":         "rule_already_exists",
			"message":       err.Error(),
			"existing_rule": exists.Existing,
			"hint":          hintRuleExists,
		})
	case errors.Is(err, service.ErrInvalidRecurrence):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_recurrence", "message": err.Error()})
	case errors.Is(err, service.ErrRuleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "rule_not_found", "message": err.Error()})
	case errors.Is(err, service.ErrCoinNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "coin_not_found", "message": err.Error()})
	case errors.Is(err, service.ErrLogNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "log_not_found", "message": err.Error()})
	case errors.Is(err, service.ErrFavoriteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "favorite_not_found", "message": err.Error()})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user_not_found", "message": err.Error()})
	case errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email_taken", "message": err.Error()})
	case errors.Is(err, service.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "username_taken", "message": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials", "message": err.Error()})
	case errors.Is(err, service.ErrInvalidAccount):
		badRequest(c, err.Error())
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": "the rule changed concurrently, retry"})
	case errors.Is(err, service.ErrStorage):
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error", "message": "storage unavailable"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal error"})
	}
}
