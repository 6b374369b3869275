package middleware

import (
	"net/http"
	"strings"

	"cryptopulse/config"
	"cryptopulse/internal/auth"

	"github.com/gin-gonic/gin"
)

const ctxUserID = "user_id"

// AuthRequired validates the bearer JWT and sets the user ID in context.
func AuthRequired(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c, "invalid authorization format")
			return
		}
		claims, err := auth.ParseAccessToken(cfg, strings.TrimSpace(parts[1]))
		if err != nil {
			abortUnauthorized(c, "invalid or expired token")
			return
		}
		c.Set(ctxUserID, claims.UserID)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": msg})
}

// GetUserID returns the authenticated user ID from context (must be used after AuthRequired).
func GetUserID(c *gin.Context) uint {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return 0
	}
	id, _ := v.(uint)
	return id
}
