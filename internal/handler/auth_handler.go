package handler

import (
	"net/http"

	"cryptopulse/internal/middleware"
	"cryptopulse/internal/service"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	accounts *service.AccountService
}

func NewAuthHandler(accounts *service.AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

type signUpRequest struct {
	Email    string  `json:"email" binding:"required,email"`
	Password string  `json:"password" binding:"required,min=8"`
	Username *string `json:"username" binding:"omitempty,max=64"`
}

type signInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type profileRequest struct {
	Username string `json:"username" binding:"max=64"`
}

func (h *AuthHandler) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "a valid email and a password of at least 8 characters are required")
		return
	}
	sess, err := h.accounts.SignUp(c.Request.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *AuthHandler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}
	sess, err := h.accounts.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *AuthHandler) Profile(c *gin.Context) {
	u, err := h.accounts.Profile(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// UpdateProfile sets the username; an empty one clears it.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "username must be at most 64 characters")
		return
	}
	u, err := h.accounts.UpdateUsername(c.Request.Context(), middleware.GetUserID(c), req.Username)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *AuthHandler) DeleteAccount(c *gin.Context) {
	if err := h.accounts.DeleteAccount(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
