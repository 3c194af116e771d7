package handlers

import (
	"errors"
	"net/http"

	"ttl-cache-store/internal/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// AuthHandler issues admin tokens.
type AuthHandler struct {
	admin  auth.Admin
	tokens *auth.Tokens
	log    *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(admin auth.Admin, tokens *auth.Tokens, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{admin: admin, tokens: tokens, log: log}
}

// Login handles the login endpoint
// POST /api/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request. Username and password are required.",
		})
		return
	}

	if err := h.admin.Authenticate(req.Username, req.Password); err != nil {
		if errors.Is(err, auth.ErrLoginDisabled) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Login is disabled"})
			return
		}
		h.log.Warn("rejected login", zap.String("username", req.Username))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	token, err := h.tokens.GenerateToken(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to generate token",
		})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:    token,
		Username: req.Username,
		Message:  "Login successful",
	})
}
