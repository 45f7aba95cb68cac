package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/whitelist-backend/internal/middleware"
	"github.com/stemsi/whitelist-backend/internal/response"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct{}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// GetProfile godoc
// GET /api/v1/auth/me
// Returns the identity carried by the caller's token.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user": gin.H{
			"id":           claims.UserID,
			"username":     claims.Username,
			"highest_role": claims.HighestRole,
			"staff":        claims.IsStaff(),
		},
	})
}
