package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/whitelist-backend/internal/response"
)

// RequireStaff rejects tokens without staff access. Must run after RequireJWT.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if !claims.IsStaff() {
			response.AbortFail(c, http.StatusForbidden, response.ErrStaffAccessOnly)
			return
		}

		c.Next()
	}
}
