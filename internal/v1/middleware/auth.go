package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/khanmassab/flixers/internal/v1/auth"
	"github.com/khanmassab/flixers/internal/v1/logging"
)

// ClaimsKey is the gin context key under which verified claims are stored.
const ClaimsKey = "session_claims"

// RequireSession verifies the Bearer token on control-plane requests and
// stores the verified claims in the request context. Failures respond with
// 401 and never reveal why verification failed.
func RequireSession(validator auth.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(string(logging.UserIDKey), claims.Subject)
		c.Next()
	}
}

// SessionClaims retrieves the claims stored by RequireSession, or nil.
func SessionClaims(c *gin.Context) *auth.SessionClaims {
	v, exists := c.Get(ClaimsKey)
	if !exists {
		return nil
	}
	claims, _ := v.(*auth.SessionClaims)
	return claims
}
