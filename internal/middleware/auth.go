package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"circles-service/internal/security"
)

// AuthMiddleware validates the Authorization header and stores the caller's
// identity in the gin context.
func AuthMiddleware(verifier *security.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := verifier.Verify(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", claims.Subject)
		c.Set("userEmail", claims.Email)
		c.Next()
	}
}
