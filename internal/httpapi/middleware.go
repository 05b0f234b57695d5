package httpapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// bearerAuth rejects requests whose Authorization header does not carry
// "Bearer <apiKey>", compared in constant time since apiKey is a single
// static shared secret, not a per-user password.
func bearerAuth(apiKey string) gin.HandlerFunc {
	expected := []byte("Bearer " + apiKey)
	return func(c *gin.Context) {
		got := c.GetHeader("Authorization")
		if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
