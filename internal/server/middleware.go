package server

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// TriggerMiddleware guards the scheduler-facing endpoints with a shared
// secret. The scheduler is the only caller, so this is a single header
// check rather than a token system.
func (s *Server) TriggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := s.config.Trigger.Secret
		if secret == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trigger secret not configured"})
			c.Abort()
			return
		}

		provided := c.GetHeader("X-Trigger-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid trigger secret"})
			c.Abort()
			return
		}

		c.Next()
	}
}
