package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/odilabs/odi-auth/internal/ratelimit"
)

// IPRateLimit enforces a store-backed fixed window per client IP, so the
// budget holds across all service instances. Store failures reject the
// request rather than waving it through.
func IPRateLimit(limiter *ratelimit.Limiter, window time.Duration, max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP(), window, max)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Service temporarily unavailable. Please retry.",
			})
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "Too many requests from this address. Try again later.",
			})
			return
		}
		c.Next()
	}
}
