package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// CacheControl marks responses publicly cacheable for the given TTL. Used on
// the exam catalog, which changes rarely and is identical for every caller.
func CacheControl(ttl time.Duration) gin.HandlerFunc {
	value := fmt.Sprintf("public, max-age=%d", int(ttl.Seconds()))
	return func(c *gin.Context) {
		c.Header("Cache-Control", value)
		c.Next()
	}
}
