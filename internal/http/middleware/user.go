// README: Caller identity taken from a header set by the trusted gateway.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	UserIDHeader = "X-User-ID"
	callerUIDKey = "caller_uid"
)

// UserID stores the X-User-ID header in the gin context. Requests without it
// stay anonymous; no token is verified here.
func UserID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := strings.TrimSpace(c.GetHeader(UserIDHeader)); uid != "" {
			c.Set(callerUIDKey, uid)
		}
		c.Next()
	}
}

// CallerUID returns the caller id set by UserID, or "".
func CallerUID(c *gin.Context) string {
	return c.GetString(callerUIDKey)
}
