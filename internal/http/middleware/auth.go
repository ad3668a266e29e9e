// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file guards machine-to-machine routes (cron triggers, staff admin)
// with a static bearer secret.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// BearerAuth rejects requests whose Authorization header is not
// "Bearer <secret>". The comparison is constant-time. An empty secret
// disables the route: every request gets 401.
func BearerAuth(realm, secret string) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		got, ok := bearerToken(c.GetHeader("Authorization"))
		if len(want) == 0 || !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			LoggerFrom(c).Warn().Str("realm", realm).Msg("bearer authentication failed")
			c.Header("WWW-Authenticate", `Bearer realm="`+realm+`"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "missing or invalid bearer token",
			})
			return
		}
		c.Next()
	}
}

func bearerToken(h string) (string, bool) {
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}
