package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	headerAPIKey  = "X-API-Key"
	bearerPrefix  = "bearer "
	credentialKey = "credential_scheme"
)

// APIKeyMiddleware accepts the configured key from X-API-Key or an
// Authorization: Bearer header. An empty key disables the check.
func APIKeyMiddleware(key string) gin.HandlerFunc {
	want := []byte(key)
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}
		got, scheme := presented(c)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(credentialKey, scheme)
		c.Next()
	}
}

func presented(c *gin.Context) (string, string) {
	if v := strings.TrimSpace(c.GetHeader(headerAPIKey)); v != "" {
		return v, "api-key"
	}
	authz := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(authz) > len(bearerPrefix) && strings.EqualFold(authz[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(authz[len(bearerPrefix):]), "bearer"
	}
	return "", ""
}

// Scheme returns how the request authenticated: "api-key", "bearer" or ""
// when the check is disabled.
func Scheme(c *gin.Context) string {
	v, _ := c.Get(credentialKey)
	s, _ := v.(string)
	return s
}
