package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderName = "X-API-Key"
	// QueryParam carries the key on WebSocket upgrades, where browsers
	// cannot set request headers.
	QueryParam = "api_key"
)

// APIKeyMiddleware rejects requests without a matching key. An empty apiKey
// disables the check.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	if apiKey == "" {
		return func(c *gin.Context) { c.Next() }
	}
	want := []byte(apiKey)

	return func(c *gin.Context) {
		provided := providedKey(c)
		switch {
		case provided == "":
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
		case subtle.ConstantTimeCompare([]byte(provided), want) != 1:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid API key"})
		default:
			c.Next()
		}
	}
}

func providedKey(c *gin.Context) string {
	if key := c.GetHeader(HeaderName); key != "" {
		return key
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return c.Query(QueryParam)
	}
	return ""
}
