package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/7HR4IZ3/ai-video-creator/internal/config"
)

var (
	corsAllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsAllowedHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
)

// CORS answers cross-origin requests only for configured origins. Listed origins are echoed with
// credentials; a "*" entry yields a bare wildcard without credentials. No origins, no headers.
func CORS(cfg config.Config) gin.HandlerFunc {
	joinedMethods := strings.Join(corsAllowedMethods, ", ")
	joinedHeaders := strings.Join(corsAllowedHeaders, ", ")
	allowedOrigins := normalizeOrigins(cfg.CORSAllowedOrigins)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		allowOrigin, credentials := matchOrigin(origin, allowedOrigins)
		if allowOrigin == "" {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
			c.Next()
			return
		}

		header := c.Writer.Header()
		header.Set("Vary", "Origin")
		header.Set("Access-Control-Allow-Methods", joinedMethods)
		header.Set("Access-Control-Allow-Headers", joinedHeaders)
		header.Set("Access-Control-Allow-Origin", allowOrigin)
		if credentials {
			header.Set("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

// matchOrigin prefers an exact entry over the wildcard.
func matchOrigin(origin string, allowed []string) (string, bool) {
	wildcard := false
	for _, candidate := range allowed {
		if candidate == "*" {
			wildcard = true
			continue
		}
		if strings.EqualFold(candidate, origin) {
			return origin, true
		}
	}
	if wildcard {
		return "*", false
	}
	return "", false
}
