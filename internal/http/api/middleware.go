package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/lumenpress/lumenpress/internal/config"
	"github.com/lumenpress/lumenpress/internal/resource"
	"github.com/lumenpress/lumenpress/internal/security"
)

// SecurityHeaders returns the gin-contrib/secure middleware for cfg.
func SecurityHeaders(cfg config.ServerConfig) gin.HandlerFunc {
	return secure.New(secure.Config{
		FrameDeny:          cfg.FrameDeny,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	})
}

// corsMiddleware adds permissive CORS headers to every API response.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Next()
	}
}

// adminAuthMiddleware requires an admin bearer token on mutating methods.
func adminAuthMiddleware(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete:
		default:
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing authorization header"})
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(cfg.JWTSecret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": errJWT.Error()})
			return
		}
		if claims.Username != cfg.Username {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unknown admin"})
			return
		}

		c.Set("adminUsername", claims.Username)
		c.Next()
	}
}

// metricsMiddleware records request counts and latency per resource.
// Names outside the allow-list are folded into "unknown".
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		name := "unknown"
		if _, ok := resource.Lookup(c.Param("resource")); ok {
			name = c.Param("resource")
		} else if strings.HasPrefix(c.FullPath(), "/api/auth/") {
			name = "auth"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.GetOrCreateCounter(fmt.Sprintf(`lumenpress_requests_total{resource=%q,method=%q,status=%q}`,
			name, c.Request.Method, status)).Inc()
		metrics.GetOrCreateHistogram(fmt.Sprintf(`lumenpress_request_duration_seconds{resource=%q}`, name)).
			Update(time.Since(start).Seconds())
	}
}
