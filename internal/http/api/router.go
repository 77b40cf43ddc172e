// Package api registers the HTTP routes of the blog API on a gin engine.
package api

import (
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gin-gonic/gin"
	"github.com/lumenpress/lumenpress/internal/config"
	"github.com/lumenpress/lumenpress/internal/http/api/handlers"
	"github.com/lumenpress/lumenpress/internal/resource"
)

// RegisterRoutes registers resource, auth, health and metrics routes.
func RegisterRoutes(r *gin.Engine, svc *resource.Service, cfg config.Config) {
	if r == nil || svc == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(svc)
	r.GET("/healthz", healthHandler.Healthz)
	if cfg.Server.Metrics {
		r.GET("/metrics", func(c *gin.Context) {
			c.Header("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
			c.Status(http.StatusOK)
			metrics.WritePrometheus(c.Writer, true)
		})
	}

	api := r.Group("/api")
	api.Use(corsMiddleware())
	if cfg.Server.Metrics {
		api.Use(metricsMiddleware())
	}

	authHandler := handlers.NewAuthHandler(cfg.Auth)
	api.POST("/auth/login", authHandler.Login)
	api.OPTIONS("/auth/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	resources := api.Group("")
	if cfg.Auth.Enabled {
		resources.Use(adminAuthMiddleware(cfg.Auth))
	}
	resourceHandler := handlers.NewResourceHandler(svc, cfg.Server.MaxBodyBytes)
	resources.Any("/:resource", resourceHandler.Handle)
	resources.Any("/:resource/batch", resourceHandler.Batch)
}
