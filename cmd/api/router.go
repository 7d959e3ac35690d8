package main

import (
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weavetrack/erp-api/internal/config"
	"github.com/weavetrack/erp-api/internal/handlers"
	"github.com/weavetrack/erp-api/internal/middleware"
)

func setupRouter(h *handlers.Handlers, cfg *config.Config) *gin.Engine {
	router := gin.New()

	// Global middleware
	if cfg.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		// Health check (public)
		v1.GET("/health", h.Health.Index)

		// Everything else is authenticated and scoped to one company
		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTSecret), middleware.Tenant())

		writers := middleware.RequireRole(middleware.RoleAdmin, middleware.RoleSupervisor, middleware.RoleOperator)
		supervisors := middleware.RequireRole(middleware.RoleAdmin, middleware.RoleSupervisor)
		admins := middleware.RequireRole(middleware.RoleAdmin)

		batches := protected.Group("/pre-processing")
		{
			batches.GET("", h.Batch.Index)
			batches.POST("", writers, h.Batch.Create)
			batches.GET("/analytics", h.Batch.Analytics)
			batches.GET("/export", h.Batch.Export)

			batches.GET("/:id", h.Batch.Show)
			batches.PUT("/:id", writers, h.Batch.Update)
			batches.DELETE("/:id", admins, h.Batch.Delete)
			batches.PATCH("/:id/status", writers, h.Batch.UpdateStatus)
			batches.POST("/:id/quality-checks", writers, h.Batch.AddQualityCheck)
			batches.POST("/:id/materials", writers, h.Batch.AddMaterial)
			batches.GET("/:id/history", h.Batch.History)
			batches.POST("/:id/status-log/rebuild", admins, h.Batch.RebuildStatusLog)
		}

		audits := protected.Group("/audit-logs")
		{
			audits.GET("/recent", supervisors, h.Audit.Recent)
			audits.POST("/archive", admins, h.Audit.Archive)
		}
	}

	return router
}
