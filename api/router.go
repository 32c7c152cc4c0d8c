package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/sitecrawl/api/handler"
	"github.com/use-agent/sitecrawl/api/middleware"
	"github.com/use-agent/sitecrawl/config"
	"github.com/use-agent/sitecrawl/crawl"
	"github.com/use-agent/sitecrawl/metrics"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
// ctx bounds background work started by the middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → Metrics (if enabled)
//	API:     Auth (if enabled) → RateLimit
//
// Health and /metrics sit outside auth so monitoring probes always work.
func NewRouter(ctx context.Context, svc *crawl.Service, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	if cfg.Metrics.Enabled {
		r.Use(middleware.Metrics())
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	v1 := r.Group("/api/v1")

	// Health needs no auth.
	v1.GET("/health", handler.Health(svc, startTime))

	// Protected group: auth, then rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))

	// Crawl jobs
	protected.POST("/crawl", handler.PostCrawl(svc, cfg.Crawl.DefaultMaxPages))
	protected.GET("/crawl/:id", handler.GetProgress(svc))
	protected.GET("/crawl/:id/results", handler.GetResults(svc))
	protected.GET("/crawl/:id/csv", handler.DownloadCSV(svc))
	protected.POST("/crawl/:id/cancel", handler.CancelCrawl(svc))

	// Current job
	protected.GET("/status", handler.GetProgress(svc))
	protected.GET("/results", handler.GetResults(svc))
	protected.GET("/download/csv", handler.DownloadCSV(svc))

	// Result cache
	protected.GET("/cache", handler.ListCache(svc))
	protected.GET("/cache/:id", handler.GetCache(svc))
	protected.DELETE("/cache", handler.ClearCache(svc))
	protected.POST("/cache/clear", handler.ClearCache(svc))

	return r
}
