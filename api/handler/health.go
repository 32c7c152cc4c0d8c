package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/sitecrawl/crawl"
	"github.com/use-agent/sitecrawl/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Reports admission utilisation and degrades status when more than 80% of
// fetch slots are taken.
func Health(svc *crawl.Service, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := svc.AdmissionStats()

		status := "healthy"
		if stats.MaxConcurrency > 0 && stats.InFlight > int(float64(stats.MaxConcurrency)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			Admission: stats,
			Version:   Version,
		})
	}
}
