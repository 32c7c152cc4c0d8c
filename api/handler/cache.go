package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/sitecrawl/crawl"
	"github.com/use-agent/sitecrawl/models"
)

// ListCache returns a handler for GET /api/v1/cache.
func ListCache(svc *crawl.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := svc.ListCache(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		if entries == nil {
			entries = []models.CacheEntryInfo{}
		}
		c.JSON(http.StatusOK, models.CacheListResponse{Success: true, Entries: entries})
	}
}

// GetCache returns a handler for GET /api/v1/cache/:id.
func GetCache(svc *crawl.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		entry, err := svc.LoadCache(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.CacheEntryResponse{Success: true, Entry: entry})
	}
}

// ClearCache returns a handler for DELETE /api/v1/cache.
func ClearCache(svc *crawl.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.ClearCache(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.ClearResponse{Success: true})
	}
}
