package handler

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/sitecrawl/crawl"
	"github.com/use-agent/sitecrawl/export"
	"github.com/use-agent/sitecrawl/models"
)

// PostCrawl returns a handler for POST /api/v1/crawl.
//
// With use_cache set and a cached crawl of the same domain on disk, the
// cached entry is returned (200) instead of starting a job. Otherwise the
// job is registered as current and 202 is returned right away.
func PostCrawl(svc *crawl.Service, defaultMaxPages int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CrawlRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if req.MaxPages == 0 {
			req.MaxPages = defaultMaxPages
		}

		if req.UseCache {
			entry, err := svc.LatestCache(c.Request.Context(), req.Seed())
			switch {
			case err == nil:
				c.JSON(http.StatusOK, models.CrawlResponse{
					Success:  true,
					UseCache: true,
					Cached:   entry,
				})
				return
			case !errors.Is(err, models.ErrNotFound):
				respondError(c, err)
				return
			}
		}

		job, err := svc.Submit(crawl.SubmitRequest{
			SeedURL:       req.Seed(),
			MaxPages:      req.MaxPages,
			WebhookURL:    req.WebhookURL,
			WebhookSecret: req.WebhookSecret,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, models.CrawlResponse{
			Success: true,
			ID:      job.ID(),
			State:   job.Progress().State,
		})
	}
}

// GetProgress returns a handler for GET /api/v1/crawl/:id and
// GET /api/v1/status (current job).
func GetProgress(svc *crawl.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.Progress(c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.ProgressResponse{Success: true, Progress: p})
	}
}

// GetResults returns a handler for GET /api/v1/crawl/:id/results and
// GET /api/v1/results (current job).
func GetResults(svc *crawl.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := svc.Job(c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		results := job.Results()
		c.JSON(http.StatusOK, models.ResultsResponse{
			Success:        true,
			ID:             job.ID(),
			State:          job.Progress().State,
			Results:        results,
			ResultsSummary: models.Summarize(results),
		})
	}
}

// DownloadCSV returns a handler for GET /api/v1/crawl/:id/csv and
// GET /api/v1/download/csv (current job).
func DownloadCSV(svc *crawl.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var buf bytes.Buffer
		if err := svc.ExportCSV(c.Param("id"), &buf); err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+export.FileName(time.Now())+`"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	}
}

// CancelCrawl returns a handler for POST /api/v1/crawl/:id/cancel.
func CancelCrawl(svc *crawl.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.Cancel(c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.ProgressResponse{Success: true, Progress: p})
	}
}
