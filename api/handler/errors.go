package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/sitecrawl/models"
)

// respondError maps a CrawlError to its HTTP status and writes a structured
// JSON error response. Any other error is reported as INTERNAL_ERROR.
func respondError(c *gin.Context, err error) {
	var crawlErr *models.CrawlError
	if !errors.As(err, &crawlErr) {
		crawlErr = models.NewCrawlError(models.ErrCodeInternal, err.Error(), err)
	}
	c.JSON(mapErrorToStatus(crawlErr), models.ErrorResponse{
		Success: false,
		Error:   crawlErr.ToDetail(),
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error:   &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: msg},
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.CrawlError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput, models.ErrCodeInvalidURL, models.ErrCodeInvalidRange:
		return http.StatusBadRequest // 400
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeConflict:
		return http.StatusConflict // 409
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeResourceExhausted:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeFetchFailed:
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}
