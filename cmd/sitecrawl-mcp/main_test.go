package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/sitecrawl/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// stubAPI serves a fixed job that completes on its second poll.
func stubAPI(t *testing.T) (*apiClient, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/crawl", func(w http.ResponseWriter, r *http.Request) {
		var req models.CrawlRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://example.com", req.HomepageURL)
		assert.Equal(t, 3, req.MaxPages)
		writeJSON(w, http.StatusAccepted, models.CrawlResponse{Success: true, ID: "job-1", State: models.JobPending})
	})
	mux.HandleFunc("GET /api/v1/crawl/job-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		state := models.JobFetching
		if polls.Add(1) >= 2 {
			state = models.JobCompleted
		}
		writeJSON(w, http.StatusOK, models.ProgressResponse{Success: true, Progress: models.Progress{
			JobID: "job-1", SeedURL: "https://example.com/", State: state, MaxPages: 3,
			Counters: models.Counters{Discovered: 2, Fetched: 2, Succeeded: 1, Failed: 1},
			CacheID:  "example.com_20260314_090000_000000000",
		}})
	})
	mux.HandleFunc("GET /api/v1/crawl/job-1/results", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, models.ResultsResponse{Success: true, ID: "job-1", Results: []models.PageResult{
			{URL: "https://example.com/", Title: "Home", Content: "# Welcome", Status: models.PageSuccess},
			{URL: "https://example.com/gone", Status: models.PageError, ErrorDetail: "http_status: status 404"},
		}})
	})
	mux.HandleFunc("GET /api/v1/cache/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: &models.ErrorDetail{
			Code: models.ErrCodeNotFound, Message: "cache entry not found",
		}})
	})
	mux.HandleFunc("GET /api/v1/cache", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, models.CacheListResponse{Success: true, Entries: []models.CacheEntryInfo{
			{ID: "example.com_20260314_090000_000000000", Domain: "example.com", CreatedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)},
		}})
	})
	mux.HandleFunc("DELETE /api/v1/cache", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, models.ClearResponse{Success: true})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &apiClient{baseURL: srv.URL, apiKey: "secret", http: srv.Client(), poll: time.Millisecond}, &polls
}

func call(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok, "expected text content")
	return tc.Text
}

func TestCrawlSite(t *testing.T) {
	c, polls := stubAPI(t)

	res, err := handleCrawlSite(c)(context.Background(), call(map[string]any{
		"url": "https://example.com", "max_pages": 3,
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	text := resultText(t, res)

	assert.Contains(t, text, "Crawl job-1 of https://example.com/: completed")
	assert.Contains(t, text, "# Welcome")
	assert.Contains(t, text, "FAILED: http_status: status 404")
	assert.Contains(t, text, "Cache id: example.com_20260314_090000_000000000")
	assert.GreaterOrEqual(t, polls.Load(), int32(2))
}

func TestCrawlSite_RequiresURL(t *testing.T) {
	c, _ := stubAPI(t)
	res, err := handleCrawlSite(c)(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestCacheTools(t *testing.T) {
	c, _ := stubAPI(t)
	ctx := context.Background()

	res, err := handleListCache(c)(ctx, call(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "example.com_20260314_090000_000000000")

	res, err = handleLoadCache(c)(ctx, call(map[string]any{"id": "missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "[NOT_FOUND]")

	res, err = handleClearCache(c)(ctx, call(nil))
	require.NoError(t, err)
	assert.Equal(t, "Cache cleared.", resultText(t, res))
}

func TestNewServerRegistersTools(t *testing.T) {
	c, _ := stubAPI(t)
	s := newServer(c)
	tools := s.ListTools()
	for _, name := range []string{"crawl_site", "crawl_progress", "list_cache", "load_cache", "clear_cache"} {
		assert.Contains(t, tools, name)
	}
}
