package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/sitecrawl/models"
)

// pageExcerpt bounds the content shown per page in tool output.
const pageExcerpt = 4000

func handleCrawlSite(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		payload := models.CrawlRequest{
			HomepageURL: url,
			MaxPages:    request.GetInt("max_pages", 0),
			UseCache:    request.GetBool("use_cache", false),
		}

		var created models.CrawlResponse
		if err := c.do(ctx, http.MethodPost, "/api/v1/crawl", payload, &created); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("crawl request failed: %v", err)), nil
		}
		if created.UseCache && created.Cached != nil {
			e := created.Cached
			header := fmt.Sprintf("Cached crawl %s of %s (%d pages)\n\n", e.ID, e.SeedURL, e.TotalPages)
			return mcp.NewToolResultText(header + formatPages(e.Results)), nil
		}
		if created.ID == "" {
			return mcp.NewToolResultError("crawl job creation failed"), nil
		}

		p, err := c.waitJob(ctx, created.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling crawl job failed: %v", err)), nil
		}
		var results models.ResultsResponse
		if err := c.do(ctx, http.MethodGet, "/api/v1/crawl/"+created.ID+"/results", nil, &results); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("fetching results failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatProgress(p) + "\n" + formatPages(results.Results)), nil
	}
}

func handleCrawlProgress(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := "/api/v1/status"
		if id := request.GetString("id", ""); id != "" {
			path = "/api/v1/crawl/" + id
		}
		var p models.ProgressResponse
		if err := c.do(ctx, http.MethodGet, path, nil, &p); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatProgress(p.Progress)), nil
	}
}

func handleListCache(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var list models.CacheListResponse
		if err := c.do(ctx, http.MethodGet, "/api/v1/cache", nil, &list); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(list.Entries) == 0 {
			return mcp.NewToolResultText("The cache is empty."), nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d cached crawls:\n\n", len(list.Entries))
		for _, e := range list.Entries {
			fmt.Fprintf(&sb, "%s  %s  %s\n", e.ID, e.Domain, e.CreatedAt.Format("2006-01-02 15:04:05 MST"))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleLoadCache(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		var resp models.CacheEntryResponse
		if err := c.do(ctx, http.MethodGet, "/api/v1/cache/"+id, nil, &resp); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		e := resp.Entry
		if e == nil {
			return mcp.NewToolResultError("empty cache entry"), nil
		}
		header := fmt.Sprintf("Cached crawl %s of %s (%d pages)\n\n", e.ID, e.SeedURL, e.TotalPages)
		return mcp.NewToolResultText(header + formatPages(e.Results)), nil
	}
}

func handleClearCache(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := c.do(ctx, http.MethodDelete, "/api/v1/cache", nil, nil); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Cache cleared."), nil
	}
}

func formatProgress(p models.Progress) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Crawl %s of %s: %s (%d/%d pages, %d ok, %d failed, %d discovered)\n",
		p.JobID, p.SeedURL, p.State, p.Fetched, p.MaxPages, p.Succeeded, p.Failed, p.Discovered)
	if p.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", p.Error)
	}
	if p.CacheID != "" {
		fmt.Fprintf(&sb, "Cache id: %s\n", p.CacheID)
	}
	if p.CacheWarning != "" {
		fmt.Fprintf(&sb, "Cache warning: %s\n", p.CacheWarning)
	}
	return sb.String()
}

func formatPages(results []models.PageResult) string {
	var sb strings.Builder
	for i, r := range results {
		if !r.Succeeded() {
			fmt.Fprintf(&sb, "--- Page %d: %s FAILED: %s ---\n\n", i+1, r.URL, r.ErrorDetail)
			continue
		}
		content := r.Content
		if len([]rune(content)) > pageExcerpt {
			content = string([]rune(content)[:pageExcerpt]) + "\n[truncated]"
		}
		fmt.Fprintf(&sb, "--- Page %d: %s (%s) ---\n%s\n\n", i+1, r.Title, r.URL, content)
	}
	return sb.String()
}
