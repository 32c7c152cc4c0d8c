// Command sitecrawl-mcp exposes the sitecrawl HTTP API as MCP tools over
// stdio.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("SITECRAWL_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	c := &apiClient{
		baseURL: apiURL,
		apiKey:  os.Getenv("SITECRAWL_API_KEY"),
		http:    &http.Client{Timeout: 60 * time.Second},
		poll:    2 * time.Second,
	}

	if err := server.ServeStdio(newServer(c)); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(c *apiClient) *server.MCPServer {
	s := server.NewMCPServer(
		"sitecrawl",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("crawl_site",
		mcp.WithDescription("Crawl a website breadth-first from a homepage URL, following same-host links, and return the main content of every page as markdown. Waits until the crawl finishes."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The homepage URL to start from"),
		),
		mcp.WithNumber("max_pages",
			mcp.Description("Maximum number of pages to fetch (default: server setting, max: 100)"),
		),
		mcp.WithBoolean("use_cache",
			mcp.Description("Return the most recent cached crawl of the same site instead of crawling again, when one exists"),
		),
	), handleCrawlSite(c))

	s.AddTool(mcp.NewTool("crawl_progress",
		mcp.WithDescription("Report the state and page counters of a crawl job."),
		mcp.WithString("id",
			mcp.Description("Crawl job id (default: the most recently submitted job)"),
		),
	), handleCrawlProgress(c))

	s.AddTool(mcp.NewTool("list_cache",
		mcp.WithDescription("List cached crawls, most recent first."),
	), handleListCache(c))

	s.AddTool(mcp.NewTool("load_cache",
		mcp.WithDescription("Load the pages of a cached crawl."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Cache entry id as returned by list_cache"),
		),
	), handleLoadCache(c))

	s.AddTool(mcp.NewTool("clear_cache",
		mcp.WithDescription("Delete every cached crawl."),
	), handleClearCache(c))

	return s
}
