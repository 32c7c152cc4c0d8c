package models

// ErrorResponse wraps an error for API responses.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// CrawlResponse is the immediate response for POST /api/v1/crawl.
type CrawlResponse struct {
	Success bool     `json:"success"`
	ID      string   `json:"id,omitempty"`
	State   JobState `json:"state,omitempty"`

	// UseCache is true when Cached carries a previous crawl instead of a new job.
	UseCache bool        `json:"use_cache"`
	Cached   *CacheEntry `json:"cached,omitempty"`
}

// ResultsResponse is the response for the results endpoints.
type ResultsResponse struct {
	Success bool         `json:"success"`
	ID      string       `json:"id"`
	State   JobState     `json:"state"`
	Results []PageResult `json:"results"`
	ResultsSummary
}

// CacheListResponse is the response for GET /api/v1/cache.
type CacheListResponse struct {
	Success bool             `json:"success"`
	Entries []CacheEntryInfo `json:"entries"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string         `json:"status"`
	Uptime    string         `json:"uptime"`
	Admission AdmissionStats `json:"admission"`
	Version   string         `json:"version"`
}

// AdmissionStats reports admission controller utilisation.
type AdmissionStats struct {
	MaxConcurrency int     `json:"max_concurrency"`
	InFlight       int     `json:"in_flight"`
	MemoryPercent  float64 `json:"memory_percent"`
}

// ProgressResponse is the response for the progress and cancel endpoints.
type ProgressResponse struct {
	Success bool `json:"success"`
	Progress
}

// CacheEntryResponse is the response for GET /api/v1/cache/:id.
type CacheEntryResponse struct {
	Success bool        `json:"success"`
	Entry   *CacheEntry `json:"entry"`
}

// ClearResponse acknowledges a cache clear.
type ClearResponse struct {
	Success bool `json:"success"`
}
