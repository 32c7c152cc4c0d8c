package models

// CrawlRequest is the payload for POST /api/v1/crawl.
type CrawlRequest struct {
	// HomepageURL is the seed page. Required. "url" is accepted as an alias.
	HomepageURL string `json:"homepage_url"`
	URL         string `json:"url,omitempty"`

	// MaxPages bounds the number of pages fetched. Default comes from config.
	MaxPages int `json:"max_pages,omitempty"`

	// UseCache returns the most recent cached crawl of the same domain
	// instead of starting a new job, when one exists.
	UseCache bool `json:"use_cache,omitempty"`

	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Seed returns the seed URL, preferring HomepageURL.
func (r CrawlRequest) Seed() string {
	if r.HomepageURL != "" {
		return r.HomepageURL
	}
	return r.URL
}
