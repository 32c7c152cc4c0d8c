package models

import "time"

// PageStatus is the outcome of a single page fetch.
type PageStatus string

const (
	PageSuccess PageStatus = "success"
	PageError   PageStatus = "error"
)

// PageResult is the per-URL outcome of a crawl. Exactly one is produced for
// every fetch attempt, successful or not.
type PageResult struct {
	URL   string `json:"url"`
	Title string `json:"title"`

	// Content is the filtered markdown. Empty for failed pages.
	Content   string `json:"content"`
	WordCount int    `json:"word_count"`

	Status PageStatus `json:"status"`

	// ErrorDetail explains a failed fetch ("timeout", "rate_limited: ...").
	ErrorDetail string `json:"error_detail,omitempty"`

	FetchedAt time.Time `json:"fetched_at"`

	// Language is the ISO 639-3 code of the content, when detectable.
	Language string `json:"language,omitempty"`

	// Engine names the fetch engine that produced the page.
	Engine string `json:"engine,omitempty"`

	// DuplicateOf points at an earlier page of the same job whose content
	// is a near-duplicate of this one.
	DuplicateOf string `json:"duplicate_of,omitempty"`
}

// Succeeded reports whether the page was fetched and filtered.
func (p PageResult) Succeeded() bool {
	return p.Status == PageSuccess
}

// ResultsSummary counts successes and failures in a result list.
type ResultsSummary struct {
	TotalPages      int `json:"total_pages"`
	SuccessfulPages int `json:"successful_pages"`
	ErrorPages      int `json:"error_pages"`
}

// Summarize tallies results.
func Summarize(results []PageResult) ResultsSummary {
	s := ResultsSummary{TotalPages: len(results)}
	for _, r := range results {
		if r.Succeeded() {
			s.SuccessfulPages++
		} else {
			s.ErrorPages++
		}
	}
	return s
}
