package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cacheTimeLayout is the second-resolution part of a cache identifier's
// version suffix; nine digits of nanoseconds follow it.
const cacheTimeLayout = "20060102_150405"

// cacheSuffixLen is len("YYYYMMDD_HHMMSS_nnnnnnnnn").
const cacheSuffixLen = len(cacheTimeLayout) + 10

// CacheEntry is a persisted crawl result keyed by (Domain, CreatedAt).
// Entries are immutable once written.
type CacheEntry struct {
	ID         string       `json:"id"`
	Domain     string       `json:"domain"`
	SeedURL    string       `json:"seed_url"`
	CreatedAt  time.Time    `json:"created_at"`
	TotalPages int          `json:"total_pages"`
	Results    []PageResult `json:"results"`
}

// CacheEntryInfo is the listing view of a cache entry.
type CacheEntryInfo struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes,omitempty"`
}

// NewCacheID builds the identifier "<domain>_<YYYYMMDD_HHMMSS_nnnnnnnnn>".
func NewCacheID(domain string, createdAt time.Time) string {
	t := createdAt.UTC()
	return fmt.Sprintf("%s_%s_%09d", domain, t.Format(cacheTimeLayout), t.Nanosecond())
}

// ParseCacheID splits an identifier back into its domain and creation time.
func ParseCacheID(id string) (string, time.Time, error) {
	n := cacheSuffixLen
	if len(id) < n+2 || id[len(id)-n-1] != '_' {
		return "", time.Time{}, fmt.Errorf("malformed cache id %q", id)
	}
	domain, suffix := id[:len(id)-n-1], id[len(id)-n:]
	if strings.ContainsAny(domain, `/\`) || strings.Contains(domain, "..") {
		return "", time.Time{}, fmt.Errorf("malformed cache id %q", id)
	}
	secs, nanos := suffix[:len(cacheTimeLayout)], suffix[len(cacheTimeLayout)+1:]
	if suffix[len(cacheTimeLayout)] != '_' {
		return "", time.Time{}, fmt.Errorf("malformed cache id %q", id)
	}
	ts, err := time.ParseInLocation(cacheTimeLayout, secs, time.UTC)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("malformed cache id %q: %w", id, err)
	}
	ns, err := strconv.Atoi(nanos)
	if err != nil || ns < 0 {
		return "", time.Time{}, fmt.Errorf("malformed cache id %q", id)
	}
	return domain, ts.Add(time.Duration(ns)), nil
}

// Info returns the listing view of the entry.
func (e CacheEntry) Info() CacheEntryInfo {
	return CacheEntryInfo{ID: e.ID, Domain: e.Domain, CreatedAt: e.CreatedAt}
}
