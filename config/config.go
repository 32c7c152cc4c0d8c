package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Crawl      CrawlConfig
	Admission  AdmissionConfig
	Politeness PolitenessConfig
	Filter     FilterConfig
	Fetch      FetchConfig
	Browser    BrowserConfig
	Cache      CacheConfig
	Export     ExportConfig
	Metrics    MetricsConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// ShutdownTimeout bounds graceful HTTP draining.
	ShutdownTimeout time.Duration // default: 5s
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting of the API.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"

	// File, when set, receives logs through a rotating writer.
	File       string
	MaxSizeMB  int // default: 50
	MaxBackups int // default: 5
}

// CrawlConfig controls crawl jobs.
type CrawlConfig struct {
	// DefaultMaxPages applies when a request omits max_pages.
	DefaultMaxPages int // default: 30

	// MaxPagesLimit is the upper bound accepted for max_pages.
	MaxPagesLimit int // default: 100

	// PageTimeout is the per-page fetch deadline.
	PageTimeout time.Duration // default: 30s

	// JobRetention is how many jobs the registry keeps.
	JobRetention int // default: 50

	// DuplicateDistance is the simhash Hamming distance under which two
	// pages of a job are marked as near-duplicates. Negative disables.
	DuplicateDistance int // default: 3
}

// AdmissionConfig controls the fetch admission controller.
type AdmissionConfig struct {
	// MaxConcurrency is the ceiling on simultaneous fetches.
	MaxConcurrency int // default: 5

	// MemoryThresholdPercent is the system memory usage above which no new
	// fetch is admitted.
	MemoryThresholdPercent float64 // default: 80

	// PollInterval is how often a blocked acquire re-checks.
	PollInterval time.Duration // default: 500ms

	// MaxWait bounds sustained memory pressure before the job fails.
	MaxWait time.Duration // default: 2m
}

// PolitenessConfig controls per-domain pacing.
type PolitenessConfig struct {
	MinDelay      time.Duration // default: 1s
	MaxDelay      time.Duration // default: 3s
	BackoffFactor float64       // default: 2
	MaxBackoff    time.Duration // default: 60s
}

// FilterConfig controls the content filter.
type FilterConfig struct {
	// Strategy is "pruning" or "readability".
	Strategy string // default: "pruning"

	// Threshold is the block score cutoff.
	Threshold float64 // default: 0.45

	// ThresholdType is "fixed" or "dynamic".
	ThresholdType string // default: "dynamic"

	// Quantile is the score quantile used by the dynamic threshold.
	Quantile float64 // default: 0.5

	// MinWords drops blocks with fewer words regardless of score.
	MinWords int // default: 10

	// ExcludedTags are removed before scoring.
	ExcludedTags []string // default: [nav, footer, header, aside]

	// LinkStyle is "inline" or "citations".
	LinkStyle string // default: "inline"
}

// FetchConfig controls the page fetcher.
type FetchConfig struct {
	// Engine is "auto", "http", "colly" or "browser".
	Engine string // default: "auto"

	UserAgent string

	// RespectRobots makes the colly engine honour robots.txt.
	RespectRobots bool // default: true

	// EscalationDelays is the staged start delay per engine in auto mode.
	EscalationDelays []time.Duration // default: [0s, 2s]

	// DomainMemoryTTL is how long a winning engine is remembered per domain.
	DomainMemoryTTL time.Duration // default: 24h
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// PoolSize is the page pool capacity (max concurrent tabs).
	PoolSize int // default: 5

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	Proxy string

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string

	BlockAds bool // default: true
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	// Backend is "fs", "redis" or "memory".
	Backend string // default: "fs"

	// Dir is the cache directory of the fs backend.
	Dir string // default: "cache"

	RedisAddr     string // default: "localhost:6379"
	RedisPassword string
	RedisDB       int
	RedisPrefix   string // default: "sitecrawl:cache:"

	// MaxEntries caps the memory backend.
	MaxEntries int // default: 100
}

// ExportConfig controls CSV export.
type ExportConfig struct {
	// ContentBudget is the maximum number of characters of content per row.
	ContentBudget int // default: 1000
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool // default: true
}

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory, when present, is loaded first and
// never overrides variables already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Host:            envOr("SITECRAWL_HOST", "0.0.0.0"),
			Port:            envIntOr("SITECRAWL_PORT", 8080),
			Mode:            envOr("SITECRAWL_MODE", "release"),
			ShutdownTimeout: envDurationOr("SITECRAWL_SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("SITECRAWL_AUTH_ENABLED", false),
			APIKeys: envSliceOr("SITECRAWL_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SITECRAWL_RATE_RPS", 5.0),
			Burst:             envIntOr("SITECRAWL_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:      envOr("SITECRAWL_LOG_LEVEL", "info"),
			Format:     envOr("SITECRAWL_LOG_FORMAT", "json"),
			File:       os.Getenv("SITECRAWL_LOG_FILE"),
			MaxSizeMB:  envIntOr("SITECRAWL_LOG_MAX_SIZE_MB", 50),
			MaxBackups: envIntOr("SITECRAWL_LOG_MAX_BACKUPS", 5),
		},
		Crawl: CrawlConfig{
			DefaultMaxPages:   envIntOr("SITECRAWL_DEFAULT_MAX_PAGES", 30),
			MaxPagesLimit:     envIntOr("SITECRAWL_MAX_PAGES_LIMIT", 100),
			PageTimeout:       envDurationOr("SITECRAWL_PAGE_TIMEOUT", 30*time.Second),
			JobRetention:      envIntOr("SITECRAWL_JOB_RETENTION", 50),
			DuplicateDistance: envIntOr("SITECRAWL_DUPLICATE_DISTANCE", 3),
		},
		Admission: AdmissionConfig{
			MaxConcurrency:         envIntOr("SITECRAWL_MAX_CONCURRENCY", 5),
			MemoryThresholdPercent: envFloatOr("SITECRAWL_MEMORY_THRESHOLD", 80.0),
			PollInterval:           envDurationOr("SITECRAWL_ADMISSION_POLL", 500*time.Millisecond),
			MaxWait:                envDurationOr("SITECRAWL_ADMISSION_MAX_WAIT", 2*time.Minute),
		},
		Politeness: PolitenessConfig{
			MinDelay:      envDurationOr("SITECRAWL_POLITENESS_MIN", 1*time.Second),
			MaxDelay:      envDurationOr("SITECRAWL_POLITENESS_MAX", 3*time.Second),
			BackoffFactor: envFloatOr("SITECRAWL_BACKOFF_FACTOR", 2.0),
			MaxBackoff:    envDurationOr("SITECRAWL_MAX_BACKOFF", 60*time.Second),
		},
		Filter: FilterConfig{
			Strategy:      envOr("SITECRAWL_FILTER", "pruning"),
			Threshold:     envFloatOr("SITECRAWL_FILTER_THRESHOLD", 0.45),
			ThresholdType: envOr("SITECRAWL_FILTER_THRESHOLD_TYPE", "dynamic"),
			Quantile:      envFloatOr("SITECRAWL_FILTER_QUANTILE", 0.5),
			MinWords:      envIntOr("SITECRAWL_FILTER_MIN_WORDS", 10),
			ExcludedTags: envSliceOr("SITECRAWL_FILTER_EXCLUDED_TAGS", []string{
				"nav", "footer", "header", "aside",
			}),
			LinkStyle: envOr("SITECRAWL_LINK_STYLE", "inline"),
		},
		Fetch: FetchConfig{
			Engine:           envOr("SITECRAWL_ENGINE", "auto"),
			UserAgent:        envOr("SITECRAWL_USER_AGENT", defaultUserAgent),
			RespectRobots:    envBoolOr("SITECRAWL_RESPECT_ROBOTS", true),
			EscalationDelays: envDurationSliceOr("SITECRAWL_ESCALATION_DELAYS", []time.Duration{0, 2 * time.Second}),
			DomainMemoryTTL:  envDurationOr("SITECRAWL_DOMAIN_MEMORY_TTL", 24*time.Hour),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("SITECRAWL_HEADLESS", true),
			PoolSize:   envIntOr("SITECRAWL_BROWSER_POOL", 5),
			NoSandbox:  envBoolOr("SITECRAWL_NO_SANDBOX", false),
			BrowserBin: os.Getenv("SITECRAWL_BROWSER_BIN"),
			Proxy:      os.Getenv("SITECRAWL_PROXY"),
			BlockedResourceTypes: envSliceOr("SITECRAWL_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
			BlockAds: envBoolOr("SITECRAWL_BLOCK_ADS", true),
		},
		Cache: CacheConfig{
			Backend:       envOr("SITECRAWL_CACHE_BACKEND", "fs"),
			Dir:           envOr("SITECRAWL_CACHE_DIR", "cache"),
			RedisAddr:     envOr("SITECRAWL_REDIS_ADDR", "localhost:6379"),
			RedisPassword: os.Getenv("SITECRAWL_REDIS_PASSWORD"),
			RedisDB:       envIntOr("SITECRAWL_REDIS_DB", 0),
			RedisPrefix:   envOr("SITECRAWL_REDIS_PREFIX", "sitecrawl:cache:"),
			MaxEntries:    envIntOr("SITECRAWL_CACHE_MAX_ENTRIES", 100),
		},
		Export: ExportConfig{
			ContentBudget: envIntOr("SITECRAWL_CSV_CONTENT_BUDGET", 1000),
		},
		Metrics: MetricsConfig{
			Enabled: envBoolOr("SITECRAWL_METRICS_ENABLED", true),
		},
	}, nil
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

func envDurationSliceOr(key string, fallback []time.Duration) []time.Duration {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]time.Duration, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				if d, err := time.ParseDuration(trimmed); err == nil {
					result = append(result, d)
				}
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
