package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/sitecrawl/cleaner"
	"github.com/use-agent/sitecrawl/config"
)

// Page is a fetched HTML document together with the links found on it.
type Page struct {
	URL      string
	FinalURL string
	HTML     string
	Title    string
	Links    cleaner.Links
	Engine   string
}

// PageFetcher fetches single pages through an Engine and extracts their
// links. It is safe for concurrent use.
type PageFetcher struct {
	engine  Engine
	closers []func()
}

// NewPageFetcher wraps an existing engine.
func NewPageFetcher(engine Engine) *PageFetcher {
	return &PageFetcher{engine: engine}
}

// New builds the engine stack selected by cfg.Engine: "http", "colly",
// "browser" or "auto", which races the robots-aware (or plain HTTP) engine
// against the headless browser.
func New(cfg config.FetchConfig, browserCfg config.BrowserConfig) (*PageFetcher, error) {
	pf := &PageFetcher{}

	light := func() Engine {
		if cfg.RespectRobots {
			return NewCollyEngine(cfg.UserAgent, true)
		}
		return NewHTTPEngine(cfg.UserAgent)
	}

	switch cfg.Engine {
	case "http":
		pf.engine = NewHTTPEngine(cfg.UserAgent)
	case "colly":
		pf.engine = NewCollyEngine(cfg.UserAgent, cfg.RespectRobots)
	case "browser":
		b := NewBrowserEngine(browserCfg, cfg.UserAgent)
		pf.engine = b
		pf.closers = append(pf.closers, b.Close)
	case "auto", "":
		b := NewBrowserEngine(browserCfg, cfg.UserAgent)
		memory := NewDomainMemory(cfg.DomainMemoryTTL)
		pf.engine = NewRacer([]Engine{light(), b}, cfg.EscalationDelays, memory)
		pf.closers = append(pf.closers, b.Close, memory.Stop)
	default:
		return nil, fmt.Errorf("fetcher: unknown engine %q", cfg.Engine)
	}

	slog.Info("fetch engine ready", "engine", pf.engine.Name(), "respectRobots", cfg.RespectRobots)
	return pf, nil
}

// EngineName reports the configured engine.
func (f *PageFetcher) EngineName() string { return f.engine.Name() }

// Fetch retrieves rawURL within timeout. Links are resolved against the
// final URL after redirects.
func (f *PageFetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (*Page, error) {
	res, err := f.engine.Fetch(ctx, &Request{URL: rawURL, Timeout: timeout})
	if err != nil {
		return nil, err
	}

	final := res.FinalURL
	if final == "" {
		final = rawURL
	}
	return &Page{
		URL:      rawURL,
		FinalURL: final,
		HTML:     res.HTML,
		Title:    res.Title,
		Links:    cleaner.ExtractLinks(res.HTML, final),
		Engine:   res.EngineName,
	}, nil
}

// Close releases engine resources such as the browser process.
func (f *PageFetcher) Close() {
	for _, c := range f.closers {
		c()
	}
}
