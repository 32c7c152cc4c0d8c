package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/sitecrawl/config"
	"github.com/ysmood/gson"
)

// Page retirement limits.
const (
	retireErrScore = 3.0
	retireUses     = 50
	retireAge      = 50 * time.Minute
)

// pageHealth tracks how a pooled tab has behaved.
type pageHealth struct {
	errScore float64
	uses     int
	created  time.Time
}

func (h *pageHealth) record(ok bool) {
	h.uses++
	if ok {
		h.errScore = math.Max(0, h.errScore-0.5)
	} else {
		h.errScore++
	}
}

func (h *pageHealth) retire(now time.Time) bool {
	return h.errScore >= retireErrScore || h.uses >= retireUses || now.Sub(h.created) >= retireAge
}

// BrowserEngine renders pages in headless Chrome. The browser is launched on
// first use so crawls that never need JavaScript never start Chrome.
type BrowserEngine struct {
	cfg       config.BrowserConfig
	userAgent string

	mu      sync.Mutex
	browser *rod.Browser
	pool    rod.Pool[rod.Page]
	health  map[*rod.Page]*pageHealth
}

// NewBrowserEngine creates a BrowserEngine. Chrome is not started yet.
func NewBrowserEngine(cfg config.BrowserConfig, userAgent string) *BrowserEngine {
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 1
	}
	return &BrowserEngine{
		cfg:       cfg,
		userAgent: userAgent,
		health:    make(map[*rod.Page]*pageHealth),
	}
}

func (e *BrowserEngine) Name() string { return "browser" }

// launch starts Chrome if it is not running yet.
func (e *BrowserEngine) launch() (*rod.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser != nil {
		return e.browser, nil
	}

	l := launcher.New().
		Headless(e.cfg.Headless).
		NoSandbox(e.cfg.NoSandbox)
	if e.cfg.BrowserBin != "" {
		l = l.Bin(e.cfg.BrowserBin)
	}
	if e.cfg.Proxy != "" {
		l = l.Proxy(e.cfg.Proxy)
	}
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	slog.Info("browser launched", "controlURL", controlURL, "poolSize", e.cfg.PoolSize)

	e.browser = browser
	e.pool = rod.NewPagePool(e.cfg.PoolSize)
	return browser, nil
}

// acquire borrows a stealth tab from the pool.
func (e *BrowserEngine) acquire() (*rod.Page, error) {
	browser, err := e.launch()
	if err != nil {
		return nil, err
	}
	page, err := e.pool.Get(func() (*rod.Page, error) {
		p, err := stealth.Page(browser)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		e.health[p] = &pageHealth{created: time.Now()}
		e.mu.Unlock()
		return p, nil
	})
	if err != nil {
		e.pool.Put(nil)
		return nil, fmt.Errorf("browser: acquire page: %w", err)
	}
	return page, nil
}

// release returns page to the pool, closing it instead when it has
// accumulated too many failures or uses.
func (e *BrowserEngine) release(page *rod.Page, ok bool) {
	if navErr := page.Navigate("about:blank"); navErr != nil {
		ok = false
	}

	e.mu.Lock()
	h := e.health[page]
	retire := h == nil
	if h != nil {
		h.record(ok)
		retire = h.retire(time.Now())
	}
	if retire {
		delete(e.health, page)
	}
	e.mu.Unlock()

	if retire {
		slog.Debug("browser: retiring page")
		_ = page.Close()
		// A nil slot lets the pool create a fresh tab on the next Get.
		e.pool.Put(nil)
		return
	}
	e.pool.Put(page)
}

func (e *BrowserEngine) Fetch(ctx context.Context, req *Request) (res *Result, err error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	page, err := e.acquire()
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: req.URL, Err: err}
	}
	defer func() { e.release(page, err == nil) }()

	headers := map[string]string{"User-Agent": e.userAgent}
	if u, perr := url.Parse(req.URL); perr == nil {
		headers["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
	}
	for k, v := range req.Headers {
		headers[k] = v
	}
	_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}.Call(page)

	if router := blockRequests(page, e.cfg.BlockedResourceTypes, e.cfg.BlockAds); router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)
	if err := p.Navigate(req.URL); err != nil {
		return nil, transportError(req.URL, contextOr(ctx, err))
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("browser: DOM did not settle, using current DOM", "url", req.URL, "error", err)
	}

	status := 0
	if v, evalErr := p.Eval(`() => {
		try {
			const nav = performance.getEntriesByType("navigation");
			if (nav.length > 0) return nav[0].responseStatus || 0;
		} catch (e) {}
		return 0;
	}`); evalErr == nil {
		status = v.Value.Int()
	}
	if status >= 400 {
		return nil, statusError(req.URL, status)
	}

	rawHTML, err := p.HTML()
	if err != nil {
		return nil, transportError(req.URL, contextOr(ctx, err))
	}

	finalURL := evalString(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}
	return &Result{
		HTML:       rawHTML,
		Title:      evalString(p, `() => document.title`),
		StatusCode: status,
		FinalURL:   finalURL,
		EngineName: e.Name(),
	}, nil
}

// Close drains the tab pool and kills Chrome if it was launched.
func (e *BrowserEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser == nil {
		return
	}
	e.pool.Cleanup(func(p *rod.Page) { _ = p.Close() })
	if err := e.browser.Close(); err != nil {
		slog.Warn("browser: close failed", "error", err)
	}
	e.browser = nil
	slog.Info("browser closed")
}

// contextOr prefers the context's error so deadlines classify as timeouts.
func contextOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func evalString(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts plain headers to the CDP header map.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
