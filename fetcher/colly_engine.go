package fetcher

import (
	"context"
	"errors"
	"net/http"

	"github.com/gocolly/colly/v2"
)

// CollyEngine fetches through a colly collector so robots.txt rules are
// honoured. Clones share the collector's robots cache and HTTP backend.
type CollyEngine struct {
	base *colly.Collector
}

// NewCollyEngine creates a CollyEngine. When respectRobots is false the
// engine behaves like a plain HTTP client.
func NewCollyEngine(userAgent string, respectRobots bool) *CollyEngine {
	c := colly.NewCollector(colly.UserAgent(userAgent))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = !respectRobots
	return &CollyEngine{base: c}
}

func (e *CollyEngine) Name() string { return "colly" }

func (e *CollyEngine) Fetch(ctx context.Context, req *Request) (*Result, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	c := e.base.Clone()
	c.Context = ctx

	var (
		result *Result
		status int
	)
	c.OnRequest(func(r *colly.Request) {
		for k, v := range req.Headers {
			r.Headers.Set(k, v)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		ct := r.Headers.Get("Content-Type")
		body := string(r.Body)
		result = &Result{
			HTML:        body,
			Title:       extractTitle(body),
			StatusCode:  r.StatusCode,
			FinalURL:    r.Request.URL.String(),
			ContentType: ct,
			EngineName:  e.Name(),
		}
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	err := c.Visit(req.URL)
	switch {
	case errors.Is(err, colly.ErrRobotsTxtBlocked):
		return nil, &FetchError{Kind: KindBlocked, URL: req.URL, Detail: "disallowed by robots.txt"}
	case err != nil && status >= http.StatusBadRequest:
		return nil, statusError(req.URL, status)
	case err != nil:
		if ctx.Err() != nil {
			return nil, transportError(req.URL, ctx.Err())
		}
		return nil, transportError(req.URL, err)
	case result == nil:
		return nil, &FetchError{Kind: KindNetwork, URL: req.URL, Detail: "empty response"}
	}

	if !isHTMLContentType(result.ContentType) {
		return nil, &FetchError{Kind: KindNonHTML, URL: req.URL, StatusCode: result.StatusCode, Detail: result.ContentType}
	}
	return result, nil
}
