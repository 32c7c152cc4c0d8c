// Package crawl runs site crawls: it expands a frontier of same-host links
// from a seed page, admits fetches under concurrency, memory and politeness
// limits, filters each page to markdown and persists the finished result set.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/sitecrawl/cache"
	"github.com/use-agent/sitecrawl/cleaner"
	"github.com/use-agent/sitecrawl/config"
	"github.com/use-agent/sitecrawl/export"
	"github.com/use-agent/sitecrawl/fetcher"
	"github.com/use-agent/sitecrawl/models"
	"github.com/use-agent/sitecrawl/simhash"
)

// Fetcher retrieves one page within timeout.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, timeout time.Duration) (*fetcher.Page, error)
}

// Notifier is told about every job that reaches a terminal state.
type Notifier interface {
	Notify(p models.Progress, url, secret string)
}

// Options are the collaborators of a Service. Fetcher, Filter, Admission
// and Cache are required.
type Options struct {
	Fetcher       Fetcher
	Filter        cleaner.ContentFilter
	Admission     *Admission
	Cache         *cache.Cache
	Notifier      Notifier
	Clock         Clock
	NewID         func() string
	Logger        *slog.Logger
	ContentBudget int
}

// SubmitRequest describes a crawl to start.
type SubmitRequest struct {
	SeedURL       string
	MaxPages      int
	WebhookURL    string
	WebhookSecret string
}

// Service owns the job registry and runs crawl jobs in the background.
type Service struct {
	cfg  config.CrawlConfig
	opts Options

	registry *Registry
	logger   *slog.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewService validates opts and fills in defaults.
func NewService(cfg config.CrawlConfig, opts Options) (*Service, error) {
	switch {
	case opts.Fetcher == nil:
		return nil, errors.New("crawl: fetcher is required")
	case opts.Filter == nil:
		return nil, errors.New("crawl: content filter is required")
	case opts.Admission == nil:
		return nil, errors.New("crawl: admission controller is required")
	case opts.Cache == nil:
		return nil, errors.New("crawl: result cache is required")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.NewID == nil {
		opts.NewID = newJobID
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if cfg.MaxPagesLimit < 1 {
		cfg.MaxPagesLimit = 100
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 30 * time.Second
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Service{
		cfg:      cfg,
		opts:     opts,
		registry: NewRegistry(cfg.JobRetention),
		logger:   opts.Logger,
		baseCtx:  ctx,
		stop:     stop,
	}, nil
}

// newJobID returns a time-ordered UUIDv7.
func newJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ValidateSeed checks that raw is an absolute http(s) URL.
func ValidateSeed(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, models.NewCrawlError(models.ErrCodeInvalidURL,
			fmt.Sprintf("%q is not an absolute http(s) URL", raw), err)
	}
	return u, nil
}

// Submit validates req, registers a new current job and starts it.
func (s *Service) Submit(req SubmitRequest) (*Job, error) {
	u, err := ValidateSeed(req.SeedURL)
	if err != nil {
		return nil, err
	}
	if req.MaxPages < 1 || req.MaxPages > s.cfg.MaxPagesLimit {
		return nil, models.NewCrawlError(models.ErrCodeInvalidRange,
			fmt.Sprintf("max_pages must be between 1 and %d", s.cfg.MaxPagesLimit), nil)
	}

	frontier, err := NewFrontier(u.String(), req.MaxPages)
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeInvalidURL, err.Error(), err)
	}
	seed, _ := Normalize(u.String())

	ctx, cancel := context.WithCancel(s.baseCtx)
	now := s.opts.Clock.Now().UTC()
	j := &Job{
		id:            s.opts.NewID(),
		seed:          seed,
		domain:        strings.ToLower(u.Hostname()),
		maxPages:      req.MaxPages,
		webhookURL:    req.WebhookURL,
		webhookSecret: req.WebhookSecret,
		frontier:      frontier,
		dupes:         simhash.NewIndex(s.cfg.DuplicateDistance),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	j.progress = newReporter(models.Progress{
		JobID:     j.id,
		SeedURL:   seed,
		State:     models.JobPending,
		MaxPages:  req.MaxPages,
		Counters:  models.Counters{Discovered: frontier.Offered()},
		StartedAt: now,
	}, s.opts.Clock)

	s.registry.Add(j)
	s.logger.Info("crawl submitted", "job_id", j.id, "seed", seed, "maxPages", req.MaxPages)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(j)
	}()
	return j, nil
}

// Job returns the job with id, or the current job when id is empty.
func (s *Service) Job(id string) (*Job, error) {
	return s.registry.Get(id)
}

// Jobs returns the retained jobs, newest first.
func (s *Service) Jobs() []*Job {
	return s.registry.List()
}

// Progress returns the progress of job id (current job when empty).
func (s *Service) Progress(id string) (models.Progress, error) {
	j, err := s.registry.Get(id)
	if err != nil {
		return models.Progress{}, err
	}
	return j.Progress(), nil
}

// Results returns the results of job id in completion order.
func (s *Service) Results(id string) ([]models.PageResult, error) {
	j, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return j.Results(), nil
}

// ExportCSV writes the results of job id as CSV.
func (s *Service) ExportCSV(id string, w io.Writer) error {
	results, err := s.Results(id)
	if err != nil {
		return err
	}
	return export.WriteCSV(w, results, s.opts.ContentBudget)
}

// Cancel stops dispatch for job id. Cancelling a finished job is a conflict.
func (s *Service) Cancel(id string) (models.Progress, error) {
	j, err := s.registry.Get(id)
	if err != nil {
		return models.Progress{}, err
	}
	if !j.Cancel() {
		return j.Progress(), models.NewCrawlError(models.ErrCodeConflict, "crawl job "+j.id+" already finished", nil)
	}
	s.logger.Info("crawl cancel requested", "job_id", j.id)
	return j.Progress(), nil
}

// Wait blocks until job id finishes or ctx is done.
func (s *Service) Wait(ctx context.Context, id string) (models.Progress, error) {
	j, err := s.registry.Get(id)
	if err != nil {
		return models.Progress{}, err
	}
	select {
	case <-j.Done():
		return j.Progress(), nil
	case <-ctx.Done():
		return j.Progress(), ctx.Err()
	}
}

func (s *Service) ListCache(ctx context.Context) ([]models.CacheEntryInfo, error) {
	return s.opts.Cache.List(ctx)
}

func (s *Service) LoadCache(ctx context.Context, id string) (*models.CacheEntry, error) {
	return s.opts.Cache.Load(ctx, id)
}

func (s *Service) ClearCache(ctx context.Context) error {
	return s.opts.Cache.Clear(ctx)
}

// LatestCache returns the newest cache entry for the host of seedURL.
func (s *Service) LatestCache(ctx context.Context, seedURL string) (*models.CacheEntry, error) {
	u, err := ValidateSeed(seedURL)
	if err != nil {
		return nil, err
	}
	return s.opts.Cache.Latest(ctx, strings.ToLower(u.Hostname()))
}

// AdmissionStats reports the shared admission controller.
func (s *Service) AdmissionStats() models.AdmissionStats {
	return s.opts.Admission.Stats()
}

// Shutdown cancels running jobs and waits for them to drain.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
