package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/use-agent/sitecrawl/cache"
	"github.com/use-agent/sitecrawl/cleaner"
	"github.com/use-agent/sitecrawl/config"
	"github.com/use-agent/sitecrawl/crawl"
	"github.com/use-agent/sitecrawl/fetcher"
	"github.com/use-agent/sitecrawl/webhook"
)

// app wires the crawl service and owns its resources.
type app struct {
	cfg     *config.Config
	fetcher *fetcher.PageFetcher
	cache   *cache.Cache
	svc     *crawl.Service
}

func newApp(cfg *config.Config) (*app, error) {
	filter, err := cleaner.NewFilter(cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("init content filter: %w", err)
	}

	cc, err := cache.Open(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	pf, err := fetcher.New(cfg.Fetch, cfg.Browser)
	if err != nil {
		_ = cc.Close()
		return nil, fmt.Errorf("init fetcher: %w", err)
	}

	politeness := crawl.NewPoliteness(cfg.Politeness, crawl.SystemClock())
	admission := crawl.NewAdmission(cfg.Admission, politeness, crawl.SystemMemory{}, nil)

	svc, err := crawl.NewService(cfg.Crawl, crawl.Options{
		Fetcher:       pf,
		Filter:        filter,
		Admission:     admission,
		Cache:         cc,
		Notifier:      webhook.NewNotifier(),
		Logger:        slog.Default(),
		ContentBudget: cfg.Export.ContentBudget,
	})
	if err != nil {
		pf.Close()
		_ = cc.Close()
		return nil, err
	}

	slog.Info("crawl service ready",
		"engine", pf.EngineName(),
		"cache", cfg.Cache.Backend,
		"maxConcurrency", cfg.Admission.MaxConcurrency,
	)
	return &app{cfg: cfg, fetcher: pf, cache: cc, svc: svc}, nil
}

// Close cancels running jobs, waits for them within ctx and releases the
// browser and cache connections.
func (a *app) Close(ctx context.Context) {
	if err := a.svc.Shutdown(ctx); err != nil {
		slog.Warn("crawl jobs did not drain", "error", err)
	}
	a.fetcher.Close()
	if err := a.cache.Close(); err != nil {
		slog.Warn("cache close failed", "error", err)
	}
}
