package crawl

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/sitecrawl/cleaner"
	"github.com/use-agent/sitecrawl/fetcher"
	"github.com/use-agent/sitecrawl/metrics"
	"github.com/use-agent/sitecrawl/models"
)

// cacheWriteTimeout bounds the final cache write.
const cacheWriteTimeout = 30 * time.Second

// run drives j from Pending to a terminal state.
func (s *Service) run(j *Job) {
	defer close(j.done)
	defer s.finish(j)
	log := s.logger.With("job_id", j.id, "seed", j.seed)

	if j.cancelled() || !j.transition(models.JobDiscovering, "") {
		j.transition(models.JobCancelled, "")
		return
	}

	// ── 1. Seed page ─────────────────────────────────────────────────
	seed, _ := j.frontier.Next()
	if err := s.opts.Admission.Acquire(j.ctx, j.domain); err != nil {
		s.stopEarly(j, err, log)
		return
	}
	j.frontier.MarkDispatched(seed)
	j.dispatched()
	res, links, outcome := s.fetchPage(j, seed)
	s.opts.Admission.Release(j.domain, outcome)
	j.frontier.MarkDone(seed)

	if !res.Succeeded() {
		j.abandon()
		log.Warn("seed fetch failed", "error", res.ErrorDetail)
		j.transition(models.JobFailed, "seed fetch failed: "+res.ErrorDetail)
		return
	}
	for _, l := range links {
		j.frontier.Offer(l)
	}
	j.record(res)

	if j.cancelled() {
		s.persist(j, log)
		j.transition(models.JobCancelled, "")
		return
	}

	// ── 2. Fetch the frontier ────────────────────────────────────────
	j.transition(models.JobFetching, "")
	err := s.fetchAll(j)

	switch {
	case j.cancelled():
		s.persist(j, log)
		j.transition(models.JobCancelled, "")
	case err != nil:
		log.Error("crawl aborted", "error", err)
		s.persist(j, log)
		j.transition(models.JobFailed, err.Error())
	default:
		// ── 3. Finalize ──────────────────────────────────────────────
		j.transition(models.JobFinalizing, "")
		s.persist(j, log)
		if j.cancelled() {
			j.transition(models.JobCancelled, "")
		} else {
			j.transition(models.JobCompleted, "")
		}
	}
}

// stopEarly ends a job whose seed never got an admission slot.
func (s *Service) stopEarly(j *Job, err error, log *slog.Logger) {
	if j.cancelled() {
		j.transition(models.JobCancelled, "")
		return
	}
	log.Error("crawl aborted before seed fetch", "error", err)
	j.transition(models.JobFailed, err.Error())
}

// fetchAll dispatches frontier URLs until the frontier is exhausted, the job
// is cancelled or admission fails. In-flight fetches always drain before it
// returns. The returned error is the admission failure, if any.
func (s *Service) fetchAll(j *Job) error {
	completed := make(chan struct{}, j.maxPages)
	var (
		wg      sync.WaitGroup
		stopErr error
	)

	for !j.cancelled() {
		u, ok := j.frontier.Next()
		if !ok {
			if j.frontier.Exhausted() {
				break
			}
			select {
			case <-completed:
			case <-j.ctx.Done():
			}
			continue
		}

		if err := s.opts.Admission.Acquire(j.ctx, j.domain); err != nil {
			if !j.cancelled() {
				stopErr = err
			}
			break
		}
		j.frontier.MarkDispatched(u)
		j.dispatched()

		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			res, links, outcome := s.fetchPage(j, u)
			s.opts.Admission.Release(j.domain, outcome)
			for _, l := range links {
				j.frontier.Offer(l)
			}
			j.record(res)
			j.frontier.MarkDone(u)
			completed <- struct{}{}
		}(u)
	}

	wg.Wait()
	return stopErr
}

// fetchPage fetches and filters one URL. It always yields a PageResult; on
// success it also returns the page's same-host links. The fetch is detached
// from job cancellation so a cancelled job still drains its in-flight pages.
func (s *Service) fetchPage(j *Job, u string) (models.PageResult, []string, Outcome) {
	timeout := s.cfg.PageTimeout
	ctx, cancel := context.WithTimeout(context.WithoutCancel(j.ctx), timeout)
	defer cancel()

	type reply struct {
		page *fetcher.Page
		err  error
	}
	replies := make(chan reply, 1)
	go func() {
		page, err := s.opts.Fetcher.Fetch(ctx, u, timeout)
		replies <- reply{page, err}
	}()

	var r reply
	select {
	case r = <-replies:
	case <-s.opts.Clock.After(timeout):
		r.err = context.DeadlineExceeded
	}

	now := s.opts.Clock.Now().UTC()
	if r.err == nil && r.page == nil {
		r.err = errors.New("fetcher returned no page")
	}
	if r.err != nil {
		detail, limited := classify(r.err)
		metrics.ObservePage(u, string(models.PageError))
		s.logger.Debug("page fetch failed", "job_id", j.id, "url", u, "error", detail)
		outcome := OutcomeFailure
		if limited {
			outcome = OutcomeRateLimited
		}
		return models.PageResult{
			URL:         u,
			Status:      models.PageError,
			ErrorDetail: detail,
			FetchedAt:   now,
		}, nil, outcome
	}

	page := r.page
	filtered := s.opts.Filter.Filter(page.HTML, page.FinalURL)
	title := strings.TrimSpace(page.Title)
	if title == "" {
		title = cleaner.ExtractTitle(page.HTML)
	}
	res := models.PageResult{
		URL:       u,
		Title:     title,
		Content:   filtered.Markdown,
		WordCount: filtered.WordCount,
		Status:    models.PageSuccess,
		FetchedAt: now,
		Engine:    page.Engine,
	}
	if filtered.Markdown != "" {
		res.Language = cleaner.DetectLanguage(cleaner.PlainText(filtered.Markdown))
		res.DuplicateOf = j.dupes.Check(u, filtered.Markdown)
	}
	metrics.ObservePage(u, string(models.PageSuccess))
	return res, page.Links.Internal, OutcomeSuccess
}

// classify turns a fetch error into the recorded error detail and reports
// whether the site signalled rate limiting.
func classify(err error) (string, bool) {
	switch fetcher.KindOf(err) {
	case fetcher.KindTimeout:
		return "timeout", false
	case fetcher.KindRateLimited:
		return err.Error(), true
	}
	return err.Error(), false
}

// persist writes the job's results to the cache. Jobs without results are
// not persisted. A failed write is reported on the job, not returned.
func (s *Service) persist(j *Job, log *slog.Logger) {
	results := j.Results()
	if len(results) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer cancel()

	entry := &models.CacheEntry{
		Domain:    j.domain,
		SeedURL:   j.seed,
		CreatedAt: s.opts.Clock.Now().UTC(),
		Results:   results,
	}
	id, err := s.opts.Cache.Save(ctx, entry)
	if err != nil {
		log.Warn("cache write failed", "error", err)
		j.setCache("", err.Error())
		return
	}
	log.Info("results cached", "cache_id", id, "pages", len(results))
	j.setCache(id, "")
}

// finish reports a terminal job.
func (s *Service) finish(j *Job) {
	p := j.Progress()
	metrics.ObserveJob(string(p.State))
	s.logger.Info("crawl finished",
		"job_id", j.id,
		"state", p.State,
		"fetched", p.Fetched,
		"succeeded", p.Succeeded,
		"failed", p.Failed,
		"discovered", p.Discovered,
		"cache_id", p.CacheID,
	)
	if j.webhookURL != "" && s.opts.Notifier != nil {
		s.opts.Notifier.Notify(p, j.webhookURL, j.webhookSecret)
	}
}
