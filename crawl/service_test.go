package crawl

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/sitecrawl/cache"
	"github.com/use-agent/sitecrawl/cleaner"
	"github.com/use-agent/sitecrawl/config"
	"github.com/use-agent/sitecrawl/export"
	"github.com/use-agent/sitecrawl/fetcher"
	"github.com/use-agent/sitecrawl/models"
)

const site = "https://example.com"

// fakePage is one page of fakeSite.
type fakePage struct {
	body     string
	links    []string
	external []string
	err      error
	delay    time.Duration
	block    chan struct{}
}

// fakeSite serves pages from memory and counts fetches per URL.
type fakeSite struct {
	mu    sync.Mutex
	pages map[string]fakePage
	calls map[string]int
}

func newFakeSite(pages map[string]fakePage) *fakeSite {
	return &fakeSite{pages: pages, calls: make(map[string]int)}
}

func (f *fakeSite) Fetch(ctx context.Context, rawURL string, _ time.Duration) (*fetcher.Page, error) {
	f.mu.Lock()
	p, ok := f.pages[rawURL]
	f.calls[rawURL]++
	f.mu.Unlock()

	if !ok {
		return nil, &fetcher.FetchError{Kind: fetcher.KindHTTPStatus, URL: rawURL, StatusCode: 404}
	}
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	body := p.body
	if body == "" {
		body = "Content of " + rawURL + " describing the section in plenty of distinct words"
	}
	html := fmt.Sprintf("<html><head><title>%s</title></head><body><p>%s</p></body></html>", rawURL, body)
	return &fetcher.Page{
		URL:      rawURL,
		FinalURL: rawURL,
		HTML:     html,
		Links:    cleaner.Links{Internal: p.links, External: p.external},
		Engine:   "fake",
	}, nil
}

func (f *fakeSite) Calls(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[rawURL]
}

func (f *fakeSite) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// paragraphFilter keeps the text of the first paragraph.
type paragraphFilter struct{}

func (paragraphFilter) Filter(rawHTML, _ string) cleaner.FilterResult {
	_, rest, ok := strings.Cut(rawHTML, "<p>")
	if !ok {
		return cleaner.FilterResult{}
	}
	text, _, _ := strings.Cut(rest, "</p>")
	return cleaner.FilterResult{Markdown: text, WordCount: cleaner.WordCount(text)}
}

type failingStore struct{ cache.Store }

func (failingStore) Put(context.Context, *models.CacheEntry) error {
	return errors.New("disk full")
}

type recordingNotifier struct {
	mu   sync.Mutex
	seen []models.Progress
}

func (n *recordingNotifier) Notify(p models.Progress, _, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, p)
}

type testSetup struct {
	crawl      config.CrawlConfig
	admission  config.AdmissionConfig
	memory     *fakeMemory
	politeness *Politeness
	store      cache.Store
	notifier   Notifier
}

func newTestService(t *testing.T, f Fetcher, mutate func(*testSetup)) (*Service, *cache.Cache) {
	t.Helper()
	ts := &testSetup{
		crawl: config.CrawlConfig{
			DefaultMaxPages:   30,
			MaxPagesLimit:     100,
			PageTimeout:       2 * time.Second,
			JobRetention:      10,
			DuplicateDistance: -1,
		},
		admission: config.AdmissionConfig{
			MaxConcurrency:         3,
			MemoryThresholdPercent: 80,
			PollInterval:           5 * time.Millisecond,
			MaxWait:                time.Second,
		},
		memory: memoryAt(10),
		store:  cache.NewMemoryStore(10),
	}
	if mutate != nil {
		mutate(ts)
	}
	c := cache.New(ts.store)
	svc, err := NewService(ts.crawl, Options{
		Fetcher:   f,
		Filter:    paragraphFilter{},
		Admission: NewAdmission(ts.admission, ts.politeness, ts.memory, nil),
		Cache:     c,
		Notifier:  ts.notifier,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, c
}

func waitJob(t *testing.T, svc *Service, id string) models.Progress {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p, err := svc.Wait(ctx, id)
	require.NoError(t, err, "job did not finish")
	return p
}

// assertConsistent checks the counter invariants of a finished job.
func assertConsistent(t *testing.T, p models.Progress, results []models.PageResult) {
	t.Helper()
	assert.Equal(t, len(results), p.Fetched)
	assert.Equal(t, p.Fetched, p.Succeeded+p.Failed)
	assert.LessOrEqual(t, p.Fetched, p.MaxPages)
	assert.LessOrEqual(t, p.Fetched, p.Discovered)
	assert.Equal(t, 0, p.InFlight)
	assert.True(t, p.Done())
	assert.NotNil(t, p.FinishedAt)

	summary := models.Summarize(results)
	assert.Equal(t, p.Succeeded, summary.SuccessfulPages)
	assert.Equal(t, p.Failed, summary.ErrorPages)

	seen := make(map[string]bool)
	for _, r := range results {
		assert.False(t, seen[r.URL], "%s fetched twice", r.URL)
		seen[r.URL] = true
	}
}

func TestService_CrawlsSameHostLinks(t *testing.T) {
	f := newFakeSite(map[string]fakePage{
		site + "/": {
			links:    []string{site + "/a", site + "/b", site + "/c", "https://elsewhere.example.org/x"},
			external: []string{"https://twitter.com/example", "https://github.com/example"},
		},
		site + "/a": {},
		site + "/b": {},
		site + "/c": {},
	})
	svc, _ := newTestService(t, f, nil)

	job, err := svc.Submit(SubmitRequest{SeedURL: site, MaxPages: 5})
	require.NoError(t, err)
	assert.Equal(t, site+"/", job.SeedURL())
	assert.Equal(t, "example.com", job.Domain())

	p := waitJob(t, svc, job.ID())
	results := job.Results()
	assert.Equal(t, models.JobCompleted, p.State)
	assert.Equal(t, 4, p.Discovered)
	assert.Equal(t, 4, p.Fetched)
	assert.Equal(t, 4, p.Succeeded)
	assert.InDelta(t, 0.8, p.PercentComplete, 1e-9)
	assertConsistent(t, p, results)

	assert.Equal(t, site+"/", results[0].URL, "seed is fetched first")
	for _, r := range results {
		assert.True(t, strings.HasPrefix(r.URL, site), r.URL)
		assert.Equal(t, "fake", r.Engine)
		assert.Equal(t, r.URL, r.Title)
		assert.Positive(t, r.WordCount)
		assert.Equal(t, 1, f.Calls(r.URL))
	}
	assert.Equal(t, 4, f.TotalCalls())
	assert.NotEmpty(t, p.CacheID)
}

func TestService_RespectsPageCap(t *testing.T) {
	pages := map[string]fakePage{}
	var links []string
	for i := 0; i < 10; i++ {
		u := fmt.Sprintf("%s/p%d", site, i)
		links = append(links, u)
		pages[u] = fakePage{links: []string{site + "/deeper"}}
	}
	pages[site+"/"] = fakePage{links: links}
	f := newFakeSite(pages)
	svc, _ := newTestService(t, f, nil)

	job, err := svc.Submit(SubmitRequest{SeedURL: site, MaxPages: 3})
	require.NoError(t, err)
	p := waitJob(t, svc, job.ID())

	assert.Equal(t, models.JobCompleted, p.State)
	assert.Equal(t, 3, p.Fetched)
	assert.Equal(t, 3, p.Discovered)
	assert.Equal(t, 3, f.TotalCalls())
	assert.InDelta(t, 1.0, p.PercentComplete, 1e-9)
	assertConsistent(t, p, job.Results())
}

func TestService_ExpandsBreadthFirst(t *testing.T) {
	f := newFakeSite(map[string]fakePage{
		site + "/":  {links: []string{site + "/a"}},
		site + "/a": {links: []string{site + "/b", site + "/"}},
		site + "/b": {links: []string{site + "/c", site + "/a"}},
		site + "/c": {},
	})
	svc, _ := newTestService(t, f, nil)

	job, err := svc.Submit(SubmitRequest{SeedURL: site + "/", MaxPages: 10})
	require.NoError(t, err)
	p := waitJob(t, svc, job.ID())

	assert.Equal(t, models.JobCompleted, p.State)
	assert.Equal(t, 4, p.Fetched)
	var urls []string
	for _, r := range job.Results() {
		urls = append(urls, r.URL)
	}
	assert.Equal(t, []string{site + "/", site + "/a", site + "/b", site + "/c"}, urls)
	assertConsistent(t, p, job.Results())
}

func TestService_PageTimeoutIsRecorded(t *testing.T) {
	f := newFakeSite(map[string]fakePage{
		site + "/":     {links: []string{site + "/slow", site + "/ok"}},
		site + "/slow": {delay: 5 * time.Second},
		site + "/ok":   {},
	})
	svc, _ := newTestService(t, f, func(ts *testSetup) {
		ts.crawl.PageTimeout = 50 * time.Millisecond
	})

	job, err := svc.Submit(SubmitRequest{SeedURL: site, MaxPages: 5})
	require.NoError(t, err)
	p := waitJob(t, svc, job.ID())

	assert.Equal(t, models.JobCompleted, p.State)
	assert.Equal(t, 3, p.Fetched)
	assert.Equal(t, 1, p.Failed)
	for _, r := range job.Results() {
		if r.URL == site+"/slow" {
			assert.Equal(t, models.PageError, r.Status)
			assert.Equal(t, "timeout", r.ErrorDetail)
			assert.Empty(t, r.Content)
		}
	}
	assertConsistent(t, p, job.Results())
}

func TestService_FailedPagesDoNotStopTheCrawl(t *testing.T) {
	f := newFakeSite(map[string]fakePage{
		site + "/":   {links: []string{site + "/gone", site + "/ok"}},
		site + "/ok": {},
	})
	svc, _ := newTestService(t, f, nil)

	job, err := svc.Submit(SubmitRequest{SeedURL: site, MaxPages: 5})
	require.NoError(t, err)
	p := waitJob(t, svc, job.ID())

	assert.Equal(t, models.JobCompleted, p.State)
	assert.Equal(t, 2, p.Succeeded)
	assert.Equal(t, 1, p.Failed)
	for _, r := range job.Results() {
		if r.URL == site+"/gone" {
			assert.Equal(t, "http_status: status 404", r.ErrorDetail)
		}
	}
	assertConsistent(t, p, job.Results())
}

func TestService_RejectsInvalidRequests(t *testing.T) {
	f := newFakeSite(nil)
	svc, _ := newTestService(t, f, nil)

	tests := []struct {
		name string
		req  SubmitRequest
		code string
	}{
		{"relative url", SubmitRequest{SeedURL: "/docs", MaxPages: 5}, models.ErrCodeInvalidURL},
		{"ftp scheme", SubmitRequest{SeedURL: "ftp://example.com", MaxPages: 5}, models.ErrCodeInvalidURL},
		{"empty url", SubmitRequest{SeedURL: "", MaxPages: 5}, models.ErrCodeInvalidURL},
		{"zero pages", SubmitRequest{SeedURL: site, MaxPages: 0}, models.ErrCodeInvalidRange},
		{"too many pages", SubmitRequest{SeedURL: site, MaxPages: 101}, models.ErrCodeInvalidRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
			var ce *models.CrawlError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.code, ce.Code)
		})
	}

	assert.Zero(t, f.TotalCalls())
	assert.Empty(t, svc.Jobs())
	_, err := svc.Progress("")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_SeedFailureFailsJob(t *testing.T) {
	notifier := &recordingNotifier{}
	f := newFakeSite(map[string]fakePage{
		site + "/": {err: &fetcher.FetchError{Kind: fetcher.KindNetwork, Detail: "connection refused"}},
	})
	svc, _ := newTestService(t, f, func(ts *testSetup) { ts.notifier = notifier })

	job, err := svc.Submit(SubmitRequest{SeedURL: site, MaxPages: 5, WebhookURL: "https://hooks.example.com/x"})
	require.NoError(t, err)
	p := waitJob(t, svc, job.ID())

	assert.Equal(t, models.JobFailed, p.State)
	assert.Contains(t, p.Error, "seed fetch failed")
	assert.Contains(t, p.Error, "connection refused")
	assert.Empty(t, p.CacheID)
	assert.Zero(t, p.InFlight)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.seen, 1)
	assert.Equal(t, models.JobFailed, notifier.seen[0].State)
}

func TestService_CancelDrainsInFlight(t *testing.T) {
	block := make(chan struct{})
	f := newFakeSite(map[string]fakePage{
		site + "/":  {links: []string{site + "/a", site + "/b", site + "/c"}},
		site + "/a": {block: block},
		site + "/b": {},
		site + "/c": {},
	})
	svc, c := newTestService(t, f, func(ts *testSetup) {
		ts.admission.MaxConcurrency = 1
	})

	job, err := svc.Submit(SubmitRequest{SeedURL: site, MaxPages: 10})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.Calls(site+"/a") == 1 }, 5*time.Second, time.Millisecond)

	p, err := svc.Cancel(job.ID())
	require.NoError(t, err)
	assert.False(t, p.Done(), "in-flight page still running")

	close(block)
	p = waitJob(t, svc, job.ID())

	assert.Equal(t, models.JobCancelled, p.State)
	assert.Equal(t, 2, p.Fetched, "seed and the in-flight page")
	assert.Zero(t, f.Calls(site+"/b"))
	assert.Zero(t, f.Calls(site+"/c"))
	assertConsistent(t, p, job.Results())

	require.NotEmpty(t, p.CacheID, "partial results are persisted")
	entry, err := c.Load(context.Background(), p.CacheID)
	require.NoError(t, err)
	assert.Len(t, entry.Results, 2)

	_, err = svc.Cancel(job.ID())
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestService_CacheWriteFailureIsAWarning(t *testing.T) {
	f := newFakeSite(map[string]fakePage{site + "/": {}})
	svc, _ := newTestService(t, f, func(ts *testSetup) {
		ts.store = failingStore{Store: cache.NewMemoryStore(1)}
	})

	job, err := svc.Submit(SubmitRequest{SeedURL: site, MaxPages: 1})
	require.NoError(t, err)
	p := waitJob(t, svc, job.ID())

	assert.Equal(t, models.JobCompleted, p.State)
	assert.Empty(t, p.CacheID)
	assert.Contains(t, p.CacheWarning, "disk full")
	assert.Len(t, job.Results(), 1, "results stay available")
}

func TestService_MemoryPressureFailsJob(t *testing.T) {
	f := newFakeSite(map[string]fakePage{
		site + "/":  {links: []string{site + "/a"}},
		site + "/a": {},
	})
	svc, c := newTestService(t, f, func(ts *testSetup) {
		ts.memory = memoryAt(95)
		ts.memory.healthyCalls = 1
		ts.admission.MaxWait = 20 * time.Millisecond
	})

	job, err := svc.Submit(SubmitRequest{SeedURL: site, MaxPages: 5})
	require.NoError(t, err)
	p := waitJob(t, svc, job.ID())

	assert.Equal(t, models.JobFailed, p.State)
	assert.Contains(t, p.Error, models.ErrCodeResourceExhausted)
	assert.Equal(t, 1, p.Fetched)
	assert.Zero(t, f.Calls(site+"/a"))
	assertConsistent(t, p, job.Results())

	require.NotEmpty(t, p.CacheID)
	_, err = c.Load(context.Background(), p.CacheID)
	require.NoError(t, err)
}

func TestService_RateLimitedPageBacksOff(t *testing.T) {
	pol := NewPoliteness(config.PolitenessConfig{
		MinDelay:      time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2,
		MaxBackoff:    50 * time.Millisecond,
	}, SystemClock())
	f := newFakeSite(map[string]fakePage{
		site + "/":     {links: []string{site + "/busy"}},
		site + "/busy": {err: &fetcher.FetchError{Kind: fetcher.KindRateLimited, StatusCode: 429}},
	})
	svc, _ := newTestService(t, f, func(ts *testSetup) { ts.politeness = pol })

	job, err := svc.Submit(SubmitRequest{SeedURL: site, MaxPages: 5})
	require.NoError(t, err)
	p := waitJob(t, svc, job.ID())

	assert.Equal(t, models.JobCompleted, p.State)
	results := job.Results()
	require.Len(t, results, 2)
	assert.Equal(t, "rate_limited: status 429", results[1].ErrorDetail)
	assert.Positive(t, pol.Backoff("example.com"))
}

func TestService_CurrentJob(t *testing.T) {
	f := newFakeSite(map[string]fakePage{
		site + "/":                   {},
		"https://docs.example.com/": {},
	})
	svc, _ := newTestService(t, f, nil)

	first, err := svc.Submit(SubmitRequest{SeedURL: site, MaxPages: 1})
	require.NoError(t, err)
	waitJob(t, svc, first.ID())
	second, err := svc.Submit(SubmitRequest{SeedURL: "https://docs.example.com", MaxPages: 1})
	require.NoError(t, err)
	waitJob(t, svc, second.ID())

	p, err := svc.Progress("")
	require.NoError(t, err)
	assert.Equal(t, second.ID(), p.JobID)

	p, err = svc.Progress(first.ID())
	require.NoError(t, err)
	assert.Equal(t, site+"/", p.SeedURL)

	jobs := svc.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID(), jobs[0].ID())

	_, err = svc.Results("missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	entry, err := svc.LatestCache(context.Background(), site+"/anything")
	require.NoError(t, err)
	assert.Equal(t, first.Progress().CacheID, entry.ID)
}

func TestService_ExportCSV(t *testing.T) {
	f := newFakeSite(map[string]fakePage{
		site + "/":  {links: []string{site + "/a"}, body: "Welcome, to the \"home\" page"},
		site + "/a": {},
	})
	svc, _ := newTestService(t, f, nil)

	job, err := svc.Submit(SubmitRequest{SeedURL: site, MaxPages: 2})
	require.NoError(t, err)
	waitJob(t, svc, job.ID())

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV("", &buf))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, export.Header, rows[0])
	assert.Equal(t, site+"/", rows[1][0])
	assert.Equal(t, `Welcome, to the "home" page`, rows[1][2])
	assert.Equal(t, "success", rows[1][4])
}

func TestService_MarksNearDuplicates(t *testing.T) {
	shared := "Our pricing plans include a free tier, a team plan with shared workspaces and an enterprise plan with audit logs"
	f := newFakeSite(map[string]fakePage{
		site + "/":        {links: []string{site + "/pricing", site + "/plans"}, body: "Welcome to the example company homepage where we talk about our history and mission"},
		site + "/pricing": {body: shared},
		site + "/plans":   {body: shared},
	})
	svc, _ := newTestService(t, f, func(ts *testSetup) { ts.crawl.DuplicateDistance = 3 })

	job, err := svc.Submit(SubmitRequest{SeedURL: site, MaxPages: 3})
	require.NoError(t, err)
	waitJob(t, svc, job.ID())

	dupes := map[string]string{}
	for _, r := range job.Results() {
		if r.DuplicateOf != "" {
			dupes[r.URL] = r.DuplicateOf
		}
	}
	require.Len(t, dupes, 1)
	for u, of := range dupes {
		assert.ElementsMatch(t, []string{site + "/pricing", site + "/plans"}, []string{u, of})
	}
}

func TestService_ShutdownCancelsJobs(t *testing.T) {
	f := newFakeSite(map[string]fakePage{
		site + "/":  {links: []string{site + "/a", site + "/b"}},
		site + "/a": {delay: 100 * time.Millisecond},
		site + "/b": {delay: 100 * time.Millisecond},
	})
	svc, _ := newTestService(t, f, func(ts *testSetup) { ts.admission.MaxConcurrency = 1 })

	job, err := svc.Submit(SubmitRequest{SeedURL: site, MaxPages: 5})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.Calls(site+"/a")+f.Calls(site+"/b") > 0 }, 5*time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	p := job.Progress()
	assert.Equal(t, models.JobCancelled, p.State)
	assert.Less(t, p.Fetched, 3)
	assertConsistent(t, p, job.Results())
}
