package crawl

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Frontier holds the same-host URLs discovered for one job. Every URL is
// offered at most once and the number of accepted URLs never exceeds the
// page cap, so no URL can be dispatched twice.
type Frontier struct {
	mu       sync.Mutex
	host     string
	maxPages int
	seen     map[string]struct{}
	queue    []string
	inFlight map[string]struct{}
}

// NewFrontier creates a frontier seeded with seed, which is always accepted.
func NewFrontier(seed string, maxPages int) (*Frontier, error) {
	norm, err := Normalize(seed)
	if err != nil {
		return nil, err
	}
	u, _ := url.Parse(norm)
	f := &Frontier{
		host:     u.Host,
		maxPages: maxPages,
		seen:     map[string]struct{}{norm: {}},
		queue:    []string{norm},
		inFlight: make(map[string]struct{}),
	}
	return f, nil
}

// Normalize canonicalises an absolute http(s) URL: scheme and host are
// lowercased, the fragment is dropped, an empty path becomes "/" and a
// trailing slash is removed from any other path.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", raw)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	switch {
	case u.Path == "":
		u.Path = "/"
		u.RawPath = ""
	case u.Path != "/" && strings.HasSuffix(u.Path, "/"):
		u.Path = strings.TrimRight(u.Path, "/")
		if u.Path == "" {
			u.Path = "/"
		}
		u.RawPath = ""
	}
	return u.String(), nil
}

// Offer adds raw if it is on the seed's host, has not been offered before
// and the cap has room. It reports whether the URL was accepted.
func (f *Frontier) Offer(raw string) bool {
	norm, err := Normalize(raw)
	if err != nil {
		return false
	}
	u, _ := url.Parse(norm)

	f.mu.Lock()
	defer f.mu.Unlock()
	if u.Host != f.host {
		return false
	}
	if _, ok := f.seen[norm]; ok {
		return false
	}
	if len(f.seen) >= f.maxPages {
		return false
	}
	f.seen[norm] = struct{}{}
	f.queue = append(f.queue, norm)
	return true
}

// Next pops the next undispatched URL.
func (f *Frontier) Next() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return "", false
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	return next, true
}

// MarkDispatched records that u is being fetched.
func (f *Frontier) MarkDispatched(u string) {
	f.mu.Lock()
	f.inFlight[u] = struct{}{}
	f.mu.Unlock()
}

// MarkDone records that the fetch of u has finished.
func (f *Frontier) MarkDone(u string) {
	f.mu.Lock()
	delete(f.inFlight, u)
	f.mu.Unlock()
}

// Offered is the number of accepted URLs, the seed included.
func (f *Frontier) Offered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// InFlight is the number of dispatched URLs not yet done.
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inFlight)
}

// Exhausted reports whether nothing is queued or in flight.
func (f *Frontier) Exhausted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue) == 0 && len(f.inFlight) == 0
}
