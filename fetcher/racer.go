package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"
)

// Racer runs several engines against the same URL with staged escalation.
// engines[i] starts delays[i] after the race begins and the first success
// wins. A definitive failure (non-HTML, robots, 404) ends the race early.
type Racer struct {
	engines []Engine
	delays  []time.Duration
	memory  *DomainMemory
}

// NewRacer creates a Racer. Missing delays default to zero. memory may be nil.
func NewRacer(engines []Engine, delays []time.Duration, memory *DomainMemory) *Racer {
	d := make([]time.Duration, len(engines))
	copy(d, delays)
	return &Racer{engines: engines, delays: d, memory: memory}
}

func (r *Racer) Name() string { return "auto" }

// Fetch tries the engine remembered for the host first, then races all
// engines. When every engine fails, a rate-limit failure is preferred over
// other errors so the caller backs off.
func (r *Racer) Fetch(ctx context.Context, req *Request) (*Result, error) {
	host := hostOf(req.URL)

	if r.memory != nil {
		if name := r.memory.Get(host); name != "" {
			for _, eng := range r.engines {
				if eng.Name() != name {
					continue
				}
				res, err := eng.Fetch(ctx, req)
				if err == nil {
					return res, nil
				}
				var fe *FetchError
				if errors.As(err, &fe) && (fe.Definitive() || fe.Kind == KindRateLimited) {
					return nil, err
				}
				slog.Debug("racer: remembered engine failed, racing all",
					"host", host, "engine", name, "error", err)
				r.memory.Forget(host)
				break
			}
		}
	}
	return r.race(ctx, req, host)
}

func (r *Racer) race(ctx context.Context, req *Request, host string) (*Result, error) {
	type outcome struct {
		res *Result
		err error
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan outcome, len(r.engines))
	var wg sync.WaitGroup
	for i, eng := range r.engines {
		wg.Add(1)
		go func(e Engine, delay time.Duration) {
			defer wg.Done()
			if delay > 0 {
				t := time.NewTimer(delay)
				defer t.Stop()
				select {
				case <-raceCtx.Done():
					return
				case <-t.C:
				}
			}
			if raceCtx.Err() != nil {
				return
			}
			res, err := e.Fetch(raceCtx, req)
			if err != nil {
				slog.Debug("racer: engine failed", "engine", e.Name(), "url", req.URL, "error", err)
			}
			outcomes <- outcome{res: res, err: err}
		}(eng, r.delays[i])
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var lastErr, limited error
	for o := range outcomes {
		if o.err == nil {
			cancel()
			if r.memory != nil {
				r.memory.Set(host, o.res.EngineName)
			}
			return o.res, nil
		}
		var fe *FetchError
		if errors.As(o.err, &fe) {
			if fe.Definitive() {
				cancel()
				return nil, o.err
			}
			if fe.Kind == KindRateLimited {
				limited = o.err
			}
		}
		lastErr = o.err
	}

	switch {
	case limited != nil:
		return nil, limited
	case ctx.Err() != nil:
		return nil, transportError(req.URL, ctx.Err())
	case lastErr != nil:
		return nil, lastErr
	}
	return nil, &FetchError{Kind: KindNetwork, URL: req.URL, Err: fmt.Errorf("no engine produced a result")}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
