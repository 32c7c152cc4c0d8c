package crawl

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/use-agent/sitecrawl/config"
	"github.com/use-agent/sitecrawl/metrics"
)

// Outcome is how a fetch ended, as far as politeness is concerned.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeRateLimited
)

type domainSchedule struct {
	readyAt time.Time
	backoff time.Duration
}

// Politeness spaces out requests to the same domain. After every fetch the
// domain is blocked for a random delay in [MinDelay, MaxDelay]; rate-limit
// signals grow the delay by BackoffFactor up to MaxBackoff, and the next
// success resets it.
type Politeness struct {
	cfg    config.PolitenessConfig
	clock  Clock
	random func() float64

	mu      sync.Mutex
	domains map[string]*domainSchedule
}

func NewPoliteness(cfg config.PolitenessConfig, clock Clock) *Politeness {
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 1
	}
	return &Politeness{
		cfg:     cfg,
		clock:   clock,
		random:  rand.Float64,
		domains: make(map[string]*domainSchedule),
	}
}

// Wait blocks until domain may be fetched again or ctx is done.
func (p *Politeness) Wait(ctx context.Context, domain string) error {
	for {
		d := p.Remaining(domain)
		if d <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(d):
		}
	}
}

// Remaining is how long domain is still blocked.
func (p *Politeness) Remaining(domain string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.domains[domain]
	if !ok {
		return 0
	}
	return s.readyAt.Sub(p.clock.Now())
}

// Record schedules the next permitted fetch of domain and returns the delay.
func (p *Politeness) Record(domain string, outcome Outcome) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.domains[domain]
	if !ok {
		s = &domainSchedule{}
		p.domains[domain] = s
	}

	base := p.cfg.MinDelay + time.Duration(p.random()*float64(p.cfg.MaxDelay-p.cfg.MinDelay))
	delay := base
	switch outcome {
	case OutcomeSuccess:
		s.backoff = 0
	case OutcomeRateLimited:
		s.backoff = time.Duration(float64(max(s.backoff, base)) * p.cfg.BackoffFactor)
		if p.cfg.MaxBackoff > 0 && s.backoff > p.cfg.MaxBackoff {
			s.backoff = p.cfg.MaxBackoff
		}
		delay = s.backoff
	case OutcomeFailure:
		delay = max(base, s.backoff)
	}

	if ready := p.clock.Now().Add(delay); ready.After(s.readyAt) {
		s.readyAt = ready
	}
	metrics.ObservePolitenessDelay(delay)
	return delay
}

// Backoff returns the current backoff of domain.
func (p *Politeness) Backoff(domain string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.domains[domain]; ok {
		return s.backoff
	}
	return 0
}
