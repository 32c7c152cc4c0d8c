package crawl

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/use-agent/sitecrawl/config"
	"github.com/use-agent/sitecrawl/metrics"
	"github.com/use-agent/sitecrawl/models"
	"golang.org/x/sync/semaphore"
)

// MemorySampler reports system memory utilization in percent.
type MemorySampler interface {
	UsedPercent(ctx context.Context) (float64, error)
}

// SystemMemory samples virtual memory through gopsutil.
type SystemMemory struct{}

func (SystemMemory) UsedPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// Admission gates page fetches on two conditions: fewer than MaxConcurrency
// fetches in flight and memory utilization below the threshold. It also
// applies per-domain politeness before granting a slot.
type Admission struct {
	cfg        config.AdmissionConfig
	slots      *semaphore.Weighted
	sampler    MemorySampler
	politeness *Politeness
	clock      Clock
	logger     *slog.Logger

	inFlight   atomic.Int64
	lastMemory atomic.Uint64 // percent * 100
}

// NewAdmission creates an Admission. politeness may be nil.
func NewAdmission(cfg config.AdmissionConfig, politeness *Politeness, sampler MemorySampler, clock Clock) *Admission {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if sampler == nil {
		sampler = SystemMemory{}
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Admission{
		cfg:        cfg,
		slots:      semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		sampler:    sampler,
		politeness: politeness,
		clock:      clock,
		logger:     slog.Default(),
	}
}

// healthy samples memory. A failing sampler does not block admission.
func (a *Admission) healthy() bool {
	if a.cfg.MemoryThresholdPercent <= 0 {
		return true
	}
	used, err := a.sampler.UsedPercent(context.Background())
	if err != nil {
		a.logger.Debug("memory sample failed", "error", err)
		return true
	}
	a.lastMemory.Store(uint64(used * 100))
	return used < a.cfg.MemoryThresholdPercent
}

// TryAcquire takes a slot if one is free and memory is below the threshold.
func (a *Admission) TryAcquire() bool {
	return a.healthy() && a.take()
}

func (a *Admission) take() bool {
	if !a.slots.TryAcquire(1) {
		return false
	}
	a.inFlight.Add(1)
	metrics.IncInFlight()
	return true
}

// Acquire waits for domain's politeness delay and a free slot, re-checking
// every PollInterval. A slot is only kept when the domain is still clear to
// fetch once it is held. Memory pressure sustained for longer than MaxWait
// fails with RESOURCE_EXHAUSTED.
func (a *Admission) Acquire(ctx context.Context, domain string) error {
	start := a.clock.Now()
	var pressureStart time.Time
	for {
		if a.politeness != nil {
			if err := a.politeness.Wait(ctx, domain); err != nil {
				return err
			}
		}

		if a.healthy() {
			pressureStart = time.Time{}
			if a.take() {
				if a.politeness == nil || a.politeness.Remaining(domain) <= 0 {
					metrics.ObserveAdmissionWait(a.clock.Now().Sub(start))
					return nil
				}
				// A release for domain landed while we were waiting.
				a.giveBack()
				continue
			}
		} else {
			now := a.clock.Now()
			if pressureStart.IsZero() {
				pressureStart = now
			}
			if a.cfg.MaxWait > 0 && now.Sub(pressureStart) > a.cfg.MaxWait {
				return models.NewCrawlError(models.ErrCodeResourceExhausted,
					"memory pressure did not subside", nil)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.clock.After(a.cfg.PollInterval):
		}
	}
}

// giveBack returns a slot taken by Acquire without scheduling politeness.
func (a *Admission) giveBack() {
	a.slots.Release(1)
	a.inFlight.Add(-1)
	metrics.DecInFlight()
}

// Release frees a slot and schedules domain's next permitted fetch.
func (a *Admission) Release(domain string, outcome Outcome) {
	a.giveBack()
	if a.politeness != nil {
		a.politeness.Record(domain, outcome)
	}
}

// InFlight is the number of slots currently held.
func (a *Admission) InFlight() int {
	return int(a.inFlight.Load())
}

// Stats reports the admission state for health checks.
func (a *Admission) Stats() models.AdmissionStats {
	return models.AdmissionStats{
		MaxConcurrency: a.cfg.MaxConcurrency,
		InFlight:       a.InFlight(),
		MemoryPercent:  float64(a.lastMemory.Load()) / 100,
	}
}
