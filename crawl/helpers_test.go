package crawl

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// manualClock only moves when Advance is called.
type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []clockWaiter
}

type clockWaiter struct {
	at time.Time
	ch chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, clockWaiter{at: c.now.Add(d), ch: ch})
	return ch
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	sort.Slice(c.waiters, func(i, j int) bool { return c.waiters[i].at.Before(c.waiters[j].at) })
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			w.ch <- c.now
			continue
		}
		kept = append(kept, w)
	}
	c.waiters = kept
}

func (c *manualClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// fakeMemory reports a settable utilization.
type fakeMemory struct {
	percent atomic.Int64
	calls   atomic.Int64
	// healthyCalls, when positive, makes the first calls report 10%.
	healthyCalls int64
}

func memoryAt(p int64) *fakeMemory {
	m := &fakeMemory{}
	m.percent.Store(p)
	return m
}

func (m *fakeMemory) UsedPercent(context.Context) (float64, error) {
	n := m.calls.Add(1)
	if n <= m.healthyCalls {
		return 10, nil
	}
	return float64(m.percent.Load()), nil
}
