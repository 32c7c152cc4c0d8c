package fetcher

import (
	"sync"
	"time"
)

type rememberedEngine struct {
	name    string
	expires time.Time
}

// DomainMemory remembers which engine last succeeded for each host so the
// Racer can try it alone before starting a full race.
type DomainMemory struct {
	mu      sync.Mutex
	entries map[string]rememberedEngine
	ttl     time.Duration
	now     func() time.Time
	done    chan struct{}
	stop    sync.Once
}

// NewDomainMemory creates a DomainMemory whose entries live for ttl and starts
// an hourly sweep of expired entries. Call Stop to end the sweep.
func NewDomainMemory(ttl time.Duration) *DomainMemory {
	dm := &DomainMemory{
		entries: make(map[string]rememberedEngine),
		ttl:     ttl,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go dm.sweepLoop(time.Hour)
	return dm
}

// Get returns the remembered engine for host, or "" when none is live.
func (dm *DomainMemory) Get(host string) string {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	e, ok := dm.entries[host]
	if !ok {
		return ""
	}
	if dm.now().After(e.expires) {
		delete(dm.entries, host)
		return ""
	}
	return e.name
}

func (dm *DomainMemory) Set(host, engine string) {
	dm.mu.Lock()
	dm.entries[host] = rememberedEngine{name: engine, expires: dm.now().Add(dm.ttl)}
	dm.mu.Unlock()
}

func (dm *DomainMemory) Forget(host string) {
	dm.mu.Lock()
	delete(dm.entries, host)
	dm.mu.Unlock()
}

// Stop ends the background sweep. It is safe to call more than once.
func (dm *DomainMemory) Stop() {
	dm.stop.Do(func() { close(dm.done) })
}

func (dm *DomainMemory) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-dm.done:
			return
		case <-ticker.C:
			dm.sweep()
		}
	}
}

func (dm *DomainMemory) sweep() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	now := dm.now()
	for host, e := range dm.entries {
		if now.After(e.expires) {
			delete(dm.entries, host)
		}
	}
}
