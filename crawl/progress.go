package crawl

import (
	"sync"
	"sync/atomic"

	"github.com/use-agent/sitecrawl/models"
)

// Reporter publishes immutable progress snapshots. Writers serialize on a
// mutex; readers load the latest snapshot without locking, so they never
// see Fetched out of step with Succeeded and Failed.
type Reporter struct {
	mu    sync.Mutex
	cur   models.Progress
	snap  atomic.Pointer[models.Progress]
	clock Clock
}

func newReporter(initial models.Progress, clock Clock) *Reporter {
	r := &Reporter{cur: initial, clock: clock}
	r.publish()
	return r
}

// Snapshot returns the latest published progress.
func (r *Reporter) Snapshot() models.Progress {
	return *r.snap.Load()
}

// update applies fn to the working copy and publishes it if fn returns true.
func (r *Reporter) update(fn func(p *models.Progress) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.cur
	if !fn(&next) {
		return false
	}
	r.cur = next
	r.publish()
	return true
}

// publish must be called with r.mu held (or before r is shared).
func (r *Reporter) publish() {
	r.cur.PercentComplete = models.PercentOf(r.cur.Fetched, r.cur.MaxPages)
	r.cur.UpdatedAt = r.clock.Now().UTC()
	cp := r.cur
	r.snap.Store(&cp)
}
