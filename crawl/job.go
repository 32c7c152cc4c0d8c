package crawl

import (
	"context"
	"sync"

	"github.com/use-agent/sitecrawl/models"
	"github.com/use-agent/sitecrawl/simhash"
)

// Job is one crawl run. Its frontier and result list belong to the goroutine
// running it; other goroutines only read snapshots.
type Job struct {
	id       string
	seed     string
	domain   string
	maxPages int

	webhookURL    string
	webhookSecret string

	frontier *Frontier
	progress *Reporter
	dupes    *simhash.Index

	mu      sync.Mutex
	results []models.PageResult

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (j *Job) ID() string      { return j.id }
func (j *Job) SeedURL() string { return j.seed }
func (j *Job) Domain() string  { return j.domain }

// Progress returns the latest snapshot.
func (j *Job) Progress() models.Progress {
	return j.progress.Snapshot()
}

// Results returns a copy of the results in completion order.
func (j *Job) Results() []models.PageResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]models.PageResult(nil), j.results...)
}

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Cancel asks the job to stop dispatching. In-flight fetches finish and
// their results are kept. It returns false if the job already ended.
func (j *Job) Cancel() bool {
	if j.Progress().Done() {
		return false
	}
	j.cancel()
	return true
}

func (j *Job) cancelled() bool {
	return j.ctx.Err() != nil
}

// transition moves the job to state to if the state machine allows it.
func (j *Job) transition(to models.JobState, errMsg string) bool {
	return j.progress.update(func(p *models.Progress) bool {
		if !p.State.CanTransition(to) {
			return false
		}
		p.State = to
		if errMsg != "" {
			p.Error = errMsg
		}
		if to.Terminal() {
			now := j.progress.clock.Now().UTC()
			p.FinishedAt = &now
		}
		return true
	})
}

// dispatched counts a fetch that took an admission slot.
func (j *Job) dispatched() {
	j.progress.update(func(p *models.Progress) bool {
		p.InFlight++
		return true
	})
}

// abandon undoes dispatched for a fetch that produced no result.
func (j *Job) abandon() {
	j.progress.update(func(p *models.Progress) bool {
		p.InFlight--
		return true
	})
}

// record appends res and updates the counters in one step.
func (j *Job) record(res models.PageResult) {
	j.mu.Lock()
	j.results = append(j.results, res)
	j.mu.Unlock()

	offered := j.frontier.Offered()
	j.progress.update(func(p *models.Progress) bool {
		p.Fetched++
		if res.Succeeded() {
			p.Succeeded++
		} else {
			p.Failed++
		}
		p.InFlight--
		p.Discovered = offered
		return true
	})
}

func (j *Job) setCache(id, warning string) {
	j.progress.update(func(p *models.Progress) bool {
		p.CacheID = id
		p.CacheWarning = warning
		return true
	})
}
