package crawl

import (
	"sync"

	"github.com/use-agent/sitecrawl/models"
)

// Registry tracks submitted jobs by id. The most recently submitted job is
// "current" and answers requests that do not name a job. Once more than
// retention jobs are held, the oldest finished ones are evicted.
type Registry struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	order     []string
	current   string
	retention int
}

func NewRegistry(retention int) *Registry {
	if retention < 1 {
		retention = 1
	}
	return &Registry{jobs: make(map[string]*Job), retention: retention}
}

// Add registers j and makes it current.
func (r *Registry) Add(j *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.id] = j
	r.order = append(r.order, j.id)
	r.current = j.id

	for i := 0; len(r.order) > r.retention && i < len(r.order); {
		id := r.order[i]
		if id == r.current || !r.jobs[id].Progress().Done() {
			i++
			continue
		}
		delete(r.jobs, id)
		r.order = append(r.order[:i], r.order[i+1:]...)
	}
}

// Get returns the job with id, or the current job when id is empty.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == "" {
		id = r.current
		if id == "" {
			return nil, models.NewCrawlError(models.ErrCodeNotFound, "no crawl job has been submitted", nil)
		}
	}
	j, ok := r.jobs[id]
	if !ok {
		return nil, models.NewCrawlError(models.ErrCodeNotFound, "crawl job "+id+" not found", nil)
	}
	return j, nil
}

// List returns the retained jobs, newest first.
func (r *Registry) List() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Job, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.jobs[r.order[i]])
	}
	return out
}
