package models

import "time"

// JobState is the lifecycle state of a crawl job.
type JobState string

const (
	JobPending     JobState = "pending"
	JobDiscovering JobState = "discovering"
	JobFetching    JobState = "fetching"
	JobFinalizing  JobState = "finalizing"
	JobCompleted   JobState = "completed"
	JobFailed      JobState = "failed"
	JobCancelled   JobState = "cancelled"
)

// jobTransitions lists the forward edges of the job state machine.
// Cancelled is reachable from every non-terminal state and is handled
// separately in CanTransition.
var jobTransitions = map[JobState][]JobState{
	JobPending:     {JobDiscovering, JobFailed},
	JobDiscovering: {JobFetching, JobFailed},
	JobFetching:    {JobFinalizing, JobFailed},
	JobFinalizing:  {JobCompleted},
}

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// CanTransition reports whether s -> to is an edge of the state machine.
func (s JobState) CanTransition(to JobState) bool {
	if s.Terminal() {
		return false
	}
	if to == JobCancelled {
		return true
	}
	for _, next := range jobTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Counters are the live numbers of a crawl job.
// Fetched always equals Succeeded + Failed.
type Counters struct {
	Discovered int `json:"discovered"`
	Fetched    int `json:"fetched"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	InFlight   int `json:"in_flight"`
}

// Progress is an immutable snapshot of a job, safe to hand to any reader.
type Progress struct {
	JobID    string   `json:"id"`
	SeedURL  string   `json:"homepage_url"`
	State    JobState `json:"state"`
	MaxPages int      `json:"max_pages"`
	Counters

	// PercentComplete is Fetched / MaxPages clamped to [0, 1].
	PercentComplete float64 `json:"percent_complete"`

	Error        string     `json:"error,omitempty"`
	CacheID      string     `json:"cache_id,omitempty"`
	CacheWarning string     `json:"cache_warning,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// PercentOf returns fetched / maxPages clamped to [0, 1].
func PercentOf(fetched, maxPages int) float64 {
	if maxPages <= 0 {
		return 0
	}
	p := float64(fetched) / float64(maxPages)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// Done reports whether the job has reached a terminal state.
func (p Progress) Done() bool {
	return p.State.Terminal()
}
