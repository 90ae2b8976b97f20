// Package jobsmodule runs background media-processing work: video edits
// (cut/crop), HLS downloads, and proxied curl downloads. Jobs live in an
// in-memory registry and do not survive restarts.
package jobsmodule

import (
	"maps"
	"sync"
	"time"

	"github.com/clipperhq/clipper/internal/events"
)

// JobKind distinguishes the three background job types.
type JobKind string

const (
	KindEdit          JobKind = "edit"
	KindHLSDownload   JobKind = "hls_download"
	KindSocksDownload JobKind = "socks_download"
)

// JobStatus is the job lifecycle state.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Job is one unit of background work.
type Job struct {
	ID          int64     `json:"id"`
	Kind        JobKind   `json:"kind"`
	Status      JobStatus `json:"status"`
	Progress    float64   `json:"progress"`
	URL         string    `json:"url,omitempty"`
	SourcePath  string    `json:"source_path,omitempty"`
	OutputPath  string    `json:"output_path,omitempty"`
	Error       string    `json:"error_message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// Request payload kept for post-steps (copy metadata, preserve faces).
	Params map[string]interface{} `json:"params,omitempty"`
}

// Registry is the in-memory job store: a protected map with monotonic
// ids; status updates are short critical sections.
type Registry struct {
	mu     sync.RWMutex
	nextID int64
	jobs   map[int64]*Job
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[int64]*Job)}
}

// Create registers a new pending job and returns its id.
func (r *Registry) Create(kind JobKind, params map[string]interface{}) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	job := &Job{
		ID:        r.nextID,
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		Params:    params,
	}
	r.jobs[job.ID] = job
	return r.snapshotLocked(job)
}

// Get returns a copy of one job.
func (r *Registry) Get(id int64) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	return r.snapshotLocked(job), true
}

// List returns copies of all jobs of a kind, newest first.
func (r *Registry) List(kind JobKind) []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if kind == "" || job.Kind == kind {
			out = append(out, r.snapshotLocked(job))
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].ID > out[i].ID {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// Update mutates one job under the lock and publishes the transition.
func (r *Registry) Update(id int64, fn func(*Job)) bool {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	fn(job)
	snapshot := r.snapshotLocked(job)
	r.mu.Unlock()

	events.Publish(events.Event{
		Type: events.EventJobUpdated, Source: "jobs", Data: snapshot,
	})
	return true
}

// MarkProcessing transitions pending -> processing.
func (r *Registry) MarkProcessing(id int64) {
	r.Update(id, func(j *Job) {
		j.Status = StatusProcessing
	})
}

// MarkCompleted finalizes a successful job.
func (r *Registry) MarkCompleted(id int64, outputPath string) {
	r.Update(id, func(j *Job) {
		j.Status = StatusCompleted
		j.Progress = 100
		j.OutputPath = outputPath
		j.CompletedAt = time.Now()
	})
}

// MarkFailed finalizes a failed job with its reason.
func (r *Registry) MarkFailed(id int64, errMsg string) {
	r.Update(id, func(j *Job) {
		j.Status = StatusFailed
		j.Error = errMsg
		j.CompletedAt = time.Now()
	})
}

// Remove forgets one job without touching its output file.
func (r *Registry) Remove(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return false
	}
	delete(r.jobs, id)
	return true
}

// ClearCompleted removes all terminal jobs of a kind.
func (r *Registry) ClearCompleted(kind JobKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, job := range r.jobs {
		if kind != "" && job.Kind != kind {
			continue
		}
		if job.Status == StatusCompleted || job.Status == StatusFailed {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// snapshotLocked returns a detached copy: callers hold snapshots across
// handler JSON encoding and the event feed, so Params must not alias the
// live map that Update mutates.
func (r *Registry) snapshotLocked(job *Job) *Job {
	copied := *job
	copied.Params = maps.Clone(job.Params)
	return &copied
}
