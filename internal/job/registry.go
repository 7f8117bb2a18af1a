package job

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sidekick-bot/sidekick/internal/logging"
)

// Registry tracks in-flight and recently finished jobs, keyed by composite
// id. It is bounded: terminal jobs older than the retention window are
// evicted by Prune. When a Store is attached, job records are written through
// to it and survive restarts.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	store *Store // optional
	log   *slog.Logger
}

// NewRegistry creates an in-memory registry. store may be nil.
func NewRegistry(store *Store) *Registry {
	return &Registry{
		jobs:  make(map[string]*Job),
		store: store,
		log:   logging.WithComponent("job.registry"),
	}
}

// Add registers a new job. It fails if a job with the same id already
// exists, which deduplicates webhook redeliveries.
func (r *Registry) Add(j *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[j.ID]; exists {
		return fmt.Errorf("job %s already registered", j.ID)
	}
	r.jobs[j.ID] = j

	if r.store != nil {
		if err := r.store.Save(j); err != nil {
			r.log.Warn("failed to persist job", slog.String("job_id", j.ID), slog.Any("error", err))
		}
	}
	return nil
}

// Get returns a job by id. Falls back to the persisted store for jobs
// evicted from memory.
func (r *Registry) Get(id string) (*Job, bool) {
	r.mu.RLock()
	j, ok := r.jobs[id]
	r.mu.RUnlock()
	if ok {
		return j, true
	}

	if r.store != nil {
		if stored, err := r.store.Load(id); err == nil && stored != nil {
			return stored, true
		}
	}
	return nil, false
}

// Sync persists the job's current state. The caller must be the job's owner
// per the single-writer rule; the registry itself never mutates jobs.
func (r *Registry) Sync(j *Job) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(j); err != nil {
		r.log.Warn("failed to persist job", slog.String("job_id", j.ID), slog.Any("error", err))
	}
}

// List returns a snapshot of all in-memory jobs.
func (r *Registry) List() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j)
	}
	return out
}

// Len returns the number of in-memory jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Prune evicts terminal jobs whose completion is older than the retention
// window, from memory and from the persisted store.
func (r *Registry) Prune(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)

	r.mu.Lock()
	removed := 0
	for id, j := range r.jobs {
		if j.Status.Terminal() && j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	r.mu.Unlock()

	if r.store != nil {
		if n, err := r.store.Prune(cutoff); err != nil {
			r.log.Warn("failed to prune job store", slog.Any("error", err))
		} else if n > 0 {
			r.log.Debug("pruned persisted jobs", slog.Int64("count", n))
		}
	}

	if removed > 0 {
		r.log.Info("evicted finished jobs", slog.Int("count", removed))
	}
	return removed
}
