// Package registry tracks jobs awaiting a terminal outcome. It is the one
// mutable resource shared between the submission path and the monitor tick,
// so every access is serialized behind a mutex.
package registry

import (
	"fmt"
	"sync"

	"github.com/batchops/batchwatch/internal/batch"
)

// Registry is an in-memory map of monitored jobs. It holds no state across
// process restarts; each run starts empty.
type Registry struct {
	mu   sync.RWMutex
	jobs map[batch.JobID]batch.MonitoredJob
	// done remembers IDs already removed so a completed job can never be
	// re-registered for monitoring.
	done map[batch.JobID]struct{}
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		jobs: make(map[batch.JobID]batch.MonitoredJob),
		done: make(map[batch.JobID]struct{}),
	}
}

// Add inserts a monitored job. It rejects an ID that is already tracked and
// an ID whose job was previously removed.
func (r *Registry) Add(job batch.MonitoredJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("job %s is already monitored", job.ID)
	}
	if _, completed := r.done[job.ID]; completed {
		return fmt.Errorf("job %s already reached a terminal state", job.ID)
	}
	r.jobs[job.ID] = job
	return nil
}

// IDs returns a snapshot of the currently tracked IDs. The monitor iterates
// the snapshot, so removals during the pass cannot skip or repeat entries and
// jobs added mid-pass are only seen on the next pass.
func (r *Registry) IDs() []batch.JobID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]batch.JobID, 0, len(r.jobs))
	for id := range r.jobs {
		ids = append(ids, id)
	}
	return ids
}

// List returns a snapshot of the monitored jobs.
func (r *Registry) List() []batch.MonitoredJob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	jobs := make([]batch.MonitoredJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// Get looks up one monitored job.
func (r *Registry) Get(id batch.JobID) (batch.MonitoredJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	return job, ok
}

// Remove deletes the job. Removing an absent ID is a no-op.
func (r *Registry) Remove(id batch.JobID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return
	}
	delete(r.jobs, id)
	r.done[id] = struct{}{}
}

// Len reports how many jobs are currently monitored.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
