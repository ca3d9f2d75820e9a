package job

import "sync"

// Registry maps job ids to jobs and remembers each owner's most recent
// submission so the legacy no-id download path can still resolve.
type Registry struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	lastByOwner map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs:        make(map[string]*Job),
		lastByOwner: make(map[string]string),
	}
}

// Add registers the job and records it as its owner's most recent.
func (r *Registry) Add(j *Job) {
	r.mu.Lock()
	r.jobs[j.ID] = j
	r.lastByOwner[j.OwnerID] = j.ID
	r.mu.Unlock()
}

// Get returns the job with the given id.
func (r *Registry) Get(id string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	return j, ok
}

// LastFor returns the owner's most recently submitted job.
func (r *Registry) LastFor(owner string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.lastByOwner[owner]
	if !ok {
		return nil, false
	}
	j, ok := r.jobs[id]
	return j, ok
}

// PruneTerminal drops the owner's terminal jobs other than keepID and
// returns them so the caller can release their artifacts. Live jobs stay
// registered; they are picked up on a later submission.
func (r *Registry) PruneTerminal(owner, keepID string) []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pruned []*Job
	for id, j := range r.jobs {
		if id == keepID || j.OwnerID != owner {
			continue
		}
		if !j.State().Terminal() {
			continue
		}
		delete(r.jobs, id)
		pruned = append(pruned, j)
	}
	return pruned
}

// Len reports how many jobs are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
