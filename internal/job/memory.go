package job

import (
	"context"
	"sort"
	"sync"
)

// DefaultRetention is how many finished jobs a MemoryRepository keeps.
const DefaultRetention = 500

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps job snapshots in a map. Finished jobs beyond the
// retention limit are evicted oldest first; running jobs are never evicted.
type MemoryRepository struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	finished  []string
	retention int
}

// MemoryOption configures a MemoryRepository.
type MemoryOption func(*MemoryRepository)

// WithRetention sets how many finished jobs are kept.
func WithRetention(n int) MemoryOption {
	return func(r *MemoryRepository) {
		if n > 0 {
			r.retention = n
		}
	}
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository(opts ...MemoryOption) *MemoryRepository {
	r := &MemoryRepository{
		jobs:      make(map[string]*Job),
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Save stores a clone of job.
func (r *MemoryRepository) Save(_ context.Context, job *Job) error {
	snapshot := job.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.jobs[snapshot.ID]
	r.jobs[snapshot.ID] = snapshot
	if snapshot.IsTerminal() && (!existed || !prev.IsTerminal()) {
		r.finished = append(r.finished, snapshot.ID)
		r.evictLocked()
	}
	return nil
}

func (r *MemoryRepository) evictLocked() {
	for len(r.finished) > r.retention {
		delete(r.jobs, r.finished[0])
		r.finished = r.finished[1:]
	}
}

// FindByID returns a clone of the stored job.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// List returns clones of the jobs of conversationID (all when empty), newest first.
func (r *MemoryRepository) List(_ context.Context, conversationID string) ([]*Job, error) {
	r.mu.RLock()
	result := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if conversationID != "" && job.ConversationID != conversationID {
			continue
		}
		result = append(result, job.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}
