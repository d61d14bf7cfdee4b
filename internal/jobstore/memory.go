package jobstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/makeasinger/musicvideo/internal/model"
)

type memoryEntry struct {
	job       *model.Job
	expiresAt time.Time
}

// MemoryStore keeps jobs in process memory with TTL eviction
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*memoryEntry
	ttl  time.Duration
	now  func() time.Time
	log  *slog.Logger
}

// NewMemoryStore creates an in-memory store. Jobs not consumed within ttl
// are dropped by Sweep.
func NewMemoryStore(ttl time.Duration, log *slog.Logger) *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*memoryEntry),
		ttl:  ttl,
		now:  time.Now,
		log:  log.With("component", "jobstore"),
	}
}

func (s *MemoryStore) PutIfAbsent(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.jobs[job.ID]; ok && !s.expired(e) {
		return model.ErrJobExists
	}
	now := s.now()
	stored := cloneJob(job)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.jobs[job.ID] = &memoryEntry{job: stored, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok || s.expired(e) {
		return nil, model.ErrJobNotFound
	}
	return cloneJob(e.job), nil
}

func (s *MemoryStore) Transition(ctx context.Context, id string, from []model.JobStatus, to model.JobStatus, mutate func(*model.Job)) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok || s.expired(e) {
		return nil, model.ErrJobNotFound
	}

	next := cloneJob(e.job)
	if err := applyTransition(next, from, to, mutate, s.now()); err != nil {
		return nil, err
	}
	e.job = next
	return cloneJob(next), nil
}

func (s *MemoryStore) ConsumeIfPresent(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	delete(s.jobs, id)
	if s.expired(e) {
		return nil, model.ErrJobNotFound
	}
	return e.job, nil
}

// Len returns the number of stored jobs, expired or not
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Sweep drops expired jobs and returns how many were removed
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.jobs {
		if s.expired(e) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired jobs every interval until ctx is cancelled
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.Info("evicted expired jobs", "count", n)
			}
		}
	}
}

func (s *MemoryStore) expired(e *memoryEntry) bool {
	return s.ttl > 0 && !s.now().Before(e.expiresAt)
}
