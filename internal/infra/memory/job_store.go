package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"code-exam-service/internal/domain"
)

// JobStore is an in-memory implementation of app.JobRepository. It enforces
// the same forward-only status rule as the Postgres repository.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]domain.GenerationJob
	clock func() time.Time
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs:  make(map[string]domain.GenerationJob),
		clock: time.Now,
	}
}

func (s *JobStore) Create(_ context.Context, job domain.GenerationJob) (domain.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return job, nil
}

func (s *JobStore) FindByID(_ context.Context, id string) (domain.GenerationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.GenerationJob{}, domain.ErrJobNotFound
	}
	return job, nil
}

func (s *JobStore) FindPending(_ context.Context) ([]domain.GenerationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.GenerationJob
	for _, job := range s.jobs {
		if job.Status == domain.JobPending {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *JobStore) FindByUser(_ context.Context, userID string) ([]domain.GenerationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.GenerationJob
	for _, job := range s.jobs {
		if job.CreatedBy == userID {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *JobStore) UpdateStatus(_ context.Context, id string, status domain.JobStatus, errorMessage string) (domain.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.GenerationJob{}, domain.ErrJobNotFound
	}
	if !job.Status.CanTransitionTo(status) {
		return domain.GenerationJob{}, domain.ErrInvalidTransition
	}
	job.Status = status
	job.ErrorMessage = errorMessage
	if status.Terminal() {
		now := s.clock()
		job.CompletedAt = &now
	}
	s.jobs[id] = job
	return job, nil
}
