package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/osvaldoandrade/elqbulk/pkg/domain"
	"github.com/osvaldoandrade/elqbulk/pkg/persistence"
)

// Plugin keeps jobs in process memory. Everything is lost on restart.
type Plugin struct {
	mu          sync.RWMutex
	jobs        map[string]*domain.Job
	results     map[string][]domain.RowOutcome
	idempotency map[string]string
	tz          *time.Location
}

func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	tz := config.Timezone
	if tz == nil {
		tz = time.UTC
	}
	return &Plugin{
		jobs:        make(map[string]*domain.Job),
		results:     make(map[string][]domain.RowOutcome),
		idempotency: make(map[string]string),
		tz:          tz,
	}, nil
}

// Register adds the memory provider to reg.
func Register(reg *persistence.Registry) {
	reg.Register("memory", NewPlugin)
}

func (p *Plugin) JobStorage() persistence.JobStorage {
	return &jobStorage{plugin: p}
}

func (p *Plugin) Health(ctx context.Context) error {
	return nil
}

func (p *Plugin) Close() error {
	return nil
}

type jobStorage struct {
	plugin *Plugin
}

func (s *jobStorage) Create(ctx context.Context, job *domain.Job, idempotencyKey string) (*domain.Job, bool, error) {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()

	if idempotencyKey != "" {
		if id, ok := s.plugin.idempotency[idempotencyKey]; ok {
			if existing, ok := s.plugin.jobs[id]; ok {
				return cloneJob(existing), true, nil
			}
		}
		s.plugin.idempotency[idempotencyKey] = job.ID
	}
	s.plugin.jobs[job.ID] = cloneJob(job)
	return cloneJob(job), false, nil
}

func (s *jobStorage) Get(ctx context.Context, id string) (*domain.Job, error) {
	s.plugin.mu.RLock()
	defer s.plugin.mu.RUnlock()

	job, ok := s.plugin.jobs[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return cloneJob(job), nil
}

func (s *jobStorage) Update(ctx context.Context, job *domain.Job) error {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()

	if _, ok := s.plugin.jobs[job.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.plugin.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *jobStorage) UpdateProgress(ctx context.Context, id string, processed int, message string) error {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()

	job, ok := s.plugin.jobs[id]
	if !ok {
		return persistence.ErrNotFound
	}
	job.ProcessedRows = processed
	job.Progress = message
	job.UpdatedAt = time.Now().In(s.plugin.tz)
	return nil
}

func (s *jobStorage) SaveResults(ctx context.Context, id string, results []domain.RowOutcome) error {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()

	if _, ok := s.plugin.jobs[id]; !ok {
		return persistence.ErrNotFound
	}
	cp := make([]domain.RowOutcome, len(results))
	copy(cp, results)
	s.plugin.results[id] = cp
	return nil
}

func (s *jobStorage) GetResults(ctx context.Context, id string) ([]domain.RowOutcome, error) {
	s.plugin.mu.RLock()
	defer s.plugin.mu.RUnlock()

	res, ok := s.plugin.results[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	cp := make([]domain.RowOutcome, len(res))
	copy(cp, res)
	return cp, nil
}

func (s *jobStorage) List(ctx context.Context, limit int) ([]*domain.Job, error) {
	s.plugin.mu.RLock()
	defer s.plugin.mu.RUnlock()

	out := make([]*domain.Job, 0, len(s.plugin.jobs))
	for _, job := range s.plugin.jobs {
		out = append(out, cloneJob(job))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *jobStorage) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	s.plugin.mu.RLock()
	defer s.plugin.mu.RUnlock()

	counts := make(map[domain.JobStatus]int64)
	for _, job := range s.plugin.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (s *jobStorage) CleanupExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 1000
	}
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()

	removed := 0
	for id, job := range s.plugin.jobs {
		if removed >= limit {
			break
		}
		if !job.Status.Finished() || job.FinishedAt == nil || !job.FinishedAt.Before(before) {
			continue
		}
		delete(s.plugin.jobs, id)
		delete(s.plugin.results, id)
		removed++
	}
	for key, id := range s.plugin.idempotency {
		if _, ok := s.plugin.jobs[id]; !ok {
			delete(s.plugin.idempotency, key)
		}
	}
	return removed, nil
}

func cloneJob(j *domain.Job) *domain.Job {
	cp := *j
	if j.Summary != nil {
		s := *j.Summary
		cp.Summary = &s
	}
	if j.Validation != nil {
		v := *j.Validation
		v.SampleRequests = append([]string(nil), j.Validation.SampleRequests...)
		cp.Validation = &v
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}
