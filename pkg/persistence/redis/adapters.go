package redis

import (
	"context"
	"errors"
	"time"

	"github.com/osvaldoandrade/elqbulk/internal/repository"
	"github.com/osvaldoandrade/elqbulk/pkg/domain"
	"github.com/osvaldoandrade/elqbulk/pkg/persistence"
)

// jobStorageAdapter adapts repository.JobRepository to persistence.JobStorage,
// translating the repository's not-found error.
type jobStorageAdapter struct {
	repo repository.JobRepository
}

func translate(err error) error {
	if errors.Is(err, repository.ErrJobNotFound) {
		return persistence.ErrNotFound
	}
	return err
}

func (a *jobStorageAdapter) Create(ctx context.Context, job *domain.Job, idempotencyKey string) (*domain.Job, bool, error) {
	stored, existed, err := a.repo.Create(ctx, job, idempotencyKey)
	return stored, existed, translate(err)
}

func (a *jobStorageAdapter) Get(ctx context.Context, id string) (*domain.Job, error) {
	j, err := a.repo.Get(ctx, id)
	return j, translate(err)
}

func (a *jobStorageAdapter) Update(ctx context.Context, job *domain.Job) error {
	return translate(a.repo.Update(ctx, job))
}

func (a *jobStorageAdapter) UpdateProgress(ctx context.Context, id string, processed int, message string) error {
	return translate(a.repo.UpdateProgress(ctx, id, processed, message))
}

func (a *jobStorageAdapter) SaveResults(ctx context.Context, id string, results []domain.RowOutcome) error {
	return translate(a.repo.SaveResults(ctx, id, results))
}

func (a *jobStorageAdapter) GetResults(ctx context.Context, id string) ([]domain.RowOutcome, error) {
	res, err := a.repo.GetResults(ctx, id)
	return res, translate(err)
}

func (a *jobStorageAdapter) List(ctx context.Context, limit int) ([]*domain.Job, error) {
	return a.repo.List(ctx, limit)
}

func (a *jobStorageAdapter) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	return a.repo.CountByStatus(ctx)
}

func (a *jobStorageAdapter) CleanupExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	return a.repo.CleanupExpired(ctx, before, limit)
}
