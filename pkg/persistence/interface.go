package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/osvaldoandrade/elqbulk/pkg/domain"
)

var (
	// ErrNotFound is returned when a job or its results do not exist.
	ErrNotFound = errors.New("not found")
)

// PluginPersistence is implemented by every job storage backend.
type PluginPersistence interface {
	JobStorage() JobStorage

	Health(ctx context.Context) error

	Close() error
}

// JobStorage persists job records and their row outcomes.
type JobStorage interface {
	// Create stores a new job. When idempotencyKey matches an earlier job that
	// still exists, that job is returned with existed=true and nothing is written.
	Create(ctx context.Context, job *domain.Job, idempotencyKey string) (stored *domain.Job, existed bool, err error)

	Get(ctx context.Context, id string) (*domain.Job, error)

	// Update replaces the stored job record.
	Update(ctx context.Context, job *domain.Job) error

	UpdateProgress(ctx context.Context, id string, processed int, message string) error

	SaveResults(ctx context.Context, id string, results []domain.RowOutcome) error

	GetResults(ctx context.Context, id string) ([]domain.RowOutcome, error)

	// List returns up to limit jobs, newest first.
	List(ctx context.Context, limit int) ([]*domain.Job, error)

	CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)

	// CleanupExpired removes finished jobs that finished before the cutoff.
	CleanupExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
