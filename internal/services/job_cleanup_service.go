package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/osvaldoandrade/elqbulk/pkg/persistence"
)

const cleanupBatchLimit = 1000

type JobCleanupService interface {
	Start(ctx context.Context)
	// Sweep removes finished jobs older than the retention window once.
	Sweep(ctx context.Context) (int, error)
}

type jobCleanupService struct {
	store     persistence.JobStorage
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewJobCleanupService(store persistence.JobStorage, logger *slog.Logger, intervalSeconds int, retentionHours int) JobCleanupService {
	if intervalSeconds <= 0 {
		intervalSeconds = 60
	}
	if retentionHours <= 0 {
		retentionHours = 24
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &jobCleanupService{
		store:     store,
		logger:    logger,
		interval:  time.Duration(intervalSeconds) * time.Second,
		retention: time.Duration(retentionHours) * time.Hour,
		now:       time.Now,
	}
}

func (s *jobCleanupService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Warn("job cleanup failed", "err", err)
				continue
			}
			if removed > 0 {
				s.logger.Info("job cleanup removed", "count", removed)
			}
		}
	}
}

func (s *jobCleanupService) Sweep(ctx context.Context) (int, error) {
	return s.store.CleanupExpired(ctx, s.now().Add(-s.retention), cleanupBatchLimit)
}
