package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/osvaldoandrade/elqbulk/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// JobCounter is satisfied by the job storage plugins.
type JobCounter interface {
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)
}

var trackedStatuses = []domain.JobStatus{
	domain.StatusIdle,
	domain.StatusRunning,
	domain.StatusCompleted,
	domain.StatusFailed,
	domain.StatusCanceled,
}

type jobsCollector struct {
	store  JobCounter
	logger *slog.Logger

	jobsDesc *prometheus.Desc
}

func newJobsCollector(store JobCounter, logger *slog.Logger) *jobsCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &jobsCollector{
		store:  store,
		logger: logger,
		jobsDesc: prometheus.NewDesc(
			namespace+"_jobs",
			"Current number of stored jobs by status.",
			[]string{"status"},
			nil,
		),
	}
}

func (c *jobsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobsDesc
}

func (c *jobsCollector) Collect(ch chan<- prometheus.Metric) {
	if c.store == nil {
		return
	}

	// Keep storage reads bounded so scrapes do not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	counts, err := c.store.CountByStatus(ctx)
	if err != nil {
		c.logger.Warn("prometheus jobs collector failed", "err", err)
		return
	}
	for _, st := range trackedStatuses {
		emitGauge(ch, c.jobsDesc, float64(counts[st]), string(st))
	}
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerJobsCollectorOnce sync.Once

func RegisterJobsCollector(store JobCounter, logger *slog.Logger) {
	registerJobsCollectorOnce.Do(func() {
		prometheus.MustRegister(newJobsCollector(store, logger))
	})
}
