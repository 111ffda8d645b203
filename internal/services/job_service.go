package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/osvaldoandrade/elqbulk/internal/export"
	"github.com/osvaldoandrade/elqbulk/internal/ingest"
	"github.com/osvaldoandrade/elqbulk/internal/metrics"
	"github.com/osvaldoandrade/elqbulk/internal/providers"
	"github.com/osvaldoandrade/elqbulk/internal/tracing"
	"github.com/osvaldoandrade/elqbulk/pkg/domain"
	"github.com/osvaldoandrade/elqbulk/pkg/persistence"
)

const recoverScanLimit = 10000

type JobService interface {
	// Create parses and validates the request synchronously, stores an IDLE
	// job and runs it in the background. existed is true when the
	// idempotency key matched an earlier job.
	Create(ctx context.Context, req domain.CreateJobRequest) (job *domain.Job, existed bool, err error)
	// Preview runs the dry-run synchronously without creating a job.
	Preview(ctx context.Context, req domain.CreateJobRequest) (*domain.ValidationReport, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, limit int) ([]*domain.Job, error)
	Results(ctx context.Context, id string) ([]domain.RowOutcome, error)
	Cancel(ctx context.Context, id string) (*domain.Job, error)
	// RecoverInterrupted marks jobs left unfinished by a previous process as FAILED.
	RecoverInterrupted(ctx context.Context) (int, error)
	// Shutdown cancels running jobs and waits for them to record their final state.
	Shutdown(ctx context.Context) error
}

type JobServiceConfig struct {
	MaxActiveJobs int
	MaxCSVBytes   int64
}

type runningJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type jobService struct {
	store     persistence.JobStorage
	ops       *OperationRegistry
	callbacks JobCallbackService
	uploader  providers.Uploader
	logger    *slog.Logger
	tz        *time.Location
	now       func() time.Time
	cfg       JobServiceConfig
	tracer    trace.Tracer

	mu      sync.Mutex
	running map[string]*runningJob
	wg      sync.WaitGroup
}

func NewJobService(store persistence.JobStorage, ops *OperationRegistry, callbacks JobCallbackService, uploader providers.Uploader, logger *slog.Logger, tz *time.Location, cfg JobServiceConfig) JobService {
	if logger == nil {
		logger = slog.Default()
	}
	if tz == nil {
		tz = time.UTC
	}
	return &jobService{
		store:     store,
		ops:       ops,
		callbacks: callbacks,
		uploader:  uploader,
		logger:    logger,
		tz:        tz,
		now:       time.Now,
		cfg:       cfg,
		tracer:    tracing.Tracer(),
		running:   make(map[string]*runningJob),
	}
}

type preparedJob struct {
	op      domain.Operation
	handler OperationHandler
	target  domain.SubmissionTarget
	opts    domain.SubmissionOptions
	parsed  *ingest.Result
}

// prepare runs every synchronous check of a request before any job exists.
func (s *jobService) prepare(req domain.CreateJobRequest) (*preparedJob, error) {
	handler, err := s.ops.Lookup(req.Operation)
	if err != nil {
		return nil, err
	}
	op := req.Operation
	if op == "" {
		op = domain.OpSubmit
	}
	target := domain.SubmissionTarget{SiteID: strings.TrimSpace(req.SiteID), FormName: strings.TrimSpace(req.FormName)}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	opts := req.Options
	opts.ApplyDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if req.Webhook != "" {
		u, err := url.Parse(req.Webhook)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, ErrInvalidWebhook
		}
	}

	parseOpts := ingest.Options{Encoding: req.Encoding, MaxBytes: s.cfg.MaxCSVBytes}
	if req.Delimiter != "" {
		d, ok := ingest.ValidDelimiter(req.Delimiter)
		if !ok {
			return nil, fmt.Errorf("%w: unsupported delimiter %q", domain.ErrInvalidOptions, req.Delimiter)
		}
		parseOpts.Delimiter = d
	}
	parsed, err := ingest.ParseReader(strings.NewReader(req.CSV), parseOpts)
	if err != nil {
		return nil, err
	}
	return &preparedJob{op: op, handler: handler, target: target, opts: opts, parsed: parsed}, nil
}

func (s *jobService) Preview(ctx context.Context, req domain.CreateJobRequest) (*domain.ValidationReport, error) {
	req.Operation = domain.OpValidate
	p, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	p.opts.ValidateOnly = true
	out, err := p.handler(ctx, p.parsed.Rows, p.target, p.opts, nil)
	if err != nil {
		return nil, err
	}
	return out.Validation, nil
}

func (s *jobService) Create(ctx context.Context, req domain.CreateJobRequest) (*domain.Job, bool, error) {
	p, err := s.prepare(req)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.MaxActiveJobs > 0 && len(s.running) >= s.cfg.MaxActiveJobs {
		return nil, false, ErrTooManyJobs
	}

	now := s.now().In(s.tz)
	tp, ts := tracing.TraceContextStrings(ctx)
	job := &domain.Job{
		ID:          uuid.NewString(),
		Operation:   p.op,
		Status:      domain.StatusIdle,
		Target:      p.target,
		Options:     p.opts,
		TotalRows:   len(p.parsed.Rows),
		Webhook:     req.Webhook,
		TraceParent: tp,
		TraceState:  ts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	stored, existed, err := s.store.Create(ctx, job, strings.TrimSpace(req.IdempotencyKey))
	if err != nil {
		return nil, false, err
	}
	if existed {
		return stored, true, nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	rj := &runningJob{cancel: cancel, done: make(chan struct{})}
	s.running[job.ID] = rj
	s.wg.Add(1)
	runJob := *stored
	go s.run(runCtx, rj, &runJob, p.parsed.Rows, p.handler)

	s.logger.Info("job created", "jobId", job.ID, "operation", p.op, "rows", job.TotalRows,
		"skipped", p.parsed.SkippedRecords, "neutralized", p.parsed.NeutralizedCells)
	return stored, false, nil
}

func (s *jobService) run(ctx context.Context, rj *runningJob, job *domain.Job, rows []domain.Row, handler OperationHandler) {
	defer s.wg.Done()
	defer close(rj.done)
	defer func() {
		s.mu.Lock()
		delete(s.running, job.ID)
		s.mu.Unlock()
		rj.cancel()
	}()

	ctx = tracing.ContextWithRemoteParent(ctx, job.TraceParent, job.TraceState)
	ctx, span := s.tracer.Start(ctx, "elqbulk.job", trace.WithAttributes(
		attribute.String("elqbulk.job_id", job.ID),
		attribute.String("elqbulk.operation", string(job.Operation)),
		attribute.Int("elqbulk.total_rows", job.TotalRows),
	))
	defer span.End()

	// Bookkeeping must survive a canceled run.
	storeCtx := context.WithoutCancel(ctx)

	started := s.now().In(s.tz)
	job.Status = domain.StatusRunning
	job.StartedAt = &started
	job.UpdatedAt = started
	if err := s.store.Update(storeCtx, job); err != nil {
		s.logger.Warn("job start not persisted", "jobId", job.ID, "err", err)
	}

	progress := func(processed, total int, message string) {
		if err := s.store.UpdateProgress(storeCtx, job.ID, processed, message); err != nil {
			s.logger.Warn("job progress not persisted", "jobId", job.ID, "err", err)
		}
		s.logger.Debug("job progress", "jobId", job.ID, "progress", message)
	}

	out, runErr := handler(ctx, rows, job.Target, job.Options, progress)

	if out != nil {
		job.Summary = out.Summary
		job.Validation = out.Validation
		if out.Summary != nil {
			job.ProcessedRows = out.Summary.TotalRows
		} else if out.Validation != nil {
			job.ProcessedRows = out.Validation.TotalRows
		}
		if err := s.store.SaveResults(storeCtx, job.ID, out.Results); err != nil {
			s.logger.Warn("job results not persisted", "jobId", job.ID, "err", err)
		}
		if len(out.Results) > 0 {
			job.Progress = ProgressMessage(len(out.Results), job.TotalRows)
			job.ExportURL = s.uploadExport(storeCtx, job.ID, out.Results)
		}
	}

	switch {
	case runErr == nil:
		job.Status = domain.StatusCompleted
	case errors.Is(runErr, ErrJobCanceled):
		job.Status = domain.StatusCanceled
		job.Error = runErr.Error()
	default:
		job.Status = domain.StatusFailed
		job.Error = runErr.Error()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	finished := s.now().In(s.tz)
	job.FinishedAt = &finished
	job.UpdatedAt = finished
	if err := s.store.Update(storeCtx, job); err != nil {
		s.logger.Warn("job result not persisted", "jobId", job.ID, "err", err)
	}

	metrics.JobsTotal.WithLabelValues(string(job.Operation), string(job.Status)).Inc()
	metrics.JobDurationSeconds.WithLabelValues(string(job.Operation), string(job.Status)).Observe(finished.Sub(started).Seconds())
	s.logger.Info("job finished", "jobId", job.ID, "status", job.Status, "durationMs", finished.Sub(started).Milliseconds(), "err", job.Error)

	if s.callbacks != nil {
		s.callbacks.Notify(storeCtx, *job)
	}
}

func (s *jobService) uploadExport(ctx context.Context, id string, results []domain.RowOutcome) string {
	if s.uploader == nil {
		return ""
	}
	data, err := export.ResultsCSV(results)
	if err != nil {
		s.logger.Warn("results export failed", "jobId", id, "err", err)
		return ""
	}
	u, err := s.uploader.UploadBytes(ctx, fmt.Sprintf("jobs/%s/results.csv", id), export.FormatCSV.ContentType(), data)
	if err != nil {
		s.logger.Warn("results upload failed", "jobId", id, "err", err)
		return ""
	}
	return u
}

func (s *jobService) Get(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return job, nil
}

func (s *jobService) List(ctx context.Context, limit int) ([]*domain.Job, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.store.List(ctx, limit)
}

func (s *jobService) Results(ctx context.Context, id string) ([]domain.RowOutcome, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	results, err := s.store.GetResults(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return []domain.RowOutcome{}, nil
	}
	return results, err
}

func (s *jobService) Cancel(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Finished() {
		return job, ErrJobFinished
	}

	s.mu.Lock()
	rj, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		rj.cancel()
		select {
		case <-rj.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return s.Get(ctx, id)
	}

	// Not owned by this process.
	now := s.now().In(s.tz)
	job.Status = domain.StatusCanceled
	job.Error = ErrJobCanceled.Error()
	job.FinishedAt = &now
	job.UpdatedAt = now
	if err := s.store.Update(ctx, job); err != nil {
		return nil, notFound(err)
	}
	return job, nil
}

func (s *jobService) RecoverInterrupted(ctx context.Context) (int, error) {
	jobs, err := s.store.List(ctx, recoverScanLimit)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, job := range jobs {
		if job.Status.Finished() {
			continue
		}
		s.mu.Lock()
		_, owned := s.running[job.ID]
		s.mu.Unlock()
		if owned {
			continue
		}
		now := s.now().In(s.tz)
		job.Status = domain.StatusFailed
		job.Error = "interrupted by restart"
		job.FinishedAt = &now
		job.UpdatedAt = now
		if err := s.store.Update(ctx, job); err != nil {
			return recovered, err
		}
		recovered++
	}
	if recovered > 0 {
		s.logger.Warn("marked interrupted jobs as failed", "count", recovered)
	}
	return recovered, nil
}

func (s *jobService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, rj := range s.running {
		rj.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func notFound(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrJobNotFound
	}
	return err
}
