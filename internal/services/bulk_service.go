package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/osvaldoandrade/elqbulk/internal/ratelimit"
	"github.com/osvaldoandrade/elqbulk/internal/submit"
	"github.com/osvaldoandrade/elqbulk/internal/tracing"
	"github.com/osvaldoandrade/elqbulk/pkg/domain"
)

const sampleRequestCount = 3

// ProgressFunc receives the number of rows processed so far after each batch.
type ProgressFunc func(processed, total int, message string)

// RowSubmitter is implemented by *submit.Submitter.
type RowSubmitter interface {
	Submit(ctx context.Context, row domain.Row, target domain.SubmissionTarget, timeout time.Duration) domain.RowOutcome
	BuildRequest(row domain.Row, target domain.SubmissionTarget) submit.PreparedRequest
}

type BulkSubmissionService interface {
	Run(ctx context.Context, rows []domain.Row, target domain.SubmissionTarget, opts domain.SubmissionOptions, progress ProgressFunc) (*domain.JobOutput, error)
	Validate(rows []domain.Row, target domain.SubmissionTarget) (*domain.ValidationReport, error)
}

type bulkSubmissionService struct {
	logger    *slog.Logger
	submitter RowSubmitter
	limiter   ratelimit.Limiter
	tracer    trace.Tracer
}

func NewBulkSubmissionService(logger *slog.Logger, submitter RowSubmitter, limiter ratelimit.Limiter) BulkSubmissionService {
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = ratelimit.NewLocalLimiter()
	}
	return &bulkSubmissionService{
		logger:    logger,
		submitter: submitter,
		limiter:   limiter,
		tracer:    tracing.Tracer(),
	}
}

// Run submits rows in consecutive batches of MaxConcurrentRequests. A batch
// finishes completely before the next one starts. When ctx is canceled the
// rows processed so far are returned together with ErrJobCanceled.
func (s *bulkSubmissionService) Run(ctx context.Context, rows []domain.Row, target domain.SubmissionTarget, opts domain.SubmissionOptions, progress ProgressFunc) (*domain.JobOutput, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	if opts.ValidateOnly {
		report, err := s.Validate(rows, target)
		if err != nil {
			return nil, err
		}
		return &domain.JobOutput{Validation: report, Results: []domain.RowOutcome{}, Timestamp: time.Now().UTC()}, nil
	}

	total := len(rows)
	batchSize := opts.MaxConcurrentRequests
	ctx, span := s.tracer.Start(ctx, "elqbulk.bulk_submit", trace.WithAttributes(
		attribute.String("elqbulk.site_id", target.SiteID),
		attribute.String("elqbulk.form_name", target.FormName),
		attribute.Int("elqbulk.total_rows", total),
		attribute.Int("elqbulk.batch_size", batchSize),
	))
	defer span.End()

	s.logger.Info("bulk submission started",
		"siteId", target.SiteID, "formName", target.FormName,
		"rows", total, "batchSize", batchSize,
		"delayMs", opts.DelayBetweenBatchesMs, "staggerMs", opts.StaggerWithinBatchMs)

	results := make([]domain.RowOutcome, total)
	processed := 0
	canceled := func() (*domain.JobOutput, error) {
		span.SetStatus(codes.Error, "canceled")
		s.logger.Info("bulk submission canceled", "processed", processed, "total", total)
		return partialOutput(results[:processed]), fmt.Errorf("%w after %d/%d rows", ErrJobCanceled, processed, total)
	}

	for start := 0; start < total; start += batchSize {
		if ctx.Err() != nil {
			return canceled()
		}
		end := start + batchSize
		if end > total {
			end = total
		}

		if err := s.runBatch(ctx, rows[start:end], start, target, opts, results); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Error("bulk submission aborted", "err", err, "batchStart", start)
			return partialOutput(results[:end]), err
		}
		processed = end
		if progress != nil {
			progress(processed, total, ProgressMessage(processed, total))
		}
		if ctx.Err() != nil {
			return canceled()
		}
		if end < total && opts.DelayBetweenBatchesMs > 0 {
			if sleepOrDone(ctx, opts.DelayBetweenBatches()) != nil {
				return canceled()
			}
		}
	}

	summary, err := Aggregate(results)
	if err != nil {
		return partialOutput(results), fmt.Errorf("%w: %v", ErrInternal, err)
	}
	span.SetAttributes(
		attribute.Int("elqbulk.successful", summary.SuccessfulRequests),
		attribute.Int("elqbulk.failed", summary.FailedRequests),
	)
	s.logger.Info("bulk submission finished",
		"rows", total, "successful", summary.SuccessfulRequests,
		"failed", summary.FailedRequests, "successRate", summary.SuccessRate)
	return &domain.JobOutput{Summary: &summary, Results: results, Timestamp: time.Now().UTC()}, nil
}

// runBatch submits every row of the batch concurrently and writes each
// outcome at its own index of results.
func (s *bulkSubmissionService) runBatch(ctx context.Context, batch []domain.Row, start int, target domain.SubmissionTarget, opts domain.SubmissionOptions, results []domain.RowOutcome) error {
	ctx, span := s.tracer.Start(ctx, "elqbulk.batch", trace.WithAttributes(
		attribute.Int("elqbulk.batch_start", start),
		attribute.Int("elqbulk.batch_len", len(batch)),
	))
	defer span.End()

	var (
		wg       sync.WaitGroup
		panicMu  sync.Mutex
		panicked error
	)
	for p, row := range batch {
		wg.Add(1)
		go func(p int, row domain.Row) {
			defer wg.Done()
			rowNumber := start + p + 1
			defer func() {
				if r := recover(); r != nil {
					panicMu.Lock()
					if panicked == nil {
						panicked = fmt.Errorf("%w: row %d: %v", ErrInternal, rowNumber, r)
					}
					panicMu.Unlock()
				}
			}()
			out := s.submitRow(ctx, row, p, target, opts)
			out.RowNumber = rowNumber
			results[rowNumber-1] = out
		}(p, row)
	}
	wg.Wait()

	s.logger.Debug("batch finished", "start", start, "size", len(batch))
	return panicked
}

func (s *bulkSubmissionService) submitRow(ctx context.Context, row domain.Row, position int, target domain.SubmissionTarget, opts domain.SubmissionOptions) domain.RowOutcome {
	if position > 0 && opts.StaggerWithinBatchMs > 0 {
		if sleepOrDone(ctx, time.Duration(position)*opts.StaggerWithinBatch()) != nil {
			return abortedOutcome(s.submitter.BuildRequest(row, target), row)
		}
	}
	if opts.MaxRequestsPerMinute > 0 {
		bucket := ratelimit.Bucket{RequestsPerMinute: opts.MaxRequestsPerMinute, BurstSize: 1}
		if ratelimit.Wait(ctx, s.limiter, ratelimit.ScopeFormSubmit, target.SiteID, bucket, s.logger) != nil {
			return abortedOutcome(s.submitter.BuildRequest(row, target), row)
		}
	}
	return s.submitter.Submit(ctx, row, target, opts.RequestTimeout())
}

func (s *bulkSubmissionService) Validate(rows []domain.Row, target domain.SubmissionTarget) (*domain.ValidationReport, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	n := sampleRequestCount
	if len(rows) < n {
		n = len(rows)
	}
	samples := make([]string, 0, n)
	for _, row := range rows[:n] {
		samples = append(samples, s.submitter.BuildRequest(row, target).URL)
	}
	return &domain.ValidationReport{
		TotalRows:      len(rows),
		ValidRows:      len(rows),
		SampleRequests: samples,
	}, nil
}

// ProgressMessage formats the per-batch progress line.
func ProgressMessage(processed, total int) string {
	pct := 0
	if total > 0 {
		pct = int(math.Round(float64(processed) * 100 / float64(total)))
	}
	return fmt.Sprintf("Processed %d/%d rows (%d%%)", processed, total, pct)
}

func abortedOutcome(prepared submit.PreparedRequest, row domain.Row) domain.RowOutcome {
	return domain.RowOutcome{
		URL:            prepared.URL,
		ParameterCount: prepared.ParameterCount,
		Error:          "request aborted: job canceled",
		Data:           row,
	}
}

// partialOutput keeps only the outcomes that were actually produced and
// summarizes them when there are any.
func partialOutput(results []domain.RowOutcome) *domain.JobOutput {
	out := make([]domain.RowOutcome, 0, len(results))
	for _, r := range results {
		if r.RowNumber > 0 {
			out = append(out, r)
		}
	}
	partial := &domain.JobOutput{Results: out, Timestamp: time.Now().UTC()}
	if summary, err := Aggregate(out); err == nil {
		partial.Summary = &summary
	}
	return partial
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
