package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/osvaldoandrade/elqbulk/internal/backoff"
	"github.com/osvaldoandrade/elqbulk/internal/metrics"
	"github.com/osvaldoandrade/elqbulk/internal/ratelimit"
	"github.com/osvaldoandrade/elqbulk/internal/tracing"
	"github.com/osvaldoandrade/elqbulk/pkg/domain"
)

const (
	HeaderWebhookTimestamp = "X-Elqbulk-Timestamp"
	HeaderWebhookSignature = "X-Elqbulk-Signature"
)

type WebhookConfig struct {
	Secret             string
	MaxAttempts        int
	BaseBackoffSeconds int
	MaxBackoffSeconds  int
	BackoffPolicy      string
	RateLimit          ratelimit.Bucket
}

// JobCallbackService posts a signed completion notice to a job's webhook.
type JobCallbackService interface {
	// Notify delivers in the background and returns immediately.
	Notify(ctx context.Context, job domain.Job)
	// Deliver blocks until the webhook accepted the notice or attempts ran out.
	Deliver(ctx context.Context, job domain.Job) error
}

type jobCallbackService struct {
	logger  *slog.Logger
	client  *http.Client
	cfg     WebhookConfig
	limiter ratelimit.Limiter

	schedule *backoff.Schedule
}

type webhookPayload struct {
	JobID       string                   `json:"jobId"`
	Operation   domain.Operation         `json:"operation"`
	Status      domain.JobStatus         `json:"status"`
	Summary     *domain.JobSummary       `json:"summary,omitempty"`
	Validation  *domain.ValidationReport `json:"validation,omitempty"`
	Error       string                   `json:"error,omitempty"`
	ExportURL   string                   `json:"exportUrl,omitempty"`
	CompletedAt time.Time                `json:"completedAt"`
}

func NewJobCallbackService(logger *slog.Logger, client *http.Client, cfg WebhookConfig, limiter ratelimit.Limiter) JobCallbackService {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseBackoffSeconds <= 0 {
		cfg.BaseBackoffSeconds = 2
	}
	if cfg.MaxBackoffSeconds <= 0 {
		cfg.MaxBackoffSeconds = 60
	}
	policy, err := backoff.ParsePolicy(cfg.BackoffPolicy)
	if err != nil {
		logger.Warn("invalid webhook backoff policy, using default", "policy", cfg.BackoffPolicy)
		policy = backoff.ExpFullJitter
	}
	cfg.BackoffPolicy = string(policy)
	return &jobCallbackService{
		logger:   logger,
		client:   client,
		cfg:      cfg,
		limiter:  limiter,
		schedule: backoff.New(policy,
			time.Duration(cfg.BaseBackoffSeconds)*time.Second,
			time.Duration(cfg.MaxBackoffSeconds)*time.Second),
	}
}

func (s *jobCallbackService) Notify(ctx context.Context, job domain.Job) {
	if strings.TrimSpace(job.Webhook) == "" {
		return
	}
	// The job context may already be canceled; delivery outlives it.
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := s.Deliver(ctx, job); err != nil {
			s.logger.Warn("job webhook failed", "jobId", job.ID, "url", job.Webhook, "err", err)
		}
	}()
}

func (s *jobCallbackService) Deliver(ctx context.Context, job domain.Job) error {
	if strings.TrimSpace(job.Webhook) == "" {
		return nil
	}
	completedAt := time.Now().UTC()
	if job.FinishedAt != nil {
		completedAt = job.FinishedAt.UTC()
	}
	body, err := json.Marshal(webhookPayload{
		JobID:       job.ID,
		Operation:   job.Operation,
		Status:      job.Status,
		Summary:     job.Summary,
		Validation:  job.Validation,
		Error:       job.Error,
		ExportURL:   job.ExportURL,
		CompletedAt: completedAt,
	})
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if err := ratelimit.Wait(ctx, s.limiter, ratelimit.ScopeWebhook, job.Webhook, s.cfg.RateLimit, s.logger); err != nil {
			return err
		}
		lastErr = s.post(ctx, job.Webhook, body)
		if lastErr == nil {
			metrics.WebhookDeliveriesTotal.WithLabelValues(string(job.Operation), "success").Inc()
			return nil
		}
		s.logger.Debug("job webhook attempt failed", "jobId", job.ID, "attempt", attempt, "err", lastErr)
		if attempt == s.cfg.MaxAttempts {
			break
		}
		if err := sleepOrDone(ctx, s.backoffDelay(attempt)); err != nil {
			return err
		}
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues(string(job.Operation), "failure").Inc()
	return fmt.Errorf("webhook delivery failed after %d attempts: %w", s.cfg.MaxAttempts, lastErr)
}

func (s *jobCallbackService) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectHeaders(ctx, req.Header)
	s.addSignature(req, body)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *jobCallbackService) backoffDelay(attempt int) time.Duration {
	return s.schedule.Delay(attempt - 1)
}

func (s *jobCallbackService) addSignature(req *http.Request, body []byte) {
	if strings.TrimSpace(s.cfg.Secret) == "" {
		return
	}
	ts := time.Now().UTC().Unix()
	req.Header.Set(HeaderWebhookTimestamp, fmt.Sprintf("%d", ts))
	req.Header.Set(HeaderWebhookSignature, Sign(s.cfg.Secret, ts, body))
}

// Sign computes the hex HMAC-SHA256 of "<ts>." followed by body.
func Sign(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.", ts)))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
