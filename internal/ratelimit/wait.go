package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/osvaldoandrade/elqbulk/internal/metrics"
)

// Wait blocks until the limiter admits one request or ctx is done. Limiter
// errors are logged and admit the request.
func Wait(ctx context.Context, l Limiter, scope, subject string, bucket Bucket, logger *slog.Logger) error {
	if l == nil || !bucket.Enabled() {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	for {
		dec, err := l.Allow(ctx, scope, subject, bucket)
		if err != nil {
			logger.Warn("rate limiter failed; allowing request", "scope", scope, "err", err)
			return nil
		}
		if dec.Allowed {
			return nil
		}
		metrics.RateLimitHitsTotal.WithLabelValues(scope).Inc()
		timer := time.NewTimer(dec.RetryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
