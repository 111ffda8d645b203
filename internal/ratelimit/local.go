package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter is the in-process backend used when no Redis is configured.
// Each distinct bucket config gets its own limiter per scope and subject.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{buckets: make(map[string]*rate.Limiter)}
}

func (l *LocalLimiter) Allow(_ context.Context, scope string, subject string, bucket Bucket) (Decision, error) {
	if l == nil || !bucket.Enabled() {
		return Decision{Allowed: true}, nil
	}
	key := fmt.Sprintf("%s:%s:%d/%d", normalizeScope(scope), normalizeSubject(subject), bucket.RequestsPerMinute, bucket.BurstSize)
	lim := l.limiter(key, bucket)

	r := lim.Reserve()
	if !r.OK() {
		return Decision{Allowed: false, RetryAfter: time.Second}, nil
	}
	delay := r.Delay()
	if delay == 0 {
		return Decision{Allowed: true}, nil
	}
	r.Cancel()
	return Decision{Allowed: false, RetryAfter: delay}, nil
}

func (l *LocalLimiter) limiter(key string, bucket Bucket) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.buckets[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(bucket.RequestsPerMinute)/60.0), bucket.BurstSize)
		l.buckets[key] = lim
	}
	return lim
}
