package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestLimiter(t *testing.T) *TokenBucketLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewTokenBucketLimiter(rdb)
}

func TestTokenBucketLimiter_Allow_Disabled(t *testing.T) {
	lim := newTestLimiter(t)

	dec, err := lim.Allow(context.Background(), ScopeJobCreate, "user-1", Bucket{})
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allowed when bucket disabled")
	}
}

func TestTokenBucketLimiter_Allow_BlocksAfterBurst(t *testing.T) {
	lim := newTestLimiter(t)
	bucket := Bucket{RequestsPerMinute: 60, BurstSize: 1}

	dec1, err := lim.Allow(context.Background(), ScopeFormSubmit, "100", bucket)
	if err != nil {
		t.Fatalf("allow 1: %v", err)
	}
	if !dec1.Allowed {
		t.Fatalf("expected first request to be allowed")
	}

	dec2, err := lim.Allow(context.Background(), ScopeFormSubmit, "100", bucket)
	if err != nil {
		t.Fatalf("allow 2: %v", err)
	}
	if dec2.Allowed {
		t.Fatalf("expected second request to be rate limited")
	}
	if dec2.RetryAfter <= 0 || dec2.RetryAfter > time.Second {
		t.Fatalf("retryAfter = %v, want (0,1s]", dec2.RetryAfter)
	}

	decOther, err := lim.Allow(context.Background(), ScopeFormSubmit, "200", bucket)
	if err != nil {
		t.Fatalf("allow other: %v", err)
	}
	if !decOther.Allowed {
		t.Fatalf("expected other subject to be allowed (independent bucket)")
	}
}

func TestTokenBucketLimiter_NilClientAllows(t *testing.T) {
	var lim *TokenBucketLimiter
	dec, err := lim.Allow(context.Background(), ScopeWebhook, "x", Bucket{RequestsPerMinute: 1, BurstSize: 1})
	if err != nil || !dec.Allowed {
		t.Fatalf("nil limiter should allow, got %+v %v", dec, err)
	}
}

func TestComputeTTLMS(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		capacity float64
		want     time.Duration
	}{
		{"invalid falls back", 0, 0, 2 * time.Minute},
		{"floor", 100, 1, 30 * time.Second},
		{"ceiling", 0.001, 1000, time.Hour},
		{"two refill cycles", 1, 60, 125 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := computeTTLMS(tt.rate, tt.capacity); got != tt.want.Milliseconds() {
				t.Errorf("computeTTLMS = %d, want %d", got, tt.want.Milliseconds())
			}
		})
	}
}
