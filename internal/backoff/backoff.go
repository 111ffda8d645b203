package backoff

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

type Policy string

const (
	Fixed          Policy = "fixed"
	Linear         Policy = "linear"
	Exponential    Policy = "exponential"
	ExpEqualJitter Policy = "exp_equal_jitter"
	ExpFullJitter  Policy = "exp_full_jitter"
)

var policies = map[Policy]bool{
	Fixed: true, Linear: true, Exponential: true, ExpEqualJitter: true, ExpFullJitter: true,
}

// ParsePolicy maps a config value to a Policy. Blank selects ExpFullJitter.
func ParsePolicy(s string) (Policy, error) {
	if s == "" {
		return ExpFullJitter, nil
	}
	p := Policy(s)
	if !policies[p] {
		return "", fmt.Errorf("unknown backoff policy %q", s)
	}
	return p, nil
}

// Schedule computes the wait before each retry. It is safe for concurrent use.
type Schedule struct {
	policy Policy
	base   time.Duration
	max    time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func New(policy Policy, base, max time.Duration) *Schedule {
	return NewSeeded(policy, base, max, time.Now().UnixNano())
}

// NewSeeded makes jitter reproducible.
func NewSeeded(policy Policy, base, max time.Duration, seed int64) *Schedule {
	if !policies[policy] {
		policy = ExpFullJitter
	}
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = base
	}
	return &Schedule{policy: policy, base: base, max: max, rng: rand.New(rand.NewSource(seed))}
}

func (s *Schedule) Policy() Policy { return s.policy }

// Delay returns the wait before retry n, counting from 0.
func (s *Schedule) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	switch s.policy {
	case Fixed:
		return min(s.base, s.max)
	case Linear:
		steps := time.Duration(max(1, n))
		if steps > s.max/s.base {
			return s.max
		}
		return min(s.base*steps, s.max)
	case Exponential:
		return s.ceiling(n)
	case ExpEqualJitter:
		c := s.ceiling(n)
		half := c / 2
		return half + s.jitter(c-half)
	default:
		return s.jitter(s.ceiling(n))
	}
}

// ceiling is base*2^n capped at max.
func (s *Schedule) ceiling(n int) time.Duration {
	d := s.base
	for i := 0; i < n; i++ {
		if d >= s.max {
			return s.max
		}
		d *= 2
	}
	return min(d, s.max)
}

// jitter returns a uniform value in [0, upTo].
func (s *Schedule) jitter(upTo time.Duration) time.Duration {
	if upTo <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.rng.Int63n(int64(upTo) + 1))
}
