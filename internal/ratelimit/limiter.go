package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// Limiter admits at most a fixed number of events per key and window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

var _ Limiter = (*MemoryLimiter)(nil)

// MemoryLimiter is a process-local fixed window limiter.
type MemoryLimiter struct {
	limit  int64
	window time.Duration
	counts *cache.Cache
	now    func() time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) (*MemoryLimiter, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}

	return &MemoryLimiter{
		limit:  int64(limit),
		window: window,
		counts: cache.New(window, 2*window),
		now:    time.Now,
	}, nil
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return false, fmt.Errorf("key is required")
	}

	bucket := fmt.Sprintf("%s:%d", normalized, m.now().UTC().Truncate(m.window).Unix())
	if err := m.counts.Add(bucket, int64(1), m.window); err == nil {
		return true, nil
	}

	current, err := m.counts.IncrementInt64(bucket, 1)
	if err != nil {
		// The bucket expired between Add and IncrementInt64.
		m.counts.Set(bucket, int64(1), m.window)
		return true, nil
	}
	return current <= m.limit, nil
}
