package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is an in-process sliding window. State is per process and lost on restart.
type MemoryLimiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

// NewMemoryLimiter 创建进程内滑动窗口限流器。
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		hits: make(map[string][]time.Time),
		now:  time.Now,
	}
}

// Allow records a hit when the window still has room.
func (l *MemoryLimiter) Allow(_ context.Context, rule Rule, id string) (bool, error) {
	k := key(rule, id)
	now := l.now()
	cutoff := now.Add(-rule.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.hits[k][:0]
	for _, ts := range l.hits[k] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= rule.Limit {
		l.hits[k] = recent
		return false, nil
	}
	l.hits[k] = append(recent, now)
	return true, nil
}

// Prune drops identifiers with no hit inside maxWindow.
func (l *MemoryLimiter) Prune(maxWindow time.Duration) {
	cutoff := l.now().Add(-maxWindow)

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, hits := range l.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(l.hits, k)
		}
	}
}

// RunJanitor prunes stale identifiers every interval until ctx is done.
func (l *MemoryLimiter) RunJanitor(ctx context.Context, interval, maxWindow time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune(maxWindow)
		}
	}
}
