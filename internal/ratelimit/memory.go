package ratelimit

import (
	"context"
	"sync"
	"time"
)

const memorySweepThreshold = 10000

// MemoryLimiter 在进程内保存令牌桶，不在实例之间共享。
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]memoryBucket
	now     func() time.Time
}

type memoryBucket struct {
	state State
	ttl   time.Duration
}

// NewMemoryLimiter 创建内存限流器。
func NewMemoryLimiter(opts ...Option) *MemoryLimiter {
	o := collect(opts)
	return &MemoryLimiter{buckets: make(map[string]memoryBucket), now: o.now}
}

// Allow 实现 Limiter。
func (m *MemoryLimiter) Allow(_ context.Context, key string, p Params) (bool, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.buckets) >= memorySweepThreshold {
		m.sweep(now)
	}
	next, ok := Take(m.buckets[key].state, now, p)
	m.buckets[key] = memoryBucket{state: next, ttl: p.ttl()}
	return ok, nil
}

// sweep 删除长时间未访问、已经补满的桶。
func (m *MemoryLimiter) sweep(now time.Time) {
	for key, b := range m.buckets {
		if now.Sub(time.UnixMilli(b.state.UpdatedAt)) > b.ttl {
			delete(m.buckets, key)
		}
	}
}

var _ Limiter = (*MemoryLimiter)(nil)
