// Package ratelimit implements per-client, per-route token buckets with
// three interchangeable backends: a Redis script (exact and shared), a
// NATS JetStream key-value bucket (shared but approximate under races)
// and process memory (exact but local).
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Params 描述一个令牌桶：每 Interval 补充 TokensPerInterval 个令牌，最多 Burst 个。
type Params struct {
	TokensPerInterval float64
	Interval          time.Duration
	Burst             float64
}

// Enabled 判断参数是否有效；无效参数表示不限流。
func (p Params) Enabled() bool {
	return p.TokensPerInterval > 0 && p.Interval > 0 && p.Burst >= 1
}

// ttl 是桶从空补满所需时间的两倍，超过后状态可以丢弃。
func (p Params) ttl() time.Duration {
	if !p.Enabled() {
		return time.Minute
	}
	fill := time.Duration(math.Ceil(p.Burst/p.TokensPerInterval)) * p.Interval
	if fill < time.Second {
		fill = time.Second
	}
	return 2 * fill
}

// State 是令牌桶的持久化状态。零值表示尚未创建的桶。
type State struct {
	Tokens    float64 `json:"tokens"`
	UpdatedAt int64   `json:"ts"`
}

// Take 按经过的时间补充令牌，若至少有一个令牌则消耗并放行。
// 新桶以 Burst 个令牌开始。
func Take(s State, now time.Time, p Params) (State, bool) {
	nowMs := now.UnixMilli()
	if s.UpdatedAt == 0 {
		s = State{Tokens: p.Burst, UpdatedAt: nowMs}
	}
	if elapsed := nowMs - s.UpdatedAt; elapsed > 0 {
		refill := float64(elapsed) / float64(p.Interval.Milliseconds()) * p.TokensPerInterval
		s.Tokens = math.Min(p.Burst, s.Tokens+refill)
		s.UpdatedAt = nowMs
	}
	if s.Tokens >= 1 {
		s.Tokens--
		return s, true
	}
	return s, false
}

// Limiter 是限流后端。
type Limiter interface {
	Allow(ctx context.Context, key string, p Params) (bool, error)
}
