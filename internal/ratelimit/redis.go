package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// takeScript 在 Redis 内原子地执行与 Take 相同的补充与扣减逻辑。
var takeScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = burst
  ts = now
end
if now > ts then
  tokens = math.min(burst, tokens + (now - ts) / interval * rate)
  ts = now
end
local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(ts))
redis.call('PEXPIRE', KEYS[1], ttl)
return allowed
`)

// RedisLimiter 使用 Lua 脚本在 Redis 中维护令牌桶，多实例之间精确一致。
type RedisLimiter struct {
	client redis.Scripter
	opts   options
}

// NewRedisLimiter 创建 Redis 限流器。
func NewRedisLimiter(client redis.Scripter, opts ...Option) *RedisLimiter {
	return &RedisLimiter{client: client, opts: collect(opts)}
}

// Allow 实现 Limiter。
func (r *RedisLimiter) Allow(ctx context.Context, key string, p Params) (bool, error) {
	res, err := takeScript.Run(ctx, r.client, []string{r.opts.prefix + key},
		p.TokensPerInterval,
		p.Interval.Milliseconds(),
		p.Burst,
		r.opts.now().UnixMilli(),
		p.ttl().Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("执行 Redis 限流脚本失败: %w", err)
	}
	return res == 1, nil
}

var _ Limiter = (*RedisLimiter)(nil)
