package ratelimit

// Backend 标识限流后端。
type Backend string

const (
	BackendRedis  Backend = "redis"
	BackendKV     Backend = "nats-kv"
	BackendMemory Backend = "memory"
)

// Availability 描述当前可用的共享存储。
type Availability struct {
	Redis bool
	KV    bool
}

// Select 按优先级选择后端：Redis 脚本、NATS KV、进程内存。
func Select(a Availability) Backend {
	switch {
	case a.Redis:
		return BackendRedis
	case a.KV:
		return BackendKV
	default:
		return BackendMemory
	}
}
