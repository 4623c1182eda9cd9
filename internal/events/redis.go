package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue 使用 Redis list 保存事件：LPUSH 投递，BRPOP 消费。
type RedisQueue struct {
	client *redis.Client
	key    string
	wait   time.Duration
	owned  bool
}

// NewRedisQueue 基于共享客户端创建队列。owned 为 true 时 Close 会关闭客户端。
func NewRedisQueue(client *redis.Client, key string, owned bool) *RedisQueue {
	if key == "" {
		key = "voicedot:events"
	}
	return &RedisQueue{client: client, key: key, wait: 5 * time.Second, owned: owned}
}

// Publish 将事件写入 Redis。
func (q *RedisQueue) Publish(ctx context.Context, evt Event) error {
	payload, err := evt.encode()
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("Redis 发布事件失败: %w", err)
	}
	return nil
}

// Consume 通过 BRPOP 获取事件。无法解析的事件会被丢弃。
func (q *RedisQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		values, err := q.client.BRPop(ctx, q.wait, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return err
			}
			return fmt.Errorf("Redis 取事件失败: %w", err)
		}
		if len(values) != 2 {
			continue
		}
		evt, err := decode([]byte(values[1]))
		if err != nil {
			continue
		}
		_ = handler(ctx, evt)
	}
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil || !q.owned {
		return nil
	}
	return q.client.Close()
}

var _ Queue = (*RedisQueue)(nil)
