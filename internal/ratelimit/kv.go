package ratelimit

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const kvMaxAttempts = 3

// KVLimiter 把令牌桶保存在 NATS JetStream KV 中。
// 读改写通过修订号做乐观并发，多次冲突后按最后一次计算结果放行或拒绝，
// 因此在高并发下是近似的。
type KVLimiter struct {
	kv   jetstream.KeyValue
	opts options
}

// NewKVLimiter 使用已存在的 KV bucket 创建限流器。
func NewKVLimiter(kv jetstream.KeyValue, opts ...Option) *KVLimiter {
	return &KVLimiter{kv: kv, opts: collect(opts)}
}

// OpenKVBucket 在连接上创建或更新限流使用的 KV bucket。
func OpenKVBucket(ctx context.Context, conn *nats.Conn, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("创建 JetStream 上下文失败: %w", err)
	}
	if bucket == "" {
		bucket = "voicedot_ratelimit"
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "voicedot rate limiter buckets",
		TTL:         ttl,
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 KV bucket %s 失败: %w", bucket, err)
	}
	return kv, nil
}

// Allow 实现 Limiter。
func (k *KVLimiter) Allow(ctx context.Context, key string, p Params) (bool, error) {
	name := kvKey(key)
	var allowed bool
	for attempt := 0; attempt < kvMaxAttempts; attempt++ {
		var (
			state    State
			revision uint64
		)
		entry, err := k.kv.Get(ctx, name)
		switch {
		case errors.Is(err, jetstream.ErrKeyNotFound):
		case err != nil:
			return false, fmt.Errorf("读取限流状态失败: %w", err)
		default:
			revision = entry.Revision()
			if err := json.Unmarshal(entry.Value(), &state); err != nil {
				state = State{}
			}
		}

		next, ok := Take(state, k.opts.now(), p)
		allowed = ok
		payload, err := json.Marshal(next)
		if err != nil {
			return false, err
		}
		if revision == 0 {
			_, err = k.kv.Create(ctx, name, payload)
		} else {
			_, err = k.kv.Update(ctx, name, payload, revision)
		}
		if err == nil {
			return allowed, nil
		}
		if !errors.Is(err, jetstream.ErrKeyExists) && !isWrongSequence(err) {
			return false, fmt.Errorf("写入限流状态失败: %w", err)
		}
	}
	return allowed, nil
}

func isWrongSequence(err error) bool {
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}

// kvKey 把任意限流键编码为 KV 合法的键名。
func kvKey(key string) string {
	return "k." + base64.RawURLEncoding.EncodeToString([]byte(key))
}

var _ Limiter = (*KVLimiter)(nil)
