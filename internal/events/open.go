package events

import (
	"context"
	"strings"

	natsgo "github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"

	xerrors "VoiceDot/internal/errors"
	natsconn "VoiceDot/internal/storage/nats"
	redisstore "VoiceDot/internal/storage/redis"
)

// Config 描述事件队列后端。
type Config struct {
	// Driver 取值 noop、memory、redis、rabbitmq 或 nats。
	Driver     string
	BufferSize int
	Redis      redisstore.Config
	RedisKey   string
	RabbitMQ   RabbitMQConfig
	NATS       natsconn.Config
	Subject    string
}

// Dependencies 允许复用已经建立的共享连接。
type Dependencies struct {
	Redis *goredis.Client
	NATS  *natsgo.Conn
}

// Open 根据配置创建事件队列，返回规范化后的驱动名。
func Open(ctx context.Context, cfg Config, deps Dependencies) (Queue, string, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "noop", "none":
		return NoopQueue{}, "noop", nil
	case "memory":
		return NewMemoryQueue(cfg.BufferSize), driver, nil
	case "redis":
		if deps.Redis != nil {
			return NewRedisQueue(deps.Redis, cfg.RedisKey, false), driver, nil
		}
		client, err := redisstore.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, "", err
		}
		return NewRedisQueue(client, cfg.RedisKey, true), driver, nil
	case "rabbitmq":
		q, err := NewRabbitMQQueue(cfg.RabbitMQ)
		if err != nil {
			return nil, "", xerrors.Wrap(xerrors.CodeInitialization, err, "初始化 RabbitMQ 事件队列失败")
		}
		return q, driver, nil
	case "nats":
		if deps.NATS != nil {
			return NewNATSQueue(deps.NATS, cfg.Subject, false), driver, nil
		}
		conn, err := natsconn.Connect(cfg.NATS)
		if err != nil {
			return nil, "", err
		}
		return NewNATSQueue(conn, cfg.Subject, true), driver, nil
	default:
		return nil, "", xerrors.Newf(xerrors.CodeInitialization, "unsupported events driver %q", cfg.Driver)
	}
}
