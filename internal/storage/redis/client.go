package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	xerrors "VoiceDot/internal/errors"
)

// Config 描述 Redis 连接参数。
type Config struct {
	Address     string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// Enabled 判断是否配置了 Redis。
func (c Config) Enabled() bool {
	return c.Address != ""
}

// NewClient 创建客户端并通过 PING 验证连通性。
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInitialization, "Redis address 不能为空")
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: timeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitialization, err, "连接 Redis 失败")
	}
	return client, nil
}
