// Package nats builds the shared NATS connection used by the event queue
// and the JetStream key-value rate limiter.
package nats

import (
	"time"

	natsgo "github.com/nats-io/nats.go"

	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/observability/metrics"
	"VoiceDot/pkg/logger"
)

// Config 描述 NATS 连接参数。
type Config struct {
	URL     string
	Name    string
	Timeout time.Duration
}

// Enabled 判断是否配置了 NATS。
func (c Config) Enabled() bool {
	return c.URL != ""
}

// Connect 建立带自动重连的 NATS 连接。
func Connect(cfg Config) (*natsgo.Conn, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeInitialization, "NATS URL 不能为空")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	name := cfg.Name
	if name == "" {
		name = "voicedot"
	}
	log := logger.Named("nats")
	conn, err := natsgo.Connect(cfg.URL,
		natsgo.Name(name),
		natsgo.Timeout(timeout),
		natsgo.ReconnectWait(2*time.Second),
		natsgo.MaxReconnects(-1),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			log.Warn("NATS 连接断开", "error", err)
			metrics.NATSConnected.Set(0)
		}),
		natsgo.ReconnectHandler(func(_ *natsgo.Conn) {
			log.Info("NATS 重新连接成功")
			metrics.NATSConnected.Set(1)
		}),
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitialization, err, "连接 NATS 失败")
	}
	metrics.NATSConnected.Set(1)
	return conn, nil
}
