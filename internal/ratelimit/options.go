package ratelimit

import (
	"log/slog"
	"time"

	"VoiceDot/pkg/logger"
)

// Option 配置限流器。
type Option func(*options)

type options struct {
	now    func() time.Time
	logger *slog.Logger
	prefix string
}

// WithClock 注入时钟。
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithKeyPrefix 设置共享存储中的键前缀。
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

func collect(opts []Option) options {
	o := options{now: time.Now, logger: logger.Named("ratelimit"), prefix: "voicedot:rl:"}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
