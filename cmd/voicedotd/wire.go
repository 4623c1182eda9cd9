package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"

	"VoiceDot/internal/chain"
	"VoiceDot/internal/config"
	"VoiceDot/internal/contacts"
	"VoiceDot/internal/llm"
	"VoiceDot/internal/llm/openai"
	"VoiceDot/internal/observability/alerting"
	"VoiceDot/internal/ratelimit"
	"VoiceDot/internal/speech"
	natsconn "VoiceDot/internal/storage/nats"
	"VoiceDot/internal/voice"
	"VoiceDot/pkg/logger"
)

// applyEndpointOverrides 用配置中的端点替换链定义里的默认 RPC 地址。
func applyEndpointOverrides(defs map[string]chain.Definition, endpoints map[string]string, lg *slog.Logger) {
	for name, endpoint := range endpoints {
		key := strings.ToLower(strings.TrimSpace(name))
		def, ok := defs[key]
		if !ok {
			lg.Warn("忽略未知链的端点配置", slog.String("chain", name))
			continue
		}
		def.Endpoint = endpoint
		defs[key] = def
	}
}

func connectNATS(cfg natsconn.Config, lg *slog.Logger) *natsgo.Conn {
	if !cfg.Enabled() {
		return nil
	}
	conn, err := natsconn.Connect(cfg)
	if err != nil {
		lg.Warn("NATS 不可用", slog.Any("error", err))
		return nil
	}
	return conn
}

// createDrafter 根据配置创建意图起草模型；未配置密钥时返回 nil，由正则解析兜底。
func createDrafter(cfg *config.Config, lg *slog.Logger) (llm.Client, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "", "none":
		return nil, nil
	case "openai":
		if cfg.LLM.APIKey == "" {
			lg.Warn("未配置 LLM API Key，使用正则解析", slog.String("env", cfg.LLM.APIKeyEnv))
			return nil, nil
		}
		client, err := openai.NewClient(openai.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("未知的 LLM provider: %s", cfg.LLM.Provider)
	}
}

func loadContacts(cfg *config.Config) (*contacts.Book, error) {
	if cfg.Contacts.Source == "" {
		return nil, nil
	}
	return contacts.LoadBook(cfg.Contacts.Source)
}

// speechOptions 返回语音转写与合成相关的管线选项。
func speechOptions(cfg *config.Config, lg *slog.Logger) ([]voice.Option, error) {
	var opts []voice.Option
	switch strings.ToLower(cfg.Speech.Provider) {
	case "", "none":
		return opts, nil
	case "elevenlabs":
	default:
		return nil, fmt.Errorf("未知的语音 provider: %s", cfg.Speech.Provider)
	}
	if cfg.Speech.APIKey == "" {
		lg.Warn("未配置语音 API Key，仅支持文本指令", slog.String("env", cfg.Speech.APIKeyEnv))
		return opts, nil
	}

	client, err := speech.NewElevenLabs(speech.Config{
		APIKey:   cfg.Speech.APIKey,
		BaseURL:  cfg.Speech.BaseURL,
		VoiceID:  cfg.Speech.VoiceID,
		STTModel: cfg.Speech.STTModel,
		TTSModel: cfg.Speech.TTSModel,
		Timeout:  time.Duration(cfg.Speech.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	sealer, err := speech.NewSealer(cfg.Speech.EncryptionKey)
	if err != nil {
		return nil, err
	}
	return append(opts, voice.WithTranscriber(client), voice.WithSynthesizer(client, sealer)), nil
}

// buildLimiter 按配置与可用的共享存储选择限流后端。
func buildLimiter(ctx context.Context, cfg config.RateLimitConfig, redisClient *goredis.Client, natsConn *natsgo.Conn, lg *slog.Logger) (*ratelimit.Router, error) {
	def := toParams(cfg.Default)
	routes := make(map[string]ratelimit.Params, len(cfg.Routes))
	for name, rl := range cfg.Routes {
		routes[name] = toParams(rl)
	}
	opts := []ratelimit.Option{ratelimit.WithLogger(logger.Named("ratelimit"))}

	openKV := func() (*ratelimit.KVLimiter, error) {
		if natsConn == nil {
			return nil, fmt.Errorf("限流后端 nats-kv 需要可用的 NATS 连接")
		}
		kv, err := ratelimit.OpenKVBucket(ctx, natsConn, cfg.KVBucket, bucketTTL(def, routes))
		if err != nil {
			return nil, err
		}
		return ratelimit.NewKVLimiter(kv, opts...), nil
	}

	backend := ratelimit.Backend(strings.ToLower(cfg.Backend))
	if backend == "auto" || backend == "" {
		backend = ratelimit.Select(ratelimit.Availability{Redis: redisClient != nil, KV: natsConn != nil})
	}

	var limiter ratelimit.Limiter
	switch backend {
	case ratelimit.BackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("限流后端 redis 需要可用的 Redis 连接")
		}
		limiter = ratelimit.NewRedisLimiter(redisClient, opts...)
	case ratelimit.BackendKV:
		kv, err := openKV()
		if err != nil {
			if cfg.Backend != "auto" {
				return nil, err
			}
			lg.Warn("NATS KV 不可用，限流降级为进程内存", slog.Any("error", err))
			backend, limiter = ratelimit.BackendMemory, ratelimit.NewMemoryLimiter(opts...)
		} else {
			limiter = kv
		}
	case ratelimit.BackendMemory:
		limiter = ratelimit.NewMemoryLimiter(opts...)
	default:
		return nil, fmt.Errorf("未知的限流后端: %s", cfg.Backend)
	}
	return ratelimit.NewRouter(limiter, backend, def, routes, opts...), nil
}

func toParams(rl config.RouteLimit) ratelimit.Params {
	return ratelimit.Params{
		TokensPerInterval: rl.TokensPerInterval,
		Interval:          time.Duration(rl.IntervalMs) * time.Millisecond,
		Burst:             rl.Burst,
	}
}

// bucketTTL 取所有路由中令牌桶从空到满所需时间的两倍，至少一分钟。
func bucketTTL(def ratelimit.Params, routes map[string]ratelimit.Params) time.Duration {
	ttl := time.Minute
	consider := func(p ratelimit.Params) {
		if !p.Enabled() {
			return
		}
		refill := time.Duration(p.Burst / p.TokensPerInterval * float64(p.Interval))
		if 2*refill > ttl {
			ttl = 2 * refill
		}
	}
	consider(def)
	for _, p := range routes {
		consider(p)
	}
	return ttl
}

func buildAlerts(cfg config.AlertingConfig) alerting.Dispatcher {
	notifiers := []alerting.Notifier{&alerting.LogNotifier{Logger: logger.Named("alerting")}}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.WebhookURL, Headers: cfg.WebhookHeaders})
	}
	return alerting.NewFanout(notifiers...)
}
