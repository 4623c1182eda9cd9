package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"VoiceDot/internal/api"
	"VoiceDot/internal/auth"
	"VoiceDot/internal/chain"
	"VoiceDot/internal/config"
	"VoiceDot/internal/confirm"
	"VoiceDot/internal/events"
	"VoiceDot/internal/execution"
	"VoiceDot/internal/intent"
	"VoiceDot/internal/ledger"
	"VoiceDot/internal/observability/metrics"
	"VoiceDot/internal/prices"
	"VoiceDot/internal/safety"
	natsconn "VoiceDot/internal/storage/nats"
	redisstore "VoiceDot/internal/storage/redis"
	"VoiceDot/internal/token"
	"VoiceDot/internal/transfer"
	"VoiceDot/internal/voice"
	"VoiceDot/pkg/logger"
)

// main 是 VoiceDot 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("voicedotd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
			Compress:   cfg.Logging.Audit.Compress,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()
	lg := logger.Named("voicedotd")

	// 链与代币表。
	defs, err := chain.LoadDefinitions(cfg.Chains.Definitions)
	if err != nil {
		return err
	}
	applyEndpointOverrides(defs, cfg.Chains.Endpoints, lg)
	registry, err := chain.NewRegistry(defs, chain.WithDefaultChain(cfg.Chains.DefaultChain))
	if err != nil {
		return err
	}
	defer registry.Close()

	tokenDefs, err := token.LoadTokens(cfg.Chains.Definitions)
	if err != nil {
		return err
	}
	catalog, err := token.NewCatalog(tokenDefs)
	if err != nil {
		return err
	}

	// 账本。
	store, err := ledger.Open(ctx, ledger.Config{
		Driver:          cfg.Ledger.Driver,
		DSN:             cfg.Ledger.DSN,
		MaxOpenConns:    cfg.Ledger.MaxOpenConns,
		MaxIdleConns:    cfg.Ledger.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Ledger.ConnMaxLifetimeSeconds) * time.Second,
		AutoMigrate:     *cfg.Ledger.AutoMigrate,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			lg.Warn("关闭账本失败", slog.Any("error", err))
		}
	}()

	// 共享连接：Redis 与 NATS 都是可选的，不可用时降级到进程内实现。
	var redisClient *goredis.Client
	if cfg.Redis.Address != "" {
		client, err := redisstore.NewClient(ctx, redisstore.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			lg.Warn("Redis 不可用", slog.Any("error", err))
		} else {
			redisClient = client
			defer redisClient.Close()
		}
	}
	natsCfg := natsconn.Config{URL: cfg.NATS.URL, Name: cfg.NATS.Name}
	natsConn := connectNATS(natsCfg, lg)
	if natsConn != nil {
		defer natsConn.Close()
	}

	// 交易事件。
	queue, driver, err := events.Open(ctx, events.Config{
		Driver:     cfg.Events.Driver,
		BufferSize: cfg.Events.BufferSize,
		RedisKey:   cfg.Events.RedisKey,
		Subject:    cfg.Events.Subject,
		NATS:       natsCfg,
		RabbitMQ: events.RabbitMQConfig{
			URL:      cfg.Events.RabbitMQ.URL,
			Queue:    cfg.Events.RabbitMQ.Queue,
			Prefetch: cfg.Events.RabbitMQ.Prefetch,
			Durable:  cfg.Events.RabbitMQ.Durable,
		},
	}, events.Dependencies{Redis: redisClient, NATS: natsConn})
	if err != nil {
		return err
	}
	emitter := events.NewEmitter(queue, driver)
	defer emitter.Close()
	if cfg.Events.AuditConsumer && driver != "noop" {
		go func() {
			if err := queue.Consume(ctx, events.AuditHandler(logger.Audit())); err != nil && !errors.Is(err, context.Canceled) {
				lg.Warn("审计事件消费退出", slog.Any("error", err))
			}
		}()
	}

	// 意图提取。
	extractorOpts := []intent.Option{intent.WithDefaultToken(cfg.Chains.DefaultToken)}
	drafter, err := createDrafter(cfg, lg)
	if err != nil {
		return err
	}
	if drafter != nil {
		extractorOpts = append(extractorOpts, intent.WithDrafter(drafter))
	}
	book, err := loadContacts(cfg)
	if err != nil {
		return err
	}
	if book != nil {
		extractorOpts = append(extractorOpts, intent.WithContacts(book))
	}
	extractor, err := intent.NewExtractor(registry, catalog, extractorOpts...)
	if err != nil {
		return err
	}

	// 语音管线。
	voiceOpts, err := speechOptions(cfg, lg)
	if err != nil {
		return err
	}
	voiceOpts = append(voiceOpts,
		voice.WithEmitter(emitter),
		voice.WithMaxAudioBytes(cfg.Speech.MaxAudioBytes),
		voice.WithSpeechTimeout(time.Duration(cfg.Speech.TimeoutSeconds)*time.Second),
	)
	pipeline := voice.New(extractor, store, confirm.NewGate(store), voiceOpts...)

	mode, err := auth.ParseMode(cfg.Auth.Mode)
	if err != nil {
		return err
	}
	authSvc, err := auth.NewService(auth.Config{
		Mode:     mode,
		Secret:   cfg.Auth.Secret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		TokenTTL: time.Duration(cfg.Auth.TokenTTLSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	limiter, err := buildLimiter(ctx, cfg.RateLimit, redisClient, natsConn, lg)
	if err != nil {
		return err
	}

	server := api.NewServer(api.Config{
		Address:           cfg.Server.Address,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeoutSeconds) * time.Second,
		ShutdownTimeout:   time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second,
		MetricsEnabled:    cfg.Metrics.Enabled,
		TrustedProxies:    cfg.Server.TrustedProxies,
		TrustCloudflare:   cfg.Server.TrustCloudflare,
	}, api.Dependencies{
		Voice:    pipeline,
		Ledger:   store,
		Builder:  transfer.NewBuilder(registry, catalog),
		Executor: execution.NewRouter(store, registry, safety.NewValidator(catalog), execution.WithEmitter(emitter)),
		Chains:   registry,
		Tokens:   catalog,
		Prices: prices.NewFeed(prices.Config{
			BaseURL: cfg.Prices.BaseURL,
			TTL:     time.Duration(cfg.Prices.TTLSeconds) * time.Second,
			Timeout: time.Duration(cfg.Prices.TimeoutSeconds) * time.Second,
		}, catalog),
		Auth:    authSvc,
		Limiter: limiter,
		Alerts:  buildAlerts(cfg.Alerting),
	})

	if cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
				lg.Warn("指标服务退出", slog.Any("error", err))
			}
		}()
	}

	lg.Info("voicedotd 启动",
		slog.String("addr", cfg.Server.Address),
		slog.String("ledger", cfg.Ledger.Driver),
		slog.String("events", driver),
		slog.String("rate_limit", string(limiter.Backend())),
		slog.String("auth", string(mode)))

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	lg.Info("voicedotd 已停止")
	return nil
}
