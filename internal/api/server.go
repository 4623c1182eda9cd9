package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"VoiceDot/internal/auth"
	"VoiceDot/internal/chain"
	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/execution"
	"VoiceDot/internal/ledger"
	"VoiceDot/internal/observability/alerting"
	"VoiceDot/internal/observability/metrics"
	"VoiceDot/internal/prices"
	"VoiceDot/internal/ratelimit"
	"VoiceDot/internal/token"
	"VoiceDot/internal/transfer"
	"VoiceDot/internal/voice"
	"VoiceDot/pkg/logger"
)

const serviceName = "voicedot"

// 路由限流名称。
const (
	routeVoiceProcess  = "voice_process"
	routeVoiceConfirm  = "voice_confirm"
	routeVoiceSessions = "voice_sessions"
	routeTxList        = "tx_list"
	routeTxGet         = "tx_get"
	routeTxBuild       = "tx_build"
	routeTxExecute     = "tx_execute"
	routeXCMEstimate   = "xcm_estimate"
	routeWalletBalance = "wallet_balance"
	routePrices        = "prices"
)

// Config 控制 HTTP 服务参数。
type Config struct {
	Address           string
	MaxBodyBytes      int64
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	MetricsEnabled    bool

	// TrustedProxies 是允许提供 X-Forwarded-For 的代理网段，为空时只信任 TCP 对端地址。
	TrustedProxies []string

	// TrustCloudflare 为 true 时以 CF-Connecting-IP 作为客户端地址。
	TrustCloudflare bool
}

// Dependencies 汇总处理请求所需的业务组件。为空的组件对应的接口返回 503。
type Dependencies struct {
	Voice    *voice.Pipeline
	Ledger   ledger.Store
	Builder  *transfer.Builder
	Executor *execution.Router
	Chains   *chain.Registry
	Tokens   *token.Catalog
	Prices   *prices.Feed
	Auth     *auth.Service
	Limiter  *ratelimit.Router
	Alerts   alerting.Dispatcher
	Logger   *slog.Logger
}

// Server 负责暴露 REST 接口。
type Server struct {
	cfg    Config
	deps   Dependencies
	logger *slog.Logger
	engine *gin.Engine
}

// NewServer 构造 API 服务实例并注册全部路由。
func NewServer(cfg Config, deps Dependencies) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{cfg: cfg, deps: deps, logger: deps.Logger}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	s.engine = s.routes()
	return s
}

// Handler 返回完整的 HTTP 处理器。
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	if err := r.SetTrustedProxies(s.cfg.TrustedProxies); err != nil {
		s.logger.Warn("可信代理配置无效，已忽略转发头", slog.Any("error", err))
		_ = r.SetTrustedProxies(nil)
	}
	if s.cfg.TrustCloudflare {
		r.TrustedPlatform = gin.PlatformCloudflare
	}
	r.Use(s.recovery(), s.observe())
	if s.deps.Auth != nil {
		r.Use(s.deps.Auth.Middleware(s.writeError, "/health", "/metrics"))
	}
	r.NoRoute(func(c *gin.Context) {
		s.writeError(c, xerrors.New(xerrors.CodeNotFound, "route not found"))
	})
	r.NoMethod(func(c *gin.Context) {
		s.writeError(c, xerrors.Newf(xerrors.CodeValidation, "method %s not allowed", c.Request.Method))
	})

	r.GET("/health", s.handleHealth)
	if s.cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	r.GET("/status/:chain", s.handleChainStatus)

	v := r.Group("/voice")
	v.POST("/process", s.limit(routeVoiceProcess), s.jsonBody(), s.handleVoiceProcess)
	v.POST("/confirm", s.limit(routeVoiceConfirm), s.jsonBody(), s.handleVoiceConfirm)
	v.GET("/sessions", s.limit(routeVoiceSessions), s.handleVoiceSessions)

	tx := r.Group("/transactions")
	tx.GET("", s.limit(routeTxList), s.handleListTransactions)
	tx.GET("/xcm/estimate", s.limit(routeXCMEstimate), s.handleEstimateXCM)
	tx.GET("/:id", s.limit(routeTxGet), s.handleGetTransaction)
	tx.POST("/build", s.limit(routeTxBuild), s.jsonBody(), s.handleBuild)
	tx.POST("/execute", s.limit(routeTxExecute), s.jsonBody(), s.handleExecute)

	r.GET("/wallet/balance", s.limit(routeWalletBalance), s.handleBalance)
	r.GET("/prices", s.limit(routePrices), s.handlePrices)
	r.GET("/prices/convert", s.limit(routePrices), s.handleConvert)
	return r
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           withContext(ctx, s.engine),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("API 服务已启动", slog.String("addr", s.cfg.Address))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"code":"SERVICE_UNAVAILABLE","message":"service is shutting down"}}`))
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

func notConfigured(component string) error {
	return xerrors.Newf(xerrors.CodeInitialization, "%s is not configured", component)
}
