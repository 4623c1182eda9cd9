package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "VOICEDOT_CONFIG"

// DefaultPath 是未设置 VOICEDOT_CONFIG 时使用的配置文件。
const DefaultPath = "configs/voicedot.json"

// Config 描述了 VoiceDot 在启动阶段需要加载的全部配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Logging   LoggingConfig   `json:"logging"`
	Chains    ChainsConfig    `json:"chains"`
	Ledger    LedgerConfig    `json:"ledger"`
	LLM       LLMConfig       `json:"llm"`
	Speech    SpeechConfig    `json:"speech"`
	Contacts  ContactsConfig  `json:"contacts"`
	Prices    PricesConfig    `json:"prices"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Redis     RedisConfig     `json:"redis"`
	NATS      NATSConfig      `json:"nats"`
	Events    EventsConfig    `json:"events"`
	Auth      AuthConfig      `json:"auth"`
	Metrics   MetricsConfig   `json:"metrics"`
	Alerting  AlertingConfig  `json:"alerting"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address                  string   `json:"address"`
	MaxBodyBytes             int64    `json:"max_body_bytes"`
	ReadHeaderTimeoutSeconds int      `json:"read_header_timeout_seconds"`
	ShutdownTimeoutSeconds   int      `json:"shutdown_timeout_seconds"`
	TrustedProxies           []string `json:"trusted_proxies"`
	TrustCloudflare          bool     `json:"trust_cloudflare"`
}

// LoggingConfig 对应 pkg/logger 的配置。
type LoggingConfig struct {
	Level   string      `json:"level"`
	Format  string      `json:"format"`
	Outputs []string    `json:"outputs"`
	Audit   AuditConfig `json:"audit"`
}

// AuditConfig 控制审计日志的滚动策略。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// ChainsConfig 描述链表与代币表来源以及默认值。
type ChainsConfig struct {
	// Definitions 是可选的 YAML 文件，包含 chains 与 tokens 两节。
	Definitions  string            `json:"definitions"`
	DefaultChain string            `json:"default_chain"`
	DefaultToken string            `json:"default_token"`
	Endpoints    map[string]string `json:"endpoints"`
	DialTimeout  int               `json:"dial_timeout_seconds"`
}

// LedgerConfig 描述交易账本的存储后端。
type LedgerConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	AutoMigrate            *bool  `json:"auto_migrate"`
}

// LLMConfig 用于配置意图起草模型。
type LLMConfig struct {
	Provider       string `json:"provider"`
	APIKey         string `json:"api_key"`
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SpeechConfig 配置语音转写与合成。
type SpeechConfig struct {
	Provider       string `json:"provider"`
	APIKey         string `json:"api_key"`
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	VoiceID        string `json:"voice_id"`
	STTModel       string `json:"stt_model"`
	TTSModel       string `json:"tts_model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxAudioBytes  int    `json:"max_audio_bytes"`
	EncryptionKey  string `json:"encryption_key"`
}

// ContactsConfig 指定通讯录文件。
type ContactsConfig struct {
	Source string `json:"source"`
}

// PricesConfig 配置价格源。
type PricesConfig struct {
	BaseURL        string `json:"base_url"`
	TTLSeconds     int    `json:"ttl_seconds"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// RouteLimit 是单个路由的令牌桶参数。
type RouteLimit struct {
	TokensPerInterval float64 `json:"tokens_per_interval"`
	IntervalMs        int64   `json:"interval_ms"`
	Burst             float64 `json:"burst"`
}

// RateLimitConfig 配置限流后端与各路由参数。
type RateLimitConfig struct {
	// Backend 取值 auto、redis、nats-kv 或 memory。
	Backend  string                `json:"backend"`
	KVBucket string                `json:"kv_bucket"`
	Default  RouteLimit            `json:"default"`
	Routes   map[string]RouteLimit `json:"routes"`
}

// RedisConfig 描述共享 Redis 连接。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// NATSConfig 描述共享 NATS 连接。
type NATSConfig struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// EventsConfig 配置交易事件的投递。
type EventsConfig struct {
	Driver        string         `json:"driver"`
	BufferSize    int            `json:"buffer_size"`
	RedisKey      string         `json:"redis_key"`
	Subject       string         `json:"subject"`
	RabbitMQ      RabbitMQConfig `json:"rabbitmq"`
	AuditConsumer bool           `json:"audit_consumer"`
}

// RabbitMQConfig 描述 RabbitMQ 连接。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// AuthConfig 配置 API 认证。
type AuthConfig struct {
	Mode            string `json:"mode"`
	Secret          string `json:"secret"`
	Issuer          string `json:"issuer"`
	Audience        string `json:"audience"`
	TokenTTLSeconds int    `json:"token_ttl_seconds"`
}

// MetricsConfig 控制 /metrics 暴露。Address 非空时另起独立监听。
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

// AlertingConfig 配置告警 webhook。
type AlertingConfig struct {
	WebhookURL     string            `json:"webhook_url"`
	WebhookHeaders map[string]string `json:"webhook_headers"`
}

// Path 返回配置文件路径：VOICEDOT_CONFIG 优先，否则使用默认路径。
func Path() string {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultPath
}

// Load 负责解析指定路径的 JSON 配置文件。文件不存在时使用默认值，
// 此时所有后端均为内存实现。.env 文件在解析前加载。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 失败: %w", err)
	}

	var cfg Config
	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	default:
		expanded := os.ExpandEnv(string(content))
		if err := json.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults(filepath.Dir(path))
	return &cfg, nil
}

// applyEnvOverrides 使用环境变量覆盖配置文件中的值。
func (c *Config) applyEnvOverrides() {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	override(&c.Chains.DefaultChain, "VOICEDOT_DEFAULT_CHAIN")
	override(&c.Chains.DefaultToken, "VOICEDOT_DEFAULT_TOKEN")
	override(&c.Ledger.Driver, "VOICEDOT_LEDGER_DRIVER")
	override(&c.Ledger.DSN, "VOICEDOT_LEDGER_DSN")
	override(&c.Auth.Secret, "VOICEDOT_JWT_SECRET")
	override(&c.Speech.EncryptionKey, "VOICEDOT_ENCRYPTION_KEY")

	const rpcPrefix = "VOICEDOT_RPC_"
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, rpcPrefix) || strings.TrimSpace(value) == "" {
			continue
		}
		chain := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(key, rpcPrefix), "_", "-"))
		if c.Chains.Endpoints == nil {
			c.Chains.Endpoints = make(map[string]string)
		}
		c.Chains.Endpoints[chain] = strings.TrimSpace(value)
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = 10 << 20
	}
	if c.Server.ReadHeaderTimeoutSeconds <= 0 {
		c.Server.ReadHeaderTimeoutSeconds = 5
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 5
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = filepath.Join(baseDir, "logs", "audit.log")
	}

	c.Chains.Definitions = resolvePath(baseDir, c.Chains.Definitions)
	if c.Chains.DefaultChain == "" {
		c.Chains.DefaultChain = "polkadot"
	}
	if c.Chains.DefaultToken == "" {
		c.Chains.DefaultToken = "DOT"
	}
	c.Chains.DefaultToken = strings.ToUpper(c.Chains.DefaultToken)
	if c.Chains.DialTimeout <= 0 {
		c.Chains.DialTimeout = 10
	}

	if c.Ledger.Driver == "" {
		c.Ledger.Driver = "memory"
	}
	if c.Ledger.AutoMigrate == nil {
		enabled := true
		c.Ledger.AutoMigrate = &enabled
	}
	if c.Ledger.Driver == "sqlite" && c.Ledger.DSN == "" {
		c.Ledger.DSN = "file:" + filepath.Join(baseDir, "data", "voicedot.db")
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.APIKeyEnv == "" {
		c.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv(c.LLM.APIKeyEnv)
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 20
	}

	if c.Speech.Provider == "" {
		c.Speech.Provider = "elevenlabs"
	}
	if c.Speech.APIKeyEnv == "" {
		c.Speech.APIKeyEnv = "ELEVENLABS_API_KEY"
	}
	if c.Speech.APIKey == "" {
		c.Speech.APIKey = os.Getenv(c.Speech.APIKeyEnv)
	}
	if c.Speech.TimeoutSeconds <= 0 {
		c.Speech.TimeoutSeconds = 30
	}
	if c.Speech.MaxAudioBytes <= 0 {
		c.Speech.MaxAudioBytes = 10 << 20
	}

	c.Contacts.Source = resolvePath(baseDir, c.Contacts.Source)

	if c.Prices.TTLSeconds <= 0 {
		c.Prices.TTLSeconds = 60
	}
	if c.Prices.TimeoutSeconds <= 0 {
		c.Prices.TimeoutSeconds = 10
	}

	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = "auto"
	}
	if c.RateLimit.KVBucket == "" {
		c.RateLimit.KVBucket = "voicedot_ratelimit"
	}
	if c.RateLimit.Default == (RouteLimit{}) {
		c.RateLimit.Default = RouteLimit{TokensPerInterval: 10, IntervalMs: 60000, Burst: 10}
	}
	if c.RateLimit.Routes == nil {
		c.RateLimit.Routes = map[string]RouteLimit{
			"voice_process": {TokensPerInterval: 5, IntervalMs: 60000, Burst: 5},
			"tx_execute":    {TokensPerInterval: 5, IntervalMs: 60000, Burst: 5},
		}
	}

	if c.NATS.Name == "" {
		c.NATS.Name = "voicedot"
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "noop"
	}
	if c.Events.BufferSize <= 0 {
		c.Events.BufferSize = 256
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "disabled"
	}
	if c.Auth.TokenTTLSeconds <= 0 {
		c.Auth.TokenTTLSeconds = 86400
	}
}

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
