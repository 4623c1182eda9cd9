package auth

import (
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	xerrors "VoiceDot/internal/errors"
	"VoiceDot/pkg/logger"
)

const defaultTokenTTL = 24 * time.Hour

// Service 校验与签发 HS256 令牌。
type Service struct {
	mode     Mode
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
	audit    *slog.Logger
}

// Option 配置 Service。
type Option func(*Service)

// WithClock 注入时钟。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAuditLogger 设置审计日志。
func WithAuditLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.audit = l
		}
	}
}

// NewService 创建认证服务。jwt 模式下必须提供密钥。
func NewService(cfg Config, opts ...Option) (*Service, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeDisabled
	}
	s := &Service{
		mode:     mode,
		secret:   []byte(cfg.Secret),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		ttl:      cfg.TokenTTL,
		now:      time.Now,
	}
	if s.ttl <= 0 {
		s.ttl = defaultTokenTTL
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	switch mode {
	case ModeDisabled:
	case ModeJWT:
		if len(s.secret) < 16 {
			return nil, xerrors.New(xerrors.CodeInitialization, "jwt 模式需要至少 16 字节的密钥")
		}
	default:
		return nil, xerrors.Newf(xerrors.CodeInitialization, "unsupported auth mode %q", mode)
	}
	return s, nil
}

// Mode 返回认证方式。
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// Enabled 判断是否需要认证。
func (s *Service) Enabled() bool {
	return s.Mode() != ModeDisabled
}

// Issue 为 subject 签发令牌。ttl 不大于 0 时使用默认有效期。
func (s *Service) Issue(subject string, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, xerrors.New(xerrors.CodeValidation, "subject is required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, xerrors.New(xerrors.CodeInitialization, "jwt secret is not configured")
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now()
	expires := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, xerrors.Wrap(xerrors.CodeUnknown, err, "sign token failed")
	}
	return token, expires, nil
}

// Verify 校验令牌签名、有效期以及配置的 issuer 与 audience。
func (s *Service) Verify(token string) (*Subject, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, xerrors.Wrap(xerrors.CodeUnauthenticated, err, "invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	subject := &Subject{ID: claims.Subject, Issuer: claims.Issuer}
	if claims.ExpiresAt != nil {
		subject.ExpiresAt = claims.ExpiresAt.Time
	}
	return subject, nil
}

// AuthenticateRequest 从 Authorization 头中提取并校验 Bearer 令牌。
func (s *Service) AuthenticateRequest(authorization string) (*Subject, error) {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return nil, ErrMissingToken
	}
	scheme, token, ok := strings.Cut(authorization, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil, ErrInvalidToken
	}
	return s.Verify(token)
}

func (s *Service) auditLogger() *slog.Logger {
	if s.audit != nil {
		return s.audit
	}
	return logger.Audit()
}
