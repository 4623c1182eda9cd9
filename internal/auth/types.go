package auth

import (
	"strings"
	"time"

	xerrors "VoiceDot/internal/errors"
)

// 认证子系统返回的错误。
var (
	ErrMissingToken = xerrors.New(xerrors.CodeUnauthenticated, "missing bearer token")
	ErrInvalidToken = xerrors.New(xerrors.CodeUnauthenticated, "invalid token")
	ErrForbidden    = xerrors.New(xerrors.CodeForbidden, "user_id does not match the authenticated subject")
)

// Mode 枚举支持的认证方式。
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeJWT      Mode = "jwt"
)

// ParseMode 解析配置中的认证方式，空值视为 disabled。
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeDisabled:
		return ModeDisabled, nil
	case ModeJWT:
		return ModeJWT, nil
	default:
		return "", xerrors.Newf(xerrors.CodeInitialization, "unsupported auth mode %q", raw)
	}
}

// Config 配置认证服务。
type Config struct {
	Mode     Mode
	Secret   string
	Issuer   string
	Audience string
	// TokenTTL 是签发令牌的默认有效期。
	TokenTTL time.Duration
}

// Subject 是通过认证的调用方，ID 即 JWT 的 sub。
type Subject struct {
	ID        string
	Issuer    string
	ExpiresAt time.Time
}
