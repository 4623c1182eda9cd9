package auth

import (
	"time"

	"github.com/gin-gonic/gin"

	xerrors "VoiceDot/internal/errors"
)

// ErrorWriter 把认证错误写入响应，由 HTTP 层提供以保持统一的错误格式。
type ErrorWriter func(c *gin.Context, err error)

// Middleware 返回 gin 中间件：校验 Bearer 令牌并把主体写入请求上下文，
// skip 中的路径不需要认证。认证结果记录到审计日志。
func (s *Service) Middleware(write ErrorWriter, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		skipped[path] = struct{}{}
	}
	return func(c *gin.Context) {
		if !s.Enabled() {
			c.Next()
			return
		}
		if _, ok := skipped[c.FullPath()]; ok {
			c.Next()
			return
		}

		subject, err := s.AuthenticateRequest(c.GetHeader("Authorization"))
		if err != nil {
			s.auditLogger().Warn("access_denied",
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"status", xerrors.HTTPStatus(xerrors.CodeOf(err)),
				"error", err.Error(),
			)
			write(c, err)
			c.Abort()
			return
		}

		start := time.Now()
		c.Request = c.Request.WithContext(WithSubject(c.Request.Context(), subject))
		c.Next()
		s.auditLogger().Info("api_request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"user", subject.ID,
		)
	}
}
