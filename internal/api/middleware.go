package api

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"VoiceDot/internal/auth"
	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/observability/metrics"
)

// recovery 将 panic 转换为统一的错误响应。
func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		s.logger.Error("请求处理发生 panic",
			slog.String("path", c.Request.URL.Path),
			slog.String("panic", fmt.Sprint(recovered)))
		s.writeError(c, xerrors.New(xerrors.CodeUnknown, "internal error"))
	})
}

// observe 记录请求次数与耗时。
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

// limit 返回指定路由的限流中间件。
func (s *Server) limit(route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Limiter == nil {
			c.Next()
			return
		}
		if !s.deps.Limiter.Allow(c.Request.Context(), identity(c), route) {
			p := s.deps.Limiter.Params(route)
			if p.TokensPerInterval > 0 {
				wait := p.Interval.Seconds() / p.TokensPerInterval
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait))))
			}
			s.writeError(c, xerrors.New(xerrors.CodeRateLimited, "rate limit exceeded"))
			return
		}
		c.Next()
	}
}

// jsonBody 要求 JSON 请求体并限制其大小。
func (s *Server) jsonBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.ContentType() != gin.MIMEJSON {
			s.writeError(c, xerrors.New(xerrors.CodeUnsupportedMedia, "content type must be application/json"))
			return
		}
		if c.Request.ContentLength > s.cfg.MaxBodyBytes {
			s.writeError(c, tooLarge(s.cfg.MaxBodyBytes))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes)
		c.Next()
	}
}

// bind 解析 JSON 请求体。
func (s *Server) bind(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return tooLarge(maxErr.Limit)
		}
		return xerrors.Wrap(xerrors.CodeValidation, err, "invalid request body")
	}
	return nil
}

func tooLarge(limit int64) error {
	return xerrors.Newf(xerrors.CodePayloadTooLarge, "request body exceeds %d bytes", limit)
}

// identity 返回限流使用的调用方标识：认证主体优先，否则为 gin 按可信代理解析出的客户端地址。
func identity(c *gin.Context) string {
	if subject := auth.SubjectFromContext(c.Request.Context()); subject != nil && subject.ID != "" {
		return subject.ID
	}
	return c.ClientIP()
}

// resolveUser 返回请求作用的用户：认证开启时与令牌主体比对，未填写时取主体。
func resolveUser(c *gin.Context, raw string) (string, error) {
	userID := strings.TrimSpace(raw)
	if err := auth.Authorize(c.Request.Context(), userID); err != nil {
		return "", err
	}
	if userID == "" {
		if subject := auth.SubjectFromContext(c.Request.Context()); subject != nil {
			userID = subject.ID
		}
	}
	return userID, nil
}
