package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"VoiceDot/internal/auth"
	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/observability/alerting"
)

const alertTimeout = 5 * time.Second

type errorBody struct {
	Code    xerrors.Code `json:"code"`
	Message string       `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// writeError 以统一格式输出错误，并在需要时触发告警。
func (s *Server) writeError(c *gin.Context, err error) {
	code := xerrors.CodeOf(err)
	status := xerrors.HTTPStatus(code)
	if status >= 500 {
		s.logger.Error("请求失败",
			slog.String("path", c.Request.URL.Path),
			slog.String("method", c.Request.Method),
			slog.String("code", string(code)),
			slog.Any("error", err))
	}
	if xerrors.ShouldAlert(err) {
		s.alert(c, err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: errorBody{Code: code, Message: publicMessage(err)}})
}

// publicMessage 返回可以暴露给调用方的错误描述。存储类错误只返回登记的通用描述。
func publicMessage(err error) string {
	e, ok := xerrors.From(err)
	if !ok {
		return xerrors.AttributesOf(xerrors.CodeUnknown).Message
	}
	switch e.Code() {
	case xerrors.CodeUnknown, xerrors.CodeStorageFailure, xerrors.CodeQueueFailure:
		return xerrors.AttributesOf(e.Code()).Message
	case xerrors.CodeUpstream, xerrors.CodeTimeout:
		if cause := e.Unwrap(); cause != nil {
			if _, internal := xerrors.From(cause); !internal {
				return e.Message() + ": " + cause.Error()
			}
		}
	}
	if e.Message() == "" {
		return xerrors.AttributesOf(e.Code()).Message
	}
	return e.Message()
}

func (s *Server) alert(c *gin.Context, err error) {
	if s.deps.Alerts == nil {
		return
	}
	event := alerting.FromError(err, c.FullPath(), c.Request.Method)
	if subject := auth.SubjectFromContext(c.Request.Context()); subject != nil {
		event.UserID = subject.ID
	}
	ctx := context.WithoutCancel(c.Request.Context())
	go func() {
		ctx, cancel := context.WithTimeout(ctx, alertTimeout)
		defer cancel()
		if notifyErr := s.deps.Alerts.Notify(ctx, event); notifyErr != nil {
			s.logger.Warn("告警发送失败", slog.Any("error", notifyErr))
		}
	}()
}
