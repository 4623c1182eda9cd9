package events

import (
	"context"
	"log/slog"
)

// AuditHandler 返回把事件写入审计日志的处理函数。
func AuditHandler(audit *slog.Logger) Handler {
	return func(_ context.Context, evt Event) error {
		audit.Info("transaction event",
			slog.String("event_id", evt.ID),
			slog.String("type", string(evt.Type)),
			slog.String("transaction_id", evt.TransactionID),
			slog.String("user_id", evt.UserID),
			slog.String("status", evt.Status),
			slog.String("amount", evt.Amount),
			slog.String("token", evt.TokenSymbol),
			slog.String("transaction_hash", evt.TransactionHash),
			slog.Int64("occurred_at", evt.OccurredAt),
		)
		return nil
	}
}
