package events

import (
	"context"
	"log/slog"
	"time"

	"VoiceDot/internal/ledger"
	"VoiceDot/internal/observability/metrics"
	"VoiceDot/pkg/logger"
)

// Emitter 在账本写入成功后发布事件。发布失败只记录日志与指标。
type Emitter struct {
	publisher Publisher
	driver    string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewEmitter 创建事件发射器。publisher 为空时使用 NoopQueue。
func NewEmitter(publisher Publisher, driver string) *Emitter {
	if publisher == nil {
		publisher = NoopQueue{}
		driver = "noop"
	}
	return &Emitter{publisher: publisher, driver: driver, timeout: 2 * time.Second, logger: logger.Named("events")}
}

// Emit 为每条记录发布一个事件。
func (e *Emitter) Emit(ctx context.Context, typ Type, records ...*ledger.Record) {
	if e == nil {
		return
	}
	for _, rec := range records {
		if rec == nil {
			continue
		}
		evt := FromRecord(typ, rec)
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		err := e.publisher.Publish(pubCtx, evt)
		cancel()
		metrics.ObserveEvent(e.driver, err)
		if err != nil {
			e.logger.Warn("发布交易事件失败",
				slog.String("type", string(typ)),
				slog.String("transaction_id", rec.ID),
				slog.Any("error", err))
		}
	}
}

// Close 关闭底层发布者。
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	return e.publisher.Close()
}
