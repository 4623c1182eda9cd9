package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSQueue 通过 NATS subject 发布事件，消费端使用队列组分摊负载。
type NATSQueue struct {
	conn    *nats.Conn
	subject string
	group   string
	owned   bool
}

// NewNATSQueue 基于共享连接创建队列。owned 为 true 时 Close 会关闭连接。
func NewNATSQueue(conn *nats.Conn, subject string, owned bool) *NATSQueue {
	if subject == "" {
		subject = "voicedot.events"
	}
	return &NATSQueue{conn: conn, subject: subject, group: "voicedot-audit", owned: owned}
}

// Publish 将事件发布到 subject。
func (q *NATSQueue) Publish(_ context.Context, evt Event) error {
	if q == nil || q.conn == nil {
		return errors.New("NATS 队列未初始化")
	}
	payload, err := evt.encode()
	if err != nil {
		return err
	}
	if err := q.conn.Publish(q.subject+"."+string(evt.Type), payload); err != nil {
		return fmt.Errorf("NATS 发布事件失败: %w", err)
	}
	return nil
}

// Consume 订阅全部事件类型直到 ctx 取消。
func (q *NATSQueue) Consume(ctx context.Context, handler Handler) error {
	if q == nil || q.conn == nil {
		return errors.New("NATS 队列未初始化")
	}
	ch := make(chan *nats.Msg, 64)
	sub, err := q.conn.ChanQueueSubscribe(q.subject+".>", q.group, ch)
	if err != nil {
		return fmt.Errorf("订阅 NATS subject 失败: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			evt, err := decode(msg.Data)
			if err != nil {
				continue
			}
			_ = handler(ctx, evt)
		}
	}
}

// Close 关闭 NATS 连接。
func (q *NATSQueue) Close() error {
	if q == nil || q.conn == nil || !q.owned {
		return nil
	}
	q.conn.Close()
	return nil
}

var _ Queue = (*NATSQueue)(nil)
