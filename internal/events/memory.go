package events

import (
	"context"
	"errors"
	"sync"
)

// MemoryQueue 使用 channel 保存事件，适合单实例部署与测试。
type MemoryQueue struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue 创建一个内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 256
	}
	return &MemoryQueue{ch: make(chan Event, size)}
}

// Publish 投递事件；队列已满时直接返回错误而不是阻塞请求。
func (q *MemoryQueue) Publish(ctx context.Context, evt Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errors.New("事件队列已关闭")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- evt:
		return nil
	default:
		return errors.New("事件队列已满")
	}
}

// Consume 逐条处理事件直到 ctx 取消或队列关闭。
func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-q.ch:
			if !ok {
				return nil
			}
			_ = handler(ctx, evt)
		}
	}
}

// Len 返回队列中尚未消费的事件数。
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// Close 关闭内存队列。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		close(q.ch)
		q.closed = true
	}
	return nil
}

// NoopQueue 丢弃所有事件。
type NoopQueue struct{}

// Publish 实现 Publisher。
func (NoopQueue) Publish(context.Context, Event) error { return nil }

// Consume 阻塞到 ctx 取消。
func (NoopQueue) Consume(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

// Close 实现 Publisher。
func (NoopQueue) Close() error { return nil }

var (
	_ Queue = (*MemoryQueue)(nil)
	_ Queue = NoopQueue{}
)
