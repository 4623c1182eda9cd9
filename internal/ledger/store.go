package ledger

import (
	"context"
	"encoding/json"
)

// Store 抽象了交易记录的持久化与状态机。
// 所有状态迁移都以条件更新实现：前置状态不满足时整批失败，不做部分修改。
type Store interface {
	Create(ctx context.Context, rec *Record) error
	// CreateBatch 原子地写入一批记录。
	CreateBatch(ctx context.Context, recs []*Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, opts ...ListOption) ([]*Record, error)
	// TransitionToConfirmed 将 pending 记录标记为 confirmed 并写入确认时间。
	TransitionToConfirmed(ctx context.Context, ids []string) ([]*Record, error)
	// TransitionToFailed 将 pending 记录标记为 failed。
	TransitionToFailed(ctx context.Context, ids []string) ([]*Record, error)
	// TransitionToSubmitted 记录交易哈希并将 confirmed 记录标记为 submitted。
	TransitionToSubmitted(ctx context.Context, id, hash string) (*Record, error)
	// UpdateConstraints 替换 confirmed 记录的 parsed_intent。
	UpdateConstraints(ctx context.Context, id string, parsedIntent json.RawMessage) (*Record, error)
	// RecordSession 保存一次语音交互。
	RecordSession(ctx context.Context, session *Session) error
	// Sessions 按时间倒序返回用户最近的语音交互。
	Sessions(ctx context.Context, userID string, limit int) ([]*Session, error)
	Close() error
}
