package ledger

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/observability/metrics"
)

// MemoryStore 以内存方式保存交易记录，用于测试与单实例部署。
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]*Record
	sessions []*Session
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// MemoryOption 配置 MemoryStore。
type MemoryOption func(*MemoryStore)

// WithMemoryClock 注入时钟。
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{records: make(map[string]*Record), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(ctx context.Context, rec *Record) error {
	return m.CreateBatch(ctx, []*Record{rec})
}

// CreateBatch 实现 Store 接口。
func (m *MemoryStore) CreateBatch(_ context.Context, recs []*Record) error {
	if len(recs) == 0 {
		return xerrors.New(xerrors.CodeValidation, "no records to create")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UnixMilli()
	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		if err := validateNew(rec); err != nil {
			return err
		}
		if _, ok := m.records[rec.ID]; ok {
			return xerrors.Newf(xerrors.CodeConflict, "transaction %s already exists", rec.ID)
		}
		if _, ok := seen[rec.ID]; ok {
			return xerrors.Newf(xerrors.CodeConflict, "transaction %s already exists", rec.ID)
		}
		seen[rec.ID] = struct{}{}
	}
	for _, rec := range recs {
		if rec.CreatedAt == 0 {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		m.records[rec.ID] = rec.clone()
	}
	return nil
}

// Get 实现 Store 接口。
func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.clone(), nil
}

// List 实现 Store 接口，按 created_at 倒序返回。
func (m *MemoryStore) List(_ context.Context, opts ...ListOption) ([]*Record, error) {
	options := BuildListOptions(opts...)

	m.mu.RLock()
	matched := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		if options.UserID != "" && rec.UserID != options.UserID {
			continue
		}
		if !statusMatches(rec.Status, options.Statuses) {
			continue
		}
		matched = append(matched, rec.clone())
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt == matched[j].CreatedAt {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt > matched[j].CreatedAt
	})

	if options.Offset >= len(matched) {
		return []*Record{}, nil
	}
	end := options.Offset + options.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[options.Offset:end], nil
}

// TransitionToConfirmed 实现 Store 接口。
func (m *MemoryStore) TransitionToConfirmed(_ context.Context, ids []string) ([]*Record, error) {
	return m.transition(ids, StatusPending, StatusConfirmed, func(rec *Record, now int64) {
		rec.ConfirmedAt = &now
	})
}

// TransitionToFailed 实现 Store 接口。
func (m *MemoryStore) TransitionToFailed(_ context.Context, ids []string) ([]*Record, error) {
	return m.transition(ids, StatusPending, StatusFailed, nil)
}

// TransitionToSubmitted 实现 Store 接口。
func (m *MemoryStore) TransitionToSubmitted(_ context.Context, id, hash string) (*Record, error) {
	if hash == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "transaction hash is required")
	}
	out, err := m.transition([]string{id}, StatusConfirmed, StatusSubmitted, func(rec *Record, _ int64) {
		h := hash
		rec.TransactionHash = &h
	})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// UpdateConstraints 实现 Store 接口。
func (m *MemoryStore) UpdateConstraints(_ context.Context, id string, parsedIntent json.RawMessage) (*Record, error) {
	out, err := m.transition([]string{id}, StatusConfirmed, StatusConfirmed, func(rec *Record, _ int64) {
		rec.ParsedIntent = append(json.RawMessage(nil), parsedIntent...)
	})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// RecordSession 实现 Store 接口。
func (m *MemoryStore) RecordSession(_ context.Context, session *Session) error {
	if session == nil || session.ID == "" || session.UserID == "" {
		return xerrors.New(xerrors.CodeValidation, "session id and user_id are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.CreatedAt == 0 {
		session.CreatedAt = m.now().UnixMilli()
	}
	m.sessions = append(m.sessions, session.clone())
	return nil
}

// Sessions 实现 Store 接口。
func (m *MemoryStore) Sessions(_ context.Context, userID string, limit int) ([]*Session, error) {
	limit = clampLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, limit)
	for i := len(m.sessions) - 1; i >= 0 && len(out) < limit; i-- {
		if m.sessions[i].UserID == userID {
			out = append(out, m.sessions[i].clone())
		}
	}
	return out, nil
}

// Close 实现 Store 接口。
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) transition(ids []string, from, to Status, mutate func(*Record, int64)) ([]*Record, error) {
	if err := checkTransition(from, to); err != nil {
		return nil, err
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, xerrors.New(xerrors.CodeValidation, "transaction_ids must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		rec, ok := m.records[id]
		if !ok {
			return nil, ErrNotFound
		}
		if rec.Status != from {
			return nil, conflictError(id, rec.Status)
		}
	}

	now := m.now().UnixMilli()
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec := m.records[id]
		rec.Status = to
		rec.UpdatedAt = now
		if mutate != nil {
			mutate(rec, now)
		}
		out = append(out, rec.clone())
	}
	if from != to {
		metrics.ObserveTransition(string(from), string(to), len(out))
	}
	return out, nil
}

func statusMatches(status Status, filter []Status) bool {
	if len(filter) == 0 {
		return true
	}
	for _, s := range filter {
		if s == status {
			return true
		}
	}
	return false
}
