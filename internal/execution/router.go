// Package execution submits pre-signed extrinsics for confirmed
// transactions and records the resulting hash in the ledger.
package execution

import (
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"

	"VoiceDot/internal/chain"
	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/events"
	"VoiceDot/internal/intent"
	"VoiceDot/internal/ledger"
	"VoiceDot/internal/safety"
	"VoiceDot/pkg/logger"
)

// ErrNotConfirmed 表示交易不处于 confirmed 状态，不能提交。
var ErrNotConfirmed = xerrors.New(xerrors.CodeConflict, "transaction not confirmed")

// Request 描述一次执行请求。
type Request struct {
	TransactionID string
	// UserID 非空时要求交易属于该用户。
	UserID          string
	SignedExtrinsic string
	// Chain 覆盖提交目标链，为空时使用交易的源链。
	Chain       string
	Token       string
	MinReceive  string
	SlippageBps *int
}

// Result 是执行结果。
type Result struct {
	TransactionHash string
	Record          *ledger.Record
}

// Router 负责校验并提交已签名交易。
type Router struct {
	store     ledger.Store
	chains    *chain.Registry
	validator *safety.Validator
	emitter   *events.Emitter
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Option 配置 Router。
type Option func(*Router)

// WithEmitter 设置事件发射器。
func WithEmitter(e *events.Emitter) Option {
	return func(r *Router) {
		r.emitter = e
	}
}

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter 创建执行路由器。
func NewRouter(store ledger.Store, chains *chain.Registry, validator *safety.Validator, opts ...Option) *Router {
	r := &Router{
		store:     store,
		chains:    chains,
		validator: validator,
		logger:    logger.Named("execution"),
		locks:     make(map[string]*lockEntry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Execute 校验交易状态与跨链约束后提交已签名的 extrinsic。
// 提交失败时交易保持 confirmed，可以重试。
func (r *Router) Execute(ctx context.Context, req Request) (Result, error) {
	id := strings.TrimSpace(req.TransactionID)
	if id == "" {
		return Result{}, xerrors.New(xerrors.CodeValidation, "transaction_id is required")
	}
	extrinsic, err := decodeHex(req.SignedExtrinsic)
	if err != nil {
		return Result{}, err
	}

	unlock := r.lock(id)
	defer unlock()

	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if req.UserID != "" && rec.UserID != req.UserID {
		return Result{}, ledger.ErrNotFound
	}
	if rec.Status != ledger.StatusConfirmed {
		return Result{}, ErrNotConfirmed
	}

	payload, err := intent.DecodePayload(rec.ParsedIntent)
	if err != nil {
		return Result{}, err
	}
	if payload.Item.CrossChain() {
		rec, err = r.applyConstraints(ctx, rec, req)
		if err != nil {
			return Result{}, err
		}
	}

	target := strings.TrimSpace(req.Chain)
	if target == "" {
		target = payload.Item.OriginChain
	}
	if target == "" {
		target = r.chains.DefaultChain()
	}
	client, err := r.chains.Client(ctx, strings.ToLower(target))
	if err != nil {
		return Result{}, err
	}
	hash, err := client.SubmitExtrinsic(ctx, extrinsic)
	if err != nil {
		r.logger.Warn("提交交易失败，保持 confirmed 状态",
			slog.String("transaction_id", id),
			slog.String("chain", target),
			slog.Any("error", err))
		return Result{}, err
	}

	updated, err := r.store.TransitionToSubmitted(ctx, id, hash)
	if err != nil {
		r.logger.Error("交易已上链但记录哈希失败",
			slog.String("transaction_id", id),
			slog.String("transaction_hash", hash),
			slog.Any("error", err))
		return Result{}, err
	}
	r.emitter.Emit(ctx, events.TypeSubmitted, updated)
	r.logger.Info("交易已提交",
		slog.String("transaction_id", id),
		slog.String("chain", target),
		slog.String("transaction_hash", hash))
	return Result{TransactionHash: hash, Record: updated}, nil
}

func (r *Router) applyConstraints(ctx context.Context, rec *ledger.Record, req Request) (*ledger.Record, error) {
	merged, err := r.validator.Validate(rec, safety.Request{
		Token:       req.Token,
		MinReceive:  req.MinReceive,
		SlippageBps: req.SlippageBps,
	})
	if err != nil {
		return nil, err
	}
	raw, err := safety.Merge(rec.ParsedIntent, merged)
	if err != nil {
		return nil, err
	}
	updated, err := r.store.UpdateConstraints(ctx, rec.ID, raw)
	if err != nil {
		return nil, err
	}
	r.emitter.Emit(ctx, events.TypeConstraintsUpdated, updated)
	return updated, nil
}

// lock 返回指定交易的互斥锁释放函数，引用归零后回收。
func (r *Router) lock(id string) func() {
	r.mu.Lock()
	entry, ok := r.locks[id]
	if !ok {
		entry = &lockEntry{}
		r.locks[id] = entry
	}
	entry.refs++
	r.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		r.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(r.locks, id)
		}
		r.mu.Unlock()
	}
}

func decodeHex(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "signed_extrinsic is required")
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, xerrors.New(xerrors.CodeValidation, "signed_extrinsic must be hex encoded")
	}
	return out, nil
}
