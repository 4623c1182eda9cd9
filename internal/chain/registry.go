package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "VoiceDot/internal/errors"
	"VoiceDot/pkg/logger"
)

// Dialer 建立到节点端点的底层 RPC 连接。
type Dialer func(ctx context.Context, endpoint string) (Caller, error)

func defaultDialer(ctx context.Context, endpoint string) (Caller, error) {
	return gethrpc.DialContext(ctx, endpoint)
}

type aliasEntry struct {
	alias string
	chain string
}

type connection struct {
	mu     sync.Mutex
	caller Caller
}

// Registry 管理受支持的链以及按端点共享的节点连接。
type Registry struct {
	defs         map[string]Definition
	aliases      []aliasEntry
	defaultChain string
	dial         Dialer
	logger       *slog.Logger

	mu    sync.Mutex
	conns map[string]*connection
}

// Option 配置 Registry。
type Option func(*Registry)

// WithDefaultChain 指定默认链。
func WithDefaultChain(name string) Option {
	return func(r *Registry) {
		r.defaultChain = strings.ToLower(strings.TrimSpace(name))
	}
}

// WithDialer 替换底层连接方式。
func WithDialer(d Dialer) Option {
	return func(r *Registry) {
		if d != nil {
			r.dial = d
		}
	}
}

// WithLogger 指定日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry 基于链定义创建注册表，连接在首次使用时建立。
func NewRegistry(defs map[string]Definition, opts ...Option) (*Registry, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("未配置任何链")
	}
	r := &Registry{
		defs:   make(map[string]Definition, len(defs)),
		dial:   defaultDialer,
		logger: logger.Named("chain"),
		conns:  make(map[string]*connection),
	}
	for name, def := range defs {
		key := strings.ToLower(strings.TrimSpace(name))
		def.Name = key
		if err := validateDefinition(def); err != nil {
			return nil, err
		}
		r.defs[key] = def
		r.aliases = append(r.aliases, aliasEntry{alias: key, chain: key})
		for _, alias := range def.Aliases {
			alias = strings.ToLower(strings.TrimSpace(alias))
			if alias != "" && alias != key {
				r.aliases = append(r.aliases, aliasEntry{alias: alias, chain: key})
			}
		}
	}
	// 长别名优先，避免 "asset-hub-polkadot" 被 "polkadot" 抢先匹配。
	sort.SliceStable(r.aliases, func(i, j int) bool {
		if len(r.aliases[i].alias) == len(r.aliases[j].alias) {
			return r.aliases[i].alias < r.aliases[j].alias
		}
		return len(r.aliases[i].alias) > len(r.aliases[j].alias)
	})

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.defaultChain == "" {
		if _, ok := r.defs["polkadot"]; ok {
			r.defaultChain = "polkadot"
		} else {
			r.defaultChain = sortedNames(r.defs)[0]
		}
	}
	if _, ok := r.defs[r.defaultChain]; !ok {
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", r.defaultChain)
	}
	return r, nil
}

// Definition 返回指定链的定义。
func (r *Registry) Definition(name string) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	def, ok := r.defs[strings.ToLower(strings.TrimSpace(name))]
	return def, ok
}

// Lookup 与 Definition 相同，但未知链返回校验错误。
func (r *Registry) Lookup(name string) (Definition, error) {
	def, ok := r.Definition(name)
	if !ok {
		return Definition{}, xerrors.Newf(xerrors.CodeValidation, "unsupported chain: %s", name)
	}
	return def, nil
}

// Chains 返回已注册的链名称。
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	return sortedNames(r.defs)
}

// DefaultChain 返回默认链名称。
func (r *Registry) DefaultChain() string {
	return r.defaultChain
}

// Normalize 将自由文本的链名映射为规范名称。
// 无法识别时回退到 fallback（通常是代币的原生链），再回退到默认链。
func (r *Registry) Normalize(raw, fallback string) string {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text != "" {
		if _, ok := r.defs[text]; ok {
			return text
		}
		for _, entry := range r.aliases {
			if strings.Contains(text, entry.alias) {
				return entry.chain
			}
		}
	}
	if _, ok := r.defs[fallback]; ok {
		return fallback
	}
	return r.defaultChain
}

// Client 返回指定链的客户端，必要时建立连接。
// 相同端点的链共享同一条连接。
func (r *Registry) Client(ctx context.Context, name string) (Client, error) {
	def, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	conn, ok := r.conns[def.Endpoint]
	if !ok {
		conn = &connection{}
		r.conns[def.Endpoint] = conn
	}
	r.mu.Unlock()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.caller == nil {
		caller, err := r.dial(ctx, def.Endpoint)
		if err != nil {
			r.logger.Warn("连接链节点失败", slog.String("chain", def.Name), slog.Any("error", err))
			return nil, xerrors.Wrap(xerrors.CodeUpstream, err, fmt.Sprintf("connect %s node failed", def.Name))
		}
		r.logger.Info("已连接链节点", slog.String("chain", def.Name), slog.String("endpoint", def.Endpoint))
		conn.caller = caller
	}
	return newSharedClient(def.Name, conn.caller), nil
}

// Close 释放注册表持有的全部连接。
func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for endpoint, conn := range r.conns {
		conn.mu.Lock()
		if conn.caller != nil {
			conn.caller.Close()
			conn.caller = nil
		}
		conn.mu.Unlock()
		delete(r.conns, endpoint)
	}
}
