// Package prices fetches USD prices from a CoinGecko-compatible endpoint
// and converts amounts between tokens with decimal arithmetic.
package prices

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/token"
	"VoiceDot/pkg/logger"
)

const (
	defaultBaseURL = "https://api.coingecko.com/api/v3"
	defaultTTL     = 60 * time.Second
)

// Config 描述价格源。
type Config struct {
	BaseURL string
	TTL     time.Duration
	Timeout time.Duration
}

// Feed 查询并缓存代币美元价格。
type Feed struct {
	baseURL    string
	ttl        time.Duration
	ids        map[string]string
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger

	mu    sync.Mutex
	cache map[string]cachedPrice
}

type cachedPrice struct {
	price   decimal.Decimal
	fetched time.Time
}

// Option 配置 Feed。
type Option func(*Feed)

// WithClock 注入时钟。
func WithClock(now func() time.Time) Option {
	return func(f *Feed) {
		if now != nil {
			f.now = now
		}
	}
}

// WithHTTPClient 替换 HTTP 客户端。
func WithHTTPClient(c *http.Client) Option {
	return func(f *Feed) {
		if c != nil {
			f.httpClient = c
		}
	}
}

// NewFeed 创建价格源。代币与 CoinGecko ID 的映射来自 TokenCatalog。
func NewFeed(cfg Config, tokens *token.Catalog, opts ...Option) *Feed {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ids := make(map[string]string)
	for _, tok := range tokens.All() {
		if tok.CoingeckoID != "" {
			ids[tok.Symbol] = tok.CoingeckoID
		}
	}
	f := &Feed{
		baseURL:    base,
		ttl:        ttl,
		ids:        ids,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
		logger:     logger.Named("prices"),
		cache:      make(map[string]cachedPrice),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// USD 返回各符号的美元价格。没有 CoinGecko ID 或价格缺失的符号不会出现在结果中。
func (f *Feed) USD(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	missing := make(map[string]string)
	now := f.now()

	f.mu.Lock()
	for _, raw := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(raw))
		id, ok := f.ids[sym]
		if !ok {
			continue
		}
		if c, ok := f.cache[sym]; ok && now.Sub(c.fetched) < f.ttl {
			out[sym] = c.price
			continue
		}
		missing[sym] = id
	}
	f.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}
	fetched, err := f.fetch(ctx, missing)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	for sym, price := range fetched {
		f.cache[sym] = cachedPrice{price: price, fetched: now}
		out[sym] = price
	}
	f.mu.Unlock()
	return out, nil
}

func (f *Feed) fetch(ctx context.Context, symbols map[string]string) (map[string]decimal.Decimal, error) {
	ids := make([]string, 0, len(symbols))
	for _, id := range symbols {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", "usd")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/simple/price?"+query.Encode(), nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "构建价格请求失败")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "请求价格接口超时")
		}
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "请求价格接口失败")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Newf(xerrors.CodeUpstream, "price API error: %d", resp.StatusCode)
	}

	var decoded map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "解析价格响应失败")
	}
	out := make(map[string]decimal.Decimal, len(symbols))
	for sym, id := range symbols {
		if price, ok := decoded[id]["usd"]; ok {
			out[sym] = price
		}
	}
	f.logger.Debug("已刷新价格", slog.Int("count", len(out)))
	return out, nil
}

// Convert 按美元价格把 amount 从一种代币换算为另一种。任一价格缺失或为零时返回 0。
func Convert(amount, fromUSD, toUSD decimal.Decimal) decimal.Decimal {
	if fromUSD.IsZero() || toUSD.IsZero() {
		return decimal.Zero
	}
	return amount.Mul(fromUSD).DivRound(toUSD, 18)
}
