// Package token holds the catalog of transferable tokens and their home chains.
package token

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	xerrors "VoiceDot/internal/errors"
)

// Token 描述一个可转账的代币。
type Token struct {
	Symbol   string `yaml:"symbol" json:"symbol"`
	Chain    string `yaml:"chain" json:"chain"`
	Decimals int32  `yaml:"decimals" json:"decimals"`
	Native   bool   `yaml:"native" json:"native"`
	// AssetID 仅对 Assets pallet 中的代币有效。
	AssetID     *uint32 `yaml:"asset_id,omitempty" json:"asset_id,omitempty"`
	CoingeckoID string  `yaml:"coingecko_id" json:"coingecko_id,omitempty"`
}

// Catalog 是按大写符号索引的只读代币表。
type Catalog struct {
	tokens map[string]Token
}

// DefaultTokens 返回内置代币表。
func DefaultTokens() map[string]Token {
	usdt := uint32(1984)
	return map[string]Token{
		"DOT":  {Symbol: "DOT", Chain: "polkadot", Decimals: 10, Native: true, CoingeckoID: "polkadot"},
		"USDT": {Symbol: "USDT", Chain: "asset-hub-polkadot", Decimals: 6, AssetID: &usdt, CoingeckoID: "tether"},
		"GLMR": {Symbol: "GLMR", Chain: "moonbeam", Decimals: 18, Native: true, CoingeckoID: "moonbeam"},
	}
}

// NewCatalog 创建代币表，符号统一转为大写。
func NewCatalog(tokens map[string]Token) (*Catalog, error) {
	c := &Catalog{tokens: make(map[string]Token, len(tokens))}
	for symbol, tok := range tokens {
		key := strings.ToUpper(strings.TrimSpace(symbol))
		tok.Symbol = key
		if tok.Chain == "" {
			return nil, fmt.Errorf("代币 %s 未配置所属链", key)
		}
		if tok.Decimals < 0 || tok.Decimals > 38 {
			return nil, fmt.Errorf("代币 %s 精度 %d 超出范围", key, tok.Decimals)
		}
		if !tok.Native && tok.AssetID == nil {
			return nil, fmt.Errorf("代币 %s 既不是原生代币也没有 asset_id", key)
		}
		c.tokens[key] = tok
	}
	return c, nil
}

// Lookup 按符号查找代币，大小写不敏感。
func (c *Catalog) Lookup(symbol string) (Token, error) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	tok, ok := c.tokens[key]
	if !ok {
		return Token{}, xerrors.Newf(xerrors.CodeValidation, "unsupported token: %s", symbol)
	}
	return tok, nil
}

// Symbols 返回按字母排序的代币符号。
func (c *Catalog) Symbols() []string {
	out := make([]string, 0, len(c.tokens))
	for symbol := range c.tokens {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// All 返回全部代币，按符号排序。
func (c *Catalog) All() []Token {
	out := make([]Token, 0, len(c.tokens))
	for _, symbol := range c.Symbols() {
		out = append(out, c.tokens[symbol])
	}
	return out
}

type tokensFile struct {
	Tokens map[string]yaml.Node `yaml:"tokens"`
}

// LoadTokens 读取与链定义同一 YAML 文件中的 tokens 段，并覆盖默认值。
func LoadTokens(path string) (map[string]Token, error) {
	tokens := DefaultTokens()
	if strings.TrimSpace(path) == "" {
		return tokens, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取代币配置失败: %w", err)
	}
	var file tokensFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("解析代币配置失败: %w", err)
	}
	for symbol, node := range file.Tokens {
		key := strings.ToUpper(strings.TrimSpace(symbol))
		tok := tokens[key]
		if err := node.Decode(&tok); err != nil {
			return nil, fmt.Errorf("解析代币 %s 失败: %w", symbol, err)
		}
		tok.Symbol = key
		tokens[key] = tok
	}
	return tokens, nil
}
