// Package transfer builds unsigned runtime calls for same-chain and
// cross-chain transfers and estimates their fees on the origin chain.
package transfer

import (
	"context"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"VoiceDot/internal/chain"
	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/safety"
	"VoiceDot/internal/scale"
	"VoiceDot/internal/token"
	"VoiceDot/internal/units"
	"VoiceDot/pkg/logger"
)

// Kind 表示调用类型。
type Kind string

const (
	KindNative Kind = "native"
	KindAsset  Kind = "asset"
	KindXCM    Kind = "xcm"
)

// multiAddressID 是 MultiAddress::Id 的枚举序号。
const multiAddressID = 0

// Request 描述一笔待构建的转账。
type Request struct {
	Token            string
	Amount           string
	Recipient        string
	OriginChain      string
	DestinationChain string
	MinReceive       string
	SlippageBps      *int
}

// Result 是构建结果。Fee 为空表示费用未知。
type Result struct {
	Call             []byte
	CallHex          string
	Kind             Kind
	Token            token.Token
	OriginChain      string
	DestinationChain string
	AmountUnits      *big.Int
	Fee              *big.Int
	FeeToken         string
}

// FeeString 以最小单位字符串返回费用，未知时为 "0"。
func (r Result) FeeString() string {
	if r.Fee == nil {
		return "0"
	}
	return r.Fee.String()
}

// Builder 构建转账调用。
type Builder struct {
	chains *chain.Registry
	tokens *token.Catalog
	relay  string
	logger *slog.Logger
}

// Option 配置 Builder。
type Option func(*Builder)

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBuilder 创建转账构建器。
func NewBuilder(chains *chain.Registry, tokens *token.Catalog, opts ...Option) *Builder {
	b := &Builder{chains: chains, tokens: tokens, logger: logger.Named("transfer")}
	for _, name := range chains.Chains() {
		if def, ok := chains.Definition(name); ok && def.IsRelay() {
			b.relay = name
			break
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Build 构建调用并估算费用。
func (b *Builder) Build(ctx context.Context, req Request) (Result, error) {
	res, err := b.Compose(req)
	if err != nil {
		return Result{}, err
	}
	fee, err := b.estimate(ctx, res)
	if err != nil {
		return Result{}, err
	}
	res.Fee = fee
	return res, nil
}

// Compose 只构建调用，不访问链。
func (b *Builder) Compose(req Request) (Result, error) {
	tok, err := b.tokens.Lookup(req.Token)
	if err != nil {
		return Result{}, err
	}
	origin, err := b.resolveChain(req.OriginChain, tok.Chain)
	if err != nil {
		return Result{}, err
	}
	dest, err := b.resolveChain(req.DestinationChain, tok.Chain)
	if err != nil {
		return Result{}, err
	}

	amount, err := units.DecimalToUnits(req.Amount, tok.Decimals)
	if err != nil {
		return Result{}, err
	}
	if amount.Sign() == 0 {
		return Result{}, xerrors.New(xerrors.CodeValidation, "amount must be greater than zero")
	}
	var minUnits *big.Int
	if strings.TrimSpace(req.MinReceive) != "" {
		if minUnits, err = units.DecimalToUnits(req.MinReceive, tok.Decimals); err != nil {
			return Result{}, err
		}
	}
	if err := safety.CheckMinReceive(amount, minUnits); err != nil {
		return Result{}, err
	}
	if err := safety.CheckSlippage(req.SlippageBps); err != nil {
		return Result{}, err
	}

	account, err := chain.AccountID(dest, req.Recipient)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Kind:             KindNative,
		Token:            tok,
		OriginChain:      origin.Name,
		DestinationChain: dest.Name,
		AmountUnits:      amount,
		FeeToken:         origin.NativeToken,
	}

	var call []byte
	switch {
	case origin.Name != dest.Name:
		res.Kind = KindXCM
		call, err = buildXCMCall(origin, dest, b.relay, tok, account, amount)
		if err == nil && minUnits != nil {
			call, err = wrapMinReceive(origin, call, minUnits)
		}
	case tok.Native && tok.Chain == origin.Name:
		call, err = nativeTransfer(origin, account, amount)
	case !tok.Native && tok.AssetID != nil && tok.Chain == origin.Name && origin.Calls.AssetTransfer != nil:
		res.Kind = KindAsset
		call, err = assetTransfer(origin, *tok.AssetID, account, amount)
	default:
		err = xerrors.Newf(xerrors.CodeValidation, "token %s is not transferable on %s", tok.Symbol, origin.Name)
	}
	if err != nil {
		return Result{}, err
	}
	res.Call = call
	res.CallHex = hexutil.Encode(call)
	return res, nil
}

// resolveChain 解析链名；为空时使用 fallback。
func (b *Builder) resolveChain(raw, fallback string) (chain.Definition, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		name = fallback
	}
	return b.chains.Lookup(name)
}

func (b *Builder) estimate(ctx context.Context, res Result) (*big.Int, error) {
	client, err := b.chains.Client(ctx, res.OriginChain)
	if err == nil {
		var fee *big.Int
		if fee, err = client.QueryCallFee(ctx, res.Call); err == nil {
			return fee, nil
		}
	}
	if res.Kind == KindXCM {
		b.logger.Warn("跨链手续费估算失败", slog.String("chain", res.OriginChain), slog.Any("error", err))
		return nil, nil
	}
	if _, ok := xerrors.From(err); ok {
		return nil, err
	}
	return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "fee estimation failed")
}

func writeAccount(enc *scale.Encoder, def chain.Definition, account []byte) {
	if def.AddressFormat == chain.FormatH160 {
		enc.Raw(account)
		return
	}
	enc.U8(multiAddressID).Raw(account)
}

// nativeTransfer 构建 balances.transfer_keep_alive(dest, Compact<u128>)。
func nativeTransfer(def chain.Definition, account []byte, amount *big.Int) ([]byte, error) {
	enc := scale.NewEncoder().Raw(def.Calls.TransferKeepAlive.Bytes())
	writeAccount(enc, def, account)
	return enc.Compact(amount).Result()
}

// assetTransfer 构建 assets.transfer(Compact<u32> id, dest, Compact<u128>)。
func assetTransfer(def chain.Definition, assetID uint32, account []byte, amount *big.Int) ([]byte, error) {
	enc := scale.NewEncoder().Raw(def.Calls.AssetTransfer.Bytes()).CompactUint(uint64(assetID))
	writeAccount(enc, def, account)
	return enc.Compact(amount).Result()
}
