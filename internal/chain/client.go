package chain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/observability/metrics"
)

const queryCallInfoMethod = "TransactionPaymentCallApi_query_call_info"

// Client 定义与 Substrate 节点交互所需的最小能力。
type Client interface {
	// SubmitExtrinsic 广播已签名的 extrinsic 并返回交易哈希。
	SubmitExtrinsic(ctx context.Context, extrinsic []byte) (string, error)
	// QueryCallFee 估算未签名调用的 partial fee。
	QueryCallFee(ctx context.Context, call []byte) (*big.Int, error)
	// Storage 读取原始存储值，键不存在时返回 nil。
	Storage(ctx context.Context, key []byte) ([]byte, error)
	// Header 返回最新区块高度。
	Header(ctx context.Context) (uint64, error)
	Close()
}

// Caller 抽象 go-ethereum rpc.Client 的调用方法。
type Caller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	Close()
}

// RPCClient 通过 JSON-RPC 访问 Substrate 节点。
type RPCClient struct {
	chain string
	rpc   Caller
	// shared 为 true 时连接由 Registry 持有，Close 不释放。
	shared bool
}

var _ Client = (*RPCClient)(nil)

func newSharedClient(chain string, caller Caller) *RPCClient {
	return &RPCClient{chain: chain, rpc: caller, shared: true}
}

// SubmitExtrinsic 实现 Client。
func (c *RPCClient) SubmitExtrinsic(ctx context.Context, extrinsic []byte) (string, error) {
	var hash string
	if err := c.call(ctx, &hash, "author_submitExtrinsic", hexutil.Encode(extrinsic)); err != nil {
		return "", err
	}
	return hash, nil
}

// QueryCallFee 实现 Client。
func (c *RPCClient) QueryCallFee(ctx context.Context, call []byte) (*big.Int, error) {
	payload := make([]byte, len(call)+4)
	copy(payload, call)
	binary.LittleEndian.PutUint32(payload[len(call):], uint32(len(call)))

	var result string
	if err := c.call(ctx, &result, "state_call", queryCallInfoMethod, hexutil.Encode(payload)); err != nil {
		return nil, err
	}
	raw, err := hexutil.Decode(result)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "decode fee response failed")
	}
	fee, err := DecodeQueryInfoFee(raw)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "decode fee response failed")
	}
	return fee, nil
}

// Storage 实现 Client。
func (c *RPCClient) Storage(ctx context.Context, key []byte) ([]byte, error) {
	var result *string
	if err := c.call(ctx, &result, "state_getStorage", hexutil.Encode(key)); err != nil {
		return nil, err
	}
	if result == nil || *result == "" || *result == "0x" {
		return nil, nil
	}
	raw, err := hexutil.Decode(*result)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "decode storage value failed")
	}
	return raw, nil
}

// Header 实现 Client。
func (c *RPCClient) Header(ctx context.Context) (uint64, error) {
	var header struct {
		Number string `json:"number"`
	}
	if err := c.call(ctx, &header, "chain_getHeader"); err != nil {
		return 0, err
	}
	n, err := hexutil.DecodeUint64(header.Number)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeUpstream, err, "decode block number failed")
	}
	return n, nil
}

// Close 释放底层连接。
func (c *RPCClient) Close() {
	if c != nil && c.rpc != nil && !c.shared {
		c.rpc.Close()
	}
}

func (c *RPCClient) call(ctx context.Context, result any, method string, args ...any) error {
	start := time.Now()
	err := c.rpc.CallContext(ctx, result, method, args...)
	metrics.ObserveChainCall(c.chain, method, time.Since(start), err)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeTimeout, err, fmt.Sprintf("%s %s timed out", c.chain, method))
	}
	return xerrors.Wrap(xerrors.CodeUpstream, err, fmt.Sprintf("%s %s failed", c.chain, method))
}
