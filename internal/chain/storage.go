package chain

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"

	"VoiceDot/internal/scale"
)

// Twox128 返回 xxhash64(seed 0) 与 xxhash64(seed 1) 的小端拼接。
func Twox128(data []byte) []byte {
	out := make([]byte, 16)
	for seed := uint64(0); seed < 2; seed++ {
		d := xxhash.NewWithSeed(seed)
		_, _ = d.Write(data)
		binary.LittleEndian.PutUint64(out[seed*8:], d.Sum64())
	}
	return out
}

// Blake2128Concat 返回 blake2b-128(data) 后接原始数据。
func Blake2128Concat(data []byte) []byte {
	h, _ := blake2b.New(16, nil)
	h.Write(data)
	return append(h.Sum(nil), data...)
}

// StorageKey 拼接 pallet 与存储项前缀以及已哈希的 map key。
func StorageKey(pallet, item string, hashedKeys ...[]byte) []byte {
	key := append(Twox128([]byte(pallet)), Twox128([]byte(item))...)
	for _, k := range hashedKeys {
		key = append(key, k...)
	}
	return key
}

// SystemAccountKey 返回 System.Account(account) 的存储键。
func SystemAccountKey(account []byte) []byte {
	return StorageKey("System", "Account", Blake2128Concat(account))
}

// AssetAccountKey 返回 Assets.Account(assetID, account) 的存储键。
func AssetAccountKey(assetID uint32, account []byte) []byte {
	var id [4]byte
	binary.LittleEndian.PutUint32(id[:], assetID)
	return StorageKey("Assets", "Account", Blake2128Concat(id[:]), Blake2128Concat(account))
}

// DecodeFreeBalance 从 AccountInfo 中读取 free 余额。
// 布局：nonce、consumers、providers、sufficients 各 u32，之后是 AccountData.free。
func DecodeFreeBalance(raw []byte) (*big.Int, error) {
	if len(raw) == 0 {
		return new(big.Int), nil
	}
	if len(raw) < 16+16 {
		return nil, fmt.Errorf("account info too short: %d bytes", len(raw))
	}
	return scale.DecodeU128(raw[16:])
}

// DecodeAssetBalance 从 AssetAccount 中读取余额（首个 u128 字段）。
func DecodeAssetBalance(raw []byte) (*big.Int, error) {
	if len(raw) == 0 {
		return new(big.Int), nil
	}
	return scale.DecodeU128(raw)
}

// DecodeQueryInfoFee 从 RuntimeDispatchInfo 中读取 partial_fee。
// 布局：Weight{ref_time compact, proof_size compact}、class u8、partial_fee u128。
func DecodeQueryInfoFee(raw []byte) (*big.Int, error) {
	offset := 0
	for i := 0; i < 2; i++ {
		_, n, err := scale.DecodeCompact(raw[offset:])
		if err != nil {
			return nil, fmt.Errorf("decode weight: %w", err)
		}
		offset += n
	}
	offset++
	if offset > len(raw) {
		return nil, scale.ErrShortInput
	}
	return scale.DecodeU128(raw[offset:])
}
