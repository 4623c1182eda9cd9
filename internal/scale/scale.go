// Package scale implements the subset of the SCALE codec needed to build
// runtime calls and read a few well-known storage values.
package scale

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

var (
	compactSingleMax = big.NewInt(1 << 6)
	compactTwoMax    = big.NewInt(1 << 14)
	compactFourMax   = big.NewInt(1 << 30)
	u128Max          = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// ErrShortInput 表示待解码数据长度不足。
var ErrShortInput = errors.New("scale: input too short")

// Encoder 以追加方式构建 SCALE 编码字节。
type Encoder struct {
	buf bytes.Buffer
	err error
}

// NewEncoder 创建空编码器。
func NewEncoder() *Encoder {
	return &Encoder{}
}

// U8 写入单字节。
func (e *Encoder) U8(v uint8) *Encoder {
	e.buf.WriteByte(v)
	return e
}

// U32 以小端序写入 u32。
func (e *Encoder) U32(v uint32) *Encoder {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	e.buf.Write(tmp[:])
	return e
}

// U128 以小端序写入定长 u128。
func (e *Encoder) U128(v *big.Int) *Encoder {
	if v == nil || v.Sign() < 0 || v.Cmp(u128Max) > 0 {
		e.fail(fmt.Errorf("scale: value %v out of u128 range", v))
		return e
	}
	var tmp [16]byte
	be := v.FillBytes(make([]byte, 16))
	for i := 0; i < 16; i++ {
		tmp[i] = be[15-i]
	}
	e.buf.Write(tmp[:])
	return e
}

// Raw 原样写入字节。
func (e *Encoder) Raw(b []byte) *Encoder {
	e.buf.Write(b)
	return e
}

// Bytes 写入带紧凑长度前缀的字节序列。
func (e *Encoder) Bytes(b []byte) *Encoder {
	e.CompactUint(uint64(len(b)))
	e.buf.Write(b)
	return e
}

// CompactUint 写入紧凑编码的无符号整数。
func (e *Encoder) CompactUint(v uint64) *Encoder {
	return e.Compact(new(big.Int).SetUint64(v))
}

// Compact 写入紧凑编码的大整数。
func (e *Encoder) Compact(v *big.Int) *Encoder {
	encoded, err := EncodeCompact(v)
	if err != nil {
		e.fail(err)
		return e
	}
	e.buf.Write(encoded)
	return e
}

// Result 返回编码结果或编码过程中遇到的第一个错误。
func (e *Encoder) Result() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	return out, nil
}

func (e *Encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// EncodeCompact 返回 v 的紧凑编码。
func EncodeCompact(v *big.Int) ([]byte, error) {
	if v == nil || v.Sign() < 0 {
		return nil, fmt.Errorf("scale: compact value must be non-negative")
	}
	switch {
	case v.Cmp(compactSingleMax) < 0:
		return []byte{byte(v.Uint64() << 2)}, nil
	case v.Cmp(compactTwoMax) < 0:
		out := make([]byte, 2)
		binary.LittleEndian.PutUint16(out, uint16(v.Uint64()<<2)|0b01)
		return out, nil
	case v.Cmp(compactFourMax) < 0:
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, uint32(v.Uint64()<<2)|0b10)
		return out, nil
	}
	be := v.Bytes()
	if len(be) > 67 {
		return nil, fmt.Errorf("scale: compact value too large")
	}
	le := make([]byte, len(be))
	for i := range be {
		le[i] = be[len(be)-1-i]
	}
	for len(le) < 4 {
		le = append(le, 0)
	}
	return append([]byte{byte((len(le)-4)<<2) | 0b11}, le...), nil
}

// DecodeCompact 解码紧凑整数，返回数值与消耗的字节数。
func DecodeCompact(data []byte) (*big.Int, int, error) {
	if len(data) == 0 {
		return nil, 0, ErrShortInput
	}
	switch data[0] & 0b11 {
	case 0b00:
		return big.NewInt(int64(data[0] >> 2)), 1, nil
	case 0b01:
		if len(data) < 2 {
			return nil, 0, ErrShortInput
		}
		return big.NewInt(int64(binary.LittleEndian.Uint16(data[:2]) >> 2)), 2, nil
	case 0b10:
		if len(data) < 4 {
			return nil, 0, ErrShortInput
		}
		return big.NewInt(int64(binary.LittleEndian.Uint32(data[:4]) >> 2)), 4, nil
	default:
		n := int(data[0]>>2) + 4
		if len(data) < 1+n {
			return nil, 0, ErrShortInput
		}
		return leToBig(data[1 : 1+n]), 1 + n, nil
	}
}

// DecodeU128 读取小端序 u128。
func DecodeU128(data []byte) (*big.Int, error) {
	if len(data) < 16 {
		return nil, ErrShortInput
	}
	return leToBig(data[:16]), nil
}

func leToBig(le []byte) *big.Int {
	be := make([]byte, len(le))
	for i := range le {
		be[i] = le[len(le)-1-i]
	}
	return new(big.Int).SetBytes(be)
}
