package chain

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/blake2b"

	xerrors "VoiceDot/internal/errors"
)

const (
	accountIDLength = 32
	checksumLength  = 2
)

var ss58Preamble = []byte("SS58PRE")

// DecodeSS58 解析 SS58 地址，返回网络前缀与 32 字节账户。
func DecodeSS58(address string) (uint16, []byte, error) {
	raw, err := base58Decode(strings.TrimSpace(address))
	if err != nil {
		return 0, nil, err
	}
	if len(raw) < 1 {
		return 0, nil, fmt.Errorf("ss58: empty payload")
	}

	var (
		prefix    uint16
		prefixLen int
	)
	switch {
	case raw[0] < 64:
		prefix, prefixLen = uint16(raw[0]), 1
	case raw[0] < 128:
		if len(raw) < 2 {
			return 0, nil, fmt.Errorf("ss58: truncated prefix")
		}
		lower := (raw[0] << 2) | (raw[1] >> 6)
		upper := raw[1] & 0x3f
		prefix, prefixLen = uint16(lower)|uint16(upper)<<8, 2
	default:
		return 0, nil, fmt.Errorf("ss58: reserved prefix byte %d", raw[0])
	}

	if len(raw) != prefixLen+accountIDLength+checksumLength {
		return 0, nil, fmt.Errorf("ss58: unexpected length %d", len(raw))
	}
	body := raw[:prefixLen+accountIDLength]
	sum := ss58Checksum(body)
	if !bytes.Equal(sum, raw[len(body):]) {
		return 0, nil, fmt.Errorf("ss58: checksum mismatch")
	}
	account := make([]byte, accountIDLength)
	copy(account, raw[prefixLen:len(body)])
	return prefix, account, nil
}

// EncodeSS58 使用给定前缀编码 32 字节账户。
func EncodeSS58(prefix uint16, account []byte) (string, error) {
	if len(account) != accountIDLength {
		return "", fmt.Errorf("ss58: account must be %d bytes", accountIDLength)
	}
	if prefix >= 16384 {
		return "", fmt.Errorf("ss58: prefix %d out of range", prefix)
	}
	var body []byte
	if prefix < 64 {
		body = append(body, byte(prefix))
	} else {
		first := byte((prefix&0x00fc)>>2) | 0x40
		second := byte(prefix>>8) | byte(prefix&0x03)<<6
		body = append(body, first, second)
	}
	body = append(body, account...)
	body = append(body, ss58Checksum(body)...)
	return base58Encode(body), nil
}

func ss58Checksum(body []byte) []byte {
	h, _ := blake2b.New512(nil)
	h.Write(ss58Preamble)
	h.Write(body)
	return h.Sum(nil)[:checksumLength]
}

// ValidateAddress 按链的地址格式校验地址。
// SS58 地址接受任意网络前缀，但必须能够无损重新编码。
func ValidateAddress(def Definition, address string) error {
	_, err := AccountID(def, address)
	return err
}

// AccountID 返回地址对应的原始账户字节（SS58 为 32 字节，H160 为 20 字节）。
func AccountID(def Definition, address string) ([]byte, error) {
	address = strings.TrimSpace(address)
	invalid := xerrors.Newf(xerrors.CodeValidation, "invalid recipient address: %s", address)
	if address == "" {
		return nil, invalid
	}
	switch def.AddressFormat {
	case FormatH160:
		if !common.IsHexAddress(address) {
			return nil, invalid
		}
		return common.HexToAddress(address).Bytes(), nil
	default:
		prefix, account, err := DecodeSS58(address)
		if err != nil {
			return nil, invalid
		}
		reencoded, err := EncodeSS58(prefix, account)
		if err != nil || reencoded != address {
			return nil, invalid
		}
		return account, nil
	}
}
