// Package units converts human decimal amounts to integer smallest units and
// back. All conversions are exact; amounts carrying more fractional digits
// than a token supports are rejected instead of truncated.
package units

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	xerrors "VoiceDot/internal/errors"
)

var decimalPattern = regexp.MustCompile(`^(\d+)?(\.\d+)?$`)

// Parse 校验并解析十进制金额字符串。
func Parse(amount string) (decimal.Decimal, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" || amount == "." || !decimalPattern.MatchString(amount) {
		return decimal.Decimal{}, xerrors.New(xerrors.CodeValidation, "invalid amount: "+amount)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Decimal{}, xerrors.Wrap(xerrors.CodeValidation, err, "invalid amount: "+amount)
	}
	return d, nil
}

// DecimalToUnits 将人类可读的金额转换为最小单位整数。
func DecimalToUnits(amount string, decimals int32) (*big.Int, error) {
	if decimals < 0 {
		return nil, xerrors.New(xerrors.CodeValidation, "decimals must be >= 0")
	}
	d, err := Parse(amount)
	if err != nil {
		return nil, err
	}
	if -d.Exponent() > decimals && !d.Equal(d.Truncate(decimals)) {
		return nil, xerrors.Newf(xerrors.CodeValidation, "amount %s exceeds %d decimal places", strings.TrimSpace(amount), decimals)
	}
	return d.Shift(decimals).BigInt(), nil
}

// UnitsToDecimal 将最小单位整数转换为去除末尾零的十进制字符串。
func UnitsToDecimal(units *big.Int, decimals int32) string {
	if units == nil {
		return "0"
	}
	return decimal.NewFromBigInt(units, -decimals).String()
}

// Compare 在最小单位下比较两个金额，返回 -1、0 或 1。
func Compare(a, b string, decimals int32) (int, error) {
	ua, err := DecimalToUnits(a, decimals)
	if err != nil {
		return 0, err
	}
	ub, err := DecimalToUnits(b, decimals)
	if err != nil {
		return 0, err
	}
	return ua.Cmp(ub), nil
}

// ParseUnits 解析十进制整数形式的最小单位字符串。
func ParseUnits(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, xerrors.New(xerrors.CodeValidation, "invalid integer amount: "+raw)
	}
	return value, nil
}
