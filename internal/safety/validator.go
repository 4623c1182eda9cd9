// Package safety guards cross-chain executions: a recorded min_receive
// floor may only be raised on retry, and constraints are merged into the
// transaction's parsed intent rather than replacing it.
package safety

import (
	"encoding/json"
	"math/big"
	"strings"

	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/intent"
	"VoiceDot/internal/ledger"
	"VoiceDot/internal/token"
	"VoiceDot/internal/units"
)

// MaxSlippageBps 是允许的最大滑点（基点）。
const MaxSlippageBps = 10000

var (
	ErrMinReceiveWeakened = xerrors.New(xerrors.CodeConflict, "min_receive weaker than previously set")
	ErrMinReceiveTooLarge = xerrors.New(xerrors.CodeValidation, "min_receive exceeds transfer amount")
	ErrInvalidSlippage    = xerrors.New(xerrors.CodeValidation, "invalid slippage_bps")
	ErrTokenMismatch      = xerrors.New(xerrors.CodeConflict, "token does not match prepared transaction")
)

// Request 是执行请求中携带的约束。
type Request struct {
	Token       string
	MinReceive  string
	SlippageBps *int
}

// Validator 在跨链交易提交前校验约束。
type Validator struct {
	tokens *token.Catalog
}

// NewValidator 创建校验器。
func NewValidator(tokens *token.Catalog) *Validator {
	return &Validator{tokens: tokens}
}

// Validate 依次执行四项检查，返回合并后的约束。
// 新字段覆盖旧值，未提供的字段保留旧值。
func (v *Validator) Validate(rec *ledger.Record, req Request) (intent.Constraints, error) {
	if rec == nil {
		return intent.Constraints{}, ledger.ErrNotFound
	}
	tok, err := v.tokens.Lookup(rec.TokenSymbol)
	if err != nil {
		return intent.Constraints{}, err
	}
	payload, err := intent.DecodePayload(rec.ParsedIntent)
	if err != nil {
		return intent.Constraints{}, err
	}
	amount, err := units.DecimalToUnits(rec.Amount, tok.Decimals)
	if err != nil {
		return intent.Constraints{}, err
	}

	minReceive := strings.TrimSpace(req.MinReceive)
	var minUnits *big.Int
	if minReceive != "" {
		if minUnits, err = units.DecimalToUnits(minReceive, tok.Decimals); err != nil {
			return intent.Constraints{}, err
		}
	}

	prior := payload.Constraints
	if prior != nil && prior.MinReceive != "" {
		if minUnits == nil {
			return intent.Constraints{}, ErrMinReceiveWeakened
		}
		priorUnits, err := units.DecimalToUnits(prior.MinReceive, tok.Decimals)
		if err != nil {
			return intent.Constraints{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "recorded min_receive is invalid")
		}
		if minUnits.Cmp(priorUnits) < 0 {
			return intent.Constraints{}, ErrMinReceiveWeakened
		}
	}
	if err := CheckMinReceive(amount, minUnits); err != nil {
		return intent.Constraints{}, err
	}
	if err := CheckSlippage(req.SlippageBps); err != nil {
		return intent.Constraints{}, err
	}
	if t := strings.TrimSpace(req.Token); t != "" && !strings.EqualFold(t, rec.TokenSymbol) {
		return intent.Constraints{}, ErrTokenMismatch
	}

	merged := intent.Constraints{}
	if prior != nil {
		merged = *prior
	}
	if minUnits != nil {
		merged.MinReceive = units.UnitsToDecimal(minUnits, tok.Decimals)
	}
	if req.SlippageBps != nil {
		bps := *req.SlippageBps
		merged.SlippageBps = &bps
	}
	merged.Token = tok.Symbol
	merged.Chain = payload.Item.OriginChain
	if merged.Chain == "" {
		merged.Chain = tok.Chain
	}
	return merged, nil
}

// CheckMinReceive 要求 min_receive 不超过转账金额（均为最小单位）。minUnits 为空时跳过。
func CheckMinReceive(amount, minUnits *big.Int) error {
	if minUnits != nil && amount != nil && minUnits.Cmp(amount) > 0 {
		return ErrMinReceiveTooLarge
	}
	return nil
}

// CheckSlippage 要求 slippage_bps 位于 [0, 10000]。
func CheckSlippage(bps *int) error {
	if bps != nil && (*bps < 0 || *bps > MaxSlippageBps) {
		return ErrInvalidSlippage
	}
	return nil
}

// Merge 将约束写入 parsed_intent 的 constraints 字段，保留其余字段。
func Merge(parsedIntent json.RawMessage, c intent.Constraints) (json.RawMessage, error) {
	doc := map[string]json.RawMessage{}
	if len(strings.TrimSpace(string(parsedIntent))) > 0 {
		if err := json.Unmarshal(parsedIntent, &doc); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "decode parsed intent")
		}
		if doc == nil {
			doc = map[string]json.RawMessage{}
		}
	}
	encoded, err := json.Marshal(c)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeValidation, err, "encode constraints")
	}
	doc["constraints"] = encoded
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeValidation, err, "encode parsed intent")
	}
	return out, nil
}
