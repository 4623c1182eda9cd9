package transfer

import (
	"fmt"
	"math/big"

	"VoiceDot/internal/chain"
	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/scale"
	"VoiceDot/internal/token"
)

// XCM V3 编码所用的枚举序号。
const (
	versionedV3 = 3

	junctionsHere = 0
	junctionsX1   = 1
	junctionsX2   = 2

	junctionParachain      = 0
	junctionAccountID32    = 1
	junctionAccountKey20   = 3
	junctionPalletInstance = 4
	junctionGeneralIndex   = 5

	assetIDConcrete     = 0
	fungibilityFungible = 0
	weightUnlimited     = 0
	networkNone         = 0
)

// systemParaID 是与中继链之间可直接 teleport 的系统平行链。
const systemParaID = 1000

// destinationLocation 编码从 origin 视角看到的目标链位置。
func destinationLocation(enc *scale.Encoder, origin, dest chain.Definition) {
	enc.U8(versionedV3)
	switch {
	case origin.IsRelay():
		enc.U8(0).U8(junctionsX1).U8(junctionParachain).CompactUint(uint64(dest.ParaID))
	case dest.IsRelay():
		enc.U8(1).U8(junctionsHere)
	default:
		enc.U8(1).U8(junctionsX1).U8(junctionParachain).CompactUint(uint64(dest.ParaID))
	}
}

// beneficiaryLocation 按目标链地址格式编码收款账户。
func beneficiaryLocation(enc *scale.Encoder, dest chain.Definition, account []byte) {
	enc.U8(versionedV3).U8(0).U8(junctionsX1)
	if dest.AddressFormat == chain.FormatH160 {
		enc.U8(junctionAccountKey20).U8(networkNone).Raw(account)
		return
	}
	enc.U8(junctionAccountID32).U8(networkNone).Raw(account)
}

// assetLocation 编码从 origin 视角看到的资产位置。
// 支持：origin 的原生代币、平行链上的中继链代币、origin 本链的 Assets 资产。
func assetLocation(enc *scale.Encoder, origin chain.Definition, relay string, tok token.Token, amount *big.Int) error {
	enc.U8(versionedV3).CompactUint(1).U8(assetIDConcrete)
	switch {
	case tok.Native && tok.Chain == origin.Name:
		enc.U8(0).U8(junctionsHere)
	case tok.Native && tok.Chain == relay && !origin.IsRelay():
		enc.U8(1).U8(junctionsHere)
	case !tok.Native && tok.AssetID != nil && tok.Chain == origin.Name && origin.Calls.AssetTransfer != nil:
		enc.U8(0).U8(junctionsX2).
			U8(junctionPalletInstance).U8(origin.Calls.AssetTransfer.Pallet).
			U8(junctionGeneralIndex).Compact(new(big.Int).SetUint64(uint64(*tok.AssetID)))
	default:
		return xerrors.Newf(xerrors.CodeValidation, "token %s cannot be sent from %s", tok.Symbol, origin.Name)
	}
	enc.U8(fungibilityFungible).Compact(amount)
	return nil
}

// useTeleport 判断是否走 teleport：中继链原生代币在中继链与系统平行链之间流动。
func useTeleport(origin, dest chain.Definition, relay string, tok token.Token) bool {
	if !tok.Native || tok.Chain != relay {
		return false
	}
	return (origin.IsRelay() && dest.ParaID == systemParaID) || (dest.IsRelay() && origin.ParaID == systemParaID)
}

func buildXCMCall(origin, dest chain.Definition, relay string, tok token.Token, account []byte, amount *big.Int) ([]byte, error) {
	index := origin.Calls.ReserveTransfer
	if useTeleport(origin, dest, relay, tok) {
		index = origin.Calls.Teleport
	}
	enc := scale.NewEncoder().Raw(index.Bytes())
	destinationLocation(enc, origin, dest)
	beneficiaryLocation(enc, dest, account)
	if err := assetLocation(enc, origin, relay, tok, amount); err != nil {
		return nil, err
	}
	enc.U32(0).U8(weightUnlimited)
	return enc.Result()
}

// wrapMinReceive 将跨链调用与 remark 一起放入 batch_all，使最小到账金额随转账上链。
func wrapMinReceive(origin chain.Definition, call []byte, minUnits *big.Int) ([]byte, error) {
	remark := scale.NewEncoder().
		Raw(origin.Calls.RemarkWithEvent.Bytes()).
		Bytes([]byte(fmt.Sprintf("min_receive:%s", minUnits.String())))
	remarkCall, err := remark.Result()
	if err != nil {
		return nil, err
	}
	return scale.NewEncoder().
		Raw(origin.Calls.BatchAll.Bytes()).
		CompactUint(2).
		Raw(call).
		Raw(remarkCall).
		Result()
}
