package transfer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VoiceDot/internal/chain"
	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/token"
)

const (
	alice       = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	alicePubKey = "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"
	alith       = "0xf24FF3a9CF04c71Dbc94D0b566f7A27B94566cac"

	// RuntimeDispatchInfo{weight: (1, 2), class: 0, partial_fee: 1000}
	feeResponse = "0x040800e8030000000000000000000000000000"
)

type stubCaller struct {
	fee   string
	err   error
	calls int
}

func (s *stubCaller) CallContext(_ context.Context, result any, method string, _ ...any) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	if method != "state_call" {
		return errors.New("unexpected method " + method)
	}
	raw, _ := json.Marshal(s.fee)
	return json.Unmarshal(raw, result)
}

func (s *stubCaller) Close() {}

func newBuilder(t *testing.T, caller *stubCaller) *Builder {
	t.Helper()
	registry, err := chain.NewRegistry(chain.DefaultDefinitions(), chain.WithDialer(func(context.Context, string) (chain.Caller, error) {
		return caller, nil
	}))
	require.NoError(t, err)
	t.Cleanup(registry.Close)
	catalog, err := token.NewCatalog(token.DefaultTokens())
	require.NoError(t, err)
	return NewBuilder(registry, catalog)
}

func TestBuildNativeTransferKeepAlive(t *testing.T) {
	b := newBuilder(t, &stubCaller{fee: feeResponse})

	res, err := b.Build(context.Background(), Request{Token: "DOT", Amount: "10", Recipient: alice})
	require.NoError(t, err)
	assert.Equal(t, KindNative, res.Kind)
	assert.Equal(t, "polkadot", res.OriginChain)
	assert.Equal(t, "0x0503"+"00"+alicePubKey+"0700e8764817", res.CallHex)
	assert.Equal(t, "100000000000", res.AmountUnits.String())
	assert.Equal(t, "1000", res.FeeString())
	assert.Equal(t, "DOT", res.FeeToken)
}

func TestBuildAssetTransferOnAssetHub(t *testing.T) {
	b := newBuilder(t, &stubCaller{fee: feeResponse})

	res, err := b.Compose(Request{Token: "usdt", Amount: "1.5", Recipient: alice})
	require.NoError(t, err)
	assert.Equal(t, KindAsset, res.Kind)
	assert.Equal(t, "asset-hub-polkadot", res.OriginChain)
	assert.Equal(t, "0x3208"+"011f"+"00"+alicePubKey+"828d5b00", res.CallHex)
}

func TestBuildTeleportRelayToAssetHub(t *testing.T) {
	b := newBuilder(t, &stubCaller{fee: feeResponse})

	res, err := b.Compose(Request{Token: "DOT", Amount: "10", Recipient: alice, OriginChain: "polkadot", DestinationChain: "asset-hub-polkadot"})
	require.NoError(t, err)
	assert.Equal(t, KindXCM, res.Kind)
	want := "0x6309" +
		"03" + "00" + "01" + "00" + "a10f" + // dest: V3 { parents: 0, X1(Parachain(1000)) }
		"03" + "00" + "01" + "01" + "00" + alicePubKey + // beneficiary: AccountId32
		"03" + "04" + "00" + "00" + "00" + "00" + "0700e8764817" + // assets: [Concrete(Here), Fungible]
		"00000000" + "00" // fee_asset_item, Unlimited
	assert.Equal(t, want, res.CallHex)
}

func TestBuildReserveTransferToMoonbeam(t *testing.T) {
	b := newBuilder(t, &stubCaller{fee: feeResponse})

	res, err := b.Compose(Request{Token: "DOT", Amount: "1", Recipient: alith, OriginChain: "asset-hub-polkadot", DestinationChain: "moonbeam"})
	require.NoError(t, err)
	call := strings.TrimPrefix(res.CallHex, "0x")
	assert.True(t, strings.HasPrefix(call, "1f08"+"03"+"01"+"01"+"00"+"511f"), call)
	assert.Contains(t, call, "03"+"00"+"01"+"03"+"00"+strings.ToLower(strings.TrimPrefix(alith, "0x")))
	// 平行链视角下的中继链代币：{ parents: 1, Here }
	assert.Contains(t, call, "03"+"04"+"00"+"01"+"00"+"00")

	usdt, err := b.Compose(Request{Token: "USDT", Amount: "2", Recipient: alith, DestinationChain: "moonbeam"})
	require.NoError(t, err)
	assert.Contains(t, usdt.CallHex, "03"+"04"+"00"+"00"+"02"+"0432"+"05"+"011f")
}

func TestBuildWrapsMinReceiveInBatch(t *testing.T) {
	b := newBuilder(t, &stubCaller{fee: feeResponse})

	plain, err := b.Compose(Request{Token: "DOT", Amount: "10", Recipient: alice, DestinationChain: "asset-hub-polkadot"})
	require.NoError(t, err)
	wrapped, err := b.Compose(Request{Token: "DOT", Amount: "10", Recipient: alice, DestinationChain: "asset-hub-polkadot", MinReceive: "9.5"})
	require.NoError(t, err)

	remark := []byte("min_receive:95000000000")
	want := "0x1a02" + "08" + strings.TrimPrefix(plain.CallHex, "0x") +
		"0007" + hex.EncodeToString([]byte{byte(len(remark) << 2)}) + hex.EncodeToString(remark)
	assert.Equal(t, want, wrapped.CallHex)
}

func TestBuildRejectsInvalidRequests(t *testing.T) {
	b := newBuilder(t, &stubCaller{fee: feeResponse})
	slippage := 15000

	cases := []struct {
		name string
		req  Request
		want string
	}{
		{"unknown token", Request{Token: "BTC", Amount: "1", Recipient: alice}, "unsupported token: BTC"},
		{"unknown chain", Request{Token: "DOT", Amount: "1", Recipient: alice, OriginChain: "kusama"}, "unsupported chain"},
		{"zero amount", Request{Token: "DOT", Amount: "0", Recipient: alice}, "greater than zero"},
		{"too precise", Request{Token: "USDT", Amount: "0.0000001", Recipient: alice}, "decimal places"},
		{"bad recipient", Request{Token: "GLMR", Amount: "1", Recipient: alice}, "invalid recipient address"},
		{"asset on relay", Request{Token: "USDT", Amount: "1", Recipient: alice, OriginChain: "polkadot", DestinationChain: "polkadot"}, "not transferable on polkadot"},
		{"min over amount", Request{Token: "DOT", Amount: "1", Recipient: alice, DestinationChain: "asset-hub-polkadot", MinReceive: "2"}, "min_receive exceeds transfer amount"},
		{"slippage", Request{Token: "DOT", Amount: "1", Recipient: alice, DestinationChain: "asset-hub-polkadot", SlippageBps: &slippage}, "invalid slippage_bps"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.Compose(tc.req)
			require.Error(t, err)
			assert.True(t, xerrors.Is(err, xerrors.CodeValidation), err.Error())
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestFeeFailureHandling(t *testing.T) {
	caller := &stubCaller{err: errors.New("connection reset")}
	b := newBuilder(t, caller)

	_, err := b.Build(context.Background(), Request{Token: "DOT", Amount: "1", Recipient: alice})
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.CodeUpstream))

	res, err := b.Build(context.Background(), Request{Token: "DOT", Amount: "1", Recipient: alice, DestinationChain: "asset-hub-polkadot"})
	require.NoError(t, err)
	assert.Nil(t, res.Fee)
	assert.Equal(t, "0", res.FeeString())
	assert.Equal(t, 2, caller.calls)
}
