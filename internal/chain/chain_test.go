package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "VoiceDot/internal/errors"
)

const (
	aliceGeneric = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	alicePubKey  = "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"
)

type fakeCaller struct {
	mu      sync.Mutex
	results map[string]any
	errs    map[string]error
	calls   []string
	args    map[string][]any
	closed  int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{results: map[string]any{}, errs: map[string]error{}, args: map[string][]any{}}
}

func (f *fakeCaller) CallContext(_ context.Context, result any, method string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	f.args[method] = args
	if err := f.errs[method]; err != nil {
		return err
	}
	raw, err := json.Marshal(f.results[method])
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}

func (f *fakeCaller) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func TestDecodeSS58KnownAccount(t *testing.T) {
	prefix, account, err := DecodeSS58(aliceGeneric)
	require.NoError(t, err)
	assert.Equal(t, uint16(42), prefix)
	assert.Equal(t, alicePubKey, hex.EncodeToString(account))

	encoded, err := EncodeSS58(42, account)
	require.NoError(t, err)
	assert.Equal(t, aliceGeneric, encoded)
}

func TestSS58PrefixRoundTrip(t *testing.T) {
	account, _ := hex.DecodeString(alicePubKey)
	for _, prefix := range []uint16{0, 2, 42, 63, 64, 1284, 16383} {
		encoded, err := EncodeSS58(prefix, account)
		require.NoError(t, err)
		got, decoded, err := DecodeSS58(encoded)
		require.NoError(t, err, prefix)
		assert.Equal(t, prefix, got)
		assert.Equal(t, account, decoded)
	}
}

func TestValidateAddress(t *testing.T) {
	defs := DefaultDefinitions()
	polkadot, moonbeam := defs["polkadot"], defs["moonbeam"]

	require.NoError(t, ValidateAddress(polkadot, aliceGeneric))
	require.NoError(t, ValidateAddress(moonbeam, "0x6Be02d1d3665660d22FF9624b7BE0551ee1Ac91b"))

	corrupted := aliceGeneric[:len(aliceGeneric)-1] + "Z"
	for _, bad := range []string{"", "bob", corrupted, "0x6Be02d1d3665660d22FF9624b7BE0551ee1Ac91b", "0OIl"} {
		err := ValidateAddress(polkadot, bad)
		require.Error(t, err, bad)
		assert.Equal(t, xerrors.CodeValidation, xerrors.CodeOf(err))
	}
	err := ValidateAddress(moonbeam, aliceGeneric)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid recipient address: "+aliceGeneric)
}

func TestStorageKeyPrefixes(t *testing.T) {
	assert.Equal(t, "26aa394eea5630e07c48ae0c9558cef7", hex.EncodeToString(Twox128([]byte("System"))))
	assert.Equal(t, "b99d880ec681799c0cf30e8886371da9", hex.EncodeToString(Twox128([]byte("Account"))))

	account, _ := hex.DecodeString(alicePubKey)
	key := SystemAccountKey(account)
	require.Len(t, key, 16+16+16+32)
	assert.Equal(t, account, key[len(key)-32:])

	assetKey := AssetAccountKey(1984, account)
	require.Len(t, assetKey, 32+16+4+16+32)
}

func TestDecodeFreeBalance(t *testing.T) {
	raw := make([]byte, 16+16*4)
	raw[16] = 0x10
	raw[17] = 0x27
	free, err := DecodeFreeBalance(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), free.Int64())

	empty, err := DecodeFreeBalance(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.Int64())

	_, err = DecodeFreeBalance([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestNormalizePrefersMostSpecificAlias(t *testing.T) {
	reg, err := NewRegistry(DefaultDefinitions())
	require.NoError(t, err)

	cases := map[string]string{
		"asset-hub-polkadot": "asset-hub-polkadot",
		"Polkadot Asset Hub": "asset-hub-polkadot",
		"the asset hub":      "asset-hub-polkadot",
		"polkadot":           "polkadot",
		"relay chain":        "polkadot",
		"MOONBEAM":           "moonbeam",
		"":                   "asset-hub-polkadot",
		"somewhere unknown":  "asset-hub-polkadot",
	}
	for raw, want := range cases {
		assert.Equal(t, want, reg.Normalize(raw, "asset-hub-polkadot"), raw)
	}
	assert.Equal(t, "polkadot", reg.Normalize("nowhere", ""))
}

func TestRegistrySharesConnectionPerEndpoint(t *testing.T) {
	defs := DefaultDefinitions()
	hub := defs["asset-hub-polkadot"]
	hub.Endpoint = defs["polkadot"].Endpoint
	defs["asset-hub-polkadot"] = hub

	caller := newFakeCaller()
	caller.results["chain_getHeader"] = map[string]string{"number": "0x1b4"}
	dials := 0
	reg, err := NewRegistry(defs, WithDialer(func(context.Context, string) (Caller, error) {
		dials++
		return caller, nil
	}))
	require.NoError(t, err)

	ctx := context.Background()
	a, err := reg.Client(ctx, "polkadot")
	require.NoError(t, err)
	b, err := reg.Client(ctx, "asset-hub-polkadot")
	require.NoError(t, err)
	assert.Equal(t, 1, dials)

	height, err := b.Header(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(436), height)

	a.Close()
	assert.Equal(t, 0, caller.closed)
	reg.Close()
	assert.Equal(t, 1, caller.closed)

	_, err = reg.Client(ctx, "kusama")
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeValidation, xerrors.CodeOf(err))
}

func TestRegistryDialFailureIsRetried(t *testing.T) {
	attempts := 0
	reg, err := NewRegistry(DefaultDefinitions(), WithDialer(func(context.Context, string) (Caller, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("connection refused")
		}
		return newFakeCaller(), nil
	}))
	require.NoError(t, err)

	_, err = reg.Client(context.Background(), "moonbeam")
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeUpstream, xerrors.CodeOf(err))

	_, err = reg.Client(context.Background(), "moonbeam")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRPCClientQueryCallFee(t *testing.T) {
	caller := newFakeCaller()
	// ref_time compact(1) proof_size compact(2) class 0 partial_fee 1000
	caller.results["state_call"] = "0x040800e8030000000000000000000000000000"
	client := newSharedClient("polkadot", caller)

	fee, err := client.QueryCallFee(context.Background(), []byte{0x05, 0x03})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), fee.Int64())

	args := caller.args["state_call"]
	require.Len(t, args, 2)
	assert.Equal(t, queryCallInfoMethod, args[0])
	assert.Equal(t, "0x050302000000", args[1])
}

func TestRPCClientSubmitAndStorage(t *testing.T) {
	caller := newFakeCaller()
	caller.results["author_submitExtrinsic"] = "0xabc"
	caller.results["state_getStorage"] = nil
	client := newSharedClient("polkadot", caller)

	hash, err := client.SubmitExtrinsic(context.Background(), []byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", hash)

	value, err := client.Storage(context.Background(), []byte{0x00})
	require.NoError(t, err)
	assert.Nil(t, value)

	caller.errs["author_submitExtrinsic"] = errors.New("1010: invalid transaction")
	_, err = client.SubmitExtrinsic(context.Background(), []byte{0x01})
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeUpstream, xerrors.CodeOf(err))

	caller.errs["chain_getHeader"] = context.DeadlineExceeded
	_, err = client.Header(context.Background())
	assert.Equal(t, xerrors.CodeTimeout, xerrors.CodeOf(err))
}

func TestLoadDefinitionsMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	content := `
chains:
  polkadot:
    endpoint: wss://polkadot.example.org
  westend:
    endpoint: wss://westend.example.org
    address_format: ss58
    ss58_prefix: 42
    native_token: WND
    aliases: [westend, wnd]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	defs, err := LoadDefinitions(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://polkadot.example.org", defs["polkadot"].Endpoint)
	assert.Equal(t, uint8(5), defs["polkadot"].Calls.TransferKeepAlive.Pallet)
	assert.Equal(t, uint16(42), defs["westend"].SS58Prefix)
	assert.Contains(t, defs, "moonbeam")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("chains:\n  x:\n    endpoint: wss://x\n    address_format: bech32\n"), 0o600))
	_, err = LoadDefinitions(bad)
	require.Error(t, err)

	defaults, err := LoadDefinitions("")
	require.NoError(t, err)
	assert.Len(t, defaults, 3)
}
