package safety

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/intent"
	"VoiceDot/internal/ledger"
	"VoiceDot/internal/token"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	catalog, err := token.NewCatalog(token.DefaultTokens())
	require.NoError(t, err)
	return NewValidator(catalog)
}

func crossChainRecord(t *testing.T, constraints *intent.Constraints) *ledger.Record {
	t.Helper()
	raw, err := intent.EncodePayload(intent.Payload{
		Item: intent.Item{
			Action: intent.ActionTransfer, Amount: "10", Token: "DOT", Recipient: "r",
			OriginChain: "polkadot", DestinationChain: "asset-hub-polkadot",
		},
		Constraints: constraints,
	})
	require.NoError(t, err)
	return &ledger.Record{ID: "tx", UserID: "u", Amount: "10", TokenSymbol: "DOT", Status: ledger.StatusConfirmed, ParsedIntent: raw}
}

func bps(v int) *int { return &v }

func TestMinReceiveCanOnlyBeRaised(t *testing.T) {
	v := newValidator(t)
	rec := crossChainRecord(t, nil)

	merged, err := v.Validate(rec, Request{MinReceive: "9.5"})
	require.NoError(t, err)
	assert.Equal(t, "9.5", merged.MinReceive)
	assert.Equal(t, "DOT", merged.Token)
	assert.Equal(t, "polkadot", merged.Chain)

	raw, err := Merge(rec.ParsedIntent, merged)
	require.NoError(t, err)
	rec.ParsedIntent = raw

	_, err = v.Validate(rec, Request{MinReceive: "9.0"})
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.CodeConflict))
	assert.Contains(t, err.Error(), "min_receive weaker than previously set")

	_, err = v.Validate(rec, Request{})
	assert.ErrorIs(t, err, ErrMinReceiveWeakened)

	// 9.50 与 9.5 在最小单位下相等，允许。
	_, err = v.Validate(rec, Request{MinReceive: "9.50"})
	require.NoError(t, err)

	merged, err = v.Validate(rec, Request{MinReceive: "9.8"})
	require.NoError(t, err)
	assert.Equal(t, "9.8", merged.MinReceive)
}

func TestMinReceiveMustNotExceedAmount(t *testing.T) {
	v := newValidator(t)
	_, err := v.Validate(crossChainRecord(t, nil), Request{MinReceive: "10.0000000001"})
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.CodeValidation))
	assert.Contains(t, err.Error(), "min_receive exceeds transfer amount")

	_, err = v.Validate(crossChainRecord(t, nil), Request{MinReceive: "10"})
	require.NoError(t, err)
}

func TestSlippageBounds(t *testing.T) {
	v := newValidator(t)
	rec := crossChainRecord(t, nil)

	_, err := v.Validate(rec, Request{SlippageBps: bps(15000)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid slippage_bps")

	_, err = v.Validate(rec, Request{SlippageBps: bps(-1)})
	require.Error(t, err)

	merged, err := v.Validate(rec, Request{SlippageBps: bps(500)})
	require.NoError(t, err)
	require.NotNil(t, merged.SlippageBps)
	assert.Equal(t, 500, *merged.SlippageBps)
}

func TestTokenMustMatch(t *testing.T) {
	v := newValidator(t)
	rec := crossChainRecord(t, nil)

	_, err := v.Validate(rec, Request{Token: "USDT"})
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.CodeConflict))
	assert.Contains(t, err.Error(), "token does not match prepared transaction")

	_, err = v.Validate(rec, Request{Token: "dot"})
	require.NoError(t, err)
}

func TestChecksRunInOrder(t *testing.T) {
	v := newValidator(t)
	rec := crossChainRecord(t, &intent.Constraints{MinReceive: "9.5", Token: "DOT", Chain: "polkadot"})

	// 同时违反多项时报告第一项。
	_, err := v.Validate(rec, Request{MinReceive: "1", SlippageBps: bps(20000), Token: "USDT"})
	assert.ErrorIs(t, err, ErrMinReceiveWeakened)

	_, err = v.Validate(rec, Request{MinReceive: "11", SlippageBps: bps(20000), Token: "USDT"})
	assert.ErrorIs(t, err, ErrMinReceiveTooLarge)

	_, err = v.Validate(rec, Request{MinReceive: "9.6", SlippageBps: bps(20000), Token: "USDT"})
	assert.ErrorIs(t, err, ErrInvalidSlippage)
}

func TestMergeKeepsPriorFields(t *testing.T) {
	v := newValidator(t)
	rec := crossChainRecord(t, &intent.Constraints{MinReceive: "9.5", SlippageBps: bps(100), Token: "DOT", Chain: "polkadot"})

	merged, err := v.Validate(rec, Request{MinReceive: "9.7"})
	require.NoError(t, err)
	require.NotNil(t, merged.SlippageBps)
	assert.Equal(t, 100, *merged.SlippageBps)

	raw, err := Merge(json.RawMessage(`{"item":{"amount":"10"},"note":"kept"}`), merged)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "kept", doc["note"])
	constraints, ok := doc["constraints"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "9.7", constraints["min_receive"])

	raw, err = Merge(nil, merged)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"constraints"`)
}
