package intent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VoiceDot/internal/chain"
	"VoiceDot/internal/contacts"
	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/llm"
	"VoiceDot/internal/token"
)

const (
	alice = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	bob   = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
	alith = "0xf24FF3a9CF04c71Dbc94D0b566f7A27B94566cac"
)

type fakeDrafter struct {
	content string
	err     error
	calls   int
	last    llm.Request
}

func (f *fakeDrafter) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.content}, nil
}

func newExtractor(t *testing.T, opts ...Option) *Extractor {
	t.Helper()
	registry, err := chain.NewRegistry(chain.DefaultDefinitions())
	require.NoError(t, err)
	catalog, err := token.NewCatalog(token.DefaultTokens())
	require.NoError(t, err)
	book := contacts.NewBook([]contacts.Contact{{Name: "Bob", Address: bob, Chain: "polkadot", Aliases: []string{"bobby"}}})
	opts = append([]Option{WithContacts(book)}, opts...)
	e, err := NewExtractor(registry, catalog, opts...)
	require.NoError(t, err)
	return e
}

func TestExtractFallbackSimpleTransfer(t *testing.T) {
	e := newExtractor(t)

	in, err := e.Extract(context.Background(), "Pay 10 DOT to "+alice, "")
	require.NoError(t, err)
	require.Len(t, in.Items, 1)
	assert.Equal(t, TypeSingle, in.Type)
	assert.Equal(t, "en", in.Language)
	assert.Equal(t, Item{
		Action:           ActionTransfer,
		Amount:           "10",
		Token:            "DOT",
		Recipient:        alice,
		OriginChain:      "polkadot",
		DestinationChain: "polkadot",
	}, in.Items[0])
}

func TestExtractFallbackDefaultsTokenAndResolvesContact(t *testing.T) {
	e := newExtractor(t)

	in, err := e.Extract(context.Background(), "please send 2.50 to bobby.", "en")
	require.NoError(t, err)
	assert.Equal(t, "DOT", in.Items[0].Token)
	assert.Equal(t, "2.5", in.Items[0].Amount)
	assert.Equal(t, bob, in.Items[0].Recipient)
}

func TestExtractFallbackNoMatch(t *testing.T) {
	e := newExtractor(t)

	_, err := e.Extract(context.Background(), "what is the weather", "")
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.CodeValidation))
	assert.Contains(t, err.Error(), "could not understand payment command")
}

func TestExtractUsesDrafterAndNormalizes(t *testing.T) {
	drafter := &fakeDrafter{content: `{
		"type": "batch",
		"language": "en",
		"items": [
			{"action": "Transfer", "amount": "1.50", "token": "dot", "recipient": "` + alice + `",
			 "origin_chain": "Polkadot relay chain", "destination_chain": "asset hub"},
			{"action": "transfer", "amount": "3", "token": "USDT", "recipient": "bob"}
		],
		"schedule": null,
		"condition": null
	}`}
	e := newExtractor(t, WithDrafter(drafter))

	in, err := e.Extract(context.Background(), "send one and a half dot to alice on asset hub and 3 usdt to bob", "en")
	require.NoError(t, err)
	require.Len(t, in.Items, 2)
	assert.Equal(t, 1, drafter.calls)
	assert.Equal(t, []string{"DOT", "GLMR", "USDT"}, drafter.last.Tokens)
	require.Len(t, drafter.last.Contacts, 1)

	first := in.Items[0]
	assert.Equal(t, "1.5", first.Amount)
	assert.Equal(t, "DOT", first.Token)
	assert.Equal(t, "polkadot", first.OriginChain)
	assert.Equal(t, "asset-hub-polkadot", first.DestinationChain)
	assert.True(t, first.CrossChain())

	second := in.Items[1]
	assert.Equal(t, "asset-hub-polkadot", second.OriginChain)
	assert.Equal(t, "asset-hub-polkadot", second.DestinationChain)
	assert.Equal(t, bob, second.Recipient)
	assert.False(t, second.CrossChain())
}

func TestExtractRejectsSchemaMismatchWithoutFallback(t *testing.T) {
	drafter := &fakeDrafter{content: `{"type":"single","items":[{"action":"transfer","amount":"1","token":"DOT","recipient":"` + alice + `","memo":"x"}]}`}
	e := newExtractor(t, WithDrafter(drafter))

	_, err := e.Extract(context.Background(), "pay 1 DOT to "+alice, "")
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.CodeValidation))
	assert.Contains(t, err.Error(), "intent schema mismatch")
}

func TestExtractFallsBackWhenDrafterFails(t *testing.T) {
	drafter := &fakeDrafter{err: xerrors.New(xerrors.CodeUpstream, "model offline")}
	e := newExtractor(t, WithDrafter(drafter))

	in, err := e.Extract(context.Background(), "transfer 5 to "+alice, "")
	require.NoError(t, err)
	assert.Equal(t, 1, drafter.calls)
	assert.Equal(t, "DOT", in.Items[0].Token)
	// 正则回退时两端链均为默认链。
	assert.Equal(t, "polkadot", in.Items[0].OriginChain)
}

func TestExtractInvalidRecipientFailsWholeIntent(t *testing.T) {
	drafter := &fakeDrafter{content: `{"type":"batch","items":[
		{"action":"transfer","amount":"1","token":"DOT","recipient":"` + alice + `"},
		{"action":"transfer","amount":"2","token":"DOT","recipient":"nobody"}
	]}`}
	e := newExtractor(t, WithDrafter(drafter))

	in, err := e.Extract(context.Background(), "pay alice and nobody", "")
	require.Error(t, err)
	assert.Nil(t, in)
	assert.Contains(t, err.Error(), "invalid recipient address: nobody")
}

func TestExtractRecipientMustMatchDestinationFormat(t *testing.T) {
	drafter := &fakeDrafter{content: `{"items":[{"action":"transfer","amount":"1","token":"GLMR","recipient":"` + alice + `"}]}`}
	e := newExtractor(t, WithDrafter(drafter))

	_, err := e.Extract(context.Background(), "pay 1 glmr", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid recipient address: "+alice)
}

func TestExtractRejectsUnsupportedTokenAndPrecision(t *testing.T) {
	e := newExtractor(t)

	_, err := e.Extract(context.Background(), "pay 1 BTC to "+alice, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported token: BTC")

	_, err = e.Extract(context.Background(), "pay 1.0000001 USDT to "+alice, "")
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.CodeValidation))
}

func TestExtractRejectsZeroAmount(t *testing.T) {
	e := newExtractor(t)

	for _, text := range []string{"Pay 0 DOT to " + alice, "send 0.000 DOT to " + alice} {
		got, err := e.Extract(context.Background(), text, "")
		require.Error(t, err, text)
		assert.Nil(t, got, text)
		assert.True(t, xerrors.Is(err, xerrors.CodeValidation), err.Error())
		assert.Contains(t, err.Error(), "greater than zero")
	}
}

func TestDecodeSchemaRules(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"empty items", `{"type":"batch","items":[]}`, "items must contain at least 1 entry"},
		{"single with two items", `{"type":"single","items":[{"action":"transfer","amount":"1","token":"DOT","recipient":"a"},{"action":"transfer","amount":"1","token":"DOT","recipient":"b"}]}`, "exactly one item"},
		{"wrong action", `{"items":[{"action":"stake","amount":"1","token":"DOT","recipient":"a"}]}`, "items[0].action must be one of [transfer]"},
		{"missing amount", `{"items":[{"action":"transfer","token":"DOT","recipient":"a"}]}`, "items[0].amount is required"},
		{"bad type", `{"type":"many","items":[{"action":"transfer","amount":"1","token":"DOT","recipient":"a"}]}`, "type must be one of [single batch]"},
		{"bad schedule", `{"items":[{"action":"transfer","amount":"1","token":"DOT","recipient":"a"}],"schedule":"tomorrow"}`, "schedule must be an RFC 3339 timestamp"},
		{"trailing data", `{"items":[{"action":"transfer","amount":"1","token":"DOT","recipient":"a"}]} {}`, "trailing data"},
		{"not json", `transfer 1 dot`, "intent schema mismatch"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			require.Error(t, err)
			assert.True(t, xerrors.Is(err, xerrors.CodeValidation))
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDecodeDefaults(t *testing.T) {
	in, err := Decode([]byte(`{"items":[{"action":"transfer","amount":"1","token":"DOT","recipient":"a"},{"action":"transfer","amount":"2","token":"DOT","recipient":"b"}],"schedule":"2026-01-02T15:04:05Z"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeBatch, in.Type)
	assert.Equal(t, "en", in.Language)
	require.NotNil(t, in.Schedule)
}

func TestPayloadRoundTrip(t *testing.T) {
	slippage := 50
	raw, err := EncodePayload(Payload{
		Item:        Item{Action: ActionTransfer, Amount: "1", Token: "DOT", Recipient: alice, OriginChain: "polkadot", DestinationChain: "moonbeam"},
		Constraints: &Constraints{MinReceive: "0.9", SlippageBps: &slippage, Token: "DOT", Chain: "polkadot"},
	})
	require.NoError(t, err)

	var generic map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Contains(t, generic, "constraints")

	decoded, err := DecodePayload(raw)
	require.NoError(t, err)
	require.NotNil(t, decoded.Constraints)
	assert.Equal(t, "0.9", decoded.Constraints.MinReceive)
	assert.Equal(t, 50, *decoded.Constraints.SlippageBps)

	empty, err := DecodePayload(nil)
	require.NoError(t, err)
	assert.Nil(t, empty.Constraints)

	_, err = DecodePayload(json.RawMessage(`{`))
	require.Error(t, err)
}

func TestExtractAcceptsH160RecipientOnMoonbeam(t *testing.T) {
	drafter := &fakeDrafter{content: `{"items":[{"action":"transfer","amount":"0.000000000000000001","token":"GLMR","recipient":"` + alith + `","destination_chain":"moon beam"}]}`}
	e := newExtractor(t, WithDrafter(drafter))

	in, err := e.Extract(context.Background(), "pay one wei of glmr to alith", "")
	require.NoError(t, err)
	assert.Equal(t, "moonbeam", in.Items[0].OriginChain)
	assert.Equal(t, "moonbeam", in.Items[0].DestinationChain)
	assert.Equal(t, "0.000000000000000001", in.Items[0].Amount)
}
