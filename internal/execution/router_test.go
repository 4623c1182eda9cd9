package execution

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VoiceDot/internal/chain"
	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/events"
	"VoiceDot/internal/intent"
	"VoiceDot/internal/ledger"
	"VoiceDot/internal/safety"
	"VoiceDot/internal/token"
)

const alice = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"

type submitCaller struct {
	mu        sync.Mutex
	err       error
	submitted []string
}

func (s *submitCaller) CallContext(_ context.Context, result any, method string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if method != "author_submitExtrinsic" {
		return errors.New("unexpected method " + method)
	}
	if s.err != nil {
		return s.err
	}
	s.submitted = append(s.submitted, args[0].(string))
	raw, _ := json.Marshal("0xfeed")
	return json.Unmarshal(raw, result)
}

func (s *submitCaller) Close() {}

type fixture struct {
	store  *ledger.MemoryStore
	caller *submitCaller
	queue  *events.MemoryQueue
	router *Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	caller := &submitCaller{}
	registry, err := chain.NewRegistry(chain.DefaultDefinitions(), chain.WithDialer(func(context.Context, string) (chain.Caller, error) {
		return caller, nil
	}))
	require.NoError(t, err)
	t.Cleanup(registry.Close)
	catalog, err := token.NewCatalog(token.DefaultTokens())
	require.NoError(t, err)

	store := ledger.NewMemoryStore()
	queue := events.NewMemoryQueue(16)
	router := NewRouter(store, registry, safety.NewValidator(catalog), WithEmitter(events.NewEmitter(queue, "memory")))
	return &fixture{store: store, caller: caller, queue: queue, router: router}
}

func (f *fixture) seed(t *testing.T, id, origin, dest string, confirm bool) {
	t.Helper()
	raw, err := intent.EncodePayload(intent.Payload{Item: intent.Item{
		Action:           intent.ActionTransfer,
		Amount:           "10",
		Token:            "DOT",
		Recipient:        alice,
		OriginChain:      origin,
		DestinationChain: dest,
	}})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, f.store.Create(ctx, &ledger.Record{
		ID:               id,
		UserID:           "user-1",
		ParsedIntent:     raw,
		RecipientAddress: alice,
		Amount:           "10",
		TokenSymbol:      "DOT",
	}))
	if confirm {
		_, err := f.store.TransitionToConfirmed(ctx, []string{id})
		require.NoError(t, err)
	}
}

func intPtr(v int) *int { return &v }

func TestExecuteSubmitsConfirmedTransaction(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "tx-1", "polkadot", "polkadot", true)

	res, err := f.router.Execute(context.Background(), Request{TransactionID: "tx-1", UserID: "user-1", SignedExtrinsic: "ABCD"})
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", res.TransactionHash)
	assert.Equal(t, ledger.StatusSubmitted, res.Record.Status)
	assert.Equal(t, []string{"0xabcd"}, f.caller.submitted)
	assert.Equal(t, 1, f.queue.Len())

	_, err = f.router.Execute(context.Background(), Request{TransactionID: "tx-1", SignedExtrinsic: "0xabcd"})
	require.ErrorIs(t, err, ErrNotConfirmed)
	assert.Len(t, f.caller.submitted, 1)
}

func TestExecutePreconditions(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "pending", "polkadot", "polkadot", false)
	f.seed(t, "ready", "polkadot", "polkadot", true)
	ctx := context.Background()

	_, err := f.router.Execute(ctx, Request{TransactionID: "missing", SignedExtrinsic: "0x00"})
	assert.True(t, xerrors.Is(err, xerrors.CodeNotFound))

	_, err = f.router.Execute(ctx, Request{TransactionID: "pending", SignedExtrinsic: "0x00"})
	require.ErrorIs(t, err, ErrNotConfirmed)
	assert.Equal(t, "[CONFLICT] transaction not confirmed", err.Error())

	_, err = f.router.Execute(ctx, Request{TransactionID: "ready", UserID: "someone-else", SignedExtrinsic: "0x00"})
	assert.True(t, xerrors.Is(err, xerrors.CodeNotFound))

	_, err = f.router.Execute(ctx, Request{TransactionID: "ready", SignedExtrinsic: "0xzz"})
	assert.True(t, xerrors.Is(err, xerrors.CodeValidation))

	_, err = f.router.Execute(ctx, Request{TransactionID: "ready", SignedExtrinsic: "  "})
	assert.True(t, xerrors.Is(err, xerrors.CodeValidation))

	_, err = f.router.Execute(ctx, Request{TransactionID: "ready", SignedExtrinsic: "0x00", Chain: "kusama"})
	assert.True(t, xerrors.Is(err, xerrors.CodeValidation))

	assert.Empty(t, f.caller.submitted)
}

func TestExecuteSubmissionFailureLeavesConfirmed(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "tx-1", "polkadot", "polkadot", true)
	f.caller.err = errors.New("pool full")

	_, err := f.router.Execute(context.Background(), Request{TransactionID: "tx-1", SignedExtrinsic: "0x01"})
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.CodeUpstream))

	rec, err := f.store.Get(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusConfirmed, rec.Status)
	assert.Nil(t, rec.TransactionHash)

	f.caller.err = nil
	res, err := f.router.Execute(context.Background(), Request{TransactionID: "tx-1", SignedExtrinsic: "0x01"})
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", res.TransactionHash)
}

func TestExecuteCrossChainPersistsConstraints(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "xcm", "polkadot", "asset-hub-polkadot", true)
	ctx := context.Background()

	_, err := f.router.Execute(ctx, Request{TransactionID: "xcm", SignedExtrinsic: "0x01", MinReceive: "11"})
	require.ErrorIs(t, err, safety.ErrMinReceiveTooLarge)
	assert.Empty(t, f.caller.submitted)

	f.caller.err = errors.New("rpc down")
	_, err = f.router.Execute(ctx, Request{TransactionID: "xcm", SignedExtrinsic: "0x01", MinReceive: "9.5", SlippageBps: intPtr(50)})
	require.Error(t, err)

	rec, err := f.store.Get(ctx, "xcm")
	require.NoError(t, err)
	payload, err := intent.DecodePayload(rec.ParsedIntent)
	require.NoError(t, err)
	require.NotNil(t, payload.Constraints)
	assert.Equal(t, "9.5", payload.Constraints.MinReceive)
	assert.Equal(t, 50, *payload.Constraints.SlippageBps)
	assert.Equal(t, "polkadot", payload.Constraints.Chain)
	assert.Equal(t, "asset-hub-polkadot", payload.Item.DestinationChain)

	f.caller.err = nil
	_, err = f.router.Execute(ctx, Request{TransactionID: "xcm", SignedExtrinsic: "0x01", MinReceive: "9"})
	require.ErrorIs(t, err, safety.ErrMinReceiveWeakened)
	_, err = f.router.Execute(ctx, Request{TransactionID: "xcm", SignedExtrinsic: "0x01"})
	require.ErrorIs(t, err, safety.ErrMinReceiveWeakened)
	_, err = f.router.Execute(ctx, Request{TransactionID: "xcm", SignedExtrinsic: "0x01", MinReceive: "9.5", Token: "USDT"})
	require.ErrorIs(t, err, safety.ErrTokenMismatch)
	assert.Empty(t, f.caller.submitted)

	res, err := f.router.Execute(ctx, Request{TransactionID: "xcm", SignedExtrinsic: "0x01", MinReceive: "9.75"})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSubmitted, res.Record.Status)
	payload, err = intent.DecodePayload(res.Record.ParsedIntent)
	require.NoError(t, err)
	assert.Equal(t, "9.75", payload.Constraints.MinReceive)
	assert.Equal(t, 50, *payload.Constraints.SlippageBps)
}

func TestExecuteSameChainSkipsSafety(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "tx-1", "polkadot", "polkadot", true)

	_, err := f.router.Execute(context.Background(), Request{TransactionID: "tx-1", SignedExtrinsic: "0x01", MinReceive: "1000", SlippageBps: intPtr(-5)})
	require.NoError(t, err)
}

func TestConcurrentExecuteSubmitsOnce(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "tx-1", "polkadot", "polkadot", true)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.router.Execute(context.Background(), Request{TransactionID: "tx-1", SignedExtrinsic: "0x01"}); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
	assert.Len(t, f.caller.submitted, 1)
	assert.Empty(t, f.router.locks)
}
