package solana

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/brojonat/swapper/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	accounts  map[solana.PublicKey]*rpc.Account
	blockhash *rpc.LatestBlockhashResult
	statuses  map[solana.Signature]*rpc.SignatureStatusesResult
	sendSig   solana.Signature
	err       error

	accountCalls int
	requested    []solana.PublicKey
	sent         []*solana.Transaction
	sendOpts     []rpc.TransactionOpts
}

func (m *mockRPCClient) GetMultipleAccounts(
	ctx context.Context,
	accounts []solana.PublicKey,
	opts *rpc.GetMultipleAccountsOpts,
) (*rpc.GetMultipleAccountsResult, error) {
	m.accountCalls++
	m.requested = append(m.requested, accounts...)
	if m.err != nil {
		return nil, m.err
	}
	res := &rpc.GetMultipleAccountsResult{Value: make([]*rpc.Account, len(accounts))}
	for i, a := range accounts {
		res.Value[i] = m.accounts[a]
	}
	return res, nil
}

func (m *mockRPCClient) GetLatestBlockhash(
	ctx context.Context,
	commitment rpc.CommitmentType,
) (*rpc.GetLatestBlockhashResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &rpc.GetLatestBlockhashResult{Value: m.blockhash}, nil
}

func (m *mockRPCClient) SendTransaction(
	ctx context.Context,
	tx *solana.Transaction,
	opts rpc.TransactionOpts,
) (solana.Signature, error) {
	m.sent = append(m.sent, tx)
	m.sendOpts = append(m.sendOpts, opts)
	if m.err != nil {
		return solana.Signature{}, m.err
	}
	return m.sendSig, nil
}

func (m *mockRPCClient) GetSignatureStatuses(
	ctx context.Context,
	signatures ...solana.Signature,
) (*rpc.GetSignatureStatusesResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	res := &rpc.GetSignatureStatusesResult{Value: make([]*rpc.SignatureStatusesResult, len(signatures))}
	for i, s := range signatures {
		res.Value[i] = m.statuses[s]
	}
	return res, nil
}

func newTestClient(mock *mockRPCClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(mock, "test", metrics.NewMetrics(prometheus.NewRegistry()), logger)
}

func lookupTableAccount(addrs []solana.PublicKey) *rpc.Account {
	return &rpc.Account{
		Owner: AddressLookupTableProgramID,
		Data:  rpc.DataBytesOrJSONFromBytes(encodeLookupTable(TableMetadata{DeactivationSlot: math.MaxUint64}, addrs)),
	}
}

func TestLoadLookupTables(t *testing.T) {
	ctx := context.Background()

	t.Run("drops missing and undecodable tables", func(t *testing.T) {
		good := solana.NewWallet().PublicKey()
		missing := solana.NewWallet().PublicKey()
		garbage := solana.NewWallet().PublicKey()
		addrs := testAddresses(4)

		mock := &mockRPCClient{
			accounts: map[solana.PublicKey]*rpc.Account{
				good: lookupTableAccount(addrs),
				garbage: {
					Owner: AddressLookupTableProgramID,
					Data:  rpc.DataBytesOrJSONFromBytes([]byte{1, 2, 3}),
				},
			},
		}

		tables, err := newTestClient(mock).LoadLookupTables(ctx, []solana.PublicKey{missing, good, garbage})
		require.NoError(t, err)
		require.Len(t, tables, 1)
		assert.Equal(t, good, tables[0].Key)
		assert.Equal(t, solana.PublicKeySlice(addrs), tables[0].Addresses)
		assert.Equal(t, 1, mock.accountCalls)
	})

	t.Run("keeps request order", func(t *testing.T) {
		a := solana.NewWallet().PublicKey()
		b := solana.NewWallet().PublicKey()
		mock := &mockRPCClient{
			accounts: map[solana.PublicKey]*rpc.Account{
				a: lookupTableAccount(testAddresses(1)),
				b: lookupTableAccount(testAddresses(2)),
			},
		}

		tables, err := newTestClient(mock).LoadLookupTables(ctx, []solana.PublicKey{b, a})
		require.NoError(t, err)
		require.Len(t, tables, 2)
		assert.Equal(t, b, tables[0].Key)
		assert.Equal(t, a, tables[1].Key)
	})

	t.Run("drops accounts not owned by the lookup table program", func(t *testing.T) {
		key := solana.NewWallet().PublicKey()
		acct := lookupTableAccount(testAddresses(1))
		acct.Owner = solana.SystemProgramID
		mock := &mockRPCClient{accounts: map[solana.PublicKey]*rpc.Account{key: acct}}

		tables, err := newTestClient(mock).LoadLookupTables(ctx, []solana.PublicKey{key})
		require.NoError(t, err)
		assert.Empty(t, tables)
	})

	t.Run("empty input makes no call", func(t *testing.T) {
		mock := &mockRPCClient{}

		tables, err := newTestClient(mock).LoadLookupTables(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, tables)
		assert.Zero(t, mock.accountCalls)
	})

	t.Run("duplicates are fetched once", func(t *testing.T) {
		key := solana.NewWallet().PublicKey()
		mock := &mockRPCClient{
			accounts: map[solana.PublicKey]*rpc.Account{key: lookupTableAccount(testAddresses(1))},
		}

		tables, err := newTestClient(mock).LoadLookupTables(ctx, []solana.PublicKey{key, key})
		require.NoError(t, err)
		assert.Len(t, tables, 1)
		assert.Equal(t, []solana.PublicKey{key}, mock.requested)
	})

	t.Run("transport failure is returned", func(t *testing.T) {
		mock := &mockRPCClient{err: errors.New("connection refused")}

		tables, err := newTestClient(mock).LoadLookupTables(ctx, testAddresses(1))
		require.Error(t, err)
		assert.Nil(t, tables)
	})
}

func TestLatestBlockhash(t *testing.T) {
	ctx := context.Background()
	hash := solana.HashFromBytes(solana.NewWallet().PublicKey().Bytes())

	t.Run("success", func(t *testing.T) {
		mock := &mockRPCClient{blockhash: &rpc.LatestBlockhashResult{Blockhash: hash, LastValidBlockHeight: 42}}

		bh, err := newTestClient(mock).LatestBlockhash(ctx)
		require.NoError(t, err)
		assert.Equal(t, hash, bh.Hash)
		assert.Equal(t, uint64(42), bh.LastValidBlockHeight)
	})

	t.Run("empty response", func(t *testing.T) {
		_, err := newTestClient(&mockRPCClient{}).LatestBlockhash(ctx)
		assert.Error(t, err)
	})

	t.Run("rpc error", func(t *testing.T) {
		_, err := newTestClient(&mockRPCClient{err: assert.AnError}).LatestBlockhash(ctx)
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestSignatureStatus(t *testing.T) {
	ctx := context.Background()
	sig := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")

	t.Run("finalized", func(t *testing.T) {
		mock := &mockRPCClient{statuses: map[solana.Signature]*rpc.SignatureStatusesResult{
			sig: {Slot: 100, ConfirmationStatus: rpc.ConfirmationStatusFinalized},
		}}

		status, err := newTestClient(mock).SignatureStatus(ctx, sig)
		require.NoError(t, err)
		assert.True(t, status.Found)
		assert.Equal(t, uint64(100), status.Slot)
		assert.Equal(t, "finalized", status.ConfirmationStatus)
		assert.Nil(t, status.Err)
	})

	t.Run("failed transaction", func(t *testing.T) {
		mock := &mockRPCClient{statuses: map[solana.Signature]*rpc.SignatureStatusesResult{
			sig: {
				Slot:               99,
				ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
				Err:                map[string]interface{}{"InstructionError": []interface{}{0, "Custom error"}},
			},
		}}

		status, err := newTestClient(mock).SignatureStatus(ctx, sig)
		require.NoError(t, err)
		require.NotNil(t, status.Err)
		assert.Contains(t, *status.Err, "InstructionError")
	})

	t.Run("unknown signature", func(t *testing.T) {
		status, err := newTestClient(&mockRPCClient{}).SignatureStatus(ctx, sig)
		require.NoError(t, err)
		assert.False(t, status.Found)
		assert.Equal(t, sig.String(), status.Signature)
	})
}

func TestSendTransaction(t *testing.T) {
	ctx := context.Background()
	sig := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")

	mock := &mockRPCClient{sendSig: sig}
	maxRetries := uint(3)
	got, err := newTestClient(mock).SendTransaction(ctx, &solana.Transaction{}, rpc.TransactionOpts{
		SkipPreflight: true,
		MaxRetries:    &maxRetries,
	})
	require.NoError(t, err)
	assert.Equal(t, sig, got)
	require.Len(t, mock.sendOpts, 1)
	assert.True(t, mock.sendOpts[0].SkipPreflight)
	assert.Equal(t, uint(3), *mock.sendOpts[0].MaxRetries)
}
