package swap

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/brojonat/swapper/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestKey(t *testing.T) *SigningKey {
	t.Helper()
	key, err := NewSigningKey(solanago.NewWallet().PrivateKey)
	require.NoError(t, err)
	return key
}

func newPubkey() solanago.PublicKey {
	return solanago.NewWallet().PublicKey()
}

func newPubkeys(n int) []solanago.PublicKey {
	out := make([]solanago.PublicKey, n)
	for i := range out {
		out[i] = newPubkey()
	}
	return out
}

func testHash() solanago.Hash {
	return solanago.HashFromBytes(newPubkey().Bytes())
}

// descriptor builds an instruction descriptor for program with the given
// read-only, non-signer accounts after an optional leading signer.
func descriptor(program solanago.PublicKey, signer *solanago.PublicKey, accounts []solanago.PublicKey, data []byte) InstructionDescriptor {
	d := InstructionDescriptor{
		ProgramID: program.String(),
		Data:      base64.StdEncoding.EncodeToString(data),
	}
	if signer != nil {
		d.Accounts = append(d.Accounts, AccountDescriptor{Pubkey: signer.String(), IsSigner: true, IsWritable: true})
	}
	for _, a := range accounts {
		d.Accounts = append(d.Accounts, AccountDescriptor{Pubkey: a.String(), IsWritable: true})
	}
	return d
}

func table(key solanago.PublicKey, addrs []solanago.PublicKey) *solana.LookupTable {
	return &solana.LookupTable{
		Key:       key,
		Meta:      solana.TableMetadata{DeactivationSlot: math.MaxUint64},
		Addresses: addrs,
	}
}

// fakeLedger is a goroutine-safe in-memory Ledger.
type fakeLedger struct {
	mu sync.Mutex

	tables       map[solanago.PublicKey]*solana.LookupTable
	loadErr      error
	blockhash    solanago.Hash
	blockhashErr error
	sendSig      solanago.Signature
	sendErr      error

	// onBlockhash runs inside LatestBlockhash, before it returns.
	onBlockhash func()
	// onSend runs inside SendTransaction with the context it was given.
	onSend func(ctx context.Context)

	loadCalls int
	sent      []*solanago.Transaction
	sendOpts  []rpc.TransactionOpts
}

func (f *fakeLedger) LoadLookupTables(ctx context.Context, addrs []solanago.PublicKey) ([]*solana.LookupTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	var out []*solana.LookupTable
	for _, a := range addrs {
		if t, ok := f.tables[a]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeLedger) LatestBlockhash(ctx context.Context) (*solana.Blockhash, error) {
	if f.onBlockhash != nil {
		f.onBlockhash()
	}
	if f.blockhashErr != nil {
		return nil, f.blockhashErr
	}
	return &solana.Blockhash{Hash: f.blockhash, LastValidBlockHeight: 1000}, nil
}

func (f *fakeLedger) SendTransaction(ctx context.Context, tx *solanago.Transaction, opts rpc.TransactionOpts) (solanago.Signature, error) {
	if f.onSend != nil {
		f.onSend(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	f.sendOpts = append(f.sendOpts, opts)
	if f.sendErr != nil {
		return solanago.Signature{}, f.sendErr
	}
	if !f.sendSig.IsZero() {
		return f.sendSig, nil
	}
	return tx.Signatures[0], nil
}

func (f *fakeLedger) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
