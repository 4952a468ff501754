package solana

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/swapper/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Client provides the ledger operations a swap needs: lookup table
// resolution, blockhash retrieval, submission, and status queries.
// It wraps the RPC client with domain-specific operations and is safe for
// concurrent use.
type Client struct {
	rpc        RPCClient
	logger     *slog.Logger
	metrics    *metrics.Metrics
	endpoint   string // RPC endpoint identifier for metrics (e.g., "mainnet", "devnet", rpc host)
	commitment rpc.CommitmentType
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCommitment sets the commitment used for account and blockhash reads.
// The default is confirmed.
func WithCommitment(commitment rpc.CommitmentType) ClientOption {
	return func(c *Client) {
		if commitment != "" {
			c.commitment = commitment
		}
	}
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "mainnet", "devnet", or RPC hostname).
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		rpc:        rpcClient,
		logger:     logger,
		metrics:    m,
		endpoint:   endpoint,
		commitment: rpc.CommitmentConfirmed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadLookupTables fetches and decodes the given lookup tables in a single
// getMultipleAccounts call.
//
// Tables that do not exist, are not owned by the lookup table program, or
// fail to decode are left out of the result; that is never an error. Only a
// failure of the RPC call itself is returned. Results keep the order of addrs,
// each keyed by the address it was requested under. Duplicate addresses are
// fetched once.
func (c *Client) LoadLookupTables(ctx context.Context, addrs []solana.PublicKey) ([]*LookupTable, error) {
	keys := dedupe(addrs)
	if len(keys) == 0 {
		return nil, nil
	}

	opts := &rpc.GetMultipleAccountsOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	}

	start := time.Now()
	res, err := c.rpc.GetMultipleAccounts(ctx, keys, opts)
	c.observe(ctx, "GetMultipleAccounts", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lookup tables: %w", err)
	}

	var accounts []*rpc.Account
	if res != nil {
		accounts = res.Value
	}

	tables := make([]*LookupTable, 0, len(keys))
	for i, key := range keys {
		var acct *rpc.Account
		if i < len(accounts) {
			acct = accounts[i]
		}
		table, reason := decodeAccount(key, acct)
		if table == nil {
			c.logger.DebugContext(ctx, "dropping lookup table",
				"table", key.String(),
				"reason", reason,
			)
			continue
		}
		tables = append(tables, table)
		if c.metrics != nil {
			c.metrics.RecordLookupTableSize(len(table.Addresses))
		}
	}

	if c.metrics != nil {
		c.metrics.RecordLookupTables("resolved", len(tables))
		c.metrics.RecordLookupTables("dropped", len(keys)-len(tables))
	}

	c.logger.DebugContext(ctx, "resolved lookup tables",
		"requested", len(keys),
		"resolved", len(tables),
	)

	return tables, nil
}

func decodeAccount(key solana.PublicKey, acct *rpc.Account) (*LookupTable, string) {
	if acct == nil || acct.Data == nil {
		return nil, "account not found"
	}
	if !acct.Owner.Equals(AddressLookupTableProgramID) {
		return nil, "not owned by the lookup table program: " + acct.Owner.String()
	}
	table, err := DecodeLookupTable(key, acct.Data.GetBinary())
	if err != nil {
		return nil, err.Error()
	}
	return table, ""
}

func dedupe(addrs []solana.PublicKey) []solana.PublicKey {
	seen := make(map[solana.PublicKey]struct{}, len(addrs))
	out := make([]solana.PublicKey, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Blockhash is a recent blockhash and the last block height at which a
// message built on it is still valid.
type Blockhash struct {
	Hash                 solana.Hash
	LastValidBlockHeight uint64
}

// LatestBlockhash fetches a recent blockhash at the client's commitment.
func (c *Client) LatestBlockhash(ctx context.Context) (*Blockhash, error) {
	start := time.Now()
	res, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	c.observe(ctx, "GetLatestBlockhash", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest blockhash: %w", err)
	}
	if res == nil || res.Value == nil {
		return nil, fmt.Errorf("failed to fetch latest blockhash: empty response")
	}
	return &Blockhash{
		Hash:                 res.Value.Blockhash,
		LastValidBlockHeight: res.Value.LastValidBlockHeight,
	}, nil
}

// SendTransaction submits a signed transaction once. Retries are left to the
// node according to opts.MaxRetries.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	start := time.Now()
	sig, err := c.rpc.SendTransaction(ctx, tx, opts)
	c.observe(ctx, "SendTransaction", start, err)
	if err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

// SignatureStatus looks up the status of a previously submitted transaction.
// A signature the node has never seen returns Found == false and no error.
func (c *Client) SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error) {
	start := time.Now()
	res, err := c.rpc.GetSignatureStatuses(ctx, sig)
	c.observe(ctx, "GetSignatureStatuses", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch signature status: %w", err)
	}

	status := &SignatureStatus{Signature: sig.String()}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return status, nil
	}

	v := res.Value[0]
	status.Found = true
	status.Slot = v.Slot
	status.ConfirmationStatus = string(v.ConfirmationStatus)
	if v.Err != nil {
		msg := fmt.Sprintf("%v", v.Err)
		status.Err = &msg
	}
	return status, nil
}

// observe records the outcome of one RPC call.
func (c *Client) observe(ctx context.Context, method string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
		c.logger.WarnContext(ctx, "solana rpc call failed",
			"method", method,
			"endpoint", c.endpoint,
			"error", err,
		)
	}
	if c.metrics == nil {
		return
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, duration)
	if err != nil && strings.Contains(err.Error(), "429") {
		c.metrics.RecordRateLimitHit(c.endpoint)
	}
}
