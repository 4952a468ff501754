package swap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// Sender submits signed transactions. *solana.Client in service/solana implements it.
type Sender interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
}

// SubmitOptions controls how the node handles a submission. Retries happen
// inside the node, up to MaxRetries; the submitter itself sends once.
type SubmitOptions struct {
	SkipPreflight       bool
	MaxRetries          uint
	PreflightCommitment rpc.CommitmentType
}

func (o SubmitOptions) rpcOpts() rpc.TransactionOpts {
	maxRetries := o.MaxRetries
	return rpc.TransactionOpts{
		SkipPreflight:       o.SkipPreflight,
		PreflightCommitment: o.PreflightCommitment,
		MaxRetries:          &maxRetries,
	}
}

// Submitter signs compiled messages and sends them.
type Submitter struct {
	sender Sender
	logger *slog.Logger
}

func NewSubmitter(sender Sender, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{sender: sender, logger: logger}
}

// Submit signs msg with key and sends it.
//
// Once signing starts the pair runs to completion: ctx is checked before
// signing, and the send is detached from ctx cancellation so a signed
// transaction is never half submitted. Errors are *PhaseError with
// PhaseSign or PhaseSubmit.
func (s *Submitter) Submit(ctx context.Context, msg *CompiledMessage, key *SigningKey, opts SubmitOptions) (solana.Signature, error) {
	if err := ctx.Err(); err != nil {
		return solana.Signature{}, wrapPhase(PhaseSign, err)
	}
	tx, err := Sign(msg, key)
	if err != nil {
		return solana.Signature{}, err
	}
	return s.Send(context.WithoutCancel(ctx), tx, opts)
}

// Sign signs the exact bytes of msg. It fails with ErrMissingSigner unless
// key is the fee payer and the only required signer.
func Sign(msg *CompiledMessage, key *SigningKey) (*solana.Transaction, error) {
	if msg.NumRequiredSignatures() != 1 || !msg.Payer().Equals(key.PublicKey()) {
		return nil, wrapPhase(PhaseSign, fmt.Errorf("%w: %d signatures required, payer %s, key %s",
			ErrMissingSigner, msg.NumRequiredSignatures(), msg.Payer(), key.PublicKey()))
	}
	content, err := msg.MarshalBinary()
	if err != nil {
		return nil, wrapPhase(PhaseSign, fmt.Errorf("failed to serialize message: %w", err))
	}
	sig, err := key.Sign(content)
	if err != nil {
		return nil, wrapPhase(PhaseSign, err)
	}

	tx := msg.transaction()
	tx.Signatures = []solana.Signature{sig}
	return tx, nil
}

// Send submits an already signed transaction once.
func (s *Submitter) Send(ctx context.Context, tx *solana.Transaction, opts SubmitOptions) (solana.Signature, error) {
	sig, err := s.sender.SendTransaction(ctx, tx, opts.rpcOpts())
	if err != nil {
		subErr := newSubmissionError(err)
		s.logger.ErrorContext(ctx, "transaction rejected",
			"code", subErr.Code,
			"message", subErr.Message,
			"skip_preflight", opts.SkipPreflight,
		)
		return solana.Signature{}, wrapPhase(PhaseSubmit, subErr)
	}

	s.logger.InfoContext(ctx, "transaction submitted",
		"signature", sig.String(),
		"skip_preflight", opts.SkipPreflight,
		"max_retries", opts.MaxRetries,
	)
	return sig, nil
}

func newSubmissionError(err error) *SubmissionError {
	se := &SubmissionError{Message: err.Error(), Err: err}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		se.Code = rpcErr.Code
		se.Message = rpcErr.Message
		se.Data = rpcErr.Data
	}
	return se
}

// Logs returns the program logs a failed preflight simulation attached, if any.
func (e *SubmissionError) Logs() []string {
	data, ok := e.Data.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := data["logs"].([]any)
	if !ok {
		return nil
	}
	logs := make([]string, 0, len(raw))
	for _, l := range raw {
		if s, ok := l.(string); ok {
			logs = append(logs, s)
		}
	}
	return logs
}
