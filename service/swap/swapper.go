package swap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/swapper/service/metrics"
	"github.com/brojonat/swapper/service/solana"
)

// State is a step of a pipeline run.
type State string

const (
	StateRoutePlanReceived State = "route_plan_received"
	StateTablesResolved    State = "tables_resolved"
	StateInstructionsBuilt State = "instructions_built"
	StateMessageCompiled   State = "message_compiled"
	StateSigned            State = "signed"
	StateSubmitted         State = "submitted"
	StateConfirmed         State = "confirmed"
	StateRejected          State = "rejected"
)

// Ledger is everything a run needs from the network. *solana.Client implements it.
type Ledger interface {
	TableLoader
	Sender
	LatestBlockhash(ctx context.Context) (*solana.Blockhash, error)
}

// SwapOptions are the per-run knobs. A nil PriorityFeeRate or
// ComputeUnitLimit leaves the matching instruction out. DryRun stops after
// signing.
type SwapOptions struct {
	PriorityFeeRate  *float64
	ComputeUnitLimit *uint32
	SkipPreflight    bool
	MaxRetries       uint
	DryRun           bool
}

func (o SwapOptions) compileOptions() (CompileOptions, error) {
	var opts CompileOptions
	if o.PriorityFeeRate != nil {
		fee, err := PriorityFeeMicroLamports(*o.PriorityFeeRate)
		if err != nil {
			return opts, err
		}
		opts.PriorityFeeMicroLamports = &fee
	}
	opts.ComputeUnitLimit = o.ComputeUnitLimit
	return opts, nil
}

// Result describes how far a run got.
type Result struct {
	State                State  `json:"state"`
	Signature            string `json:"signature,omitempty"`
	Transaction          string `json:"transaction,omitempty"` // base64 signed transaction
	Payer                string `json:"payer"`
	Blockhash            string `json:"blockhash,omitempty"`
	LastValidBlockHeight uint64 `json:"last_valid_block_height,omitempty"`
	Tables               int    `json:"tables"`
	Instructions         int    `json:"instructions"`
	SizeBytes            int    `json:"size_bytes,omitempty"`
}

// Swapper runs the whole pipeline for one signing key. It keeps no state
// between runs, so concurrent Execute calls only share the ledger's
// connection pool.
type Swapper struct {
	ledger    Ledger
	compiler  *Compiler
	submitter *Submitter
	key       *SigningKey
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewSwapper creates a Swapper. If metrics is nil, no metrics are recorded.
func NewSwapper(ledger Ledger, key *SigningKey, m *metrics.Metrics, logger *slog.Logger) *Swapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Swapper{
		ledger:    ledger,
		compiler:  NewCompiler(ledger, m, logger),
		submitter: NewSubmitter(ledger, logger),
		key:       key,
		logger:    logger,
		metrics:   m,
	}
}

// PublicKey returns the address that pays for and signs every swap.
func (s *Swapper) PublicKey() string {
	return s.key.PublicKey().String()
}

// Execute runs one plan through tables, instructions, blockhash, compile,
// sign, and submit. Every failure is a *PhaseError; the returned Result is
// never nil and records the last state reached. A failed submission ends in
// StateRejected, a successful one in StateConfirmed.
//
// Nothing is retried here. A caller that wants another attempt must call
// Execute again so it gets fresh tables and a fresh blockhash.
func (s *Swapper) Execute(ctx context.Context, plan *Plan, opts SwapOptions) (*Result, error) {
	start := time.Now()
	res := &Result{State: StateRoutePlanReceived, Payer: s.PublicKey()}

	err := s.execute(ctx, plan, opts, res)

	if s.metrics != nil {
		s.metrics.RecordSwap(string(res.State), time.Since(start).Seconds())
	}
	if err != nil {
		phase, _ := PhaseOf(err)
		s.logger.ErrorContext(ctx, "swap failed",
			"state", res.State,
			"phase", phase,
			"error", err,
		)
		return res, err
	}
	s.logger.InfoContext(ctx, "swap finished",
		"state", res.State,
		"signature", res.Signature,
		"duration", time.Since(start),
	)
	return res, nil
}

func (s *Swapper) execute(ctx context.Context, plan *Plan, opts SwapOptions, res *Result) error {
	if plan == nil {
		return wrapPhase(PhaseBuild, errors.New("plan is required"))
	}
	compileOpts, err := opts.compileOptions()
	if err != nil {
		return wrapPhase(PhaseBuild, err)
	}

	tables, err := s.compiler.ResolveTables(ctx, plan)
	if err != nil {
		return wrapPhase(PhaseResolveTables, err)
	}
	res.State = StateTablesResolved
	res.Tables = len(tables)

	seq, err := s.compiler.BuildInstructions(ctx, plan, compileOpts)
	if err != nil {
		return wrapPhase(PhaseBuild, err)
	}
	res.State = StateInstructionsBuilt
	res.Instructions = len(seq.Instructions())

	bh, err := s.ledger.LatestBlockhash(ctx)
	if err != nil {
		return wrapPhase(PhaseBlockhash, err)
	}
	res.Blockhash = bh.Hash.String()
	res.LastValidBlockHeight = bh.LastValidBlockHeight

	msg, err := s.compiler.CompileMessage(ctx, seq, s.key.PublicKey(), bh.Hash, tables)
	if err != nil {
		return wrapPhase(PhaseCompile, err)
	}
	res.State = StateMessageCompiled
	if size, err := msg.SignedSize(); err == nil {
		res.SizeBytes = size
	}

	// Signing and sending form one unit: the last cancellation point is here.
	if err := ctx.Err(); err != nil {
		return wrapPhase(PhaseSign, err)
	}
	tx, err := Sign(msg, s.key)
	if err != nil {
		return err
	}
	res.State = StateSigned
	encoded, err := tx.ToBase64()
	if err != nil {
		return wrapPhase(PhaseSign, fmt.Errorf("failed to encode transaction: %w", err))
	}
	res.Transaction = encoded
	if len(tx.Signatures) > 0 {
		res.Signature = tx.Signatures[0].String()
	}

	if opts.DryRun {
		return nil
	}

	res.State = StateSubmitted
	sig, err := s.submitter.Send(context.WithoutCancel(ctx), tx, SubmitOptions{
		SkipPreflight: opts.SkipPreflight,
		MaxRetries:    opts.MaxRetries,
	})
	if err != nil {
		res.State = StateRejected
		return err
	}
	res.State = StateConfirmed
	res.Signature = sig.String()
	return nil
}
