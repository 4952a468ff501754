package swap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brojonat/swapper/service/metrics"
	"github.com/brojonat/swapper/service/solana"
	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
)

const (
	// MaxTransactionSize is the largest signed transaction a node accepts.
	MaxTransactionSize = 1232

	// MaxAccountReferences is the most accounts a message can index, static
	// keys and lookup table entries combined.
	MaxAccountReferences = 256
)

// TableLoader resolves lookup tables by address. *solana.Client implements it.
type TableLoader interface {
	LoadLookupTables(ctx context.Context, addrs []solanago.PublicKey) ([]*solana.LookupTable, error)
}

// CompileOptions carries the optional compute budget settings. A nil field
// means the matching instruction is left out.
type CompileOptions struct {
	PriorityFeeMicroLamports *uint64
	ComputeUnitLimit         *uint32
}

// InstructionSequence holds a message's instructions in named slots.
// Instructions returns them in the only order a swap message uses:
// priority fee, compute unit limit, setup, swap.
type InstructionSequence struct {
	PriorityFee      solanago.Instruction
	ComputeUnitLimit solanago.Instruction
	Setup            []solanago.Instruction
	Swap             solanago.Instruction
}

// Instructions flattens the slots. Empty slots are skipped.
func (s *InstructionSequence) Instructions() []solanago.Instruction {
	out := make([]solanago.Instruction, 0, len(s.Setup)+3)
	if s.PriorityFee != nil {
		out = append(out, s.PriorityFee)
	}
	if s.ComputeUnitLimit != nil {
		out = append(out, s.ComputeUnitLimit)
	}
	out = append(out, s.Setup...)
	if s.Swap != nil {
		out = append(out, s.Swap)
	}
	return out
}

// Compiler turns a Plan into a v0 message. It holds no per-run state and is
// safe for concurrent use.
type Compiler struct {
	tables  TableLoader
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewCompiler creates a Compiler. If metrics is nil, no metrics are recorded.
func NewCompiler(tables TableLoader, m *metrics.Metrics, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{
		tables:  tables,
		logger:  logger,
		metrics: m,
	}
}

// Compile resolves the plan's lookup tables, builds its instructions, and
// compiles them against blockhash with payer as fee payer. Failures are
// returned as *PhaseError.
func (c *Compiler) Compile(
	ctx context.Context,
	plan *Plan,
	payer solanago.PublicKey,
	opts CompileOptions,
	blockhash solanago.Hash,
) (*CompiledMessage, error) {
	tables, err := c.ResolveTables(ctx, plan)
	if err != nil {
		return nil, wrapPhase(PhaseResolveTables, err)
	}
	seq, err := c.BuildInstructions(ctx, plan, opts)
	if err != nil {
		return nil, wrapPhase(PhaseBuild, err)
	}
	msg, err := c.CompileMessage(ctx, seq, payer, blockhash, tables)
	if err != nil {
		return nil, wrapPhase(PhaseCompile, err)
	}
	return msg, nil
}

// ResolveTables loads the plan's lookup tables. Tables that cannot be fetched
// or decoded are left out, and a failed batch fetch just yields no tables;
// the addresses they would have compressed are then stated in full. The only
// error is cancellation of ctx.
func (c *Compiler) ResolveTables(ctx context.Context, plan *Plan) ([]*solana.LookupTable, error) {
	addrs := plan.LookupTables()
	if len(addrs) == 0 || c.tables == nil {
		return nil, nil
	}

	tables, err := c.tables.LoadLookupTables(ctx, addrs)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.WarnContext(ctx, "lookup tables unavailable, compiling without them",
			"requested", len(addrs),
			"error", err,
		)
		if c.metrics != nil {
			c.metrics.RecordLookupTables("dropped", len(addrs))
		}
		return nil, nil
	}
	return tables, nil
}

// BuildInstructions fills the instruction slots from plan and opts.
//
// A setup instruction that fails to build is skipped with a warning; the swap
// instruction failing to build is an error. The plan's cleanup instruction is
// never included.
func (c *Compiler) BuildInstructions(ctx context.Context, plan *Plan, opts CompileOptions) (*InstructionSequence, error) {
	seq := &InstructionSequence{}

	if opts.PriorityFeeMicroLamports != nil {
		ix, err := computebudget.NewSetComputeUnitPriceInstruction(*opts.PriorityFeeMicroLamports).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("priority fee instruction: %w", err)
		}
		seq.PriorityFee = ix
		if c.metrics != nil {
			c.metrics.RecordPriorityFee(*opts.PriorityFeeMicroLamports)
		}
	}

	if opts.ComputeUnitLimit != nil {
		ix, err := computebudget.NewSetComputeUnitLimitInstruction(*opts.ComputeUnitLimit).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("compute unit limit instruction: %w", err)
		}
		seq.ComputeUnitLimit = ix
	}

	for i, d := range plan.Setup {
		ix, err := BuildInstruction(d)
		if err != nil {
			c.logger.WarnContext(ctx, "skipping setup instruction",
				"index", i,
				"program_id", d.ProgramID,
				"error", err,
			)
			if c.metrics != nil {
				c.metrics.RecordSetupInstruction("skipped")
			}
			continue
		}
		seq.Setup = append(seq.Setup, ix)
		if c.metrics != nil {
			c.metrics.RecordSetupInstruction("included")
		}
	}

	swap, err := BuildInstruction(plan.Swap)
	if err != nil {
		return nil, fmt.Errorf("swap instruction: %w", err)
	}
	seq.Swap = swap

	return seq, nil
}

// CompileMessage compiles seq into a v0 message. Addresses found in tables are
// referenced through lookups; everything else is stated in full. The result
// is checked against the transaction format limits.
func (c *Compiler) CompileMessage(
	ctx context.Context,
	seq *InstructionSequence,
	payer solanago.PublicKey,
	blockhash solanago.Hash,
	tables []*solana.LookupTable,
) (*CompiledMessage, error) {
	if payer.IsZero() {
		return nil, errors.New("fee payer is required")
	}
	if seq.Swap == nil {
		return nil, errors.New("swap instruction is required")
	}

	tableMap := make(map[solanago.PublicKey]solanago.PublicKeySlice, len(tables))
	for _, t := range tables {
		tableMap[t.Key] = t.Addresses
	}

	txOpts := []solanago.TransactionOption{solanago.TransactionPayer(payer)}
	if len(tableMap) > 0 {
		txOpts = append(txOpts, solanago.TransactionAddressTables(tableMap))
	}

	ixs := seq.Instructions()
	tx, err := solanago.NewTransaction(ixs, blockhash, txOpts...)
	if err != nil {
		return nil, err
	}
	tx.Message.SetVersion(solanago.MessageVersionV0)
	if len(tableMap) > 0 && tx.Message.GetAddressTables() == nil {
		if err := tx.Message.SetAddressTables(tableMap); err != nil {
			return nil, err
		}
	}

	msg := &CompiledMessage{
		message:      tx.Message,
		tables:       tables,
		instructions: ixs,
	}

	refs := msg.AccountReferences()
	if refs > MaxAccountReferences {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyAccounts, refs, MaxAccountReferences)
	}
	size, err := msg.SignedSize()
	if err != nil {
		return nil, err
	}
	if size > MaxTransactionSize {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrMessageTooLarge, size, MaxTransactionSize)
	}

	if c.metrics != nil {
		c.metrics.RecordCompiledMessage(size, refs)
	}
	c.logger.DebugContext(ctx, "compiled message",
		"instructions", len(ixs),
		"static_accounts", len(tx.Message.AccountKeys),
		"lookup_accounts", tx.Message.NumLookups(),
		"tables", len(tables),
		"size", size,
	)

	return msg, nil
}

// CompiledMessage is a compiled v0 message and the inputs it was built from.
// It is never modified after compilation.
type CompiledMessage struct {
	message      solanago.Message
	tables       []*solana.LookupTable
	instructions []solanago.Instruction
}

// Payer returns the fee payer, always the first account key.
func (m *CompiledMessage) Payer() solanago.PublicKey {
	return m.message.AccountKeys[0]
}

func (m *CompiledMessage) Blockhash() solanago.Hash {
	return m.message.RecentBlockhash
}

// Tables returns the lookup tables offered to the compiler.
func (m *CompiledMessage) Tables() []*solana.LookupTable {
	return append([]*solana.LookupTable(nil), m.tables...)
}

// Instructions returns the instructions in message order.
func (m *CompiledMessage) Instructions() []solanago.Instruction {
	return append([]solanago.Instruction(nil), m.instructions...)
}

func (m *CompiledMessage) Version() solanago.MessageVersion {
	return m.message.GetVersion()
}

// StaticAccountKeys returns the account keys stated in full.
func (m *CompiledMessage) StaticAccountKeys() solanago.PublicKeySlice {
	return append(solanago.PublicKeySlice(nil), m.message.AccountKeys...)
}

// AddressTableLookups returns the lookups the message makes.
func (m *CompiledMessage) AddressTableLookups() solanago.MessageAddressTableLookupSlice {
	return append(solanago.MessageAddressTableLookupSlice(nil), m.message.AddressTableLookups...)
}

// AccountReferences counts static keys plus looked up entries.
func (m *CompiledMessage) AccountReferences() int {
	return len(m.message.AccountKeys) + m.message.NumLookups()
}

// NumRequiredSignatures is the number of signatures the message needs.
func (m *CompiledMessage) NumRequiredSignatures() int {
	return int(m.message.Header.NumRequiredSignatures)
}

// MarshalBinary returns the exact bytes that get signed.
func (m *CompiledMessage) MarshalBinary() ([]byte, error) {
	msg := m.message
	return msg.MarshalBinary()
}

// SignedSize is the wire size of the transaction once signed.
func (m *CompiledMessage) SignedSize() (int, error) {
	b, err := m.MarshalBinary()
	if err != nil {
		return 0, err
	}
	var prefix []byte
	bin.EncodeCompactU16Length(&prefix, m.NumRequiredSignatures())
	return len(prefix) + m.NumRequiredSignatures()*solanago.SignatureLength + len(b), nil
}

// transaction returns an unsigned transaction over a copy of the message.
func (m *CompiledMessage) transaction() *solanago.Transaction {
	return &solanago.Transaction{Message: m.message}
}
