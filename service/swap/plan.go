package swap

import (
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// AccountDescriptor is one account reference of an InstructionDescriptor.
type AccountDescriptor struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// InstructionDescriptor is an instruction as the aggregator describes it:
// string-encoded keys and a base64 payload.
type InstructionDescriptor struct {
	ProgramID string              `json:"programId"`
	Accounts  []AccountDescriptor `json:"accounts"`
	Data      string              `json:"data"`
}

// Plan is the input of one pipeline run. Its JSON form matches the
// aggregator's swap-instructions response, so a saved response can be parsed
// directly with ParsePlan.
//
// Cleanup is carried for inspection only and is never compiled.
type Plan struct {
	Setup                []InstructionDescriptor `json:"setupInstructions"`
	Swap                 InstructionDescriptor   `json:"swapInstruction"`
	Cleanup              *InstructionDescriptor  `json:"cleanupInstruction,omitempty"`
	LookupTableAddresses []string                `json:"addressLookupTableAddresses"`
}

// ParsePlan decodes a plan from JSON.
func ParsePlan(data []byte) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	if p.Swap.ProgramID == "" {
		return nil, fmt.Errorf("failed to decode plan: missing swapInstruction")
	}
	return &p, nil
}

// LookupTables returns the parsed lookup table addresses. Entries that are not
// valid addresses are skipped, the same way unresolvable tables are.
func (p *Plan) LookupTables() []solana.PublicKey {
	out := make([]solana.PublicKey, 0, len(p.LookupTableAddresses))
	for _, s := range p.LookupTableAddresses {
		pk, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			continue
		}
		out = append(out, pk)
	}
	return out
}
