package swap

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// BuildInstruction converts a descriptor into an executable instruction.
//
// Account order and flags are kept exactly as declared. Either every account
// resolves or the build fails with ErrAccountCountMismatch; an instruction
// with a shortened account list is never returned.
func BuildInstruction(d InstructionDescriptor) (*solana.GenericInstruction, error) {
	data, err := base64.StdEncoding.DecodeString(d.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
	}

	accounts := make(solana.AccountMetaSlice, 0, len(d.Accounts))
	var unresolved []string
	for _, a := range d.Accounts {
		pk, err := solana.PublicKeyFromBase58(a.Pubkey)
		if err != nil {
			unresolved = append(unresolved, a.Pubkey)
			continue
		}
		accounts = append(accounts, solana.NewAccountMeta(pk, a.IsWritable, a.IsSigner))
	}
	if len(accounts) != len(d.Accounts) {
		return nil, fmt.Errorf("%w: declared %d, resolved %d (unparseable: %s)",
			ErrAccountCountMismatch, len(d.Accounts), len(accounts), strings.Join(unresolved, ", "))
	}

	programID, err := solana.PublicKeyFromBase58(d.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidProgramID, d.ProgramID, err)
	}

	return solana.NewInstruction(programID, accounts, data), nil
}
