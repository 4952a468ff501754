package swap

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildInstruction(t *testing.T) {
	program := newPubkey()
	signer := newPubkey()
	accounts := newPubkeys(3)

	t.Run("preserves order and flags", func(t *testing.T) {
		d := InstructionDescriptor{
			ProgramID: program.String(),
			Accounts: []AccountDescriptor{
				{Pubkey: signer.String(), IsSigner: true, IsWritable: true},
				{Pubkey: accounts[0].String(), IsWritable: true},
				{Pubkey: accounts[1].String()},
				{Pubkey: accounts[2].String(), IsSigner: true},
			},
			Data: base64.StdEncoding.EncodeToString([]byte{0xe5, 0x17, 0xcb, 0x97}),
		}

		ix, err := BuildInstruction(d)
		require.NoError(t, err)

		assert.Equal(t, program, ix.ProgramID())
		data, err := ix.Data()
		require.NoError(t, err)
		assert.Equal(t, []byte{0xe5, 0x17, 0xcb, 0x97}, data)

		metas := ix.Accounts()
		require.Len(t, metas, 4)
		assert.Equal(t, signer, metas[0].PublicKey)
		assert.True(t, metas[0].IsSigner)
		assert.True(t, metas[0].IsWritable)
		assert.Equal(t, accounts[0], metas[1].PublicKey)
		assert.False(t, metas[1].IsSigner)
		assert.True(t, metas[1].IsWritable)
		assert.Equal(t, accounts[1], metas[2].PublicKey)
		assert.False(t, metas[2].IsSigner)
		assert.False(t, metas[2].IsWritable)
		assert.Equal(t, accounts[2], metas[3].PublicKey)
		assert.True(t, metas[3].IsSigner)
		assert.False(t, metas[3].IsWritable)
	})

	t.Run("no accounts and empty data", func(t *testing.T) {
		ix, err := BuildInstruction(InstructionDescriptor{ProgramID: program.String()})
		require.NoError(t, err)
		assert.Empty(t, ix.Accounts())
	})

	t.Run("invalid base64", func(t *testing.T) {
		_, err := BuildInstruction(InstructionDescriptor{ProgramID: program.String(), Data: "not base64!"})
		assert.ErrorIs(t, err, ErrInvalidInstructionData)
	})

	t.Run("one unparseable account fails the build", func(t *testing.T) {
		for _, bad := range []string{"", "not-a-key", "0OIl", accounts[0].String() + "x"} {
			d := descriptor(program, &signer, accounts, []byte{1})
			d.Accounts[2].Pubkey = bad

			ix, err := BuildInstruction(d)
			assert.ErrorIs(t, err, ErrAccountCountMismatch, "key %q", bad)
			assert.Nil(t, ix)
		}
	})

	t.Run("invalid program id", func(t *testing.T) {
		d := descriptor(program, nil, accounts, nil)
		d.ProgramID = "JUP"

		_, err := BuildInstruction(d)
		assert.ErrorIs(t, err, ErrInvalidProgramID)
	})
}
