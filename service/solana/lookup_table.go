package solana

import (
	"errors"
	"fmt"
	"unsafe"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// AddressLookupTableProgramID owns every address lookup table account.
var AddressLookupTableProgramID = solana.MustPublicKeyFromBase58("AddressLookupTab1e1111111111111111111111111")

// LookupTableMetaSize is the fixed size of the table header. Addresses start
// right after it.
const LookupTableMetaSize = 56

// Account state variants of the lookup table program.
const (
	lookupTableStateUninitialized = uint32(0)
	lookupTableStateActive        = uint32(1)
)

var (
	// ErrUninitializedAccount is returned for table accounts that were created but never initialized.
	ErrUninitializedAccount = errors.New("uninitialized lookup table account")

	// ErrInvalidAccountData is returned when the account bytes are not a lookup table.
	ErrInvalidAccountData = errors.New("invalid lookup table account data")
)

// DecodeLookupTable parses raw account bytes into a LookupTable.
//
// Layout:
//
//	u32  state (0 = uninitialized, 1 = lookup table)
//	u64  deactivation_slot
//	u64  last_extended_slot
//	u8   last_extended_slot_start_index
//	u8   authority option tag, followed by 32 bytes when set
//	u16  padding
//	[32]* addresses, starting at LookupTableMetaSize
//
// Decoding is all or nothing.
func DecodeLookupTable(key solana.PublicKey, data []byte) (*LookupTable, error) {
	meta, err := decodeTableMetadata(data)
	if err != nil {
		return nil, err
	}

	if len(data) < LookupTableMetaSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the table header", ErrInvalidAccountData, len(data))
	}
	raw := data[LookupTableMetaSize:]
	if len(raw)%solana.PublicKeyLength != 0 {
		return nil, fmt.Errorf("%w: address region of %d bytes is not a multiple of %d",
			ErrInvalidAccountData, len(raw), solana.PublicKeyLength)
	}

	view := addressView(raw)
	addresses := make(solana.PublicKeySlice, len(view))
	copy(addresses, view)

	return &LookupTable{
		Key:       key,
		Meta:      *meta,
		Addresses: addresses,
	}, nil
}

func decodeTableMetadata(data []byte) (*TableMetadata, error) {
	dec := bin.NewBinDecoder(data)

	state, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccountData, err)
	}
	switch state {
	case lookupTableStateActive:
	case lookupTableStateUninitialized:
		return nil, ErrUninitializedAccount
	default:
		return nil, fmt.Errorf("%w: unknown account state %d", ErrInvalidAccountData, state)
	}

	var meta TableMetadata
	if meta.DeactivationSlot, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("%w: deactivation slot: %v", ErrInvalidAccountData, err)
	}
	if meta.LastExtendedSlot, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("%w: last extended slot: %v", ErrInvalidAccountData, err)
	}
	if meta.LastExtendedSlotStartIndex, err = dec.ReadUint8(); err != nil {
		return nil, fmt.Errorf("%w: last extended slot start index: %v", ErrInvalidAccountData, err)
	}

	tag, err := dec.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("%w: authority: %v", ErrInvalidAccountData, err)
	}
	switch tag {
	case 0:
	case 1:
		b, err := dec.ReadNBytes(solana.PublicKeyLength)
		if err != nil {
			return nil, fmt.Errorf("%w: authority: %v", ErrInvalidAccountData, err)
		}
		authority := solana.PublicKeyFromBytes(b)
		meta.Authority = &authority
	default:
		return nil, fmt.Errorf("%w: invalid authority option tag %d", ErrInvalidAccountData, tag)
	}

	if _, err := dec.ReadUint16(bin.LE); err != nil {
		return nil, fmt.Errorf("%w: padding: %v", ErrInvalidAccountData, err)
	}

	return &meta, nil
}

// addressView reinterprets raw as a slice of public keys without copying.
// len(raw) must be a multiple of solana.PublicKeyLength. PublicKey is a byte
// array, so any offset is correctly aligned.
func addressView(raw []byte) []solana.PublicKey {
	if len(raw) == 0 {
		return nil
	}
	return unsafe.Slice((*solana.PublicKey)(unsafe.Pointer(unsafe.SliceData(raw))), len(raw)/solana.PublicKeyLength)
}
