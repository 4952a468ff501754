package solana

import (
	"math"

	"github.com/gagliardetto/solana-go"
)

// TableMetadata is the header of an address lookup table account.
type TableMetadata struct {
	DeactivationSlot           uint64
	LastExtendedSlot           uint64
	LastExtendedSlotStartIndex uint8
	Authority                  *solana.PublicKey // nil once the table is frozen
}

// Deactivated reports whether the table has been scheduled for closing.
func (m TableMetadata) Deactivated() bool {
	return m.DeactivationSlot != math.MaxUint64
}

// LookupTable is a decoded address lookup table.
// Key is the address the account was fetched from. Tables are never modified
// after decoding.
type LookupTable struct {
	Key       solana.PublicKey
	Meta      TableMetadata
	Addresses solana.PublicKeySlice
}

// SignatureStatus is our domain view of a submitted transaction's status.
type SignatureStatus struct {
	Signature          string  `json:"signature"`
	Slot               uint64  `json:"slot,omitempty"`
	ConfirmationStatus string  `json:"confirmation_status,omitempty"` // "processed", "confirmed" or "finalized"; empty if unknown
	Err                *string `json:"err,omitempty"`                 // nil if the transaction succeeded or is still unknown
	Found              bool    `json:"found"`
}
