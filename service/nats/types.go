package nats

import (
	"time"

	"github.com/brojonat/swapper/service/db"
)

// SwapEvent is published to "swaps.{wallet}" in JetStream whenever a swap
// reaches a final state.
type SwapEvent struct {
	ID     string `json:"id"`
	Wallet string `json:"wallet"`

	InputMint       string `json:"input_mint"`
	OutputMint      string `json:"output_mint"`
	Amount          int64  `json:"amount"`
	QuotedOutAmount *int64 `json:"quoted_out_amount,omitempty"`
	DryRun          bool   `json:"dry_run,omitempty"`

	// Outcome
	Status    string `json:"status"`
	Phase     string `json:"phase,omitempty"`
	Signature string `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
	Attempts  int32  `json:"attempts"`

	CreatedAt   time.Time `json:"created_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromDBSwap converts a stored swap to a SwapEvent for publishing.
func FromDBSwap(s *db.Swap) *SwapEvent {
	event := &SwapEvent{
		ID:              s.ID.String(),
		Wallet:          s.Wallet,
		InputMint:       s.InputMint,
		OutputMint:      s.OutputMint,
		Amount:          s.Amount,
		QuotedOutAmount: s.QuotedOutAmount,
		DryRun:          s.DryRun,
		Status:          s.Status,
		Attempts:        s.Attempts,
		CreatedAt:       s.CreatedAt,
		PublishedAt:     time.Now().UTC(),
	}

	if s.Phase != nil {
		event.Phase = *s.Phase
	}
	if s.Signature != nil {
		event.Signature = *s.Signature
	}
	if s.Error != nil {
		event.Error = *s.Error
	}

	return event
}

// Subject is the subject the event is published on.
func (e *SwapEvent) Subject() string {
	return SubjectPrefix + e.Wallet
}
