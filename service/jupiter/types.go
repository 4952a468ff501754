package jupiter

import (
	"encoding/json"
	"fmt"

	"github.com/brojonat/swapper/service/swap"
	"github.com/shopspring/decimal"
)

// QuoteParams selects a route. Amount is in the input mint's base units.
type QuoteParams struct {
	InputMint           string
	OutputMint          string
	Amount              uint64
	SlippageBps         int
	OnlyDirectRoutes    bool
	MaxAccounts         int // 0 leaves the aggregator default
	AsLegacyTransaction bool
}

// Quote is a priced route. The aggregator expects the exact quote it issued
// back on swap-instructions, so the response body is kept and re-emitted
// verbatim by MarshalJSON.
type Quote struct {
	InputMint            string          `json:"inputMint"`
	InAmount             uint64          `json:"inAmount,string"`
	OutputMint           string          `json:"outputMint"`
	OutAmount            uint64          `json:"outAmount,string"`
	OtherAmountThreshold uint64          `json:"otherAmountThreshold,string"`
	SwapMode             string          `json:"swapMode"`
	SlippageBps          int             `json:"slippageBps"`
	PriceImpactPct       decimal.Decimal `json:"priceImpactPct"`
	RoutePlan            []RoutePlanStep `json:"routePlan"`
	ContextSlot          uint64          `json:"contextSlot,omitempty"`

	raw json.RawMessage
}

type RoutePlanStep struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
}

type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

// ParseQuote decodes a quote response body.
func ParseQuote(b []byte) (*Quote, error) {
	var q Quote
	if err := json.Unmarshal(b, &q); err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}
	return &q, nil
}

func (q *Quote) UnmarshalJSON(b []byte) error {
	type plain Quote
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*q = Quote(p)
	q.raw = append(json.RawMessage(nil), b...)
	return nil
}

func (q Quote) MarshalJSON() ([]byte, error) {
	if len(q.raw) > 0 {
		return q.raw, nil
	}
	type plain Quote
	return json.Marshal(plain(q))
}

// Labels lists the AMMs the route passes through, in order.
func (q *Quote) Labels() []string {
	labels := make([]string, 0, len(q.RoutePlan))
	for _, step := range q.RoutePlan {
		labels = append(labels, step.SwapInfo.Label)
	}
	return labels
}

// SwapRequest carries the swap-instructions options besides the quote.
type SwapRequest struct {
	UserPublicKey                 string  `json:"userPublicKey"`
	WrapAndUnwrapSOL              bool    `json:"wrapAndUnwrapSol"`
	UseSharedAccounts             *bool   `json:"useSharedAccounts,omitempty"`
	FeeAccount                    string  `json:"feeAccount,omitempty"`
	ComputeUnitPriceMicroLamports *uint64 `json:"computeUnitPriceMicroLamports,omitempty"`
	AsLegacyTransaction           bool    `json:"asLegacyTransaction,omitempty"`
	UseTokenLedger                bool    `json:"useTokenLedger,omitempty"`
	DestinationTokenAccount       string  `json:"destinationTokenAccount,omitempty"`
}

type swapInstructionsRequest struct {
	SwapRequest
	QuoteResponse *Quote `json:"quoteResponse"`
}

// SwapInstructions is the swap-instructions response.
type SwapInstructions struct {
	TokenLedgerInstruction      *swap.InstructionDescriptor  `json:"tokenLedgerInstruction"`
	ComputeBudgetInstructions   []swap.InstructionDescriptor `json:"computeBudgetInstructions"`
	SetupInstructions           []swap.InstructionDescriptor `json:"setupInstructions"`
	SwapInstruction             swap.InstructionDescriptor   `json:"swapInstruction"`
	CleanupInstruction          *swap.InstructionDescriptor  `json:"cleanupInstruction"`
	OtherInstructions           []swap.InstructionDescriptor `json:"otherInstructions"`
	AddressLookupTableAddresses []string                     `json:"addressLookupTableAddresses"`
}

// Plan turns the response into pipeline input. The aggregator's compute
// budget instructions are dropped; the pipeline adds its own.
func (s *SwapInstructions) Plan() *swap.Plan {
	plan := &swap.Plan{
		Setup:                append([]swap.InstructionDescriptor(nil), s.SetupInstructions...),
		Swap:                 s.SwapInstruction,
		LookupTableAddresses: append([]string(nil), s.AddressLookupTableAddresses...),
	}
	if s.CleanupInstruction != nil {
		cleanup := *s.CleanupInstruction
		plan.Cleanup = &cleanup
	}
	return plan
}

// Price is a token's price in the requested vs token.
type Price struct {
	ID    string          `json:"id"`
	Type  string          `json:"type"`
	Price decimal.Decimal `json:"price"`
}

type priceResponse struct {
	Data map[string]*Price `json:"data"`
}

// APIError is a non-2xx aggregator response.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("jupiter: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("jupiter: status %d: %s", e.StatusCode, e.Body)
}

type errorBody struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}
