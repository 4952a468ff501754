package swap

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// PriorityFeeScale is the number of decimal places between a fee rate and
// the compute unit price it converts to.
const PriorityFeeScale = 9

// DefaultPriorityFeeRate and DefaultComputeUnitLimit are applied when the
// caller does not override them.
const (
	DefaultPriorityFeeRate  = 0.001
	DefaultComputeUnitLimit = uint32(1_000_000)
)

// PriorityFeeMicroLamports converts a decimal fee rate to a compute unit
// price: round(rate * 10^9). A rate of 0.001 is 1_000_000.
func PriorityFeeMicroLamports(rate float64) (uint64, error) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidFeeRate, rate)
	}
	units := decimal.NewFromFloat(rate).Shift(PriorityFeeScale).Round(0).BigInt()
	if !units.IsUint64() {
		return 0, fmt.Errorf("%w: %v overflows the compute unit price", ErrInvalidFeeRate, rate)
	}
	return units.Uint64(), nil
}
