package swap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityFeeMicroLamports(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want uint64
	}{
		{"default rate", 0.001, 1_000_000},
		{"zero", 0, 0},
		{"one", 1, 1_000_000_000},
		{"full precision", 1.23456789, 1_234_567_890},
		{"rounds half away from zero", 0.0000000015, 2},
		{"rounds down", 0.0000000014, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PriorityFeeMicroLamports(tt.rate)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("rejects invalid rates", func(t *testing.T) {
		for _, rate := range []float64{-0.001, math.NaN(), math.Inf(1), math.Inf(-1), 1e11} {
			_, err := PriorityFeeMicroLamports(rate)
			assert.ErrorIs(t, err, ErrInvalidFeeRate, "rate %v", rate)
		}
	})
}
