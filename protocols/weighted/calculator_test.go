package weighted

import (
	"testing"

	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
	"github.com/hefarica/ARBITRAGEXPLUS2025/protocols"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAmountOut(t *testing.T) {
	base := engine.PoolSnapshot{
		ID:       "bal-80-20",
		TokenA:   "BAL",
		TokenB:   "WETH",
		ReserveA: 100,
		ReserveB: 100,
		Protocol: engine.Weighted,
		Params:   engine.PoolParams{WeightA: 0.8, WeightB: 0.2},
	}

	// --- Test Cases Setup ---
	testCases := []struct {
		name          string
		tokenIn       string
		feeBps        uint16
		params        *engine.PoolParams
		expectedOut   float64
		expectedSpot  float64
		expectedToken string
		expectedErr   error
	}{
		{
			name:          "Heavy side in",
			tokenIn:       "BAL",
			expectedOut:   31.698654463492936,
			expectedSpot:  4,
			expectedToken: "WETH",
		},
		{
			name:          "Light side in",
			tokenIn:       "WETH",
			expectedOut:   2.3545910323689467,
			expectedSpot:  0.25,
			expectedToken: "BAL",
		},
		{
			name:          "Fee taken from output",
			tokenIn:       "BAL",
			feeBps:        100,
			expectedOut:   31.698654463492936 * 0.99,
			expectedSpot:  4,
			expectedToken: "WETH",
		},
		{
			name:        "Missing weights",
			tokenIn:     "BAL",
			params:      &engine.PoolParams{WeightA: 0.8},
			expectedErr: protocols.ErrMissingParameters,
		},
		{
			name:        "Foreign token",
			tokenIn:     "DAI",
			expectedErr: protocols.ErrTokenNotInPool,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			p.FeeBps = tc.feeBps
			if tc.params != nil {
				p.Params = *tc.params
			}
			swap, err := GetAmountOut(10, tc.tokenIn, p)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.expectedOut, swap.AmountOut, 1e-9)
			assert.InDelta(t, tc.expectedSpot, swap.SpotPrice, 1e-12)
			assert.Equal(t, tc.expectedToken, swap.TokenOut)
		})
	}
}
