package protocols

import (
	"errors"
	"fmt"
	"math"

	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
)

var (
	// ErrInvalidAmount is returned when an input/output amount is not a positive finite number.
	ErrInvalidAmount = errors.New("amount must be positive and finite")
	// ErrInvalidReserves is returned when either reserve of the traded pair is <= 0.
	ErrInvalidReserves = errors.New("invalid reserves")
	// ErrTokenNotInPool is returned when the input token matches neither pool side.
	ErrTokenNotInPool = errors.New("token not in pool")
	// ErrMissingParameters is returned when a protocol-specific parameter (weights, amplification) is absent.
	ErrMissingParameters = engine.ErrMissingParameters
	// ErrNonFinite is returned when a computation produces NaN or Inf.
	ErrNonFinite = errors.New("non-finite result")
	// ErrInsufficientLiquidity is returned when an amountOut is requested that is greater than or equal to the available reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
)

// Swap is the raw result of pushing amountIn through a single pool.
type Swap struct {
	TokenOut  string
	AmountOut float64
	// FeeAmount is denominated in FeeToken.
	FeeAmount float64
	FeeToken  string
	// SpotPrice is the marginal price (tokenOut per tokenIn) before the trade.
	SpotPrice float64
}

// GetReserves returns the reserves for the given input token, plus the token received.
func GetReserves(tokenIn string, pool engine.PoolSnapshot) (reserveIn, reserveOut float64, tokenOut string, err error) {
	switch tokenIn {
	case pool.TokenA:
		return pool.ReserveA, pool.ReserveB, pool.TokenB, nil
	case pool.TokenB:
		return pool.ReserveB, pool.ReserveA, pool.TokenA, nil
	}
	return 0, 0, "", fmt.Errorf("%w: pool %s does not contain %s", ErrTokenNotInPool, pool.ID, tokenIn)
}

// CheckAmount validates a swap amount.
func CheckAmount(amount float64) error {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}

// CheckReserves validates the reserves of the traded pair.
func CheckReserves(poolID string, reserveIn, reserveOut float64) error {
	if !(reserveIn > 0) || !(reserveOut > 0) {
		return fmt.Errorf("%w: pool %s has reserves (%v, %v)", ErrInvalidReserves, poolID, reserveIn, reserveOut)
	}
	return nil
}

// CheckFinite rejects NaN and Inf results.
func CheckFinite(poolID string, values ...float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: pool %s", ErrNonFinite, poolID)
		}
	}
	return nil
}
