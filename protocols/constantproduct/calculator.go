package constantproduct

import (
	"fmt"

	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
	"github.com/hefarica/ARBITRAGEXPLUS2025/protocols"
)

// GetAmountOut prices a swap against x*y=k with the fee taken from the input:
//
//	out = in*(1-fee)*reserveOut / (reserveIn + in*(1-fee))
func GetAmountOut(amountIn float64, tokenIn string, pool engine.PoolSnapshot) (protocols.Swap, error) {
	if err := protocols.CheckAmount(amountIn); err != nil {
		return protocols.Swap{}, err
	}

	reserveIn, reserveOut, tokenOut, err := protocols.GetReserves(tokenIn, pool)
	if err != nil {
		return protocols.Swap{}, err
	}
	if err := protocols.CheckReserves(pool.ID, reserveIn, reserveOut); err != nil {
		return protocols.Swap{}, err
	}

	fee := pool.Fee()
	amountInWithFee := amountIn * (1 - fee)
	amountOut := (amountInWithFee * reserveOut) / (reserveIn + amountInWithFee)
	spot := reserveOut / reserveIn

	if err := protocols.CheckFinite(pool.ID, amountOut, spot); err != nil {
		return protocols.Swap{}, err
	}

	return protocols.Swap{
		TokenOut:  tokenOut,
		AmountOut: amountOut,
		FeeAmount: amountIn * fee,
		FeeToken:  tokenIn,
		SpotPrice: spot,
	}, nil
}

// GetAmountIn calculates the input required to receive amountOut.
func GetAmountIn(amountOut float64, tokenIn string, pool engine.PoolSnapshot) (float64, error) {
	if err := protocols.CheckAmount(amountOut); err != nil {
		return 0, err
	}

	reserveIn, reserveOut, _, err := protocols.GetReserves(tokenIn, pool)
	if err != nil {
		return 0, err
	}
	if err := protocols.CheckReserves(pool.ID, reserveIn, reserveOut); err != nil {
		return 0, err
	}
	if amountOut >= reserveOut {
		return 0, fmt.Errorf("%w: requested amountOut (%v) is >= reserveOut (%v)", protocols.ErrInsufficientLiquidity, amountOut, reserveOut)
	}

	// amountIn = reserveIn * amountOut / ((reserveOut - amountOut) * (1 - fee))
	amountIn := (reserveIn * amountOut) / ((reserveOut - amountOut) * (1 - pool.Fee()))
	if err := protocols.CheckFinite(pool.ID, amountIn); err != nil {
		return 0, err
	}
	return amountIn, nil
}
