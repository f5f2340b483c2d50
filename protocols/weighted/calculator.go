package weighted

import (
	"fmt"
	"math"

	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
	"github.com/hefarica/ARBITRAGEXPLUS2025/protocols"
)

// GetWeights returns the weights of the input and output side.
func GetWeights(tokenIn string, pool engine.PoolSnapshot) (weightIn, weightOut float64, err error) {
	wa, wb := pool.Params.WeightA, pool.Params.WeightB
	if wa <= 0 || wb <= 0 {
		return 0, 0, fmt.Errorf("%w: weighted pool %s needs two positive weights", protocols.ErrMissingParameters, pool.ID)
	}
	if tokenIn == pool.TokenB {
		return wb, wa, nil
	}
	return wa, wb, nil
}

// GetAmountOut prices a swap against a two-token weighted pool:
//
//	out = reserveOut * (1 - (reserveIn/(reserveIn+in))^(wIn/wOut)) * (1 - fee)
//
// The fee is taken from the output. Spot price is (reserveOut/wOut)/(reserveIn/wIn).
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

	weightIn, weightOut, err := GetWeights(tokenIn, pool)
	if err != nil {
		return protocols.Swap{}, err
	}

	ratio := reserveIn / (reserveIn + amountIn)
	gross := reserveOut * (1 - math.Pow(ratio, weightIn/weightOut))
	feeAmount := gross * pool.Fee()
	amountOut := gross - feeAmount
	spot := (reserveOut / weightOut) / (reserveIn / weightIn)

	if err := protocols.CheckFinite(pool.ID, amountOut, feeAmount, spot); err != nil {
		return protocols.Swap{}, err
	}

	return protocols.Swap{
		TokenOut:  tokenOut,
		AmountOut: amountOut,
		FeeAmount: feeAmount,
		FeeToken:  tokenOut,
		SpotPrice: spot,
	}, nil
}
