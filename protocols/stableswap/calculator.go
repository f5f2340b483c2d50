package stableswap

import (
	"fmt"

	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
	"github.com/hefarica/ARBITRAGEXPLUS2025/protocols"
)

// SpotPrice is the marginal price assumed for a stableswap pair.
const SpotPrice = 1.0

// GetAmountOut prices a swap against a simplified stableswap invariant.
// D is approximated as reserveIn + reserveOut and the amplification factor A
// flattens the curve around the balanced point:
//
//	newReserveOut = reserveOut - in*reserveOut / (reserveIn + in*2A/D)
//	out = (reserveOut - newReserveOut) * (1 - fee)
//
// The fee is taken from the output.
func GetAmountOut(amountIn float64, tokenIn string, pool engine.PoolSnapshot) (protocols.Swap, error) {
	if err := protocols.CheckAmount(amountIn); err != nil {
		return protocols.Swap{}, err
	}

	amp := pool.Params.Amplification
	if amp <= 0 {
		return protocols.Swap{}, fmt.Errorf("%w: stableswap pool %s has no amplification factor", protocols.ErrMissingParameters, pool.ID)
	}

	reserveIn, reserveOut, tokenOut, err := protocols.GetReserves(tokenIn, pool)
	if err != nil {
		return protocols.Swap{}, err
	}
	if err := protocols.CheckReserves(pool.ID, reserveIn, reserveOut); err != nil {
		return protocols.Swap{}, err
	}

	d := reserveIn + reserveOut
	ann := amp * 2
	newReserveOut := reserveOut - (amountIn*reserveOut)/(reserveIn+amountIn*ann/d)
	gross := reserveOut - newReserveOut
	if gross >= reserveOut {
		return protocols.Swap{}, fmt.Errorf("%w: stableswap pool %s cannot pay %v of %v reserve", protocols.ErrInsufficientLiquidity, pool.ID, gross, reserveOut)
	}
	feeAmount := gross * pool.Fee()
	amountOut := gross - feeAmount

	if err := protocols.CheckFinite(pool.ID, amountOut, feeAmount); err != nil {
		return protocols.Swap{}, err
	}

	return protocols.Swap{
		TokenOut:  tokenOut,
		AmountOut: amountOut,
		FeeAmount: feeAmount,
		FeeToken:  tokenOut,
		SpotPrice: SpotPrice,
	}, nil
}
