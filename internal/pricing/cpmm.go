// Package pricing implements the per-PoolKind swap math: constant-product
// (x*y=k) pools and concentrated-liquidity (Uniswap-V3-shaped
// sqrtPriceX96/tick) pools, dispatched through Quote.
package pricing

import (
	"math/big"

	"github.com/nexusdex/arbengine/internal/types"
)

const feeBpsDenominator = 10_000

// QuoteConstantProduct implements the CPMM formula:
//
//	out = in * reserveOut * (1 - fee) / (reserveIn + in * (1 - fee))
//
// feeBasisPoints is hundredths of a percent (30 == 0.30%).
func QuoteConstantProduct(amountIn, reserveIn, reserveOut *big.Int, feeBasisPoints int32) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 || reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return big.NewInt(0)
	}

	feeMultiplier := big.NewInt(int64(feeBpsDenominator - feeBasisPoints))
	amountInAfterFee := new(big.Int).Mul(amountIn, feeMultiplier)

	numerator := new(big.Int).Mul(amountInAfterFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(feeBpsDenominator))
	denominator.Add(denominator, amountInAfterFee)

	if denominator.Sign() == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Div(numerator, denominator)
}

// PriceRatioConstantProduct returns reserveOut/reserveIn adjusted for fee,
// the marginal (infinitesimal-size) exchange rate of the pool.
func PriceRatioConstantProduct(reserveIn, reserveOut *big.Int, feeBasisPoints int32) *big.Float {
	if reserveIn == nil || reserveIn.Sign() == 0 {
		return big.NewFloat(0)
	}
	ratio := new(big.Float).Quo(new(big.Float).SetInt(reserveOut), new(big.Float).SetInt(reserveIn))
	fee := big.NewFloat(1 - float64(feeBasisPoints)/feeBpsDenominator)
	return ratio.Mul(ratio, fee)
}

// Quote dispatches to the swap-math implementation appropriate for pool.Kind.
// Stable pools are quoted with the constant-product formula as a
// conservative approximation (StableSwap's invariant curve is flatter near
// the peg, so this slightly understates output; validation re-checks
// slippage and price impact against actual pool state).
func Quote(pool types.PoolInfo, tokenIn types.Token, amountIn *big.Int) (*big.Int, error) {
	switch pool.Kind {
	case types.PoolConcentratedLiquidity:
		return QuoteConcentratedLiquidity(pool, tokenIn, amountIn)
	case types.PoolConstantProduct, types.PoolStable:
		reserveIn, reserveOut, err := orderedReserves(pool, tokenIn)
		if err != nil {
			return nil, err
		}
		return QuoteConstantProduct(amountIn, reserveIn, reserveOut, pool.FeeBasisPoints), nil
	default:
		return nil, types.NewError(types.ErrConfig, "pricing: unknown pool kind "+string(pool.Kind))
	}
}

func orderedReserves(pool types.PoolInfo, tokenIn types.Token) (reserveIn, reserveOut *big.Int, err error) {
	if pool.Reserves[0] == nil || pool.Reserves[1] == nil {
		return nil, nil, types.NewError(types.ErrStaleData, "pricing: pool reserves unavailable for "+pool.PoolAddress.Hex())
	}
	if pool.Tokens[0].Address == tokenIn.Address {
		return pool.Reserves[0], pool.Reserves[1], nil
	}
	return pool.Reserves[1], pool.Reserves[0], nil
}
