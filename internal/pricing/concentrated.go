package pricing

import (
	"math"
	"math/big"

	"github.com/nexusdex/arbengine/internal/types"
)

// q96 is 2^96, the fixed-point base for Uniswap-V3-style sqrtPriceX96 values.
var q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// TickToSqrtPriceX96 converts a tick to its sqrtPriceX96 representation:
// price(tick) = 1.0001^tick and sqrtPrice = sqrt(price) * 2^96.
func TickToSqrtPriceX96(tick int32) *big.Int {
	price := math.Pow(1.0001, float64(tick))
	sqrtPrice := math.Sqrt(price)

	f := new(big.Float).SetFloat64(sqrtPrice)
	f.Mul(f, new(big.Float).SetInt(q96))
	result, _ := f.Int(nil)
	return result
}

// SqrtPriceToPrice converts a sqrtPriceX96 value back to a price, per the
// glossary relation price = (sqrtPrice/2^96)^2.
func SqrtPriceToPrice(sqrtPriceX96 *big.Int) *big.Float {
	ratio := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), new(big.Float).SetInt(q96))
	return new(big.Float).Mul(ratio, ratio)
}

// CalculateTickBounds returns a symmetric [lower, upper] tick range of the
// given width (in tick-spacing multiples) around currentTick, both bounds
// snapped to tickSpacing.
func CalculateTickBounds(currentTick int32, rangeWidth, tickSpacing int32) (lower, upper int32, err error) {
	if tickSpacing <= 0 {
		return 0, 0, types.NewError(types.ErrConfig, "pricing: tickSpacing must be > 0")
	}
	snapped := (currentTick / tickSpacing) * tickSpacing
	lower = snapped - rangeWidth*tickSpacing
	upper = snapped + rangeWidth*tickSpacing
	return lower, upper, nil
}

// QuoteConcentratedLiquidity approximates a swap against a single active
// tick's liquidity, without modeling tick crossing: within one tick range,
// Uniswap V3's invariant is L = liquidity, constant across the range, so
// for a token0-in swap the post-swap sqrtPrice is
//
//	sqrtP' = L*sqrtP / (L + amountIn*sqrtP/2^96)
//
// and amountOut (token1) = L*(sqrtP - sqrtP') / 2^96. Swaps sized larger
// than the current tick's depth return the full single-tick output (the
// caller's liquidity-sufficiency validator is expected to reject sizes
// that would cross ticks).
func QuoteConcentratedLiquidity(pool types.PoolInfo, tokenIn types.Token, amountIn *big.Int) (*big.Int, error) {
	cl := pool.ConcentratedLiquidity
	if cl == nil || cl.Liquidity == nil || cl.Liquidity.Sign() <= 0 || cl.SqrtPriceX96 == nil {
		return nil, types.NewError(types.ErrStaleData, "pricing: missing concentrated-liquidity state for "+pool.PoolAddress.Hex())
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return big.NewInt(0), nil
	}

	feeMultiplier := big.NewInt(int64(feeBpsDenominator - pool.FeeBasisPoints))
	amountInAfterFee := new(big.Int).Div(new(big.Int).Mul(amountIn, feeMultiplier), big.NewInt(feeBpsDenominator))

	zeroForOne := pool.Tokens[0].Address == tokenIn.Address
	L := cl.Liquidity
	sqrtP := cl.SqrtPriceX96

	if zeroForOne {
		// sqrtP' = L*sqrtP / (L + amountIn*sqrtP/Q96)
		numerator := new(big.Int).Mul(L, sqrtP)
		deltaTerm := new(big.Int).Div(new(big.Int).Mul(amountInAfterFee, sqrtP), q96)
		denominator := new(big.Int).Add(L, deltaTerm)
		if denominator.Sign() == 0 {
			return big.NewInt(0), nil
		}
		sqrtPNext := new(big.Int).Div(numerator, denominator)

		// amountOut = L*(sqrtP - sqrtP')/Q96
		diff := new(big.Int).Sub(sqrtP, sqrtPNext)
		if diff.Sign() <= 0 {
			return big.NewInt(0), nil
		}
		amountOut := new(big.Int).Div(new(big.Int).Mul(L, diff), q96)
		return amountOut, nil
	}

	// One-for-zero: sqrtP' = sqrtP + amountIn*Q96/L
	deltaTerm := new(big.Int).Div(new(big.Int).Mul(amountInAfterFee, q96), L)
	sqrtPNext := new(big.Int).Add(sqrtP, deltaTerm)

	// amountOut (token0) = L*(1/sqrtP - 1/sqrtP')*Q96 = L*Q96*(sqrtP'-sqrtP)/(sqrtP*sqrtP')
	diff := new(big.Int).Sub(sqrtPNext, sqrtP)
	if diff.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	numerator := new(big.Int).Mul(L, q96)
	numerator.Mul(numerator, diff)
	denominator := new(big.Int).Mul(sqrtP, sqrtPNext)
	if denominator.Sign() == 0 {
		return big.NewInt(0), nil
	}
	amountOut := new(big.Int).Div(numerator, denominator)
	return amountOut, nil
}
