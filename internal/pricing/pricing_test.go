package pricing

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nexusdex/arbengine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteConstantProduct_Basic(t *testing.T) {
	reserveIn := big.NewInt(1_000_000_000000) // 1,000,000 USDC (6dp)
	reserveOut := new(big.Int).Mul(big.NewInt(500), big.NewInt(1_000000000000000000)) // 500 WETH (18dp)
	amountIn := big.NewInt(1000_000000) // 1000 USDC

	out := QuoteConstantProduct(amountIn, reserveIn, reserveOut, 30)
	assert.True(t, out.Sign() > 0)
	assert.True(t, out.Cmp(reserveOut) < 0, "output must be less than total reserve")
}

func TestQuoteConstantProduct_ZeroInput(t *testing.T) {
	out := QuoteConstantProduct(big.NewInt(0), big.NewInt(100), big.NewInt(100), 30)
	assert.Equal(t, big.NewInt(0), out)
}

func TestQuote_DispatchesByKind(t *testing.T) {
	tokenA := types.Token{Address: common.HexToAddress("0xA")}
	tokenB := types.Token{Address: common.HexToAddress("0xB")}

	cpmmPool := types.PoolInfo{
		Tokens:         [2]types.Token{tokenA, tokenB},
		FeeBasisPoints: 30,
		Kind:           types.PoolConstantProduct,
		Reserves:       [2]*big.Int{big.NewInt(1_000_000), big.NewInt(1_000_000)},
	}
	out, err := Quote(cpmmPool, tokenA, big.NewInt(1000))
	require.NoError(t, err)
	assert.True(t, out.Sign() > 0)

	clPool := types.PoolInfo{
		Tokens:         [2]types.Token{tokenA, tokenB},
		FeeBasisPoints: 5,
		Kind:           types.PoolConcentratedLiquidity,
		ConcentratedLiquidity: &types.ConcentratedLiquidityState{
			SqrtPriceX96: TickToSqrtPriceX96(0),
			Liquidity:    big.NewInt(0).Lsh(big.NewInt(1), 80),
			TickSpacing:  60,
			FeeTier:      500,
		},
	}
	out, err = Quote(clPool, tokenA, big.NewInt(1_000_000))
	require.NoError(t, err)
	assert.True(t, out.Sign() > 0)
}

func TestQuote_UnknownKind(t *testing.T) {
	tokenA := types.Token{Address: common.HexToAddress("0xA")}
	tokenB := types.Token{Address: common.HexToAddress("0xB")}
	pool := types.PoolInfo{Tokens: [2]types.Token{tokenA, tokenB}, Kind: "bogus"}
	_, err := Quote(pool, tokenA, big.NewInt(1))
	assert.Error(t, err)
}

func TestSqrtPriceToPrice_TickZeroIsUnity(t *testing.T) {
	sqrtP := TickToSqrtPriceX96(0)
	price := SqrtPriceToPrice(sqrtP)
	f, _ := price.Float64()
	assert.InDelta(t, 1.0, f, 0.001)
}

func TestCalculateTickBounds(t *testing.T) {
	lower, upper, err := CalculateTickBounds(-249587, 2, 200)
	require.NoError(t, err)
	assert.Equal(t, int32(-249800), lower)
	assert.Equal(t, int32(-249000), upper)
}

func TestCalculateTickBounds_InvalidSpacing(t *testing.T) {
	_, _, err := CalculateTickBounds(0, 1, 0)
	assert.Error(t, err)
}
