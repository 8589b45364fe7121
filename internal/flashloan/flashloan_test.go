package flashloan

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nexusdex/arbengine/internal/types"
	"github.com/nexusdex/arbengine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLiquidity struct {
	available map[common.Address]*big.Int
}

func (f fakeLiquidity) Available(ctx context.Context, token common.Address) (*big.Int, error) {
	if v, ok := f.available[token]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

func weth() types.Token {
	return types.Token{Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Symbol: "WETH", Decimals: 18}
}

func testLogger() *logger.Logger { return logger.New("test") }

func TestSelectorPrefersZeroFeeWhenLiquid(t *testing.T) {
	token := weth()
	amount := big.NewInt(10_000)
	zero := NewZeroFeeVaultProvider(fakeLiquidity{available: map[common.Address]*big.Int{token.Address: big.NewInt(20_000)}}, []common.Address{token.Address}, testLogger())
	aave := NewLendingPoolProvider(fakeLiquidity{available: map[common.Address]*big.Int{token.Address: big.NewInt(20_000)}}, []common.Address{token.Address}, testLogger())
	sel := NewSelector(zero, aave)

	chosen, err := sel.SelectSingle(context.Background(), token, amount)
	require.NoError(t, err)
	assert.Equal(t, "zero-fee", chosen.Name())
}

func TestSelectorFallsBackToLendingPoolWhenZeroFeeIlliquid(t *testing.T) {
	token := weth()
	amount := big.NewInt(10_000)
	zero := NewZeroFeeVaultProvider(fakeLiquidity{available: map[common.Address]*big.Int{token.Address: big.NewInt(100)}}, []common.Address{token.Address}, testLogger())
	aave := NewLendingPoolProvider(fakeLiquidity{available: map[common.Address]*big.Int{token.Address: big.NewInt(20_000)}}, []common.Address{token.Address}, testLogger())
	sel := NewSelector(zero, aave)

	chosen, err := sel.SelectSingle(context.Background(), token, amount)
	require.NoError(t, err)
	assert.Equal(t, "lending-pool", chosen.Name())
}

func TestSelectorFailsWhenNoLiquidity(t *testing.T) {
	token := weth()
	amount := big.NewInt(10_000)
	zero := NewZeroFeeVaultProvider(fakeLiquidity{}, []common.Address{token.Address}, testLogger())
	aave := NewLendingPoolProvider(fakeLiquidity{}, []common.Address{token.Address}, testLogger())
	sel := NewSelector(zero, aave)

	_, err := sel.SelectSingle(context.Background(), token, amount)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrNoLiquidity, kind)
}

func TestCheckLiquidityExactAmountPasses(t *testing.T) {
	token := weth()
	amount := big.NewInt(10_000)
	zero := NewZeroFeeVaultProvider(fakeLiquidity{available: map[common.Address]*big.Int{token.Address: big.NewInt(10_000)}}, []common.Address{token.Address}, testLogger())
	ok, err := zero.CheckLiquidity(context.Background(), token, amount)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFeeRatesMatchAaveAndBalancerConstants(t *testing.T) {
	token := weth()
	zero := NewZeroFeeVaultProvider(fakeLiquidity{}, nil, testLogger())
	aave := NewLendingPoolProvider(fakeLiquidity{}, nil, testLogger())

	zRate, _ := zero.FeeRate(context.Background(), token, big.NewInt(1))
	aRate, _ := aave.FeeRate(context.Background(), token, big.NewInt(1))

	assert.True(t, zRate.Equal(feeBuffer))
	assert.True(t, aRate.Equal(aaveBaseRate.Add(feeBuffer)))
}

func TestExecuteInvokesCallbackAndReportsFees(t *testing.T) {
	token := weth()
	amount := big.NewInt(1_000_000)
	aave := NewLendingPoolProvider(fakeLiquidity{}, nil, testLogger())

	req := types.FlashLoanRequest{TokenAmounts: []types.TokenAmount{{Token: token, AmountWei: amount}}}
	res, err := aave.Execute(context.Background(), req, func(ctx context.Context, tokens []types.Token, amounts, fees []*big.Int, userData []byte) error {
		assert.Equal(t, amount, amounts[0])
		assert.True(t, fees[0].Sign() > 0)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.FeesPaid, token.Address)
}

func TestExecuteReportsFailureWhenCallbackErrors(t *testing.T) {
	token := weth()
	amount := big.NewInt(1_000_000)
	zero := NewZeroFeeVaultProvider(fakeLiquidity{}, nil, testLogger())

	req := types.FlashLoanRequest{TokenAmounts: []types.TokenAmount{{Token: token, AmountWei: amount}}}
	res, err := zero.Execute(context.Background(), req, func(ctx context.Context, tokens []types.Token, amounts, fees []*big.Int, userData []byte) error {
		return assertErr
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

var assertErr = &testError{"insufficient repayment"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
