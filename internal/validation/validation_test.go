package validation

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nexusdex/arbengine/internal/types"
	"github.com/nexusdex/arbengine/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLiquidity struct {
	usd   decimal.Decimal
	err   error
	delay time.Duration
}

func (f *fakeLiquidity) LiquidityUSD(ctx context.Context, pool types.PoolInfo) (decimal.Decimal, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.usd, f.err
}

func token(addr string, symbol string) types.Token {
	return types.Token{Address: common.HexToAddress(addr), Symbol: symbol, Decimals: 18}
}

func pool(venue, addr string, a, b types.Token) types.PoolInfo {
	return types.PoolInfo{
		PoolAddress:    common.HexToAddress(addr),
		VenueID:        venue,
		Tokens:         [2]types.Token{a, b},
		FeeBasisPoints: 30,
		Reserves:       [2]*big.Int{big.NewInt(1_000_000), big.NewInt(1_000_000)},
		Kind:           types.PoolConstantProduct,
	}
}

// crossVenueOpp builds a two-leg cross-venue opportunity buying on venue-x
// and selling on venue-y with the given whole-token input size.
func crossVenueOpp(inputUnits int64, profitWei *big.Int) *types.Opportunity {
	weth := token("0x000000000000000000000000000000000000000a", "WETH")
	usdc := token("0x000000000000000000000000000000000000000b", "USDC")
	buy := pool("venue-x", "0x000000000000000000000000000000000000001a", weth, usdc)
	sell := pool("venue-y", "0x000000000000000000000000000000000000001b", usdc, weth)

	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	input := new(big.Int).Mul(big.NewInt(inputUnits), unit)

	route := types.Route{Steps: []types.TradeStep{
		{Pool: buy, TokenIn: weth, TokenOut: usdc, ExpectedOutWei: big.NewInt(1), MinOutWei: big.NewInt(1)},
		{Pool: sell, TokenIn: usdc, TokenOut: weth, ExpectedOutWei: new(big.Int).Add(input, profitWei), MinOutWei: input},
	}}
	o := types.NewOpportunity(types.StrategyCrossVenue, route, input, new(big.Int).Add(input, profitWei), profitWei)
	o.GasEstimate = 300_000
	return o
}

func freshMarket() types.MarketCondition {
	return types.MarketCondition{
		Timestamp:      time.Now(),
		GasPriceWei:    big.NewInt(1_000_000_000), // 1 gwei
		PriorityFeeWei: big.NewInt(100_000_000),
		BaseFeeWei:     big.NewInt(900_000_000),
	}
}

func TestValidate_PassesAndAnnotates(t *testing.T) {
	e := New(DefaultConfig(), &fakeLiquidity{usd: decimal.NewFromInt(100_000)}, logger.New("test"))
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	opp := crossVenueOpp(1, unit) // 1 WETH profit on 1 WETH input, gas is negligible

	out := e.Validate(context.Background(), opp, freshMarket())

	require.Equal(t, types.StatusPending, out.Status)
	assert.Empty(t, out.RejectionReason)
	assert.Equal(t, "validated", out.Metadata["validation_status"])
	assert.Equal(t, true, out.Metadata["token_safety_validated"])
	assert.Equal(t, true, out.Metadata["price_consistency_validated"])
	assert.Contains(t, out.Metadata, "validated_slippage")
	assert.Contains(t, out.Metadata, "validated_price_impact")
	assert.Contains(t, out.Metadata, "validated_gas_percentage")
	assert.Contains(t, out.Metadata, "simulated_profit_wei")

	assert.True(t, out.Confidence.GreaterThanOrEqual(decimal.Zero))
	assert.True(t, out.Confidence.LessThanOrEqual(decimal.NewFromInt(1)))
}

func TestValidate_RejectsExcessiveSlippageForLargeInput(t *testing.T) {
	e := New(DefaultConfig(), &fakeLiquidity{usd: decimal.NewFromInt(100_000)}, logger.New("test"))
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// 1 WETH passes the depth heuristic, 100 WETH exhausts it.
	small := e.Validate(context.Background(), crossVenueOpp(1, unit), freshMarket())
	require.Equal(t, types.StatusPending, small.Status)

	large := e.Validate(context.Background(), crossVenueOpp(100, unit), freshMarket())
	require.Equal(t, types.StatusFailed, large.Status)
	assert.Contains(t, large.RejectionReason, "slippage")
}

func TestValidate_RejectsExcessiveGasCosts(t *testing.T) {
	e := New(DefaultConfig(), &fakeLiquidity{usd: decimal.NewFromInt(100_000)}, logger.New("test"))
	// Expected profit 1e14 wei against a projected gas cost of
	// 300000 * (1.2 gwei buffered price + 0.1 gwei priority fee) = 3.9e14 wei.
	opp := crossVenueOpp(1, big.NewInt(100_000_000_000_000))

	out := e.Validate(context.Background(), opp, freshMarket())
	require.Equal(t, types.StatusFailed, out.Status)
	assert.Contains(t, out.RejectionReason, "gas costs")
	assert.Equal(t, string(types.ErrUnprofitable), out.Metadata["rejection_kind"])
}

func TestValidate_RejectsInsufficientLiquidity(t *testing.T) {
	e := New(DefaultConfig(), &fakeLiquidity{usd: decimal.NewFromInt(500)}, logger.New("test"))
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	out := e.Validate(context.Background(), crossVenueOpp(1, unit), freshMarket())
	require.Equal(t, types.StatusFailed, out.Status)
	assert.Contains(t, out.RejectionReason, "liquidity")
}

func TestValidate_RejectsBlacklistedToken(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TokenBlacklist = map[string]bool{
		common.HexToAddress("0x000000000000000000000000000000000000000b").Hex(): true,
	}
	e := New(cfg, &fakeLiquidity{usd: decimal.NewFromInt(100_000)}, logger.New("test"))
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	out := e.Validate(context.Background(), crossVenueOpp(1, unit), freshMarket())
	require.Equal(t, types.StatusFailed, out.Status)
	assert.Contains(t, out.RejectionReason, "blacklisted")
}

func TestValidate_RejectsStaleOpportunity(t *testing.T) {
	e := New(DefaultConfig(), &fakeLiquidity{usd: decimal.NewFromInt(100_000)}, logger.New("test"))
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	opp := crossVenueOpp(1, unit)
	opp.DiscoveredAt = time.Now().Add(-time.Minute)

	out := e.Validate(context.Background(), opp, freshMarket())
	require.Equal(t, types.StatusFailed, out.Status)
	assert.Contains(t, out.RejectionReason, "outdated prices")
}

func TestValidate_RejectsHighPriceManipulationRisk(t *testing.T) {
	e := New(DefaultConfig(), &fakeLiquidity{usd: decimal.NewFromInt(100_000)}, logger.New("test"))
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	opp := crossVenueOpp(1, unit)
	opp.Metadata["price_manipulation_risk"] = 0.8

	out := e.Validate(context.Background(), opp, freshMarket())
	require.Equal(t, types.StatusFailed, out.Status)
	assert.Contains(t, out.RejectionReason, "manipulation")
}

func TestValidate_TimeoutRejects(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ValidatorTimeout = 50 * time.Millisecond
	e := New(cfg, &fakeLiquidity{usd: decimal.NewFromInt(100_000), delay: time.Second}, logger.New("test"))
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	out := e.Validate(context.Background(), crossVenueOpp(1, unit), freshMarket())
	require.Equal(t, types.StatusFailed, out.Status)
	assert.Contains(t, out.RejectionReason, "timeout")
}

// Validating an already-validated opportunity must not change its outcome:
// same terminal state, same confidence, metadata stable.
func TestValidate_IdempotentOnValidatedOpportunity(t *testing.T) {
	e := New(DefaultConfig(), &fakeLiquidity{usd: decimal.NewFromInt(100_000)}, logger.New("test"))
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	opp := crossVenueOpp(1, unit)

	first := e.Validate(context.Background(), opp, freshMarket())
	require.Equal(t, types.StatusPending, first.Status)
	confidence := first.Confidence
	slippage := first.Metadata["validated_slippage"]

	second := e.Validate(context.Background(), first, freshMarket())
	assert.Equal(t, types.StatusPending, second.Status)
	assert.True(t, confidence.Equal(second.Confidence))
	assert.Equal(t, slippage, second.Metadata["validated_slippage"])
}

func TestValidate_SimulationDisabledSkipsSimulation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableSimulation = false
	e := New(cfg, &fakeLiquidity{usd: decimal.NewFromInt(100_000)}, logger.New("test"))
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	out := e.Validate(context.Background(), crossVenueOpp(1, unit), freshMarket())
	require.Equal(t, types.StatusPending, out.Status)
	assert.NotContains(t, out.Metadata, "simulated_profit_wei")
}

func TestMarketLiquiditySource_ScalesNormalizedLevels(t *testing.T) {
	weth := token("0x000000000000000000000000000000000000000a", "WETH")
	usdc := token("0x000000000000000000000000000000000000000b", "USDC")
	p := pool("venue-x", "0x000000000000000000000000000000000000001a", weth, usdc)

	src := NewMarketLiquiditySource(staticMarket{types.MarketCondition{
		LiquidityLevels: map[common.Address]decimal.Decimal{
			p.PoolAddress: decimal.NewFromFloat(0.5),
		},
	}}, decimal.NewFromInt(200_000))

	usd, err := src.LiquidityUSD(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, usd.Equal(decimal.NewFromInt(100_000)))

	unknown := pool("venue-x", "0x000000000000000000000000000000000000002a", weth, usdc)
	usd, err = src.LiquidityUSD(context.Background(), unknown)
	require.NoError(t, err)
	assert.True(t, usd.IsZero())
}

type staticMarket struct{ m types.MarketCondition }

func (s staticMarket) Current() types.MarketCondition { return s.m }
