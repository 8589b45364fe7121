// Package validation screens discovered opportunities through a fixed
// chain: slippage, liquidity, price impact, gas economics, token safety,
// price consistency and (optional) simulation, short-circuiting on the
// first failure. Each check annotates the opportunity's metadata; the
// surviving confidence is the minimum over all per-check contributions.
package validation

import (
	"context"
	"math"
	"math/big"
	"time"

	"github.com/nexusdex/arbengine/internal/types"
	"github.com/nexusdex/arbengine/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LiquiditySource reports USD-denominated liquidity for a pool.
type LiquiditySource interface {
	LiquidityUSD(ctx context.Context, pool types.PoolInfo) (decimal.Decimal, error)
}

// Config carries every validator threshold.
type Config struct {
	MaxSlippagePercent       float64
	MinLiquidityUSD          float64
	MaxPriceImpactPercent    float64
	MaxGasPercentage         float64
	GasPriceBufferPercent    float64
	PriceVerificationSources int
	MaxPriceAgeSeconds       int
	EnableSimulation         bool
	MinConfidenceThreshold   float64
	MaxPriceManipulationRisk float64
	ValidatorTimeout         time.Duration
	TokenBlacklist           map[string]bool
}

// DefaultConfig returns the stock validator thresholds.
func DefaultConfig() Config {
	return Config{
		MaxSlippagePercent:       0.5,
		MinLiquidityUSD:          10_000,
		MaxPriceImpactPercent:    1.0,
		MaxGasPercentage:         50.0,
		GasPriceBufferPercent:    20.0,
		PriceVerificationSources: 1,
		MaxPriceAgeSeconds:       15,
		EnableSimulation:         true,
		MinConfidenceThreshold:   0.5,
		MaxPriceManipulationRisk: 0.5,
		ValidatorTimeout:         10 * time.Second,
		TokenBlacklist:           map[string]bool{},
	}
}

// result is what each chain step reports: pass/fail, the rejection reason
// on failure, and a per-check confidence contribution on success.
type result struct {
	ok         bool
	reason     string
	confidence float64 // in [0,1], only meaningful when ok
}

func pass(confidence float64) result { return result{ok: true, confidence: confidence} }
func fail(reason string) result      { return result{ok: false, reason: reason} }

// Engine runs the validator chain against opportunities.
type Engine struct {
	cfg       Config
	liquidity LiquiditySource
	log       *logger.Logger
}

// New constructs a validation Engine.
func New(cfg Config, liquidity LiquiditySource, log *logger.Logger) *Engine {
	return &Engine{cfg: cfg, liquidity: liquidity, log: log}
}

// Validate runs the fixed-order validator chain against opp, mutating it in
// place (rejection reason, status, confidence, metadata) and returning it.
// A per-opportunity timeout governs the whole chain; on expiry the
// opportunity is rejected with ErrTimeout.
func (e *Engine) Validate(ctx context.Context, opp *types.Opportunity, market types.MarketCondition) *types.Opportunity {
	timeout := e.cfg.ValidatorTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.runChain(runCtx, opp, market)
		done <- outcome{res, err}
	}()

	select {
	case <-runCtx.Done():
		opp.Reject(types.ErrTimeout, "validator chain exceeded timeout")
		return opp
	case o := <-done:
		if o.err != nil {
			opp.Reject(types.ErrSimulationFailed, o.err.Error())
			return opp
		}
		if !o.res.ok {
			opp.Reject(types.ErrUnprofitable, o.res.reason)
			return opp
		}
		opp.Confidence = decimal.NewFromFloat(o.res.confidence)
		opp.Status = types.StatusPending
		opp.Metadata["validation_status"] = "validated"
		opp.Metadata["validator"] = "chain"
		return opp
	}
}

// runChain executes every check in fixed order, short-circuiting on the
// first failure, and returns the clamped
// min(base_confidence, min(per-validator confidence)).
func (e *Engine) runChain(ctx context.Context, opp *types.Opportunity, market types.MarketCondition) (result, error) {
	baseConfidence := 1.0
	minConfidence := baseConfidence

	checks := []func(context.Context, *types.Opportunity, types.MarketCondition) result{
		e.validateSlippage,
		e.validateLiquidity,
		e.validatePriceImpact,
		e.validateGasEconomics,
		e.validateTokenSafety,
		e.validatePriceConsistency,
	}

	for _, check := range checks {
		select {
		case <-ctx.Done():
			return result{}, ctx.Err()
		default:
		}
		r := check(ctx, opp, market)
		if !r.ok {
			return r, nil
		}
		if r.confidence < minConfidence {
			minConfidence = r.confidence
		}
	}

	if e.cfg.EnableSimulation {
		r := e.validateSimulation(ctx, opp, market)
		if !r.ok {
			return r, nil
		}
		if r.confidence < minConfidence {
			minConfidence = r.confidence
		}
	}

	return pass(math.Min(baseConfidence, minConfidence)), nil
}

// estimateSlippage is the depth heuristic: a 0.1% base, scaled 1.5x for
// triangular routes, multiplied by leg count, and scaled by the square
// root of trade size normalized to one whole input-token unit, capped at 2%.
func estimateSlippage(opp *types.Opportunity) float64 {
	base := 0.1
	if opp.Strategy == types.StrategyTriangular {
		base *= 1.5
	}
	base *= float64(len(opp.Route.Steps))

	normalized := normalizedSize(opp)
	multiplier := math.Max(math.Sqrt(normalized), 1.0)
	estimate := base * multiplier
	return math.Min(estimate, 2.0)
}

// estimatePriceImpact estimates the trade's own marginal-price move: a
// 0.05% base (0.8x for cross-venue), scaled by leg count and trade
// size^0.7, capped at 1.5%.
func estimatePriceImpact(opp *types.Opportunity) float64 {
	base := 0.05
	if opp.Strategy == types.StrategyCrossVenue {
		base *= 0.8
	}
	base *= float64(len(opp.Route.Steps))

	normalized := normalizedSize(opp)
	multiplier := math.Max(math.Pow(normalized, 0.7), 1.0)
	estimate := base * multiplier
	return math.Min(estimate, 1.5)
}

// normalizedSize expresses input_wei as a multiple of one whole unit
// (10**decimals) of the route's start token, the reference size the
// slippage and price-impact heuristics scale against.
func normalizedSize(opp *types.Opportunity) float64 {
	if opp.InputWei == nil || len(opp.Route.Steps) == 0 {
		return 1.0
	}
	decimals := opp.Route.StartToken().Decimals
	if decimals == 0 {
		decimals = 18
	}
	oneUnit := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	amount := new(big.Float).SetInt(opp.InputWei)
	ratio, _ := new(big.Float).Quo(amount, oneUnit).Float64()
	return ratio
}

func (e *Engine) validateSlippage(ctx context.Context, opp *types.Opportunity, market types.MarketCondition) result {
	estimated := estimateSlippage(opp)
	if estimated > e.cfg.MaxSlippagePercent {
		return fail("excessive slippage: estimated percentage exceeds max_slippage")
	}
	opp.Metadata["validated_slippage"] = estimated
	return pass(1 - estimated/100)
}

func (e *Engine) validateLiquidity(ctx context.Context, opp *types.Opportunity, market types.MarketCondition) result {
	if e.liquidity == nil {
		return pass(1)
	}
	minLiquidity := decimal.NewFromFloat(e.cfg.MinLiquidityUSD)
	var stepLiquidity []float64
	for _, step := range opp.Route.Steps {
		usd, err := e.liquidity.LiquidityUSD(ctx, step.Pool)
		if err != nil {
			return fail("liquidity lookup failed: " + err.Error())
		}
		if usd.LessThan(minLiquidity) {
			return fail("insufficient liquidity on " + step.Pool.VenueID + " for " + step.TokenIn.String() + "/" + step.TokenOut.String())
		}
		f, _ := usd.Float64()
		stepLiquidity = append(stepLiquidity, f)
	}
	opp.Metadata["step_liquidity"] = stepLiquidity
	return pass(1)
}

func (e *Engine) validatePriceImpact(ctx context.Context, opp *types.Opportunity, market types.MarketCondition) result {
	estimated := estimatePriceImpact(opp)
	if estimated > e.cfg.MaxPriceImpactPercent {
		return fail("excessive price impact: estimated percentage exceeds max_price_impact")
	}
	opp.Metadata["validated_price_impact"] = estimated
	return pass(1 - estimated/100)
}

func (e *Engine) validateGasEconomics(ctx context.Context, opp *types.Opportunity, market types.MarketCondition) result {
	gasPrice := market.GasPriceWei
	if gasPrice == nil || gasPrice.Sign() == 0 {
		gasPrice = opp.GasPriceWei
	}
	if gasPrice == nil {
		gasPrice = big.NewInt(50_000_000_000) // 50 gwei fallback
	}
	priorityFee := market.PriorityFeeWei
	if priorityFee == nil {
		priorityFee = opp.PriorityFeeWei
	}
	if priorityFee == nil {
		priorityFee = big.NewInt(1_500_000_000) // 1.5 gwei default
	}

	bufferedGasPrice := applyPercentBuffer(gasPrice, e.cfg.GasPriceBufferPercent)

	gasEstimate := opp.GasEstimate
	if gasEstimate == 0 {
		gasEstimate = 300_000
	}
	gasCost := new(big.Int).Mul(new(big.Int).SetUint64(gasEstimate), new(big.Int).Add(bufferedGasPrice, priorityFee))

	var gasPercentage float64
	if opp.ExpectedProfitWei != nil && opp.ExpectedProfitWei.Sign() > 0 {
		gasCostF := new(big.Float).SetInt(gasCost)
		profitF := new(big.Float).SetInt(opp.ExpectedProfitWei)
		ratio, _ := new(big.Float).Quo(gasCostF, profitF).Float64()
		gasPercentage = ratio * 100
	} else {
		gasPercentage = 100
	}

	if gasPercentage > e.cfg.MaxGasPercentage {
		return fail("excessive gas costs relative to expected profit")
	}

	opp.Metadata["validated_gas_price"] = bufferedGasPrice.String()
	opp.Metadata["validated_gas_cost"] = gasCost.String()
	opp.Metadata["validated_gas_percentage"] = gasPercentage
	return pass(1 - gasPercentage/100)
}

func applyPercentBuffer(amount *big.Int, percent float64) *big.Int {
	numerator := new(big.Int).Mul(amount, big.NewInt(int64((100+percent)*100)))
	return numerator.Div(numerator, big.NewInt(10_000))
}

func (e *Engine) validateTokenSafety(ctx context.Context, opp *types.Opportunity, market types.MarketCondition) result {
	for _, step := range opp.Route.Steps {
		in, out := step.TokenIn.Address.Hex(), step.TokenOut.Address.Hex()
		if e.cfg.TokenBlacklist[in] {
			return fail("blacklisted token: " + in)
		}
		if e.cfg.TokenBlacklist[out] {
			return fail("blacklisted token: " + out)
		}
	}
	opp.Metadata["token_safety_validated"] = true
	return pass(1)
}

func (e *Engine) validatePriceConsistency(ctx context.Context, opp *types.Opportunity, market types.MarketCondition) result {
	if risk, ok := opp.Metadata["price_manipulation_risk"].(float64); ok && risk > e.cfg.MaxPriceManipulationRisk {
		return fail("price manipulation risk exceeds threshold")
	}

	maxAge := e.cfg.MaxPriceAgeSeconds
	if maxAge <= 0 {
		maxAge = 15
	}
	if opp.AgeSeconds() > float64(maxAge) {
		return fail("outdated prices: opportunity age exceeds max_price_age_seconds")
	}

	opp.Metadata["price_consistency_validated"] = true
	return pass(1)
}

// validateSimulation is a dry-run: it applies the already-estimated
// slippage and a per-step DEX fee to the expected profit and rejects if
// what remains is not positive.
func (e *Engine) validateSimulation(ctx context.Context, opp *types.Opportunity, market types.MarketCondition) result {
	slippage, _ := opp.Metadata["validated_slippage"].(float64)
	profit := decimal.NewFromBigInt(opp.ExpectedProfitWei, 0)
	simulated := profit.Mul(decimal.NewFromFloat(1 - slippage/100))

	feePerLeg := decimal.NewFromFloat(0.003) // 0.3%, the chain's typical per-leg DEX fee
	steps := decimal.NewFromInt(int64(len(opp.Route.Steps)))
	retained := decimal.NewFromInt(1).Sub(feePerLeg)
	for i := int64(0); i < steps.IntPart(); i++ {
		simulated = simulated.Mul(retained)
	}

	if simulated.Sign() <= 0 {
		return fail("simulated profit is not positive after slippage and fees")
	}

	opp.Metadata["simulated_profit_wei"] = simulated.BigInt().String()
	if e.log != nil {
		e.log.Debug("simulation passed", zap.String("opportunity", opp.ID), zap.String("simulated_profit_wei", simulated.String()))
	}
	return pass(1)
}
