// Package types holds the data model shared across every pipeline stage:
// tokens, pools, routes, opportunities, market conditions, execution
// results and the error/status taxonomy. Monetary amounts are *big.Int wei,
// never float64; prices, ratios and confidence scores that are only ever
// compared (never added to a wei amount) use shopspring/decimal.
package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Token identifies an ERC-20-shaped asset. Decimals must be in (0,18].
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// Validate enforces the 0 < decimals <= 18 invariant.
func (t Token) Validate() error {
	if t.Decimals == 0 || t.Decimals > 18 {
		return NewError(ErrConfig, fmt.Sprintf("token %s: decimals must be in (0,18], got %d", t.Symbol, t.Decimals))
	}
	return nil
}

func (t Token) String() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address.Hex()
}

// TokenAmount pairs a Token with a non-negative wei amount.
type TokenAmount struct {
	Token     Token
	AmountWei *big.Int
}

// Validate enforces amount_wei >= 0.
func (a TokenAmount) Validate() error {
	if a.AmountWei == nil || a.AmountWei.Sign() < 0 {
		return NewError(ErrConfig, fmt.Sprintf("token amount for %s must be >= 0", a.Token))
	}
	return nil
}

// ConcentratedLiquidityState carries the extra pricing state a
// concentrated-liquidity pool needs beyond reserves.
type ConcentratedLiquidityState struct {
	SqrtPriceX96 *big.Int
	Tick         int32
	Liquidity    *big.Int
	TickSpacing  int32
	FeeTier      int32 // hundredths of a basis point, Uniswap-V3 style (500/3000/10000)
}

// PoolInfo describes a single liquidity pool. Kind dispatches the pricing
// math in internal/pricing; ConcentratedLiquidity is populated only when
// Kind == PoolConcentratedLiquidity.
type PoolInfo struct {
	PoolAddress       common.Address
	VenueID           string
	Tokens            [2]Token
	FeeBasisPoints    int32
	Reserves          [2]*big.Int // may be nil when unknown; constant-product/stable pools populate this
	Kind              PoolKind
	ConcentratedLiquidity *ConcentratedLiquidityState
}

// ContainsPair reports whether the pool can swap directly between in and out.
func (p PoolInfo) ContainsPair(in, out common.Address) bool {
	hasIn, hasOut := false, false
	for _, t := range p.Tokens {
		if t.Address == in {
			hasIn = true
		}
		if t.Address == out {
			hasOut = true
		}
	}
	return hasIn && hasOut
}

// TradeStep is one hop of a Route.
type TradeStep struct {
	Pool           PoolInfo
	TokenIn        Token
	TokenOut       Token
	ExpectedOutWei *big.Int
	MinOutWei      *big.Int
	MaxSlippage    decimal.Decimal
}

// Route is an ordered sequence of TradeSteps forming a (possibly cyclic) path.
type Route struct {
	Steps []TradeStep
}

// Validate enforces the route invariants: token continuity, pool
// membership, and (for cyclic routes) closure.
func (r Route) Validate() error {
	if len(r.Steps) == 0 {
		return NewError(ErrConfig, "route must have at least one step")
	}
	for i, step := range r.Steps {
		if !step.Pool.ContainsPair(step.TokenIn.Address, step.TokenOut.Address) {
			return NewError(ErrConfig, fmt.Sprintf("route step %d: pool %s does not contain both %s and %s", i, step.Pool.PoolAddress, step.TokenIn, step.TokenOut))
		}
		if i > 0 && r.Steps[i-1].TokenOut.Address != step.TokenIn.Address {
			return NewError(ErrConfig, fmt.Sprintf("route step %d: token continuity broken, step %d outputs %s but step %d inputs %s", i, i-1, r.Steps[i-1].TokenOut, i, step.TokenIn))
		}
	}
	return nil
}

// IsCyclic reports whether the route starts and ends on the same token.
func (r Route) IsCyclic() bool {
	if len(r.Steps) == 0 {
		return false
	}
	return r.Steps[0].TokenIn.Address == r.Steps[len(r.Steps)-1].TokenOut.Address
}

// StartToken and EndToken expose the route's boundary tokens.
func (r Route) StartToken() Token { return r.Steps[0].TokenIn }
func (r Route) EndToken() Token   { return r.Steps[len(r.Steps)-1].TokenOut }

// Venues returns the distinct venue ids touched by the route.
func (r Route) Venues() []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range r.Steps {
		if !seen[s.Pool.VenueID] {
			seen[s.Pool.VenueID] = true
			out = append(out, s.Pool.VenueID)
		}
	}
	return out
}

// Opportunity is a discovered, not-yet-executed arbitrage candidate.
type Opportunity struct {
	ID                 string
	Strategy           StrategyType
	Route              Route
	InputWei           *big.Int
	ExpectedOutputWei  *big.Int
	ExpectedProfitWei  *big.Int
	GasEstimate        uint64
	GasPriceWei        *big.Int
	PriorityFeeWei     *big.Int
	Confidence         decimal.Decimal
	FlashLoanRequired  bool
	DiscoveredAt       time.Time
	DetectorID         string
	Metadata           map[string]interface{}
	Status             ExecutionStatus // terminal on first validator rejection; otherwise StatusPending
	RejectionReason    string
}

// NewOpportunity builds an Opportunity with a fresh uuid and StatusPending.
func NewOpportunity(strategy StrategyType, route Route, inputWei, expectedOutputWei, expectedProfitWei *big.Int) *Opportunity {
	return &Opportunity{
		ID:                uuid.NewString(),
		Strategy:          strategy,
		Route:             route,
		InputWei:          inputWei,
		ExpectedOutputWei: expectedOutputWei,
		ExpectedProfitWei: expectedProfitWei,
		Confidence:        decimal.NewFromInt(1),
		DiscoveredAt:      time.Now(),
		Metadata:          make(map[string]interface{}),
		Status:            StatusPending,
	}
}

// ExpectedProfitAfterGas computes expected_profit_wei - gas_estimate*(gas_price_wei+priority_fee_wei).
func (o *Opportunity) ExpectedProfitAfterGas() *big.Int {
	gasCost := new(big.Int).Mul(new(big.Int).SetUint64(o.GasEstimate), new(big.Int).Add(safeBig(o.GasPriceWei), safeBig(o.PriorityFeeWei)))
	return new(big.Int).Sub(safeBig(o.ExpectedProfitWei), gasCost)
}

// ProfitableAfterGas reports expected_profit_after_gas > 0.
func (o *Opportunity) ProfitableAfterGas() bool {
	return o.ExpectedProfitAfterGas().Sign() > 0
}

// AgeSeconds returns how long ago the opportunity was discovered.
func (o *Opportunity) AgeSeconds() float64 {
	return time.Since(o.DiscoveredAt).Seconds()
}

// Reject sets the opportunity to a terminal status and records the
// rejection reason both on the struct and in metadata, so downstream sinks
// see why an opportunity was dropped.
func (o *Opportunity) Reject(kind ErrorKind, reason string) {
	o.Status = StatusFailed
	o.RejectionReason = reason
	o.Metadata["rejection_kind"] = string(kind)
	o.Metadata["rejection_reason"] = reason
}

func safeBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// MarketCondition is an immutable snapshot produced by internal/market.
type MarketCondition struct {
	Timestamp          time.Time
	Prices             map[common.Address]decimal.Decimal // token -> usd price
	LiquidityLevels    map[common.Address]decimal.Decimal // pool address -> normalized [0,1]
	GasPriceWei        *big.Int
	PriorityFeeWei     *big.Int
	BaseFeeWei         *big.Int
	NetworkCongestion  decimal.Decimal // [0,1]
	VolatilityIndex    decimal.Decimal // [0,1]
	EthPriceUSD        decimal.Decimal
}

// TransactionInfo records one transaction of an execution attempt, from
// assembly through its mined (or failed) receipt.
type TransactionInfo struct {
	TxHash            *common.Hash
	BundleHash        *string
	From              common.Address
	To                common.Address
	Data              []byte
	Value             *big.Int
	GasLimit          uint64
	GasPriceWei       *big.Int
	MaxFeePerGasWei   *big.Int
	PriorityFeeWei    *big.Int
	Nonce             *uint64
	Status            TransactionStatus
	GasUsed           *uint64
	EffectiveGasPrice *big.Int
	BlockNumber       *uint64
	Error             string
}

// GasCost returns gas_used * effective_gas_price if both are known.
func (t TransactionInfo) GasCost() *big.Int {
	if t.GasUsed == nil || t.EffectiveGasPrice == nil {
		return nil
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(*t.GasUsed), t.EffectiveGasPrice)
}

// ExecutionResult is the terminal (or in-flight) record of one execution attempt.
type ExecutionResult struct {
	ID                string
	OpportunityID     string
	StrategyID        string
	Status            ExecutionStatus
	Transactions      []TransactionInfo
	ActualOutputWei   *big.Int
	ActualProfitWei   *big.Int
	GasUsed           *uint64
	FlashLoanFeeWei   *big.Int
	StartedAt         time.Time
	EndedAt           *time.Time
	Error             string
}

// NetProfit computes actual_profit_wei - sum(tx gas costs) - flash_loan_fee_wei.
// Returns nil if actual profit is not yet known.
func (r ExecutionResult) NetProfit() *big.Int {
	if r.ActualProfitWei == nil {
		return nil
	}
	total := new(big.Int).Set(r.ActualProfitWei)
	for _, tx := range r.Transactions {
		if cost := tx.GasCost(); cost != nil {
			total.Sub(total, cost)
		}
	}
	if r.FlashLoanFeeWei != nil {
		total.Sub(total, r.FlashLoanFeeWei)
	}
	return total
}

// FlashLoanRequest describes a loan to source from a flash-loan provider.
type FlashLoanRequest struct {
	TokenAmounts      []TokenAmount
	Receiver          common.Address
	CallbackData      []byte
	DeadlineUnix      int64
	MaxFeeWei         *big.Int
	SlippageTolerance decimal.Decimal
}
