// Package strategy maps a validated Opportunity onto a concrete execution
// strategy (direct-swap, cross-venue, flash-loan, multi-path or custom)
// through a fixed precedence table, plus the per-execution Config the
// chosen strategy runs under.
package strategy

import (
	"math/big"
	"time"

	"github.com/nexusdex/arbengine/internal/types"
	"github.com/shopspring/decimal"
)

// Kind is the tagged-enum strategy variant.
type Kind string

const (
	KindDirectSwap  Kind = "direct-swap"
	KindCrossVenue  Kind = "cross-venue"
	KindFlashLoan   Kind = "flash-loan"
	KindMultiPath   Kind = "multi-path"
	KindCustom      Kind = "custom"
)

// AllocationLeg is one leg of a multi-path split. The splitting algorithm
// itself lives with the caller: allocation is a required input of the
// multi-path strategy, never derived here.
type AllocationLeg struct {
	Route        types.Route
	InputWei     *big.Int
	ExpectedWei  *big.Int
}

// Config carries the per-execution knobs a strategy runs under.
type Config struct {
	UseFlashbots        bool
	PriorityFeeWei      *big.Int
	SlippageOverride    *decimal.Decimal
	BlocksIntoFuture    int // [1,8], default 2
	WaitForReceipt      bool
	DeadlineUnix        *int64
	MinProfitThreshold  *big.Int
}

// DefaultConfig returns the stock strategy configuration.
func DefaultConfig() Config {
	return Config{
		UseFlashbots:     false,
		BlocksIntoFuture: 2,
		WaitForReceipt:   false,
	}
}

// WalletBalances reports the execution wallet's spendable balance for a
// token, the input the flash-loan-viability check needs.
type WalletBalances interface {
	Balance(token types.Token) *big.Int
}

// Plan is the output of Select: the chosen strategy kind plus the inputs
// execution needs to assemble transactions for it.
type Plan struct {
	Kind        Kind
	Opportunity *types.Opportunity
	Config      Config
	Allocations []AllocationLeg // only populated for KindMultiPath
}

// Select maps a validated opportunity onto a strategy by precedence: the
// custom_strategy_params metadata escape hatch first, then route length,
// venue count vs. capital availability, flash-loan viability and
// multi-path splittability.
func Select(opp *types.Opportunity, wallet WalletBalances, flashLoanViable func(*types.Opportunity) bool, cfg Config) Plan {
	if params, ok := opp.Metadata["custom_strategy_params"]; ok && params != nil {
		return Plan{Kind: KindCustom, Opportunity: opp, Config: cfg}
	}

	legs := len(opp.Route.Steps)

	if legs <= 1 {
		return Plan{Kind: KindDirectSwap, Opportunity: opp, Config: cfg}
	}

	capitalAvailable := hasCapital(opp, wallet)

	if legs == 2 && len(opp.Route.Venues()) > 1 && capitalAvailable {
		return Plan{Kind: KindCrossVenue, Opportunity: opp, Config: cfg}
	}

	requiresCapitalBeyondWallet := !capitalAvailable
	if requiresCapitalBeyondWallet && flashLoanViable != nil && flashLoanViable(opp) {
		return Plan{Kind: KindFlashLoan, Opportunity: opp, Config: cfg}
	}

	if legs > 2 {
		if allocations, ok := opp.Metadata["allocation"].([]AllocationLeg); ok && len(allocations) > 0 {
			return Plan{Kind: KindMultiPath, Opportunity: opp, Config: cfg, Allocations: allocations}
		}
	}

	// Fall back to flash-loan when capital is short and nothing else
	// matched, mirroring the source's "flash-loan as the general-purpose
	// capital-unconstrained path" behavior; cross-venue/direct already
	// covered the capital-available cases above.
	if requiresCapitalBeyondWallet {
		return Plan{Kind: KindFlashLoan, Opportunity: opp, Config: cfg}
	}
	return Plan{Kind: KindCrossVenue, Opportunity: opp, Config: cfg}
}

func hasCapital(opp *types.Opportunity, wallet WalletBalances) bool {
	if wallet == nil || opp.InputWei == nil {
		return false
	}
	balance := wallet.Balance(opp.Route.StartToken())
	if balance == nil {
		return false
	}
	return balance.Cmp(opp.InputWei) >= 0
}

// Deadline resolves cfg.DeadlineUnix, defaulting to now + 20 minutes.
func (c Config) Deadline(now time.Time) int64 {
	if c.DeadlineUnix != nil {
		return *c.DeadlineUnix
	}
	return now.Add(20 * time.Minute).Unix()
}

// NormalizedBlocksIntoFuture clamps BlocksIntoFuture into [1,8],
// defaulting to 2.
func (c Config) NormalizedBlocksIntoFuture() int {
	if c.BlocksIntoFuture < 1 || c.BlocksIntoFuture > 8 {
		return 2
	}
	return c.BlocksIntoFuture
}
