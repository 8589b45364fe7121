// Package flashloan sources working capital: the Provider contract, the
// canonical zero-fee-vault and fee-based-lending-pool providers, and
// fee-minimizing selection with a liquidity fallback.
package flashloan

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nexusdex/arbengine/internal/types"
	"github.com/shopspring/decimal"
)

// feeBuffer pads every provider's quoted rate by 0.01%, absorbing on-chain
// fee drift between quote and execution.
var feeBuffer = decimal.NewFromFloat(0.0001)

// Result is the settlement outcome of Provider.Execute.
type Result struct {
	Success   bool
	TxHash    common.Hash
	FeesPaid  map[common.Address]*big.Int
	Error     string
}

// Callback is the borrower's arbitrage logic, invoked once the loan funds
// are available. Implementations must leave each token's balance at or
// above amount+fee by the time Callback returns, or the provider reverts.
type Callback func(ctx context.Context, tokens []types.Token, amounts []*big.Int, fees []*big.Int, userData []byte) error

// Provider is the contract every flash-loan source implements.
type Provider interface {
	Name() string
	Address() common.Address
	SupportedTokens() []common.Address
	FeeRate(ctx context.Context, token types.Token, amount *big.Int) (decimal.Decimal, error)
	CheckLiquidity(ctx context.Context, token types.Token, amount *big.Int) (bool, error)
	MaxAvailable(ctx context.Context, token types.Token) (*big.Int, error)
	EstimateGas(ctx context.Context, req types.FlashLoanRequest) (uint64, error)
	Execute(ctx context.Context, req types.FlashLoanRequest, cb Callback) (Result, error)
}

// FeeWei computes the fee for borrowing amount at rate (already including
// the provider's internal buffer).
func FeeWei(amount *big.Int, rate decimal.Decimal) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	return decimal.NewFromBigInt(amount, 0).Mul(rate).BigInt()
}

// LiquiditySource reports how much of a token a provider can lend right
// now. Real deployments back this with a chain-state reader.
type LiquiditySource interface {
	Available(ctx context.Context, token common.Address) (*big.Int, error)
}

// Selector picks a provider per loan: try the zero-fee provider first,
// fall back to the fee-based provider, fail with a NoLiquidity error if
// neither has capacity. Multi-token requests require a single provider
// supporting every requested token (no fragmentation across providers
// within one loan).
type Selector struct {
	// Providers ordered by preference, e.g. [zero-fee, lending-pool];
	// selection always tries index 0 before index 1+.
	Providers []Provider
}

// NewSelector constructs a Selector with providers in preference order.
func NewSelector(providers ...Provider) *Selector {
	return &Selector{Providers: providers}
}

// SelectSingle chooses a provider for a single-token loan.
func (s *Selector) SelectSingle(ctx context.Context, token types.Token, amount *big.Int) (Provider, error) {
	for _, p := range s.Providers {
		ok, err := p.CheckLiquidity(ctx, token, amount)
		if err != nil {
			continue
		}
		if ok {
			return p, nil
		}
	}
	return nil, types.NewError(types.ErrNoLiquidity, "flashloan: no provider has sufficient liquidity for "+token.String())
}

// SelectMulti chooses a single provider supporting every requested token,
// preferring earlier (lower-fee) providers. A loan is never fragmented
// across providers.
func (s *Selector) SelectMulti(ctx context.Context, amounts []types.TokenAmount) (Provider, error) {
	for _, p := range s.Providers {
		supported := make(map[common.Address]bool)
		for _, addr := range p.SupportedTokens() {
			supported[addr] = true
		}
		allSupported := true
		allLiquid := true
		for _, ta := range amounts {
			if !supported[ta.Token.Address] {
				allSupported = false
				break
			}
			ok, err := p.CheckLiquidity(ctx, ta.Token, ta.AmountWei)
			if err != nil || !ok {
				allLiquid = false
				break
			}
		}
		if allSupported && allLiquid {
			return p, nil
		}
	}
	return nil, types.NewError(types.ErrNoLiquidity, "flashloan: no single provider supports and has liquidity for all requested tokens")
}
