package flashloan

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nexusdex/arbengine/internal/types"
	"github.com/nexusdex/arbengine/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Canonical mainnet vault/pool addresses.
const (
	BalancerVaultAddress = "0xBA12222222228d8Ba445958a75a0704d566BF2C8"
	AaveV3PoolAddress    = "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"
)

// zeroFeeBaseRate and aaveBaseRate are the undiluted provider fee rates
// before feeBuffer: 0 for the Balancer vault, 0.09% for Aave V3.
var (
	zeroFeeBaseRate = decimal.Zero
	aaveBaseRate    = decimal.NewFromFloat(0.0009)
)

// ZeroFeeVaultProvider is the Balancer-Vault-shaped zero-fee provider.
// Callback ABI shape:
// receiveFlashLoan(tokens[], amounts[], feeAmounts[], userData).
type ZeroFeeVaultProvider struct {
	vaultAddress common.Address
	liquidity    LiquiditySource
	supported    []common.Address
	log          *logger.Logger
}

// NewZeroFeeVaultProvider constructs the canonical zero-fee provider.
func NewZeroFeeVaultProvider(liquidity LiquiditySource, supported []common.Address, log *logger.Logger) *ZeroFeeVaultProvider {
	return &ZeroFeeVaultProvider{
		vaultAddress: common.HexToAddress(BalancerVaultAddress),
		liquidity:    liquidity,
		supported:    supported,
		log:          log.Named("flashloan-zero-fee"),
	}
}

func (p *ZeroFeeVaultProvider) Name() string                      { return "zero-fee" }
func (p *ZeroFeeVaultProvider) Address() common.Address           { return p.vaultAddress }
func (p *ZeroFeeVaultProvider) SupportedTokens() []common.Address { return p.supported }

// FeeRate is always the zero base rate plus the shared internal buffer;
// the vault charges nothing today but the buffer survives a fee switch.
func (p *ZeroFeeVaultProvider) FeeRate(ctx context.Context, token types.Token, amount *big.Int) (decimal.Decimal, error) {
	return zeroFeeBaseRate.Add(feeBuffer), nil
}

func (p *ZeroFeeVaultProvider) CheckLiquidity(ctx context.Context, token types.Token, amount *big.Int) (bool, error) {
	available, err := p.MaxAvailable(ctx, token)
	if err != nil {
		return false, err
	}
	return available.Cmp(amount) >= 0, nil
}

func (p *ZeroFeeVaultProvider) MaxAvailable(ctx context.Context, token types.Token) (*big.Int, error) {
	if p.liquidity == nil {
		return big.NewInt(0), nil
	}
	return p.liquidity.Available(ctx, token.Address)
}

// EstimateGas returns a flat estimate for the receiveFlashLoan callback
// path; real gas depends on the borrower's own swap calldata, which the
// execution layer appends on top of this base cost.
func (p *ZeroFeeVaultProvider) EstimateGas(ctx context.Context, req types.FlashLoanRequest) (uint64, error) {
	return 120_000 + uint64(len(req.TokenAmounts))*40_000, nil
}

// Execute invokes cb with the requested amounts and the provider's fee
// (rate * amount), then reports success. Mirrors
// receiveFlashLoan(tokens[], amounts[], feeAmounts[], userData)'s
// contract: the borrower must leave amount+fee available or the real
// vault reverts; this in-process stand-in enforces the same invariant by
// checking the callback's reported error.
func (p *ZeroFeeVaultProvider) Execute(ctx context.Context, req types.FlashLoanRequest, cb Callback) (Result, error) {
	tokens := make([]types.Token, len(req.TokenAmounts))
	amounts := make([]*big.Int, len(req.TokenAmounts))
	fees := make([]*big.Int, len(req.TokenAmounts))
	for i, ta := range req.TokenAmounts {
		tokens[i] = ta.Token
		amounts[i] = ta.AmountWei
		rate, _ := p.FeeRate(ctx, ta.Token, ta.AmountWei)
		fees[i] = FeeWei(ta.AmountWei, rate)
	}

	if err := cb(ctx, tokens, amounts, fees, req.CallbackData); err != nil {
		p.log.Warn("flash loan callback failed", zap.Error(err))
		return Result{Success: false, Error: err.Error()}, nil
	}

	feesPaid := make(map[common.Address]*big.Int, len(tokens))
	for i, t := range tokens {
		feesPaid[t.Address] = fees[i]
	}
	return Result{Success: true, FeesPaid: feesPaid}, nil
}

// LendingPoolProvider is the Aave-V3-shaped canonical fee-based provider.
// Callback ABI shape: executeOperation(assets[], amounts[], premiums[],
// initiator, params) returns bool.
type LendingPoolProvider struct {
	poolAddress common.Address
	liquidity   LiquiditySource
	supported   []common.Address
	log         *logger.Logger
}

// NewLendingPoolProvider constructs the canonical fee-based provider.
func NewLendingPoolProvider(liquidity LiquiditySource, supported []common.Address, log *logger.Logger) *LendingPoolProvider {
	return &LendingPoolProvider{
		poolAddress: common.HexToAddress(AaveV3PoolAddress),
		liquidity:   liquidity,
		supported:   supported,
		log:         log.Named("flashloan-lending-pool"),
	}
}

func (p *LendingPoolProvider) Name() string                      { return "lending-pool" }
func (p *LendingPoolProvider) Address() common.Address           { return p.poolAddress }
func (p *LendingPoolProvider) SupportedTokens() []common.Address { return p.supported }

// FeeRate returns Aave's 0.09% base rate plus the shared internal buffer.
func (p *LendingPoolProvider) FeeRate(ctx context.Context, token types.Token, amount *big.Int) (decimal.Decimal, error) {
	return aaveBaseRate.Add(feeBuffer), nil
}

func (p *LendingPoolProvider) CheckLiquidity(ctx context.Context, token types.Token, amount *big.Int) (bool, error) {
	available, err := p.MaxAvailable(ctx, token)
	if err != nil {
		return false, err
	}
	return available.Cmp(amount) >= 0, nil
}

func (p *LendingPoolProvider) MaxAvailable(ctx context.Context, token types.Token) (*big.Int, error) {
	if p.liquidity == nil {
		return big.NewInt(0), nil
	}
	return p.liquidity.Available(ctx, token.Address)
}

func (p *LendingPoolProvider) EstimateGas(ctx context.Context, req types.FlashLoanRequest) (uint64, error) {
	return 180_000 + uint64(len(req.TokenAmounts))*55_000, nil
}

// Execute mirrors executeOperation's bool-return repayability contract:
// if the callback errors, the loan is treated as not-repayable and the
// (simulated) pool reverts.
func (p *LendingPoolProvider) Execute(ctx context.Context, req types.FlashLoanRequest, cb Callback) (Result, error) {
	tokens := make([]types.Token, len(req.TokenAmounts))
	amounts := make([]*big.Int, len(req.TokenAmounts))
	premiums := make([]*big.Int, len(req.TokenAmounts))
	for i, ta := range req.TokenAmounts {
		tokens[i] = ta.Token
		amounts[i] = ta.AmountWei
		rate, _ := p.FeeRate(ctx, ta.Token, ta.AmountWei)
		premiums[i] = FeeWei(ta.AmountWei, rate)
	}

	if err := cb(ctx, tokens, amounts, premiums, req.CallbackData); err != nil {
		p.log.Warn("flash loan callback failed, pool reverts", zap.Error(err))
		return Result{Success: false, Error: err.Error()}, nil
	}

	feesPaid := make(map[common.Address]*big.Int, len(tokens))
	for i, t := range tokens {
		feesPaid[t.Address] = premiums[i]
	}
	return Result{Success: true, FeesPaid: feesPaid}, nil
}
