package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/nexusdex/arbengine/internal/rpcclient"
	"github.com/nexusdex/arbengine/internal/types"
	"github.com/shopspring/decimal"
)

// errUnconfigured marks a collaborator this binary does not itself
// implement: the on-chain RPC client, the pool/pair indexer, the signing
// wallet, and the router ABI codec all live outside this module.
// A real deployment wires concrete implementations of these interfaces
// (an ethclient-backed rpcclient.Client, a subgraph-backed PoolRegistry,
// a KMS- or HSM-backed Signer, ...) into Deps/New below; this binary
// builds every in-process stage and fails loudly at the collaborator
// boundary instead of silently no-oping.
var errUnconfigured = fmt.Errorf("arbengine: external collaborator not configured for this deployment")

// unconfiguredChain is the rpcclient.Client placeholder. Every method
// reports errUnconfigured; wiring a live node means providing an
// ethclient-backed implementation of this interface at startup.
type unconfiguredChain struct{}

func (unconfiguredChain) BlockNumber(context.Context) (uint64, error)       { return 0, errUnconfigured }
func (unconfiguredChain) ChainID(context.Context) (uint64, error)          { return 0, errUnconfigured }
func (unconfiguredChain) GasPrice(context.Context) (*big.Int, error)      { return nil, errUnconfigured }
func (unconfiguredChain) BaseFee(context.Context) (*big.Int, error)       { return nil, errUnconfigured }
func (unconfiguredChain) PriorityFee(context.Context) (*big.Int, error)   { return nil, errUnconfigured }
func (unconfiguredChain) EstimateGas(context.Context, rpcclient.Transaction) (uint64, error) {
	return 0, errUnconfigured
}
func (unconfiguredChain) SendTransaction(context.Context, []byte) (common.Hash, error) {
	return common.Hash{}, errUnconfigured
}
func (unconfiguredChain) SendRawTransaction(context.Context, []byte) (common.Hash, error) {
	return common.Hash{}, errUnconfigured
}
func (unconfiguredChain) TransactionReceipt(context.Context, common.Hash) (*ethtypes.Receipt, error) {
	return nil, errUnconfigured
}
func (unconfiguredChain) WaitForReceipt(context.Context, common.Hash) (*ethtypes.Receipt, error) {
	return nil, errUnconfigured
}
func (unconfiguredChain) Call(context.Context, rpcclient.Transaction) ([]byte, error) {
	return nil, errUnconfigured
}
func (unconfiguredChain) GetBalance(context.Context, common.Address) (*big.Int, error) {
	return nil, errUnconfigured
}
func (unconfiguredChain) ERC20Balance(context.Context, common.Address, common.Address) (*big.Int, error) {
	return nil, errUnconfigured
}

// unconfiguredPoolRegistry is the discovery.PoolRegistry placeholder.
// Production deployments back this with a subgraph or an in-house indexer
// that enumerates pool reserves/ticks across the configured venues.
type unconfiguredPoolRegistry struct{}

func (unconfiguredPoolRegistry) Pools(context.Context) ([]types.PoolInfo, error) {
	return nil, errUnconfigured
}

// unconfiguredPriceSource is the market.PriceSource placeholder. A live
// deployment aggregates across configured PriceProviders and gas oracles
// to build each MarketCondition snapshot.
type unconfiguredPriceSource struct{}

func (unconfiguredPriceSource) Snapshot(context.Context) (types.MarketCondition, error) {
	return types.MarketCondition{}, errUnconfigured
}

// unconfiguredLiquidity backs both internal/validation.LiquiditySource and
// internal/flashloan.LiquiditySource placeholders until a chain-state
// reader is wired in.
type unconfiguredLiquidity struct{}

func (unconfiguredLiquidity) LiquidityUSD(context.Context, types.PoolInfo) (decimal.Decimal, error) {
	return decimal.Zero, errUnconfigured
}

func (unconfiguredLiquidity) Available(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(0), errUnconfigured
}

// unconfiguredBalances is the execution.BalanceSource placeholder.
type unconfiguredBalances struct{}

func (unconfiguredBalances) Balance(context.Context, types.Token) (*big.Int, error) {
	return nil, errUnconfigured
}

// unconfiguredEncoder is the execution.RouterEncoder placeholder; a real
// deployment encodes exact-input single-hop/multi-hop calldata per venue
// using its own ABI codec.
type unconfiguredEncoder struct{}

func (unconfiguredEncoder) EncodeSwap(types.TradeStep, *big.Int, int64) (common.Address, []byte, error) {
	return common.Address{}, nil, errUnconfigured
}

func (unconfiguredEncoder) EncodeFlashLoanEntry(common.Address, types.FlashLoanRequest) ([]byte, error) {
	return nil, errUnconfigured
}

func (unconfiguredEncoder) EncodeFlashLoanRepayment(common.Address, types.FlashLoanRequest, []*big.Int) ([]byte, error) {
	return nil, errUnconfigured
}

// unconfiguredSigner is the execution.Signer placeholder; the trading
// wallet that would implement this belongs to the deployment.
type unconfiguredSigner struct{}

func (unconfiguredSigner) SignTransaction(context.Context, rpcclient.Transaction, uint64) ([]byte, common.Hash, error) {
	return nil, common.Hash{}, errUnconfigured
}

// unconfiguredLogParser is the execution.SwapLogParser placeholder; a real
// deployment decodes router/Transfer events from the receipt to derive
// actual_output_wei, never echoing the expected amount.
type unconfiguredLogParser struct{}

func (unconfiguredLogParser) ActualOutputWei(*ethtypes.Receipt, types.Token) (*big.Int, error) {
	return nil, errUnconfigured
}
