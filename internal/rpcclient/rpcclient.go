// Package rpcclient defines the interface contract for the on-chain RPC
// client consumed by internal/execution and internal/tracker. The client
// itself, along with the generic ABI codec behind it, is supplied by the
// deployment; this module only depends on the surface below.
package rpcclient

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Transaction is the minimal shape the engine needs to hand a chain client
// something to estimate, sign or send; concrete RPC implementations adapt
// this to whatever go-ethereum bind/ABI machinery they use internally.
type Transaction struct {
	From     common.Address
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
}

// Client is the external chain-RPC collaborator: block/gas metadata reads,
// gas estimation, transaction submission, and receipt/balance queries.
// Nothing in this package implements Client; that requires the ABI codec
// and a live node, both of which the deployment provides.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	BaseFee(ctx context.Context) (*big.Int, error)
	PriorityFee(ctx context.Context) (*big.Int, error)

	EstimateGas(ctx context.Context, tx Transaction) (uint64, error)
	SendTransaction(ctx context.Context, signed []byte) (common.Hash, error)
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)

	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	Call(ctx context.Context, tx Transaction) ([]byte, error)
	GetBalance(ctx context.Context, addr common.Address) (*big.Int, error)
	ERC20Balance(ctx context.Context, token, addr common.Address) (*big.Int, error)
}
