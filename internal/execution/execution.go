// Package execution turns a chosen plan into transactions on chain: the
// concurrency gate and debounce, per-step transaction assembly, gas
// estimation, the MEV-protected bundle path (simulate then submit), the
// public-mempool fallback, and receipt handling that always parses actual
// output from swap-event logs rather than echoing the expected amount.
package execution

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/nexusdex/arbengine/internal/flashloan"
	"github.com/nexusdex/arbengine/internal/relay"
	"github.com/nexusdex/arbengine/internal/rpcclient"
	"github.com/nexusdex/arbengine/internal/strategy"
	"github.com/nexusdex/arbengine/internal/types"
	"github.com/nexusdex/arbengine/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BalanceSource reports the wallet's on-chain balance of a token, used by
// the non-flash-loan balance check.
type BalanceSource interface {
	Balance(ctx context.Context, token types.Token) (*big.Int, error)
}

// RouterEncoder assembles venue-specific swap calldata (exact-input
// single-hop, exact-input multi-hop path-encoded bytes) plus the
// flash-loan entry/repayment calldata. The generic ABI codec behind all
// three is an external collaborator.
type RouterEncoder interface {
	EncodeSwap(step types.TradeStep, minOutWei *big.Int, deadline int64) (to common.Address, data []byte, err error)
	EncodeFlashLoanEntry(provider common.Address, req types.FlashLoanRequest) (data []byte, err error)
	EncodeFlashLoanRepayment(provider common.Address, req types.FlashLoanRequest, fees []*big.Int) (data []byte, err error)
}

// Signer produces a raw signed transaction for broadcast or bundling.
// The signing wallet itself is an external collaborator; this is its
// consumed interface.
type Signer interface {
	SignTransaction(ctx context.Context, tx rpcclient.Transaction, nonce uint64) (signed []byte, hash common.Hash, err error)
}

// SwapLogParser derives the actual amount received from a mined
// transaction's receipt logs, so execution never reports the expected
// amount as if it were observed.
type SwapLogParser interface {
	ActualOutputWei(receipt *ethtypes.Receipt, outputToken types.Token) (*big.Int, error)
}

// Config bounds execution concurrency, timing and gas headroom.
type Config struct {
	MaxConcurrentExecutions  int
	MinTimeBetweenExecutions time.Duration
	ExecutionTimeout         time.Duration
	EnableFlashbots          bool
	MinConfidenceScore       float64
	WaitForReceipt           bool
	GasLimitBufferPercent    float64
	DeadlineMinutes          int
	MaxWaitBlocks            int
}

// DefaultConfig returns the stock execution limits.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentExecutions:  1,
		MinTimeBetweenExecutions: 0,
		ExecutionTimeout:         300 * time.Second,
		EnableFlashbots:          false,
		MinConfidenceScore:       0.7,
		WaitForReceipt:           false,
		GasLimitBufferPercent:    20,
		DeadlineMinutes:          20,
		MaxWaitBlocks:            5,
	}
}

// Engine runs one execution attempt per call: Execute(opportunity, plan,
// market) -> ExecutionResult.
type Engine struct {
	cfg      Config
	chain    rpcclient.Client
	relay    *relay.Client
	encoder  RouterEncoder
	signer   Signer
	balances BalanceSource
	loans    *flashloan.Selector
	logs     SwapLogParser
	fromAddr common.Address
	log      *logger.Logger

	mu              sync.Mutex // guards the concurrency gate and debounce counter
	inFlight        int
	lastExecutionAt time.Time

	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc
}

// New constructs an execution Engine.
func New(cfg Config, chain rpcclient.Client, relayClient *relay.Client, encoder RouterEncoder, signer Signer, balances BalanceSource, loans *flashloan.Selector, logs SwapLogParser, fromAddr common.Address, log *logger.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		chain:    chain,
		relay:    relayClient,
		encoder:  encoder,
		signer:   signer,
		balances: balances,
		loans:    loans,
		logs:     logs,
		fromAddr: fromAddr,
		log:      log.Named("execution"),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// acquireSlot enforces the concurrency gate: at most
// MaxConcurrentExecutions in flight, plus the min-time-between-executions
// debounce. Returns a release func, or ok=false if the caller should be
// rejected as skipped.
func (e *Engine) acquireSlot() (release func(), ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	limit := e.cfg.MaxConcurrentExecutions
	if limit <= 0 {
		limit = 1
	}
	if e.inFlight >= limit {
		return nil, false
	}
	if e.cfg.MinTimeBetweenExecutions > 0 && !e.lastExecutionAt.IsZero() {
		if time.Since(e.lastExecutionAt) < e.cfg.MinTimeBetweenExecutions {
			return nil, false
		}
	}

	e.inFlight++
	e.lastExecutionAt = time.Now()
	return func() {
		e.mu.Lock()
		e.inFlight--
		e.mu.Unlock()
	}, true
}

// Cancel requests cancellation of an in-flight execution by id.
// Best-effort: it releases the concurrency slot but cannot recall an
// already relay-accepted bundle.
func (e *Engine) Cancel(id string) bool {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()
	cancel, ok := e.cancels[id]
	if ok {
		cancel()
		delete(e.cancels, id)
	}
	return ok
}

// Execute runs one attempt of the pipeline: assembly -> simulate ->
// submit -> poll, strictly ordered within this single call.
func (e *Engine) Execute(ctx context.Context, opp *types.Opportunity, plan strategy.Plan, market types.MarketCondition) *types.ExecutionResult {
	result := &types.ExecutionResult{
		ID:            uuid.NewString(),
		OpportunityID: opp.ID,
		StrategyID:    string(plan.Kind),
		Status:        types.StatusPending,
		StartedAt:     time.Now(),
	}

	release, ok := e.acquireSlot()
	if !ok {
		return e.finish(result, types.StatusSkipped, "max concurrent executions or debounce window active")
	}
	defer release()

	timeout := e.cfg.ExecutionTimeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	e.cancelMu.Lock()
	e.cancels[result.ID] = cancel
	e.cancelMu.Unlock()
	defer func() {
		e.cancelMu.Lock()
		delete(e.cancels, result.ID)
		e.cancelMu.Unlock()
		cancel()
	}()

	result.Status = types.StatusExecuting

	if plan.Kind != strategy.KindFlashLoan {
		if err := e.checkBalance(execCtx, opp); err != nil {
			return e.finish(result, types.StatusFailed, err.Error())
		}
	}

	txs, err := e.assembleTransactions(opp, plan, market)
	if err != nil {
		return e.finish(result, types.StatusFailed, "assembly failed: "+err.Error())
	}
	result.Transactions = txs

	if execCtx.Err() != nil {
		return e.finish(result, types.StatusCancelled, "cancelled before submission")
	}

	if plan.Kind == strategy.KindFlashLoan {
		return e.executeFlashLoanPath(execCtx, result, opp, plan, txs, market)
	}

	if plan.Config.UseFlashbots && e.cfg.EnableFlashbots && e.relay != nil {
		return e.executeBundlePath(execCtx, result, opp, plan, txs)
	}
	return e.executePublicPath(execCtx, result, opp, txs)
}

func (e *Engine) checkBalance(ctx context.Context, opp *types.Opportunity) error {
	if e.balances == nil || opp.InputWei == nil {
		return nil
	}
	balance, err := e.balances.Balance(ctx, opp.Route.StartToken())
	if err != nil {
		return types.Wrap(types.ErrFatal, "balance check failed", err)
	}
	if balance.Cmp(opp.InputWei) < 0 {
		return types.NewError(types.ErrNoLiquidity, "insufficient wallet balance for non-flash-loan execution")
	}
	return nil
}

// assembleTransactions builds the per-step swap calldata with min_out and
// a deadline. This covers only the swap legs; for KindFlashLoan,
// executeFlashLoanPath prepends the loan entry and appends the repayment
// call around the sequence this returns.
func (e *Engine) assembleTransactions(opp *types.Opportunity, plan strategy.Plan, market types.MarketCondition) ([]types.TransactionInfo, error) {
	if e.encoder == nil {
		return nil, fmt.Errorf("no router encoder configured")
	}
	deadline := plan.Config.Deadline(time.Now())
	slippage := opp.Route.Steps[0].MaxSlippage
	if plan.Config.SlippageOverride != nil {
		slippage = *plan.Config.SlippageOverride
	}

	txs := make([]types.TransactionInfo, 0, len(opp.Route.Steps))
	for _, step := range opp.Route.Steps {
		minOut := minOutWei(step.ExpectedOutWei, slippage)
		to, data, err := e.encoder.EncodeSwap(step, minOut, deadline)
		if err != nil {
			return nil, err
		}
		txs = append(txs, types.TransactionInfo{
			From:     e.fromAddr,
			To:       to,
			Data:     data,
			Value:    big.NewInt(0),
			GasLimit: 0, // filled by estimateAndBuffer
			Status:   types.TxSubmitted,
		})
	}
	return e.estimateAndBuffer(txs, market)
}

func minOutWei(expected *big.Int, slippage decimal.Decimal) *big.Int {
	if expected == nil {
		return big.NewInt(0)
	}
	if slippage.IsZero() {
		slippage = decimal.NewFromFloat(0.005)
	}
	factor := decimal.NewFromInt(1).Sub(slippage)
	return decimal.NewFromBigInt(expected, 0).Mul(factor).BigInt()
}

// estimateAndBuffer estimates gas where not provided, adds the configured
// buffer, and sets EIP-1559 fee fields from the current market.
func (e *Engine) estimateAndBuffer(txs []types.TransactionInfo, market types.MarketCondition) ([]types.TransactionInfo, error) {
	for i := range txs {
		txs[i] = e.estimateAndBufferOne(txs[i], market)
	}
	return txs, nil
}

// estimateAndBufferOne applies the same gas estimation/buffer/fee rules to
// a single transaction, used where callers assemble swap legs and
// flash-loan wrapper calls separately rather than as one slice.
// max_fee_per_gas is base_fee * 1.1, max_priority_fee comes straight from
// the market snapshot.
func (e *Engine) estimateAndBufferOne(tx types.TransactionInfo, market types.MarketCondition) types.TransactionInfo {
	buffer := e.cfg.GasLimitBufferPercent
	if buffer <= 0 {
		buffer = 20
	}
	if e.chain != nil && tx.GasLimit == 0 {
		est, err := e.chain.EstimateGas(context.Background(), rpcclient.Transaction{
			From: tx.From, To: tx.To, Data: tx.Data, Value: tx.Value,
		})
		if err == nil && est > 0 {
			tx.GasLimit = est
		}
	}
	if tx.GasLimit == 0 {
		tx.GasLimit = 300_000
	}
	tx.GasLimit = tx.GasLimit * uint64(100+buffer) / 100

	if market.BaseFeeWei != nil {
		tx.MaxFeePerGasWei = new(big.Int).Div(new(big.Int).Mul(market.BaseFeeWei, big.NewInt(110)), big.NewInt(100))
	}
	if market.PriorityFeeWei != nil {
		tx.PriorityFeeWei = market.PriorityFeeWei
	}
	return tx
}

func (e *Engine) finish(result *types.ExecutionResult, status types.ExecutionStatus, errMsg string) *types.ExecutionResult {
	now := time.Now()
	result.Status = status
	result.Error = errMsg
	result.EndedAt = &now
	e.log.Info("execution finished",
		zap.String("execution_id", result.ID),
		zap.String("opportunity_id", result.OpportunityID),
		zap.String("status", string(status)))
	return result
}
