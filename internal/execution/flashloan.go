package execution

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/nexusdex/arbengine/internal/flashloan"
	"github.com/nexusdex/arbengine/internal/strategy"
	"github.com/nexusdex/arbengine/internal/types"
)

// executeFlashLoanPath is the flash-loan-backed branch: select a provider
// via internal/flashloan.Selector, wrap the
// already-assembled swap legs with an entry call and a repayment call (the
// first tx is the flash-loan entry, intermediate txs are the swaps, the
// last tx is the repayment call), and invoke the provider's borrower
// callback to actually submit that sequence via the bundle or public path.
// FlashLoanFeeWei on the result is read back from the provider's reported
// fee rather than assumed.
func (e *Engine) executeFlashLoanPath(ctx context.Context, result *types.ExecutionResult, opp *types.Opportunity, plan strategy.Plan, swapTxs []types.TransactionInfo, market types.MarketCondition) *types.ExecutionResult {
	if e.loans == nil {
		return e.finish(result, types.StatusFailed, "no flash-loan selector configured")
	}
	if e.encoder == nil {
		return e.finish(result, types.StatusFailed, "no router encoder configured")
	}

	startToken := opp.Route.StartToken()
	amount := opp.InputWei

	provider, err := e.loans.SelectSingle(ctx, startToken, amount)
	if err != nil {
		return e.finish(result, types.StatusFailed, "flash-loan provider selection failed: "+err.Error())
	}

	req := types.FlashLoanRequest{
		TokenAmounts: []types.TokenAmount{{Token: startToken, AmountWei: amount}},
		Receiver:     e.fromAddr,
		DeadlineUnix: plan.Config.Deadline(time.Now()),
	}

	rate, err := provider.FeeRate(ctx, startToken, amount)
	if err != nil {
		return e.finish(result, types.StatusFailed, "flash-loan fee rate lookup failed: "+err.Error())
	}
	fee := flashloan.FeeWei(amount, rate)

	entryData, err := e.encoder.EncodeFlashLoanEntry(provider.Address(), req)
	if err != nil {
		return e.finish(result, types.StatusFailed, "flash-loan entry encoding failed: "+err.Error())
	}
	repayData, err := e.encoder.EncodeFlashLoanRepayment(provider.Address(), req, []*big.Int{fee})
	if err != nil {
		return e.finish(result, types.StatusFailed, "flash-loan repayment encoding failed: "+err.Error())
	}

	entryTx := e.estimateAndBufferOne(types.TransactionInfo{
		From: e.fromAddr, To: provider.Address(), Data: entryData, Value: big.NewInt(0), Status: types.TxSubmitted,
	}, market)
	repayTx := e.estimateAndBufferOne(types.TransactionInfo{
		From: e.fromAddr, To: provider.Address(), Data: repayData, Value: big.NewInt(0), Status: types.TxSubmitted,
	}, market)

	allTxs := make([]types.TransactionInfo, 0, len(swapTxs)+2)
	allTxs = append(allTxs, entryTx)
	allTxs = append(allTxs, swapTxs...)
	allTxs = append(allTxs, repayTx)
	result.Transactions = allTxs

	cb := func(cbCtx context.Context, tokens []types.Token, amounts []*big.Int, fees []*big.Int, userData []byte) error {
		if plan.Config.UseFlashbots && e.cfg.EnableFlashbots && e.relay != nil {
			e.executeBundlePath(cbCtx, result, opp, plan, allTxs)
		} else {
			e.executePublicPath(cbCtx, result, opp, allTxs)
		}
		if result.Status.IsTerminal() && result.Status != types.StatusSucceeded {
			return fmt.Errorf("flash-loan swap legs did not succeed: status=%s", result.Status)
		}
		return nil
	}

	flashRes, err := provider.Execute(ctx, req, cb)
	if err != nil {
		return e.finish(result, types.StatusFailed, "flash-loan execution failed: "+err.Error())
	}
	if !flashRes.Success {
		// result already carries the terminal status/error the callback
		// recorded while running the swap legs.
		return result
	}

	if paid, ok := flashRes.FeesPaid[startToken.Address]; ok {
		result.FlashLoanFeeWei = paid
	} else {
		result.FlashLoanFeeWei = fee
	}
	return result
}
