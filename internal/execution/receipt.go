package execution

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/nexusdex/arbengine/internal/rpcclient"
	"github.com/nexusdex/arbengine/internal/types"
)

// executePublicPath sends each transaction via the public mempool and
// waits for its receipt with a timeout, used whenever the MEV-protected
// bundle path is not taken.
func (e *Engine) executePublicPath(ctx context.Context, result *types.ExecutionResult, opp *types.Opportunity, txs []types.TransactionInfo) *types.ExecutionResult {
	if e.signer == nil || e.chain == nil {
		return e.finish(result, types.StatusFailed, "no signer/chain client configured for public path")
	}

	var lastHash common.Hash
	for i := range txs {
		signed, hash, err := e.signer.SignTransaction(ctx, rpcclient.Transaction{
			From: txs[i].From, To: txs[i].To, Data: txs[i].Data, Value: txs[i].Value,
			GasLimit: txs[i].GasLimit,
		}, uint64(i))
		if err != nil {
			return e.finish(result, types.StatusFailed, "signing failed: "+err.Error())
		}
		txs[i].TxHash = &hash

		sentHash, err := e.chain.SendRawTransaction(ctx, signed)
		if err != nil {
			return e.finish(result, types.StatusFailed, types.Wrap(types.ErrSubmissionFailed, "public submission failed", err).Error())
		}
		lastHash = sentHash
	}
	result.Transactions = txs
	result.Status = types.StatusSubmitted

	return e.finalizeFromReceipt(ctx, result, lastHash.Hex(), opp)
}

// finalizeFromReceipt waits for and interprets the terminal tx receipt:
// success recomputes actual output from swap logs (never the expected
// amount), revert maps to reverted, a missed window to timeout.
func (e *Engine) finalizeFromReceipt(ctx context.Context, result *types.ExecutionResult, txHashHex string, opp *types.Opportunity) *types.ExecutionResult {
	hash := common.HexToHash(txHashHex)
	receipt, err := e.chain.WaitForReceipt(ctx, hash)
	if err != nil {
		return e.finish(result, types.StatusTimeout, "receipt wait timed out: "+err.Error())
	}

	gasUsed := receipt.GasUsed
	result.GasUsed = &gasUsed
	if len(result.Transactions) > 0 {
		last := &result.Transactions[len(result.Transactions)-1]
		last.GasUsed = &gasUsed
		last.EffectiveGasPrice = receipt.EffectiveGasPrice
		blockNum := receipt.BlockNumber.Uint64()
		last.BlockNumber = &blockNum
	}

	if receipt.Status == ethtypes.ReceiptStatusFailed {
		return e.finish(result, types.StatusReverted, "transaction reverted on-chain")
	}

	actual := e.parseActualOutput(receipt, opp)
	result.ActualOutputWei = actual
	if actual != nil && opp.InputWei != nil {
		result.ActualProfitWei = new(big.Int).Sub(actual, opp.InputWei)
	}
	return e.finish(result, types.StatusSucceeded, "")
}

// parseActualOutput derives actual_output_wei from the receipt's swap
// event logs via the configured SwapLogParser. If no parser is wired, the
// result's ActualOutputWei is left nil rather than silently substituting
// the expected amount.
func (e *Engine) parseActualOutput(receipt *ethtypes.Receipt, opp *types.Opportunity) *big.Int {
	if e.logs == nil {
		return nil
	}
	outputToken := opp.Route.EndToken()
	amount, err := e.logs.ActualOutputWei(receipt, outputToken)
	if err != nil {
		return nil
	}
	return amount
}
