package execution

import (
	"context"
	"math/big"
	"time"

	"github.com/nexusdex/arbengine/internal/relay"
	"github.com/nexusdex/arbengine/internal/rpcclient"
	"github.com/nexusdex/arbengine/internal/strategy"
	"github.com/nexusdex/arbengine/internal/types"
	"go.uber.org/zap"
)

// executeBundlePath is the MEV-protected branch: sign each tx, compose a
// bundle targeting current_block + blocks_into_future, simulate, require
// success and sufficient eth_profit, submit to the private relay, then
// (if WaitForReceipt) poll inclusion.
func (e *Engine) executeBundlePath(ctx context.Context, result *types.ExecutionResult, opp *types.Opportunity, plan strategy.Plan, txs []types.TransactionInfo) *types.ExecutionResult {
	if e.signer == nil {
		return e.finish(result, types.StatusFailed, "no signer configured for bundle path")
	}

	signedTxs := make([][]byte, 0, len(txs))
	for i := range txs {
		signed, hash, err := e.signer.SignTransaction(ctx, rpcclient.Transaction{
			From: txs[i].From, To: txs[i].To, Data: txs[i].Data, Value: txs[i].Value,
			GasLimit: txs[i].GasLimit,
		}, uint64(i))
		if err != nil {
			return e.finish(result, types.StatusFailed, "signing failed: "+err.Error())
		}
		txs[i].TxHash = &hash
		signedTxs = append(signedTxs, signed)
	}
	result.Transactions = txs

	currentBlock := uint64(0)
	if e.chain != nil {
		if bn, err := e.chain.BlockNumber(ctx); err == nil {
			currentBlock = bn
		}
	}
	targetBlock := currentBlock + uint64(plan.Config.NormalizedBlocksIntoFuture())

	bundle := relay.Bundle{SignedTxs: signedTxs, TargetBlock: targetBlock}

	sim, err := e.relay.SimulateBundle(ctx, bundle)
	if err != nil {
		return e.finish(result, types.StatusFailed, "simulation error: "+err.Error())
	}
	minProfitThreshold := plan.Config.MinProfitThreshold
	if minProfitThreshold == nil {
		minProfitThreshold = big.NewInt(0)
	}
	ethProfit, ok := new(big.Int).SetString(sim.EthSentToCoinbase, 0)
	if !ok {
		ethProfit = big.NewInt(0)
	}
	if !sim.Success {
		return e.finish(result, types.StatusFailed, "simulation failed: "+sim.Error)
	}
	if ethProfit.Cmp(minProfitThreshold) < 0 {
		return e.finish(result, types.StatusFailed, "simulated profit below min_profit_threshold")
	}

	bundleHash, err := e.relay.SubmitBundle(ctx, bundle)
	if err != nil {
		return e.finish(result, types.StatusFailed, "submission failed: "+err.Error())
	}
	result.Status = types.StatusSubmitted
	for i := range result.Transactions {
		result.Transactions[i].BundleHash = &bundleHash
	}
	e.log.Info("bundle submitted", zap.String("execution_id", result.ID), zap.String("bundle_hash", bundleHash), zap.Uint64("target_block", targetBlock))

	if !plan.Config.WaitForReceipt {
		return result
	}

	return e.pollBundleInclusion(ctx, result, bundleHash, targetBlock, opp)
}

// pollBundleInclusion resolves the bundle's included tx hash via relay
// stats, then fetches the receipt; this is the tracker's bundle flow
// applied inline when WaitForReceipt is set.
func (e *Engine) pollBundleInclusion(ctx context.Context, result *types.ExecutionResult, bundleHash string, targetBlock uint64, opp *types.Opportunity) *types.ExecutionResult {
	maxWait := e.cfg.MaxWaitBlocks
	if maxWait <= 0 {
		maxWait = 5
	}
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for block := targetBlock; block < targetBlock+uint64(maxWait); {
		select {
		case <-ctx.Done():
			return e.finish(result, types.StatusCancelled, "cancelled while polling bundle inclusion")
		case <-ticker.C:
		}

		if e.chain != nil {
			if bn, err := e.chain.BlockNumber(ctx); err == nil {
				block = bn
			}
		}

		stats, err := e.relay.GetBundleStats(ctx, bundleHash, block)
		if err != nil || !stats.IsIncluded || stats.TransactionHash == nil {
			continue
		}

		result.Status = types.StatusIncluded
		return e.finalizeFromReceipt(ctx, result, *stats.TransactionHash, opp)
	}
	return e.finish(result, types.StatusTimeout, "bundle not included within max_wait_blocks")
}
