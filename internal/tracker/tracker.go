// Package tracker polls receipts for submitted txs/bundles at a fixed
// interval up to max_attempts, detects chain reorgs via block-number
// non-monotonicity, and resolves bundle inclusion through the relay's
// stats endpoint before falling into the same receipt flow.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/nexusdex/arbengine/internal/relay"
	"github.com/nexusdex/arbengine/internal/rpcclient"
	"github.com/nexusdex/arbengine/internal/types"
	"github.com/nexusdex/arbengine/pkg/logger"
	"go.uber.org/zap"
)

// Config bounds the tracker's polling.
type Config struct {
	PollInterval       time.Duration
	MaxAttempts        int
	ConfirmationBlocks int
	MaxWaitBlocks       int
}

// DefaultConfig returns the stock polling bounds.
func DefaultConfig() Config {
	return Config{
		PollInterval:       2 * time.Second,
		MaxAttempts:        30,
		ConfirmationBlocks: 1,
		MaxWaitBlocks:      5,
	}
}

// monitoredTx is one entry in the tracker's monitored-tx map; the map's
// mutex serializes all entry access.
type monitoredTx struct {
	executionID   string
	txHash        *common.Hash
	bundleHash    *string
	targetBlock   uint64
	attempts      int
	lastSeenBlock uint64
}

// Tracker polls pending transactions/bundles to a terminal status.
type Tracker struct {
	cfg   Config
	chain rpcclient.Client
	relay *relay.Client
	log   *logger.Logger

	mu       sync.Mutex
	monitored map[string]*monitoredTx
}

// New constructs a Tracker. relayClient may be nil when only plain
// transaction tracking (no bundle resolution) is needed.
func New(cfg Config, chain rpcclient.Client, relayClient *relay.Client, log *logger.Logger) *Tracker {
	return &Tracker{
		cfg:       cfg,
		chain:     chain,
		relay:     relayClient,
		log:       log.Named("tracker"),
		monitored: make(map[string]*monitoredTx),
	}
}

// TrackTransaction polls a plain tx hash's receipt until it lands or
// max_attempts runs out, returning the receipt and terminal status (the
// caller owns profit accounting).
func (t *Tracker) TrackTransaction(ctx context.Context, executionID string, hash common.Hash) (*ethtypes.Receipt, types.ExecutionStatus, error) {
	entry := &monitoredTx{executionID: executionID, txHash: &hash}
	t.put(executionID, entry)
	defer t.remove(executionID)

	interval := t.cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	maxAttempts := t.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 30
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for entry.attempts < maxAttempts {
		select {
		case <-ctx.Done():
			return nil, types.StatusCancelled, ctx.Err()
		case <-ticker.C:
		}
		entry.attempts++

		receipt, err := t.chain.TransactionReceipt(ctx, hash)
		if err != nil || receipt == nil {
			continue
		}

		if reorg := t.detectReorg(entry, receipt.BlockNumber.Uint64()); reorg {
			t.log.Warn("chain reorg detected, downgrading to unknown", zap.String("execution_id", executionID), zap.String("tx_hash", hash.Hex()))
			continue
		}

		if receipt.Status == ethtypes.ReceiptStatusFailed {
			return receipt, types.StatusReverted, nil
		}
		return receipt, types.StatusSucceeded, nil
	}
	return nil, types.StatusTimeout, types.NewError(types.ErrTimeout, "tracker: max_attempts exceeded waiting for receipt")
}

// TrackBundle polls relay stats for inclusion, then resolves the included
// tx hash into the same receipt flow as TrackTransaction.
func (t *Tracker) TrackBundle(ctx context.Context, executionID, bundleHash string, targetBlock uint64) (*ethtypes.Receipt, types.ExecutionStatus, error) {
	if t.relay == nil {
		return nil, types.StatusFailed, types.NewError(types.ErrFatal, "tracker: no relay client configured for bundle tracking")
	}
	entry := &monitoredTx{executionID: executionID, bundleHash: &bundleHash, targetBlock: targetBlock}
	t.put(executionID, entry)
	defer t.remove(executionID)

	interval := t.cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	maxWait := t.cfg.MaxWaitBlocks
	if maxWait <= 0 {
		maxWait = 5
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for block := targetBlock; block < targetBlock+uint64(maxWait); {
		select {
		case <-ctx.Done():
			return nil, types.StatusCancelled, ctx.Err()
		case <-ticker.C:
		}

		if t.chain != nil {
			if bn, err := t.chain.BlockNumber(ctx); err == nil {
				block = bn
			}
		}

		stats, err := t.relay.GetBundleStats(ctx, bundleHash, block)
		if err != nil || !stats.IsIncluded || stats.TransactionHash == nil {
			continue
		}

		hash := common.HexToHash(*stats.TransactionHash)
		return t.TrackTransaction(ctx, executionID, hash)
	}
	return nil, types.StatusTimeout, types.NewError(types.ErrTimeout, "tracker: bundle not included within max_wait_blocks")
}

// detectReorg checks block-number monotonicity against the previously seen
// receipt: if the newly observed block number is lower than one already
// recorded for this entry, a reorg has occurred.
func (t *Tracker) detectReorg(entry *monitoredTx, observedBlock uint64) bool {
	if entry.lastSeenBlock != 0 && observedBlock < entry.lastSeenBlock {
		return true
	}
	entry.lastSeenBlock = observedBlock
	return false
}

func (t *Tracker) put(id string, entry *monitoredTx) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.monitored[id] = entry
}

func (t *Tracker) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.monitored, id)
}

// Len reports how many transactions/bundles are currently tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.monitored)
}
