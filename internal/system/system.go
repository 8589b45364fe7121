// Package system composes the pipeline stages (market -> discovery ->
// validation -> strategy -> execution -> tracker) into a single supervised
// loop, with the optional storage/eventbus sinks wired in only when
// configured.
package system

import (
	"context"
	"math/big"
	"time"

	"github.com/nexusdex/arbengine/internal/discovery"
	"github.com/nexusdex/arbengine/internal/eventbus"
	"github.com/nexusdex/arbengine/internal/execution"
	"github.com/nexusdex/arbengine/internal/flashloan"
	"github.com/nexusdex/arbengine/internal/market"
	"github.com/nexusdex/arbengine/internal/rpcclient"
	"github.com/nexusdex/arbengine/internal/storage"
	"github.com/nexusdex/arbengine/internal/strategy"
	"github.com/nexusdex/arbengine/internal/tracker"
	"github.com/nexusdex/arbengine/internal/types"
	"github.com/nexusdex/arbengine/internal/validation"
	"github.com/nexusdex/arbengine/pkg/cache"
	"github.com/nexusdex/arbengine/pkg/config"
	"github.com/nexusdex/arbengine/pkg/logger"
	"go.uber.org/zap"
)

// Engine wires together every pipeline stage and runs the top-level
// discovery/execution loop.
type Engine struct {
	cfg *config.Config
	log *logger.Logger

	market     *market.MarketData
	discovery  *discovery.Engine
	validation *validation.Engine
	execution  *execution.Engine
	tracker    *tracker.Tracker
	loans      *flashloan.Selector
	chain      rpcclient.Client

	storage   *storage.Store
	publisher eventbus.Publisher

	strategyCfg strategy.Config
	minProfitWei *big.Int

	cancel context.CancelFunc
	done   chan struct{}

	// Bounded in-process history, rebuilt from scratch on boot. The
	// opportunity cache holds immutable snapshots keyed by id; the
	// execution cache holds the latest result per opportunity.
	opportunities *cache.LRU
	executions    *cache.LRU
}

// Deps collects the constructed components Engine composes. Every field
// besides the required pipeline stages may be left nil/zero when the
// corresponding feature is not configured.
type Deps struct {
	Market      *market.MarketData
	Discovery   *discovery.Engine
	Validation  *validation.Engine
	Execution   *execution.Engine
	Tracker     *tracker.Tracker
	Loans       *flashloan.Selector
	Chain       rpcclient.Client
	Storage     *storage.Store
	Publisher   eventbus.Publisher
	StrategyCfg strategy.Config
}

// New constructs an Engine from already-built stage components. The
// engine wires stages together; it never constructs the external
// collaborators (RPC client, signer, router ABI codec) each stage depends
// on.
func New(cfg *config.Config, deps Deps, log *logger.Logger) *Engine {
	minProfit, ok := new(big.Int).SetString(cfg.Discovery.MinProfitWei, 10)
	if !ok {
		minProfit = big.NewInt(0)
	}
	oppCacheSize := cfg.Discovery.MaxOpportunityCache
	if oppCacheSize <= 0 {
		oppCacheSize = 1000
	}
	execHistorySize := cfg.Execution.MaxExecutionHistory
	if execHistorySize <= 0 {
		execHistorySize = 1000
	}
	return &Engine{
		cfg:           cfg,
		log:           log.Named("system"),
		market:        deps.Market,
		discovery:     deps.Discovery,
		validation:    deps.Validation,
		execution:     deps.Execution,
		tracker:       deps.Tracker,
		loans:         deps.Loans,
		chain:         deps.Chain,
		storage:       deps.Storage,
		publisher:     deps.Publisher,
		strategyCfg:   deps.StrategyCfg,
		minProfitWei:  minProfit,
		opportunities: cache.NewLRU(oppCacheSize),
		executions:    cache.NewLRU(execHistorySize),
	}
}

// Start launches the market refresh loop and the discovery/execution loop,
// both cancellable via Stop.
func (e *Engine) Start(ctx context.Context) error {
	refreshInterval := time.Duration(e.cfg.Discovery.IntervalSeconds) * time.Second
	if refreshInterval <= 0 {
		refreshInterval = 10 * time.Second
	}
	if err := e.market.Start(ctx, refreshInterval); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.runLoop(runCtx, refreshInterval)
	return nil
}

// Stop cancels the run loop and the market refresh loop and waits for both
// to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
		e.cancel = nil
	}
	e.market.Stop()
	if e.storage != nil {
		e.storage.Close()
	}
	if e.publisher != nil {
		e.publisher.Close()
	}
}

func (e *Engine) runLoop(ctx context.Context, interval time.Duration) {
	defer close(e.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick runs one full discover -> validate -> select -> execute pass,
// processing discovered opportunities sequentially in ranked order (the
// execution engine's own concurrency gate bounds actual concurrent
// submissions).
func (e *Engine) tick(ctx context.Context) {
	condition := e.market.Current()

	opportunities, err := e.discovery.Discover(ctx, e.cfg.Discovery.MaxOpportunities, e.minProfitWei, condition, discovery.Params{})
	if err != nil {
		e.log.Warn("discovery failed this tick", zap.Error(err))
		return
	}

	for _, opp := range opportunities {
		e.processOpportunity(ctx, opp, condition)
	}
}

func (e *Engine) processOpportunity(ctx context.Context, opp *types.Opportunity, condition types.MarketCondition) {
	validated := e.validation.Validate(ctx, opp, condition)
	e.recordOpportunity(ctx, validated)

	if validated.Status != types.StatusPending {
		return
	}
	if !e.cfg.Execution.AutoExecute {
		return
	}

	// wallet balances are sourced inside execution.Engine's own balance
	// check; Select here only needs flash-loan viability to route capital-short
	// opportunities, so a nil WalletBalances simply treats capital as unavailable.
	plan := strategy.Select(validated, nil, e.flashLoanViable, e.strategyCfg)
	result := e.execution.Execute(ctx, validated, plan, condition)
	e.recordExecution(ctx, result)

	if result.Status == types.StatusSubmitted && e.tracker != nil && len(result.Transactions) > 0 {
		e.trackResult(ctx, result)
	}
}

// flashLoanViable reports whether the flash-loan selector can source the
// opportunity's input token, used by strategy.Select's precedence table.
func (e *Engine) flashLoanViable(opp *types.Opportunity) bool {
	if e.loans == nil || opp.InputWei == nil {
		return false
	}
	checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := e.loans.SelectSingle(checkCtx, opp.Route.StartToken(), opp.InputWei)
	return err == nil
}

func (e *Engine) trackResult(ctx context.Context, result *types.ExecutionResult) {
	last := result.Transactions[len(result.Transactions)-1]
	if last.BundleHash != nil && e.chain != nil {
		targetBlock, err := e.chain.BlockNumber(ctx)
		if err != nil {
			return
		}
		go func() {
			_, status, trackErr := e.tracker.TrackBundle(ctx, result.ID, *last.BundleHash, targetBlock)
			e.finalizeTracked(ctx, result, status, trackErr)
		}()
		return
	}
	if last.TxHash != nil {
		go func() {
			_, status, trackErr := e.tracker.TrackTransaction(ctx, result.ID, *last.TxHash)
			e.finalizeTracked(ctx, result, status, trackErr)
		}()
	}
}

func (e *Engine) finalizeTracked(ctx context.Context, result *types.ExecutionResult, status types.ExecutionStatus, err error) {
	result.Status = status
	if err != nil {
		result.Error = err.Error()
	}
	now := time.Now()
	result.EndedAt = &now
	e.recordExecution(ctx, result)
}

func (e *Engine) recordOpportunity(ctx context.Context, opp *types.Opportunity) {
	e.opportunities.Put(opp.ID, opp)

	if e.storage != nil {
		if err := e.storage.SaveOpportunity(ctx, opp); err != nil {
			e.log.Warn("failed to persist opportunity", zap.String("opportunity_id", opp.ID), zap.Error(err))
		}
	}
	if e.publisher != nil {
		if err := e.publisher.PublishOpportunity(ctx, opp); err != nil {
			e.log.Warn("failed to publish opportunity event", zap.String("opportunity_id", opp.ID), zap.Error(err))
		}
	}
}

func (e *Engine) recordExecution(ctx context.Context, result *types.ExecutionResult) {
	e.executions.Put(result.OpportunityID, result)

	if e.storage != nil {
		if err := e.storage.SaveExecutionResult(ctx, result); err != nil {
			e.log.Warn("failed to persist execution result", zap.String("execution_id", result.ID), zap.Error(err))
		}
	}
	if e.publisher != nil {
		if err := e.publisher.PublishExecution(ctx, result); err != nil {
			e.log.Warn("failed to publish execution event", zap.String("execution_id", result.ID), zap.Error(err))
		}
	}
}

// LastResult returns the most recent execution result recorded for an
// opportunity id, for callers (e.g. an API layer) that want current state.
// Returns false once the entry has aged out of the bounded history.
func (e *Engine) LastResult(opportunityID string) (*types.ExecutionResult, bool) {
	v, ok := e.executions.Get(opportunityID)
	if !ok {
		return nil, false
	}
	return v.(*types.ExecutionResult), true
}

// Opportunity returns a cached opportunity snapshot by id, if it has not
// aged out of the bounded cache.
func (e *Engine) Opportunity(id string) (*types.Opportunity, bool) {
	v, ok := e.opportunities.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*types.Opportunity), true
}
