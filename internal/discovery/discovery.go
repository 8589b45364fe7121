// Package discovery enumerates arbitrage candidates: a concurrent, cached
// graph search for 2-leg cross-venue and 3-leg triangular cycles. Detectors
// are registered by id and dispatched concurrently under a semaphore, with
// per-detector failures isolated from the rest of the run.
package discovery

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nexusdex/arbengine/internal/types"
	"github.com/nexusdex/arbengine/pkg/logger"
	"go.uber.org/zap"
)

// PoolRegistry supplies the current pool topology, backed by an off-chain
// indexer or subgraph supplied by the deployment.
type PoolRegistry interface {
	Pools(ctx context.Context) ([]types.PoolInfo, error)
}

// Params configures a single discovery run.
type Params struct {
	MinProfitWei  *big.Int
	MaxPathLength int
	BaseTokens    []common.Address // optional override of automatic base-token selection
}

// Detector is a single discovery strategy, registered by ID with the orchestrator.
type Detector interface {
	ID() string
	Detect(ctx context.Context, pools []types.PoolInfo, market types.MarketCondition, params Params) ([]*types.Opportunity, error)
}

// Config bounds a discovery run: detector concurrency, wall-clock budget,
// cycle search depth and cache TTLs.
type Config struct {
	MaxConcurrentDetectors int
	WindowBudget           time.Duration
	BaseTokenCount         int
	MaxPathLength          int
	MinProfitPercentage    float64
	PoolCacheTTL           time.Duration
	PairCacheTTL           time.Duration
}

// DefaultConfig returns the stock discovery limits.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentDetectors: 5,
		WindowBudget:           30 * time.Second,
		BaseTokenCount:         5,
		MaxPathLength:          4,
		MinProfitPercentage:    0.3,
		PoolCacheTTL:           30 * time.Second,
		PairCacheTTL:           5 * time.Second,
	}
}

// Engine orchestrates registered detectors.
type Engine struct {
	cfg       Config
	registry  PoolRegistry
	detectors []Detector
	log       *logger.Logger

	poolCacheMu sync.Mutex
	poolCache   []types.PoolInfo
	poolCacheAt time.Time
}

// New constructs a discovery Engine with the given detectors, in registration order.
func New(cfg Config, registry PoolRegistry, log *logger.Logger, detectors ...Detector) *Engine {
	return &Engine{cfg: cfg, registry: registry, detectors: detectors, log: log}
}

// Discover runs every registered detector concurrently (bounded by
// MaxConcurrentDetectors), merges their results, and returns at most
// maxResults opportunities ordered by expected_profit_wei descending, with
// detector id then opportunity id as deterministic tiebreakers.
func (e *Engine) Discover(ctx context.Context, maxResults int, minProfitWei *big.Int, market types.MarketCondition, params Params) ([]*types.Opportunity, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.cfg.WindowBudget)
	defer cancel()

	pools, err := e.cachedPools(runCtx)
	if err != nil {
		return nil, types.Wrap(types.ErrStaleData, "discovery: pool registry unavailable", err)
	}

	if params.MaxPathLength == 0 {
		params.MaxPathLength = e.cfg.MaxPathLength
	}
	params.MinProfitWei = minProfitWei

	sem := make(chan struct{}, e.cfg.MaxConcurrentDetectors)
	var wg sync.WaitGroup
	results := make([][]*types.Opportunity, len(e.detectors))

	for i, d := range e.detectors {
		i, d := i, d
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			opps, derr := d.Detect(runCtx, pools, market, params)
			if derr != nil {
				// Per-detector failures are isolated: logged, contribute
				// zero, pipeline continues.
				e.log.Warn("discovery: detector failed, contributing zero opportunities",
					zap.String("detector", d.ID()), zap.Error(derr))
				return
			}
			results[i] = opps
		}()
	}
	wg.Wait()

	var merged []*types.Opportunity
	for _, r := range results {
		merged = append(merged, r...)
	}

	filtered := merged[:0]
	for _, o := range merged {
		if minProfitWei != nil && o.ExpectedProfitAfterGas().Cmp(minProfitWei) < 0 {
			continue
		}
		filtered = append(filtered, o)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		if cmp := a.ExpectedProfitWei.Cmp(b.ExpectedProfitWei); cmp != 0 {
			return cmp > 0
		}
		if a.DetectorID != b.DetectorID {
			return a.DetectorID < b.DetectorID
		}
		return a.ID < b.ID
	})

	if maxResults > 0 && len(filtered) > maxResults {
		filtered = filtered[:maxResults]
	}
	return filtered, nil
}

func (e *Engine) cachedPools(ctx context.Context) ([]types.PoolInfo, error) {
	e.poolCacheMu.Lock()
	if e.poolCache != nil && time.Since(e.poolCacheAt) < e.cfg.PoolCacheTTL {
		pools := e.poolCache
		e.poolCacheMu.Unlock()
		return pools, nil
	}
	e.poolCacheMu.Unlock()

	pools, err := e.registry.Pools(ctx)
	if err != nil {
		return nil, err
	}

	e.poolCacheMu.Lock()
	e.poolCache = pools
	e.poolCacheAt = time.Now()
	e.poolCacheMu.Unlock()
	return pools, nil
}
