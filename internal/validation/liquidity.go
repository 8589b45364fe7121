package validation

import (
	"context"

	"github.com/nexusdex/arbengine/internal/types"
	"github.com/shopspring/decimal"
)

// MarketLiquiditySource adapts internal/market's normalized [0,1] liquidity
// levels into a USD estimate, by scaling against a reference pool size. It
// exists for callers with no richer subgraph-backed liquidity source.
type MarketLiquiditySource struct {
	market                MarketConditionSource
	referenceLiquidityUSD decimal.Decimal
}

// MarketConditionSource supplies the current market snapshot.
type MarketConditionSource interface {
	Current() types.MarketCondition
}

// NewMarketLiquiditySource constructs a source scaling normalized liquidity
// levels by referenceLiquidityUSD (the USD value a level of 1.0 represents).
func NewMarketLiquiditySource(market MarketConditionSource, referenceLiquidityUSD decimal.Decimal) *MarketLiquiditySource {
	return &MarketLiquiditySource{market: market, referenceLiquidityUSD: referenceLiquidityUSD}
}

// LiquidityUSD returns normalized_level * referenceLiquidityUSD, or zero
// when the pool carries no liquidity entry.
func (s *MarketLiquiditySource) LiquidityUSD(ctx context.Context, pool types.PoolInfo) (decimal.Decimal, error) {
	level, ok := s.market.Current().LiquidityLevels[pool.PoolAddress]
	if !ok {
		return decimal.Zero, nil
	}
	return level.Mul(s.referenceLiquidityUSD), nil
}
