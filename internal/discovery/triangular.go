package discovery

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nexusdex/arbengine/internal/pricing"
	"github.com/nexusdex/arbengine/internal/types"
)

// TriangularDetector finds three-leg cycles within a single venue: it
// builds a per-venue adjacency graph, DFS-enumerates base->t1->t2->base
// cycles, and checks the cumulative price ratio through the pool pricing
// math.
type TriangularDetector struct {
	id                  string
	baseTokenCount      int
	minProfitPercentage float64
	cache               *QuoteCache
}

// NewTriangularDetector constructs the detector, selecting up to
// baseTokenCount base tokens automatically when Params.BaseTokens is empty.
// minProfitPercentage is the floor a cycle's round-trip ratio must exceed
// 1 by (Config.MinProfitPercentage, default 0.3); a value <= 0 falls back
// to that same default rather than silently accepting every cycle.
// quoteCache may be nil, in which case quotes are never memoized.
func NewTriangularDetector(id string, baseTokenCount int, minProfitPercentage float64, quoteCache *QuoteCache) *TriangularDetector {
	if id == "" {
		id = "triangular"
	}
	if baseTokenCount <= 0 {
		baseTokenCount = 5
	}
	if minProfitPercentage <= 0 {
		minProfitPercentage = 0.3
	}
	return &TriangularDetector{id: id, baseTokenCount: baseTokenCount, minProfitPercentage: minProfitPercentage, cache: quoteCache}
}

func (d *TriangularDetector) ID() string { return d.id }

func (d *TriangularDetector) Detect(ctx context.Context, pools []types.PoolInfo, market types.MarketCondition, params Params) ([]*types.Opportunity, error) {
	graphs := buildVenueGraphs(pools)

	baseTokens := params.BaseTokens
	if len(baseTokens) == 0 {
		baseTokens = selectBaseTokens(graphs, d.baseTokenCount)
	}

	tokenByAddr := make(map[common.Address]types.Token)
	for _, p := range pools {
		tokenByAddr[p.Tokens[0].Address] = p.Tokens[0]
		tokenByAddr[p.Tokens[1].Address] = p.Tokens[1]
	}

	var opportunities []*types.Opportunity
	for venueID, g := range graphs {
		select {
		case <-ctx.Done():
			return opportunities, ctx.Err()
		default:
		}
		for _, base := range baseTokens {
			opps := d.findCyclesFromBase(ctx, venueID, g, base, tokenByAddr, market)
			opportunities = append(opportunities, opps...)
		}
	}
	return opportunities, nil
}

// findCyclesFromBase DFS-enumerates base->t1->t2->base cycles within a
// single venue's graph.
func (d *TriangularDetector) findCyclesFromBase(ctx context.Context, venueID string, g map[common.Address][]edge, base common.Address, tokens map[common.Address]types.Token, market types.MarketCondition) []*types.Opportunity {
	baseToken, ok := tokens[base]
	if !ok {
		return nil
	}
	sampleIn := canonicalSampleInput(baseToken, nil)

	var found []*types.Opportunity
	for _, e1 := range g[base] {
		t1 := e1.neighbor
		if t1 == base {
			continue
		}
		t1Token := tokens[t1]
		amount1, err := d.quote(ctx, e1.pool, baseToken, t1Token, sampleIn)
		if err != nil || amount1.Sign() <= 0 {
			continue
		}

		for _, e2 := range g[t1] {
			t2 := e2.neighbor
			if t2 == base || t2 == t1 {
				continue
			}
			t2Token := tokens[t2]
			amount2, err := d.quote(ctx, e2.pool, t1Token, t2Token, amount1)
			if err != nil || amount2.Sign() <= 0 {
				continue
			}

			for _, e3 := range g[t2] {
				if e3.neighbor != base {
					continue
				}
				amount3, err := d.quote(ctx, e3.pool, t2Token, baseToken, amount2)
				if err != nil || amount3.Sign() <= 0 {
					continue
				}

				profit := new(big.Int).Sub(amount3, sampleIn)
				if profit.Sign() <= 0 {
					continue
				}
				profitPct := new(big.Float).Quo(new(big.Float).SetInt(profit), new(big.Float).SetInt(sampleIn))
				pct, _ := profitPct.Float64()
				if pct*100 < d.minProfitPercentage {
					continue
				}

				route := types.Route{Steps: []types.TradeStep{
					{Pool: e1.pool, TokenIn: baseToken, TokenOut: t1Token, ExpectedOutWei: amount1},
					{Pool: e2.pool, TokenIn: t1Token, TokenOut: t2Token, ExpectedOutWei: amount2},
					{Pool: e3.pool, TokenIn: t2Token, TokenOut: baseToken, ExpectedOutWei: amount3},
				}}
				if err := route.Validate(); err != nil || !route.IsCyclic() {
					continue
				}

				opp := types.NewOpportunity(types.StrategyTriangular, route, sampleIn, amount3, profit)
				opp.DetectorID = d.id
				opp.GasPriceWei = market.GasPriceWei
				opp.PriorityFeeWei = market.PriorityFeeWei
				opp.Metadata["venue"] = venueID
				found = append(found, opp)
			}
		}
	}
	return found
}

// quote wraps pricing.Quote with a cache lookup, shared with CrossVenueDetector.
func (d *TriangularDetector) quote(ctx context.Context, pool types.PoolInfo, tokenIn, tokenOut types.Token, amountIn *big.Int) (*big.Int, error) {
	if d.cache != nil {
		if cached, ok := d.cache.Get(ctx, pool.VenueID, tokenIn.Address.Hex(), tokenOut.Address.Hex(), amountIn); ok {
			return cached, nil
		}
	}
	out, err := pricing.Quote(pool, tokenIn, amountIn)
	if err != nil {
		return nil, err
	}
	if d.cache != nil {
		d.cache.Put(ctx, pool.VenueID, tokenIn.Address.Hex(), tokenOut.Address.Hex(), amountIn, out)
	}
	return out, nil
}
