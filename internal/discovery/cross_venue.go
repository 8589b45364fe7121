package discovery

import (
	"context"
	"math/big"

	"github.com/nexusdex/arbengine/internal/pricing"
	"github.com/nexusdex/arbengine/internal/types"
)

// CrossVenueDetector finds two-leg dislocations: for each token pair traded
// on 2+ venues, buy on the cheaper venue and sell on the more expensive
// one, sized by pool liquidity.
type CrossVenueDetector struct {
	id        string
	cache     *QuoteCache
	pairCache *PairCache
}

// NewCrossVenueDetector constructs the detector with the given registered
// id. Either cache may be nil, in which case quotes/pair lookups are never
// memoized.
func NewCrossVenueDetector(id string, quoteCache *QuoteCache, pairCache *PairCache) *CrossVenueDetector {
	if id == "" {
		id = "cross-venue"
	}
	return &CrossVenueDetector{id: id, cache: quoteCache, pairCache: pairCache}
}

func (d *CrossVenueDetector) ID() string { return d.id }

func (d *CrossVenueDetector) Detect(ctx context.Context, pools []types.PoolInfo, market types.MarketCondition, params Params) ([]*types.Opportunity, error) {
	pairs := poolsByPair(pools)

	var opportunities []*types.Opportunity
	for key, poolsForPair := range pairs {
		venueIDs := make([]string, len(poolsForPair))
		for i, p := range poolsForPair {
			venueIDs[i] = p.VenueID
		}
		if d.pairCache != nil {
			d.pairCache.PutVenueIDs(ctx, key.a.Hex(), key.b.Hex(), venueIDs)
		}
		if len(poolsForPair) < 2 {
			continue // needs 2+ venues
		}
		select {
		case <-ctx.Done():
			return opportunities, ctx.Err()
		default:
		}

		for i := 0; i < len(poolsForPair); i++ {
			for j := 0; j < len(poolsForPair); j++ {
				if i == j || poolsForPair[i].VenueID == poolsForPair[j].VenueID {
					continue
				}
				buyPool, sellPool := poolsForPair[i], poolsForPair[j]
				opp := d.tryPair(ctx, buyPool, sellPool, market)
				if opp != nil {
					opp.DetectorID = d.id
					opportunities = append(opportunities, opp)
				}
			}
		}
	}
	return opportunities, nil
}

// tryPair computes: buy tokenB with tokenA on buyPool, then sell tokenB for
// tokenA on sellPool; profitable if the round trip returns more tokenA than
// it started with.
func (d *CrossVenueDetector) tryPair(ctx context.Context, buyPool, sellPool types.PoolInfo, market types.MarketCondition) *types.Opportunity {
	tokenA, tokenB := buyPool.Tokens[0], buyPool.Tokens[1]
	if !sellPool.ContainsPair(tokenA.Address, tokenB.Address) {
		return nil
	}

	sampleIn := canonicalSampleInput(tokenA, buyPool.Reserves[0])
	if sampleIn == nil || sampleIn.Sign() <= 0 {
		return nil
	}

	amountB, err := d.quote(ctx, buyPool, tokenA, tokenB, sampleIn)
	if err != nil || amountB.Sign() <= 0 {
		return nil
	}
	amountAOut, err := d.quote(ctx, sellPool, tokenB, tokenA, amountB)
	if err != nil || amountAOut.Sign() <= 0 {
		return nil
	}

	profit := new(big.Int).Sub(amountAOut, sampleIn)
	if profit.Sign() <= 0 {
		return nil
	}

	route := types.Route{Steps: []types.TradeStep{
		{Pool: buyPool, TokenIn: tokenA, TokenOut: tokenB, ExpectedOutWei: amountB},
		{Pool: sellPool, TokenIn: tokenB, TokenOut: tokenA, ExpectedOutWei: amountAOut},
	}}
	if err := route.Validate(); err != nil {
		return nil
	}

	opp := types.NewOpportunity(types.StrategyCrossVenue, route, sampleIn, amountAOut, profit)
	opp.GasPriceWei = market.GasPriceWei
	opp.PriorityFeeWei = market.PriorityFeeWei
	return opp
}

// quote wraps pricing.Quote with a (venue, token_in, token_out) cache
// lookup, amortizing quote math across closely-spaced market ticks.
func (d *CrossVenueDetector) quote(ctx context.Context, pool types.PoolInfo, tokenIn, tokenOut types.Token, amountIn *big.Int) (*big.Int, error) {
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

// canonicalSampleInput sizes the probe amount at 1% of the given reserve,
// capped at one whole token unit (and one whole token unit when no reserve
// is known), so the discovery pass never proposes a size the pool
// obviously cannot support.
func canonicalSampleInput(token types.Token, reserve *big.Int) *big.Int {
	oneToken := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(token.Decimals)), nil)
	if reserve == nil || reserve.Sign() <= 0 {
		return oneToken
	}
	capped := new(big.Int).Div(reserve, big.NewInt(100)) // 1% of reserve
	if capped.Cmp(oneToken) < 0 {
		return capped
	}
	return oneToken
}
