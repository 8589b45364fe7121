package discovery

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/nexusdex/arbengine/pkg/cache"
	"github.com/nexusdex/arbengine/pkg/redis"
)

// QuoteCache memoizes pricing.Quote results keyed by (venue, token_in,
// token_out, amount_in). Backed by pkg/cache.TTLCache, which in turn is
// backed by Redis when redisClient is non-nil.
type QuoteCache struct {
	ttl *cache.TTLCache
}

// NewQuoteCache constructs a QuoteCache with a 5s TTL.
func NewQuoteCache(redisClient redis.Client) *QuoteCache {
	return &QuoteCache{ttl: cache.New("discovery:quote", 5*time.Second, redisClient)}
}

func quoteKey(venueID, tokenIn, tokenOut string, amountIn *big.Int) string {
	return fmt.Sprintf("%s:%s:%s:%s", venueID, tokenIn, tokenOut, amountIn.String())
}

// Get returns a cached quote amount, if present and unexpired.
func (q *QuoteCache) Get(ctx context.Context, venueID, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, bool) {
	var raw string
	ok, err := q.ttl.Get(ctx, quoteKey(venueID, tokenIn, tokenOut, amountIn), &raw)
	if err != nil || !ok {
		return nil, false
	}
	amount, success := new(big.Int).SetString(raw, 10)
	if !success {
		return nil, false
	}
	return amount, true
}

// Put stores a quote result.
func (q *QuoteCache) Put(ctx context.Context, venueID, tokenIn, tokenOut string, amountIn, amountOut *big.Int) {
	_ = q.ttl.Set(ctx, quoteKey(venueID, tokenIn, tokenOut, amountIn), amountOut.String())
}

// PairCache memoizes the per-venue token-pair enumeration, avoiding a full
// poolsByPair() rebuild on every detector run within the TTL window.
type PairCache struct {
	ttl *cache.TTLCache
}

// NewPairCache constructs a PairCache with a 5s TTL.
func NewPairCache(redisClient redis.Client) *PairCache {
	return &PairCache{ttl: cache.New("discovery:pairs", 5*time.Second, redisClient)}
}

func pairCacheKey(tokenA, tokenB string) string {
	if tokenA > tokenB {
		tokenA, tokenB = tokenB, tokenA
	}
	return tokenA + ":" + tokenB
}

// VenueIDs returns the cached list of venues known to trade (tokenA, tokenB),
// if present and unexpired.
func (p *PairCache) VenueIDs(ctx context.Context, tokenA, tokenB string) ([]string, bool) {
	var venues []string
	ok, err := p.ttl.Get(ctx, pairCacheKey(tokenA, tokenB), &venues)
	if err != nil || !ok {
		return nil, false
	}
	return venues, true
}

// PutVenueIDs caches the venues trading (tokenA, tokenB), letting the
// cross-venue detector skip single-venue pairs without rebuilding the full
// pair grouping on every call within the TTL window.
func (p *PairCache) PutVenueIDs(ctx context.Context, tokenA, tokenB string, venueIDs []string) {
	_ = p.ttl.Set(ctx, pairCacheKey(tokenA, tokenB), venueIDs)
}
