package discovery

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/nexusdex/arbengine/internal/types"
)

// edge is one hop out of a token in a single venue's adjacency graph.
type edge struct {
	neighbor common.Address
	pool     types.PoolInfo
}

// venueGraph is a per-venue token -> []edge adjacency list.
type venueGraph map[string]map[common.Address][]edge

// buildVenueGraphs groups pools by venue and builds each venue's adjacency list.
func buildVenueGraphs(pools []types.PoolInfo) venueGraph {
	graphs := make(venueGraph)
	for _, p := range pools {
		if len(p.Tokens) < 2 {
			continue
		}
		g, ok := graphs[p.VenueID]
		if !ok {
			g = make(map[common.Address][]edge)
			graphs[p.VenueID] = g
		}
		a, b := p.Tokens[0], p.Tokens[1]
		g[a.Address] = append(g[a.Address], edge{neighbor: b.Address, pool: p})
		g[b.Address] = append(g[b.Address], edge{neighbor: a.Address, pool: p})
	}
	return graphs
}

// selectBaseTokens picks the n tokens with the highest aggregate degree
// across all venue graphs, the fallback when the caller supplies no base
// tokens of its own.
func selectBaseTokens(graphs venueGraph, n int) []common.Address {
	degree := make(map[common.Address]int)
	for _, g := range graphs {
		for tok, edges := range g {
			degree[tok] += len(edges)
		}
	}

	type scored struct {
		addr   common.Address
		degree int
	}
	var all []scored
	for addr, d := range degree {
		all = append(all, scored{addr: addr, degree: d})
	}
	// Deterministic ordering: degree desc, address asc.
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].degree > all[i].degree || (all[j].degree == all[i].degree && all[j].addr.Hex() < all[i].addr.Hex()) {
				all[i], all[j] = all[j], all[i]
			}
		}
	}

	if n > len(all) {
		n = len(all)
	}
	out := make([]common.Address, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, all[i].addr)
	}
	return out
}

// poolsByPair groups pools by token-pair key so the cross-venue
// detector can find pairs traded on 2+ venues.
func poolsByPair(pools []types.PoolInfo) map[pairKey][]types.PoolInfo {
	out := make(map[pairKey][]types.PoolInfo)
	for _, p := range pools {
		if len(p.Tokens) < 2 {
			continue
		}
		out[newPairKey(p.Tokens[0].Address, p.Tokens[1].Address)] = append(out[newPairKey(p.Tokens[0].Address, p.Tokens[1].Address)], p)
	}
	return out
}

// pairKey is an unordered token-pair identity.
type pairKey struct {
	a, b common.Address
}

func newPairKey(x, y common.Address) pairKey {
	if x.Hex() < y.Hex() {
		return pairKey{a: x, b: y}
	}
	return pairKey{a: y, b: x}
}
