package searcher

import (
	"context"

	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
	"github.com/hefarica/ARBITRAGEXPLUS2025/engine/indexer"
	"github.com/hefarica/ARBITRAGEXPLUS2025/memo"
	"github.com/hefarica/ARBITRAGEXPLUS2025/route"
)

// TwoDex searches every ordered pair of active dexes sharing a chain.
// Each pair {A,B} yields up to two routes:
//
//	direct:     start -A-> mid -B-> start
//	triangular: start -A-> mid -B-> end -A-> start
//
// The best route of each pattern is memoized under the unordered pair, so the
// reversed pair (B,A) is served from the cache.
func (s *Searcher) TwoDex(ctx context.Context, m indexer.IndexedMarket, cache *memo.Cache, req Request) (Result, error) {
	start, ok := startAsset(m, req)
	if !ok {
		return Result{}, nil
	}

	c := &counters{}
	var jobs []job
	for _, chainID := range m.ChainIDs() {
		dexes := m.ActiveDexes(chainID)
		for i := range dexes {
			for j := range dexes {
				if i == j {
					continue
				}
				a, b := dexes[i], dexes[j]
				jobs = append(jobs,
					job{
						key: memo.NewKey(req.StartToken, req.Amount, 2, a.ID, b.ID),
						compute: func() memo.Entry {
							return entryOf(s.bestDirect(m, start, req, a, b, c))
						},
					},
					job{
						key: memo.NewKey(req.StartToken, req.Amount, 3, a.ID, b.ID),
						compute: func() memo.Entry {
							return entryOf(s.bestTriangular(m, start, req, a, b, c))
						},
					},
				)
			}
		}
	}

	return s.run(ctx, cache, jobs, c)
}

// bestDirect evaluates start -x-> mid -y-> start for both orientations of the pair.
func (s *Searcher) bestDirect(m indexer.IndexedMarket, start engine.AssetDescriptor, req Request, a, b engine.DexDescriptor, c *counters) *route.CandidateRoute {
	var best *route.CandidateRoute
	for _, pair := range [2][2]engine.DexDescriptor{{a, b}, {b, a}} {
		x, y := pair[0], pair[1]
		for _, mid := range m.Neighbors(x.ID, req.StartToken) {
			if mid == req.StartToken || !tokenAllowed(m, mid) {
				continue
			}
			if _, ok := m.GetPool(y.ID, mid, req.StartToken); !ok {
				continue
			}
			r, ok := s.evaluate(m, start, req, []leg{
				{dex: x, tokenIn: req.StartToken, tokenOut: mid},
				{dex: y, tokenIn: mid, tokenOut: req.StartToken},
			}, c)
			if ok && better(r, best) {
				best = r
			}
		}
	}
	return best
}

// bestTriangular evaluates start -x-> mid -y-> end -x-> start for both orientations of the pair.
func (s *Searcher) bestTriangular(m indexer.IndexedMarket, start engine.AssetDescriptor, req Request, a, b engine.DexDescriptor, c *counters) *route.CandidateRoute {
	var best *route.CandidateRoute
	for _, pair := range [2][2]engine.DexDescriptor{{a, b}, {b, a}} {
		x, y := pair[0], pair[1]
		for _, mid := range m.Neighbors(x.ID, req.StartToken) {
			if mid == req.StartToken || !tokenAllowed(m, mid) {
				continue
			}
			for _, end := range m.Neighbors(y.ID, mid) {
				if end == req.StartToken || end == mid || !tokenAllowed(m, end) {
					continue
				}
				if _, ok := m.GetPool(x.ID, end, req.StartToken); !ok {
					continue
				}
				r, ok := s.evaluate(m, start, req, []leg{
					{dex: x, tokenIn: req.StartToken, tokenOut: mid},
					{dex: y, tokenIn: mid, tokenOut: end},
					{dex: x, tokenIn: end, tokenOut: req.StartToken},
				}, c)
				if ok && better(r, best) {
					best = r
				}
			}
		}
	}
	return best
}
