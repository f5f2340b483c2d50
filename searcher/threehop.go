package searcher

import (
	"context"

	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
	"github.com/hefarica/ARBITRAGEXPLUS2025/engine/indexer"
	"github.com/hefarica/ARBITRAGEXPLUS2025/memo"
	"github.com/hefarica/ARBITRAGEXPLUS2025/route"
)

// ThreeDex searches every ordered triple of distinct active dexes sharing a
// chain for start -A-> mid -B-> end -C-> start. The best cycle over all six
// orientations is memoized under the unordered triple.
func (s *Searcher) ThreeDex(ctx context.Context, m indexer.IndexedMarket, cache *memo.Cache, req Request) (Result, error) {
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
				for k := range dexes {
					if i == j || j == k || i == k {
						continue
					}
					a, b, d := dexes[i], dexes[j], dexes[k]
					jobs = append(jobs, job{
						key: memo.NewKey(req.StartToken, req.Amount, 3, a.ID, b.ID, d.ID),
						compute: func() memo.Entry {
							return entryOf(s.bestThreeDex(m, start, req, a, b, d, c))
						},
					})
				}
			}
		}
	}

	return s.run(ctx, cache, jobs, c)
}

func (s *Searcher) bestThreeDex(m indexer.IndexedMarket, start engine.AssetDescriptor, req Request, a, b, d engine.DexDescriptor, c *counters) *route.CandidateRoute {
	orientations := [6][3]engine.DexDescriptor{
		{a, b, d}, {a, d, b},
		{b, a, d}, {b, d, a},
		{d, a, b}, {d, b, a},
	}

	var best *route.CandidateRoute
	for _, o := range orientations {
		x, y, z := o[0], o[1], o[2]
		for _, mid := range m.Neighbors(x.ID, req.StartToken) {
			if mid == req.StartToken || !tokenAllowed(m, mid) {
				continue
			}
			for _, end := range m.Neighbors(y.ID, mid) {
				if end == req.StartToken || end == mid || !tokenAllowed(m, end) {
					continue
				}
				if _, ok := m.GetPool(z.ID, end, req.StartToken); !ok {
					continue
				}
				r, ok := s.evaluate(m, start, req, []leg{
					{dex: x, tokenIn: req.StartToken, tokenOut: mid},
					{dex: y, tokenIn: mid, tokenOut: end},
					{dex: z, tokenIn: end, tokenOut: req.StartToken},
				}, c)
				if ok && better(r, best) {
					best = r
				}
			}
		}
	}
	return best
}
