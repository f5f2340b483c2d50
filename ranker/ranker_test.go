package ranker

import (
	"testing"

	"github.com/hefarica/ARBITRAGEXPLUS2025/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(id string, net float64, dexes ...string) route.CandidateRoute {
	tokens := []string{"ETH", "USDT", "ETH"}
	if len(dexes) == 3 {
		tokens = []string{"ETH", "USDC", "DAI", "ETH"}
	}
	hops := make([]route.Hop, len(dexes))
	for i, d := range dexes {
		hops[i] = route.Hop{DexID: d, TokenIn: tokens[i], TokenOut: tokens[i+1]}
	}
	return route.CandidateRoute{
		ID:             id,
		Hops:           hops,
		Tokens:         tokens,
		GrossProfitUSD: net + 5,
		GasCostUSD:     5,
		NetProfitUSD:   net,
		Confidence:     0.6,
		Complexity:     0.8,
	}
}

func newRanker(t *testing.T) *Ranker {
	t.Helper()
	r, err := New(DefaultWeights())
	require.NoError(t, err)
	return r
}

func TestRank_ProfitOrdersRoutes(t *testing.T) {
	r := newRanker(t)

	ranked := r.Rank([]route.CandidateRoute{
		candidate("b", 25, "Dex1", "Dex2"),
		candidate("a", 40, "Dex2", "Dex1"),
	})
	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].ID)
	assert.Equal(t, 1, ranked[0].Position)
	assert.Equal(t, "b", ranked[1].ID)
	assert.Equal(t, 2, ranked[1].Position)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestScore_SubScores(t *testing.T) {
	r := newRanker(t)

	// --- Test Cases Setup ---
	testCases := []struct {
		name       string
		mutate     func(c *route.CandidateRoute)
		profit     float64
		risk       float64
		efficiency float64
	}{
		{
			name:       "typical",
			mutate:     func(c *route.CandidateRoute) {},
			profit:     0.4,
			risk:       0.7,
			efficiency: 0.9,
		},
		{
			name: "profit and efficiency saturate",
			mutate: func(c *route.CandidateRoute) {
				c.NetProfitUSD = 500
				c.GrossProfitUSD = 505
			},
			profit:     1,
			risk:       0.7,
			efficiency: 1,
		},
		{
			name:       "free gas has no efficiency",
			mutate:     func(c *route.CandidateRoute) { c.GasCostUSD = 0 },
			profit:     0.4,
			risk:       0.7,
			efficiency: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := candidate("x", 40, "Dex1", "Dex2")
			tc.mutate(&c)
			got := r.Score(c)
			assert.InDelta(t, tc.profit, got.ProfitScore, 1e-12)
			assert.InDelta(t, tc.risk, got.RiskScore, 1e-12)
			assert.InDelta(t, tc.efficiency, got.EfficiencyScore, 1e-12)

			w := DefaultWeights()
			want := got.ProfitScore*w.Profit + c.Confidence*w.Confidence + c.Complexity*w.Complexity +
				got.EfficiencyScore*w.Gas + got.RiskScore*w.Liquidity
			assert.InDelta(t, want, got.Score, 1e-12)
		})
	}
}

func TestRank_StableAndIdempotent(t *testing.T) {
	r := newRanker(t)
	routes := []route.CandidateRoute{
		candidate("first", 10, "Dex1", "Dex2"),
		candidate("second", 10, "Dex1", "Dex3"),
		candidate("top", 90, "Dex2", "Dex3"),
		candidate("third", 10, "Dex2", "Dex1"),
	}

	once := r.Rank(routes)
	twice := r.Rank(routes)
	require.Equal(t, once, twice)

	ids := make([]string, len(once))
	for i, rr := range once {
		ids[i] = rr.ID
		assert.Equal(t, i+1, rr.Position)
	}
	assert.Equal(t, []string{"top", "first", "second", "third"}, ids)

	assert.Empty(t, r.Rank(nil))
}

func TestRerank(t *testing.T) {
	r := newRanker(t)
	ranked := r.Rank([]route.CandidateRoute{
		candidate("a", 40, "Dex1", "Dex2"),
		candidate("b", 38, "Dex2", "Dex1"),
	})
	before := ranked[0].Score

	reranked := Rerank(ranked, map[string]float64{"b": 1})
	require.Len(t, reranked, 2)
	assert.Equal(t, "b", reranked[0].ID)
	assert.Equal(t, 1, reranked[0].Position)
	assert.InDelta(t, before*0.7+0.5*0.3, reranked[1].Score, 1e-12)

	// input untouched
	assert.Equal(t, "a", ranked[0].ID)
	assert.Equal(t, before, ranked[0].Score)
}

func TestBucketsAndFilters(t *testing.T) {
	assert.Equal(t, RiskLow, BucketOf(0.8))
	assert.Equal(t, RiskMedium, BucketOf(0.79))
	assert.Equal(t, RiskMedium, BucketOf(0.5))
	assert.Equal(t, RiskHigh, BucketOf(0.49))

	ranked := []route.RankedRoute{
		{CandidateRoute: route.CandidateRoute{ID: "a"}, Score: 0.9, RiskScore: 0.9},
		{CandidateRoute: route.CandidateRoute{ID: "b"}, Score: 0.6, RiskScore: 0.6},
		{CandidateRoute: route.CandidateRoute{ID: "c"}, Score: 0.3, RiskScore: 0.2},
		{CandidateRoute: route.CandidateRoute{ID: "d"}, Score: 0.2, RiskScore: 0.85},
	}

	groups := GroupByRisk(ranked)
	require.Len(t, groups[RiskLow], 2)
	assert.Equal(t, "a", groups[RiskLow][0].ID)
	assert.Equal(t, "d", groups[RiskLow][1].ID)
	assert.Len(t, groups[RiskMedium], 1)
	assert.Len(t, groups[RiskHigh], 1)

	assert.Len(t, FilterByMinScore(ranked, 0.5), 2)
	assert.Empty(t, FilterByMinScore(ranked, 0.95))
	assert.Len(t, TopN(ranked, 3), 3)
	assert.Len(t, TopN(ranked, 10), 4)
	assert.Empty(t, TopN(ranked, 0))
}

func TestDiversification(t *testing.T) {
	r := newRanker(t)
	ranked := r.Rank([]route.CandidateRoute{
		candidate("a", 40, "Dex1", "Dex2"),
		candidate("b", 30, "Dex1", "Dex2", "Dex3"),
	})
	// 3 dexes, 4 tokens: (0.3 + 0.2) / 2
	assert.InDelta(t, 0.25, Diversification(ranked), 1e-12)
	assert.Zero(t, Diversification(nil))
}

func TestNew_RejectsNegativeWeights(t *testing.T) {
	w := DefaultWeights()
	w.Gas = -1
	_, err := New(w)
	assert.ErrorIs(t, err, ErrInvalidWeights)
}
