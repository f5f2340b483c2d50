package searcher

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
	"github.com/hefarica/ARBITRAGEXPLUS2025/engine/indexer"
	"github.com/hefarica/ARBITRAGEXPLUS2025/memo"
	"github.com/hefarica/ARBITRAGEXPLUS2025/pricing"
	"github.com/hefarica/ARBITRAGEXPLUS2025/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSearcher(t *testing.T, mutate func(c *Config)) *Searcher {
	t.Helper()
	quoter, err := pricing.NewQuoter(pricing.DefaultConfig())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.GasCostUSD = 5
	cfg.Workers = 4
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg, quoter, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func index(t *testing.T, raw *engine.Snapshot) indexer.IndexedMarket {
	t.Helper()
	snap, rejected := engine.Normalize(raw)
	require.Empty(t, rejected)
	return indexer.New().Index(snap)
}

// ethUsdtMarket is two dexes quoting ETH/USDT at slightly different prices.
func ethUsdtMarket() *engine.Snapshot {
	return &engine.Snapshot{
		ChainID: 1,
		Dexes: []engine.DexDescriptor{
			{ID: "Dex1", ChainID: 1, FeeBps: 30, Active: true},
			{ID: "Dex2", ChainID: 1, FeeBps: 25, Active: true},
		},
		Assets: []engine.AssetDescriptor{
			{Symbol: "ETH", PriceUSD: 1800, Active: true},
			{Symbol: "USDT", PriceUSD: 1, Decimals: 6, Active: true},
		},
		Pools: []engine.PoolSnapshot{
			{ID: "dex1-eth-usdt", DexID: "Dex1", TokenA: "ETH", TokenB: "USDT", ReserveA: 100, ReserveB: 180000, Active: true},
			{ID: "dex2-eth-usdt", DexID: "Dex2", TokenA: "ETH", TokenB: "USDT", ReserveA: 120, ReserveB: 210000, Active: true},
		},
	}
}

// triangleMarket has a profitable ETH -> USDC -> DAI -> ETH cycle that needs three dexes.
func triangleMarket() *engine.Snapshot {
	return &engine.Snapshot{
		ChainID: 1,
		Dexes: []engine.DexDescriptor{
			{ID: "D1", ChainID: 1, Active: true},
			{ID: "D2", ChainID: 1, FeeBps: 5, Active: true},
			{ID: "D3", ChainID: 1, Active: true},
		},
		Assets: []engine.AssetDescriptor{
			{Symbol: "ETH", PriceUSD: 1800, Active: true},
			{Symbol: "USDC", PriceUSD: 1, Active: true},
			{Symbol: "DAI", PriceUSD: 1, Active: true},
		},
		Pools: []engine.PoolSnapshot{
			{ID: "d1-eth-usdc", DexID: "D1", TokenA: "ETH", TokenB: "USDC", ReserveA: 1000, ReserveB: 2_000_000, LiquidityUSD: 4_000_000, Active: true},
			{ID: "d2-usdc-dai", DexID: "D2", TokenA: "USDC", TokenB: "DAI", ReserveA: 1e7, ReserveB: 1e7, LiquidityUSD: 2e7, Active: true},
			{ID: "d3-dai-eth", DexID: "D3", TokenA: "DAI", TokenB: "ETH", ReserveA: 1.8e6, ReserveB: 1000, LiquidityUSD: 3_600_000, Active: true},
		},
	}
}

// meshMarket quotes every pair of four tokens on four dexes with skewed prices.
func meshMarket() *engine.Snapshot {
	snap := &engine.Snapshot{
		ChainID: 1,
		Assets: []engine.AssetDescriptor{
			{Symbol: "ETH", PriceUSD: 1800, Active: true},
			{Symbol: "USDC", PriceUSD: 1, Active: true},
			{Symbol: "DAI", PriceUSD: 1, Active: true},
			{Symbol: "WBTC", PriceUSD: 30000, Active: true},
		},
	}
	prices := map[string]float64{"ETH": 1800, "USDC": 1, "DAI": 1, "WBTC": 30000}
	tokens := []string{"ETH", "USDC", "DAI", "WBTC"}
	dexes := []string{"alpha", "beta", "gamma", "delta"}
	for d, dexID := range dexes {
		snap.Dexes = append(snap.Dexes, engine.DexDescriptor{ID: dexID, ChainID: 1, FeeBps: uint16(5 + 10*d), Active: true})
		for i := 0; i < len(tokens); i++ {
			for j := i + 1; j < len(tokens); j++ {
				skew := 1 + 0.01*float64((d+i+2*j)%5-2)
				a, b := tokens[i], tokens[j]
				snap.Pools = append(snap.Pools, engine.PoolSnapshot{
					ID:       dexID + "-" + a + "-" + b,
					DexID:    dexID,
					TokenA:   a,
					TokenB:   b,
					ReserveA: 5_000_000 / prices[a],
					ReserveB: 5_000_000 / prices[b] * skew,
					Active:   true,
				})
			}
		}
	}
	return snap
}

func assertValidCycle(t *testing.T, r route.CandidateRoute, start string) {
	t.Helper()
	require.NoError(t, route.Validate(&r))
	assert.Equal(t, start, r.Tokens[0])
	assert.Equal(t, r.Tokens[0], r.Tokens[len(r.Tokens)-1])
	assert.Len(t, r.Tokens, len(r.Hops)+1)

	intermediate := map[string]bool{}
	for _, tok := range r.Tokens[1 : len(r.Tokens)-1] {
		assert.NotEqual(t, start, tok)
		assert.False(t, intermediate[tok], "intermediate token %s repeats", tok)
		intermediate[tok] = true
	}
	assert.InDelta(t, r.GrossProfitUSD-r.GasCostUSD-r.FeesUSD, r.NetProfitUSD, 1e-9)
	assert.GreaterOrEqual(t, r.Confidence, 0.0)
	assert.LessOrEqual(t, r.Confidence, 1.0)
	assert.GreaterOrEqual(t, r.Complexity, 0.0)
	assert.LessOrEqual(t, r.Complexity, 1.0)
}

func TestTwoDex_EthUsdtScenario(t *testing.T) {
	s := newTestSearcher(t, nil)
	m := index(t, ethUsdtMarket())
	cache := memo.New()

	res, err := s.TwoDex(context.Background(), m, cache, Request{StartToken: "ETH", Amount: 1})
	require.NoError(t, err)
	require.Len(t, res.Routes, 1)

	r := res.Routes[0]
	assertValidCycle(t, r, "ETH")
	assert.Equal(t, []string{"Dex1", "Dex2"}, r.Path())
	assert.Equal(t, []string{"ETH", "USDT", "ETH"}, r.Tokens)
	assert.InDelta(t, 1776.8844619147103, r.Hops[0].AmountOut, 1e-9)
	assert.InDelta(t, 1.0043472504290278, r.FinalAmount, 1e-12)
	assert.Equal(t, 5.0, r.GasCostUSD)
	assert.InDelta(t, 2.8250507722501084, r.NetProfitUSD, 1e-6)
	assert.InDelta(t, 1800.0, r.CapitalUSD, 1e-12)

	// two ordered pairs x two patterns, the reversed pair is served from the cache
	assert.Equal(t, uint64(4), res.Stats.Combinations)
	assert.Equal(t, uint64(2), res.Stats.CacheHits)
	assert.Equal(t, 2, cache.Len())
}

func TestTwoDex_GasPriceCanEraseProfit(t *testing.T) {
	s := newTestSearcher(t, func(c *Config) { c.GasCostUSD = 0 })
	m := index(t, ethUsdtMarket())

	// 2 swaps x 150k gas x 20 gwei x $1800 = $10.8 > $7.8 gross gain
	res, err := s.TwoDex(context.Background(), m, memo.New(), Request{StartToken: "ETH", Amount: 1, GasPriceGwei: 20, NativePriceUSD: 1800})
	require.NoError(t, err)
	assert.Empty(t, res.Routes)
	assert.NotZero(t, res.Stats.Rejected)

	// 1 gwei makes it $0.54
	res, err = s.TwoDex(context.Background(), m, memo.New(), Request{StartToken: "ETH", Amount: 1, GasPriceGwei: 1, NativePriceUSD: 1800})
	require.NoError(t, err)
	require.Len(t, res.Routes, 1)
	assert.InDelta(t, 0.54, res.Routes[0].GasCostUSD, 1e-9)
	assert.Equal(t, uint64(300_000), res.Routes[0].GasUnits)
}

func TestTwoDex_EndpointAndConfigurationEdgeCases(t *testing.T) {
	s := newTestSearcher(t, nil)

	// --- Test Cases Setup ---
	testCases := []struct {
		name   string
		mutate func(snap *engine.Snapshot)
		req    Request
	}{
		{
			name:   "inactive start token",
			mutate: func(snap *engine.Snapshot) { snap.Assets[0].Active = false },
			req:    Request{StartToken: "ETH", Amount: 1},
		},
		{
			name: "unknown start token",
			req:  Request{StartToken: "DOGE", Amount: 1},
		},
		{
			name: "zero amount",
			req:  Request{StartToken: "ETH", Amount: 0},
		},
		{
			name:   "single active dex",
			mutate: func(snap *engine.Snapshot) { snap.Dexes[1].Active = false },
			req:    Request{StartToken: "ETH", Amount: 1},
		},
		{
			name:   "dexes on different chains",
			mutate: func(snap *engine.Snapshot) { snap.Dexes[1].ChainID = 56 },
			req:    Request{StartToken: "ETH", Amount: 1},
		},
		{
			name:   "minimum profit threshold on the asset",
			mutate: func(snap *engine.Snapshot) { snap.Assets[0].MinProfitUSD = 3 },
			req:    Request{StartToken: "ETH", Amount: 1},
		},
		{
			name: "pool without a registered calculator is skipped, not fatal",
			mutate: func(snap *engine.Snapshot) {
				snap.Pools[1].Protocol = engine.Custom
			},
			req: Request{StartToken: "ETH", Amount: 1},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw := ethUsdtMarket()
			if tc.mutate != nil {
				tc.mutate(raw)
			}
			res, err := s.TwoDex(context.Background(), index(t, raw), memo.New(), tc.req)
			require.NoError(t, err)
			assert.Empty(t, res.Routes)
		})
	}
}

func TestTwoDex_DeeperUnpriceablePoolDoesNotShadowValidPool(t *testing.T) {
	s := newTestSearcher(t, nil)
	raw := ethUsdtMarket()
	raw.Pools = append(raw.Pools, engine.PoolSnapshot{
		ID: "dex1-eth-usdt-stable", DexID: "Dex1", TokenA: "ETH", TokenB: "USDT",
		ReserveA: 1000, ReserveB: 1_800_000, LiquidityUSD: 3_600_000,
		Protocol: engine.StableSwap, Active: true,
	})

	snap, rejected := engine.Normalize(raw)
	require.Len(t, rejected, 1)
	assert.ErrorIs(t, rejected[0], engine.ErrMissingParameters)

	m := indexer.New().Index(snap)
	pool, ok := m.GetPool("Dex1", "ETH", "USDT")
	require.True(t, ok)
	assert.Equal(t, "dex1-eth-usdt", pool.ID)

	res, err := s.TwoDex(context.Background(), m, memo.New(), Request{StartToken: "ETH", Amount: 1})
	require.NoError(t, err)
	require.Len(t, res.Routes, 1)
	assertValidCycle(t, res.Routes[0], "ETH")
}

func TestThreeDex_TriangleScenario(t *testing.T) {
	s := newTestSearcher(t, nil)
	m := index(t, triangleMarket())
	cache := memo.New()

	res, err := s.ThreeDex(context.Background(), m, cache, Request{StartToken: "ETH", Amount: 1})
	require.NoError(t, err)
	require.Len(t, res.Routes, 1)

	r := res.Routes[0]
	assertValidCycle(t, r, "ETH")
	assert.Equal(t, []string{"D1", "D2", "D3"}, r.Path())
	assert.Equal(t, []string{"ETH", "USDC", "DAI", "ETH"}, r.Tokens)
	assert.InDelta(t, 1.1013688458306525, r.FinalAmount, 1e-9)
	assert.InDelta(t, 182.46392249517456-5, r.NetProfitUSD, 1e-6)

	// six ordered triples collapse onto one memo entry
	assert.Equal(t, uint64(6), res.Stats.Combinations)
	assert.Equal(t, uint64(5), res.Stats.CacheHits)
	assert.Equal(t, 1, cache.Len())

	// the pair searcher cannot close this cycle
	two, err := s.TwoDex(context.Background(), m, memo.New(), Request{StartToken: "ETH", Amount: 1})
	require.NoError(t, err)
	assert.Empty(t, two.Routes)
}

func TestSearch_CycleValidityOnMesh(t *testing.T) {
	s := newTestSearcher(t, func(c *Config) { c.GasCostUSD = 0.01 })
	m := index(t, meshMarket())

	for _, start := range []string{"ETH", "USDC", "DAI", "WBTC"} {
		a, ok := m.GetAsset(start)
		require.True(t, ok)
		req := Request{StartToken: start, Amount: 1000 / a.PriceUSD}

		two, err := s.TwoDex(context.Background(), m, memo.New(), req)
		require.NoError(t, err)
		three, err := s.ThreeDex(context.Background(), m, memo.New(), req)
		require.NoError(t, err)

		for _, r := range append(two.Routes, three.Routes...) {
			assertValidCycle(t, r, start)
		}
		for i := 1; i < len(two.Routes); i++ {
			assert.GreaterOrEqual(t, two.Routes[i-1].NetProfitUSD, two.Routes[i].NetProfitUSD)
		}
	}
}

func TestSearch_CacheCorrectness(t *testing.T) {
	s := newTestSearcher(t, func(c *Config) { c.GasCostUSD = 0.01 })
	m := index(t, meshMarket())
	req := Request{StartToken: "USDC", Amount: 1000}

	cache := memo.New()
	first, err := s.ThreeDex(context.Background(), m, cache, req)
	require.NoError(t, err)

	// the same search against a warm cache is served entirely from it
	second, err := s.ThreeDex(context.Background(), m, cache, req)
	require.NoError(t, err)
	assert.Equal(t, second.Stats.Combinations, second.Stats.CacheHits)
	assert.Zero(t, second.Stats.Evaluated)

	// and a cold recompute agrees with both
	fresh, err := s.ThreeDex(context.Background(), m, memo.New(), req)
	require.NoError(t, err)

	require.Equal(t, len(first.Routes), len(second.Routes))
	require.Equal(t, len(first.Routes), len(fresh.Routes))
	for i := range first.Routes {
		assert.Equal(t, first.Routes[i].ID, second.Routes[i].ID)
		assert.Equal(t, first.Routes[i].NetProfitUSD, second.Routes[i].NetProfitUSD)
		assert.Equal(t, first.Routes[i].NetProfitUSD, fresh.Routes[i].NetProfitUSD)
	}

	for key, entry := range cache.Entries() {
		if !entry.Found() {
			continue
		}
		assert.Equal(t, entry.Route.NetProfitUSD, entry.Profit, "key %s", key)
	}
}

func TestSearch_CancelledContext(t *testing.T) {
	s := newTestSearcher(t, nil)
	m := index(t, meshMarket())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ThreeDex(ctx, m, memo.New(), Request{StartToken: "ETH", Amount: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_InvalidConfig(t *testing.T) {
	quoter, err := pricing.NewQuoter(pricing.DefaultConfig())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Workers = 0
	_, err = New(cfg, quoter, slog.Default())
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.PairLiquidityWeight = 2
	_, err = New(cfg, quoter, slog.Default())
	assert.Error(t, err)
}

func TestScores(t *testing.T) {
	s := newTestSearcher(t, nil)

	// --- Test Cases Setup ---
	testCases := []struct {
		name       string
		minPoolLiq float64
		avgDexLiq  float64
		expected   float64
	}{
		{name: "saturated", minPoolLiq: 5e6, avgDexLiq: 5e7, expected: 1},
		{name: "half pair, no dex", minPoolLiq: 5e5, avgDexLiq: 0, expected: 0.35},
		{name: "no pair, half dex", minPoolLiq: 0, avgDexLiq: 5e6, expected: 0.15},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, s.confidence(tc.minPoolLiq, tc.avgDexLiq), 1e-12)
		})
	}

	// 2 hops at 0.3% each: 0.5*(1-0.2) + 0.5*(1-0.12) = 0.84
	assert.InDelta(t, 0.84, s.complexity(2, 0.6), 1e-12)
	// penalties are capped
	assert.InDelta(t, 0.5, s.complexity(50, 100), 1e-12)
	assert.Greater(t, s.complexity(2, 0.6), s.complexity(3, 0.9))
}
