package indexer

import (
	"testing"

	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexableMarket(t *testing.T) {
	// --- Test Data Setup ---
	snap := &engine.Snapshot{
		ChainID: 1,
		Dexes: []engine.DexDescriptor{
			{ID: "uni", ChainID: 1, Active: true},
			{ID: "sushi", ChainID: 1, Active: true},
			{ID: "dead", ChainID: 1, Active: false},
			{ID: "pancake", ChainID: 56, Active: true},
		},
		Assets: []engine.AssetDescriptor{
			{Symbol: "ETH", PriceUSD: 1800, Active: true},
			{Symbol: "USDC", PriceUSD: 1, Active: true},
		},
		Pools: []engine.PoolSnapshot{
			{ID: "a", DexID: "uni", TokenA: "ETH", TokenB: "USDC", ReserveA: 10, ReserveB: 18000, LiquidityUSD: 36000, Active: true},
			{ID: "b", DexID: "uni", TokenA: "USDC", TokenB: "ETH", ReserveA: 180000, ReserveB: 100, LiquidityUSD: 360000, Active: true},
			{ID: "c", DexID: "uni", TokenA: "ETH", TokenB: "DAI", ReserveA: 10, ReserveB: 18000, LiquidityUSD: 36000, Active: false},
			{ID: "d", DexID: "sushi", TokenA: "ETH", TokenB: "DAI", ReserveA: 0, ReserveB: 18000, Active: true},
			{ID: "e", DexID: "sushi", TokenA: "WBTC", TokenB: "ETH", ReserveA: 1, ReserveB: 15, Active: true},
			{ID: "f", DexID: "ghost", TokenA: "WBTC", TokenB: "ETH", ReserveA: 1, ReserveB: 15, Active: true},
		},
	}

	market := NewIndexableMarket(snap)
	require.NotNil(t, market)

	t.Run("Deepest pool represents the pair", func(t *testing.T) {
		p, found := market.GetPool("uni", "ETH", "USDC")
		require.True(t, found)
		assert.Equal(t, "b", p.ID)

		p, found = market.GetPool("uni", "USDC", "ETH")
		require.True(t, found)
		assert.Equal(t, "b", p.ID, "pair lookup must be order independent")
	})

	t.Run("Inactive, empty and orphan pools are not priced", func(t *testing.T) {
		_, found := market.GetPool("uni", "ETH", "DAI")
		assert.False(t, found)
		_, found = market.GetPool("sushi", "ETH", "DAI")
		assert.False(t, found)
		_, found = market.GetPool("ghost", "ETH", "WBTC")
		assert.False(t, found)
	})

	t.Run("Neighbors and tokens", func(t *testing.T) {
		assert.Equal(t, []string{"USDC"}, market.Neighbors("uni", "ETH"))
		assert.Equal(t, []string{"ETH", "USDC"}, market.TokensOnDex("uni"))
		assert.Equal(t, []string{"ETH", "WBTC"}, market.TokensOnDex("sushi"))
		assert.Empty(t, market.Neighbors("uni", "WBTC"))
	})

	t.Run("Active dexes per chain", func(t *testing.T) {
		dexes := market.ActiveDexes(1)
		require.Len(t, dexes, 2)
		assert.Equal(t, "sushi", dexes[0].ID)
		assert.Equal(t, "uni", dexes[1].ID)

		dexes[0].ID = "mutated"
		assert.Equal(t, "sushi", market.ActiveDexes(1)[0].ID, "ActiveDexes must return a copy")

		assert.Equal(t, []uint64{1, 56}, market.ChainIDs())
	})

	t.Run("Lookups", func(t *testing.T) {
		d, found := market.GetDex("dead")
		require.True(t, found)
		assert.False(t, d.Active)

		a, found := market.GetAsset("ETH")
		require.True(t, found)
		assert.Equal(t, 1800.0, a.PriceUSD)

		_, found = market.GetAsset("DOGE")
		assert.False(t, found)
	})

	t.Run("Edge Case - Nil snapshot", func(t *testing.T) {
		empty := New().Index(nil)
		require.NotNil(t, empty)
		assert.Empty(t, empty.ActiveDexes(1))
		assert.True(t, empty.Snapshot().IsEmpty())
	})
}
