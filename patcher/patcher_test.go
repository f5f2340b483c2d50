package patcher

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hefarica/ARBITRAGEXPLUS2025/differ"
	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------------
// --- Helpers ---
// --------------------------------------------------------------------------------

func makeSnapshot(version uint64) *engine.Snapshot {
	return &engine.Snapshot{
		ChainID: 1,
		Version: version,
		TakenAt: time.Unix(1_700_000_000, 0).UTC(),
		Dexes: []engine.DexDescriptor{
			{ID: "Dex1", ChainID: 1, FeeBps: 30, Active: true},
			{ID: "Dex2", ChainID: 1, FeeBps: 25, Active: true},
		},
		Assets: []engine.AssetDescriptor{
			{Symbol: "ETH", PriceUSD: 1800, Active: true},
			{Symbol: "USDT", PriceUSD: 1, Active: true},
		},
		Pools: []engine.PoolSnapshot{
			{ID: "p1", DexID: "Dex1", TokenA: "ETH", TokenB: "USDT", ReserveA: 100, ReserveB: 180000, Active: true},
			{ID: "p2", DexID: "Dex2", TokenA: "ETH", TokenB: "USDT", ReserveA: 120, ReserveB: 210000, Active: true},
		},
	}
}

func newDiffer(t *testing.T) *differ.SnapshotDiffer {
	t.Helper()
	d, err := differ.NewSnapshotDiffer(&differ.SnapshotDifferConfig{
		Registry: prometheus.NewRegistry(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return d
}

// --------------------------------------------------------------------------------
// --- Main Test Suite ---
// --------------------------------------------------------------------------------

func TestPatch_RoundTrip(t *testing.T) {
	old := makeSnapshot(1)

	next := old.Clone()
	next.Version = 2
	next.TakenAt = old.TakenAt.Add(5 * time.Second)
	next.Pools[1].ReserveB = 209_000
	next.Dexes[0].Active = false
	next.Assets = next.Assets[:1]
	next.Pools = append(next.Pools, engine.PoolSnapshot{ID: "p3", DexID: "Dex1", TokenA: "ETH", TokenB: "DAI", ReserveA: 10, ReserveB: 18000, Active: true})

	diff, err := newDiffer(t).Diff(old, next)
	require.NoError(t, err)

	patched, err := Patch(old, diff)
	require.NoError(t, err)
	assert.Equal(t, next, patched)

	// old is untouched
	assert.Equal(t, makeSnapshot(1), old)
}

func TestPatch_EmptyDiffAdvancesVersion(t *testing.T) {
	old := makeSnapshot(4)
	patched, err := Patch(old, &differ.SnapshotDiff{ChainID: 1, FromVersion: 4, ToVersion: 5, TakenAt: old.TakenAt})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), patched.Version)
	assert.Equal(t, old.Pools, patched.Pools)

	// distinct backing arrays
	patched.Pools[0].ReserveA = 1
	assert.Equal(t, 100.0, old.Pools[0].ReserveA)
}

func TestPatch_Errors(t *testing.T) {
	// --- Test Cases Setup ---
	testCases := []struct {
		name string
		diff *differ.SnapshotDiff
		err  error
	}{
		{
			name: "version mismatch",
			diff: &differ.SnapshotDiff{ChainID: 1, FromVersion: 9, ToVersion: 10},
			err:  ErrVersionMismatch,
		},
		{
			name: "delete unknown pool",
			diff: &differ.SnapshotDiff{
				ChainID:     1,
				FromVersion: 1,
				ToVersion:   2,
				Pools:       differ.Changes[engine.PoolSnapshot]{Deletions: []string{"nope"}},
			},
			err: ErrUnknownRecord,
		},
		{
			name: "update unknown dex",
			diff: &differ.SnapshotDiff{
				ChainID:     1,
				FromVersion: 1,
				ToVersion:   2,
				Dexes:       differ.Changes[engine.DexDescriptor]{Updates: []engine.DexDescriptor{{ID: "Dex9"}}},
			},
			err: ErrUnknownRecord,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Patch(makeSnapshot(1), tc.diff)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	_, err := Patch(makeSnapshot(1), &differ.SnapshotDiff{ChainID: 1, FromVersion: 1, Assets: differ.Changes[engine.AssetDescriptor]{
		Additions: []engine.AssetDescriptor{{Symbol: "ETH"}},
	}})
	assert.Error(t, err)

	_, err = Patch(nil, &differ.SnapshotDiff{})
	assert.Error(t, err)
}
