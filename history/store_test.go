package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/hefarica/ARBITRAGEXPLUS2025/orchestrator"
	"github.com/hefarica/ARBITRAGEXPLUS2025/ranker"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "history.db"),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func summary(id string, seq uint64, startedAt time.Time, routes ...orchestrator.SelectedRoute) orchestrator.CycleSummary {
	var profit float64
	for _, r := range routes {
		profit += r.NetProfitUSD
	}
	return orchestrator.CycleSummary{
		ID:              id,
		Sequence:        seq,
		StartedAt:       startedAt,
		Duration:        42 * time.Millisecond,
		SnapshotVersion: 7,
		SnapshotReused:  true,
		GasPriceGwei:    21.5,
		Combinations:    12,
		CacheHits:       4,
		CacheMisses:     8,
		CacheHitRate:    1.0 / 3,
		TwoHopRoutes:    len(routes),
		Candidates:      len(routes),
		Selected:        len(routes),
		TotalProfitUSD:  profit,
		BestROI:         0.16,
		SubScores:       orchestrator.SubScores{Profit: 0.4, Confidence: 0.3, Complexity: 0.9, Efficiency: 0.2, Risk: 0.6},
		Routes:          routes,
		Published:       len(routes) > 0,
	}
}

func selected(id string, profit float64) orchestrator.SelectedRoute {
	return orchestrator.SelectedRoute{
		RouteID:      id,
		Path:         []string{"Dex1", "Dex2"},
		Tokens:       []string{"ETH", "USDT", "ETH"},
		NetProfitUSD: profit,
		GasCostUSD:   5,
		Score:        0.7,
	}
}

func TestStore_RecordAndRecentCycles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Unix(1_700_000_000, 0)

	require.NoError(t, s.RecordCycle(ctx, summary("c1", 1, base, selected("r1", 10))))
	require.NoError(t, s.RecordCycle(ctx, summary("c2", 2, base.Add(time.Second), selected("r1", 20), selected("r2", 5))))
	failed := summary("c3", 3, base.Add(2*time.Second))
	failed.Error = "snapshot unavailable"
	require.NoError(t, s.RecordCycle(ctx, failed))

	cycles, err := s.RecentCycles(ctx, 2)
	require.NoError(t, err)
	require.Len(t, cycles, 2)

	assert.Equal(t, "c3", cycles[0].ID, "newest first")
	assert.True(t, cycles[0].Failed())
	assert.Empty(t, cycles[0].Routes)

	c2 := cycles[1]
	assert.Equal(t, "c2", c2.ID)
	assert.Equal(t, uint64(2), c2.Sequence)
	assert.True(t, base.Add(time.Second).Equal(c2.StartedAt))
	assert.Equal(t, 42*time.Millisecond, c2.Duration)
	assert.Equal(t, uint64(7), c2.SnapshotVersion)
	assert.True(t, c2.SnapshotReused)
	assert.Equal(t, uint64(12), c2.Combinations)
	assert.InDelta(t, 1.0/3, c2.CacheHitRate, 1e-12)
	assert.Equal(t, 25.0, c2.TotalProfitUSD)
	assert.Equal(t, orchestrator.SubScores{Profit: 0.4, Confidence: 0.3, Complexity: 0.9, Efficiency: 0.2, Risk: 0.6}, c2.SubScores)
	assert.True(t, c2.Published)
	require.Len(t, c2.Routes, 2)
	assert.Equal(t, selected("r1", 20), c2.Routes[0])
	assert.Equal(t, "r2", c2.Routes[1].RouteID)

	all, err := s.RecentCycles(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := s.RecentCycles(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_RecordCycleDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := summary("dup", 1, time.Unix(1, 0), selected("r1", 10))
	require.NoError(t, s.RecordCycle(ctx, c))
	assert.Error(t, s.RecordCycle(ctx, c))

	cycles, err := s.RecentCycles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Len(t, cycles[0].Routes, 1)
}

func TestStore_RoutePerformance(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Unix(1_700_000_000, 0)

	require.NoError(t, s.RecordCycle(ctx, summary("c1", 1, base, selected("r1", 50))))
	unpublished := summary("c2", 2, base.Add(time.Second), selected("r1", 150), selected("r2", 20))
	unpublished.Published = false
	require.NoError(t, s.RecordCycle(ctx, unpublished))
	failed := summary("c3", 3, base.Add(2*time.Second), selected("r3", 500))
	failed.Error = "boom"
	require.NoError(t, s.RecordCycle(ctx, failed))

	perf, err := s.RoutePerformance(ctx, 10)
	require.NoError(t, err)
	require.Len(t, perf, 2, "routes of failed cycles are ignored")

	// r1: mean profit 100 -> 1, published 1 of 2 -> 0.5
	assert.InDelta(t, 0.75, perf["r1"], 1e-12)
	// r2: profit 20 -> 0.2, never published
	assert.InDelta(t, 0.1, perf["r2"], 1e-12)

	// the window counts successful cycles only, so it holds c2
	perf, err = s.RoutePerformance(ctx, 1)
	require.NoError(t, err)
	require.Len(t, perf, 2)
	assert.InDelta(t, 0.5, perf["r1"], 1e-12)
	assert.InDelta(t, 0.1, perf["r2"], 1e-12)
}

func TestStore_Weights(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.LatestWeights(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	v1, err := s.SaveWeights(ctx, ranker.DefaultWeights())
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)

	adjusted := ranker.Weights{Profit: 0.4, Confidence: 0.2, Complexity: 0.15, Gas: 0.15, Liquidity: 0.1}
	v2, err := s.SaveWeights(ctx, adjusted)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2)

	w, ok, err := s.LatestWeights(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, adjusted, w)
}

func TestStore_WeightsAreNamespaced(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "shared.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := Open(ctx, Config{Driver: DriverSQLite, DSN: dsn, ConfigName: "a", Logger: logger})
	require.NoError(t, err)
	_, err = a.SaveWeights(ctx, ranker.DefaultWeights())
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := Open(ctx, Config{Driver: DriverSQLite, DSN: dsn, ConfigName: "b", Logger: logger})
	require.NoError(t, err)
	defer b.Close()
	_, ok, err := b.LatestWeights(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := b.SaveWeights(ctx, ranker.DefaultWeights())
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestOpen_Validation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// --- Test Cases Setup ---
	testCases := []struct {
		name string
		cfg  Config
	}{
		{name: "missing DSN", cfg: Config{Driver: DriverSQLite, Logger: logger}},
		{name: "unknown driver", cfg: Config{Driver: "mysql", DSN: "x", Logger: logger}},
		{name: "missing logger", cfg: Config{Driver: DriverSQLite, DSN: "x"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Open(context.Background(), tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := PostgresConfig{Host: "localhost", Port: 5432, User: "arb", Password: "secret", DBName: "arb"}
	assert.Equal(t, "host=localhost port=5432 user=arb password=secret dbname=arb sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}
