package orchestrator

import (
	"context"
	"time"

	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
	"github.com/hefarica/ARBITRAGEXPLUS2025/optimizer"
	"github.com/hefarica/ARBITRAGEXPLUS2025/ranker"
	"github.com/hefarica/ARBITRAGEXPLUS2025/route"
	"github.com/hefarica/ARBITRAGEXPLUS2025/searcher"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MarketDataProvider supplies raw market snapshots.
type MarketDataProvider interface {
	Snapshot(ctx context.Context) (*engine.Snapshot, error)
	// LastModified reports when the provider's data last changed.
	LastModified(ctx context.Context) (time.Time, error)
}

// GasOracle reports the current gas price.
type GasOracle interface {
	GasPriceGwei(ctx context.Context) (float64, error)
}

// ExecutionSink receives the portfolio of every cycle that selected routes.
// Implementations must not block on execution results.
type ExecutionSink interface {
	Publish(ctx context.Context, report Report) error
}

// HistoryStore persists cycle outcomes and ranking weights across restarts.
type HistoryStore interface {
	RecordCycle(ctx context.Context, summary CycleSummary) error
	RecentCycles(ctx context.Context, limit int) ([]CycleSummary, error)
	// RoutePerformance returns a [0,1] score per route id.
	RoutePerformance(ctx context.Context, limit int) (map[string]float64, error)
	SaveWeights(ctx context.Context, w ranker.Weights) (int64, error)
	LatestWeights(ctx context.Context) (ranker.Weights, bool, error)
}

// Report is what a sink receives.
type Report struct {
	CycleID     string              `json:"cycleId"`
	Sequence    uint64              `json:"sequence"`
	ChainID     uint64              `json:"chainId"`
	PublishedAt time.Time           `json:"publishedAt"`
	Portfolio   optimizer.Portfolio `json:"portfolio"`
}

// SubScores are the mean ranking sub-scores of the routes a cycle selected.
type SubScores struct {
	Profit     float64 `json:"profit"`
	Confidence float64 `json:"confidence"`
	Complexity float64 `json:"complexity"`
	Efficiency float64 `json:"efficiency"`
	Risk       float64 `json:"risk"`
}

// SelectedRoute is the persisted trace of one selected route.
type SelectedRoute struct {
	RouteID      string   `json:"routeId"`
	Path         []string `json:"path"`
	Tokens       []string `json:"tokens"`
	NetProfitUSD float64  `json:"netProfitUsd"`
	GasCostUSD   float64  `json:"gasCostUsd"`
	Score        float64  `json:"score"`
}

// CycleSummary records the outcome of one cycle.
type CycleSummary struct {
	ID              string        `json:"id"`
	Sequence        uint64        `json:"sequence"`
	StartedAt       time.Time     `json:"startedAt"`
	Duration        time.Duration `json:"duration"`
	SnapshotVersion uint64        `json:"snapshotVersion"`
	SnapshotReused  bool          `json:"snapshotReused"`
	GasPriceGwei    float64       `json:"gasPriceGwei"`

	Combinations   uint64  `json:"combinations"`
	CacheHits      uint64  `json:"cacheHits"`
	CacheMisses    uint64  `json:"cacheMisses"`
	CacheHitRate   float64 `json:"cacheHitRate"`
	TwoHopRoutes   int     `json:"twoHopRoutes"`
	ThreeHopRoutes int     `json:"threeHopRoutes"`
	Candidates     int     `json:"candidates"`
	Filtered       int     `json:"filtered"`
	Selected       int     `json:"selected"`

	TotalPotentialProfitUSD float64 `json:"totalPotentialProfitUsd"`
	TotalProfitUSD          float64 `json:"totalProfitUsd"`
	TotalGasUSD             float64 `json:"totalGasUsd"`
	BestROI                 float64 `json:"bestRoi"`

	SubScores SubScores       `json:"subScores"`
	Routes    []SelectedRoute `json:"routes,omitempty"`
	Published bool            `json:"published"`
	Error     string          `json:"error,omitempty"`
}

// Failed reports whether the cycle ended in an error.
func (s CycleSummary) Failed() bool {
	return s.Error != ""
}

// CycleResult is everything one cycle produced.
type CycleResult struct {
	Summary   CycleSummary        `json:"summary"`
	Stats     searcher.Stats      `json:"stats"`
	Ranked    []route.RankedRoute `json:"ranked"`
	Portfolio optimizer.Portfolio `json:"portfolio"`
}
