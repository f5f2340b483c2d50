package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hefarica/ARBITRAGEXPLUS2025/differ"
	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
	"github.com/hefarica/ARBITRAGEXPLUS2025/engine/indexer"
	"github.com/hefarica/ARBITRAGEXPLUS2025/memo"
	"github.com/hefarica/ARBITRAGEXPLUS2025/optimizer"
	"github.com/hefarica/ARBITRAGEXPLUS2025/ranker"
	"github.com/hefarica/ARBITRAGEXPLUS2025/route"
	"github.com/hefarica/ARBITRAGEXPLUS2025/searcher"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrStopped is returned once Stop has been called.
	ErrStopped = errors.New("orchestrator stopped")
	// ErrSnapshotUnavailable wraps provider failures; the cycle is retried on the next tick.
	ErrSnapshotUnavailable = errors.New("market snapshot unavailable")
)

// Orchestrator runs the search, rank, optimize and publish pipeline on a
// fixed interval. One cycle runs at a time; accessors are safe for
// concurrent use.
type Orchestrator struct {
	cfg       Config
	provider  MarketDataProvider
	searcher  *searcher.Searcher
	optimizer *optimizer.Optimizer
	logger    Logger

	// Optional collaborators (set via Options during New)
	gasOracle GasOracle
	sinks     []ExecutionSink
	history   HistoryStore
	differ    *differ.SnapshotDiffer
	metrics   *Metrics
	indexer   *indexer.Indexer
	now       func() time.Time

	state    atomic.Int32
	ranker   atomic.Pointer[ranker.Ranker]
	stopOnce sync.Once
	stopCh   chan struct{}

	// cycle-owned; only touched while cycleMu is held
	cycleMu     sync.Mutex
	seq         uint64
	snapshot    *engine.Snapshot
	market      indexer.IndexedMarket
	loadedAt    time.Time
	lastGas     float64
	performance map[string]float64

	mu         sync.RWMutex
	lastResult *CycleResult
	lastCache  memo.Stats
	recent     []CycleSummary
}

// Option configures the Orchestrator.
// The interface method is unexported to prevent external modification after New.
type Option interface {
	apply(*Orchestrator)
}

type funcOption func(*Orchestrator)

func (f funcOption) apply(o *Orchestrator) {
	f(o)
}

func newOption(f func(*Orchestrator)) Option {
	return funcOption(f)
}

// New creates an Orchestrator in the Idle state.
func New(
	cfg Config,
	provider MarketDataProvider,
	s *searcher.Searcher,
	opt *optimizer.Optimizer,
	logger Logger,
	opts ...Option,
) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if provider == nil || s == nil || opt == nil || logger == nil {
		return nil, errors.New("orchestrator: provider, searcher, optimizer and logger are required")
	}
	rk, err := ranker.New(cfg.Weights)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:       cfg,
		provider:  provider,
		searcher:  s,
		optimizer: opt,
		logger:    logger,
		indexer:   indexer.New(),
		now:       time.Now,
		stopCh:    make(chan struct{}),
		lastGas:   cfg.DefaultGasPriceGwei,
	}
	o.ranker.Store(rk)
	for _, option := range opts {
		option.apply(o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(prometheus.NewRegistry())
	}
	o.setState(Idle)
	return o, nil
}

// State returns the current state machine phase.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	o.metrics.state.Set(float64(s))
}

func (o *Orchestrator) stopping() bool {
	select {
	case <-o.stopCh:
		return true
	default:
		return false
	}
}

// transition moves to next unless a stop was requested, in which case the
// machine parks in Stopped and ErrStopped is returned.
func (o *Orchestrator) transition(next State) error {
	if o.stopping() {
		o.setState(Stopped)
		return ErrStopped
	}
	o.setState(next)
	return nil
}

// Stop requests the machine to stop. An in-flight cycle finishes its current
// stage; Run returns before the next cycle starts.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.stopCh)
	})
	if o.cycleMu.TryLock() {
		o.setState(Stopped)
		o.cycleMu.Unlock()
	}
}

// Run restores persisted ranking weights, then runs a cycle immediately and
// every Interval until ctx is done or Stop is called. Cycle failures are
// logged and never end the loop.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.restoreWeights(ctx)

	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	o.logger.Info("Orchestrator started", "interval", o.cfg.Interval, "targets", len(o.cfg.Targets))
	for {
		if _, err := o.RunCycle(ctx); errors.Is(err, ErrStopped) {
			o.logger.Info("Orchestrator stopped")
			return nil
		}

		select {
		case <-ctx.Done():
			o.setState(Stopped)
			o.logger.Info("Orchestrator context canceled, shutting down.")
			return ctx.Err()
		case <-o.stopCh:
			o.setState(Stopped)
			o.logger.Info("Orchestrator stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle executes one full cycle: load snapshot, search, rank, filter,
// optimize and publish. A cycle that finds nothing is not an error; only
// provider failures, cancellation and Stop are.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleResult, error) {
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()

	o.seq++
	start := o.now()
	result := CycleResult{
		Summary: CycleSummary{
			ID:        uuid.NewString(),
			Sequence:  o.seq,
			StartedAt: start,
		},
		Ranked:    []route.RankedRoute{},
		Portfolio: optimizer.Portfolio{Routes: []route.RankedRoute{}},
	}

	err := o.runStages(ctx, &result)
	result.Summary.Duration = o.now().Sub(start)

	if errors.Is(err, ErrStopped) {
		return result, err
	}
	if err != nil {
		result.Summary.Error = err.Error()
		o.logger.Error("Cycle failed, will retry on next tick", "cycle_id", result.Summary.ID, "sequence", result.Summary.Sequence, "error", err)
	} else {
		o.logger.Info("Cycle complete",
			"cycle_id", result.Summary.ID,
			"sequence", result.Summary.Sequence,
			"candidates", result.Summary.Candidates,
			"selected", result.Summary.Selected,
			"profit_usd", result.Summary.TotalProfitUSD,
			"cache_hit_rate", result.Summary.CacheHitRate,
			"duration_ms", result.Summary.Duration.Milliseconds(),
		)
	}

	o.metrics.observeCycle(result.Summary)
	o.remember(result)
	if o.history != nil {
		if herr := o.history.RecordCycle(ctx, result.Summary); herr != nil {
			o.logger.Warn("Failed to record cycle history", "cycle_id", result.Summary.ID, "sequence", result.Summary.Sequence, "error", herr)
		}
	}
	if err == nil && o.cfg.DeepPassEvery > 0 && o.seq%uint64(o.cfg.DeepPassEvery) == 0 {
		if derr := o.deepPass(ctx); derr != nil {
			o.logger.Warn("Deep pass failed", "error", derr)
		}
	}

	// a stop requested mid-cycle parks the machine once the cycle is done
	_ = o.transition(Idle)
	return result, err
}

func (o *Orchestrator) runStages(ctx context.Context, result *CycleResult) error {
	summary := &result.Summary

	// 1. Snapshot
	if err := o.transition(LoadingSnapshot); err != nil {
		return err
	}
	reused, err := o.loadSnapshot(ctx)
	if err != nil {
		return err
	}
	summary.SnapshotReused = reused
	summary.SnapshotVersion = o.snapshot.Version
	summary.GasPriceGwei = o.gasPrice(ctx)

	// 2. Search
	if err := o.transition(Searching); err != nil {
		return err
	}
	cache := memo.New()
	candidates, stats, err := o.search(ctx, cache, summary.GasPriceGwei)
	if err != nil {
		return err
	}
	result.Stats = stats
	cacheStats := cache.Stats()
	summary.Combinations = stats.Combinations
	summary.CacheHits = cacheStats.Hits
	summary.CacheMisses = cacheStats.Misses
	summary.CacheHitRate = cacheStats.HitRate
	summary.Candidates = len(candidates)
	for _, c := range candidates {
		if c.HopCount() == 2 {
			summary.TwoHopRoutes++
		} else {
			summary.ThreeHopRoutes++
		}
		summary.TotalPotentialProfitUSD += c.NetProfitUSD
	}
	o.mu.Lock()
	o.lastCache = cacheStats
	o.mu.Unlock()

	// 3. Rank and filter
	if err := o.transition(Ranking); err != nil {
		return err
	}
	ranked := o.ranker.Load().Rank(candidates)
	if len(o.performance) > 0 {
		ranked = ranker.Rerank(ranked, o.performance)
	}
	eligible := o.filter(ranked)
	summary.Filtered = len(ranked) - len(eligible)
	if o.cfg.MaxRoutes > 0 {
		eligible = ranker.TopN(eligible, o.cfg.MaxRoutes)
	}
	result.Ranked = eligible

	// 4. Optimize
	if err := o.transition(Optimizing); err != nil {
		return err
	}
	portfolio := o.optimizer.Optimize(eligible, o.cfg.GasBudgetUSD)
	result.Portfolio = portfolio
	summarizePortfolio(summary, portfolio)

	// 5. Publish
	if err := o.transition(Publishing); err != nil {
		return err
	}
	if !portfolio.IsEmpty() {
		summary.Published = o.publish(ctx, Report{
			CycleID:     summary.ID,
			Sequence:    summary.Sequence,
			ChainID:     o.snapshot.ChainID,
			PublishedAt: o.now(),
			Portfolio:   portfolio,
		})
	}
	return nil
}

// loadSnapshot refreshes the market when the provider reports newer data and
// otherwise reuses the current one. A failed fetch never leaves a partially
// updated market behind.
func (o *Orchestrator) loadSnapshot(ctx context.Context) (bool, error) {
	modified, modErr := o.provider.LastModified(ctx)
	if modErr != nil {
		o.logger.Warn("Provider LastModified failed, refetching snapshot", "error", modErr)
	}
	if o.market != nil && modErr == nil && !modified.After(o.loadedAt) {
		return true, nil
	}

	raw, err := o.provider.Snapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err)
	}
	if raw == nil {
		return false, fmt.Errorf("%w: provider returned no snapshot", ErrSnapshotUnavailable)
	}

	snap, rejected := engine.Normalize(raw)
	for _, r := range rejected {
		o.logger.Debug("Snapshot record rejected", "error", r)
	}
	if len(rejected) > 0 {
		o.logger.Warn("Snapshot normalized with rejected records", "rejected", len(rejected), "version", snap.Version)
	}

	if o.differ != nil && o.snapshot != nil && o.snapshot.ChainID == snap.ChainID {
		if diff, derr := o.differ.Diff(o.snapshot, snap); derr == nil {
			o.logger.Info("Snapshot refreshed", diff.LogArgs()...)
		}
	}

	o.snapshot = snap
	o.market = o.indexer.Index(snap)
	if modErr == nil {
		o.loadedAt = modified
	} else {
		o.loadedAt = o.now()
	}
	return false, nil
}

// gasPrice asks the oracle and falls back to the last known price, which
// starts out as the configured default.
func (o *Orchestrator) gasPrice(ctx context.Context) float64 {
	if o.gasOracle == nil {
		return o.lastGas
	}
	gwei, err := o.gasOracle.GasPriceGwei(ctx)
	if err != nil || !(gwei > 0) {
		o.logger.Warn("Gas oracle unavailable, using last known price", "error", err, "gwei", o.lastGas)
		return o.lastGas
	}
	o.lastGas = gwei
	return gwei
}

func (o *Orchestrator) nativePriceUSD() float64 {
	if a, ok := o.market.GetAsset(o.cfg.NativeToken); ok && a.PriceUSD > 0 {
		return a.PriceUSD
	}
	return o.cfg.NativePriceUSD
}

// search runs the enabled searchers for every target against one shared
// cache and merges the candidates, keeping the best variant of each route id.
func (o *Orchestrator) search(ctx context.Context, cache *memo.Cache, gasGwei float64) ([]route.CandidateRoute, searcher.Stats, error) {
	var stats searcher.Stats
	best := make(map[string]route.CandidateRoute)
	var order []string

	merge := func(res searcher.Result) {
		stats.Add(res.Stats)
		for _, r := range res.Routes {
			cur, ok := best[r.ID]
			if !ok {
				order = append(order, r.ID)
			}
			if !ok || r.NetProfitUSD > cur.NetProfitUSD {
				best[r.ID] = r
			}
		}
	}

	native := o.nativePriceUSD()
	for _, t := range o.cfg.Targets {
		req := searcher.Request{
			StartToken:     t.Token,
			Amount:         t.Amount,
			GasPriceGwei:   gasGwei,
			NativePriceUSD: native,
		}
		if o.cfg.EnableTwoHop {
			res, err := o.searcher.TwoDex(ctx, o.market, cache, req)
			if err != nil {
				return nil, stats, fmt.Errorf("two-dex search for %s: %w", t.Token, err)
			}
			merge(res)
		}
		if o.cfg.EnableThreeHop {
			res, err := o.searcher.ThreeDex(ctx, o.market, cache, req)
			if err != nil {
				return nil, stats, fmt.Errorf("three-dex search for %s: %w", t.Token, err)
			}
			merge(res)
		}
	}

	out := make([]route.CandidateRoute, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	return out, stats, nil
}

func (o *Orchestrator) filter(ranked []route.RankedRoute) []route.RankedRoute {
	out := make([]route.RankedRoute, 0, len(ranked))
	for _, r := range ranked {
		if o.eligible(r) {
			out = append(out, r)
		}
	}
	return out
}

func (o *Orchestrator) eligible(r route.RankedRoute) bool {
	if !(r.NetProfitUSD > 0) || r.NetProfitUSD < o.cfg.MinProfitUSD {
		return false
	}
	if r.Confidence < o.cfg.MinConfidence {
		return false
	}
	return o.cfg.MaxGasUSD == 0 || r.GasCostUSD <= o.cfg.MaxGasUSD
}

func summarizePortfolio(s *CycleSummary, p optimizer.Portfolio) {
	s.Selected = len(p.Routes)
	s.TotalProfitUSD = p.TotalProfitUSD
	s.TotalGasUSD = p.TotalGasUSD
	s.Routes = make([]SelectedRoute, 0, len(p.Routes))

	var sub SubScores
	for _, r := range p.Routes {
		s.BestROI = max(s.BestROI, r.ROI())
		s.Routes = append(s.Routes, SelectedRoute{
			RouteID:      r.ID,
			Path:         r.Path(),
			Tokens:       slices.Clone(r.Tokens),
			NetProfitUSD: r.NetProfitUSD,
			GasCostUSD:   r.GasCostUSD,
			Score:        r.Score,
		})
		sub.Profit += r.ProfitScore
		sub.Confidence += r.Confidence
		sub.Complexity += r.Complexity
		sub.Efficiency += r.EfficiencyScore
		sub.Risk += r.RiskScore
	}
	if n := float64(len(p.Routes)); n > 0 {
		s.SubScores = SubScores{
			Profit:     sub.Profit / n,
			Confidence: sub.Confidence / n,
			Complexity: sub.Complexity / n,
			Efficiency: sub.Efficiency / n,
			Risk:       sub.Risk / n,
		}
	}
}

// publish hands the report to every sink under PublishTimeout. Sink errors
// are logged; it reports whether at least one sink accepted the report.
func (o *Orchestrator) publish(ctx context.Context, report Report) bool {
	if len(o.sinks) == 0 {
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, o.cfg.PublishTimeout)
	defer cancel()

	accepted := false
	for _, sink := range o.sinks {
		if err := sink.Publish(pctx, report); err != nil {
			o.logger.Warn("Failed to publish portfolio", "cycle", report.Sequence, "error", err)
			continue
		}
		accepted = true
	}
	return accepted
}

func (o *Orchestrator) remember(result CycleResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !result.Summary.Failed() {
		r := result
		o.lastResult = &r
	}
	if o.cfg.RecentCycles == 0 {
		return
	}
	o.recent = append(o.recent, result.Summary)
	if over := len(o.recent) - o.cfg.RecentCycles; over > 0 {
		o.recent = slices.Delete(o.recent, 0, over)
	}
}

// LastResult returns the most recent successful cycle.
func (o *Orchestrator) LastResult() (CycleResult, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.lastResult == nil {
		return CycleResult{}, false
	}
	return *o.lastResult, true
}

// RecentCycles returns up to limit of the latest cycle summaries, newest first.
func (o *Orchestrator) RecentCycles(limit int) []CycleSummary {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := len(o.recent)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]CycleSummary, 0, n)
	for i := len(o.recent) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, o.recent[i])
	}
	return out
}

// Weights returns the ranking weights in use.
func (o *Orchestrator) Weights() ranker.Weights {
	return o.ranker.Load().Weights()
}

// CacheStats returns the memo cache statistics of the last cycle.
func (o *Orchestrator) CacheStats() memo.Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastCache
}

// Options Constructors for the Orchestrator

func WithGasOracle(g GasOracle) Option {
	return newOption(func(o *Orchestrator) {
		o.gasOracle = g
	})
}

// WithSink adds an execution sink; it may be given more than once.
func WithSink(s ExecutionSink) Option {
	return newOption(func(o *Orchestrator) {
		o.sinks = append(o.sinks, s)
	})
}

func WithHistoryStore(h HistoryStore) Option {
	return newOption(func(o *Orchestrator) {
		o.history = h
	})
}

func WithSnapshotDiffer(d *differ.SnapshotDiffer) Option {
	return newOption(func(o *Orchestrator) {
		o.differ = d
	})
}

func WithRegistry(reg prometheus.Registerer) Option {
	return newOption(func(o *Orchestrator) {
		o.metrics = NewMetrics(reg)
	})
}

func WithClock(now func() time.Time) Option {
	return newOption(func(o *Orchestrator) {
		o.now = now
	})
}
