package orchestrator

import (
	"context"
	"fmt"

	"github.com/hefarica/ARBITRAGEXPLUS2025/ranker"
)

// AdjustWeights moves current towards a target derived from the sub-scores
// of successful, profitable cycles. The target keeps the total weight of
// current and splits it in proportion to the summed sub-scores; each weight
// moves by rate of the gap, at most maxChange. Without usable cycles current
// is returned unchanged.
func AdjustWeights(current ranker.Weights, cycles []CycleSummary, rate, maxChange float64) ranker.Weights {
	var (
		totals SubScores
		used   int
	)
	for _, c := range cycles {
		if c.Failed() || c.Selected == 0 || !(c.TotalProfitUSD > 0) {
			continue
		}
		totals.Profit += c.SubScores.Profit
		totals.Confidence += c.SubScores.Confidence
		totals.Complexity += c.SubScores.Complexity
		totals.Efficiency += c.SubScores.Efficiency
		totals.Risk += c.SubScores.Risk
		used++
	}
	if used == 0 {
		return current
	}

	scoreSum := totals.Profit + totals.Confidence + totals.Complexity + totals.Efficiency + totals.Risk
	weightSum := current.Profit + current.Confidence + current.Complexity + current.Gas + current.Liquidity
	if !(scoreSum > 0) || !(weightSum > 0) {
		return current
	}
	scale := weightSum / scoreSum

	step := func(old, score float64) float64 {
		delta := rate * (score*scale - old)
		delta = max(-maxChange, min(delta, maxChange))
		return max(0, old+delta)
	}
	return ranker.Weights{
		Profit:     step(current.Profit, totals.Profit),
		Confidence: step(current.Confidence, totals.Confidence),
		Complexity: step(current.Complexity, totals.Complexity),
		Gas:        step(current.Gas, totals.Efficiency),
		Liquidity:  step(current.Liquidity, totals.Risk),
	}
}

// deepPass reads recent history, adjusts and persists the ranking weights
// and refreshes the per-route performance used for re-ranking. Its output
// only affects future cycles.
func (o *Orchestrator) deepPass(ctx context.Context) error {
	if o.history == nil {
		return nil
	}
	cycles, err := o.history.RecentCycles(ctx, o.cfg.HistoryWindow)
	if err != nil {
		return fmt.Errorf("failed to read recent cycles: %w", err)
	}

	current := o.ranker.Load().Weights()
	next := AdjustWeights(current, cycles, o.cfg.LearningRate, o.cfg.MaxWeightChange)
	if next != current {
		rk, err := ranker.New(next)
		if err != nil {
			return err
		}
		version, err := o.history.SaveWeights(ctx, next)
		if err != nil {
			return fmt.Errorf("failed to save weights: %w", err)
		}
		o.ranker.Store(rk)
		o.logger.Info("Ranking weights adjusted",
			"version", version,
			"profit", next.Profit,
			"confidence", next.Confidence,
			"complexity", next.Complexity,
			"gas", next.Gas,
			"liquidity", next.Liquidity,
		)
	}

	perf, err := o.history.RoutePerformance(ctx, o.cfg.HistoryWindow)
	if err != nil {
		return fmt.Errorf("failed to read route performance: %w", err)
	}
	o.performance = perf
	return nil
}

// restoreWeights loads the latest persisted weights, if any.
func (o *Orchestrator) restoreWeights(ctx context.Context) {
	if o.history == nil {
		return
	}
	w, ok, err := o.history.LatestWeights(ctx)
	if err != nil {
		o.logger.Warn("Failed to load persisted weights, keeping configured ones", "error", err)
		return
	}
	if !ok {
		return
	}
	rk, err := ranker.New(w)
	if err != nil {
		o.logger.Warn("Persisted weights are invalid, keeping configured ones", "error", err)
		return
	}
	o.ranker.Store(rk)
	o.logger.Info("Restored persisted ranking weights")
}
