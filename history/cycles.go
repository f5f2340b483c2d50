package history

import (
	"context"
	"fmt"
	"time"

	"github.com/hefarica/ARBITRAGEXPLUS2025/orchestrator"
	"github.com/sugawarayuuta/sonnet"
)

// Route performance blends how much a route earned with how often the cycles
// that selected it were published.
const (
	performanceProfitRefUSD = 100.0
	performanceProfitWeight = 0.5
)

var _ orchestrator.HistoryStore = (*Store)(nil)

// RecordCycle saves a cycle summary and its selected routes.
func (s *Store) RecordCycle(ctx context.Context, summary orchestrator.CycleSummary) (err error) {
	subScores, err := sonnet.Marshal(summary.SubScores)
	if err != nil {
		return fmt.Errorf("failed to encode sub-scores: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cycles (
			cycle_id, sequence, started_at, duration_ns, snapshot_version, snapshot_reused, gas_price_gwei,
			combinations, cache_hits, cache_misses, cache_hit_rate,
			two_hop_routes, three_hop_routes, candidates, filtered, selected,
			total_potential_profit_usd, total_profit_usd, total_gas_usd, best_roi,
			sub_scores, published, error
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20,
			$21, $22, $23
		)`,
		summary.ID, int64(summary.Sequence), summary.StartedAt.UnixNano(), int64(summary.Duration),
		int64(summary.SnapshotVersion), summary.SnapshotReused, summary.GasPriceGwei,
		int64(summary.Combinations), int64(summary.CacheHits), int64(summary.CacheMisses), summary.CacheHitRate,
		summary.TwoHopRoutes, summary.ThreeHopRoutes, summary.Candidates, summary.Filtered, summary.Selected,
		summary.TotalPotentialProfitUSD, summary.TotalProfitUSD, summary.TotalGasUSD, summary.BestROI,
		string(subScores), summary.Published, summary.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle %s: %w", summary.ID, err)
	}

	for i, r := range summary.Routes {
		var path, tokens []byte
		if path, err = sonnet.Marshal(r.Path); err != nil {
			return fmt.Errorf("failed to encode route path: %w", err)
		}
		if tokens, err = sonnet.Marshal(r.Tokens); err != nil {
			return fmt.Errorf("failed to encode route tokens: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cycle_routes (cycle_id, route_id, position, path, tokens, net_profit_usd, gas_cost_usd, score)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			summary.ID, r.RouteID, i+1, string(path), string(tokens), r.NetProfitUSD, r.GasCostUSD, r.Score,
		)
		if err != nil {
			return fmt.Errorf("failed to insert route %s of cycle %s: %w", r.RouteID, summary.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.logger.Debug("Recorded cycle", "cycle_id", summary.ID, "routes", len(summary.Routes))
	return nil
}

// RecentCycles returns up to limit cycles, newest first, with their routes.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]orchestrator.CycleSummary, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle_id, sequence, started_at, duration_ns, snapshot_version, snapshot_reused, gas_price_gwei,
		       combinations, cache_hits, cache_misses, cache_hit_rate,
		       two_hop_routes, three_hop_routes, candidates, filtered, selected,
		       total_potential_profit_usd, total_profit_usd, total_gas_usd, best_roi,
		       sub_scores, published, error
		FROM cycles
		ORDER BY started_at DESC, sequence DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	var (
		cycles []orchestrator.CycleSummary
		index  = make(map[string]int)
	)
	for rows.Next() {
		var (
			c         orchestrator.CycleSummary
			startedAt int64
			duration  int64
			subScores string
		)
		if err := rows.Scan(
			&c.ID, &c.Sequence, &startedAt, &duration, &c.SnapshotVersion, &c.SnapshotReused, &c.GasPriceGwei,
			&c.Combinations, &c.CacheHits, &c.CacheMisses, &c.CacheHitRate,
			&c.TwoHopRoutes, &c.ThreeHopRoutes, &c.Candidates, &c.Filtered, &c.Selected,
			&c.TotalPotentialProfitUSD, &c.TotalProfitUSD, &c.TotalGasUSD, &c.BestROI,
			&subScores, &c.Published, &c.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		c.StartedAt = time.Unix(0, startedAt)
		c.Duration = time.Duration(duration)
		if err := sonnet.Unmarshal([]byte(subScores), &c.SubScores); err != nil {
			return nil, fmt.Errorf("failed to decode sub-scores of cycle %s: %w", c.ID, err)
		}
		index[c.ID] = len(cycles)
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cycles: %w", err)
	}
	if len(cycles) == 0 {
		return cycles, nil
	}

	routes, err := s.db.QueryContext(ctx, `
		SELECT r.cycle_id, r.route_id, r.path, r.tokens, r.net_profit_usd, r.gas_cost_usd, r.score
		FROM cycle_routes r
		JOIN (SELECT cycle_id FROM cycles ORDER BY started_at DESC, sequence DESC LIMIT $1) c
		  ON c.cycle_id = r.cycle_id
		ORDER BY r.cycle_id, r.position`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle routes: %w", err)
	}
	defer routes.Close()

	for routes.Next() {
		var (
			cycleID      string
			r            orchestrator.SelectedRoute
			path, tokens string
		)
		if err := routes.Scan(&cycleID, &r.RouteID, &path, &tokens, &r.NetProfitUSD, &r.GasCostUSD, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan cycle route: %w", err)
		}
		if err := sonnet.Unmarshal([]byte(path), &r.Path); err != nil {
			return nil, fmt.Errorf("failed to decode path of route %s: %w", r.RouteID, err)
		}
		if err := sonnet.Unmarshal([]byte(tokens), &r.Tokens); err != nil {
			return nil, fmt.Errorf("failed to decode tokens of route %s: %w", r.RouteID, err)
		}
		if i, ok := index[cycleID]; ok {
			cycles[i].Routes = append(cycles[i].Routes, r)
		}
	}
	if err := routes.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cycle routes: %w", err)
	}
	return cycles, nil
}

// RoutePerformance scores every route selected in the last limit cycles.
// A route's score is the mean of its profit, relative to a 100 USD
// reference and capped at 1, and the share of its cycles that published.
func (s *Store) RoutePerformance(ctx context.Context, limit int) (map[string]float64, error) {
	perf := make(map[string]float64)
	if limit <= 0 {
		return perf, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.route_id, r.net_profit_usd, c.published
		FROM cycle_routes r
		JOIN (
			SELECT cycle_id, published FROM cycles
			WHERE error = ''
			ORDER BY started_at DESC, sequence DESC
			LIMIT $1
		) c ON c.cycle_id = r.cycle_id`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query route performance: %w", err)
	}
	defer rows.Close()

	type tally struct {
		profit    float64
		published int
		seen      int
	}
	tallies := make(map[string]*tally)
	for rows.Next() {
		var (
			routeID   string
			profit    float64
			published bool
		)
		if err := rows.Scan(&routeID, &profit, &published); err != nil {
			return nil, fmt.Errorf("failed to scan route performance: %w", err)
		}
		t, ok := tallies[routeID]
		if !ok {
			t = &tally{}
			tallies[routeID] = t
		}
		t.profit += profit
		t.seen++
		if published {
			t.published++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate route performance: %w", err)
	}

	for id, t := range tallies {
		n := float64(t.seen)
		profitScore := max(0, min(t.profit/n/performanceProfitRefUSD, 1))
		publishRate := float64(t.published) / n
		perf[id] = performanceProfitWeight*profitScore + (1-performanceProfitWeight)*publishRate
	}
	return perf, nil
}
