package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hefarica/ARBITRAGEXPLUS2025/ranker"
)

// SaveWeights stores w as the next version of the store's weight set and
// returns that version.
func (s *Store) SaveWeights(ctx context.Context, w ranker.Weights) (version int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM ranking_weights WHERE config_name = $1`,
		s.configName,
	).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read weights version: %w", err)
	}

	var weightsID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO ranking_weights (
			config_name, version,
			profit_weight, confidence_weight, complexity_weight, gas_weight, liquidity_weight,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING weights_id`,
		s.configName, version,
		w.Profit, w.Confidence, w.Complexity, w.Gas, w.Liquidity,
		s.now().UnixNano(),
	).Scan(&weightsID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert ranking weights: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Saved ranking weights",
		"version", version,
		"config", s.configName,
		"weights_id", weightsID,
	)
	return version, nil
}

// LatestWeights loads the newest weight set. The boolean is false when none
// has been saved.
func (s *Store) LatestWeights(ctx context.Context) (ranker.Weights, bool, error) {
	var w ranker.Weights
	err := s.db.QueryRowContext(ctx, `
		SELECT profit_weight, confidence_weight, complexity_weight, gas_weight, liquidity_weight
		FROM ranking_weights
		WHERE config_name = $1
		ORDER BY version DESC
		LIMIT 1`, s.configName,
	).Scan(&w.Profit, &w.Confidence, &w.Complexity, &w.Gas, &w.Liquidity)
	if errors.Is(err, sql.ErrNoRows) {
		return ranker.Weights{}, false, nil
	}
	if err != nil {
		return ranker.Weights{}, false, fmt.Errorf("failed to load ranking weights: %w", err)
	}
	return w, true, nil
}
