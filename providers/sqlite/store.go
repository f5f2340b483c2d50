package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
	"github.com/holiman/uint256"
)

const (
	upsertDexSQL = `
		INSERT OR REPLACE INTO dexes (id, chain_id, protocol, fee_bps, gas_per_swap, active, flash_loan, router, tvl_usd, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	upsertAssetSQL = `
		INSERT OR REPLACE INTO assets (symbol, chain_id, address, decimals, price_usd, active, min_profit_usd, is_stablecoin, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	upsertPoolSQL = `
		INSERT OR REPLACE INTO pools (
			id, dex_id, chain_id, token_a, token_b, reserve_a, reserve_b, fee_bps,
			liquidity_usd, volume_24h_usd, protocol, amplification, weight_a, weight_b, active, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func upsertDex(ctx context.Context, ex execer, d engine.DexDescriptor, now int64) error {
	_, err := ex.ExecContext(ctx, upsertDexSQL,
		d.ID, d.ChainID, string(d.Protocol), d.FeeBps, d.GasPerSwap, boolInt(d.Active), boolInt(d.FlashLoan),
		d.Router.Hex(), d.TVLUSD, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert dex %s: %w", d.ID, err)
	}
	return nil
}

func upsertAsset(ctx context.Context, ex execer, a engine.AssetDescriptor, now int64) error {
	_, err := ex.ExecContext(ctx, upsertAssetSQL,
		a.Symbol, a.ChainID, a.Address.Hex(), a.Decimals, a.PriceUSD, boolInt(a.Active), a.MinProfitUSD,
		boolInt(a.IsStablecoin), now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert asset %s: %w", a.Symbol, err)
	}
	return nil
}

func upsertPool(ctx context.Context, ex execer, pool engine.PoolSnapshot, reserveA, reserveB *uint256.Int, now int64) error {
	_, err := ex.ExecContext(ctx, upsertPoolSQL,
		pool.ID, pool.DexID, pool.ChainID, pool.TokenA, pool.TokenB, reserveA.Dec(), reserveB.Dec(), pool.FeeBps,
		pool.LiquidityUSD, pool.Volume24hUSD, string(pool.Protocol),
		pool.Params.Amplification, pool.Params.WeightA, pool.Params.WeightB, boolInt(pool.Active), now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert pool %s: %w", pool.ID, err)
	}
	return nil
}

// UpsertDex inserts or replaces a dex row.
func (p *Provider) UpsertDex(ctx context.Context, d engine.DexDescriptor) error {
	return upsertDex(ctx, p.db, d, p.now().UnixMilli())
}

// UpsertAsset inserts or replaces an asset row.
func (p *Provider) UpsertAsset(ctx context.Context, a engine.AssetDescriptor) error {
	return upsertAsset(ctx, p.db, a, p.now().UnixMilli())
}

// UpsertPool inserts or replaces a pool row. The pool's float reserves are
// ignored; reserveA and reserveB are the raw base-unit amounts.
func (p *Provider) UpsertPool(ctx context.Context, pool engine.PoolSnapshot, reserveA, reserveB *uint256.Int) error {
	return upsertPool(ctx, p.db, pool, reserveA, reserveB, p.now().UnixMilli())
}

// Import writes every record of snap in one transaction, converting pool
// reserves to base units with the decimals of the snapshot's assets.
func (p *Provider) Import(ctx context.Context, snap *engine.Snapshot) (err error) {
	decimals := make(map[string]uint8, len(snap.Assets))
	for _, a := range snap.Assets {
		decimals[a.Symbol] = a.Decimals
	}

	type poolRow struct {
		pool       engine.PoolSnapshot
		rawA, rawB *uint256.Int
	}
	rows := make([]poolRow, 0, len(snap.Pools))
	for _, pool := range snap.Pools {
		rawA, err := ToBaseUnits(pool.ReserveA, decimalsOf(decimals, pool.TokenA))
		if err != nil {
			return fmt.Errorf("pool %s: %w", pool.ID, err)
		}
		rawB, err := ToBaseUnits(pool.ReserveB, decimalsOf(decimals, pool.TokenB))
		if err != nil {
			return fmt.Errorf("pool %s: %w", pool.ID, err)
		}
		rows = append(rows, poolRow{pool: pool, rawA: rawA, rawB: rawB})
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := p.now().UnixMilli()
	for _, d := range snap.Dexes {
		if err = upsertDex(ctx, tx, d, now); err != nil {
			return err
		}
	}
	for _, a := range snap.Assets {
		if err = upsertAsset(ctx, tx, a, now); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err = upsertPool(ctx, tx, r.pool, r.rawA, r.rawB, now); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	p.logger.Info("Snapshot imported", "dexes", len(snap.Dexes), "assets", len(snap.Assets), "pools", len(snap.Pools))
	return nil
}
