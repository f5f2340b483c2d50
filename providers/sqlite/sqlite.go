// Package sqlite serves market snapshots from a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
	"github.com/holiman/uint256"
	_ "github.com/mattn/go-sqlite3"
)

// ErrInvalidReserve is returned for a pool whose stored reserve is not a
// non-negative base-unit integer.
var ErrInvalidReserve = errors.New("invalid reserve")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS dexes (
	id           TEXT PRIMARY KEY,
	chain_id     INTEGER NOT NULL DEFAULT 0,
	protocol     TEXT    NOT NULL DEFAULT '',
	fee_bps      INTEGER NOT NULL DEFAULT 0,
	gas_per_swap INTEGER NOT NULL DEFAULT 0,
	active       INTEGER NOT NULL DEFAULT 1,
	flash_loan   INTEGER NOT NULL DEFAULT 0,
	router       TEXT    NOT NULL DEFAULT '',
	tvl_usd      REAL    NOT NULL DEFAULT 0,
	updated_at   INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS assets (
	symbol         TEXT PRIMARY KEY,
	chain_id       INTEGER NOT NULL DEFAULT 0,
	address        TEXT    NOT NULL DEFAULT '',
	decimals       INTEGER NOT NULL DEFAULT 18,
	price_usd      REAL    NOT NULL DEFAULT 0,
	active         INTEGER NOT NULL DEFAULT 1,
	min_profit_usd REAL    NOT NULL DEFAULT 0,
	is_stablecoin  INTEGER NOT NULL DEFAULT 0,
	updated_at     INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS pools (
	id             TEXT PRIMARY KEY,
	dex_id         TEXT    NOT NULL,
	chain_id       INTEGER NOT NULL DEFAULT 0,
	token_a        TEXT    NOT NULL,
	token_b        TEXT    NOT NULL,
	reserve_a      TEXT    NOT NULL DEFAULT '0',
	reserve_b      TEXT    NOT NULL DEFAULT '0',
	fee_bps        INTEGER NOT NULL DEFAULT 0,
	liquidity_usd  REAL    NOT NULL DEFAULT 0,
	volume_24h_usd REAL    NOT NULL DEFAULT 0,
	protocol       TEXT    NOT NULL DEFAULT '',
	amplification  REAL    NOT NULL DEFAULT 0,
	weight_a       REAL    NOT NULL DEFAULT 0,
	weight_b       REAL    NOT NULL DEFAULT 0,
	active         INTEGER NOT NULL DEFAULT 1,
	updated_at     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_pools_dex ON pools(dex_id);
`

// Config holds the provider's settings.
type Config struct {
	Path    string
	ChainID uint64
	Logger  Logger
}

func (c *Config) validate() error {
	if c.Path == "" {
		return errors.New("config: Path is required")
	}
	if c.ChainID == 0 {
		return errors.New("config: ChainID is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Provider reads dexes, assets and pools from SQLite. Pool reserves are kept
// as raw base-unit integers and scaled by their asset's decimals on read.
type Provider struct {
	db      *sql.DB
	chainID uint64
	logger  Logger
	now     func() time.Time
}

// Open opens (or creates) the database at cfg.Path and ensures its schema.
func Open(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Provider{db: db, chainID: cfg.ChainID, logger: cfg.Logger, now: time.Now}
	if err := p.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// EnsureSchema creates the tables when they do not exist.
func (p *Provider) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (p *Provider) Close() error {
	return p.db.Close()
}

// LastModified returns the newest updated_at across all tables.
func (p *Provider) LastModified(ctx context.Context) (time.Time, error) {
	var ms sql.NullInt64
	err := p.db.QueryRowContext(ctx, `
		SELECT MAX(ts) FROM (
			SELECT MAX(updated_at) AS ts FROM dexes
			UNION ALL SELECT MAX(updated_at) FROM assets
			UNION ALL SELECT MAX(updated_at) FROM pools
		)`).Scan(&ms)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query last modification: %w", err)
	}
	if !ms.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms.Int64), nil
}

// Snapshot reads the whole market. Its Version is the last modification in
// unix milliseconds, so versions grow with every write.
func (p *Provider) Snapshot(ctx context.Context) (*engine.Snapshot, error) {
	modified, err := p.LastModified(ctx)
	if err != nil {
		return nil, err
	}

	snap := &engine.Snapshot{
		ChainID: p.chainID,
		TakenAt: p.now(),
	}
	if !modified.IsZero() {
		snap.Version = uint64(modified.UnixMilli())
	}

	if snap.Dexes, err = p.loadDexes(ctx); err != nil {
		return nil, err
	}
	if snap.Assets, err = p.loadAssets(ctx); err != nil {
		return nil, err
	}
	decimals := make(map[string]uint8, len(snap.Assets))
	for _, a := range snap.Assets {
		decimals[a.Symbol] = a.Decimals
	}
	if snap.Pools, err = p.loadPools(ctx, decimals); err != nil {
		return nil, err
	}

	p.logger.Debug("Snapshot loaded",
		"version", snap.Version,
		"dexes", len(snap.Dexes),
		"assets", len(snap.Assets),
		"pools", len(snap.Pools),
	)
	return snap, nil
}

func (p *Provider) loadDexes(ctx context.Context) ([]engine.DexDescriptor, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, chain_id, protocol, fee_bps, gas_per_swap, active, flash_loan, router, tvl_usd
		FROM dexes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dexes: %w", err)
	}
	defer rows.Close()

	var dexes []engine.DexDescriptor
	for rows.Next() {
		var (
			d        engine.DexDescriptor
			protocol string
			router   string
		)
		if err := rows.Scan(&d.ID, &d.ChainID, &protocol, &d.FeeBps, &d.GasPerSwap, &d.Active, &d.FlashLoan, &router, &d.TVLUSD); err != nil {
			return nil, fmt.Errorf("failed to scan dex: %w", err)
		}
		d.Protocol = engine.ProtocolKind(protocol)
		if common.IsHexAddress(router) {
			d.Router = common.HexToAddress(router)
		}
		dexes = append(dexes, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dexes: %w", err)
	}
	return dexes, nil
}

func (p *Provider) loadAssets(ctx context.Context) ([]engine.AssetDescriptor, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT symbol, chain_id, address, decimals, price_usd, active, min_profit_usd, is_stablecoin
		FROM assets ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []engine.AssetDescriptor
	for rows.Next() {
		var (
			a       engine.AssetDescriptor
			address string
		)
		if err := rows.Scan(&a.Symbol, &a.ChainID, &address, &a.Decimals, &a.PriceUSD, &a.Active, &a.MinProfitUSD, &a.IsStablecoin); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		if common.IsHexAddress(address) {
			a.Address = common.HexToAddress(address)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assets: %w", err)
	}
	return assets, nil
}

func (p *Provider) loadPools(ctx context.Context, decimals map[string]uint8) ([]engine.PoolSnapshot, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, dex_id, chain_id, token_a, token_b, reserve_a, reserve_b, fee_bps,
		       liquidity_usd, volume_24h_usd, protocol, amplification, weight_a, weight_b, active
		FROM pools ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pools: %w", err)
	}
	defer rows.Close()

	var pools []engine.PoolSnapshot
	for rows.Next() {
		var (
			pool       engine.PoolSnapshot
			rawA, rawB string
			protocol   string
		)
		if err := rows.Scan(
			&pool.ID, &pool.DexID, &pool.ChainID, &pool.TokenA, &pool.TokenB, &rawA, &rawB, &pool.FeeBps,
			&pool.LiquidityUSD, &pool.Volume24hUSD, &protocol,
			&pool.Params.Amplification, &pool.Params.WeightA, &pool.Params.WeightB, &pool.Active,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pool: %w", err)
		}
		pool.Protocol = engine.ProtocolKind(protocol)

		if pool.ReserveA, err = ScaleReserve(rawA, decimalsOf(decimals, pool.TokenA)); err != nil {
			p.logger.Warn("Skipping pool with unreadable reserve", "pool", pool.ID, "error", err)
			continue
		}
		if pool.ReserveB, err = ScaleReserve(rawB, decimalsOf(decimals, pool.TokenB)); err != nil {
			p.logger.Warn("Skipping pool with unreadable reserve", "pool", pool.ID, "error", err)
			continue
		}
		pools = append(pools, pool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pools: %w", err)
	}
	return pools, nil
}

func decimalsOf(decimals map[string]uint8, token string) uint8 {
	if d, ok := decimals[token]; ok && d > 0 {
		return d
	}
	return engine.DefaultDecimals
}

// ScaleReserve converts a base-unit decimal string into whole token units.
func ScaleReserve(raw string, decimals uint8) (float64, error) {
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidReserve, raw, err)
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f / math.Pow10(int(decimals)), nil
}

// ToBaseUnits converts whole token units into a base-unit integer, truncating
// anything below one base unit.
func ToBaseUnits(amount float64, decimals uint8) (*uint256.Int, error) {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReserve, amount)
	}
	scaled := new(big.Float).Mul(big.NewFloat(amount), new(big.Float).SetFloat64(math.Pow10(int(decimals))))
	i, _ := scaled.Int(nil)
	v, overflow := uint256.FromBig(i)
	if overflow {
		return nil, fmt.Errorf("%w: %v overflows 256 bits", ErrInvalidReserve, amount)
	}
	return v, nil
}
