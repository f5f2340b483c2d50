// Package history persists cycle outcomes and ranking weights in PostgreSQL.
//
// Statements use $N placeholders and portable column types, so the store
// also runs on SQLite; EnsureSchema picks the dialect-specific DDL.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PostgresConfig holds database connection parameters.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"` // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslMode)
}

// Config holds the store's settings.
type Config struct {
	// Driver is DriverPostgres (default) or DriverSQLite.
	Driver string
	DSN    string
	// ConfigName namespaces persisted weights so several deployments can share a database.
	ConfigName string
	Logger     Logger
}

func (c *Config) validate() error {
	if c.DSN == "" {
		return errors.New("config: DSN is required")
	}
	if c.Driver != DriverPostgres && c.Driver != DriverSQLite {
		return fmt.Errorf("config: unsupported Driver %q", c.Driver)
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Store is a HistoryStore backed by database/sql.
type Store struct {
	db         *sql.DB
	driver     string
	configName string
	logger     Logger
	now        func() time.Time
}

// Open connects to the database and applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverPostgres
	}
	if cfg.ConfigName == "" {
		cfg.ConfigName = "default"
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:         db,
		driver:     cfg.Driver,
		configName: cfg.ConfigName,
		logger:     cfg.Logger,
		now:        time.Now,
	}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	cfg.Logger.Info("Connected to history database", "driver", cfg.Driver)
	return s, nil
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	s.logger.Info("Closing history database connection...")
	return s.db.Close()
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	serial := "SERIAL PRIMARY KEY"
	if s.driver == DriverSQLite {
		serial = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			cycle_id                   TEXT PRIMARY KEY,
			sequence                   BIGINT NOT NULL,
			started_at                 BIGINT NOT NULL,
			duration_ns                BIGINT NOT NULL,
			snapshot_version           BIGINT NOT NULL DEFAULT 0,
			snapshot_reused            BOOLEAN NOT NULL DEFAULT FALSE,
			gas_price_gwei             DOUBLE PRECISION NOT NULL DEFAULT 0,
			combinations               BIGINT NOT NULL DEFAULT 0,
			cache_hits                 BIGINT NOT NULL DEFAULT 0,
			cache_misses               BIGINT NOT NULL DEFAULT 0,
			cache_hit_rate             DOUBLE PRECISION NOT NULL DEFAULT 0,
			two_hop_routes             INTEGER NOT NULL DEFAULT 0,
			three_hop_routes           INTEGER NOT NULL DEFAULT 0,
			candidates                 INTEGER NOT NULL DEFAULT 0,
			filtered                   INTEGER NOT NULL DEFAULT 0,
			selected                   INTEGER NOT NULL DEFAULT 0,
			total_potential_profit_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_profit_usd           DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_gas_usd              DOUBLE PRECISION NOT NULL DEFAULT 0,
			best_roi                   DOUBLE PRECISION NOT NULL DEFAULT 0,
			sub_scores                 TEXT NOT NULL DEFAULT '{}',
			published                  BOOLEAN NOT NULL DEFAULT FALSE,
			error                      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_started_at ON cycles(started_at DESC)`,
		`CREATE TABLE IF NOT EXISTS cycle_routes (
			cycle_id       TEXT NOT NULL REFERENCES cycles(cycle_id) ON DELETE CASCADE,
			route_id       TEXT NOT NULL,
			position       INTEGER NOT NULL,
			path           TEXT NOT NULL,
			tokens         TEXT NOT NULL,
			net_profit_usd DOUBLE PRECISION NOT NULL,
			gas_cost_usd   DOUBLE PRECISION NOT NULL,
			score          DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (cycle_id, route_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycle_routes_route ON cycle_routes(route_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ranking_weights (
			weights_id        %s,
			config_name       TEXT NOT NULL,
			version           INTEGER NOT NULL,
			profit_weight     DOUBLE PRECISION NOT NULL,
			confidence_weight DOUBLE PRECISION NOT NULL,
			complexity_weight DOUBLE PRECISION NOT NULL,
			gas_weight        DOUBLE PRECISION NOT NULL,
			liquidity_weight  DOUBLE PRECISION NOT NULL,
			created_at        BIGINT NOT NULL,
			UNIQUE (config_name, version)
		)`, serial),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	s.logger.Debug("Database schema ensured")
	return nil
}
