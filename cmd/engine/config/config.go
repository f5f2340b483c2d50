// Package config loads the engine binary's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
	"github.com/hefarica/ARBITRAGEXPLUS2025/history"
	"github.com/hefarica/ARBITRAGEXPLUS2025/optimizer"
	"github.com/hefarica/ARBITRAGEXPLUS2025/orchestrator"
	"github.com/hefarica/ARBITRAGEXPLUS2025/pricing"
	"github.com/hefarica/ARBITRAGEXPLUS2025/searcher"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Market data sources.
const (
	MarketSQLite = "sqlite"
	MarketStream = "stream"
)

// Environment variables that override file values.
const (
	EnvLogLevel   = "ARB_LOG_LEVEL"
	EnvRPCURL     = "ARB_RPC_URL"
	EnvStreamURL  = "ARB_STREAM_URL"
	EnvSQLitePath = "ARB_SQLITE_PATH"
	EnvHistoryDSN = "ARB_HISTORY_DSN"
	EnvListenAddr = "ARB_LISTEN_ADDR"
	EnvWebhookURL = "ARB_WEBHOOK_URL"
)

type ProvidersConfig struct {
	// Market is MarketSQLite or MarketStream.
	Market           string `yaml:"market"`
	SQLitePath       string `yaml:"sqlitePath"`
	StreamURL        string `yaml:"streamUrl"`
	StreamBufferSize uint   `yaml:"streamBufferSize"`

	// RPCURL enables the on-chain gas oracle; empty uses the engine's default gas price.
	RPCURL          string        `yaml:"rpcUrl"`
	GasTimeout      time.Duration `yaml:"gasTimeout"`
	DefaultGasUnits uint64        `yaml:"defaultGasUnits"`
}

type HistoryConfig struct {
	Driver     string                 `yaml:"driver"`
	DSN        string                 `yaml:"dsn"`
	Postgres   history.PostgresConfig `yaml:"postgres"`
	ConfigName string                 `yaml:"configName"`
}

// Enabled reports whether a history database is configured.
func (c HistoryConfig) Enabled() bool {
	return c.DSN != "" || c.Postgres.Host != ""
}

// ConnString returns DSN, or the DSN built from the postgres section.
func (c HistoryConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return c.Postgres.DSN()
}

type ServerConfig struct {
	// Addr is the ops server listen address; empty disables the server.
	Addr string `yaml:"addr"`
}

type SinkConfig struct {
	// WebhookURL enables the webhook sink; otherwise reports go to an
	// in-process channel and are logged.
	WebhookURL  string            `yaml:"webhookUrl"`
	Timeout     time.Duration     `yaml:"timeout"`
	QueueSize   int               `yaml:"queueSize"`
	Headers     map[string]string `yaml:"headers"`
	ChannelSize int               `yaml:"channelSize"`
}

// Config is the engine binary's configuration.
type Config struct {
	LogLevel string `yaml:"logLevel"`
	ChainID  uint64 `yaml:"chainId"`

	Engine    orchestrator.Config `yaml:"engine"`
	Search    searcher.Config     `yaml:"search"`
	Pricing   pricing.Config      `yaml:"pricing"`
	Optimizer optimizer.Config    `yaml:"optimizer"`
	Providers ProvidersConfig     `yaml:"providers"`
	History   HistoryConfig       `yaml:"history"`
	Server    ServerConfig        `yaml:"server"`
	Sink      SinkConfig          `yaml:"sink"`
}

// Default returns a configuration in which every section holds its defaults.
func Default() Config {
	return Config{
		LogLevel:  "info",
		ChainID:   1,
		Engine:    orchestrator.DefaultConfig(),
		Search:    searcher.DefaultConfig(),
		Pricing:   pricing.DefaultConfig(),
		Optimizer: optimizer.DefaultConfig(),
		Providers: ProvidersConfig{
			Market:           MarketSQLite,
			SQLitePath:       "market.db",
			StreamBufferSize: 16,
			GasTimeout:       3 * time.Second,
			DefaultGasUnits:  engine.DefaultGasPerSwap,
		},
		History: HistoryConfig{
			Driver:     history.DriverPostgres,
			ConfigName: "default",
		},
		Server: ServerConfig{Addr: ":8080"},
		Sink: SinkConfig{
			Timeout:     5 * time.Second,
			QueueSize:   64,
			ChannelSize: 64,
		},
	}
}

// LoadConfig reads path over the defaults, loads a .env file if one is
// present and applies ARB_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return Parse(data, os.LookupEnv)
}

// Parse decodes data over the defaults and applies overrides from lookup.
func Parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnv(lookup)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	overrides := []struct {
		key string
		dst *string
	}{
		{EnvLogLevel, &c.LogLevel},
		{EnvRPCURL, &c.Providers.RPCURL},
		{EnvStreamURL, &c.Providers.StreamURL},
		{EnvSQLitePath, &c.Providers.SQLitePath},
		{EnvHistoryDSN, &c.History.DSN},
		{EnvListenAddr, &c.Server.Addr},
		{EnvWebhookURL, &c.Sink.WebhookURL},
	}
	for _, o := range overrides {
		if v, ok := lookup(o.key); ok {
			*o.dst = strings.TrimSpace(v)
		}
	}
}

// Validate checks the settings owned by the binary. Component sections are
// validated by the components themselves.
func (c *Config) Validate() error {
	if c.ChainID == 0 {
		return errors.New("config: chainId is required")
	}
	switch c.Providers.Market {
	case MarketSQLite:
		if c.Providers.SQLitePath == "" {
			return errors.New("config: providers.sqlitePath is required for the sqlite market")
		}
	case MarketStream:
		if c.Providers.StreamURL == "" {
			return errors.New("config: providers.streamUrl is required for the stream market")
		}
	default:
		return fmt.Errorf("config: unknown providers.market %q", c.Providers.Market)
	}
	if c.Providers.RPCURL != "" && c.Providers.GasTimeout <= 0 {
		return errors.New("config: providers.gasTimeout must be positive")
	}
	if c.History.Driver != history.DriverPostgres && c.History.Driver != history.DriverSQLite {
		return fmt.Errorf("config: unknown history.driver %q", c.History.Driver)
	}
	if c.Sink.WebhookURL == "" && c.Sink.ChannelSize < 1 {
		return errors.New("config: sink.channelSize must be greater than 0")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: invalid logLevel %q: %w", s, err)
	}
	return level, nil
}

// LoadSnapshot reads a YAML market snapshot, used to seed the sqlite market.
func LoadSnapshot(path string) (*engine.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file %s: %w", path, err)
	}
	var snap engine.Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snap, nil
}
