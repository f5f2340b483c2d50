package orchestrator

import (
	"errors"
	"time"

	"github.com/hefarica/ARBITRAGEXPLUS2025/ranker"
)

// Target is one (start token, amount) pair searched every cycle.
type Target struct {
	Token  string  `yaml:"token"`
	Amount float64 `yaml:"amount"`
}

// Config holds the pipeline's filters, budgets and schedule.
type Config struct {
	Interval time.Duration `yaml:"interval"`
	Targets  []Target      `yaml:"targets"`

	EnableTwoHop   bool `yaml:"enableTwoHop"`
	EnableThreeHop bool `yaml:"enableThreeHop"`

	// Filters applied to ranked routes before optimization.
	MinProfitUSD  float64 `yaml:"minProfitUsd"`
	MinConfidence float64 `yaml:"minConfidence"`
	MaxGasUSD     float64 `yaml:"maxGasUsd"` // per route, 0 disables
	MaxRoutes     int     `yaml:"maxRoutes"` // ranked routes kept, 0 keeps all

	GasBudgetUSD float64        `yaml:"gasBudgetUsd"`
	Weights      ranker.Weights `yaml:"weights"`

	// Gas pricing used when no oracle is configured or it fails before
	// ever answering.
	DefaultGasPriceGwei float64 `yaml:"defaultGasPriceGwei"`
	NativeToken         string  `yaml:"nativeToken"`
	NativePriceUSD      float64 `yaml:"nativePriceUsd"`

	PublishTimeout time.Duration `yaml:"publishTimeout"`

	// Deep pass: every DeepPassEvery cycles (0 disables) the last
	// HistoryWindow cycles are used to nudge the ranking weights.
	DeepPassEvery   int     `yaml:"deepPassEvery"`
	HistoryWindow   int     `yaml:"historyWindow"`
	LearningRate    float64 `yaml:"learningRate"`
	MaxWeightChange float64 `yaml:"maxWeightChange"`

	// RecentCycles is the number of cycle summaries kept in memory.
	RecentCycles int `yaml:"recentCycles"`
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		Interval:            5 * time.Second,
		Targets:             []Target{{Token: "ETH", Amount: 1}},
		EnableTwoHop:        true,
		EnableThreeHop:      true,
		MinProfitUSD:        0,
		MinConfidence:       0,
		MaxRoutes:           50,
		GasBudgetUSD:        100,
		Weights:             ranker.DefaultWeights(),
		DefaultGasPriceGwei: 20,
		NativeToken:         "ETH",
		PublishTimeout:      2 * time.Second,
		DeepPassEvery:       60,
		HistoryWindow:       100,
		LearningRate:        0.1,
		MaxWeightChange:     0.05,
		RecentCycles:        100,
	}
}

func (c *Config) validate() error {
	if c.Interval <= 0 {
		return errors.New("config: Interval must be positive")
	}
	if len(c.Targets) == 0 {
		return errors.New("config: at least one target is required")
	}
	for _, t := range c.Targets {
		if t.Token == "" || !(t.Amount > 0) {
			return errors.New("config: targets need a token and a positive amount")
		}
	}
	if !c.EnableTwoHop && !c.EnableThreeHop {
		return errors.New("config: at least one of EnableTwoHop or EnableThreeHop must be set")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return errors.New("config: MinConfidence must be within [0,1]")
	}
	if c.MaxGasUSD < 0 || c.MaxRoutes < 0 || c.DefaultGasPriceGwei < 0 || c.NativePriceUSD < 0 {
		return errors.New("config: limits must not be negative")
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.PublishTimeout <= 0 {
		return errors.New("config: PublishTimeout must be positive")
	}
	if c.DeepPassEvery < 0 || c.HistoryWindow < 0 || c.RecentCycles < 0 {
		return errors.New("config: deep pass settings must not be negative")
	}
	if c.LearningRate < 0 || c.LearningRate > 1 || c.MaxWeightChange < 0 {
		return errors.New("config: LearningRate must be within [0,1] and MaxWeightChange non-negative")
	}
	return nil
}
