package searcher

import (
	"errors"
	"runtime"
)

// Config holds the searcher's scoring constants and resource limits.
type Config struct {
	// GasCostUSD, when > 0, is charged per route instead of deriving gas cost
	// from dex gas estimates and the request's gas price.
	GasCostUSD float64 `yaml:"gasCostUsd"`

	// RejectOnWarnings discards cycles where any hop breached the quoter's
	// impact or slippage limits.
	RejectOnWarnings bool `yaml:"rejectOnWarnings"`

	// Confidence = min(minPoolLiq/PairLiquidityRefUSD,1)*PairLiquidityWeight
	//            + min(avgDexLiq/DexLiquidityRefUSD,1)*(1-PairLiquidityWeight)
	PairLiquidityRefUSD float64 `yaml:"pairLiquidityRefUsd"`
	DexLiquidityRefUSD  float64 `yaml:"dexLiquidityRefUsd"`
	PairLiquidityWeight float64 `yaml:"pairLiquidityWeight"`

	// Complexity = 0.5*(1-min(hops/HopPenaltyRef, MaxPenalty))
	//            + 0.5*(1-min(totalFeePct/FeePenaltyRefPct, MaxPenalty))
	// Higher means simpler.
	HopPenaltyRef    float64 `yaml:"hopPenaltyRef"`
	FeePenaltyRefPct float64 `yaml:"feePenaltyRefPct"`
	MaxPenalty       float64 `yaml:"maxPenalty"`

	// Workers bounds the goroutines evaluating dex combinations.
	Workers int `yaml:"workers"`
}

// DefaultConfig returns the default searcher configuration.
func DefaultConfig() Config {
	return Config{
		PairLiquidityRefUSD: 1_000_000,
		DexLiquidityRefUSD:  10_000_000,
		PairLiquidityWeight: 0.7,
		HopPenaltyRef:       10,
		FeePenaltyRefPct:    5,
		MaxPenalty:          0.5,
		Workers:             runtime.GOMAXPROCS(0),
	}
}

func (c *Config) validate() error {
	if c.PairLiquidityRefUSD <= 0 || c.DexLiquidityRefUSD <= 0 {
		return errors.New("config: liquidity references must be positive")
	}
	if c.PairLiquidityWeight < 0 || c.PairLiquidityWeight > 1 {
		return errors.New("config: PairLiquidityWeight must be within [0,1]")
	}
	if c.HopPenaltyRef <= 0 || c.FeePenaltyRefPct <= 0 {
		return errors.New("config: penalty references must be positive")
	}
	if c.MaxPenalty < 0 || c.MaxPenalty > 1 {
		return errors.New("config: MaxPenalty must be within [0,1]")
	}
	if c.GasCostUSD < 0 {
		return errors.New("config: GasCostUSD must not be negative")
	}
	if c.Workers < 1 {
		return errors.New("config: Workers must be greater than 0")
	}
	return nil
}
