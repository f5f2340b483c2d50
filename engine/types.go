package engine

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ProtocolKind identifies the pricing invariant a DEX (and its pools) follows.
type ProtocolKind string

const (
	ConstantProduct ProtocolKind = "constant_product"
	StableSwap      ProtocolKind = "stableswap"
	Weighted        ProtocolKind = "weighted"
	Custom          ProtocolKind = "custom"
)

// Defaults applied by Normalize when a provider leaves a field empty.
const (
	DefaultFeeBps     uint16 = 30
	DefaultDecimals   uint8  = 18
	DefaultGasPerSwap uint64 = 150_000
	MaxFeeBps         uint16 = 10_000
)

const basisPointsDivisor = 10_000.0

// AssetDescriptor describes a token tradable on the snapshot's chain.
type AssetDescriptor struct {
	Symbol       string         `json:"symbol" yaml:"symbol"`
	ChainID      uint64         `json:"chainId" yaml:"chainId"`
	Address      common.Address `json:"address" yaml:"address"`
	Decimals     uint8          `json:"decimals" yaml:"decimals"`
	PriceUSD     float64        `json:"priceUsd" yaml:"priceUsd"`
	Active       bool           `json:"active" yaml:"active"`
	MinProfitUSD float64        `json:"minProfitUsd" yaml:"minProfitUsd"`
	IsStablecoin bool           `json:"isStablecoin,omitempty" yaml:"isStablecoin,omitempty"`
	LiquidityUSD float64        `json:"liquidityUsd,omitempty" yaml:"liquidityUsd,omitempty"`

	// Extra carries provider fields with no typed home.
	Extra map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// DexDescriptor describes a venue. Pools inherit Protocol and, when their own
// fee tier is unset, FeeBps.
type DexDescriptor struct {
	ID         string         `json:"id" yaml:"id"`
	ChainID    uint64         `json:"chainId" yaml:"chainId"`
	Protocol   ProtocolKind   `json:"protocol" yaml:"protocol"`
	FeeBps     uint16         `json:"feeBps" yaml:"feeBps"` // i.e 30 for 0.3%
	GasPerSwap uint64         `json:"gasPerSwap" yaml:"gasPerSwap"`
	Active     bool           `json:"active" yaml:"active"`
	FlashLoan  bool           `json:"flashLoan" yaml:"flashLoan"`
	Router     common.Address `json:"router,omitempty" yaml:"router,omitempty"`
	TVLUSD     float64        `json:"tvlUsd,omitempty" yaml:"tvlUsd,omitempty"`

	Extra map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// PoolParams holds protocol-specific pricing parameters. Zero values mean
// "absent"; protocols that need a parameter reject the pool when it is absent.
type PoolParams struct {
	Amplification float64 `json:"amplification,omitempty" yaml:"amplification,omitempty"`
	WeightA       float64 `json:"weightA,omitempty" yaml:"weightA,omitempty"`
	WeightB       float64 `json:"weightB,omitempty" yaml:"weightB,omitempty"`
	Tick          int32   `json:"tick,omitempty" yaml:"tick,omitempty"`
}

// PoolSnapshot is the state of a two-token pool at snapshot time.
// Reserves are expressed in whole token units (already scaled by decimals).
type PoolSnapshot struct {
	ID           string            `json:"id" yaml:"id"`
	DexID        string            `json:"dexId" yaml:"dexId"`
	ChainID      uint64            `json:"chainId" yaml:"chainId"`
	TokenA       string            `json:"tokenA" yaml:"tokenA"`
	TokenB       string            `json:"tokenB" yaml:"tokenB"`
	ReserveA     float64           `json:"reserveA" yaml:"reserveA"`
	ReserveB     float64           `json:"reserveB" yaml:"reserveB"`
	FeeBps       uint16            `json:"feeBps" yaml:"feeBps"`
	LiquidityUSD float64           `json:"liquidityUsd" yaml:"liquidityUsd"`
	Volume24hUSD float64           `json:"volume24hUsd" yaml:"volume24hUsd"`
	Protocol     ProtocolKind      `json:"protocol" yaml:"protocol"`
	Params       PoolParams        `json:"params" yaml:"params"`
	HealthScore  float64           `json:"healthScore,omitempty" yaml:"healthScore,omitempty"`
	RiskScore    float64           `json:"riskScore,omitempty" yaml:"riskScore,omitempty"`
	Active       bool              `json:"active" yaml:"active"`
	Extra        map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Fee returns the pool fee as a fraction (0.003 for 30 bps).
func (p PoolSnapshot) Fee() float64 {
	return float64(p.FeeBps) / basisPointsDivisor
}

// Has reports whether token is one of the two pool sides.
func (p PoolSnapshot) Has(token string) bool {
	return p.TokenA == token || p.TokenB == token
}

// Other returns the opposite side of token, or "" when token is not in the pool.
func (p PoolSnapshot) Other(token string) string {
	switch token {
	case p.TokenA:
		return p.TokenB
	case p.TokenB:
		return p.TokenA
	}
	return ""
}

// Snapshot is an immutable point-in-time view of a chain's venues, assets
// and pools. It is replaced wholesale between cycles, never mutated in place.
type Snapshot struct {
	ChainID uint64            `json:"chainId" yaml:"chainId"`
	Version uint64            `json:"version" yaml:"version"`
	TakenAt time.Time         `json:"takenAt" yaml:"takenAt"`
	Dexes   []DexDescriptor   `json:"dexes" yaml:"dexes"`
	Assets  []AssetDescriptor `json:"assets" yaml:"assets"`
	Pools   []PoolSnapshot    `json:"pools" yaml:"pools"`
}

// IsEmpty reports whether the snapshot has nothing to search.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Dexes) == 0 || len(s.Pools) == 0
}

// Clone returns a deep copy of the snapshot's slices. Extra maps are shared,
// they are treated as read-only everywhere.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Dexes = append([]DexDescriptor(nil), s.Dexes...)
	c.Assets = append([]AssetDescriptor(nil), s.Assets...)
	c.Pools = append([]PoolSnapshot(nil), s.Pools...)
	return &c
}
