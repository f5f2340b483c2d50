package pricing

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
	"github.com/hefarica/ARBITRAGEXPLUS2025/protocols"
	"github.com/hefarica/ARBITRAGEXPLUS2025/protocols/constantproduct"
	"github.com/hefarica/ARBITRAGEXPLUS2025/protocols/stableswap"
	"github.com/hefarica/ARBITRAGEXPLUS2025/protocols/weighted"
)

// ErrUnsupportedProtocol is returned when no calculator is registered for a pool's protocol kind.
var ErrUnsupportedProtocol = errors.New("unsupported protocol")

// CalculatorFunc prices a single swap through a pool.
type CalculatorFunc func(amountIn float64, tokenIn string, pool engine.PoolSnapshot) (protocols.Swap, error)

// Config holds the advisory limits checked on every quote.
type Config struct {
	// MaxPriceImpactPct and MaxSlippagePct are percentages (1.5 means 1.5%).
	// Zero disables the corresponding warning.
	MaxPriceImpactPct float64 `yaml:"maxPriceImpactPct"`
	MaxSlippagePct    float64 `yaml:"maxSlippagePct"`
}

// DefaultConfig returns the default quote limits.
func DefaultConfig() Config {
	return Config{
		MaxPriceImpactPct: 3,
		MaxSlippagePct:    5,
	}
}

func (c *Config) validate() error {
	if c.MaxPriceImpactPct < 0 {
		return errors.New("config: MaxPriceImpactPct must not be negative")
	}
	if c.MaxSlippagePct < 0 {
		return errors.New("config: MaxSlippagePct must not be negative")
	}
	return nil
}

// Quote is the priced result of one hop.
type Quote struct {
	TokenIn        string
	TokenOut       string
	AmountIn       float64
	AmountOut      float64
	EffectivePrice float64
	SpotPrice      float64
	PriceImpactPct float64
	SlippagePct    float64
	FeeAmount      float64
	FeeToken       string
	Warnings       []string
}

// HasWarnings reports whether the quote breached an advisory limit.
func (q Quote) HasWarnings() bool {
	return len(q.Warnings) > 0
}

// Quoter dispatches quotes to the calculator registered for a pool's protocol.
// It is safe for concurrent use; Register may be called while quoting.
type Quoter struct {
	cfg Config

	mu          sync.RWMutex
	calculators map[engine.ProtocolKind]CalculatorFunc
}

// NewQuoter creates a Quoter with the built-in constant-product, stableswap
// and weighted calculators.
func NewQuoter(cfg Config) (*Quoter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Quoter{
		cfg: cfg,
		calculators: map[engine.ProtocolKind]CalculatorFunc{
			engine.ConstantProduct: constantproduct.GetAmountOut,
			engine.StableSwap:      stableswap.GetAmountOut,
			engine.Weighted:        weighted.GetAmountOut,
		},
	}, nil
}

// Register installs (or replaces) the calculator for a protocol kind. This is
// how custom venues are priced.
func (q *Quoter) Register(kind engine.ProtocolKind, calc CalculatorFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calculators[kind] = calc
}

func (q *Quoter) calculator(kind engine.ProtocolKind) (CalculatorFunc, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	calc, ok := q.calculators[kind]
	return calc, ok
}

// Quote prices amountIn of tokenIn through pool. It has no side effects.
// Breaching the configured impact or slippage limits adds warnings, never errors.
func (q *Quoter) Quote(pool engine.PoolSnapshot, amountIn float64, tokenIn string) (Quote, error) {
	kind := pool.Protocol
	if kind == "" {
		kind = engine.ConstantProduct
	}
	calc, ok := q.calculator(kind)
	if !ok {
		return Quote{}, fmt.Errorf("%w: %q (pool %s)", ErrUnsupportedProtocol, kind, pool.ID)
	}

	swap, err := calc(amountIn, tokenIn, pool)
	if err != nil {
		return Quote{}, err
	}
	if swap.SpotPrice <= 0 {
		return Quote{}, fmt.Errorf("%w: pool %s has a non-positive spot price", protocols.ErrInvalidReserves, pool.ID)
	}

	effective := swap.AmountOut / amountIn
	impact := math.Abs(swap.SpotPrice-effective) / swap.SpotPrice * 100
	slippage := math.Abs(1-effective/swap.SpotPrice) * 100
	if err := protocols.CheckFinite(pool.ID, effective, impact, slippage); err != nil {
		return Quote{}, err
	}

	quote := Quote{
		TokenIn:        tokenIn,
		TokenOut:       swap.TokenOut,
		AmountIn:       amountIn,
		AmountOut:      swap.AmountOut,
		EffectivePrice: effective,
		SpotPrice:      swap.SpotPrice,
		PriceImpactPct: impact,
		SlippagePct:    slippage,
		FeeAmount:      swap.FeeAmount,
		FeeToken:       swap.FeeToken,
	}

	if q.cfg.MaxPriceImpactPct > 0 && impact > q.cfg.MaxPriceImpactPct {
		quote.Warnings = append(quote.Warnings, fmt.Sprintf("price impact %.2f%% exceeds maximum %.2f%%", impact, q.cfg.MaxPriceImpactPct))
	}
	if q.cfg.MaxSlippagePct > 0 && slippage > q.cfg.MaxSlippagePct {
		quote.Warnings = append(quote.Warnings, fmt.Sprintf("slippage %.2f%% exceeds maximum %.2f%%", slippage, q.cfg.MaxSlippagePct))
	}

	return quote, nil
}
