package optimizer

import (
	"errors"
	"math"
	"slices"

	"github.com/hefarica/ARBITRAGEXPLUS2025/ranker"
	"github.com/hefarica/ARBITRAGEXPLUS2025/route"
)

// confidenceFloorScale maps risk tolerance to a minimum confidence:
// floor = (1 - RiskTolerance) * confidenceFloorScale.
const confidenceFloorScale = 0.5

// Config bounds the portfolio.
type Config struct {
	// MaxGasBudget is the default gas budget in USD for Optimize callers that
	// do not supply their own.
	MaxGasBudget float64 `yaml:"maxGasBudget"`
	// MaxCapital caps the summed capital of the selected routes; 0 disables the cap.
	MaxCapital float64 `yaml:"maxCapital"`
	// MaxConcurrentRoutes caps the number of selected routes; 0 disables the cap.
	MaxConcurrentRoutes int `yaml:"maxConcurrentRoutes"`
	// RiskTolerance in [0,1]; higher tolerance admits lower-confidence routes.
	RiskTolerance float64 `yaml:"riskTolerance"`
	// Precision is the number of knapsack units per USD of gas.
	Precision float64 `yaml:"precision"`
	// RouteBudgetFraction is the largest share of the budget a single route may use.
	RouteBudgetFraction float64 `yaml:"routeBudgetFraction"`
	// MaxBudgetUnits caps the knapsack width; larger budgets are clamped to it.
	MaxBudgetUnits int `yaml:"maxBudgetUnits"`
}

// DefaultConfig returns the default optimizer configuration.
func DefaultConfig() Config {
	return Config{
		MaxGasBudget:        100,
		MaxCapital:          10_000,
		MaxConcurrentRoutes: 5,
		RiskTolerance:       0.5,
		Precision:           100,
		RouteBudgetFraction: 0.5,
		MaxBudgetUnits:      1_000_000,
	}
}

func (c *Config) validate() error {
	if c.Precision <= 0 || math.IsInf(c.Precision, 0) {
		return errors.New("config: Precision must be positive")
	}
	if c.RouteBudgetFraction <= 0 || c.RouteBudgetFraction > 1 {
		return errors.New("config: RouteBudgetFraction must be within (0,1]")
	}
	if c.RiskTolerance < 0 || c.RiskTolerance > 1 {
		return errors.New("config: RiskTolerance must be within [0,1]")
	}
	if c.MaxBudgetUnits <= 0 {
		return errors.New("config: MaxBudgetUnits must be positive")
	}
	if c.MaxCapital < 0 || c.MaxConcurrentRoutes < 0 {
		return errors.New("config: caps must not be negative")
	}
	return nil
}

// Portfolio is the set of routes selected for one cycle. It is never
// modified after Optimize returns it.
type Portfolio struct {
	Routes []route.RankedRoute `json:"routes"`

	TotalProfitUSD  float64 `json:"totalProfitUsd"`
	TotalGasUSD     float64 `json:"totalGasUsd"`
	TotalCapitalUSD float64 `json:"totalCapitalUsd"`
	ExpectedROI     float64 `json:"expectedRoi"`
	RiskScore       float64 `json:"riskScore"`
	Diversification float64 `json:"diversification"`

	BudgetUSD   float64 `json:"budgetUsd"`
	GasUnits    int     `json:"gasUnits"`
	BudgetUnits int     `json:"budgetUnits"`
	Considered  int     `json:"considered"`
	Filtered    int     `json:"filtered"`
}

// IsEmpty reports whether no route was selected.
func (p Portfolio) IsEmpty() bool {
	return len(p.Routes) == 0
}

// Optimizer selects the most profitable set of ranked routes that fits a
// gas budget.
type Optimizer struct {
	cfg Config
}

// New creates an Optimizer.
func New(cfg Config) (*Optimizer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Optimizer{cfg: cfg}, nil
}

// Config returns the optimizer configuration.
func (o *Optimizer) Config() Config {
	return o.cfg
}

// ConfidenceFloor is the minimum route confidence admitted at the configured
// risk tolerance.
func (o *Optimizer) ConfidenceFloor() float64 {
	return (1 - o.cfg.RiskTolerance) * confidenceFloorScale
}

// Optimize filters ranked routes and solves a 0/1 knapsack over their gas
// cost, discretized at Precision units per USD and clamped to MaxBudgetUnits.
// A non-positive budget or an empty candidate set yields an empty portfolio,
// never an error.
func (o *Optimizer) Optimize(ranked []route.RankedRoute, gasBudgetUSD float64) Portfolio {
	p := Portfolio{
		Routes:     []route.RankedRoute{},
		BudgetUSD:  gasBudgetUSD,
		Considered: len(ranked),
	}
	if !(gasBudgetUSD > 0) || math.IsInf(gasBudgetUSD, 0) {
		p.Filtered = len(ranked)
		return p
	}
	p.BudgetUnits = o.units(gasBudgetUSD)

	perRoute := gasBudgetUSD * o.cfg.RouteBudgetFraction
	floor := o.ConfidenceFloor()

	candidates := make([]route.RankedRoute, 0, len(ranked))
	items := make([]Item, 0, len(ranked))
	for _, r := range ranked {
		if r.GasCostUSD < 0 || r.GasCostUSD > perRoute || r.Confidence < floor || !(r.NetProfitUSD > 0) {
			continue
		}
		candidates = append(candidates, r)
		items = append(items, Item{Cost: o.units(r.GasCostUSD), Profit: r.NetProfitUSD})
	}
	p.Filtered = len(ranked) - len(candidates)

	chosen, _ := Knapsack(items, p.BudgetUnits)
	selected := make([]route.RankedRoute, 0, len(chosen))
	for _, i := range chosen {
		selected = append(selected, candidates[i])
	}
	selected = o.applyCaps(selected)

	p.Routes = selected
	for _, r := range selected {
		p.TotalProfitUSD += r.NetProfitUSD
		p.TotalGasUSD += r.GasCostUSD
		p.TotalCapitalUSD += r.CapitalUSD
		p.GasUnits += o.units(r.GasCostUSD)
		p.RiskScore += r.RiskScore
	}
	if len(selected) > 0 {
		p.RiskScore /= float64(len(selected))
		p.Diversification = ranker.Diversification(selected)
	}
	if p.TotalCapitalUSD > 0 {
		p.ExpectedROI = p.TotalProfitUSD / p.TotalCapitalUSD * 100
	}
	return p
}

// applyCaps drops the least profitable routes until the route-count and
// capital caps hold. Order of the survivors is preserved.
func (o *Optimizer) applyCaps(selected []route.RankedRoute) []route.RankedRoute {
	var capital float64
	for _, r := range selected {
		capital += r.CapitalUSD
	}
	over := func() bool {
		if o.cfg.MaxConcurrentRoutes > 0 && len(selected) > o.cfg.MaxConcurrentRoutes {
			return true
		}
		return o.cfg.MaxCapital > 0 && capital > o.cfg.MaxCapital
	}
	for len(selected) > 0 && over() {
		worst := 0
		for i, r := range selected {
			if r.NetProfitUSD <= selected[worst].NetProfitUSD {
				worst = i
			}
		}
		capital -= selected[worst].CapitalUSD
		selected = slices.Delete(selected, worst, worst+1)
	}
	return selected
}

func (o *Optimizer) units(usd float64) int {
	u := usd * o.cfg.Precision
	if u >= float64(o.cfg.MaxBudgetUnits) {
		return o.cfg.MaxBudgetUnits
	}
	return int(u)
}
