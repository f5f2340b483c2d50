package searcher

import (
	"context"
	"math"
	"slices"
	"strings"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
	"github.com/hefarica/ARBITRAGEXPLUS2025/engine/indexer"
	"github.com/hefarica/ARBITRAGEXPLUS2025/memo"
	"github.com/hefarica/ARBITRAGEXPLUS2025/pricing"
	"github.com/hefarica/ARBITRAGEXPLUS2025/route"
	"golang.org/x/sync/errgroup"
)

const gweiToNative = 1e-9

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Quoter prices one hop.
type Quoter interface {
	Quote(pool engine.PoolSnapshot, amountIn float64, tokenIn string) (pricing.Quote, error)
}

// Request describes one search: which token to cycle, how much of it, and
// the gas price context used to cost the route.
type Request struct {
	StartToken     string
	Amount         float64
	GasPriceGwei   float64
	NativePriceUSD float64
}

// Stats counts the work done by one search.
type Stats struct {
	Combinations uint64 `json:"combinations"`
	CacheHits    uint64 `json:"cacheHits"`
	Evaluated    uint64 `json:"evaluated"`
	Skipped      uint64 `json:"skipped"`
	Rejected     uint64 `json:"rejected"`
}

// Add merges o into s.
func (s *Stats) Add(o Stats) {
	s.Combinations += o.Combinations
	s.CacheHits += o.CacheHits
	s.Evaluated += o.Evaluated
	s.Skipped += o.Skipped
	s.Rejected += o.Rejected
}

// Result is the outcome of one search.
type Result struct {
	Routes []route.CandidateRoute
	Stats  Stats
}

type counters struct {
	combinations atomic.Uint64
	cacheHits    atomic.Uint64
	evaluated    atomic.Uint64
	skipped      atomic.Uint64
	rejected     atomic.Uint64
}

func (c *counters) stats() Stats {
	return Stats{
		Combinations: c.combinations.Load(),
		CacheHits:    c.cacheHits.Load(),
		Evaluated:    c.evaluated.Load(),
		Skipped:      c.skipped.Load(),
		Rejected:     c.rejected.Load(),
	}
}

// Searcher enumerates dex combinations of a market and prices closed cycles
// through them. It is stateless between calls and safe for concurrent use.
type Searcher struct {
	cfg    Config
	quoter Quoter
	logger Logger
}

// New creates a Searcher.
func New(cfg Config, quoter Quoter, logger Logger) (*Searcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Searcher{
		cfg:    cfg,
		quoter: quoter,
		logger: logger,
	}, nil
}

// leg is an unpriced hop.
type leg struct {
	dex      engine.DexDescriptor
	tokenIn  string
	tokenOut string
}

// job evaluates one ordered dex combination. compute is invoked on a cache miss.
type job struct {
	key     memo.Key
	compute func() memo.Entry
}

// run evaluates jobs on a bounded worker pool and returns the distinct
// best routes of every combination touched.
func (s *Searcher) run(ctx context.Context, cache *memo.Cache, jobs []job, c *counters) (Result, error) {
	touched := mapset.NewSet[memo.Key]()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c.combinations.Add(1)
			if _, hit := cache.GetOrCompute(j.key, j.compute); hit {
				c.cacheHits.Add(1)
			}
			touched.Add(j.key)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{Stats: c.stats()}, err
	}

	var routes []route.CandidateRoute
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, key := range touched.ToSlice() {
		entry, ok := cache.Peek(key)
		if !ok || !entry.Found() || seen.Contains(entry.Route.ID) {
			continue
		}
		seen.Add(entry.Route.ID)
		routes = append(routes, *entry.Route)
	}
	sortRoutes(routes)

	return Result{Routes: routes, Stats: c.stats()}, nil
}

// sortRoutes orders routes by net profit, descending, then by id so results
// do not depend on worker scheduling.
func sortRoutes(routes []route.CandidateRoute) {
	slices.SortStableFunc(routes, func(a, b route.CandidateRoute) int {
		switch {
		case a.NetProfitUSD > b.NetProfitUSD:
			return -1
		case a.NetProfitUSD < b.NetProfitUSD:
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// startAsset resolves the start token; searches for unknown, unpriced or
// inactive start tokens yield nothing.
func startAsset(m indexer.IndexedMarket, req Request) (engine.AssetDescriptor, bool) {
	if req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return engine.AssetDescriptor{}, false
	}
	a, ok := m.GetAsset(req.StartToken)
	if !ok || !a.Active || a.PriceUSD <= 0 {
		return engine.AssetDescriptor{}, false
	}
	return a, true
}

// tokenAllowed rejects intermediate tokens flagged inactive. Tokens without
// an asset record are allowed; their fees are simply not priced.
func tokenAllowed(m indexer.IndexedMarket, token string) bool {
	a, ok := m.GetAsset(token)
	return !ok || a.Active
}

// evaluate prices legs in order and assembles a candidate route. It returns
// false when any hop cannot be priced or the result is not a valid,
// profitable cycle.
func (s *Searcher) evaluate(m indexer.IndexedMarket, start engine.AssetDescriptor, req Request, legs []leg, c *counters) (*route.CandidateRoute, bool) {
	c.evaluated.Add(1)

	r := &route.CandidateRoute{
		ChainID:     legs[0].dex.ChainID,
		Hops:        make([]route.Hop, 0, len(legs)),
		Tokens:      make([]string, 0, len(legs)+1),
		InputAmount: req.Amount,
		FlashLoan:   legs[0].dex.FlashLoan,
	}
	r.Tokens = append(r.Tokens, legs[0].tokenIn)

	var (
		feesUSD  float64
		feePct   float64
		gasUnits uint64
	)
	amount := req.Amount
	minPoolLiq := math.Inf(1)
	dexLiq := make(map[string]float64, len(legs))
	dexTVL := make(map[string]float64, len(legs))

	for _, l := range legs {
		pool, ok := m.GetPool(l.dex.ID, l.tokenIn, l.tokenOut)
		if !ok {
			c.skipped.Add(1)
			return nil, false
		}
		quote, err := s.quoter.Quote(pool, amount, l.tokenIn)
		if err != nil {
			c.skipped.Add(1)
			s.logger.Debug("Skipping combination", "dex", l.dex.ID, "pool", pool.ID, "error", err)
			return nil, false
		}
		if quote.HasWarnings() {
			if s.cfg.RejectOnWarnings {
				c.rejected.Add(1)
				return nil, false
			}
			r.Warnings = append(r.Warnings, quote.Warnings...)
		}

		if fa, ok := m.GetAsset(quote.FeeToken); ok {
			feesUSD += quote.FeeAmount * fa.PriceUSD
		}
		feePct += pool.Fee() * 100
		gasUnits += l.dex.GasPerSwap

		liq := poolLiquidityUSD(m, pool)
		minPoolLiq = min(minPoolLiq, liq)
		dexLiq[l.dex.ID] += liq
		dexTVL[l.dex.ID] = l.dex.TVLUSD

		r.Hops = append(r.Hops, route.Hop{
			DexID:          l.dex.ID,
			PoolID:         pool.ID,
			TokenIn:        l.tokenIn,
			TokenOut:       quote.TokenOut,
			AmountIn:       amount,
			AmountOut:      quote.AmountOut,
			FeeBps:         pool.FeeBps,
			PriceImpactPct: quote.PriceImpactPct,
		})
		r.Tokens = append(r.Tokens, quote.TokenOut)
		amount = quote.AmountOut
	}

	r.FinalAmount = amount
	r.FeesUSD = feesUSD
	r.GasUnits = gasUnits
	r.GasCostUSD = s.gasCostUSD(gasUnits, req)
	r.CapitalUSD = req.Amount * start.PriceUSD
	// fees are already applied per hop: gross adds them back so that
	// net = gross - gas - fees equals the realised gain minus gas.
	r.GrossProfitUSD = (amount-req.Amount)*start.PriceUSD + feesUSD
	r.NetProfitUSD = r.GrossProfitUSD - r.GasCostUSD - r.FeesUSD

	var dexAvg float64
	for id, liq := range dexLiq {
		if tvl := dexTVL[id]; tvl > 0 {
			liq = tvl
		}
		dexAvg += liq
	}
	dexAvg /= float64(len(dexLiq))
	r.Confidence = s.confidence(minPoolLiq, dexAvg)
	r.Complexity = s.complexity(len(r.Hops), feePct)
	r.ID = route.NewID(r.Path(), r.Tokens)

	if math.IsNaN(r.NetProfitUSD) || math.IsInf(r.NetProfitUSD, 0) {
		c.skipped.Add(1)
		return nil, false
	}
	if err := route.Validate(r); err != nil {
		c.rejected.Add(1)
		return nil, false
	}
	if start.MinProfitUSD > 0 && r.NetProfitUSD < start.MinProfitUSD {
		c.rejected.Add(1)
		return nil, false
	}
	return r, true
}

func (s *Searcher) gasCostUSD(gasUnits uint64, req Request) float64 {
	if s.cfg.GasCostUSD > 0 {
		return s.cfg.GasCostUSD
	}
	return float64(gasUnits) * req.GasPriceGwei * gweiToNative * req.NativePriceUSD
}

func (s *Searcher) confidence(minPoolLiq, avgDexLiq float64) float64 {
	if math.IsInf(minPoolLiq, 0) {
		minPoolLiq = 0
	}
	pairScore := min(minPoolLiq/s.cfg.PairLiquidityRefUSD, 1)
	dexScore := min(avgDexLiq/s.cfg.DexLiquidityRefUSD, 1)
	return clamp01(pairScore*s.cfg.PairLiquidityWeight + dexScore*(1-s.cfg.PairLiquidityWeight))
}

func (s *Searcher) complexity(hops int, totalFeePct float64) float64 {
	swapScore := 1 - min(float64(hops)/s.cfg.HopPenaltyRef, s.cfg.MaxPenalty)
	feeScore := 1 - min(totalFeePct/s.cfg.FeePenaltyRefPct, s.cfg.MaxPenalty)
	return clamp01(swapScore*0.5 + feeScore*0.5)
}

// poolLiquidityUSD prefers the provider's figure and falls back to valuing
// the reserves at asset prices.
func poolLiquidityUSD(m indexer.IndexedMarket, p engine.PoolSnapshot) float64 {
	if p.LiquidityUSD > 0 {
		return p.LiquidityUSD
	}
	var total float64
	if a, ok := m.GetAsset(p.TokenA); ok {
		total += p.ReserveA * a.PriceUSD
	}
	if b, ok := m.GetAsset(p.TokenB); ok {
		total += p.ReserveB * b.PriceUSD
	}
	return total
}

// better reports whether candidate beats current for the same combination.
// Ties are broken by route id to keep results independent of enumeration order.
func better(candidate, current *route.CandidateRoute) bool {
	if current == nil {
		return true
	}
	if candidate.NetProfitUSD != current.NetProfitUSD {
		return candidate.NetProfitUSD > current.NetProfitUSD
	}
	return candidate.ID < current.ID
}

func entryOf(best *route.CandidateRoute) memo.Entry {
	if best == nil {
		return memo.Entry{}
	}
	return memo.Entry{Profit: best.NetProfitUSD, Route: best}
}

func clamp01(v float64) float64 {
	return max(0, min(v, 1))
}
