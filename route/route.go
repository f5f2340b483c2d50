package route

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

var (
	// ErrNotClosed is returned when a route's token path does not start and end at the same token.
	ErrNotClosed = errors.New("route is not a closed cycle")
	// ErrPathLength is returned when len(tokens) != len(hops)+1 or the hop count is unsupported.
	ErrPathLength = errors.New("route path length mismatch")
	// ErrNonPositiveProfit is returned for routes whose net profit is <= 0.
	ErrNonPositiveProfit = errors.New("route net profit is not positive")
	// ErrBrokenHop is returned when consecutive hops do not chain token-wise.
	ErrBrokenHop = errors.New("route hops do not chain")
)

// Hop is one swap through one pool.
type Hop struct {
	DexID          string  `json:"dexId"`
	PoolID         string  `json:"poolId"`
	TokenIn        string  `json:"tokenIn"`
	TokenOut       string  `json:"tokenOut"`
	AmountIn       float64 `json:"amountIn"`
	AmountOut      float64 `json:"amountOut"`
	FeeBps         uint16  `json:"feeBps"`
	PriceImpactPct float64 `json:"priceImpactPct"`
}

// CandidateRoute is a closed swap cycle found by a searcher. Monetary fields
// are USD; amounts are in units of the start token.
type CandidateRoute struct {
	ID          string   `json:"id"`
	ChainID     uint64   `json:"chainId"`
	Hops        []Hop    `json:"hops"`
	Tokens      []string `json:"tokens"`
	InputAmount float64  `json:"inputAmount"`
	FinalAmount float64  `json:"finalAmount"`

	GrossProfitUSD float64 `json:"grossProfitUsd"`
	FeesUSD        float64 `json:"feesUsd"`
	GasCostUSD     float64 `json:"gasCostUsd"`
	NetProfitUSD   float64 `json:"netProfitUsd"`
	CapitalUSD     float64 `json:"capitalUsd"`
	GasUnits       uint64  `json:"gasUnits"`

	Confidence float64 `json:"confidence"`
	Complexity float64 `json:"complexity"`

	FlashLoan bool     `json:"flashLoan"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Path returns the ordered dex ids of the route.
func (r *CandidateRoute) Path() []string {
	path := make([]string, len(r.Hops))
	for i, h := range r.Hops {
		path[i] = h.DexID
	}
	return path
}

// Outputs returns the per-hop output amounts.
func (r *CandidateRoute) Outputs() []float64 {
	out := make([]float64, len(r.Hops))
	for i, h := range r.Hops {
		out[i] = h.AmountOut
	}
	return out
}

// HopCount is the number of swaps in the route.
func (r *CandidateRoute) HopCount() int {
	return len(r.Hops)
}

// EstimatedExecutionTime is a rough wall-clock budget for executing the
// route: 3s for two swaps, 5s for three.
func (r *CandidateRoute) EstimatedExecutionTime() time.Duration {
	if len(r.Hops) == 0 {
		return 0
	}
	return time.Duration(2*len(r.Hops)-1) * time.Second
}

// StartToken is the token the cycle starts and ends at.
func (r *CandidateRoute) StartToken() string {
	if len(r.Tokens) == 0 {
		return ""
	}
	return r.Tokens[0]
}

// ROI returns net profit over capital, as a percentage.
func (r *CandidateRoute) ROI() float64 {
	if r.CapitalUSD <= 0 {
		return 0
	}
	return r.NetProfitUSD / r.CapitalUSD * 100
}

// Validate checks the structural invariants of a route and that it is profitable.
func Validate(r *CandidateRoute) error {
	if len(r.Hops) < 2 || len(r.Hops) > 3 {
		return fmt.Errorf("%w: %d hops", ErrPathLength, len(r.Hops))
	}
	if len(r.Tokens) != len(r.Hops)+1 {
		return fmt.Errorf("%w: %d tokens for %d hops", ErrPathLength, len(r.Tokens), len(r.Hops))
	}
	if r.Tokens[0] != r.Tokens[len(r.Tokens)-1] {
		return fmt.Errorf("%w: %s != %s", ErrNotClosed, r.Tokens[0], r.Tokens[len(r.Tokens)-1])
	}
	for i, h := range r.Hops {
		if h.TokenIn != r.Tokens[i] || h.TokenOut != r.Tokens[i+1] {
			return fmt.Errorf("%w: hop %d trades %s->%s, path has %s->%s", ErrBrokenHop, i, h.TokenIn, h.TokenOut, r.Tokens[i], r.Tokens[i+1])
		}
	}
	if !(r.NetProfitUSD > 0) {
		return fmt.Errorf("%w: %.6f", ErrNonPositiveProfit, r.NetProfitUSD)
	}
	return nil
}

// NewID derives a deterministic route id from its dex path and token path.
func NewID(path, tokens []string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(strings.Join(path, ",")))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.Join(tokens, ",")))
	return "route_" + hex.EncodeToString(h.Sum(nil)[:8])
}

// RankedRoute wraps a CandidateRoute with its composite score and 1-based position.
type RankedRoute struct {
	CandidateRoute

	Score    float64 `json:"score"`
	Position int     `json:"position"`

	ProfitScore     float64 `json:"profitScore"`
	RiskScore       float64 `json:"riskScore"`
	EfficiencyScore float64 `json:"efficiencyScore"`
}
