package ranker

import (
	"errors"
	"math"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hefarica/ARBITRAGEXPLUS2025/route"
)

// Normalization references for the sub-scores and the diversification score.
const (
	ProfitRefUSD        = 100.0
	EfficiencyRef       = 10.0
	DiversityDexRef     = 10.0
	DiversityTokenRef   = 20.0
	DefaultHistoryScore = 0.5

	rerankCurrentWeight = 0.7
	rerankHistoryWeight = 0.3
)

// ErrInvalidWeights is returned for negative or non-finite ranking weights.
var ErrInvalidWeights = errors.New("invalid ranking weights")

// Weights are the per-criterion multipliers of the composite score. They need
// not sum to 1.
type Weights struct {
	Profit     float64 `json:"profit" yaml:"profit"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Complexity float64 `json:"complexity" yaml:"complexity"`
	Gas        float64 `json:"gas" yaml:"gas"`
	Liquidity  float64 `json:"liquidity" yaml:"liquidity"`
}

// DefaultWeights favours net profit, then confidence.
func DefaultWeights() Weights {
	return Weights{
		Profit:     0.35,
		Confidence: 0.25,
		Complexity: 0.15,
		Gas:        0.15,
		Liquidity:  0.10,
	}
}

// Validate reports whether every weight is finite and non-negative.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Profit, w.Confidence, w.Complexity, w.Gas, w.Liquidity} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidWeights
		}
	}
	return nil
}

// Ranker scores candidate routes with a fixed set of weights. It holds no
// mutable state; callers swap in a new Ranker to change weights.
type Ranker struct {
	weights Weights
}

// New creates a Ranker.
func New(w Weights) (*Ranker, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Ranker{weights: w}, nil
}

// Weights returns the weights in use.
func (r *Ranker) Weights() Weights {
	return r.weights
}

// Score computes the sub-scores and composite score of one route.
func (r *Ranker) Score(c route.CandidateRoute) route.RankedRoute {
	profit := clamp01(c.NetProfitUSD / ProfitRefUSD)
	risk := (c.Complexity + c.Confidence) / 2
	var efficiency float64
	if c.GasCostUSD > 0 {
		efficiency = clamp01(c.GrossProfitUSD / c.GasCostUSD / EfficiencyRef)
	}

	w := r.weights
	return route.RankedRoute{
		CandidateRoute:  c,
		Score:           profit*w.Profit + c.Confidence*w.Confidence + c.Complexity*w.Complexity + efficiency*w.Gas + risk*w.Liquidity,
		ProfitScore:     profit,
		RiskScore:       risk,
		EfficiencyScore: efficiency,
	}
}

// Rank scores routes and orders them by descending score. Equal scores keep
// their input order. Positions are assigned 1..N.
func (r *Ranker) Rank(routes []route.CandidateRoute) []route.RankedRoute {
	if len(routes) == 0 {
		return []route.RankedRoute{}
	}
	ranked := make([]route.RankedRoute, len(routes))
	for i, c := range routes {
		ranked[i] = r.Score(c)
	}
	sortAndPosition(ranked)
	return ranked
}

// Rerank blends each route's score with its historical performance score,
// keyed by route id; routes without history get DefaultHistoryScore.
// The input is not modified.
func Rerank(ranked []route.RankedRoute, history map[string]float64) []route.RankedRoute {
	out := slices.Clone(ranked)
	for i := range out {
		hist, ok := history[out[i].ID]
		if !ok {
			hist = DefaultHistoryScore
		}
		out[i].Score = out[i].Score*rerankCurrentWeight + hist*rerankHistoryWeight
	}
	sortAndPosition(out)
	return out
}

func sortAndPosition(ranked []route.RankedRoute) {
	slices.SortStableFunc(ranked, func(a, b route.RankedRoute) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	for i := range ranked {
		ranked[i].Position = i + 1
	}
}

// FilterByMinScore keeps routes scoring at least minScore, in order.
func FilterByMinScore(ranked []route.RankedRoute, minScore float64) []route.RankedRoute {
	out := make([]route.RankedRoute, 0, len(ranked))
	for _, r := range ranked {
		if r.Score >= minScore {
			out = append(out, r)
		}
	}
	return out
}

// TopN returns the first n routes.
func TopN(ranked []route.RankedRoute, n int) []route.RankedRoute {
	if n <= 0 {
		return []route.RankedRoute{}
	}
	if n >= len(ranked) {
		return slices.Clone(ranked)
	}
	return slices.Clone(ranked[:n])
}

// RiskBucket classifies a route by its risk score.
type RiskBucket string

const (
	RiskLow    RiskBucket = "LOW"
	RiskMedium RiskBucket = "MEDIUM"
	RiskHigh   RiskBucket = "HIGH"
)

// BucketOf maps a risk score to its bucket.
func BucketOf(riskScore float64) RiskBucket {
	switch {
	case riskScore >= 0.8:
		return RiskLow
	case riskScore >= 0.5:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// GroupByRisk groups routes by risk bucket, preserving order within a bucket.
func GroupByRisk(ranked []route.RankedRoute) map[RiskBucket][]route.RankedRoute {
	groups := make(map[RiskBucket][]route.RankedRoute, 3)
	for _, r := range ranked {
		b := BucketOf(r.RiskScore)
		groups[b] = append(groups[b], r)
	}
	return groups
}

// Diversification scores a route set by the distinct dexes and tokens it
// touches, normalized against DiversityDexRef and DiversityTokenRef.
func Diversification(ranked []route.RankedRoute) float64 {
	if len(ranked) == 0 {
		return 0
	}
	dexes := mapset.NewThreadUnsafeSet[string]()
	tokens := mapset.NewThreadUnsafeSet[string]()
	for _, r := range ranked {
		for _, h := range r.Hops {
			dexes.Add(h.DexID)
		}
		tokens.Append(r.Tokens...)
	}
	dexScore := float64(dexes.Cardinality()) / DiversityDexRef
	tokenScore := float64(tokens.Cardinality()) / DiversityTokenRef
	return clamp01((dexScore + tokenScore) / 2)
}

func clamp01(v float64) float64 {
	return max(0, min(v, 1))
}
