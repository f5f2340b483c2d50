package orchestrator

import (
	"context"
	"testing"

	"github.com/hefarica/ARBITRAGEXPLUS2025/ranker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profitableCycle(sub SubScores) CycleSummary {
	return CycleSummary{Selected: 1, TotalProfitUSD: 10, SubScores: sub}
}

func sum(w ranker.Weights) float64 {
	return w.Profit + w.Confidence + w.Complexity + w.Gas + w.Liquidity
}

func TestAdjustWeights(t *testing.T) {
	current := ranker.DefaultWeights()
	cycles := []CycleSummary{
		profitableCycle(SubScores{Profit: 0.4, Confidence: 0.6, Complexity: 0.8, Efficiency: 0.9, Risk: 0.7}),
		{Error: "provider down", SubScores: SubScores{Profit: 1}},
		{Selected: 0, SubScores: SubScores{Profit: 1}},
	}

	next := AdjustWeights(current, cycles, 0.1, 0.05)
	// target is each mean sub-score over their sum (3.4), scaled to the weight total (1.0)
	assert.InDelta(t, 0.35+0.1*(0.4/3.4-0.35), next.Profit, 1e-12)
	assert.InDelta(t, 0.25+0.1*(0.6/3.4-0.25), next.Confidence, 1e-12)
	assert.Greater(t, next.Complexity, current.Complexity)
	assert.Greater(t, next.Gas, current.Gas)
	assert.Greater(t, next.Liquidity, current.Liquidity)
	assert.InDelta(t, sum(current), sum(next), 1e-12)
}

func TestAdjustWeights_BoundedStep(t *testing.T) {
	current := ranker.DefaultWeights()
	cycles := []CycleSummary{profitableCycle(SubScores{Efficiency: 1})}

	next := AdjustWeights(current, cycles, 1, 0.01)
	assert.InDelta(t, current.Profit-0.01, next.Profit, 1e-12)
	assert.InDelta(t, current.Gas+0.01, next.Gas, 1e-12)
}

func TestAdjustWeights_NoUsableHistory(t *testing.T) {
	current := ranker.DefaultWeights()
	assert.Equal(t, current, AdjustWeights(current, nil, 0.1, 0.05))
	assert.Equal(t, current, AdjustWeights(current, []CycleSummary{{Error: "x"}}, 0.1, 0.05))
	assert.Equal(t, current, AdjustWeights(current, []CycleSummary{profitableCycle(SubScores{})}, 0.1, 0.05))
}

func TestDeepPass_PersistsWeightsAndReranks(t *testing.T) {
	history := &memHistory{perf: map[string]float64{"route_x": 1}}
	provider := &fakeProvider{snap: ethUsdtMarket()}
	o := newTestOrchestrator(t, provider, 5, func(c *Config) { c.DeepPassEvery = 1 }, WithHistoryStore(history))

	before := o.Weights()
	res, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Summary.Selected)

	require.Len(t, history.cycles, 1)
	assert.Equal(t, res.Summary.ID, history.cycles[0].ID)
	require.Len(t, history.weights, 1)
	assert.NotEqual(t, before, o.Weights())
	assert.Equal(t, history.weights[0], o.Weights())
	assert.Equal(t, history.perf, o.performance)

	// a fresh orchestrator picks the persisted weights up on Run
	o2 := newTestOrchestrator(t, provider, 5, nil, WithHistoryStore(history))
	o2.restoreWeights(context.Background())
	assert.Equal(t, history.weights[0], o2.Weights())
}
