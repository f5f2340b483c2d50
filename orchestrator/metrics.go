package orchestrator

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the orchestrator's prometheus collectors.
type Metrics struct {
	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	routesFound     *prometheus.CounterVec
	routesFiltered  prometheus.Counter
	routesSelected  prometheus.Gauge
	cacheHitRatio   prometheus.Gauge
	portfolioProfit prometheus.Gauge
	gasPrice        prometheus.Gauge
	state           prometheus.Gauge
}

// NewMetrics creates the orchestrator collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_cycles_total",
				Help: "Total number of pipeline cycles by outcome",
			},
			[]string{"outcome"},
		),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arb_cycle_duration_seconds",
			Help:    "Wall time of one pipeline cycle",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		routesFound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_routes_found_total",
				Help: "Total number of profitable candidate routes by hop count",
			},
			[]string{"hops"},
		),
		routesFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arb_routes_filtered_total",
			Help: "Total number of ranked routes dropped by the cycle filters",
		}),
		routesSelected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arb_routes_selected",
			Help: "Number of routes in the last published portfolio",
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arb_memo_cache_hit_ratio",
			Help: "Memo cache hit ratio of the last cycle",
		}),
		portfolioProfit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arb_portfolio_profit_usd",
			Help: "Expected net profit of the last portfolio in USD",
		}),
		gasPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arb_gas_price_gwei",
			Help: "Gas price used by the last cycle",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arb_orchestrator_state",
			Help: "Current state machine phase",
		}),
	}
	reg.MustRegister(
		m.cycles,
		m.cycleDuration,
		m.routesFound,
		m.routesFiltered,
		m.routesSelected,
		m.cacheHitRatio,
		m.portfolioProfit,
		m.gasPrice,
		m.state,
	)
	return m
}

func (m *Metrics) observeCycle(s CycleSummary) {
	if s.Failed() {
		m.cycles.WithLabelValues("failed").Inc()
		return
	}
	m.cycles.WithLabelValues("ok").Inc()
	m.cycleDuration.Observe(s.Duration.Seconds())
	m.routesFound.WithLabelValues("2").Add(float64(s.TwoHopRoutes))
	m.routesFound.WithLabelValues("3").Add(float64(s.ThreeHopRoutes))
	m.routesFiltered.Add(float64(s.Filtered))
	m.routesSelected.Set(float64(s.Selected))
	m.cacheHitRatio.Set(s.CacheHitRate)
	m.portfolioProfit.Set(s.TotalProfitUSD)
	m.gasPrice.Set(s.GasPriceGwei)
}
