package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hefarica/ARBITRAGEXPLUS2025/optimizer"
	"github.com/hefarica/ARBITRAGEXPLUS2025/orchestrator"
	"github.com/hefarica/ARBITRAGEXPLUS2025/route"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"
)

func testReport(id string) orchestrator.Report {
	return orchestrator.Report{
		CycleID:  id,
		Sequence: 3,
		ChainID:  1,
		Portfolio: optimizer.Portfolio{
			Routes: []route.RankedRoute{{
				CandidateRoute: route.CandidateRoute{ID: "route_ab", Tokens: []string{"ETH", "USDT", "ETH"}, NetProfitUSD: 2.5},
				Score:          0.61,
				Position:       1,
			}},
			TotalProfitUSD: 2.5,
		},
	}
}

func newTestSink(t *testing.T, url string, queue int) (*Sink, *prometheus.Registry) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reg := prometheus.NewRegistry()
	s, err := New(ctx, Config{
		URL:       url,
		Timeout:   time.Second,
		QueueSize: queue,
		Headers:   map[string]string{"X-Api-Key": "k"},
		Registry:  reg,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return s, reg
}

func TestSink_DeliversReports(t *testing.T) {
	received := make(chan orchestrator.Report, 1)
	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var report orchestrator.Report
		require.NoError(t, sonnet.Unmarshal(body, &report))
		headers <- r.Header.Clone()
		received <- report
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s, _ := newTestSink(t, srv.URL, 4)
	require.NoError(t, s.Publish(context.Background(), testReport("c1")))

	select {
	case got := <-received:
		assert.Equal(t, "c1", got.CycleID)
		require.Len(t, got.Portfolio.Routes, 1)
		assert.Equal(t, "route_ab", got.Portfolio.Routes[0].ID)
		assert.Equal(t, 0.61, got.Portfolio.Routes[0].Score)
		h := <-headers
		assert.Equal(t, "application/json", h.Get("Content-Type"))
		assert.Equal(t, "k", h.Get("X-Api-Key"))
	case <-time.After(5 * time.Second):
		t.Fatal("report was not delivered")
	}

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.deliveries.WithLabelValues("delivered")) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSink_CountsFailedDeliveries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, _ := newTestSink(t, srv.URL, 4)
	require.NoError(t, s.Publish(context.Background(), testReport("c1")))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.deliveries.WithLabelValues("failed")) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSink_QueueFull(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	s, _ := newTestSink(t, srv.URL, 1)
	require.NoError(t, s.Publish(context.Background(), testReport("c1")))
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never reached the endpoint")
	}

	require.NoError(t, s.Publish(context.Background(), testReport("c2")))
	assert.ErrorIs(t, s.Publish(context.Background(), testReport("c3")), ErrQueueFull)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.deliveries.WithLabelValues("dropped")))
}

func TestSink_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, err := New(ctx, Config{
		URL:       "http://127.0.0.1:1",
		Timeout:   time.Second,
		QueueSize: 1,
		Registry:  prometheus.NewRegistry(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Error(t, s.Publish(context.Background(), testReport("late")))
}

func TestNew_Validation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	valid := Config{URL: "http://x", Timeout: time.Second, QueueSize: 1, Registry: prometheus.NewRegistry(), Logger: logger}

	// --- Test Cases Setup ---
	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "missing URL", mutate: func(c *Config) { c.URL = "" }},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }},
		{name: "zero queue", mutate: func(c *Config) { c.QueueSize = 0 }},
		{name: "missing registry", mutate: func(c *Config) { c.Registry = nil }},
		{name: "missing logger", mutate: func(c *Config) { c.Logger = nil }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			_, err := New(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}
