// Package webhook delivers portfolio reports to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hefarica/ARBITRAGEXPLUS2025/orchestrator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sugawarayuuta/sonnet"
)

// ErrQueueFull is returned by Publish when the delivery queue is full.
var ErrQueueFull = errors.New("webhook: delivery queue full")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the sink's settings.
type Config struct {
	URL       string
	Timeout   time.Duration
	QueueSize int
	Headers   map[string]string
	Registry  prometheus.Registerer
	Logger    Logger
	// Client defaults to an http.Client with Timeout.
	Client *http.Client
}

func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.Timeout <= 0 {
		return errors.New("config: Timeout must be positive")
	}
	if c.QueueSize < 1 {
		return errors.New("config: QueueSize must be greater than 0")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

type metrics struct {
	deliveries *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_webhook_deliveries_total",
				Help: "Portfolio reports handled by the webhook sink, by outcome.",
			},
			[]string{"outcome"},
		),
	}
	reg.MustRegister(m.deliveries)
	return m
}

// Sink queues reports and POSTs them as JSON from a background worker, so
// Publish never waits on the endpoint.
type Sink struct {
	cfg     Config
	client  *http.Client
	queue   chan orchestrator.Report
	metrics *metrics
	logger  Logger
	done    chan struct{}
}

var _ orchestrator.ExecutionSink = (*Sink)(nil)

// New creates a sink and starts its worker, which runs until ctx is done.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	s := &Sink{
		cfg:     cfg,
		client:  client,
		queue:   make(chan orchestrator.Report, cfg.QueueSize),
		metrics: newMetrics(cfg.Registry),
		logger:  cfg.Logger,
		done:    make(chan struct{}),
	}
	go s.run(ctx)
	return s, nil
}

// Publish enqueues report for delivery.
func (s *Sink) Publish(ctx context.Context, report orchestrator.Report) error {
	select {
	case <-s.done:
		return errors.New("webhook: sink stopped")
	default:
	}
	select {
	case s.queue <- report:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.metrics.deliveries.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

// Done is closed once the worker has exited.
func (s *Sink) Done() <-chan struct{} {
	return s.done
}

func (s *Sink) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Webhook sink stopping", "pending", len(s.queue))
			return
		case report := <-s.queue:
			if err := s.deliver(ctx, report); err != nil {
				s.metrics.deliveries.WithLabelValues("failed").Inc()
				s.logger.Warn("Webhook delivery failed", "cycle_id", report.CycleID, "error", err)
				continue
			}
			s.metrics.deliveries.WithLabelValues("delivered").Inc()
			s.logger.Debug("Webhook delivered", "cycle_id", report.CycleID, "routes", len(report.Portfolio.Routes))
		}
	}
}

func (s *Sink) deliver(ctx context.Context, report orchestrator.Report) error {
	body, err := sonnet.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
