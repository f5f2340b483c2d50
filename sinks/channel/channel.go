// Package channel hands portfolio reports to in-process consumers.
package channel

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/hefarica/ARBITRAGEXPLUS2025/orchestrator"
)

// ErrDropped is returned by Publish when the buffer is full.
var ErrDropped = errors.New("channel: report dropped, buffer full")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Sink is a best-effort buffered channel of reports. It never blocks the
// publisher: a report that does not fit is dropped and logged.
type Sink struct {
	reports chan orchestrator.Report
	dropped atomic.Uint64
	logger  Logger
}

var _ orchestrator.ExecutionSink = (*Sink)(nil)

// New creates a sink buffering up to size reports.
func New(size int, logger Logger) (*Sink, error) {
	if size < 1 {
		return nil, errors.New("config: size must be greater than 0")
	}
	if logger == nil {
		return nil, errors.New("config: Logger is required")
	}
	return &Sink{
		reports: make(chan orchestrator.Report, size),
		logger:  logger,
	}, nil
}

// Publish offers report to the buffer.
func (s *Sink) Publish(ctx context.Context, report orchestrator.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.reports <- report:
		return nil
	default:
		n := s.dropped.Add(1)
		s.logger.Warn("Dropping portfolio report, consumer is behind", "cycle_id", report.CycleID, "dropped_total", n)
		return ErrDropped
	}
}

// Reports returns the channel consumers read from.
func (s *Sink) Reports() <-chan orchestrator.Report {
	return s.reports
}

// Dropped returns how many reports were dropped so far.
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}
