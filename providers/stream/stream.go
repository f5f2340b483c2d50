// Package stream keeps a live market snapshot from a JSON-RPC subscription
// that delivers full snapshots and incremental diffs.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hefarica/ARBITRAGEXPLUS2025/differ"
	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
	"github.com/hefarica/ARBITRAGEXPLUS2025/patcher"
	"github.com/sugawarayuuta/sonnet"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	// RpcNamespace is the namespace under which the snapshot streamer is registered.
	RpcNamespace                     = "defi"
	SnapshotStreamSubscriptionMethod = "subscribeSnapshotStream"

	EventFull = "full"
	EventDiff = "diff"
)

// ErrNoSnapshot is returned by Snapshot until the first full snapshot arrives.
var ErrNoSnapshot = errors.New("stream: no snapshot received yet")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PatchFunc applies a diff to a previous snapshot without mutating it.
type PatchFunc func(prev *engine.Snapshot, diff *differ.SnapshotDiff) (*engine.Snapshot, error)

// Config holds the configuration for the client.
type Config struct {
	URL        string
	Logger     Logger
	BufferSize uint
	// Patcher defaults to patcher.Patch.
	Patcher PatchFunc
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Event is the wrapper object received from the server.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// -----------------------------------------------------------------------------
// Processor
// -----------------------------------------------------------------------------

// Processor parses events, keeps the latest snapshot, applies diffs and
// broadcasts updates. It has no networking of its own.
type Processor struct {
	latest    atomic.Pointer[engine.Snapshot]
	updatedAt atomic.Int64
	patch     PatchFunc
	updates   chan *engine.Snapshot
	logger    Logger
	now       func() time.Time
}

// NewProcessor creates a processor. A nil patch uses patcher.Patch.
func NewProcessor(logger Logger, bufferSize uint, patch PatchFunc) *Processor {
	if patch == nil {
		patch = patcher.Patch
	}
	return &Processor{
		patch:   patch,
		updates: make(chan *engine.Snapshot, bufferSize),
		logger:  logger,
		now:     time.Now,
	}
}

// Updates returns a channel that receives every new snapshot. When the
// consumer falls behind, the oldest pending snapshot is dropped.
func (p *Processor) Updates() <-chan *engine.Snapshot {
	return p.updates
}

// Latest returns the most recent snapshot, or nil.
func (p *Processor) Latest() *engine.Snapshot {
	return p.latest.Load()
}

// UpdatedAt returns when the latest snapshot was stored.
func (p *Processor) UpdatedAt() time.Time {
	ns := p.updatedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// ProcessMessage accepts a raw JSON event and updates the latest snapshot.
func (p *Processor) ProcessMessage(raw json.RawMessage) error {
	start := p.now()
	var event Event
	if err := sonnet.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("failed to unmarshal subscription event: %w", err)
	}

	switch event.Type {
	case EventFull:
		return p.handleFull(event, start)
	case EventDiff:
		return p.handleDiff(event, start)
	default:
		return fmt.Errorf("received unknown event type: %s", event.Type)
	}
}

func (p *Processor) handleFull(event Event, start time.Time) error {
	var snap engine.Snapshot
	if err := sonnet.Unmarshal(event.Payload, &snap); err != nil {
		return fmt.Errorf("failed to unmarshal full snapshot payload: %w", err)
	}
	p.store(&snap, start, event.SentAt, EventFull)
	return nil
}

func (p *Processor) handleDiff(event Event, start time.Time) error {
	var diff differ.SnapshotDiff
	if err := sonnet.Unmarshal(event.Payload, &diff); err != nil {
		return fmt.Errorf("failed to unmarshal diff payload: %w", err)
	}

	last := p.latest.Load()
	if last == nil {
		return fmt.Errorf("received diff before full snapshot; from_version: %d, to_version: %d", diff.FromVersion, diff.ToVersion)
	}
	if diff.FromVersion != last.Version {
		p.logger.Warn(
			"Received out-of-order diff; snapshot may be out of sync. Discarding.",
			"last_known_version", last.Version,
			"diff_from_version", diff.FromVersion,
			"diff_to_version", diff.ToVersion,
		)
		return nil
	}

	next, err := p.patch(last, &diff)
	if err != nil {
		return fmt.Errorf("failed to patch snapshot: %w", err)
	}
	p.store(next, start, event.SentAt, EventDiff)
	return nil
}

func (p *Processor) store(snap *engine.Snapshot, start time.Time, sentAt int64, kind string) {
	p.latest.Store(snap)
	finished := p.now()
	p.updatedAt.Store(finished.UnixNano())

	args := []any{
		"version", snap.Version,
		"type", kind,
		"dexes", len(snap.Dexes),
		"pools", len(snap.Pools),
		"latency_proc_ms", finished.Sub(start).Milliseconds(),
	}
	if sentAt > 0 {
		args = append(args, "latency_transport_ms", start.Sub(time.Unix(0, sentAt)).Milliseconds())
	}
	p.logger.Debug("Snapshot processed", args...)

	for {
		select {
		case p.updates <- snap:
			return
		default:
		}
		select {
		case <-p.updates:
		default:
		}
	}
}

// -----------------------------------------------------------------------------
// Client (Networking Wrapper)
// -----------------------------------------------------------------------------

// Client manages the connection and feeds a Processor. It serves as a
// market data provider for the orchestrator.
type Client struct {
	processor *Processor
	errCh     chan error
	logger    Logger
}

// NewClient creates a client and starts its connection loop, which runs until
// ctx is cancelled.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := &Client{
		processor: NewProcessor(cfg.Logger, cfg.BufferSize, cfg.Patcher),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}

	go client.run(ctx, cfg.URL)
	return client, nil
}

// Snapshot returns the latest snapshot received.
func (c *Client) Snapshot(ctx context.Context) (*engine.Snapshot, error) {
	snap := c.processor.Latest()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// LastModified returns when the latest snapshot was received.
func (c *Client) LastModified(ctx context.Context) (time.Time, error) {
	return c.processor.UpdatedAt(), nil
}

// Updates delegates to the processor's update channel.
func (c *Client) Updates() <-chan *engine.Snapshot {
	return c.processor.Updates()
}

// Err returns a channel that is closed when the connection loop exits.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// run handles the networking lifecycle and feeds data to the processor.
func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)
	reconnectDelay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			c.logger.Info("Client context canceled, shutting down.")
			return
		}

		c.logger.Info("Attempting to connect to RPC server", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			c.logger.Error("Failed to connect to RPC server, will retry...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("Successfully connected to RPC server.")
		reconnectDelay = initialReconnectDelay

		err = c.subscribeAndProcess(ctx, rpcClient)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("Context canceled, shutting down.")
				return
			}
			c.logger.Error("Subscription failed, will reconnect...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
		}
	}
}

func (c *Client) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, RpcNamespace, rawCh, SnapshotStreamSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Successfully subscribed. Waiting for data...")
	for {
		select {
		case raw := <-rawCh:
			if err := c.processor.ProcessMessage(raw); err != nil {
				c.logger.Error("Error processing message", "error", err)
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping subscription.")
			return ctx.Err()
		}
	}
}

// sleep waits for d or until ctx is done, reporting whether the full delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
