package differ

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrChainMismatch is returned when asked to diff snapshots of different chains.
var ErrChainMismatch = errors.New("snapshots belong to different chains")

// SnapshotDifferConfig holds the differ's dependencies.
type SnapshotDifferConfig struct {
	Registry prometheus.Registerer
	Logger   Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *SnapshotDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// SnapshotDiffer computes record-level differences between market snapshots.
type SnapshotDiffer struct {
	metrics *Metrics
	logger  Logger
	now     func() time.Time
}

// NewSnapshotDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewSnapshotDiffer(cfg *SnapshotDifferConfig) (*SnapshotDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &SnapshotDiffer{
		metrics: NewMetrics(cfg.Registry),
		logger:  cfg.Logger,
		now:     time.Now,
	}, nil
}

// Diff returns the changes that turn old into new. Records are matched by
// id (dexes and pools) or symbol (assets); a record is an update when any
// field differs.
func (d *SnapshotDiffer) Diff(old, new *engine.Snapshot) (*SnapshotDiff, error) {
	timer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues())
	defer timer.ObserveDuration()

	if old == nil || new == nil {
		return nil, errors.New("differ: nil snapshot")
	}
	if old.ChainID != new.ChainID {
		return nil, fmt.Errorf("%w: %d vs %d", ErrChainMismatch, old.ChainID, new.ChainID)
	}

	diff := &SnapshotDiff{
		Timestamp:   uint64(d.now().UnixNano()),
		ChainID:     new.ChainID,
		FromVersion: old.Version,
		ToVersion:   new.Version,
		TakenAt:     new.TakenAt,
		Dexes:       diffRecords(old.Dexes, new.Dexes, func(x engine.DexDescriptor) string { return x.ID }),
		Assets:      diffRecords(old.Assets, new.Assets, func(x engine.AssetDescriptor) string { return x.Symbol }),
		Pools:       diffRecords(old.Pools, new.Pools, func(x engine.PoolSnapshot) string { return x.ID }),
	}

	d.metrics.record("dex", len(diff.Dexes.Additions), len(diff.Dexes.Updates), len(diff.Dexes.Deletions))
	d.metrics.record("asset", len(diff.Assets.Additions), len(diff.Assets.Updates), len(diff.Assets.Deletions))
	d.metrics.record("pool", len(diff.Pools.Additions), len(diff.Pools.Updates), len(diff.Pools.Deletions))
	d.logger.Debug("Snapshot diff computed", diff.LogArgs()...)

	return diff, nil
}

// diffRecords matches records by key. Additions and updates follow the order
// of next, deletions the order of prev.
func diffRecords[T any](prev, next []T, key func(T) string) Changes[T] {
	var c Changes[T]

	byKey := make(map[string]T, len(prev))
	for _, r := range prev {
		byKey[key(r)] = r
	}
	seen := make(map[string]struct{}, len(next))
	for _, r := range next {
		k := key(r)
		seen[k] = struct{}{}
		old, ok := byKey[k]
		switch {
		case !ok:
			c.Additions = append(c.Additions, r)
		case !reflect.DeepEqual(old, r):
			c.Updates = append(c.Updates, r)
		}
	}
	for _, r := range prev {
		if _, ok := seen[key(r)]; !ok {
			c.Deletions = append(c.Deletions, key(r))
		}
	}
	return c
}
