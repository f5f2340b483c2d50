package differ

import (
	"time"

	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Changes lists the records of one kind that differ between two snapshots.
// Additions and Updates carry the new record; Deletions carry ids only.
type Changes[T any] struct {
	Additions []T      `json:"additions,omitempty"`
	Updates   []T      `json:"updates,omitempty"`
	Deletions []string `json:"deletions,omitempty"`
}

// Len returns the total number of changes.
func (c Changes[T]) Len() int {
	return len(c.Additions) + len(c.Updates) + len(c.Deletions)
}

// SnapshotDiff represents the changes from snapshot FromVersion to ToVersion.
type SnapshotDiff struct {
	Timestamp   uint64    `json:"timestamp"`
	ChainID     uint64    `json:"chainId"`
	FromVersion uint64    `json:"fromVersion"`
	ToVersion   uint64    `json:"toVersion"`
	TakenAt     time.Time `json:"takenAt"`

	Dexes  Changes[engine.DexDescriptor]   `json:"dexes"`
	Assets Changes[engine.AssetDescriptor] `json:"assets"`
	Pools  Changes[engine.PoolSnapshot]    `json:"pools"`
}

// IsEmpty reports whether the diff changes nothing.
func (d *SnapshotDiff) IsEmpty() bool {
	return d.Dexes.Len()+d.Assets.Len()+d.Pools.Len() == 0
}

// LogArgs returns the diff's change counts as slog-style key/value pairs.
func (d *SnapshotDiff) LogArgs() []any {
	return []any{
		"from_version", d.FromVersion,
		"to_version", d.ToVersion,
		"dexes_added", len(d.Dexes.Additions),
		"dexes_updated", len(d.Dexes.Updates),
		"dexes_deleted", len(d.Dexes.Deletions),
		"assets_changed", d.Assets.Len(),
		"pools_added", len(d.Pools.Additions),
		"pools_updated", len(d.Pools.Updates),
		"pools_deleted", len(d.Pools.Deletions),
	}
}
