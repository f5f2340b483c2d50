package patcher

import (
	"errors"
	"fmt"

	"github.com/hefarica/ARBITRAGEXPLUS2025/differ"
	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
)

var (
	// ErrVersionMismatch is returned when a diff does not start at the snapshot's version.
	ErrVersionMismatch = errors.New("patcher: diff does not apply to this snapshot version")
	// ErrUnknownRecord is returned when a diff updates or deletes a record the snapshot lacks.
	ErrUnknownRecord = errors.New("patcher: unknown record")
)

// Patch creates a new Snapshot by applying diff to old.
//
// CONTRACT:
// 1. Immutability: old is never mutated; the result has its own slices.
// 2. Ordering: surviving records keep their position, updates are applied in
// place and additions are appended in diff order.
func Patch(old *engine.Snapshot, diff *differ.SnapshotDiff) (*engine.Snapshot, error) {
	if old == nil || diff == nil {
		return nil, errors.New("patcher: nil snapshot or diff")
	}
	// 1. Integrity Check
	if old.Version != diff.FromVersion {
		return nil, fmt.Errorf("%w: snapshot=%d, diff=%d", ErrVersionMismatch, old.Version, diff.FromVersion)
	}
	if old.ChainID != diff.ChainID {
		return nil, fmt.Errorf("patcher: chain mismatch (snapshot=%d, diff=%d)", old.ChainID, diff.ChainID)
	}

	// 2. Apply per record kind
	dexes, err := apply(old.Dexes, diff.Dexes, func(x engine.DexDescriptor) string { return x.ID })
	if err != nil {
		return nil, fmt.Errorf("dexes: %w", err)
	}
	assets, err := apply(old.Assets, diff.Assets, func(x engine.AssetDescriptor) string { return x.Symbol })
	if err != nil {
		return nil, fmt.Errorf("assets: %w", err)
	}
	pools, err := apply(old.Pools, diff.Pools, func(x engine.PoolSnapshot) string { return x.ID })
	if err != nil {
		return nil, fmt.Errorf("pools: %w", err)
	}

	return &engine.Snapshot{
		ChainID: old.ChainID,
		Version: diff.ToVersion,
		TakenAt: diff.TakenAt,
		Dexes:   dexes,
		Assets:  assets,
		Pools:   pools,
	}, nil
}

func apply[T any](prev []T, c differ.Changes[T], key func(T) string) ([]T, error) {
	index := make(map[string]int, len(prev))
	for i, r := range prev {
		index[key(r)] = i
	}

	deleted := make(map[string]struct{}, len(c.Deletions))
	for _, k := range c.Deletions {
		if _, ok := index[k]; !ok {
			return nil, fmt.Errorf("%w: delete %q", ErrUnknownRecord, k)
		}
		deleted[k] = struct{}{}
	}
	updated := make(map[string]T, len(c.Updates))
	for _, r := range c.Updates {
		k := key(r)
		if _, ok := index[k]; !ok {
			return nil, fmt.Errorf("%w: update %q", ErrUnknownRecord, k)
		}
		updated[k] = r
	}

	out := make([]T, 0, len(prev)-len(deleted)+len(c.Additions))
	for _, r := range prev {
		k := key(r)
		if _, gone := deleted[k]; gone {
			continue
		}
		if u, ok := updated[k]; ok {
			r = u
		}
		out = append(out, r)
	}
	for _, r := range c.Additions {
		if _, exists := index[key(r)]; exists {
			if _, gone := deleted[key(r)]; !gone {
				return nil, fmt.Errorf("patcher: addition %q already exists", key(r))
			}
		}
		out = append(out, r)
	}
	return out, nil
}
