package engine

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidRecord is returned for a dex, asset or pool record that cannot be used.
	// The record is dropped from the normalized snapshot; the rest of the snapshot survives.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrMissingParameters is wrapped, together with ErrInvalidRecord, for pools
	// whose protocol needs parameters the record does not carry.
	ErrMissingParameters = errors.New("missing protocol parameters")
	// ErrEmptySnapshot is returned when normalization leaves nothing to search.
	ErrEmptySnapshot = errors.New("snapshot has no usable dexes or pools")
)

// Normalize applies documented defaults to a raw provider snapshot and drops
// records that violate structural invariants. It never mutates raw.
// The returned errors describe every dropped record; they are informational.
func Normalize(raw *Snapshot) (*Snapshot, []error) {
	if raw == nil {
		return &Snapshot{}, []error{ErrEmptySnapshot}
	}

	var rejected []error
	out := &Snapshot{
		ChainID: raw.ChainID,
		Version: raw.Version,
		TakenAt: raw.TakenAt,
		Dexes:   make([]DexDescriptor, 0, len(raw.Dexes)),
		Assets:  make([]AssetDescriptor, 0, len(raw.Assets)),
		Pools:   make([]PoolSnapshot, 0, len(raw.Pools)),
	}

	dexes := make(map[string]DexDescriptor, len(raw.Dexes))
	for _, d := range raw.Dexes {
		if d.ID == "" {
			rejected = append(rejected, fmt.Errorf("%w: dex with empty id", ErrInvalidRecord))
			continue
		}
		if _, dup := dexes[d.ID]; dup {
			rejected = append(rejected, fmt.Errorf("%w: duplicate dex %q", ErrInvalidRecord, d.ID))
			continue
		}
		if d.ChainID == 0 {
			d.ChainID = raw.ChainID
		}
		if d.Protocol == "" {
			d.Protocol = ConstantProduct
		}
		if d.FeeBps == 0 {
			d.FeeBps = DefaultFeeBps
		}
		if d.FeeBps >= MaxFeeBps {
			rejected = append(rejected, fmt.Errorf("%w: dex %q fee %d bps out of range", ErrInvalidRecord, d.ID, d.FeeBps))
			continue
		}
		if d.GasPerSwap == 0 {
			d.GasPerSwap = DefaultGasPerSwap
		}
		dexes[d.ID] = d
		out.Dexes = append(out.Dexes, d)
	}

	assets := make(map[string]struct{}, len(raw.Assets))
	for _, a := range raw.Assets {
		if a.Symbol == "" {
			rejected = append(rejected, fmt.Errorf("%w: asset with empty symbol", ErrInvalidRecord))
			continue
		}
		if _, dup := assets[a.Symbol]; dup {
			rejected = append(rejected, fmt.Errorf("%w: duplicate asset %q", ErrInvalidRecord, a.Symbol))
			continue
		}
		if a.PriceUSD < 0 || !isFinite(a.PriceUSD) {
			rejected = append(rejected, fmt.Errorf("%w: asset %q has invalid price %v", ErrInvalidRecord, a.Symbol, a.PriceUSD))
			continue
		}
		if a.ChainID == 0 {
			a.ChainID = raw.ChainID
		}
		if a.Decimals == 0 {
			a.Decimals = DefaultDecimals
		}
		assets[a.Symbol] = struct{}{}
		out.Assets = append(out.Assets, a)
	}

	for _, p := range raw.Pools {
		if err := validatePool(p, dexes); err != nil {
			rejected = append(rejected, err)
			continue
		}
		dex := dexes[p.DexID]
		if p.ChainID == 0 {
			p.ChainID = dex.ChainID
		}
		if p.FeeBps == 0 {
			p.FeeBps = dex.FeeBps
		}
		if p.Protocol == "" {
			p.Protocol = dex.Protocol
		}
		if err := validateResolvedPool(p, dex); err != nil {
			rejected = append(rejected, err)
			continue
		}
		out.Pools = append(out.Pools, p)
	}

	if out.IsEmpty() {
		rejected = append(rejected, ErrEmptySnapshot)
	}
	return out, rejected
}

func validatePool(p PoolSnapshot, dexes map[string]DexDescriptor) error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: pool with empty id", ErrInvalidRecord)
	case p.TokenA == "" || p.TokenB == "":
		return fmt.Errorf("%w: pool %q has an empty token", ErrInvalidRecord, p.ID)
	case p.TokenA == p.TokenB:
		return fmt.Errorf("%w: pool %q pairs %q with itself", ErrInvalidRecord, p.ID, p.TokenA)
	case p.ReserveA < 0 || p.ReserveB < 0:
		return fmt.Errorf("%w: pool %q has negative reserves", ErrInvalidRecord, p.ID)
	case !isFinite(p.ReserveA) || !isFinite(p.ReserveB):
		return fmt.Errorf("%w: pool %q has non-finite reserves", ErrInvalidRecord, p.ID)
	case p.FeeBps >= MaxFeeBps:
		return fmt.Errorf("%w: pool %q fee %d bps out of range", ErrInvalidRecord, p.ID, p.FeeBps)
	}
	if _, ok := dexes[p.DexID]; !ok {
		return fmt.Errorf("%w: pool %q references unknown dex %q", ErrInvalidRecord, p.ID, p.DexID)
	}
	return nil
}

// validateResolvedPool checks a pool once it has inherited its dex defaults.
func validateResolvedPool(p PoolSnapshot, dex DexDescriptor) error {
	if p.ChainID != dex.ChainID {
		return fmt.Errorf("%w: pool %q is on chain %d but dex %q is on chain %d", ErrInvalidRecord, p.ID, p.ChainID, dex.ID, dex.ChainID)
	}
	switch p.Protocol {
	case StableSwap:
		if !(p.Params.Amplification > 0) {
			return fmt.Errorf("%w: %w: stableswap pool %q has no amplification factor", ErrInvalidRecord, ErrMissingParameters, p.ID)
		}
	case Weighted:
		if !(p.Params.WeightA > 0) || !(p.Params.WeightB > 0) {
			return fmt.Errorf("%w: %w: weighted pool %q needs two positive weights", ErrInvalidRecord, ErrMissingParameters, p.ID)
		}
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
