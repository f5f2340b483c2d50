package indexer

import (
	"slices"
	"strings"

	"github.com/hefarica/ARBITRAGEXPLUS2025/engine"
)

// Indexer builds an IndexedMarket from a normalized snapshot.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed market from a snapshot. The snapshot must not be
// mutated afterwards; the index keeps a reference to it.
func (i *Indexer) Index(snap *engine.Snapshot) IndexedMarket {
	return NewIndexableMarket(snap)
}

type pairKey struct {
	dexID  string
	token0 string
	token1 string
}

func newPairKey(dexID, a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{dexID: dexID, token0: a, token1: b}
}

// IndexableMarket provides fast, indexed access to a market snapshot.
// Only active pools with non-zero reserves on known dexes are indexed for pricing.
type IndexableMarket struct {
	snap       *engine.Snapshot
	dexByID    map[string]engine.DexDescriptor
	assetByKey map[string]engine.AssetDescriptor
	poolByPair map[pairKey]engine.PoolSnapshot

	// dexID -> token -> sorted tokens reachable in one swap
	neighbors map[string]map[string][]string
	// dexID -> sorted tokens
	tokensByDex map[string][]string
	// chainID -> active dexes sorted by id
	activeByChain map[uint64][]engine.DexDescriptor
	chainIDs      []uint64
}

// NewIndexableMarket creates a new indexed market.
func NewIndexableMarket(snap *engine.Snapshot) *IndexableMarket {
	if snap == nil {
		snap = &engine.Snapshot{}
	}

	m := &IndexableMarket{
		snap:          snap,
		dexByID:       make(map[string]engine.DexDescriptor, len(snap.Dexes)),
		assetByKey:    make(map[string]engine.AssetDescriptor, len(snap.Assets)),
		poolByPair:    make(map[pairKey]engine.PoolSnapshot, len(snap.Pools)),
		neighbors:     make(map[string]map[string][]string),
		tokensByDex:   make(map[string][]string),
		activeByChain: make(map[uint64][]engine.DexDescriptor),
	}

	for _, d := range snap.Dexes {
		m.dexByID[d.ID] = d
		if d.Active {
			m.activeByChain[d.ChainID] = append(m.activeByChain[d.ChainID], d)
		}
	}
	for chainID, dexes := range m.activeByChain {
		slices.SortFunc(dexes, func(a, b engine.DexDescriptor) int {
			return strings.Compare(a.ID, b.ID)
		})
		m.chainIDs = append(m.chainIDs, chainID)
	}
	slices.Sort(m.chainIDs)

	for _, a := range snap.Assets {
		m.assetByKey[a.Symbol] = a
	}

	for _, p := range snap.Pools {
		if !p.Active || p.ReserveA <= 0 || p.ReserveB <= 0 {
			continue
		}
		if _, ok := m.dexByID[p.DexID]; !ok {
			continue
		}
		key := newPairKey(p.DexID, p.TokenA, p.TokenB)
		existing, seen := m.poolByPair[key]
		// the deepest pool represents the pair on a dex
		if seen && existing.LiquidityUSD >= p.LiquidityUSD {
			continue
		}
		m.poolByPair[key] = p
		if !seen {
			m.link(p.DexID, p.TokenA, p.TokenB)
			m.link(p.DexID, p.TokenB, p.TokenA)
		}
	}

	for dexID, adj := range m.neighbors {
		tokens := make([]string, 0, len(adj))
		for token, next := range adj {
			slices.Sort(next)
			tokens = append(tokens, token)
		}
		slices.Sort(tokens)
		m.tokensByDex[dexID] = tokens
	}

	return m
}

func (m *IndexableMarket) link(dexID, from, to string) {
	adj, ok := m.neighbors[dexID]
	if !ok {
		adj = make(map[string][]string)
		m.neighbors[dexID] = adj
	}
	adj[from] = append(adj[from], to)
}

// Snapshot returns the indexed snapshot.
func (m *IndexableMarket) Snapshot() *engine.Snapshot {
	return m.snap
}

// GetDex retrieves a dex by id.
func (m *IndexableMarket) GetDex(id string) (engine.DexDescriptor, bool) {
	d, ok := m.dexByID[id]
	return d, ok
}

// GetAsset retrieves an asset by symbol.
func (m *IndexableMarket) GetAsset(symbol string) (engine.AssetDescriptor, bool) {
	a, ok := m.assetByKey[symbol]
	return a, ok
}

// GetPool returns the deepest priced pool for the unordered pair on a dex.
func (m *IndexableMarket) GetPool(dexID, tokenA, tokenB string) (engine.PoolSnapshot, bool) {
	p, ok := m.poolByPair[newPairKey(dexID, tokenA, tokenB)]
	return p, ok
}

// Neighbors returns the tokens reachable from token in a single swap on dexID.
// The returned slice is shared and MUST NOT be modified.
func (m *IndexableMarket) Neighbors(dexID, token string) []string {
	return m.neighbors[dexID][token]
}

// TokensOnDex returns every token with at least one priced pool on dexID.
// The returned slice is shared and MUST NOT be modified.
func (m *IndexableMarket) TokensOnDex(dexID string) []string {
	return m.tokensByDex[dexID]
}

// ActiveDexes returns a defensive copy of the active dexes on a chain, sorted by id.
func (m *IndexableMarket) ActiveDexes(chainID uint64) []engine.DexDescriptor {
	return slices.Clone(m.activeByChain[chainID])
}

// ChainIDs returns the chains with at least one active dex, ascending.
func (m *IndexableMarket) ChainIDs() []uint64 {
	return slices.Clone(m.chainIDs)
}
