package indexer

import "github.com/hefarica/ARBITRAGEXPLUS2025/engine"

// IndexedMarket defines the methods for accessing an indexed market snapshot.
type IndexedMarket interface {
	Snapshot() *engine.Snapshot
	GetDex(id string) (engine.DexDescriptor, bool)
	GetAsset(symbol string) (engine.AssetDescriptor, bool)
	GetPool(dexID, tokenA, tokenB string) (engine.PoolSnapshot, bool)
	Neighbors(dexID, token string) []string
	TokensOnDex(dexID string) []string
	ActiveDexes(chainID uint64) []engine.DexDescriptor
	ChainIDs() []uint64
}
