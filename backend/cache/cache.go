package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes.
	Size int
	// Associativity (number of ways).
	Associativity int
	// BlockSize in bytes. The fetch unit's cache-line read contract
	// requires this to be 32.
	BlockSize int
	// HitLatency in cycles.
	HitLatency uint64
	// MissLatency in cycles.
	MissLatency uint64
}

// DefaultL1Config returns a default single-level instruction/data cache
// sized so that its block matches the simulator's 32-byte cache-line
// read contract.
func DefaultL1Config() Config {
	return Config{
		Size:          64 * 1024,
		Associativity: 8,
		BlockSize:     32,
		HitLatency:    1,
		MissLatency:   12,
	}
}

// Statistics holds cache access counters.
type Statistics struct {
	Reads      uint64
	Misses     uint64
	Hits       uint64
	Evictions  uint64
	Writebacks uint64
}

// BackingStore is the next level of the memory hierarchy.
type BackingStore interface {
	Read(addr uint64, size int) []byte
	Write(addr uint64, data []byte)
}

// Cache is an akita-directory-backed cache over a BackingStore.
type Cache struct {
	config    Config
	directory *akitacache.DirectoryImpl
	dataStore [][]byte
	stats     Statistics
	backing   BackingStore
}

// New creates a cache with the given configuration.
func New(config Config, backing BackingStore) *Cache {
	numSets := config.Size / (config.Associativity * config.BlockSize)
	totalBlocks := numSets * config.Associativity

	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.BlockSize)
	}

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
		backing:   backing,
	}
}

// Stats returns a snapshot of cache statistics.
func (c *Cache) Stats() Statistics { return c.stats }

func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

// ReadLine returns the 32-byte-aligned block containing addr, servicing
// misses from the backing store.
func (c *Cache) ReadLine(addr uint64) [32]byte {
	c.stats.Reads++
	blockAddr := (addr / uint64(c.config.BlockSize)) * uint64(c.config.BlockSize)

	block := c.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		var out [32]byte
		copy(out[:], c.dataStore[c.blockIndex(block)])
		return out
	}

	c.stats.Misses++
	return c.handleMiss(blockAddr)
}

func (c *Cache) handleMiss(blockAddr uint64) [32]byte {
	var out [32]byte

	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		return out
	}

	victimData := c.dataStore[c.blockIndex(victim)]
	if victim.IsValid {
		c.stats.Evictions++
		if victim.IsDirty && c.backing != nil {
			c.stats.Writebacks++
			c.backing.Write(victim.Tag, victimData)
		}
	}

	if c.backing != nil {
		newData := c.backing.Read(blockAddr, c.config.BlockSize)
		copy(victimData, newData)
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false
	c.directory.Visit(victim)

	copy(out[:], victimData)
	return out
}

// Reset invalidates all cache lines without writeback.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
}
