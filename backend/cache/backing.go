// Package cache wires the flat memory image behind akita's cache
// directory, giving the fetch unit its 32-byte-aligned cache-line read
// contract through a real cache hierarchy model instead of a bare slice
// copy.
package cache

import (
	"github.com/sarchlab/ox86sim/emu"
)

// MemoryBacking adapts emu.Memory to the BackingStore interface the
// akita-backed Cache expects on a miss.
type MemoryBacking struct {
	memory *emu.Memory
}

// NewMemoryBacking builds a backing-store adapter over memory.
func NewMemoryBacking(memory *emu.Memory) *MemoryBacking {
	return &MemoryBacking{memory: memory}
}

// Read fetches data from the backing memory.
func (m *MemoryBacking) Read(addr uint64, size int) []byte {
	data := make([]byte, size)
	for i := 0; i < size; i++ {
		data[i] = m.memory.Read8(addr + uint64(i))
	}
	return data
}

// Write stores data to the backing memory.
func (m *MemoryBacking) Write(addr uint64, data []byte) {
	for i, b := range data {
		_ = m.memory.WriteSized(addr+uint64(i), 1, uint64(b))
	}
}
