// Package emu provides the flat memory image the simulator loads code
// into and the cache-line read contract the front end relies on.
package emu

import (
	"encoding/binary"

	"github.com/sarchlab/ox86sim/backend/simerr"
)

// MemorySize is the fixed flat memory capacity: 32 MiB.
const MemorySize = 32 * 1024 * 1024

// CacheLineSize is the cache-line read granularity the fetch unit reads
// at a time.
const CacheLineSize = 32

// Memory is a byte-addressable flat image of fixed capacity.
type Memory struct {
	data [MemorySize]byte
}

// NewMemory creates a zeroed memory image.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) checkRange(addr uint64, size int) error {
	if addr+uint64(size) > MemorySize {
		return simerr.NewFatal("memory access out of range: addr=%#x size=%d", addr, size)
	}
	return nil
}

// Read8 reads one byte. Callers that can reach untrusted addresses
// should bound-check through WriteSized/ReadCacheLine instead; the
// narrow accessors assume an in-range address.
func (m *Memory) Read8(addr uint64) byte {
	return m.data[addr]
}

// Write8 writes one byte.
func (m *Memory) Write8(addr uint64, v byte) {
	m.data[addr] = v
}

// Read32 reads a little-endian 32-bit word.
func (m *Memory) Read32(addr uint64) uint32 {
	return binary.LittleEndian.Uint32(m.data[addr : addr+4])
}

// Write32 writes a little-endian 32-bit word.
func (m *Memory) Write32(addr uint64, v uint32) {
	binary.LittleEndian.PutUint32(m.data[addr:addr+4], v)
}

// Read64 reads a little-endian 64-bit word.
func (m *Memory) Read64(addr uint64) uint64 {
	return binary.LittleEndian.Uint64(m.data[addr : addr+8])
}

// Write64 writes a little-endian 64-bit word.
func (m *Memory) Write64(addr uint64, v uint64) {
	binary.LittleEndian.PutUint64(m.data[addr:addr+8], v)
}

// WriteSized writes the low `size` bytes (1, 2, 4 or 8) of v,
// little-endian, at addr.
func (m *Memory) WriteSized(addr uint64, size int, v uint64) error {
	if err := m.checkRange(addr, size); err != nil {
		return err
	}
	for i := 0; i < size; i++ {
		m.data[addr+uint64(i)] = byte(v >> (8 * i))
	}
	return nil
}

// LoadFlat copies a flat binary image into memory starting at address 0.
func (m *Memory) LoadFlat(image []byte) error {
	if err := m.checkRange(0, len(image)); err != nil {
		return err
	}
	copy(m.data[:], image)
	return nil
}

// ReadCacheLine returns the 32-byte, 32-byte-aligned cache line at addr.
// A misaligned or out-of-range address is a fatal invariant violation.
func (m *Memory) ReadCacheLine(addr uint64) ([CacheLineSize]byte, error) {
	var line [CacheLineSize]byte
	if addr%CacheLineSize != 0 {
		return line, simerr.NewFatal("cache read at unaligned addr %#x", addr)
	}
	if err := m.checkRange(addr, CacheLineSize); err != nil {
		return line, err
	}
	copy(line[:], m.data[addr:addr+CacheLineSize])
	return line, nil
}
