// Package fetch implements the fetch unit: pops a fetch-target address,
// reads a 32-byte cache line, and splits it into two 16-byte
// instruction-byte-queue entries.
package fetch

import (
	"github.com/sarchlab/ox86sim/backend/cache"
	"github.com/sarchlab/ox86sim/backend/queue"
)

// IBQEntry is one instruction-byte-queue entry: 16 addressed bytes.
type IBQEntry struct {
	Addr uint64
	Data [16]byte
}

// Unit is the fetch unit.
type Unit struct {
	cache  *cache.Cache
	stalls uint64
}

// New creates a fetch unit reading through c.
func New(c *cache.Cache) *Unit {
	return &Unit{cache: c}
}

// Stalls returns the number of cycles this unit has stalled.
func (u *Unit) Stalls() uint64 { return u.stalls }

// Cycle pops one FTQ target and pushes two IBQ entries. Stalls (and
// leaves both queues untouched) if the FTQ is empty or the IBQ has fewer
// than two free slots.
func (u *Unit) Cycle(ftq *queue.Queue[uint64], ibq *queue.Queue[IBQEntry]) bool {
	if ibq.NumFree() < 2 {
		u.stalls++
		return false
	}
	if ftq.IsEmpty() {
		u.stalls++
		return false
	}

	addr, _ := ftq.Pop()
	line := u.cache.ReadLine(addr)

	var lo, hi [16]byte
	copy(lo[:], line[0x00:0x10])
	copy(hi[:], line[0x10:0x20])

	_ = ibq.Push(IBQEntry{Addr: addr, Data: lo})
	_ = ibq.Push(IBQEntry{Addr: addr + 0x10, Data: hi})
	return true
}
