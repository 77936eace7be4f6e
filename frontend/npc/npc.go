// Package npc implements the next-PC logic: consuming a predicted fetch
// target if one is queued, otherwise advancing sequentially by one
// 32-byte fetch block.
package npc

import "github.com/sarchlab/ox86sim/backend/queue"

// Unit is the next-PC logic stage.
type Unit struct {
	stalls uint64
}

// New creates a next-PC logic unit.
func New() *Unit { return &Unit{} }

// Stalls returns the number of cycles this unit has stalled.
func (u *Unit) Stalls() uint64 { return u.stalls }

// Cycle advances pc, pushing the chosen fetch target onto ftq. pc is the
// architectural next-PC register, threaded in and out. Returns false if
// the unit stalled (FTQ full) this cycle.
func (u *Unit) Cycle(pc *uint64, pq *queue.Queue[uint64], ftq *queue.Queue[uint64]) bool {
	if ftq.IsFull() {
		u.stalls++
		return false
	}

	if p, err := pq.Pop(); err == nil {
		_ = ftq.Push(p)
		*pc = p
		return true
	}

	_ = ftq.Push(*pc)
	*pc += 0x20
	return true
}
