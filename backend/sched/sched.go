// Package sched implements the reservation-station scheduler used by
// both the ALU (4x16-entry) and AGU (1x28-entry) resources: one type,
// parameterized by capacity at construction time.
package sched

import (
	"fmt"

	"github.com/sarchlab/ox86sim/backend/op"
	"github.com/sarchlab/ox86sim/backend/rf"
)

// Reservation is a micro-op awaiting issue in a scheduler slot.
type Reservation struct {
	Mop    op.MacroOp
	Uop    op.Uop
	RobIdx int
}

// Scheduler is a fixed-capacity, unordered array of reservation slots.
type Scheduler struct {
	slots []*Reservation
}

// New creates an empty scheduler with the given capacity.
func New(capacity int) *Scheduler {
	return &Scheduler{slots: make([]*Reservation, capacity)}
}

// Capacity returns the fixed slot count.
func (s *Scheduler) Capacity() int { return len(s.slots) }

// NumFree returns the count of unoccupied slots.
func (s *Scheduler) NumFree() int {
	n := 0
	for _, r := range s.slots {
		if r == nil {
			n++
		}
	}
	return n
}

// NumPending returns the count of occupied slots.
func (s *Scheduler) NumPending() int {
	return len(s.slots) - s.NumFree()
}

// Alloc places a reservation into the first free slot.
func (s *Scheduler) Alloc(r Reservation) error {
	for i := range s.slots {
		if s.slots[i] == nil {
			cp := r
			s.slots[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("sched: scheduler full (capacity %d)", len(s.slots))
}

// fire reports whether every Prn source argument of u has been produced.
func fire(u op.Uop, prf *rf.PRF) bool {
	for _, a := range u.Arg {
		if a.Kind == op.SPrn && !prf.IsReady(a.Prn) {
			return false
		}
	}
	return true
}

// NumReady counts ready reservations without removing them.
func (s *Scheduler) NumReady(prf *rf.PRF) int {
	n := 0
	for _, r := range s.slots {
		if r != nil && fire(r.Uop, prf) {
			n++
		}
	}
	return n
}

// TakeReady scans slots in index order and returns (and vacates) the
// first whose micro-op is ready. Returns ok=false if none are ready.
func (s *Scheduler) TakeReady(prf *rf.PRF) (Reservation, bool) {
	for i, r := range s.slots {
		if r != nil && fire(r.Uop, prf) {
			res := *r
			s.slots[i] = nil
			return res, true
		}
	}
	return Reservation{}, false
}

// DiscardAfter removes every reservation whose RobIdx isAfter reports
// true for (used for branch-misprediction flush, where isAfter captures
// ROB ring ordering relative to the branch).
func (s *Scheduler) DiscardAfter(isAfter func(robIdx int) bool) {
	for i, r := range s.slots {
		if r != nil && isAfter(r.RobIdx) {
			s.slots[i] = nil
		}
	}
}

// Reset empties the scheduler.
func (s *Scheduler) Reset() {
	for i := range s.slots {
		s.slots[i] = nil
	}
}
