// Package rob implements the reorder buffer: a fixed-capacity ring that
// tracks in-flight micro-ops from dispatch through in-order retirement.
package rob

import (
	"fmt"

	"github.com/sarchlab/ox86sim/backend/op"
	"github.com/sarchlab/ox86sim/backend/rf"
)

// Capacity is the fixed ROB size.
const Capacity = 224

// Entry is one ROB slot. HasDst/DstArn/DstPrn/OldPrn record the
// destination Arn/new-Prn/old-Prn triple for a RegWrite-bearing uop, so
// retire can free the prior
// mapping without re-deriving it from the RAT (which has already been
// overwritten at dispatch time under the adopted rename discipline).
type Entry struct {
	Addr     uint64
	Mop      op.MacroOp
	Uop      op.Uop
	HasDst   bool
	DstArn   rf.Arn
	DstPrn   rf.Prn
	OldPrn   rf.Prn
	Complete bool
	occupied bool
}

// ROB is the reorder buffer ring.
type ROB struct {
	entries     [Capacity]Entry
	dispatchPtr int
	retirePtr   int
	count       int
}

// New creates an empty ROB.
func New() *ROB {
	return &ROB{}
}

// IsFull reports whether the ROB has no free slots.
func (r *ROB) IsFull() bool { return r.count == Capacity }

// IsEmpty reports whether the ROB holds no entries.
func (r *ROB) IsEmpty() bool { return r.count == 0 }

// NumFree returns the number of unoccupied slots.
func (r *ROB) NumFree() int { return Capacity - r.count }

// Len returns the number of occupied slots.
func (r *ROB) Len() int { return r.count }

// Push allocates the next slot in program order and returns its index.
func (r *ROB) Push(e Entry) (int, error) {
	if r.IsFull() {
		return 0, fmt.Errorf("rob: push on full ROB (capacity %d)", Capacity)
	}
	idx := r.dispatchPtr
	e.occupied = true
	r.entries[idx] = e
	r.dispatchPtr = (r.dispatchPtr + 1) % Capacity
	r.count++
	return idx, nil
}

// Get returns a pointer to the entry at idx for in-place mutation (used
// by execution units to mark completion).
func (r *ROB) Get(idx int) *Entry {
	return &r.entries[idx]
}

// HeadIdx returns the index of the oldest (retire-candidate) entry.
func (r *ROB) HeadIdx() int { return r.retirePtr }

// Front returns the head entry without removing it, under the same
// occupied-and-complete condition Pop requires. Retire control uses this
// to inspect (and possibly flush on) a branch's effects before the entry
// actually leaves the ring, so TruncateAfter can still see it as the
// surviving cut point.
func (r *ROB) Front() (Entry, error) {
	var zero Entry
	if r.IsEmpty() {
		return zero, fmt.Errorf("rob: front on empty ROB")
	}
	head := r.entries[r.retirePtr]
	if !head.Complete {
		return zero, fmt.Errorf("rob: head entry at %#x not yet complete", head.Addr)
	}
	return head, nil
}

// Pop removes the head entry if it is occupied and complete. Returns a
// structural stall error (Empty/Incomplete distinguished only by text)
// otherwise.
func (r *ROB) Pop() (Entry, error) {
	var zero Entry
	if r.IsEmpty() {
		return zero, fmt.Errorf("rob: pop on empty ROB")
	}
	head := r.entries[r.retirePtr]
	if !head.Complete {
		return zero, fmt.Errorf("rob: head entry at %#x not yet complete", head.Addr)
	}
	r.entries[r.retirePtr] = Entry{}
	r.retirePtr = (r.retirePtr + 1) % Capacity
	r.count--
	return head, nil
}

// TruncateAfter discards every occupied entry whose ROB index lies
// strictly after cutIdx in program order (used for branch-misprediction
// flush). cutIdx itself (the branch's own entry) is kept. Walking stops
// at the current dispatch pointer.
func (r *ROB) TruncateAfter(cutIdx int) {
	idx := (cutIdx + 1) % Capacity
	for idx != r.dispatchPtr {
		r.entries[idx] = Entry{}
		idx = (idx + 1) % Capacity
	}
	r.dispatchPtr = (cutIdx + 1) % Capacity
	r.count = r.distanceInclusive(r.retirePtr, cutIdx)
}

// distanceInclusive counts slots from "from" through "to" inclusive,
// walking forward around the ring.
func (r *ROB) distanceInclusive(from, to int) int {
	if to >= from {
		return to - from + 1
	}
	return Capacity - from + to + 1
}

// IsAfter reports whether idx lies strictly after cut in program order,
// measuring distance forward from the current retire pointer. Must be
// called before TruncateAfter(cut) moves any pointers (i.e. while cut is
// still the occupied, not-yet-popped head), so that "forward from
// retirePtr" still reflects true program order.
func (r *ROB) IsAfter(idx, cut int) bool {
	distIdx := r.ringDistance(idx)
	distCut := r.ringDistance(cut)
	return distIdx > distCut
}

func (r *ROB) ringDistance(to int) int {
	if to >= r.retirePtr {
		return to - r.retirePtr
	}
	return Capacity - r.retirePtr + to
}

// Reset empties the ROB.
func (r *ROB) Reset() {
	*r = ROB{}
}
