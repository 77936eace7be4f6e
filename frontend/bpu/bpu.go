// Package bpu implements the branch prediction unit and branch target
// buffer: fetch-block-address-keyed identity matching, not a
// saturating-counter direction predictor.
package bpu

import (
	"github.com/sarchlab/ox86sim/backend/queue"
)

// BranchKind discriminates the shape of branch a BTB entry describes.
type BranchKind int

const (
	KindNone BranchKind = iota
	KindUnconditionalDirect
)

// Info uniquely identifies the branch instruction last seen at a given
// fetch block, so the BTB can detect self-modified code and
// self-invalidate.
type Info struct {
	Kind  BranchKind
	Bytes [16]byte
	Len   int
	Addr  uint64
}

// DecodedBranch is the record the decode unit forwards to the BPU for a
// recognized branch mnemonic.
type DecodedBranch struct {
	Addr  uint64
	Bytes [16]byte
	Len   int
	Kind  BranchKind
	// Target is known at decode time for this build's near-immediate
	// jump form; 0/unused for anything else.
	Target uint64
}

// FetchAddr returns the 32-byte-aligned fetch-block address of the
// branch.
func (d DecodedBranch) FetchAddr() uint64 {
	return d.Addr &^ 0x1f
}

// Entry is one BTB slot.
type Entry struct {
	Info Info
	Tgt  *uint64
}

// BTB is the branch target buffer, keyed by 32-byte-aligned fetch-block
// address.
type BTB struct {
	data map[uint64]*Entry
}

// NewBTB creates an empty BTB.
func NewBTB() *BTB {
	return &BTB{data: make(map[uint64]*Entry)}
}

// Get returns the entry for a fetch-block address, if any.
func (b *BTB) Get(fetchAddr uint64) (*Entry, bool) {
	e, ok := b.data[fetchAddr]
	return e, ok
}

// Create installs a new entry with no known target.
func (b *BTB) Create(fetchAddr uint64, info Info) {
	b.data[fetchAddr] = &Entry{Info: info}
}

// Stats summarizes BPU activity.
type Stats struct {
	Predictions    uint64
	Misses         uint64
	Invalidations  uint64
	TargetsLearned uint64
}

// Unit is the branch prediction unit: a queue of decoded branches
// awaiting a BTB lookup, plus the BTB itself.
type Unit struct {
	branches *queue.Queue[DecodedBranch]
	btb      *BTB
	stats    Stats
}

// New creates a BPU with its own 32-entry branch queue.
func New() *Unit {
	return &Unit{
		branches: queue.New[DecodedBranch](32),
		btb:      NewBTB(),
	}
}

// PushBranch enqueues a decoded branch record from the decode unit.
func (u *Unit) PushBranch(b DecodedBranch) error {
	return u.branches.Push(b)
}

// BTB exposes the branch target buffer (retire uses this to learn
// targets).
func (u *Unit) BTB() *BTB { return u.btb }

// Stats returns a snapshot of BPU statistics.
func (u *Unit) Stats() Stats { return u.stats }

// Cycle pops at most one branch record and predicts, pushing a target
// onto pq when one is known.
func (u *Unit) Cycle(pq *queue.Queue[uint64]) {
	brn, err := u.branches.Pop()
	if err != nil {
		return
	}

	fetchAddr := brn.FetchAddr()
	info := Info{Kind: brn.Kind, Bytes: brn.Bytes, Len: brn.Len, Addr: brn.Addr}

	e, ok := u.btb.Get(fetchAddr)
	if !ok {
		u.btb.Create(fetchAddr, info)
		u.stats.Misses++
		return
	}

	if e.Info == info {
		if e.Tgt != nil {
			_ = pq.Push(*e.Tgt)
			u.stats.Predictions++
		}
		return
	}

	u.stats.Invalidations++
	e.Info = info
	e.Tgt = nil
}

// Learn records the resolved target for the branch at fetchAddr. The
// decode-time push should already have created the entry; one is
// created here if it is somehow absent.
func (u *Unit) Learn(fetchAddr uint64, info Info, target uint64) {
	e, ok := u.btb.Get(fetchAddr)
	if !ok {
		u.btb.Create(fetchAddr, info)
		e, _ = u.btb.Get(fetchAddr)
	}
	t := target
	e.Tgt = &t
	u.stats.TargetsLearned++
}

// Reset clears the branch queue and BTB.
func (u *Unit) Reset() {
	u.branches.Clear()
	u.btb = NewBTB()
	u.stats = Stats{}
}

// FlushQueue discards all queued branch records (pipeline flush).
func (u *Unit) FlushQueue() {
	u.branches.Clear()
}
