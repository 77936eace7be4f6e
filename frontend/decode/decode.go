package decode

import (
	"github.com/sarchlab/ox86sim/backend/op"
	"github.com/sarchlab/ox86sim/backend/queue"
	"github.com/sarchlab/ox86sim/frontend/bpu"
	"github.com/sarchlab/ox86sim/frontend/fetch"
)

// Unit is the decode unit: a rolling pick-window cursor over the oldest
// two IBQ entries, decoding up to 4 instructions per cycle.
type Unit struct {
	pickOffset int
	oracle     Oracle
	stalls     uint64
}

// New creates a decode unit consuming the given oracle.
func New(oracle Oracle) *Unit {
	return &Unit{oracle: oracle}
}

// Stalls returns the number of cycles this unit has stalled.
func (u *Unit) Stalls() uint64 { return u.stalls }

// Reset clears the pick-window cursor (used on pipeline flush).
func (u *Unit) Reset() { u.pickOffset = 0 }

// Cycle decodes up to 4 instructions from the pick window built out of
// ibq's oldest two entries, pushing macro-ops to opq and branch records
// to bp.
func (u *Unit) Cycle(ibq *queue.Queue[fetch.IBQEntry], opq *queue.Queue[op.OPQEntry], bp *bpu.Unit) bool {
	if opq.IsFull() {
		u.stalls++
		return false
	}
	if ibq.Len() < 2 {
		u.stalls++
		return false
	}

	bot, _ := ibq.Peek(0)
	top, _ := ibq.Peek(1)

	var pick [32]byte
	copy(pick[0x00:0x10], bot.Data[:])
	copy(pick[0x10:0x20], top.Data[:])
	pickAddr := bot.Addr

	cursor := u.pickOffset
	var decoded []Decoded

	for i := 0; i < 4; i++ {
		if cursor >= 32 {
			break
		}
		d, ok := u.oracle.Decode(pick[:], cursor, pickAddr+uint64(cursor))
		if !ok {
			break
		}
		if i != 0 && d.Len > 8 {
			break
		}
		decoded = append(decoded, d)
		cursor += d.Len
	}

	if opq.NumFree() < len(decoded) {
		u.stalls++
		return false
	}

	switch {
	case cursor < 0x10:
		u.pickOffset = cursor
	case cursor < 0x20:
		u.pickOffset = cursor - 0x10
		_, _ = ibq.Pop()
	case cursor == 0x20:
		u.pickOffset = 0
		_, _ = ibq.PopNExact(2)
	}

	for _, d := range decoded {
		_ = opq.Push(op.OPQEntry{Addr: d.Addr, Mop: ToMacroOp(d)})

		if IsBranch(d) {
			var kind bpu.BranchKind
			if d.Mn == MJmp {
				kind = bpu.KindUnconditionalDirect
			}
			_ = bp.PushBranch(bpu.DecodedBranch{
				Addr: d.Addr, Bytes: d.Bytes, Len: d.Len, Kind: kind, Target: d.Target,
			})
		}
	}

	return true
}
