// Package retire implements retire control: in-order commit of up to 8
// completed ROB entries per cycle, RAT/PRF reclamation, store commit to
// memory, and branch-misprediction detection that triggers a pipeline
// flush.
package retire

import (
	"fmt"

	"github.com/sarchlab/ox86sim/backend/op"
	"github.com/sarchlab/ox86sim/backend/rf"
	"github.com/sarchlab/ox86sim/backend/rob"
	"github.com/sarchlab/ox86sim/backend/sched"
	"github.com/sarchlab/ox86sim/backend/simerr"
	"github.com/sarchlab/ox86sim/emu"
	"github.com/sarchlab/ox86sim/frontend/bpu"
)

// Width is the maximum number of ROB entries retired per cycle.
const Width = 8

// FlushDecision is the value retire returns when a branch resolves
// against a stale or absent prediction; core.Core applies it by
// discarding speculative state and redirecting next-PC. Retire never
// touches the front-end queues itself.
type FlushDecision struct {
	// CutROBIdx is the ROB index of the branch entry itself; entries at
	// and before this index survive, everything after is discarded.
	CutROBIdx int
	// Target is the resolved branch target next-PC should redirect to.
	Target uint64
}

// Stats summarizes retire activity.
type Stats struct {
	Retired         uint64
	Mispredicts     uint64
	StoresCommitted uint64
}

// Control is the retire control unit.
type Control struct {
	rob   *rob.ROB
	rat   *rf.RAT
	prf   *rf.PRF
	mem   *emu.Memory
	bpu   *bpu.Unit
	alus  [4]*sched.Scheduler
	agu   *sched.Scheduler
	stats Stats
}

// New creates a retire control unit wired to the shared back-end and
// front-end structures it commits into. alus and agu are the same
// scheduler instances dispatch reserves into; a misprediction discards
// their speculative-past-the-branch reservations as part of the flush,
// while the ROB index they reference is still meaningful (i.e. before
// TruncateAfter moves any pointers).
func New(r *rob.ROB, rat *rf.RAT, prf *rf.PRF, mem *emu.Memory, bp *bpu.Unit, alus [4]*sched.Scheduler, agu *sched.Scheduler) *Control {
	return &Control{rob: r, rat: rat, prf: prf, mem: mem, bpu: bp, alus: alus, agu: agu}
}

// Stats returns a snapshot of retire statistics.
func (c *Control) Stats() Stats { return c.stats }

// Cycle retires up to Width completed ROB entries in program order. It
// returns the retired entries (for terminal-marker/UD2 detection and
// trace) and, if a branch mispredicted, a non-nil FlushDecision for
// core.Core to apply.
func (c *Control) Cycle() ([]rob.Entry, *FlushDecision, error) {
	var retired []rob.Entry

	for i := 0; i < Width; i++ {
		robIdx := c.rob.HeadIdx()
		entry, err := c.rob.Front()
		if err != nil {
			return retired, nil, nil
		}

		flush, err := c.commit(robIdx, entry)
		if err != nil {
			return retired, nil, err
		}

		// A mispredicting branch discards everything dispatched after
		// it while its own ROB entry is still the (complete) head, so
		// IsAfter/TruncateAfter see the correct cut point; only then is
		// the branch itself popped.
		if flush != nil {
			// Undo, youngest first, the RAT bindings dispatch made for the
			// entries about to be discarded.
			for k := c.rob.Len() - 1; k > 0; k-- {
				if e := c.rob.Get((robIdx + k) % rob.Capacity); e.HasDst {
					c.rat.Bind(e.DstArn, e.OldPrn)
				}
			}
			isAfter := func(idx int) bool { return c.rob.IsAfter(idx, robIdx) }
			for _, s := range c.alus {
				s.DiscardAfter(isAfter)
			}
			c.agu.DiscardAfter(isAfter)
			c.rob.TruncateAfter(robIdx)
		}

		popped, err := c.rob.Pop()
		if err != nil {
			return retired, nil, fmt.Errorf("retire: %w", err)
		}
		retired = append(retired, popped)
		c.stats.Retired++

		if flush != nil {
			return retired, flush, nil
		}
	}

	return retired, nil, nil
}

func (c *Control) commit(robIdx int, entry rob.Entry) (*FlushDecision, error) {
	if entry.HasDst {
		// PRN 0 is the permanently reserved zero register every ARN
		// aliases at reset; many ARNs may still reference it
		// simultaneously, so it is never returned to the free list
		// (see backend/rf.PRF's reservation of PRN 0).
		if entry.OldPrn != 0 {
			if err := c.prf.Free(entry.OldPrn); err != nil {
				return nil, fmt.Errorf("retire: %w", err)
			}
		}
	}

	for _, e := range entry.Uop.Eff {
		switch e.Kind {
		case op.EMemWrite:
			if err := c.commitStore(e); err != nil {
				return nil, err
			}
		case op.EBrnImm:
			return c.resolveBranch(robIdx, entry.Addr, e.Target), nil
		}
	}

	return nil, nil
}

// commitStore resolves the store's effective address as base+disp. The
// demonstration oracle's only store form has no real SIB index byte and
// sets IdxArg equal to BaseArg as a placeholder for a future
// SIB-indexed extension, so it is deliberately not added here (that
// would double-count the base).
func (c *Control) commitStore(e op.Effect) error {
	base, err := resolveOperand(e.BaseArg, c.prf)
	if err != nil {
		return fmt.Errorf("retire: %w", err)
	}
	disp, err := resolveOperand(e.DispArg, c.prf)
	if err != nil {
		return fmt.Errorf("retire: %w", err)
	}
	src, err := resolveOperand(e.SrcArg, c.prf)
	if err != nil {
		return fmt.Errorf("retire: %w", err)
	}

	addr := base + disp
	if err := c.mem.WriteSized(addr, e.Size, src); err != nil {
		return fmt.Errorf("retire: store to %#x: %w", addr, err)
	}
	c.stats.StoresCommitted++
	return nil
}

func resolveOperand(s op.Storage, prf *rf.PRF) (uint64, error) {
	switch s.Kind {
	case op.SImm64:
		return uint64(s.Imm64), nil
	case op.SZero:
		return 0, nil
	case op.SPrn:
		return prf.Read(s.Prn), nil
	default:
		return 0, simerr.NewFatal("retire: operand kind %d survived to retire", s.Kind)
	}
}

// resolveBranch compares the resolved target against the BTB's current
// prediction for the branch's fetch block. A miss, a cleared target, or
// a stale target are all treated as mispredicts that must flush; only an
// exact match lets the pipeline continue undisturbed.
func (c *Control) resolveBranch(robIdx int, addr uint64, target uint64) *FlushDecision {
	fetchAddr := addr &^ 0x1f

	predicted := false
	if e, ok := c.bpu.BTB().Get(fetchAddr); ok && e.Tgt != nil && *e.Tgt == target {
		predicted = true
	}

	c.bpu.Learn(fetchAddr, bpu.Info{Kind: bpu.KindUnconditionalDirect, Addr: fetchAddr}, target)

	if predicted {
		return nil
	}

	c.stats.Mispredicts++
	return &FlushDecision{CutROBIdx: robIdx, Target: target}
}
