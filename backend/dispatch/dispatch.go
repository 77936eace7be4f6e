// Package dispatch implements the rename/allocate core: macro-op
// decomposition, source rename through the RAT, destination PRN
// allocation, ROB entry allocation, and reservation-station placement.
package dispatch

import (
	"fmt"

	"github.com/sarchlab/ox86sim/backend/op"
	"github.com/sarchlab/ox86sim/backend/queue"
	"github.com/sarchlab/ox86sim/backend/rf"
	"github.com/sarchlab/ox86sim/backend/rob"
	"github.com/sarchlab/ox86sim/backend/sched"
)

// Width is the maximum number of macro-ops dispatched per cycle.
const Width = 6

// StallReason names why a dispatch step broke out early. The check order
// is fixed: ROB, then PRF, then ALU, then AGU.
type StallReason int

const (
	NoStall StallReason = iota
	StallOpQEmpty
	StallROB
	StallPRF
	StallALU
	StallAGU
)

func (r StallReason) String() string {
	switch r {
	case NoStall:
		return "none"
	case StallOpQEmpty:
		return "opq-empty"
	case StallROB:
		return "rob"
	case StallPRF:
		return "prf"
	case StallALU:
		return "alu"
	case StallAGU:
		return "agu"
	default:
		return "unknown"
	}
}

// Option configures a Unit at construction.
type Option func(*Unit)

// WithRATUpdateAtDispatch records the rename discipline this build
// supports: bind the RAT at dispatch, free the displaced PRN at retire.
// A retire-time RAT update is a competing design this simulator does
// not implement; the option exists so the choice is visible at the
// construction site.
func WithRATUpdateAtDispatch() Option {
	return func(u *Unit) { u.ratAtDispatch = true }
}

// Stats summarizes dispatch activity.
type Stats struct {
	Dispatched  uint64
	StallsByROB uint64
	StallsByPRF uint64
	StallsByALU uint64
	StallsByAGU uint64
}

// Unit is the dispatch unit.
type Unit struct {
	rob           *rob.ROB
	prf           *rf.PRF
	rat           *rf.RAT
	alus          [4]*sched.Scheduler
	agu           *sched.Scheduler
	ratAtDispatch bool
	stats         Stats
}

// New creates a dispatch unit wired to the shared back-end structures.
func New(r *rob.ROB, prf *rf.PRF, rat *rf.RAT, alus [4]*sched.Scheduler, agu *sched.Scheduler, opts ...Option) *Unit {
	u := &Unit{rob: r, prf: prf, rat: rat, alus: alus, agu: agu, ratAtDispatch: true}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Stats returns a snapshot of dispatch statistics.
func (u *Unit) Stats() Stats { return u.stats }

func (u *Unit) freeAlu() int {
	n := 0
	for _, s := range u.alus {
		n += s.NumFree()
	}
	return n
}

// leastOccupiedAlu returns the index of the ALU scheduler with the most
// free slots, tie-broken by lowest index.
func (u *Unit) leastOccupiedAlu() int {
	best := 0
	for i := 1; i < len(u.alus); i++ {
		if u.alus[i].NumFree() > u.alus[best].NumFree() {
			best = i
		}
	}
	return best
}

// Cycle attempts up to Width dispatches from opq's head, renaming sources
// through rat, allocating destinations in prf, and reserving ROB and
// scheduler slots. Returns the number of macro-ops dispatched and the
// reason the step stopped (NoStall if it only stopped because opq ran
// dry).
func (u *Unit) Cycle(opq *queue.Queue[op.OPQEntry]) (int, StallReason, error) {
	dispatched := 0

	for i := 0; i < Width; i++ {
		entry, err := opq.Front()
		if err != nil {
			return dispatched, NoStall, nil
		}

		uops, err := op.Decompose(entry.Addr, entry.Mop)
		if err != nil {
			return dispatched, NoStall, err
		}

		neededRob, neededPrn, neededAlu, neededAgu := need(uops)

		if u.rob.NumFree() < neededRob {
			u.stats.StallsByROB++
			return dispatched, StallROB, nil
		}
		if !u.prf.CanAlloc(neededPrn) {
			u.stats.StallsByPRF++
			return dispatched, StallPRF, nil
		}
		if u.freeAlu() < neededAlu {
			u.stats.StallsByALU++
			return dispatched, StallALU, nil
		}
		if u.agu.NumFree() < neededAgu {
			u.stats.StallsByAGU++
			return dispatched, StallAGU, nil
		}

		if err := u.dispatchOne(entry.Addr, entry.Mop, uops); err != nil {
			return dispatched, NoStall, err
		}

		_, _ = opq.Pop()
		dispatched++
		u.stats.Dispatched++
	}

	return dispatched, NoStall, nil
}

func need(uops []op.Uop) (rob, prn, alu, agu int) {
	rob = len(uops)
	for _, uo := range uops {
		for _, e := range uo.Eff {
			if e.Kind == op.ERegWrite && e.Prn == rf.AllocSentinel {
				prn++
			}
		}
		switch uo.Kind {
		case op.KAlu:
			alu++
		case op.KAgu:
			agu++
		}
	}
	return
}

func (u *Unit) dispatchOne(addr uint64, mop op.MacroOp, uops []op.Uop) error {
	for i := range uops {
		uo := &uops[i]

		for j, arg := range uo.Arg {
			if arg.Kind == op.SArn {
				uo.Arg[j] = op.FromPrn(u.rat.Resolve(arg.Arn))
			}
		}
		for j := range uo.Eff {
			eff := &uo.Eff[j]

			// Rename any Arn-form operands carried inside the effect
			// itself (a store's base/index/displacement/source), independent
			// of what kind of effect this is.
			if eff.BaseArg.Kind == op.SArn {
				eff.BaseArg = op.FromPrn(u.rat.Resolve(eff.BaseArg.Arn))
			}
			if eff.IdxArg.Kind == op.SArn {
				eff.IdxArg = op.FromPrn(u.rat.Resolve(eff.IdxArg.Arn))
			}
			if eff.DispArg.Kind == op.SArn {
				eff.DispArg = op.FromPrn(u.rat.Resolve(eff.DispArg.Arn))
			}
			if eff.SrcArg.Kind == op.SArn {
				eff.SrcArg = op.FromPrn(u.rat.Resolve(eff.SrcArg.Arn))
			}

			if eff.Kind != op.ERegWrite || eff.Prn != rf.AllocSentinel {
				continue
			}

			newPrn, err := u.prf.Alloc()
			if err != nil {
				return fmt.Errorf("dispatch: %w", err)
			}
			oldPrn := u.rat.Resolve(eff.Arn)
			eff.Prn = newPrn
			u.rat.Bind(eff.Arn, newPrn)

			robEntry := rob.Entry{
				Addr:   addr,
				Mop:    mop,
				Uop:    *uo,
				HasDst: true,
				DstArn: eff.Arn,
				DstPrn: newPrn,
				OldPrn: oldPrn,
			}
			if err := u.reserve(addr, mop, *uo, robEntry); err != nil {
				return err
			}
			continue
		}

		if !hasRegWrite(*uo) {
			robEntry := rob.Entry{Addr: addr, Mop: mop, Uop: *uo}
			if err := u.reserve(addr, mop, *uo, robEntry); err != nil {
				return err
			}
		}
	}
	return nil
}

func hasRegWrite(uo op.Uop) bool {
	for _, e := range uo.Eff {
		if e.Kind == op.ERegWrite {
			return true
		}
	}
	return false
}

// reserve pushes the ROB entry and, for Alu/Agu kinds, a matching
// scheduler reservation. Illegal (Ud2) and None uops occupy only a ROB
// slot, retiring complete.
func (u *Unit) reserve(addr uint64, mop op.MacroOp, uo op.Uop, entry rob.Entry) error {
	if uo.Kind == op.KIllegal {
		entry.Complete = true
	}

	idx, err := u.rob.Push(entry)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	res := sched.Reservation{Mop: mop, Uop: uo, RobIdx: idx}

	switch uo.Kind {
	case op.KAlu:
		target := u.leastOccupiedAlu()
		if err := u.alus[target].Alloc(res); err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
	case op.KAgu:
		if err := u.agu.Alloc(res); err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
	}
	return nil
}
