// Package exec implements the ALU execution units: latency-gated
// completion, PRF writeback, and ROB completion marking.
package exec

import (
	"github.com/sarchlab/ox86sim/backend/latency"
	"github.com/sarchlab/ox86sim/backend/op"
	"github.com/sarchlab/ox86sim/backend/rf"
	"github.com/sarchlab/ox86sim/backend/rob"
	"github.com/sarchlab/ox86sim/backend/sched"
	"github.com/sarchlab/ox86sim/backend/simerr"
)

// NumALUs is the fixed ALU count.
const NumALUs = 4

// alu is one arithmetic-logic execution unit: at most one in-flight
// reservation plus the cycle it began on.
type alu struct {
	res     *sched.Reservation
	cycleIn uint64
}

func (a *alu) busy() bool { return a.res != nil }

// Stats summarizes execution activity.
type Stats struct {
	Completed uint64
}

// Units is the bank of 4 ALUs plus the single AGU completion port.
type Units struct {
	alus  [NumALUs]alu
	agu   alu
	table *latency.Table
	stats Stats
}

// New creates an execution-unit bank using the given latency table.
func New(table *latency.Table) *Units {
	return &Units{table: table}
}

// Stats returns a snapshot of execution statistics.
func (u *Units) Stats() Stats { return u.stats }

// FreeIndices returns, in index order, the ALUs currently unoccupied.
// The issue unit consumes one element per scheduler it visits, whether
// or not that scheduler actually had a ready reservation, so an ALU
// slot can go unused in a cycle even though free ALUs remained.
func (u *Units) FreeIndices() []int {
	var free []int
	for i := range u.alus {
		if !u.alus[i].busy() {
			free = append(free, i)
		}
	}
	return free
}

// Accept places a freshly issued reservation on ALU idx, starting its
// latency clock at now. idx must currently be free.
func (u *Units) Accept(idx int, now uint64, res sched.Reservation) {
	cp := res
	u.alus[idx] = alu{res: &cp, cycleIn: now}
}

// AGUFree reports whether the AGU completion port is unoccupied.
func (u *Units) AGUFree() bool { return !u.agu.busy() }

// AcceptAGU places a freshly issued AGU reservation on the completion
// port, starting its latency clock at now. The port must currently be
// free.
func (u *Units) AcceptAGU(now uint64, res sched.Reservation) {
	cp := res
	u.agu = alu{res: &cp, cycleIn: now}
}

func resolve(s op.Storage, prf *rf.PRF) (uint64, error) {
	switch s.Kind {
	case op.SImm64:
		return uint64(s.Imm64), nil
	case op.SZero:
		return 0, nil
	case op.SPrn:
		return prf.Read(s.Prn), nil
	default:
		return 0, simerr.NewFatal("exec: operand kind %d survived to execute", s.Kind)
	}
}

func compute(addr uint64, alu op.ALUOp, x, y uint64) (uint64, error) {
	switch alu {
	case op.OpAdd:
		return x + y, nil
	case op.OpSub:
		return x - y, nil
	case op.OpAnd:
		return x & y, nil
	case op.OpOr:
		return x | y, nil
	case op.OpXor:
		return x ^ y, nil
	default:
		return 0, &simerr.UnimplementedOp{Addr: addr, What: alu.String()}
	}
}

// Cycle advances every occupied ALU by one cycle. Completions evaluate
// operands, write the destination PRN, flip its ready flag, and mark the
// owning ROB entry complete.
func (u *Units) Cycle(now uint64, r *rob.ROB, prf *rf.PRF) error {
	for i := range u.alus {
		a := &u.alus[i]
		if !a.busy() {
			continue
		}

		tgt := a.res
		lat := u.table.Latency(tgt.Uop)
		if now-a.cycleIn < lat {
			continue
		}

		if tgt.Uop.Kind != op.KAlu {
			return simerr.NewFatal("exec: ALU %d holds non-Alu uop kind %d", i, tgt.Uop.Kind)
		}

		switch tgt.Uop.ALU {
		case op.OpNop, op.OpBrn:
			// No operand evaluation, no PRF write: Brn resolves at retire.
		default:
			x, err := resolve(tgt.Uop.Arg[0], prf)
			if err != nil {
				return err
			}
			y, err := resolve(tgt.Uop.Arg[1], prf)
			if err != nil {
				return err
			}
			res, err := compute(tgt.Uop.Addr, tgt.Uop.ALU, x, y)
			if err != nil {
				return err
			}
			for _, e := range tgt.Uop.Eff {
				if e.Kind == op.ERegWrite {
					prf.Write(e.Prn, res)
				}
			}
		}

		r.Get(tgt.RobIdx).Complete = true
		u.stats.Completed++
		a.res = nil
	}

	if err := u.cycleAGU(now, r); err != nil {
		return err
	}
	return nil
}

// cycleAGU advances the AGU completion port by one cycle. A store has no
// destination PRN and no operand to evaluate here: its effective address
// and value are resolved from the PRF at retire (backend/retire.Control),
// so completion only needs to flip the owning ROB entry's Complete flag
// once the store's latency (backend/latency.Table's KAgu case) has
// elapsed.
func (u *Units) cycleAGU(now uint64, r *rob.ROB) error {
	if !u.agu.busy() {
		return nil
	}

	tgt := u.agu.res
	lat := u.table.Latency(tgt.Uop)
	if now-u.agu.cycleIn < lat {
		return nil
	}

	if tgt.Uop.Kind != op.KAgu {
		return simerr.NewFatal("exec: AGU port holds non-Agu uop kind %d", tgt.Uop.Kind)
	}

	r.Get(tgt.RobIdx).Complete = true
	u.stats.Completed++
	u.agu.res = nil
	return nil
}

// Reset clears all ALUs and the AGU port to idle.
func (u *Units) Reset() {
	for i := range u.alus {
		u.alus[i] = alu{}
	}
	u.agu = alu{}
}
