// Package issue implements the issue unit: each cycle, scans the 4 ALU
// schedulers in index order and assigns one ready reservation each to the
// next free ALU, using a single free-ALU cursor shared across all
// schedulers rather than one restarted per scheduler. It also drains the
// single AGU scheduler into the AGU completion port.
package issue

import (
	"github.com/sarchlab/ox86sim/backend/exec"
	"github.com/sarchlab/ox86sim/backend/rf"
	"github.com/sarchlab/ox86sim/backend/sched"
)

// Stats summarizes issue activity.
type Stats struct {
	Issued uint64
}

// Unit is the issue unit.
type Unit struct {
	alus  [4]*sched.Scheduler
	agu   *sched.Scheduler
	stats Stats
}

// New creates an issue unit over the 4 ALU schedulers and the AGU
// scheduler.
func New(alus [4]*sched.Scheduler, agu *sched.Scheduler) *Unit {
	return &Unit{alus: alus, agu: agu}
}

// Stats returns a snapshot of issue statistics.
func (u *Unit) Stats() Stats { return u.stats }

// Cycle assigns ready reservations to free ALUs. prf supplies the
// wakeup predicate (ready-flag check); alus is the execution-unit bank
// this issue step feeds; now is the current cycle, recorded on the ALU
// as the issuing cycle for latency gating.
//
// The free-ALU cursor advances once per scheduler visited, so a
// scheduler with nothing ready still "spends" one of the free ALU slots
// for this cycle (break once the free-ALU list is exhausted, never
// continue past it).
func (u *Unit) Cycle(now uint64, prf *rf.PRF, alus *exec.Units) int {
	issued := 0
	free := alus.FreeIndices()
	fi := 0

	for _, s := range u.alus {
		if fi >= len(free) {
			break
		}
		aluIdx := free[fi]
		fi++

		res, ok := s.TakeReady(prf)
		if !ok {
			continue
		}
		alus.Accept(aluIdx, now, res)
		issued++
	}

	if alus.AGUFree() {
		if res, ok := u.agu.TakeReady(prf); ok {
			alus.AcceptAGU(now, res)
			issued++
		}
	}

	u.stats.Issued += uint64(issued)
	return issued
}
