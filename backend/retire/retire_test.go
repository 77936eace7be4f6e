package retire_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ox86sim/backend/op"
	"github.com/sarchlab/ox86sim/backend/retire"
	"github.com/sarchlab/ox86sim/backend/rf"
	"github.com/sarchlab/ox86sim/backend/rob"
	"github.com/sarchlab/ox86sim/backend/sched"
	"github.com/sarchlab/ox86sim/emu"
	"github.com/sarchlab/ox86sim/frontend/bpu"
)

func TestRetire(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Retire Suite")
}

var _ = Describe("Retire control", func() {
	var (
		r    *rob.ROB
		prf  *rf.PRF
		rat  *rf.RAT
		mem  *emu.Memory
		bp   *bpu.Unit
		alus [4]*sched.Scheduler
		agu  *sched.Scheduler
		ctrl *retire.Control
	)

	BeforeEach(func() {
		r = rob.New()
		prf = rf.New()
		rat = rf.NewRAT()
		mem = emu.NewMemory()
		bp = bpu.New()
		for i := range alus {
			alus[i] = sched.New(16)
		}
		agu = sched.New(28)
		ctrl = retire.New(r, rat, prf, mem, bp, alus, agu)
	})

	It("keeps PRN 0 allocated when a retiring RegWrite displaced it", func() {
		newPrn, _ := prf.Alloc()
		prf.Write(newPrn, 0x11)
		idx, _ := r.Push(rob.Entry{
			Addr: 0, Complete: true, HasDst: true,
			DstArn: rf.RAX, DstPrn: newPrn, OldPrn: 0,
			Uop: op.Uop{Eff: [2]op.Effect{{Kind: op.ERegWrite, Arn: rf.RAX, Prn: newPrn}}},
		})
		_ = idx

		retired, flush, err := ctrl.Cycle()
		Expect(err).NotTo(HaveOccurred())
		Expect(flush).To(BeNil())
		Expect(retired).To(HaveLen(1))
		Expect(prf.IsFree(0)).To(BeFalse())
	})

	It("commits a store to memory at base+disp", func() {
		basePrn, _ := prf.Alloc()
		prf.Write(basePrn, 0x1000)
		srcPrn, _ := prf.Alloc()
		prf.Write(srcPrn, 0xdeadbeef)

		eff := op.MemWrite(8,
			op.FromPrn(basePrn), op.FromPrn(basePrn), op.Imm(-8), op.FromPrn(srcPrn))
		_, _ = r.Push(rob.Entry{Addr: 4, Complete: true, Uop: op.Uop{Eff: [2]op.Effect{eff}}})

		retired, flush, err := ctrl.Cycle()
		Expect(err).NotTo(HaveOccurred())
		Expect(flush).To(BeNil())
		Expect(retired).To(HaveLen(1))
		Expect(mem.Read64(0x1000 - 8)).To(Equal(uint64(0xdeadbeef)))
	})

	It("flushes on the first resolution of a branch with no cached prediction", func() {
		idx, _ := r.Push(rob.Entry{
			Addr: 0, Complete: true,
			Uop: op.Uop{Eff: [2]op.Effect{op.BrnImm(0x40)}},
		})
		_ = idx

		_, flush, err := ctrl.Cycle()
		Expect(err).NotTo(HaveOccurred())
		Expect(flush).NotTo(BeNil())
		Expect(flush.Target).To(Equal(uint64(0x40)))
	})

	It("does not flush when the BTB already predicted the resolved target", func() {
		bp.Learn(0, bpu.Info{Kind: bpu.KindUnconditionalDirect, Addr: 0}, 0x40)

		_, _ = r.Push(rob.Entry{
			Addr: 0, Complete: true,
			Uop: op.Uop{Eff: [2]op.Effect{op.BrnImm(0x40)}},
		})

		_, flush, err := ctrl.Cycle()
		Expect(err).NotTo(HaveOccurred())
		Expect(flush).To(BeNil())
	})
})
