package bpu_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ox86sim/backend/queue"
	"github.com/sarchlab/ox86sim/frontend/bpu"
)

func TestBpu(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Bpu Suite")
}

func jmpBranch(addr uint64) bpu.DecodedBranch {
	var bytes [16]byte
	bytes[0] = 0xe9
	return bpu.DecodedBranch{
		Addr: addr, Bytes: bytes, Len: 5,
		Kind: bpu.KindUnconditionalDirect,
	}
}

var _ = Describe("Branch prediction unit", func() {
	var (
		u  *bpu.Unit
		pq *queue.Queue[uint64]
	)

	BeforeEach(func() {
		u = bpu.New()
		pq = queue.New[uint64](32)
	})

	It("creates a target-less BTB entry on first sight of a branch", func() {
		Expect(u.PushBranch(jmpBranch(0x24))).To(Succeed())
		u.Cycle(pq)

		Expect(pq.IsEmpty()).To(BeTrue())
		e, ok := u.BTB().Get(0x20)
		Expect(ok).To(BeTrue())
		Expect(e.Tgt).To(BeNil())
		Expect(u.Stats().Misses).To(Equal(uint64(1)))
	})

	It("predicts a learned target on a matching re-encounter", func() {
		b := jmpBranch(0x24)
		Expect(u.PushBranch(b)).To(Succeed())
		u.Cycle(pq)

		u.Learn(0x20, bpu.Info{Kind: b.Kind, Bytes: b.Bytes, Len: b.Len, Addr: b.Addr}, 0x80)

		Expect(u.PushBranch(b)).To(Succeed())
		u.Cycle(pq)

		tgt, err := pq.Pop()
		Expect(err).NotTo(HaveOccurred())
		Expect(tgt).To(Equal(uint64(0x80)))
		Expect(u.Stats().Predictions).To(Equal(uint64(1)))
	})

	It("emits nothing when the entry matches but has no target yet", func() {
		b := jmpBranch(0x24)
		Expect(u.PushBranch(b)).To(Succeed())
		u.Cycle(pq)
		Expect(u.PushBranch(b)).To(Succeed())
		u.Cycle(pq)

		Expect(pq.IsEmpty()).To(BeTrue())
	})

	It("self-invalidates when the bytes at a known fetch block change", func() {
		b := jmpBranch(0x24)
		Expect(u.PushBranch(b)).To(Succeed())
		u.Cycle(pq)
		u.Learn(0x20, bpu.Info{Kind: b.Kind, Bytes: b.Bytes, Len: b.Len, Addr: b.Addr}, 0x80)

		changed := b
		changed.Bytes[1] = 0x7f
		Expect(u.PushBranch(changed)).To(Succeed())
		u.Cycle(pq)

		Expect(pq.IsEmpty()).To(BeTrue())
		e, _ := u.BTB().Get(0x20)
		Expect(e.Tgt).To(BeNil())
		Expect(u.Stats().Invalidations).To(Equal(uint64(1)))
	})

	It("pops at most one branch record per cycle", func() {
		Expect(u.PushBranch(jmpBranch(0x04))).To(Succeed())
		Expect(u.PushBranch(jmpBranch(0x24))).To(Succeed())

		u.Cycle(pq)
		_, ok := u.BTB().Get(0x00)
		Expect(ok).To(BeTrue())
		_, ok = u.BTB().Get(0x20)
		Expect(ok).To(BeFalse())
	})
})
