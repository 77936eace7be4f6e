package decode_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ox86sim/backend/op"
	"github.com/sarchlab/ox86sim/backend/queue"
	"github.com/sarchlab/ox86sim/frontend/bpu"
	"github.com/sarchlab/ox86sim/frontend/decode"
	"github.com/sarchlab/ox86sim/frontend/fetch"
)

func TestDecode(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Decode Suite")
}

func nopEntry(addr uint64) fetch.IBQEntry {
	var data [16]byte
	for i := range data {
		data[i] = 0x90
	}
	return fetch.IBQEntry{Addr: addr, Data: data}
}

var _ = Describe("Unit", func() {
	var (
		ibq *queue.Queue[fetch.IBQEntry]
		opq *queue.Queue[op.OPQEntry]
		bp  *bpu.Unit
		u   *decode.Unit
	)

	BeforeEach(func() {
		ibq = queue.New[fetch.IBQEntry](20)
		opq = queue.New[op.OPQEntry](32)
		bp = bpu.New()
		u = decode.New(decode.NewDemoOracle())
	})

	It("decodes a single NOP from the pick window", func() {
		lo := fetch.IBQEntry{Addr: 0x1000}
		lo.Data[0] = 0x90
		hi := fetch.IBQEntry{Addr: 0x1010}
		Expect(ibq.Push(lo)).To(Succeed())
		Expect(ibq.Push(hi)).To(Succeed())

		ok := u.Cycle(ibq, opq, bp)
		Expect(ok).To(BeTrue())
		Expect(opq.Len()).To(Equal(1))

		e, err := opq.Pop()
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Mop.Kind).To(Equal(op.Nop))
		Expect(e.Addr).To(Equal(uint64(0x1000)))
	})

	It("stalls and leaves the op queue untouched when it cannot fit all decoded instructions", func() {
		Expect(ibq.Push(nopEntry(0x2000))).To(Succeed())
		Expect(ibq.Push(nopEntry(0x2010))).To(Succeed())

		// 4 NOPs decode, but only 2 of the 4 op-queue slots are free.
		small := queue.New[op.OPQEntry](4)
		_ = small.Push(op.OPQEntry{})
		_ = small.Push(op.OPQEntry{})
		ok := u.Cycle(ibq, small, bp)
		Expect(ok).To(BeFalse())
		Expect(ibq.Len()).To(Equal(2))
		Expect(small.Len()).To(Equal(2))
	})

	It("routes a recognized near jump to the BPU branch queue", func() {
		lo := fetch.IBQEntry{Addr: 0x3000}
		lo.Data[0] = 0xe9
		lo.Data[1] = 0x05
		lo.Data[2] = 0x00
		lo.Data[3] = 0x00
		lo.Data[4] = 0x00
		hi := fetch.IBQEntry{Addr: 0x3010}
		Expect(ibq.Push(lo)).To(Succeed())
		Expect(ibq.Push(hi)).To(Succeed())

		ok := u.Cycle(ibq, opq, bp)
		Expect(ok).To(BeTrue())

		e, err := opq.Pop()
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Mop.Kind).To(Equal(op.JmpI))
		Expect(e.Mop.Target).To(Equal(uint64(0x300a)))

		bp.Cycle(queue.New[uint64](32))
		_, found := bp.BTB().Get(0x3000)
		Expect(found).To(BeTrue())
	})

	It("pops one IBQ entry when the cursor crosses into the upper window half", func() {
		Expect(ibq.Push(nopEntry(0x1000))).To(Succeed())
		Expect(ibq.Push(nopEntry(0x1010))).To(Succeed())

		// 4 NOPs per cycle; the cursor reaches exactly 16 on the 4th
		// cycle, consuming the lower half.
		for i := 0; i < 4; i++ {
			Expect(u.Cycle(ibq, opq, bp)).To(BeTrue())
		}
		Expect(opq.Len()).To(Equal(16))
		Expect(ibq.Len()).To(Equal(1))

		e, _ := ibq.Front()
		Expect(e.Addr).To(Equal(uint64(0x1010)))
	})

	It("pops both IBQ entries when the cursor lands exactly on 32", func() {
		// 4 single-byte NOPs, then 4 seven-byte MOVs: the first cycle
		// leaves the cursor at 4, the second decodes 4x7 bytes, landing
		// exactly on the window edge.
		var window [32]byte
		for i := 0; i < 4; i++ {
			window[i] = 0x90
		}
		for i := 0; i < 4; i++ {
			copy(window[4+7*i:], []byte{0x48, 0xc7, 0xc0, 0x11, 0x00, 0x00, 0x00})
		}
		lo := fetch.IBQEntry{Addr: 0x2000}
		copy(lo.Data[:], window[:16])
		hi := fetch.IBQEntry{Addr: 0x2010}
		copy(hi.Data[:], window[16:])
		Expect(ibq.Push(lo)).To(Succeed())
		Expect(ibq.Push(hi)).To(Succeed())

		Expect(u.Cycle(ibq, opq, bp)).To(BeTrue())
		Expect(ibq.Len()).To(Equal(2))

		Expect(u.Cycle(ibq, opq, bp)).To(BeTrue())
		Expect(ibq.Len()).To(Equal(0))
		Expect(opq.Len()).To(Equal(8))
	})

	It("stops decoding on an invalid byte pattern", func() {
		lo := fetch.IBQEntry{Addr: 0x4000}
		lo.Data[0] = 0x90
		lo.Data[1] = 0xff
		hi := fetch.IBQEntry{Addr: 0x4010}
		Expect(ibq.Push(lo)).To(Succeed())
		Expect(ibq.Push(hi)).To(Succeed())

		ok := u.Cycle(ibq, opq, bp)
		Expect(ok).To(BeTrue())
		Expect(opq.Len()).To(Equal(1))
	})
})
