package fetch_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ox86sim/backend/cache"
	"github.com/sarchlab/ox86sim/backend/queue"
	"github.com/sarchlab/ox86sim/emu"
	"github.com/sarchlab/ox86sim/frontend/fetch"
)

func TestFetch(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Fetch Suite")
}

var _ = Describe("Fetch unit", func() {
	var (
		mem *emu.Memory
		u   *fetch.Unit
		ftq *queue.Queue[uint64]
		ibq *queue.Queue[fetch.IBQEntry]
	)

	BeforeEach(func() {
		mem = emu.NewMemory()
		c := cache.New(cache.DefaultL1Config(), cache.NewMemoryBacking(mem))
		u = fetch.New(c)
		ftq = queue.New[uint64](8)
		ibq = queue.New[fetch.IBQEntry](20)
	})

	It("splits one 32-byte line into two addressed IBQ entries", func() {
		img := make([]byte, 64)
		for i := range img {
			img[i] = byte(i)
		}
		Expect(mem.LoadFlat(img)).To(Succeed())
		Expect(ftq.Push(0x20)).To(Succeed())

		Expect(u.Cycle(ftq, ibq)).To(BeTrue())
		Expect(ibq.Len()).To(Equal(2))

		lo, _ := ibq.Pop()
		Expect(lo.Addr).To(Equal(uint64(0x20)))
		Expect(lo.Data[0]).To(Equal(byte(0x20)))

		hi, _ := ibq.Pop()
		Expect(hi.Addr).To(Equal(uint64(0x30)))
		Expect(hi.Data[15]).To(Equal(byte(0x3f)))
	})

	It("stalls on an empty FTQ", func() {
		Expect(u.Cycle(ftq, ibq)).To(BeFalse())
		Expect(u.Stalls()).To(Equal(uint64(1)))
	})

	It("stalls while the IBQ has fewer than two free slots, then resumes", func() {
		Expect(ftq.Push(0)).To(Succeed())
		for i := 0; i < ibq.Cap()-1; i++ {
			Expect(ibq.Push(fetch.IBQEntry{})).To(Succeed())
		}

		Expect(u.Cycle(ftq, ibq)).To(BeFalse())
		Expect(ftq.Len()).To(Equal(1))

		_, _ = ibq.Pop()
		Expect(u.Cycle(ftq, ibq)).To(BeTrue())
		Expect(ftq.IsEmpty()).To(BeTrue())
	})
})
