package queue_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ox86sim/backend/queue"
)

var _ = Describe("Queue", func() {
	var q *queue.Queue[int]

	BeforeEach(func() {
		q = queue.New[int](4)
	})

	It("starts empty", func() {
		Expect(q.IsEmpty()).To(BeTrue())
		Expect(q.IsFull()).To(BeFalse())
		Expect(q.NumFree()).To(Equal(4))
	})

	It("pushes and pops in FIFO order", func() {
		Expect(q.Push(1)).To(Succeed())
		Expect(q.Push(2)).To(Succeed())
		Expect(q.Push(3)).To(Succeed())

		v, err := q.Pop()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(1))

		v, err = q.Pop()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(2))
	})

	It("rejects push when full", func() {
		for i := 0; i < 4; i++ {
			Expect(q.Push(i)).To(Succeed())
		}
		Expect(q.IsFull()).To(BeTrue())
		Expect(q.Push(99)).To(HaveOccurred())
	})

	It("rejects pop when empty", func() {
		_, err := q.Pop()
		Expect(err).To(HaveOccurred())
	})

	It("peeks without removing", func() {
		Expect(q.Push(7)).To(Succeed())
		Expect(q.Push(8)).To(Succeed())

		v, err := q.Peek(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(8))
		Expect(q.Len()).To(Equal(2))
	})

	It("wraps around the ring after interleaved push/pop", func() {
		Expect(q.Push(1)).To(Succeed())
		Expect(q.Push(2)).To(Succeed())
		_, _ = q.Pop()
		Expect(q.Push(3)).To(Succeed())
		Expect(q.Push(4)).To(Succeed())
		Expect(q.Push(5)).To(Succeed())
		Expect(q.IsFull()).To(BeTrue())

		var out []int
		for !q.IsEmpty() {
			v, _ := q.Pop()
			out = append(out, v)
		}
		Expect(out).To(Equal([]int{2, 3, 4, 5}))
	})

	It("pops exactly n elements or fails without consuming any", func() {
		Expect(q.Push(1)).To(Succeed())
		_, err := q.PopNExact(2)
		Expect(err).To(HaveOccurred())
		Expect(q.Len()).To(Equal(1))

		Expect(q.Push(2)).To(Succeed())
		out, err := q.PopNExact(2)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]int{1, 2}))
	})

	It("pops up to n elements, stopping early if exhausted", func() {
		Expect(q.Push(1)).To(Succeed())
		Expect(q.Push(2)).To(Succeed())
		out, err := q.PopNUpTo(10)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]int{1, 2}))
	})
})
