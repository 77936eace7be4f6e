package latency_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ox86sim/backend/latency"
	"github.com/sarchlab/ox86sim/backend/op"
)

func TestLatency(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Latency Suite")
}

var _ = Describe("Table", func() {
	It("assigns zero latency to Nop and Brn", func() {
		tbl := latency.NewTable()
		Expect(tbl.Latency(op.Uop{Kind: op.KAlu, ALU: op.OpNop})).To(Equal(uint64(0)))
		Expect(tbl.Latency(op.Uop{Kind: op.KAlu, ALU: op.OpBrn})).To(Equal(uint64(0)))
	})

	It("assigns the configured ALU latency to arithmetic ops", func() {
		tbl := latency.NewTable()
		Expect(tbl.Latency(op.Uop{Kind: op.KAlu, ALU: op.OpAdd})).To(Equal(uint64(1)))
	})

	It("assigns the configured store latency to Agu ops", func() {
		tbl := latency.NewTable()
		Expect(tbl.Latency(op.Uop{Kind: op.KAgu})).To(Equal(uint64(1)))
	})

	It("round-trips a config through Save/Load", func() {
		cfg := latency.Default()
		cfg.ALULatency = 3
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "latency.json")
		Expect(cfg.Save(path)).To(Succeed())

		loaded, err := latency.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.ALULatency).To(Equal(uint64(3)))
	})

	It("fails to load a nonexistent file", func() {
		_, err := latency.Load(filepath.Join(os.TempDir(), "does-not-exist.json"))
		Expect(err).To(HaveOccurred())
	})

	It("clones independently of the original", func() {
		cfg := latency.Default()
		clone := cfg.Clone()
		clone.ALULatency = 99
		Expect(cfg.ALULatency).To(Equal(uint64(1)))
	})
})
