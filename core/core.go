// Package core wires the front-end and back-end units into a single
// cycle-driven pipeline and provides the top-level driver interface:
// construct, configure via options, and run.
package core

import (
	"fmt"

	"github.com/sarchlab/ox86sim/backend/cache"
	"github.com/sarchlab/ox86sim/backend/dispatch"
	"github.com/sarchlab/ox86sim/backend/exec"
	"github.com/sarchlab/ox86sim/backend/issue"
	"github.com/sarchlab/ox86sim/backend/latency"
	"github.com/sarchlab/ox86sim/backend/op"
	"github.com/sarchlab/ox86sim/backend/queue"
	"github.com/sarchlab/ox86sim/backend/retire"
	"github.com/sarchlab/ox86sim/backend/rf"
	"github.com/sarchlab/ox86sim/backend/rob"
	"github.com/sarchlab/ox86sim/backend/sched"
	"github.com/sarchlab/ox86sim/emu"
	"github.com/sarchlab/ox86sim/frontend/bpu"
	"github.com/sarchlab/ox86sim/frontend/decode"
	"github.com/sarchlab/ox86sim/frontend/fetch"
	"github.com/sarchlab/ox86sim/frontend/npc"
	"github.com/sarchlab/ox86sim/trace"
)

// Queue capacities, fixed by the pipeline's timing discipline.
const (
	PQCapacity  = 32
	FTQCapacity = 8
	IBQCapacity = 20
	OPQCapacity = 32
)

// DefaultCycleBound is the cycle ceiling Run passes to RunCycles, and
// the CLI's default -cycles value.
const DefaultCycleBound = 32

// Stats aggregates per-unit statistics into one snapshot.
type Stats struct {
	Cycles   uint64
	Retired  uint64
	Dispatch dispatch.Stats
	Issue    issue.Stats
	Exec     exec.Stats
	Retire   retire.Stats
	BPU      bpu.Stats
	Cache    cache.Statistics
}

// Option configures a Core at construction.
type Option func(*Core)

// WithLogger attaches a trace logger; every stage's trace lines are
// gated by the logger's single verbosity flag.
func WithLogger(l *trace.Logger) Option {
	return func(c *Core) { c.tracer = l }
}

// WithLatencyConfig overrides the default per-micro-op latency table.
func WithLatencyConfig(cfg *latency.Config) Option {
	return func(c *Core) { c.table = latency.NewTableWithConfig(cfg) }
}

// WithOracle overrides the decoder oracle (default frontend/decode.DemoOracle).
func WithOracle(o decode.Oracle) Option {
	return func(c *Core) { c.oracle = o }
}

// WithCacheConfig overrides the default L1 cache configuration.
func WithCacheConfig(cfg cache.Config) Option {
	return func(c *Core) { c.cacheCfg = cfg }
}

// Core is the top-level pipeline driver: it owns every shared structure
// (memory, cache, queues, ROB, PRF, RAT, schedulers) and every stage
// unit, and advances them all exactly once per Tick.
type Core struct {
	mem   *emu.Memory
	cache *cache.Cache

	pq  *queue.Queue[uint64]
	ftq *queue.Queue[uint64]
	ibq *queue.Queue[fetch.IBQEntry]
	opq *queue.Queue[op.OPQEntry]

	rob  *rob.ROB
	prf  *rf.PRF
	rat  *rf.RAT
	alus [4]*sched.Scheduler
	agu  *sched.Scheduler

	bpuU      *bpu.Unit
	npcU      *npc.Unit
	fetchU    *fetch.Unit
	decodeU   *decode.Unit
	dispatchU *dispatch.Unit
	issueU    *issue.Unit
	execU     *exec.Units
	retireU   *retire.Control

	table    *latency.Table
	oracle   decode.Oracle
	cacheCfg cache.Config
	tracer   *trace.Logger

	pc      uint64
	cycle   uint64
	halted  bool
	penalty uint64
}

// New builds a fully-wired Core over mem, starting fetch at PC 0.
func New(mem *emu.Memory, opts ...Option) *Core {
	c := &Core{
		mem:      mem,
		table:    latency.NewTable(),
		oracle:   decode.NewDemoOracle(),
		cacheCfg: cache.DefaultL1Config(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.cache = cache.New(c.cacheCfg, cache.NewMemoryBacking(mem))

	c.pq = queue.New[uint64](PQCapacity)
	c.ftq = queue.New[uint64](FTQCapacity)
	c.ibq = queue.New[fetch.IBQEntry](IBQCapacity)
	c.opq = queue.New[op.OPQEntry](OPQCapacity)

	c.rob = rob.New()
	c.prf = rf.New()
	c.rat = rf.NewRAT()
	for i := range c.alus {
		c.alus[i] = sched.New(16)
	}
	c.agu = sched.New(28)

	c.bpuU = bpu.New()
	c.npcU = npc.New()
	c.fetchU = fetch.New(c.cache)
	c.decodeU = decode.New(c.oracle)
	c.dispatchU = dispatch.New(c.rob, c.prf, c.rat, c.alus, c.agu)
	c.issueU = issue.New(c.alus, c.agu)
	c.execU = exec.New(c.table)
	c.retireU = retire.New(c.rob, c.rat, c.prf, c.mem, c.bpuU, c.alus, c.agu)

	return c
}

// SetPC sets the fetch address; only meaningful before the first Tick.
func (c *Core) SetPC(pc uint64) { c.pc = pc }

// Halted reports whether the core has stopped advancing (a retired
// UD2 terminal marker).
func (c *Core) Halted() bool { return c.halted }

// Cycle returns the current cycle counter.
func (c *Core) Cycle() uint64 { return c.cycle }

// Stats returns a snapshot of every unit's statistics.
func (c *Core) Stats() Stats {
	return Stats{
		Cycles:   c.cycle,
		Retired:  c.retireU.Stats().Retired,
		Dispatch: c.dispatchU.Stats(),
		Issue:    c.issueU.Stats(),
		Exec:     c.execU.Stats(),
		Retire:   c.retireU.Stats(),
		BPU:      c.bpuU.Stats(),
		Cache:    c.cache.Stats(),
	}
}

// Tick advances the pipeline by one cycle. Stages are invoked in reverse
// pipeline order (retire upward to prediction) so that a stage never
// observes a slot its consumer freed this same cycle.
func (c *Core) Tick() error {
	if c.halted {
		return nil
	}
	c.cycle++

	retired, flush, err := c.retireU.Cycle()
	if err != nil {
		return fmt.Errorf("core: retire: %w", err)
	}
	for _, e := range retired {
		if c.tracer != nil {
			c.tracer.RCU("retired addr=%#x kind=%v", e.Addr, e.Mop.Kind)
			if e.HasDst {
				c.tracer.RAT("%v -> prn%d (freed prn%d)", e.DstArn, e.DstPrn, e.OldPrn)
			}
		}
		if e.Uop.Kind == op.KIllegal {
			c.halted = true
		}
	}

	preCompleted := c.execU.Stats().Completed
	if err := c.execU.Cycle(c.cycle, c.rob, c.prf); err != nil {
		return fmt.Errorf("core: execute: %w", err)
	}
	if c.tracer != nil && c.execU.Stats().Completed > preCompleted {
		c.tracer.ALU("completed %d", c.execU.Stats().Completed-preCompleted)
	}

	if n := c.issueU.Cycle(c.cycle, c.prf, c.execU); n > 0 && c.tracer != nil {
		c.tracer.ISS("issued %d", n)
	}

	if flush != nil {
		c.applyFlush(flush)
		return nil
	}

	if c.halted {
		return nil
	}

	if c.penalty > 0 {
		c.penalty--
		if c.tracer != nil {
			c.tracer.FTQ("mispredict penalty, %d cycles remaining", c.penalty)
		}
		return nil
	}

	n, reason, err := c.dispatchU.Cycle(c.opq)
	if err != nil {
		return fmt.Errorf("core: dispatch: %w", err)
	}
	if c.tracer != nil {
		if n > 0 {
			c.tracer.DIS("dispatched %d", n)
		}
		if reason != dispatch.NoStall {
			c.tracer.SCH("stall reason=%s", reason)
		}
	}

	if !c.decodeU.Cycle(c.ibq, c.opq, c.bpuU) && c.tracer != nil {
		c.tracer.IDU("stall")
	}

	if !c.fetchU.Cycle(c.ftq, c.ibq) && c.tracer != nil {
		c.tracer.IFU("stall")
	}

	if !c.npcU.Cycle(&c.pc, c.pq, c.ftq) && c.tracer != nil {
		c.tracer.FTQ("stall")
	}

	c.bpuU.Cycle(c.pq)

	return nil
}

// applyFlush discards all speculative state younger than a mispredicted
// branch and redirects fetch to the resolved target.
func (c *Core) applyFlush(flush *retire.FlushDecision) {
	c.bpuU.FlushQueue()
	c.pq.Clear()
	c.ftq.Clear()
	c.ibq.Clear()
	c.opq.Clear()
	c.decodeU.Reset()

	// Retire already discarded the schedulers' speculative reservations,
	// but an op issued before the branch resolved may still be in flight
	// on an ALU or the AGU port. Every such op is younger than the branch
	// (anything older must have completed for the branch to reach the
	// ROB head), so it is discarded wholesale.
	c.execU.Reset()

	surviving := c.rat.Snapshot()
	c.prf.RebuildFreeList(surviving)

	c.pc = flush.Target
	c.penalty = c.table.MispredictPenalty()

	if c.tracer != nil {
		c.tracer.RCU("flush target=%#x", flush.Target)
	}
}

// RunCycles ticks the core up to n times, stopping early if it halts.
func (c *Core) RunCycles(n uint64) error {
	for i := uint64(0); i < n && !c.halted; i++ {
		if err := c.Tick(); err != nil {
			return err
		}
	}
	return nil
}

// Run ticks the core until it halts (a retired UD2) or until
// DefaultCycleBound cycles have elapsed, whichever comes first.
func (c *Core) Run() error {
	return c.RunCycles(DefaultCycleBound)
}

// RAT exposes the register alias table for result inspection (tests).
func (c *Core) RAT() *rf.RAT { return c.rat }

// PRF exposes the physical register file for result inspection.
func (c *Core) PRF() *rf.PRF { return c.prf }

// Memory exposes the flat memory image for result inspection.
func (c *Core) Memory() *emu.Memory { return c.mem }

// ROB exposes the reorder buffer for result inspection.
func (c *Core) ROB() *rob.ROB { return c.rob }

// PC returns the current architectural next-PC register.
func (c *Core) PC() uint64 { return c.pc }
