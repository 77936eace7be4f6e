// Package rf models the x86-64 architectural register file, the physical
// register file, and the alias table that maps one onto the other.
package rf

import "fmt"

// Arn is an architectural register name: one of the 16 x86-64 GPRs.
type Arn int

// x86-64 general purpose register indices, in the conventional encoding
// order.
const (
	RAX Arn = iota
	RBX
	RCX
	RDX
	RSI
	RDI
	RBP
	RSP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	NumArn = 16
)

func (a Arn) String() string {
	names := [NumArn]string{
		"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	}
	if a < 0 || int(a) >= NumArn {
		return fmt.Sprintf("arn(%d)", int(a))
	}
	return names[a]
}

// Prn is a physical register name: an index into the PRF.
type Prn uint32

// AllocSentinel marks a Prn that dispatch has not yet allocated. Any
// Storage still carrying this value after rename is an invariant
// violation.
const AllocSentinel Prn = ^Prn(0)

// NumPrf is the physical register file capacity.
const NumPrf = 180

// Entry is one slot of the physical register file.
type Entry struct {
	Free  bool
	Ready bool
	Data  uint64
}

// PRF is the physical register file. PRN 0 is reserved: it is allocated
// (non-free) and ready from construction, and holds the architectural
// zero/reset value every ARN aliases to initially.
type PRF struct {
	entries [NumPrf]Entry
}

// New creates a PRF with PRN 0 pre-allocated and every other slot free.
func New() *PRF {
	p := &PRF{}
	p.entries[0] = Entry{Free: false, Ready: true, Data: 0}
	for i := 1; i < NumPrf; i++ {
		p.entries[i] = Entry{Free: true}
	}
	return p
}

// CanAlloc reports whether at least n free slots exist.
func (p *PRF) CanAlloc(n int) bool { return p.NumFree() >= n }

// NumFree returns the count of free slots.
func (p *PRF) NumFree() int {
	n := 0
	for i := range p.entries {
		if p.entries[i].Free {
			n++
		}
	}
	return n
}

// Alloc reserves the first free slot, marking it non-free and not-ready,
// and returns its Prn. Returns an error if the PRF is full.
func (p *PRF) Alloc() (Prn, error) {
	for i := range p.entries {
		if p.entries[i].Free {
			p.entries[i].Free = false
			p.entries[i].Ready = false
			p.entries[i].Data = 0
			return Prn(i), nil
		}
	}
	return 0, fmt.Errorf("rf: PRF exhausted (capacity %d)", NumPrf)
}

// Free returns a previously allocated Prn to the free list. Freeing an
// already-free Prn is an invariant violation (double-free) and returns
// an error rather than panicking.
func (p *PRF) Free(r Prn) error {
	if int(r) >= NumPrf {
		return fmt.Errorf("rf: Free: prn %d out of range", r)
	}
	if p.entries[r].Free {
		return fmt.Errorf("rf: Free: prn %d already free (double free)", r)
	}
	p.entries[r] = Entry{Free: true}
	return nil
}

// Read returns the data currently held by r.
func (p *PRF) Read(r Prn) uint64 {
	return p.entries[r].Data
}

// IsReady reports whether r's value has been produced.
func (p *PRF) IsReady(r Prn) bool {
	return p.entries[r].Ready
}

// IsFree reports whether r is on the free list.
func (p *PRF) IsFree(r Prn) bool {
	return p.entries[r].Free
}

// Write stores a value into r and marks it ready (writeback).
func (p *PRF) Write(r Prn, data uint64) {
	p.entries[r].Data = data
	p.entries[r].Ready = true
}

// Reset reinitializes the PRF to its post-construction state.
func (p *PRF) Reset() {
	*p = *New()
}

// RebuildFreeList reconstructs the free list from a set of PRNs that are
// still referenced by the (post-flush) RAT. Every other Prn besides PRN 0
// and the surviving set becomes free. Used by pipeline flush (see core
// package) to recover from a branch misprediction without walking
// speculative ROB state.
func (p *PRF) RebuildFreeList(surviving map[Prn]bool) {
	surviving[0] = true
	for i := 1; i < NumPrf; i++ {
		if surviving[Prn(i)] {
			continue
		}
		p.entries[i] = Entry{Free: true}
	}
}

// RAT is the register alias table: a mapping from every Arn to its
// currently committed Prn.
type RAT struct {
	slots [NumArn]Prn
}

// NewRAT creates a RAT with every Arn aliasing PRN 0.
func NewRAT() *RAT {
	r := &RAT{}
	for i := range r.slots {
		r.slots[i] = 0
	}
	return r
}

// Resolve returns the Prn currently aliased by a.
func (r *RAT) Resolve(a Arn) Prn { return r.slots[a] }

// Bind rewrites the mapping for a.
func (r *RAT) Bind(a Arn, p Prn) { r.slots[a] = p }

// Snapshot returns a copy of the full ARN->PRN mapping, used to recover
// the free list after a flush.
func (r *RAT) Snapshot() map[Prn]bool {
	m := make(map[Prn]bool, NumArn)
	for _, p := range r.slots {
		m[p] = true
	}
	return m
}

// Reset rebinds every Arn back to PRN 0.
func (r *RAT) Reset() {
	for i := range r.slots {
		r.slots[i] = 0
	}
}
