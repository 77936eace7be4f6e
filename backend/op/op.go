// Package op defines the macro-op and micro-op representations that flow
// from decode through retire, and the fixed decomposition table that maps
// one onto the other.
package op

import (
	"fmt"

	"github.com/sarchlab/ox86sim/backend/rf"
)

// MacroOpKind discriminates the abstract x86 instruction forms this
// simulator models.
type MacroOpKind int

const (
	Nop MacroOpKind = iota
	Ud2
	MovRI  // mov reg, imm
	MovMR  // store: mov [base+idx+disp], src
	AluRR  // alu reg, reg
	AluRI  // alu reg, imm
	JmpI   // near jump, immediate target
)

func (k MacroOpKind) String() string {
	switch k {
	case Nop:
		return "Nop"
	case Ud2:
		return "Ud2"
	case MovRI:
		return "MovRI"
	case MovMR:
		return "MovMR"
	case AluRR:
		return "AluRR"
	case AluRI:
		return "AluRI"
	case JmpI:
		return "JmpI"
	default:
		return fmt.Sprintf("MacroOpKind(%d)", int(k))
	}
}

// ALUOp names an arithmetic/logic/branch micro-operation executed on an
// ALU.
type ALUOp int

const (
	OpNop ALUOp = iota
	OpBrn
	OpAdd
	OpSub
	OpAnd
	OpOr
	OpXor
)

func (o ALUOp) String() string {
	switch o {
	case OpNop:
		return "Nop"
	case OpBrn:
		return "Brn"
	case OpAdd:
		return "Add"
	case OpSub:
		return "Sub"
	case OpAnd:
		return "And"
	case OpOr:
		return "Or"
	case OpXor:
		return "Xor"
	default:
		return fmt.Sprintf("ALUOp(%d)", int(o))
	}
}

// AGUOp names an address-generation-unit micro-operation. St carries the
// store size in bytes.
type AGUOp struct {
	St int
}

// MacroOp is the abstract, renamed-only-implicitly, decoded form of one
// x86 instruction.
type MacroOp struct {
	Kind MacroOpKind

	// MovRI / AluRI
	Rd  rf.Arn
	Imm int64

	// AluRR
	Rs rf.Arn

	// AluRR / AluRI
	Alu ALUOp

	// MovMR
	Base, Idx rf.Arn
	Disp      int64
	Size      int
	Src       rf.Arn

	// JmpI
	Target uint64
}

// StorageKind discriminates the payload carried by a Storage value.
type StorageKind int

const (
	SNone StorageKind = iota
	SArn
	SPrn
	SImm64
	SBypass
	SZero
)

// Storage is an operand slot for a micro-op argument. Before rename it
// may hold an Arn; after rename no Arn remains (enforced as an invariant
// at execute time).
type Storage struct {
	Kind   StorageKind
	Arn    rf.Arn
	Prn    rf.Prn
	Imm64  int64
	Bypass int
}

func Zero() Storage            { return Storage{Kind: SZero} }
func Imm(v int64) Storage      { return Storage{Kind: SImm64, Imm64: v} }
func FromArn(a rf.Arn) Storage { return Storage{Kind: SArn, Arn: a} }
func FromPrn(p rf.Prn) Storage { return Storage{Kind: SPrn, Prn: p} }

// EffectKind discriminates the payload carried by an Effect value.
type EffectKind int

const (
	ENone EffectKind = iota
	ERegWrite
	EMemWrite
	EBrnImm
)

// Effect is a side effect a micro-op commits on completion/retire.
type Effect struct {
	Kind EffectKind

	// RegWrite
	Arn rf.Arn
	Prn rf.Prn // AllocSentinel until dispatch allocates a destination

	// MemWrite
	Size     int
	BaseArg  Storage
	IdxArg   Storage
	DispArg  Storage
	SrcArg   Storage

	// BrnImm
	Target uint64
}

// RegWrite builds a pending register-write effect (destination not yet
// allocated).
func RegWrite(a rf.Arn) Effect {
	return Effect{Kind: ERegWrite, Arn: a, Prn: rf.AllocSentinel}
}

// MemWrite builds a store effect.
func MemWrite(size int, base, idx, disp, src Storage) Effect {
	return Effect{Kind: EMemWrite, Size: size, BaseArg: base, IdxArg: idx, DispArg: disp, SrcArg: src}
}

// BrnImm builds a branch-resolution effect.
func BrnImm(target uint64) Effect {
	return Effect{Kind: EBrnImm, Target: target}
}

// UopKind discriminates which execution resource a Uop requires.
type UopKind int

const (
	KNone UopKind = iota
	KIllegal
	KAlu
	KAgu
)

// Uop is one unit of back-end work: a macro-op decomposes into 1 or more
// of these (the current decomposition table always produces exactly
// one).
type Uop struct {
	Addr uint64
	Kind UopKind
	ALU  ALUOp
	AGU  AGUOp
	Arg  [4]Storage
	Eff  [2]Effect
}

// Latency returns the uop's execution latency in cycles, for kinds whose
// latency does not depend on a configurable table (Nop/Brn complete the
// cycle they issue). Arithmetic/AGU latencies come from the
// backend/latency table instead; this method exists for callers that
// only need the fixed, table-independent values.
func (u Uop) Latency() uint64 {
	if u.Kind == KAlu && (u.ALU == OpNop || u.ALU == OpBrn) {
		return 0
	}
	return 1
}

// OPQEntry is one op-queue entry: a decoded macro-op awaiting dispatch.
type OPQEntry struct {
	Addr uint64
	Mop  MacroOp
}

// Decompose turns a decoded macro-op into its constituent micro-op(s).
func Decompose(addr uint64, m MacroOp) ([]Uop, error) {
	switch m.Kind {
	case Nop:
		return []Uop{{
			Addr: addr,
			Kind: KAlu,
			ALU:  OpNop,
		}}, nil

	case Ud2:
		return []Uop{{
			Addr: addr,
			Kind: KIllegal,
		}}, nil

	case MovRI:
		return []Uop{{
			Addr: addr,
			Kind: KAlu,
			ALU:  OpAdd,
			Arg:  [4]Storage{Imm(m.Imm), Zero()},
			Eff:  [2]Effect{RegWrite(m.Rd)},
		}}, nil

	case AluRR:
		return []Uop{{
			Addr: addr,
			Kind: KAlu,
			ALU:  m.Alu,
			Arg:  [4]Storage{FromArn(m.Rd), FromArn(m.Rs)},
			Eff:  [2]Effect{RegWrite(m.Rd)},
		}}, nil

	case AluRI:
		return []Uop{{
			Addr: addr,
			Kind: KAlu,
			ALU:  m.Alu,
			Arg:  [4]Storage{FromArn(m.Rd), Imm(m.Imm)},
			Eff:  [2]Effect{RegWrite(m.Rd)},
		}}, nil

	case MovMR:
		base := FromArn(m.Base)
		idx := FromArn(m.Idx)
		disp := Imm(m.Disp)
		src := FromArn(m.Src)
		return []Uop{{
			Addr: addr,
			Kind: KAgu,
			AGU:  AGUOp{St: m.Size},
			Arg:  [4]Storage{base, idx, disp, src},
			Eff:  [2]Effect{MemWrite(m.Size, base, idx, disp, src)},
		}}, nil

	case JmpI:
		return []Uop{{
			Addr: addr,
			Kind: KAlu,
			ALU:  OpBrn,
			Eff:  [2]Effect{BrnImm(m.Target)},
		}}, nil

	default:
		return nil, fmt.Errorf("op: unimplemented macro-op kind %v at addr %#x", m.Kind, addr)
	}
}
