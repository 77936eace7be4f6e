// Package decode implements the decode unit and a minimal decoder oracle
// covering the demonstration op set (NOP, reg-reg ALU ops, MOV reg/imm,
// a store form, a near jump, and UD2). A full x86 length/opcode/operand
// decoder is an external collaborator; Oracle is the pluggable boundary
// a complete decoder would implement instead.
package decode

import (
	"github.com/sarchlab/ox86sim/backend/op"
	"github.com/sarchlab/ox86sim/backend/rf"
)

// Mnemonic names the recognized instruction forms.
type Mnemonic int

const (
	MNop Mnemonic = iota
	MUd2
	MMovRI
	MAluRR
	MMovMR
	MJmp
)

// Decoded is one decoded instruction, as the oracle interface returns it.
type Decoded struct {
	Addr  uint64
	Len   int
	Bytes [16]byte
	Mn    Mnemonic

	Rd, Rs     rf.Arn
	Alu        op.ALUOp
	Imm        int64
	Base, Idx  rf.Arn
	Disp       int64
	Size       int
	Src        rf.Arn
	Target     uint64
}

// Oracle decodes one instruction from window, starting at offset, whose
// address is addr. Returns the decoded instruction and ok=true, or
// ok=false if the bytes at offset do not form a valid instruction.
type Oracle interface {
	Decode(window []byte, offset int, addr uint64) (Decoded, bool)
}

// DemoOracle implements Oracle for the fixed demonstration encoding set:
//
//	90                      NOP
//	0F 0B                   UD2
//	48 C7 C0 <imm32>        MOV RAX, imm32 (sign-extended; REX.W forces
//	                        the reg field to RAX for this minimal oracle)
//	48 01/29/21/09/31 <modrm>  ADD/SUB/AND/OR/XOR r/m64, r64 (register
//	                        form only: modrm mod=11)
//	48 89 <modrm> <disp8>   MOV [base+disp8], src (register-indirect
//	                        store, no SIB byte)
//	E9 <rel32>              JMP rel32 (near, relative)
type DemoOracle struct{}

// NewDemoOracle builds the demonstration decoder oracle.
func NewDemoOracle() *DemoOracle { return &DemoOracle{} }

func regFromModrmReg(b byte) rf.Arn { return rf.Arn((b >> 3) & 0x7) }
func regFromModrmRm(b byte) rf.Arn  { return rf.Arn(b & 0x7) }

// Decode implements Oracle.
func (DemoOracle) Decode(window []byte, offset int, addr uint64) (Decoded, bool) {
	if offset >= len(window) {
		return Decoded{}, false
	}
	b := window[offset:]

	if len(b) >= 1 && b[0] == 0x90 {
		return mk(addr, 1, b, Decoded{Mn: MNop}), true
	}

	if len(b) >= 2 && b[0] == 0x0f && b[1] == 0x0b {
		return mk(addr, 2, b, Decoded{Mn: MUd2}), true
	}

	if len(b) >= 7 && b[0] == 0x48 && b[1] == 0xc7 && b[2] == 0xc0 {
		imm := int32(uint32(b[3]) | uint32(b[4])<<8 | uint32(b[5])<<16 | uint32(b[6])<<24)
		return mk(addr, 7, b, Decoded{
			Mn: MMovRI, Rd: rf.RAX, Imm: int64(imm),
		}), true
	}

	if len(b) >= 3 && b[0] == 0x48 {
		var aluOp op.ALUOp
		known := true
		switch b[1] {
		case 0x01:
			aluOp = op.OpAdd
		case 0x29:
			aluOp = op.OpSub
		case 0x21:
			aluOp = op.OpAnd
		case 0x09:
			aluOp = op.OpOr
		case 0x31:
			aluOp = op.OpXor
		default:
			known = false
		}
		if known && (b[2]&0xc0) == 0xc0 {
			src := regFromModrmReg(b[2])
			dst := regFromModrmRm(b[2])
			return mk(addr, 3, b, Decoded{
				Mn: MAluRR, Alu: aluOp, Rd: dst, Rs: src,
			}), true
		}
	}

	if len(b) >= 4 && b[0] == 0x48 && b[1] == 0x89 && (b[2]&0xc0) == 0x40 {
		src := regFromModrmReg(b[2])
		base := regFromModrmRm(b[2])
		disp := int8(b[3])
		return mk(addr, 4, b, Decoded{
			Mn: MMovMR, Base: base, Idx: base, Disp: int64(disp), Size: 8, Src: src,
		}), true
	}

	if len(b) >= 5 && b[0] == 0xe9 {
		rel := int32(uint32(b[1]) | uint32(b[2])<<8 | uint32(b[3])<<16 | uint32(b[4])<<24)
		target := uint64(int64(addr) + 5 + int64(rel))
		return mk(addr, 5, b, Decoded{
			Mn: MJmp, Target: target,
		}), true
	}

	return Decoded{}, false
}

func mk(addr uint64, length int, b []byte, d Decoded) Decoded {
	d.Addr = addr
	d.Len = length
	copy(d.Bytes[:], b[:min(length, 16)])
	return d
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ToMacroOp converts a decoded instruction into its abstract macro-op
// form, the boundary between the (out-of-scope) decoder oracle and the
// in-scope decode/dispatch pipeline.
func ToMacroOp(d Decoded) op.MacroOp {
	switch d.Mn {
	case MNop:
		return op.MacroOp{Kind: op.Nop}
	case MUd2:
		return op.MacroOp{Kind: op.Ud2}
	case MMovRI:
		return op.MacroOp{Kind: op.MovRI, Rd: d.Rd, Imm: d.Imm}
	case MAluRR:
		return op.MacroOp{Kind: op.AluRR, Alu: d.Alu, Rd: d.Rd, Rs: d.Rs}
	case MMovMR:
		return op.MacroOp{Kind: op.MovMR, Base: d.Base, Idx: d.Idx, Disp: d.Disp, Size: d.Size, Src: d.Src}
	case MJmp:
		return op.MacroOp{Kind: op.JmpI, Target: d.Target}
	default:
		return op.MacroOp{Kind: op.Ud2}
	}
}

// IsBranch reports whether d is a recognized branch mnemonic.
func IsBranch(d Decoded) bool {
	return d.Mn == MJmp
}
