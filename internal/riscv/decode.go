package riscv

import "fmt"

// opcode names the semantic operation of a decoded instruction,
// independent of whether it arrived as a 32-bit or a compressed 16-bit
// encoding — compressed forms are expanded to one of these during decode.
type opcode int

const (
	opInvalid opcode = iota

	opLUI
	opAUIPC
	opJAL
	opJALR

	opBEQ
	opBNE
	opBLT
	opBGE
	opBLTU
	opBGEU

	opLB
	opLH
	opLW
	opLD
	opLBU
	opLHU
	opLWU
	opSB
	opSH
	opSW
	opSD

	opADDI
	opSLTI
	opSLTIU
	opXORI
	opORI
	opANDI
	opSLLI
	opSRLI
	opSRAI

	opADD
	opSUB
	opSLL
	opSLT
	opSLTU
	opXOR
	opSRL
	opSRA
	opOR
	opAND

	opADDIW
	opSLLIW
	opSRLIW
	opSRAIW
	opADDW
	opSUBW
	opSLLW
	opSRLW
	opSRAW

	opMUL
	opMULH
	opMULHSU
	opMULHU
	opDIV
	opDIVU
	opREM
	opREMU
	opMULW
	opDIVW
	opDIVUW
	opREMW
	opREMUW

	opFENCE
	opECALL
	opEBREAK

	opLRW
	opSCW
	opAMOSWAPW
	opAMOADDW
	opLRD
	opSCD
	opAMOSWAPD
	opAMOADDD
)

// instruction is a decoded operation ready for execute(), regardless of
// its original encoding width.
type instruction struct {
	op       opcode
	rd       int
	rs1      int
	rs2      int
	imm      int64
	fetchSz  int // original encoding width in bytes, for PC advance
}

// fetch reads one instruction at pc, returning its raw encoding and its
// width in bytes (2 for compressed, 4 otherwise), per the standard RISC-V
// encoding convention: an instruction is compressed iff its low two bits
// are not 0b11.
func fetch(mem *Memory, pc uint64) (raw uint32, size int, err error) {
	lo16, err := mem.Load16(pc)
	if err != nil {
		return 0, 0, err
	}
	if lo16&0x3 != 0x3 {
		return uint32(lo16), 2, nil
	}
	full, err := mem.Load32(pc)
	if err != nil {
		return 0, 0, err
	}
	return full, 4, nil
}

func decode(raw uint32, size int) (instruction, error) {
	var inst instruction
	var err error
	if size == 2 {
		inst, err = decodeCompressed(uint16(raw))
	} else {
		inst, err = decode32(raw)
	}
	if err != nil {
		return instruction{}, err
	}
	inst.fetchSz = size
	return inst, nil
}

func signExtend(v uint64, bit uint) int64 {
	shift := 63 - bit
	return int64(v<<shift) >> shift
}

// decode32 decodes a standard 32-bit RISC-V instruction into its RV64IM
// semantic form. Unsupported opcodes (the B, MOP and floating-point
// extensions referenced by the ISA flags the host advertises, but whose
// execution this interpreter does not implement) return an error rather
// than silently misexecuting.
func decode32(raw uint32) (instruction, error) {
	op := raw & 0x7f
	rd := int((raw >> 7) & 0x1f)
	funct3 := (raw >> 12) & 0x7
	rs1 := int((raw >> 15) & 0x1f)
	rs2 := int((raw >> 20) & 0x1f)
	funct7 := (raw >> 25) & 0x7f

	switch op {
	case 0x37: // LUI
		imm := int64(int32(raw & 0xfffff000))
		return instruction{op: opLUI, rd: rd, imm: imm}, nil
	case 0x17: // AUIPC
		imm := int64(int32(raw & 0xfffff000))
		return instruction{op: opAUIPC, rd: rd, imm: imm}, nil
	case 0x6f: // JAL
		imm20 := (raw >> 31) & 0x1
		imm10_1 := (raw >> 21) & 0x3ff
		imm11 := (raw >> 20) & 0x1
		imm19_12 := (raw >> 12) & 0xff
		u := (imm20 << 20) | (imm19_12 << 12) | (imm11 << 11) | (imm10_1 << 1)
		return instruction{op: opJAL, rd: rd, imm: signExtend(uint64(u), 20)}, nil
	case 0x67: // JALR
		imm := signExtend(uint64(raw)>>20, 11)
		return instruction{op: opJALR, rd: rd, rs1: rs1, imm: imm}, nil
	case 0x63: // branches
		imm12 := (raw >> 31) & 0x1
		imm10_5 := (raw >> 25) & 0x3f
		imm4_1 := (raw >> 8) & 0xf
		imm11 := (raw >> 7) & 0x1
		u := (imm12 << 12) | (imm11 << 11) | (imm10_5 << 5) | (imm4_1 << 1)
		imm := signExtend(uint64(u), 12)
		var bop opcode
		switch funct3 {
		case 0x0:
			bop = opBEQ
		case 0x1:
			bop = opBNE
		case 0x4:
			bop = opBLT
		case 0x5:
			bop = opBGE
		case 0x6:
			bop = opBLTU
		case 0x7:
			bop = opBGEU
		default:
			return instruction{}, fmt.Errorf("unsupported branch funct3=0x%x", funct3)
		}
		return instruction{op: bop, rs1: rs1, rs2: rs2, imm: imm}, nil
	case 0x03: // loads
		imm := signExtend(uint64(raw)>>20, 11)
		var lop opcode
		switch funct3 {
		case 0x0:
			lop = opLB
		case 0x1:
			lop = opLH
		case 0x2:
			lop = opLW
		case 0x3:
			lop = opLD
		case 0x4:
			lop = opLBU
		case 0x5:
			lop = opLHU
		case 0x6:
			lop = opLWU
		default:
			return instruction{}, fmt.Errorf("unsupported load funct3=0x%x", funct3)
		}
		return instruction{op: lop, rd: rd, rs1: rs1, imm: imm}, nil
	case 0x23: // stores
		imm11_5 := (raw >> 25) & 0x7f
		imm4_0 := (raw >> 7) & 0x1f
		imm := signExtend(uint64((imm11_5<<5)|imm4_0), 11)
		var sop opcode
		switch funct3 {
		case 0x0:
			sop = opSB
		case 0x1:
			sop = opSH
		case 0x2:
			sop = opSW
		case 0x3:
			sop = opSD
		default:
			return instruction{}, fmt.Errorf("unsupported store funct3=0x%x", funct3)
		}
		return instruction{op: sop, rs1: rs1, rs2: rs2, imm: imm}, nil
	case 0x13: // ALU immediate (32/64-bit rd)
		imm := signExtend(uint64(raw)>>20, 11)
		shamt := int64((raw >> 20) & 0x3f)
		if (funct3 == 0x1 || funct3 == 0x5) && funct7>>1 != 0 && !(funct3 == 0x5 && funct7>>1 == 0x10) {
			return instruction{}, fmt.Errorf("unsupported OP-IMM funct7=0x%x funct3=0x%x", funct7, funct3)
		}
		switch funct3 {
		case 0x0:
			return instruction{op: opADDI, rd: rd, rs1: rs1, imm: imm}, nil
		case 0x2:
			return instruction{op: opSLTI, rd: rd, rs1: rs1, imm: imm}, nil
		case 0x3:
			return instruction{op: opSLTIU, rd: rd, rs1: rs1, imm: imm}, nil
		case 0x4:
			return instruction{op: opXORI, rd: rd, rs1: rs1, imm: imm}, nil
		case 0x6:
			return instruction{op: opORI, rd: rd, rs1: rs1, imm: imm}, nil
		case 0x7:
			return instruction{op: opANDI, rd: rd, rs1: rs1, imm: imm}, nil
		case 0x1:
			return instruction{op: opSLLI, rd: rd, rs1: rs1, imm: shamt}, nil
		case 0x5:
			if funct7>>1 == 0x10 {
				return instruction{op: opSRAI, rd: rd, rs1: rs1, imm: shamt}, nil
			}
			return instruction{op: opSRLI, rd: rd, rs1: rs1, imm: shamt}, nil
		}
		return instruction{}, fmt.Errorf("unsupported OP-IMM funct3=0x%x", funct3)
	case 0x1b: // ALU immediate, word (RV64 *W forms)
		imm := signExtend(uint64(raw)>>20, 11)
		shamt := int64((raw >> 20) & 0x1f)
		if (funct3 == 0x1 || funct3 == 0x5) && funct7 != 0 && !(funct3 == 0x5 && funct7 == 0x20) {
			return instruction{}, fmt.Errorf("unsupported OP-IMM-32 funct7=0x%x funct3=0x%x", funct7, funct3)
		}
		switch funct3 {
		case 0x0:
			return instruction{op: opADDIW, rd: rd, rs1: rs1, imm: imm}, nil
		case 0x1:
			return instruction{op: opSLLIW, rd: rd, rs1: rs1, imm: shamt}, nil
		case 0x5:
			if funct7 == 0x20 {
				return instruction{op: opSRAIW, rd: rd, rs1: rs1, imm: shamt}, nil
			}
			return instruction{op: opSRLIW, rd: rd, rs1: rs1, imm: shamt}, nil
		}
		return instruction{}, fmt.Errorf("unsupported OP-IMM-32 funct3=0x%x", funct3)
	case 0x33: // ALU register (and M-extension)
		if funct7 == 0x01 {
			return decodeMExtension(funct3, rd, rs1, rs2, false)
		}
		if funct7 != 0 && !(funct7 == 0x20 && (funct3 == 0x0 || funct3 == 0x5)) {
			return instruction{}, fmt.Errorf("unsupported OP funct7=0x%x funct3=0x%x", funct7, funct3)
		}
		switch funct3 {
		case 0x0:
			if funct7 == 0x20 {
				return instruction{op: opSUB, rd: rd, rs1: rs1, rs2: rs2}, nil
			}
			return instruction{op: opADD, rd: rd, rs1: rs1, rs2: rs2}, nil
		case 0x1:
			return instruction{op: opSLL, rd: rd, rs1: rs1, rs2: rs2}, nil
		case 0x2:
			return instruction{op: opSLT, rd: rd, rs1: rs1, rs2: rs2}, nil
		case 0x3:
			return instruction{op: opSLTU, rd: rd, rs1: rs1, rs2: rs2}, nil
		case 0x4:
			return instruction{op: opXOR, rd: rd, rs1: rs1, rs2: rs2}, nil
		case 0x5:
			if funct7 == 0x20 {
				return instruction{op: opSRA, rd: rd, rs1: rs1, rs2: rs2}, nil
			}
			return instruction{op: opSRL, rd: rd, rs1: rs1, rs2: rs2}, nil
		case 0x6:
			return instruction{op: opOR, rd: rd, rs1: rs1, rs2: rs2}, nil
		case 0x7:
			return instruction{op: opAND, rd: rd, rs1: rs1, rs2: rs2}, nil
		}
		return instruction{}, fmt.Errorf("unsupported OP funct3=0x%x", funct3)
	case 0x3b: // ALU register, word (and M-extension *W forms)
		if funct7 == 0x01 {
			return decodeMExtension(funct3, rd, rs1, rs2, true)
		}
		if funct7 != 0 && !(funct7 == 0x20 && (funct3 == 0x0 || funct3 == 0x5)) {
			return instruction{}, fmt.Errorf("unsupported OP-32 funct7=0x%x funct3=0x%x", funct7, funct3)
		}
		switch funct3 {
		case 0x0:
			if funct7 == 0x20 {
				return instruction{op: opSUBW, rd: rd, rs1: rs1, rs2: rs2}, nil
			}
			return instruction{op: opADDW, rd: rd, rs1: rs1, rs2: rs2}, nil
		case 0x1:
			return instruction{op: opSLLW, rd: rd, rs1: rs1, rs2: rs2}, nil
		case 0x5:
			if funct7 == 0x20 {
				return instruction{op: opSRAW, rd: rd, rs1: rs1, rs2: rs2}, nil
			}
			return instruction{op: opSRLW, rd: rd, rs1: rs1, rs2: rs2}, nil
		}
		return instruction{}, fmt.Errorf("unsupported OP-32 funct3=0x%x", funct3)
	case 0x0f: // FENCE / FENCE.I, no-op in this sandbox (single hart, no caches)
		return instruction{op: opFENCE}, nil
	case 0x73: // ECALL / EBREAK
		switch raw >> 20 {
		case 0x0:
			return instruction{op: opECALL}, nil
		case 0x1:
			return instruction{op: opEBREAK}, nil
		}
		return instruction{}, fmt.Errorf("unsupported SYSTEM imm=0x%x", raw>>20)
	case 0x2f: // A-extension (atomics), W and D width subset
		funct5 := funct7 >> 2
		isD := funct3 == 0x3
		switch funct5 {
		case 0x02:
			if isD {
				return instruction{op: opLRD, rd: rd, rs1: rs1}, nil
			}
			return instruction{op: opLRW, rd: rd, rs1: rs1}, nil
		case 0x03:
			if isD {
				return instruction{op: opSCD, rd: rd, rs1: rs1, rs2: rs2}, nil
			}
			return instruction{op: opSCW, rd: rd, rs1: rs1, rs2: rs2}, nil
		case 0x01:
			if isD {
				return instruction{op: opAMOSWAPD, rd: rd, rs1: rs1, rs2: rs2}, nil
			}
			return instruction{op: opAMOSWAPW, rd: rd, rs1: rs1, rs2: rs2}, nil
		case 0x00:
			if isD {
				return instruction{op: opAMOADDD, rd: rd, rs1: rs1, rs2: rs2}, nil
			}
			return instruction{op: opAMOADDW, rd: rd, rs1: rs1, rs2: rs2}, nil
		}
		return instruction{}, fmt.Errorf("unsupported atomic funct5=0x%x (B/MOP-family opcodes are not executed by this host)", funct5)
	default:
		return instruction{}, fmt.Errorf("unsupported opcode 0x%x", op)
	}
}

func decodeMExtension(funct3 uint32, rd, rs1, rs2 int, word bool) (instruction, error) {
	if word {
		switch funct3 {
		case 0x0:
			return instruction{op: opMULW, rd: rd, rs1: rs1, rs2: rs2}, nil
		case 0x4:
			return instruction{op: opDIVW, rd: rd, rs1: rs1, rs2: rs2}, nil
		case 0x5:
			return instruction{op: opDIVUW, rd: rd, rs1: rs1, rs2: rs2}, nil
		case 0x6:
			return instruction{op: opREMW, rd: rd, rs1: rs1, rs2: rs2}, nil
		case 0x7:
			return instruction{op: opREMUW, rd: rd, rs1: rs1, rs2: rs2}, nil
		}
		return instruction{}, fmt.Errorf("unsupported M-extension (word) funct3=0x%x", funct3)
	}
	switch funct3 {
	case 0x0:
		return instruction{op: opMUL, rd: rd, rs1: rs1, rs2: rs2}, nil
	case 0x1:
		return instruction{op: opMULH, rd: rd, rs1: rs1, rs2: rs2}, nil
	case 0x2:
		return instruction{op: opMULHSU, rd: rd, rs1: rs1, rs2: rs2}, nil
	case 0x3:
		return instruction{op: opMULHU, rd: rd, rs1: rs1, rs2: rs2}, nil
	case 0x4:
		return instruction{op: opDIV, rd: rd, rs1: rs1, rs2: rs2}, nil
	case 0x5:
		return instruction{op: opDIVU, rd: rd, rs1: rs1, rs2: rs2}, nil
	case 0x6:
		return instruction{op: opREM, rd: rd, rs1: rs1, rs2: rs2}, nil
	case 0x7:
		return instruction{op: opREMU, rd: rd, rs1: rs1, rs2: rs2}, nil
	}
	return instruction{}, fmt.Errorf("unsupported M-extension funct3=0x%x", funct3)
}
