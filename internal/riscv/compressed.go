package riscv

import "fmt"

// decodeCompressed expands a 16-bit RVC instruction into the same
// instruction form a 32-bit decode would produce. Only the C extension's
// integer subset is supported (the floating-point compressed forms never
// appear in decoder binaries, which carry no FPU code).
func decodeCompressed(raw uint16) (instruction, error) {
	quadrant := raw & 0x3
	funct3 := (raw >> 13) & 0x7

	bit := func(i uint) uint16 { return (raw >> i) & 0x1 }
	bits := func(hi, lo uint) uint16 {
		return (raw >> lo) & ((1 << (hi - lo + 1)) - 1)
	}
	rdRs2c := func() int { return int(bits(4, 2)) + 8 }
	rs1c := func() int { return int(bits(9, 7)) + 8 }

	switch quadrant {
	case 0x0:
		switch funct3 {
		case 0x0: // C.ADDI4SPN
			nzuimm := (bits(10, 7) << 6) | (bits(12, 11) << 4) | (bit(5) << 3) | (bit(6) << 2)
			if nzuimm == 0 {
				return instruction{}, fmt.Errorf("reserved C.ADDI4SPN encoding")
			}
			return instruction{op: opADDI, rd: rdRs2c(), rs1: RegSP, imm: int64(nzuimm)}, nil
		case 0x2: // C.LW
			off := (bit(5) << 6) | (bits(12, 10) << 3) | (bit(6) << 2)
			return instruction{op: opLW, rd: rdRs2c(), rs1: rs1c(), imm: int64(off)}, nil
		case 0x3: // C.LD
			off := (bits(6, 5) << 6) | (bits(12, 10) << 3)
			return instruction{op: opLD, rd: rdRs2c(), rs1: rs1c(), imm: int64(off)}, nil
		case 0x6: // C.SW
			off := (bit(5) << 6) | (bits(12, 10) << 3) | (bit(6) << 2)
			return instruction{op: opSW, rs1: rs1c(), rs2: rdRs2c(), imm: int64(off)}, nil
		case 0x7: // C.SD
			off := (bits(6, 5) << 6) | (bits(12, 10) << 3)
			return instruction{op: opSD, rs1: rs1c(), rs2: rdRs2c(), imm: int64(off)}, nil
		}
		return instruction{}, fmt.Errorf("unsupported compressed quadrant0 funct3=0x%x", funct3)

	case 0x1:
		rd := int(bits(11, 7))
		switch funct3 {
		case 0x0: // C.ADDI / C.NOP
			imm := signExtend(uint64((bit(12)<<5)|bits(6, 2)), 5)
			return instruction{op: opADDI, rd: rd, rs1: rd, imm: imm}, nil
		case 0x1: // C.ADDIW
			imm := signExtend(uint64((bit(12)<<5)|bits(6, 2)), 5)
			return instruction{op: opADDIW, rd: rd, rs1: rd, imm: imm}, nil
		case 0x2: // C.LI
			imm := signExtend(uint64((bit(12)<<5)|bits(6, 2)), 5)
			return instruction{op: opADDI, rd: rd, rs1: RegZero, imm: imm}, nil
		case 0x3:
			if rd == RegSP { // C.ADDI16SP
				u := (bit(12) << 9) | (bits(4, 3) << 7) | (bit(5) << 6) | (bit(6) << 4) | (bit(2) << 5)
				imm := signExtend(uint64(u), 9)
				return instruction{op: opADDI, rd: RegSP, rs1: RegSP, imm: imm}, nil
			} // C.LUI
			u := (uint64(bit(12)) << 17) | (uint64(bits(6, 2)) << 12)
			imm := signExtend(u, 17)
			if imm == 0 {
				return instruction{}, fmt.Errorf("reserved C.LUI encoding")
			}
			return instruction{op: opLUI, rd: rd, imm: imm}, nil
		case 0x4:
			funct2 := bits(11, 10)
			switch funct2 {
			case 0x0: // C.SRLI
				shamt := (bit(12) << 5) | bits(6, 2)
				return instruction{op: opSRLI, rd: rs1c(), rs1: rs1c(), imm: int64(shamt)}, nil
			case 0x1: // C.SRAI
				shamt := (bit(12) << 5) | bits(6, 2)
				return instruction{op: opSRAI, rd: rs1c(), rs1: rs1c(), imm: int64(shamt)}, nil
			case 0x2: // C.ANDI
				imm := signExtend(uint64((bit(12)<<5)|bits(6, 2)), 5)
				return instruction{op: opANDI, rd: rs1c(), rs1: rs1c(), imm: imm}, nil
			case 0x3:
				r := rs1c()
				rs2 := rdRs2c()
				if bit(12) == 0 {
					switch bits(6, 5) {
					case 0x0:
						return instruction{op: opSUB, rd: r, rs1: r, rs2: rs2}, nil
					case 0x1:
						return instruction{op: opXOR, rd: r, rs1: r, rs2: rs2}, nil
					case 0x2:
						return instruction{op: opOR, rd: r, rs1: r, rs2: rs2}, nil
					case 0x3:
						return instruction{op: opAND, rd: r, rs1: r, rs2: rs2}, nil
					}
				} else {
					switch bits(6, 5) {
					case 0x0:
						return instruction{op: opSUBW, rd: r, rs1: r, rs2: rs2}, nil
					case 0x1:
						return instruction{op: opADDW, rd: r, rs1: r, rs2: rs2}, nil
					}
				}
			}
			return instruction{}, fmt.Errorf("unsupported compressed quadrant1 funct3=4 funct2=0x%x", funct2)
		case 0x5: // C.J
			u := (bit(12) << 11) | (bit(11) << 4) | (bits(10, 9) << 8) | (bit(8) << 10) |
				(bit(7) << 6) | (bit(6) << 7) | (bits(5, 3) << 1) | (bit(2) << 5)
			imm := signExtend(uint64(u), 11)
			return instruction{op: opJAL, rd: RegZero, imm: imm}, nil
		case 0x6: // C.BEQZ
			u := (bit(12) << 8) | (bits(11, 10) << 3) | (bits(6, 5) << 6) | (bits(4, 3) << 1) | (bit(2) << 5)
			imm := signExtend(uint64(u), 8)
			return instruction{op: opBEQ, rs1: rs1c(), rs2: RegZero, imm: imm}, nil
		case 0x7: // C.BNEZ
			u := (bit(12) << 8) | (bits(11, 10) << 3) | (bits(6, 5) << 6) | (bits(4, 3) << 1) | (bit(2) << 5)
			imm := signExtend(uint64(u), 8)
			return instruction{op: opBNE, rs1: rs1c(), rs2: RegZero, imm: imm}, nil
		}
		return instruction{}, fmt.Errorf("unsupported compressed quadrant1 funct3=0x%x", funct3)

	case 0x2:
		rd := int(bits(11, 7))
		switch funct3 {
		case 0x0: // C.SLLI
			shamt := (bit(12) << 5) | bits(6, 2)
			return instruction{op: opSLLI, rd: rd, rs1: rd, imm: int64(shamt)}, nil
		case 0x2: // C.LWSP
			off := (bit(12) << 5) | (bits(6, 4) << 2) | (bits(3, 2) << 6)
			if rd == 0 {
				return instruction{}, fmt.Errorf("reserved C.LWSP rd=0")
			}
			return instruction{op: opLW, rd: rd, rs1: RegSP, imm: int64(off)}, nil
		case 0x3: // C.LDSP
			off := (bit(12) << 5) | (bits(6, 5) << 3) | (bits(4, 2) << 6)
			if rd == 0 {
				return instruction{}, fmt.Errorf("reserved C.LDSP rd=0")
			}
			return instruction{op: opLD, rd: rd, rs1: RegSP, imm: int64(off)}, nil
		case 0x4:
			rs2 := int(bits(6, 2))
			if bit(12) == 0 {
				if rs2 == 0 { // C.JR
					if rd == 0 {
						return instruction{}, fmt.Errorf("reserved C.JR rd=0")
					}
					return instruction{op: opJALR, rd: RegZero, rs1: rd, imm: 0}, nil
				}
				// C.MV
				return instruction{op: opADD, rd: rd, rs1: RegZero, rs2: rs2}, nil
			}
			if rd == 0 && rs2 == 0 {
				return instruction{op: opEBREAK}, nil
			}
			if rs2 == 0 { // C.JALR
				return instruction{op: opJALR, rd: RegRA, rs1: rd, imm: 0}, nil
			}
			// C.ADD
			return instruction{op: opADD, rd: rd, rs1: rd, rs2: rs2}, nil
		case 0x6: // C.SWSP
			rs2 := int(bits(6, 2))
			off := (bits(12, 9) << 2) | (bits(8, 7) << 6)
			return instruction{op: opSW, rs1: RegSP, rs2: rs2, imm: int64(off)}, nil
		case 0x7: // C.SDSP
			rs2 := int(bits(6, 2))
			off := (bits(12, 10) << 3) | (bits(9, 7) << 6)
			return instruction{op: opSD, rs1: RegSP, rs2: rs2, imm: int64(off)}, nil
		}
		return instruction{}, fmt.Errorf("unsupported compressed quadrant2 funct3=0x%x", funct3)
	}
	return instruction{}, fmt.Errorf("unsupported compressed quadrant 0x%x", quadrant)
}
