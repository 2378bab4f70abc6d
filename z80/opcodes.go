// The unprefixed opcode table.
//
// Every one of the 256 entries is populated; the DD/FD prefixes route
// back through this table with an index-register substitution, so the
// indexed forms share these handlers.

package z80

// opFunc executes a single decoded instruction.
type opFunc func(*CPU) error

// baseOps dispatches the unprefixed (and DD/FD-substituted) opcodes.
var baseOps [256]opFunc

func init() {

	// LD r,r' block, 0x40-0x7F, with HALT in the hole at 0x76.
	for op := 0x40; op <= 0x7F; op++ {
		if op == 0x76 {
			continue
		}
		dst := uint8(op>>3) & 0x07
		src := uint8(op) & 0x07
		baseOps[op] = func(c *CPU) error {
			return c.opLDRegReg(dst, src)
		}
	}

	// ALU A,r block, 0x80-0xBF.
	for op := 0x80; op <= 0xBF; op++ {
		kind := uint8(op>>3) & 0x07
		src := uint8(op) & 0x07
		baseOps[op] = func(c *CPU) error {
			value := c.readReg8(src)
			c.aluOp(kind, value)
			if src == 6 {
				c.tick(7)
			} else {
				c.tick(4)
			}
			return nil
		}
	}

	// ALU A,n column, 0xC6/0xCE/.../0xFE.
	for op := 0xC6; op <= 0xFE; op += 8 {
		kind := uint8(op>>3) & 0x07
		baseOps[op] = func(c *CPU) error {
			c.aluOp(kind, c.fetchByte())
			c.tick(7)
			return nil
		}
	}

	// INC r / DEC r.
	for code := uint8(0); code < 8; code++ {
		reg := code
		baseOps[0x04+int(code)*8] = func(c *CPU) error {
			return c.opIncReg(reg)
		}
		baseOps[0x05+int(code)*8] = func(c *CPU) error {
			return c.opDecReg(reg)
		}
	}

	// LD r,n.
	for code := uint8(0); code < 8; code++ {
		reg := code
		baseOps[0x06+int(code)*8] = func(c *CPU) error {
			return c.opLDRegImm(reg)
		}
	}

	// Conditional jumps, calls, and returns.
	for cond := uint8(0); cond < 8; cond++ {
		cc := cond
		baseOps[0xC2+int(cond)*8] = func(c *CPU) error {
			target := c.fetchWord()
			if c.condition(cc) {
				c.PC = target
			}
			c.tick(10)
			return nil
		}
		baseOps[0xC4+int(cond)*8] = func(c *CPU) error {
			target := c.fetchWord()
			if c.condition(cc) {
				c.push(c.PC)
				c.PC = target
				c.tick(17)
			} else {
				c.tick(10)
			}
			return nil
		}
		baseOps[0xC0+int(cond)*8] = func(c *CPU) error {
			if c.condition(cc) {
				c.PC = c.pop()
				c.tick(11)
			} else {
				c.tick(5)
			}
			return nil
		}
		baseOps[0xC7+int(cond)*8] = func(c *CPU) error {
			c.push(c.PC)
			c.PC = uint16(cc) * 8
			c.tick(11)
			return nil
		}
	}

	// JR cc,d uses only the Z and C conditions.
	for cond := uint8(0); cond < 4; cond++ {
		cc := cond
		baseOps[0x20+int(cond)*8] = func(c *CPU) error {
			d := int8(c.fetchByte())
			if c.condition(cc) {
				c.PC += uint16(int16(d))
				c.tick(12)
			} else {
				c.tick(7)
			}
			return nil
		}
	}

	baseOps[0x00] = (*CPU).opNOP
	baseOps[0x01] = (*CPU).opLDBCImm
	baseOps[0x02] = (*CPU).opLDBCIndA
	baseOps[0x03] = (*CPU).opINCBC
	baseOps[0x07] = (*CPU).opRLCA
	baseOps[0x08] = (*CPU).opEXAF
	baseOps[0x09] = (*CPU).opADDHLBC
	baseOps[0x0A] = (*CPU).opLDABCInd
	baseOps[0x0B] = (*CPU).opDECBC
	baseOps[0x0F] = (*CPU).opRRCA
	baseOps[0x10] = (*CPU).opDJNZ
	baseOps[0x11] = (*CPU).opLDDEImm
	baseOps[0x12] = (*CPU).opLDDEIndA
	baseOps[0x13] = (*CPU).opINCDE
	baseOps[0x17] = (*CPU).opRLA
	baseOps[0x18] = (*CPU).opJR
	baseOps[0x19] = (*CPU).opADDHLDE
	baseOps[0x1A] = (*CPU).opLDADEInd
	baseOps[0x1B] = (*CPU).opDECDE
	baseOps[0x1F] = (*CPU).opRRA
	baseOps[0x21] = (*CPU).opLDHLImm
	baseOps[0x22] = (*CPU).opLDMemHL
	baseOps[0x23] = (*CPU).opINCHL
	baseOps[0x27] = (*CPU).opDAA
	baseOps[0x29] = (*CPU).opADDHLHL
	baseOps[0x2A] = (*CPU).opLDHLMem
	baseOps[0x2B] = (*CPU).opDECHL
	baseOps[0x2F] = (*CPU).opCPL
	baseOps[0x31] = (*CPU).opLDSPImm
	baseOps[0x32] = (*CPU).opLDMemA
	baseOps[0x33] = (*CPU).opINCSP
	baseOps[0x37] = (*CPU).opSCF
	baseOps[0x39] = (*CPU).opADDHLSP
	baseOps[0x3A] = (*CPU).opLDAMem
	baseOps[0x3B] = (*CPU).opDECSP
	baseOps[0x3F] = (*CPU).opCCF
	baseOps[0x76] = (*CPU).opHALT
	baseOps[0xC1] = (*CPU).opPOPBC
	baseOps[0xC3] = (*CPU).opJP
	baseOps[0xC5] = (*CPU).opPUSHBC
	baseOps[0xC9] = (*CPU).opRET
	baseOps[0xCB] = (*CPU).opPrefixCB
	baseOps[0xCD] = (*CPU).opCALL
	baseOps[0xD1] = (*CPU).opPOPDE
	baseOps[0xD3] = (*CPU).opOUTImmA
	baseOps[0xD5] = (*CPU).opPUSHDE
	baseOps[0xD9] = (*CPU).opEXX
	baseOps[0xDB] = (*CPU).opINAImm
	baseOps[0xDD] = (*CPU).opPrefixDD
	baseOps[0xE1] = (*CPU).opPOPHL
	baseOps[0xE3] = (*CPU).opEXSPHL
	baseOps[0xE5] = (*CPU).opPUSHHL
	baseOps[0xE9] = (*CPU).opJPHL
	baseOps[0xEB] = (*CPU).opEXDEHL
	baseOps[0xED] = (*CPU).opPrefixED
	baseOps[0xF1] = (*CPU).opPOPAF
	baseOps[0xF3] = (*CPU).opDI
	baseOps[0xF5] = (*CPU).opPUSHAF
	baseOps[0xF9] = (*CPU).opLDSPHL
	baseOps[0xFB] = (*CPU).opEI
	baseOps[0xFD] = (*CPU).opPrefixFD
}

// aluOp runs one of the eight accumulator operations encoded in bits
// 3-5 of the ALU opcodes.
func (c *CPU) aluOp(kind uint8, value uint8) {
	switch kind {
	case 0:
		c.addA(value, false)
	case 1:
		c.addA(value, true)
	case 2:
		c.subA(value, false, false)
	case 3:
		c.subA(value, true, false)
	case 4:
		c.andA(value)
	case 5:
		c.xorA(value)
	case 6:
		c.orA(value)
	default:
		c.subA(value, false, true)
	}
}

func (c *CPU) opNOP() error {
	c.tick(4)
	return nil
}

func (c *CPU) opHALT() error {
	c.Halted = true
	c.tick(4)
	return nil
}

func (c *CPU) opLDRegReg(dst, src uint8) error {
	// When the memory operand is involved the other register is
	// always the plain H/L, even under a DD/FD prefix.
	var value uint8
	if dst == 6 {
		value = c.readReg8Plain(src)
	} else {
		value = c.readReg8(src)
	}
	if src == 6 {
		c.writeReg8Plain(dst, value)
	} else {
		c.writeReg8(dst, value)
	}
	if dst == 6 || src == 6 {
		c.tick(7)
	} else {
		c.tick(4)
	}
	return nil
}

func (c *CPU) opLDRegImm(dst uint8) error {
	if dst == 6 {
		// The displacement byte of LD (IX+d),n precedes the
		// immediate, so resolve the address first.
		addr := c.memAddr()
		c.Memory.Set(addr, c.fetchByte())
		c.tick(10)
		return nil
	}
	c.writeReg8(dst, c.fetchByte())
	c.tick(7)
	return nil
}

func (c *CPU) opIncReg(reg uint8) error {
	if reg == 6 {
		addr := c.memAddr()
		c.Memory.Set(addr, c.inc8(c.Memory.Get(addr)))
		c.tick(11)
		return nil
	}
	c.writeReg8(reg, c.inc8(c.readReg8(reg)))
	c.tick(4)
	return nil
}

func (c *CPU) opDecReg(reg uint8) error {
	if reg == 6 {
		addr := c.memAddr()
		c.Memory.Set(addr, c.dec8(c.Memory.Get(addr)))
		c.tick(11)
		return nil
	}
	c.writeReg8(reg, c.dec8(c.readReg8(reg)))
	c.tick(4)
	return nil
}

func (c *CPU) opLDBCImm() error {
	c.BC.SetU16(c.fetchWord())
	c.tick(10)
	return nil
}

func (c *CPU) opLDDEImm() error {
	c.DE.SetU16(c.fetchWord())
	c.tick(10)
	return nil
}

func (c *CPU) opLDHLImm() error {
	c.setIdxPair(c.fetchWord())
	c.tick(10)
	return nil
}

func (c *CPU) opLDSPImm() error {
	c.SP = c.fetchWord()
	c.tick(10)
	return nil
}

func (c *CPU) opLDBCIndA() error {
	c.Memory.Set(c.BC.U16(), c.AF.Hi)
	c.tick(7)
	return nil
}

func (c *CPU) opLDDEIndA() error {
	c.Memory.Set(c.DE.U16(), c.AF.Hi)
	c.tick(7)
	return nil
}

func (c *CPU) opLDABCInd() error {
	c.AF.Hi = c.Memory.Get(c.BC.U16())
	c.tick(7)
	return nil
}

func (c *CPU) opLDADEInd() error {
	c.AF.Hi = c.Memory.Get(c.DE.U16())
	c.tick(7)
	return nil
}

func (c *CPU) opLDMemHL() error {
	c.Memory.SetU16(c.fetchWord(), c.idxPair())
	c.tick(16)
	return nil
}

func (c *CPU) opLDHLMem() error {
	c.setIdxPair(c.Memory.GetU16(c.fetchWord()))
	c.tick(16)
	return nil
}

func (c *CPU) opLDMemA() error {
	c.Memory.Set(c.fetchWord(), c.AF.Hi)
	c.tick(13)
	return nil
}

func (c *CPU) opLDAMem() error {
	c.AF.Hi = c.Memory.Get(c.fetchWord())
	c.tick(13)
	return nil
}

func (c *CPU) opINCBC() error {
	c.BC.SetU16(c.BC.U16() + 1)
	c.tick(6)
	return nil
}

func (c *CPU) opINCDE() error {
	c.DE.SetU16(c.DE.U16() + 1)
	c.tick(6)
	return nil
}

func (c *CPU) opINCHL() error {
	c.setIdxPair(c.idxPair() + 1)
	c.tick(6)
	return nil
}

func (c *CPU) opINCSP() error {
	c.SP++
	c.tick(6)
	return nil
}

func (c *CPU) opDECBC() error {
	c.BC.SetU16(c.BC.U16() - 1)
	c.tick(6)
	return nil
}

func (c *CPU) opDECDE() error {
	c.DE.SetU16(c.DE.U16() - 1)
	c.tick(6)
	return nil
}

func (c *CPU) opDECHL() error {
	c.setIdxPair(c.idxPair() - 1)
	c.tick(6)
	return nil
}

func (c *CPU) opDECSP() error {
	c.SP--
	c.tick(6)
	return nil
}

func (c *CPU) opADDHLBC() error {
	c.setIdxPair(c.add16(c.idxPair(), c.BC.U16()))
	c.tick(11)
	return nil
}

func (c *CPU) opADDHLDE() error {
	c.setIdxPair(c.add16(c.idxPair(), c.DE.U16()))
	c.tick(11)
	return nil
}

func (c *CPU) opADDHLHL() error {
	v := c.idxPair()
	c.setIdxPair(c.add16(v, v))
	c.tick(11)
	return nil
}

func (c *CPU) opADDHLSP() error {
	c.setIdxPair(c.add16(c.idxPair(), c.SP))
	c.tick(11)
	return nil
}

func (c *CPU) opRLCA() error {
	a := c.AF.Hi
	c.AF.Hi = a<<1 | a>>7
	c.accumRotateFlags(a&0x80 != 0)
	c.tick(4)
	return nil
}

func (c *CPU) opRRCA() error {
	a := c.AF.Hi
	c.AF.Hi = a>>1 | a<<7
	c.accumRotateFlags(a&0x01 != 0)
	c.tick(4)
	return nil
}

func (c *CPU) opRLA() error {
	a := c.AF.Hi
	res := a << 1
	if c.flag(FlagC) {
		res |= 0x01
	}
	c.AF.Hi = res
	c.accumRotateFlags(a&0x80 != 0)
	c.tick(4)
	return nil
}

func (c *CPU) opRRA() error {
	a := c.AF.Hi
	res := a >> 1
	if c.flag(FlagC) {
		res |= 0x80
	}
	c.AF.Hi = res
	c.accumRotateFlags(a&0x01 != 0)
	c.tick(4)
	return nil
}

func (c *CPU) opDAA() error {
	a := c.AF.Hi
	adjust := uint8(0)
	carry := c.flag(FlagC)

	if c.flag(FlagH) || a&0x0F > 0x09 {
		adjust |= 0x06
	}
	if carry || a > 0x99 {
		adjust |= 0x60
		carry = true
	}

	var res uint8
	if c.flag(FlagN) {
		res = a - adjust
	} else {
		res = a + adjust
	}

	f := c.AF.Lo & FlagN
	if carry {
		f |= FlagC
	}
	if (a^res)&0x10 != 0 {
		f |= FlagH
	}
	if res == 0 {
		f |= FlagZ
	}
	if res&0x80 != 0 {
		f |= FlagS
	}
	if parity(res) {
		f |= FlagPV
	}
	f |= res & flagXY

	c.AF.Hi = res
	c.AF.Lo = f
	c.tick(4)
	return nil
}

func (c *CPU) opCPL() error {
	c.AF.Hi = ^c.AF.Hi
	c.AF.Lo = (c.AF.Lo &^ flagXY) | FlagH | FlagN | (c.AF.Hi & flagXY)
	c.tick(4)
	return nil
}

func (c *CPU) opSCF() error {
	c.AF.Lo = (c.AF.Lo & (FlagS | FlagZ | FlagPV)) | FlagC | (c.AF.Hi & flagXY)
	c.tick(4)
	return nil
}

func (c *CPU) opCCF() error {
	oldCarry := c.flag(FlagC)
	f := (c.AF.Lo & (FlagS | FlagZ | FlagPV)) | (c.AF.Hi & flagXY)
	if oldCarry {
		f |= FlagH
	} else {
		f |= FlagC
	}
	c.AF.Lo = f
	c.tick(4)
	return nil
}

func (c *CPU) opEXAF() error {
	c.exAF()
	c.tick(4)
	return nil
}

func (c *CPU) opEXX() error {
	c.exx()
	c.tick(4)
	return nil
}

func (c *CPU) opEXDEHL() error {
	// DE<->HL is never redirected to IX/IY by a prefix.
	c.DE, c.HL = c.HL, c.DE
	c.tick(4)
	return nil
}

func (c *CPU) opEXSPHL() error {
	v := c.Memory.GetU16(c.SP)
	c.Memory.SetU16(c.SP, c.idxPair())
	c.setIdxPair(v)
	c.tick(19)
	return nil
}

func (c *CPU) opJP() error {
	c.PC = c.fetchWord()
	c.tick(10)
	return nil
}

func (c *CPU) opJPHL() error {
	c.PC = c.idxPair()
	c.tick(4)
	return nil
}

func (c *CPU) opJR() error {
	d := int8(c.fetchByte())
	c.PC += uint16(int16(d))
	c.tick(12)
	return nil
}

func (c *CPU) opDJNZ() error {
	d := int8(c.fetchByte())
	c.BC.Hi--
	if c.BC.Hi != 0 {
		c.PC += uint16(int16(d))
		c.tick(13)
	} else {
		c.tick(8)
	}
	return nil
}

func (c *CPU) opCALL() error {
	target := c.fetchWord()
	c.push(c.PC)
	c.PC = target
	c.tick(17)
	return nil
}

func (c *CPU) opRET() error {
	c.PC = c.pop()
	c.tick(10)
	return nil
}

func (c *CPU) opPUSHBC() error {
	c.push(c.BC.U16())
	c.tick(11)
	return nil
}

func (c *CPU) opPUSHDE() error {
	c.push(c.DE.U16())
	c.tick(11)
	return nil
}

func (c *CPU) opPUSHHL() error {
	c.push(c.idxPair())
	c.tick(11)
	return nil
}

func (c *CPU) opPUSHAF() error {
	c.push(c.AF.U16())
	c.tick(11)
	return nil
}

func (c *CPU) opPOPBC() error {
	c.BC.SetU16(c.pop())
	c.tick(10)
	return nil
}

func (c *CPU) opPOPDE() error {
	c.DE.SetU16(c.pop())
	c.tick(10)
	return nil
}

func (c *CPU) opPOPHL() error {
	c.setIdxPair(c.pop())
	c.tick(10)
	return nil
}

func (c *CPU) opPOPAF() error {
	c.AF.SetU16(c.pop())
	c.tick(10)
	return nil
}

func (c *CPU) opLDSPHL() error {
	c.SP = c.idxPair()
	c.tick(6)
	return nil
}

func (c *CPU) opOUTImmA() error {
	port := c.fetchByte()
	if c.IO != nil {
		c.IO.Out(port, c.AF.Hi)
	}
	c.tick(11)
	return nil
}

func (c *CPU) opINAImm() error {
	port := c.fetchByte()
	if c.IO != nil {
		c.AF.Hi = c.IO.In(port)
	} else {
		c.AF.Hi = 0xFF
	}
	c.tick(11)
	return nil
}

func (c *CPU) opDI() error {
	c.IFF1 = false
	c.IFF2 = false
	c.eiCountdown = 0
	c.tick(4)
	return nil
}

func (c *CPU) opEI() error {
	// Interrupts are only accepted after the next instruction.
	c.eiCountdown = 2
	c.tick(4)
	return nil
}

func (c *CPU) opPrefixDD() error {
	c.tick(4)
	c.prefixMode = prefixDD
	c.dispFetched = false
	op := c.fetchOpcode()
	return baseOps[op](c)
}

func (c *CPU) opPrefixFD() error {
	c.tick(4)
	c.prefixMode = prefixFD
	c.dispFetched = false
	op := c.fetchOpcode()
	return baseOps[op](c)
}

func (c *CPU) opPrefixCB() error {
	return c.execCB()
}

func (c *CPU) opPrefixED() error {
	// An ED prefix cancels any pending DD/FD prefix.
	c.prefixMode = prefixNone
	op := c.fetchOpcode()
	return edOps[op](c)
}
