// The ED-prefixed extended group: block transfers and searches,
// 16-bit arithmetic with carry, interrupt-mode control, and the
// I/R register moves.
//
// Gaps in this table are genuine: hitting one returns an
// UnknownOpcodeError rather than behaving as a NOP.

package z80

// edOps dispatches the ED-prefixed opcodes.
var edOps [256]opFunc

func init() {
	for i := range edOps {
		edOps[i] = (*CPU).opEDUnknown
	}

	// IN r,(C) / OUT (C),r, and the undocumented IN (C) / OUT (C),0.
	for code := uint8(0); code < 8; code++ {
		reg := code
		edOps[0x40+int(code)*8] = func(c *CPU) error {
			return c.opINRegC(reg)
		}
		edOps[0x41+int(code)*8] = func(c *CPU) error {
			return c.opOUTCReg(reg)
		}
	}

	// SBC HL,ss / ADC HL,ss and LD (nn),dd / LD dd,(nn).
	for code := uint8(0); code < 4; code++ {
		pair := code
		edOps[0x42+int(code)*16] = func(c *CPU) error {
			c.sbcHL(c.readPairSP(pair))
			c.tick(15)
			return nil
		}
		edOps[0x4A+int(code)*16] = func(c *CPU) error {
			c.adcHL(c.readPairSP(pair))
			c.tick(15)
			return nil
		}
		edOps[0x43+int(code)*16] = func(c *CPU) error {
			c.Memory.SetU16(c.fetchWord(), c.readPairSP(pair))
			c.tick(20)
			return nil
		}
		edOps[0x4B+int(code)*16] = func(c *CPU) error {
			c.writePairSP(pair, c.Memory.GetU16(c.fetchWord()))
			c.tick(20)
			return nil
		}
	}

	// NEG and its undocumented mirrors.
	for _, op := range []int{0x44, 0x4C, 0x54, 0x5C, 0x64, 0x6C, 0x74, 0x7C} {
		edOps[op] = (*CPU).opNEG
	}

	// RETN, RETI, and their mirrors.
	for _, op := range []int{0x45, 0x55, 0x65, 0x75} {
		edOps[op] = (*CPU).opRETN
	}
	for _, op := range []int{0x4D, 0x5D, 0x6D, 0x7D} {
		edOps[op] = (*CPU).opRETI
	}

	// IM 0/1/2, with the undocumented duplicates.
	for _, op := range []int{0x46, 0x4E, 0x66, 0x6E} {
		edOps[op] = (*CPU).opIM0
	}
	for _, op := range []int{0x56, 0x76} {
		edOps[op] = (*CPU).opIM1
	}
	for _, op := range []int{0x5E, 0x7E} {
		edOps[op] = (*CPU).opIM2
	}

	edOps[0x47] = (*CPU).opLDIA
	edOps[0x4F] = (*CPU).opLDRA
	edOps[0x57] = (*CPU).opLDAI
	edOps[0x5F] = (*CPU).opLDAR
	edOps[0x67] = (*CPU).opRRD
	edOps[0x6F] = (*CPU).opRLD

	edOps[0xA0] = (*CPU).opLDI
	edOps[0xA1] = (*CPU).opCPI
	edOps[0xA2] = (*CPU).opINI
	edOps[0xA3] = (*CPU).opOUTI
	edOps[0xA8] = (*CPU).opLDD
	edOps[0xA9] = (*CPU).opCPD
	edOps[0xAA] = (*CPU).opIND
	edOps[0xAB] = (*CPU).opOUTD
	edOps[0xB0] = (*CPU).opLDIR
	edOps[0xB1] = (*CPU).opCPIR
	edOps[0xB2] = (*CPU).opINIR
	edOps[0xB3] = (*CPU).opOTIR
	edOps[0xB8] = (*CPU).opLDDR
	edOps[0xB9] = (*CPU).opCPDR
	edOps[0xBA] = (*CPU).opINDR
	edOps[0xBB] = (*CPU).opOTDR
}

func (c *CPU) opEDUnknown() error {
	return c.unknownOp()
}

// readPairSP reads the register pair encoded as 0-3 where code 3 is
// SP, as used by the ED-prefixed 16-bit instructions.
func (c *CPU) readPairSP(code uint8) uint16 {
	switch code {
	case 0:
		return c.BC.U16()
	case 1:
		return c.DE.U16()
	case 2:
		return c.HL.U16()
	default:
		return c.SP
	}
}

// writePairSP writes the register pair encoded as 0-3 where code 3 is SP.
func (c *CPU) writePairSP(code uint8, value uint16) {
	switch code {
	case 0:
		c.BC.SetU16(value)
	case 1:
		c.DE.SetU16(value)
	case 2:
		c.HL.SetU16(value)
	default:
		c.SP = value
	}
}

func (c *CPU) opINRegC(reg uint8) error {
	var v uint8 = 0xFF
	if c.IO != nil {
		v = c.IO.In(c.BC.Lo)
	}
	// Code 6 is the flags-only form, IN (C).
	if reg != 6 {
		c.writeReg8Plain(reg, v)
	}
	c.inFlags(v)
	c.tick(12)
	return nil
}

func (c *CPU) opOUTCReg(reg uint8) error {
	// Code 6 is the undocumented OUT (C),0.
	var v uint8
	if reg != 6 {
		v = c.readReg8Plain(reg)
	}
	if c.IO != nil {
		c.IO.Out(c.BC.Lo, v)
	}
	c.tick(12)
	return nil
}

// opNEG negates the accumulator: 0 - A with the subtract rule; P/V is
// set only when A was 0x80, carry when A was non-zero.
func (c *CPU) opNEG() error {
	v := c.AF.Hi
	c.AF.Hi = 0
	c.subA(v, false, false)
	c.tick(8)
	return nil
}

func (c *CPU) opRETN() error {
	c.IFF1 = c.IFF2
	c.PC = c.pop()
	c.tick(14)
	return nil
}

func (c *CPU) opRETI() error {
	// On hardware RETI also signals the peripheral daisy-chain;
	// for our purposes it behaves as RETN does.
	c.IFF1 = c.IFF2
	c.PC = c.pop()
	c.tick(14)
	return nil
}

func (c *CPU) opIM0() error {
	c.IM = 0
	c.tick(8)
	return nil
}

func (c *CPU) opIM1() error {
	c.IM = 1
	c.tick(8)
	return nil
}

func (c *CPU) opIM2() error {
	c.IM = 2
	c.tick(8)
	return nil
}

func (c *CPU) opLDIA() error {
	c.I = c.AF.Hi
	c.tick(9)
	return nil
}

func (c *CPU) opLDRA() error {
	c.R = c.AF.Hi
	c.tick(9)
	return nil
}

// opLDAI loads A from I; P/V is a copy of IFF2.
func (c *CPU) opLDAI() error {
	c.AF.Hi = c.I
	c.ldAIRFlags()
	c.tick(9)
	return nil
}

// opLDAR loads A from R; P/V is a copy of IFF2.
func (c *CPU) opLDAR() error {
	c.AF.Hi = c.R
	c.ldAIRFlags()
	c.tick(9)
	return nil
}

// ldAIRFlags is the flag rule shared by LD A,I and LD A,R.
func (c *CPU) ldAIRFlags() {
	v := c.AF.Hi
	f := c.AF.Lo & FlagC
	if v == 0 {
		f |= FlagZ
	}
	if v&0x80 != 0 {
		f |= FlagS
	}
	if c.IFF2 {
		f |= FlagPV
	}
	f |= v & flagXY
	c.AF.Lo = f
}

// opRRD rotates the low nibbles of A and (HL) right.
func (c *CPU) opRRD() error {
	addr := c.HL.U16()
	m := c.Memory.Get(addr)
	a := c.AF.Hi

	c.Memory.Set(addr, a<<4|m>>4)
	c.AF.Hi = a&0xF0 | m&0x0F

	c.szpFlags(c.AF.Hi)
	c.setFlag(FlagH, false)
	c.setFlag(FlagN, false)
	c.tick(18)
	return nil
}

// opRLD rotates the low nibbles of A and (HL) left.
func (c *CPU) opRLD() error {
	addr := c.HL.U16()
	m := c.Memory.Get(addr)
	a := c.AF.Hi

	c.Memory.Set(addr, m<<4|a&0x0F)
	c.AF.Hi = a&0xF0 | m>>4

	c.szpFlags(c.AF.Hi)
	c.setFlag(FlagH, false)
	c.setFlag(FlagN, false)
	c.tick(18)
	return nil
}

// blockMove performs a single LDI/LDD step: copy (HL) to (DE),
// advance the pointers, decrement BC.  H and N are cleared, P/V notes
// whether BC is still non-zero, and X/Y come from A plus the copied
// byte (bits 3 and 1, as the hardware computes them).
func (c *CPU) blockMove(delta uint16) {
	v := c.Memory.Get(c.HL.U16())
	c.Memory.Set(c.DE.U16(), v)

	c.HL.SetU16(c.HL.U16() + delta)
	c.DE.SetU16(c.DE.U16() + delta)
	c.BC.SetU16(c.BC.U16() - 1)

	n := c.AF.Hi + v
	f := c.AF.Lo & (FlagS | FlagZ | FlagC)
	if c.BC.U16() != 0 {
		f |= FlagPV
	}
	if n&0x08 != 0 {
		f |= FlagX
	}
	if n&0x02 != 0 {
		f |= FlagY
	}
	c.AF.Lo = f
}

func (c *CPU) opLDI() error {
	c.blockMove(1)
	c.tick(16)
	return nil
}

func (c *CPU) opLDD() error {
	c.blockMove(0xFFFF)
	c.tick(16)
	return nil
}

// opLDIR repeats LDI by rewinding PC over its own two opcode bytes
// until BC reaches zero, so the copy remains a single-step
// instruction which can be interrupted between iterations.
func (c *CPU) opLDIR() error {
	c.blockMove(1)
	if c.BC.U16() != 0 {
		c.PC -= 2
		c.tick(21)
	} else {
		c.tick(16)
	}
	return nil
}

func (c *CPU) opLDDR() error {
	c.blockMove(0xFFFF)
	if c.BC.U16() != 0 {
		c.PC -= 2
		c.tick(21)
	} else {
		c.tick(16)
	}
	return nil
}

// blockCompare performs a single CPI/CPD step: compare A with (HL),
// advance HL, decrement BC.  The carry is preserved; P/V notes
// whether BC is still non-zero.
func (c *CPU) blockCompare(delta uint16) {
	v := c.Memory.Get(c.HL.U16())
	a := c.AF.Hi
	res := a - v

	c.HL.SetU16(c.HL.U16() + delta)
	c.BC.SetU16(c.BC.U16() - 1)

	f := c.AF.Lo&FlagC | FlagN
	if res == 0 {
		f |= FlagZ
	}
	if res&0x80 != 0 {
		f |= FlagS
	}
	halfBorrow := (a^v^res)&0x10 != 0
	if halfBorrow {
		f |= FlagH
	}
	if c.BC.U16() != 0 {
		f |= FlagPV
	}
	n := res
	if halfBorrow {
		n--
	}
	if n&0x08 != 0 {
		f |= FlagX
	}
	if n&0x02 != 0 {
		f |= FlagY
	}
	c.AF.Lo = f
}

func (c *CPU) opCPI() error {
	c.blockCompare(1)
	c.tick(16)
	return nil
}

func (c *CPU) opCPD() error {
	c.blockCompare(0xFFFF)
	c.tick(16)
	return nil
}

// opCPIR repeats CPI until a match is found or BC reaches zero.
func (c *CPU) opCPIR() error {
	c.blockCompare(1)
	if c.BC.U16() != 0 && !c.flag(FlagZ) {
		c.PC -= 2
		c.tick(21)
	} else {
		c.tick(16)
	}
	return nil
}

func (c *CPU) opCPDR() error {
	c.blockCompare(0xFFFF)
	if c.BC.U16() != 0 && !c.flag(FlagZ) {
		c.PC -= 2
		c.tick(21)
	} else {
		c.tick(16)
	}
	return nil
}

// blockIn performs a single INI/IND step.
func (c *CPU) blockIn(delta uint16) {
	var v uint8 = 0xFF
	if c.IO != nil {
		v = c.IO.In(c.BC.Lo)
	}
	c.Memory.Set(c.HL.U16(), v)
	c.HL.SetU16(c.HL.U16() + delta)
	c.BC.Hi--
	c.blockIOFlags()
}

// blockOut performs a single OUTI/OUTD step.
func (c *CPU) blockOut(delta uint16) {
	v := c.Memory.Get(c.HL.U16())
	c.BC.Hi--
	if c.IO != nil {
		c.IO.Out(c.BC.Lo, v)
	}
	c.HL.SetU16(c.HL.U16() + delta)
	c.blockIOFlags()
}

// blockIOFlags is the (simplified, documented) flag rule of the block
// I/O instructions: N set, Z from the decremented B.
func (c *CPU) blockIOFlags() {
	f := c.AF.Lo &^ (FlagZ | FlagN)
	f |= FlagN
	if c.BC.Hi == 0 {
		f |= FlagZ
	}
	c.AF.Lo = f
}

func (c *CPU) opINI() error {
	c.blockIn(1)
	c.tick(16)
	return nil
}

func (c *CPU) opIND() error {
	c.blockIn(0xFFFF)
	c.tick(16)
	return nil
}

func (c *CPU) opOUTI() error {
	c.blockOut(1)
	c.tick(16)
	return nil
}

func (c *CPU) opOUTD() error {
	c.blockOut(0xFFFF)
	c.tick(16)
	return nil
}

func (c *CPU) opINIR() error {
	c.blockIn(1)
	if c.BC.Hi != 0 {
		c.PC -= 2
		c.tick(21)
	} else {
		c.tick(16)
	}
	return nil
}

func (c *CPU) opINDR() error {
	c.blockIn(0xFFFF)
	if c.BC.Hi != 0 {
		c.PC -= 2
		c.tick(21)
	} else {
		c.tick(16)
	}
	return nil
}

func (c *CPU) opOTIR() error {
	c.blockOut(1)
	if c.BC.Hi != 0 {
		c.PC -= 2
		c.tick(21)
	} else {
		c.tick(16)
	}
	return nil
}

func (c *CPU) opOTDR() error {
	c.blockOut(0xFFFF)
	if c.BC.Hi != 0 {
		c.PC -= 2
		c.tick(21)
	} else {
		c.tick(16)
	}
	return nil
}
