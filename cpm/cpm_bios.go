// This file implements the BIOS function-calls.
//
// These are documented online:
//
// * https://www.seasip.info/Cpm/bios.html
//
// Only the console-related vectors are serviced; a guest reaching any
// other slot of the jump table terminates the machine.

package cpm

import (
	"fmt"
)

// BiosSysCallColdBoot handles a cold boot: registers are cleared, the
// ambient drive state is reset, and control returns to the driver.
func BiosSysCallColdBoot(cpm *CPM) error {

	cpm.CPU.AF.SetU16(0)
	cpm.CPU.BC.SetU16(0)
	cpm.CPU.DE.SetU16(0)
	cpm.CPU.HL.SetU16(0)

	cpm.currentDrive = 0
	cpm.userNumber = 0
	cpm.Memory.Set(0x0004, 0)

	cpm.dma = DefaultDMAAddress

	return ErrBoot
}

// BiosSysCallWarmBoot handles a warm boot: the running program is
// done, and control returns to the driver.
func BiosSysCallWarmBoot(cpm *CPM) error {

	cpm.CPU.AF.SetU16(0)
	cpm.CPU.BC.SetU16(0)
	cpm.CPU.DE.SetU16(0)
	cpm.CPU.HL.SetU16(0)

	cpm.dma = DefaultDMAAddress

	return ErrBoot
}

// BiosSysCallConsoleStatus returns 0xFF in A if there is pending
// console input, otherwise 0x00.
//
// The poll is non-destructive; nothing is consumed.
func BiosSysCallConsoleStatus(cpm *CPM) error {

	if cpm.input.PendingInput() {
		cpm.CPU.AF.Hi = 0xFF
	} else {
		cpm.CPU.AF.Hi = 0x00
	}

	return nil
}

// BiosSysCallConsoleInput blocks for a single character of input, and
// returns the character pressed in the A-register.
func BiosSysCallConsoleInput(cpm *CPM) error {

	out, err := cpm.input.BlockForCharacterNoEcho()
	if err != nil {
		return fmt.Errorf("error in call to BlockForCharacterNoEcho: %s", err)
	}

	cpm.CPU.AF.Hi = out
	return nil
}

// BiosSysCallConsoleOutput writes the single character in the
// C-register to the console.
func BiosSysCallConsoleOutput(cpm *CPM) error {

	cpm.output.PutCharacter(cpm.CPU.BC.Lo)

	return nil
}

// BiosSysCallList writes the single character in the C-register to
// the printer; we have no printer, so it goes to the console.
func BiosSysCallList(cpm *CPM) error {

	cpm.output.PutCharacter(cpm.CPU.BC.Lo)

	return nil
}
