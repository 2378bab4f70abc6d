package cpm

import (
	"errors"
	"testing"
)

// TestBiosConsoleStatus covers CONST with and without pending input.
func TestBiosConsoleStatus(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	if err := BiosSysCallConsoleStatus(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x00 {
		t.Fatalf("no input should be pending: A=%02X", c.CPU.AF.Hi)
	}

	c.input.StuffInput("X")

	if err := BiosSysCallConsoleStatus(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0xFF {
		t.Fatalf("input should be pending: A=%02X", c.CPU.AF.Hi)
	}

	// The poll must not have consumed the character.
	if err := BiosSysCallConsoleInput(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 'X' {
		t.Fatalf("wrong character %02X", c.CPU.AF.Hi)
	}
}

// TestBiosConsoleOutput covers CONOUT and LIST, which both write the
// C register.
func TestBiosConsoleOutput(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	c.CPU.BC.Lo = 'O'
	if err := BiosSysCallConsoleOutput(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}

	c.CPU.BC.Lo = 'K'
	if err := BiosSysCallList(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}

	if recorded(t, c) != "OK" {
		t.Fatalf("wrong output %q", recorded(t, c))
	}
}

// TestBiosBoot confirms the boot vectors return ErrBoot and reset the
// ambient state.
func TestBiosBoot(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	c.currentDrive = 3
	c.dma = 0x4000

	err := BiosSysCallColdBoot(c)
	if !errors.Is(err, ErrBoot) {
		t.Fatalf("expected ErrBoot, got %v", err)
	}
	if c.currentDrive != 0 {
		t.Fatalf("cold boot should reset the drive")
	}
	if c.dma != DefaultDMAAddress {
		t.Fatalf("cold boot should reset the DMA address")
	}

	c.dma = 0x4000
	err = BiosSysCallWarmBoot(c)
	if !errors.Is(err, ErrBoot) {
		t.Fatalf("expected ErrBoot, got %v", err)
	}
	if c.dma != DefaultDMAAddress {
		t.Fatalf("warm boot should reset the DMA address")
	}
}

// TestBiosVectorTable confirms the serviced vectors are present and
// an unserviced one is rejected.
func TestBiosVectorTable(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	for _, vector := range []uint8{0, 1, 2, 3, 4, 5} {
		if _, ok := c.BiosVectors[vector]; !ok {
			t.Fatalf("vector %d should be serviced", vector)
		}
	}

	err := c.invokeBios(9)
	if !errors.Is(err, ErrUnimplemented) {
		t.Fatalf("expected ErrUnimplemented, got %v", err)
	}
}
