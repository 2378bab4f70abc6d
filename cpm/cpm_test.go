package cpm

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/skx/cpmbox/consoleout"
	"github.com/skx/cpmbox/memory"
	"github.com/skx/cpmbox/z80"
)

// testMachine builds a machine with quiet logging, canned console
// input, and recorded console output.
func testMachine(t *testing.T) *CPM {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	c, err := New(logger,
		WithInputDriver("file"),
		WithOutputDriver("logger"))
	if err != nil {
		t.Fatalf("failed to create CPM: %s", err)
	}

	c.Memory = new(memory.Memory)
	c.fixupRAM()
	c.CPU = z80.New(c.Memory, c)

	return c
}

// recorded returns everything the guest has printed.
func recorded(t *testing.T, c *CPM) string {
	t.Helper()

	rec, ok := c.output.GetDriver().(consoleout.ConsoleRecorder)
	if !ok {
		t.Fatalf("output driver is not a recorder")
	}
	return rec.GetOutput()
}

// inDir runs the test with the working directory switched to a fresh
// temporary directory.
func inDir(t *testing.T) string {
	t.Helper()

	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory")
	}

	dir := t.TempDir()
	if err = os.Chdir(dir); err != nil {
		t.Fatalf("failed to change directory")
	}
	t.Cleanup(func() {
		_ = os.Chdir(old)
	})

	return dir
}

// TestPrintString runs the print-string scenario: a guest which
// prints "HI" via C_WRITESTR and exits by jumping to zero.
func TestPrintString(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	c.Memory.SetRange(0x0100,
		0x0E, 0x09, // LD C,0x09
		0x11, 0x0B, 0x01, // LD DE,0x010B
		0xCD, 0x05, 0x00, // CALL 0x0005
		0xC3, 0x00, 0x00, // JP 0x0000
		'H', 'I', '$')

	err := c.Execute([]string{})
	if err != nil {
		t.Fatalf("unexpected error %s", err)
	}

	if recorded(t, c) != "HI" {
		t.Fatalf("wrong output %q", recorded(t, c))
	}
}

// TestSelfCopy runs the LDIR scenario: the guest copies a block of
// memory and then halts with interrupts disabled, which is fatal.
func TestSelfCopy(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	c.Memory.SetRange(0x2000, 0xDE, 0xAD, 0xBE, 0xEF)
	c.Memory.SetRange(0x0100,
		0x21, 0x00, 0x20, // LD HL,0x2000
		0x11, 0x00, 0x21, // LD DE,0x2100
		0x01, 0x04, 0x00, // LD BC,0x0004
		0xED, 0xB0, // LDIR
		0x76) // HALT

	err := c.Execute([]string{})
	if !errors.Is(err, ErrHalt) {
		t.Fatalf("expected ErrHalt, got %v", err)
	}

	for i, want := range []uint8{0xDE, 0xAD, 0xBE, 0xEF} {
		if got := c.Memory.Get(uint16(0x2100 + i)); got != want {
			t.Fatalf("byte %d not copied", i)
		}
	}
	if c.CPU.HL.U16() != 0x2004 || c.CPU.DE.U16() != 0x2104 || c.CPU.BC.U16() != 0 {
		t.Fatalf("register state wrong after LDIR")
	}
	if c.CPU.AF.Lo&(z80.FlagPV|z80.FlagH|z80.FlagN) != 0 {
		t.Fatalf("P/V, H, N should all be clear")
	}
}

// TestStackDiscipline confirms a BDOS trap pops exactly the return
// address pushed by the guest's CALL, resuming at the following
// instruction.
func TestStackDiscipline(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	c.Memory.SetRange(0x0100,
		0x31, 0x00, 0xFE, // LD SP,0xFE00
		0x0E, 0x19, // LD C,0x19 (DRV_GET)
		0xCD, 0x05, 0x00, // CALL 0x0005
		0xC3, 0x00, 0x00) // JP 0x0000

	err := c.Execute([]string{})
	if err != nil {
		t.Fatalf("unexpected error %s", err)
	}

	if c.CPU.SP != 0xFE00 {
		t.Fatalf("trap should pop exactly two bytes: SP=%04X", c.CPU.SP)
	}
}

// TestBiosConsoleTrap drives the CONOUT BIOS vector from guest code.
func TestBiosConsoleTrap(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	conout := c.biosBase + 3*4

	c.Memory.SetRange(0x0100,
		0x0E, 'X', // LD C,'X'
		0xCD, uint8(conout&0xFF), uint8(conout>>8), // CALL CONOUT
		0xC3, 0x00, 0x00) // JP 0x0000

	err := c.Execute([]string{})
	if err != nil {
		t.Fatalf("unexpected error %s", err)
	}

	if recorded(t, c) != "X" {
		t.Fatalf("wrong output %q", recorded(t, c))
	}
}

// TestUnimplementedBdos confirms an unknown BDOS function is fatal.
func TestUnimplementedBdos(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	c.Memory.SetRange(0x0100,
		0x0E, 0x63, // LD C,0x63
		0xCD, 0x05, 0x00, // CALL 0x0005
		0xC3, 0x00, 0x00) // JP 0x0000

	err := c.Execute([]string{})
	if !errors.Is(err, ErrUnimplemented) {
		t.Fatalf("expected ErrUnimplemented, got %v", err)
	}
}

// TestUnimplementedBios confirms an un-emulated BIOS vector is fatal.
func TestUnimplementedBios(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	// Vector 10 is not serviced.
	target := c.biosBase + 3*10

	c.Memory.SetRange(0x0100,
		0xCD, uint8(target&0xFF), uint8(target>>8), // CALL <slot>
		0xC3, 0x00, 0x00) // JP 0x0000

	err := c.Execute([]string{})
	if !errors.Is(err, ErrUnimplemented) {
		t.Fatalf("expected ErrUnimplemented, got %v", err)
	}
}

// TestUnknownOpcodeFatal confirms decoding failures surface as
// errors, not NOPs.
func TestUnknownOpcodeFatal(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	c.Memory.SetRange(0x0100, 0xED, 0x2F)

	err := c.Execute([]string{})

	var unknown z80.UnknownOpcodeError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownOpcodeError, got %v", err)
	}
}

// TestExitViaFunctionZero confirms P_TERMCPM terminates cleanly.
func TestExitViaFunctionZero(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	c.Memory.SetRange(0x0100,
		0x0E, 0x00, // LD C,0x00
		0xCD, 0x05, 0x00, // CALL 0x0005
		0x76) // HALT (never reached)

	err := c.Execute([]string{})
	if !errors.Is(err, ErrExit) {
		t.Fatalf("expected ErrExit, got %v", err)
	}
}

// TestWarmBootTrap confirms a guest jumping to the warm-boot vector
// ends the program with ErrBoot.
func TestWarmBootTrap(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	wboot := c.biosBase + 3

	c.Memory.SetRange(0x0100,
		0xC3, uint8(wboot&0xFF), uint8(wboot>>8)) // JP WBOOT

	err := c.Execute([]string{})
	if !errors.Is(err, ErrBoot) {
		t.Fatalf("expected ErrBoot, got %v", err)
	}
}

// TestMemorySeeding checks the reserved page-zero locations after
// boot-time fixup.
func TestMemorySeeding(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	if c.Memory.Get(0x0000) != 0xC3 {
		t.Fatalf("0x0000 should hold a JP")
	}
	if c.Memory.GetU16(0x0001) != c.biosBase+3 {
		t.Fatalf("0x0001 should point at the warm-boot vector")
	}
	if c.Memory.Get(0x0005) != 0xC3 {
		t.Fatalf("0x0005 should hold a JP")
	}
	entry := c.Memory.GetU16(0x0006)
	if entry < c.biosBase {
		t.Fatalf("the BDOS entry should sit inside the BIOS region: %04X", entry)
	}

	// Every BIOS slot holds a JP to itself.
	for i := uint16(0); i < biosEntries; i++ {
		slot := c.biosBase + i*3
		if c.Memory.Get(slot) != 0xC3 {
			t.Fatalf("slot %d missing JP", i)
		}
		if c.Memory.GetU16(slot+1) != slot {
			t.Fatalf("slot %d should jump to itself", i)
		}
	}
}

// TestCommandLineArguments confirms the default FCBs and the command
// tail are populated.
func TestCommandLineArguments(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	// The guest exits immediately.
	c.Memory.SetRange(0x0100, 0xC3, 0x00, 0x00)

	err := c.Execute([]string{"one.txt", "two.bin"})
	if err != nil {
		t.Fatalf("unexpected error %s", err)
	}

	if string(c.Memory.GetRange(0x005D, 8)) != "ONE     " {
		t.Fatalf("FCB1 name wrong: %q", string(c.Memory.GetRange(0x005D, 8)))
	}
	if string(c.Memory.GetRange(0x006D, 8)) != "TWO     " {
		t.Fatalf("FCB2 name wrong: %q", string(c.Memory.GetRange(0x006D, 8)))
	}

	tail := "ONE.TXT TWO.BIN"
	if c.Memory.Get(0x0080) != uint8(len(tail)) {
		t.Fatalf("tail length wrong: %d", c.Memory.Get(0x0080))
	}
	if string(c.Memory.GetRange(0x0081, len(tail))) != tail {
		t.Fatalf("tail wrong: %q", string(c.Memory.GetRange(0x0081, len(tail))))
	}
}

// TestLoadBinary round-trips a program through the host filesystem.
func TestLoadBinary(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	err := c.LoadBinary("/this/file-does/not/exist")
	if err == nil {
		t.Fatalf("expected an error")
	}

	file, err := os.CreateTemp("", "tst-*.com")
	if err != nil {
		t.Fatalf("failed to create temporary file")
	}
	defer os.Remove(file.Name())

	// JP 0x0000
	_, err = file.Write([]byte{0xC3, 0x00, 0x00})
	if err != nil {
		t.Fatalf("failed to write program")
	}
	file.Close()

	err = c.LoadBinary(file.Name())
	if err != nil {
		t.Fatalf("failed to load binary: %s", err)
	}

	err = c.Execute([]string{})
	if err != nil {
		t.Fatalf("unexpected error %s", err)
	}
}
