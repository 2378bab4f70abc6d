package cpm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/skx/cpmbox/fcb"
)

// setFCB writes the given FCB into guest memory and points DE at it.
func setFCB(c *CPM, addr uint16, f fcb.FCB) {
	c.Memory.SetRange(addr, f.AsBytes()...)
	c.CPU.DE.SetU16(addr)
}

// getFCB reads back the FCB at the given address.
func getFCB(c *CPM, addr uint16) fcb.FCB {
	return fcb.FromBytes(c.Memory.GetRange(addr, fcb.SIZE))
}

// TestDriveSelect follows the drive-select scenario: selecting a
// drive backed by a host directory succeeds, an unbacked one fails
// and leaves the current drive alone.
func TestDriveSelect(t *testing.T) {

	inDir(t)
	c := testMachine(t)
	defer c.Cleanup()

	// Only drive B exists.
	if err := os.Mkdir("B", 0755); err != nil {
		t.Fatalf("failed to create drive directory")
	}

	// Select B: works.
	c.CPU.DE.Lo = 0x01
	if err := SysCallDriveSet(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x00 {
		t.Fatalf("selecting B should succeed: A=%02X", c.CPU.AF.Hi)
	}

	if err := SysCallDriveGet(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x01 {
		t.Fatalf("current drive should be B: A=%02X", c.CPU.AF.Hi)
	}

	// Select C: fails, drive unchanged.
	c.CPU.DE.Lo = 0x02
	if err := SysCallDriveSet(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0xFF {
		t.Fatalf("selecting a missing drive should fail: A=%02X", c.CPU.AF.Hi)
	}

	if err := SysCallDriveGet(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x01 {
		t.Fatalf("failed select should not change the drive: A=%02X", c.CPU.AF.Hi)
	}

	// Drive numbers beyond P: are rejected outright.
	c.CPU.DE.Lo = 0x20
	if err := SysCallDriveSet(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0xFF {
		t.Fatalf("out-of-range drive should fail")
	}
}

// TestFileRoundTrip makes a file, writes a record, closes it, then
// reopens and reads the record back.
func TestFileRoundTrip(t *testing.T) {

	inDir(t)
	c := testMachine(t)
	defer c.Cleanup()

	if err := os.Mkdir("A", 0755); err != nil {
		t.Fatalf("failed to create drive directory")
	}

	const fcbAddr = 0x005C

	// Make the file.
	setFCB(c, fcbAddr, fcb.FromString("DATA.BIN"))
	if err := SysCallMakeFile(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x00 {
		t.Fatalf("F_MAKE failed: A=%02X", c.CPU.AF.Hi)
	}

	// Fill the DMA area with a pattern and write the record.
	for i := 0; i < 128; i++ {
		c.Memory.Set(uint16(0x0080+i), uint8(i))
	}
	c.CPU.DE.SetU16(fcbAddr)
	if err := SysCallWrite(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x00 {
		t.Fatalf("F_WRITE failed: A=%02X", c.CPU.AF.Hi)
	}

	// Close.
	c.CPU.DE.SetU16(fcbAddr)
	if err := SysCallFileClose(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x00 {
		t.Fatalf("F_CLOSE failed: A=%02X", c.CPU.AF.Hi)
	}
	if handle := getFCB(c, fcbAddr); handle.Al[0] != 0 || handle.Al[1] != 0 {
		t.Fatalf("close should clear the handle identifier")
	}

	// Reopen.
	setFCB(c, fcbAddr, fcb.FromString("DATA.BIN"))
	if err := SysCallFileOpen(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x00 {
		t.Fatalf("F_OPEN failed: A=%02X", c.CPU.AF.Hi)
	}
	if rc := getFCB(c, fcbAddr).RC; rc != 1 {
		t.Fatalf("record count should be one: %d", rc)
	}

	// Scribble over the DMA area, then read the record back.
	c.Memory.FillRange(0x0080, 128, 0xFF)
	c.CPU.DE.SetU16(fcbAddr)
	if err := SysCallRead(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x00 {
		t.Fatalf("F_READ failed: A=%02X", c.CPU.AF.Hi)
	}
	for i := 0; i < 128; i++ {
		if c.Memory.Get(uint16(0x0080+i)) != uint8(i) {
			t.Fatalf("read back wrong byte at %d", i)
		}
	}

	// The next read is past the end of the file.
	c.CPU.DE.SetU16(fcbAddr)
	if err := SysCallRead(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x01 {
		t.Fatalf("read past EOF should return one: A=%02X", c.CPU.AF.Hi)
	}

	// And it stays that way.
	c.CPU.DE.SetU16(fcbAddr)
	if err := SysCallRead(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x01 {
		t.Fatalf("repeated reads past EOF should return one: A=%02X", c.CPU.AF.Hi)
	}
}

// TestPartialRecordPadding writes a short host file and confirms a
// read pads the record with NULs.
func TestPartialRecordPadding(t *testing.T) {

	inDir(t)
	c := testMachine(t)
	defer c.Cleanup()

	if err := os.Mkdir("A", 0755); err != nil {
		t.Fatalf("failed to create drive directory")
	}
	if err := os.WriteFile(filepath.Join("A", "SHORT.TXT"), []byte("HELLO"), 0644); err != nil {
		t.Fatalf("failed to write file")
	}

	const fcbAddr = 0x005C

	setFCB(c, fcbAddr, fcb.FromString("SHORT.TXT"))
	if err := SysCallFileOpen(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x00 {
		t.Fatalf("F_OPEN failed")
	}

	c.Memory.FillRange(0x0080, 128, 0xFF)
	c.CPU.DE.SetU16(fcbAddr)
	if err := SysCallRead(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x00 {
		t.Fatalf("partial record read should succeed: A=%02X", c.CPU.AF.Hi)
	}

	if string(c.Memory.GetRange(0x0080, 5)) != "HELLO" {
		t.Fatalf("payload wrong")
	}
	for i := 5; i < 128; i++ {
		if c.Memory.Get(uint16(0x0080+i)) != 0x00 {
			t.Fatalf("padding should be NUL at %d", i)
		}
	}

	// Second read: past the end.
	c.CPU.DE.SetU16(fcbAddr)
	if err := SysCallRead(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x01 {
		t.Fatalf("second read should report EOF")
	}
}

// TestFileOpenFailures covers bad drive bytes and missing files.
func TestFileOpenFailures(t *testing.T) {

	inDir(t)
	c := testMachine(t)
	defer c.Cleanup()

	if err := os.Mkdir("A", 0755); err != nil {
		t.Fatalf("failed to create drive directory")
	}

	const fcbAddr = 0x005C

	// A bogus drive byte.
	f := fcb.FromString("HELLO.COM")
	f.Drive = 20
	setFCB(c, fcbAddr, f)
	if err := SysCallFileOpen(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0xFF {
		t.Fatalf("bad drive byte should fail the open")
	}

	// A file which does not exist.
	setFCB(c, fcbAddr, fcb.FromString("MISSING.TXT"))
	if err := SysCallFileOpen(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0xFF {
		t.Fatalf("missing file should fail the open")
	}
}

// TestMakeExisting confirms F_MAKE refuses to clobber.
func TestMakeExisting(t *testing.T) {

	inDir(t)
	c := testMachine(t)
	defer c.Cleanup()

	if err := os.Mkdir("A", 0755); err != nil {
		t.Fatalf("failed to create drive directory")
	}
	if err := os.WriteFile(filepath.Join("A", "TAKEN.TXT"), []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write file")
	}

	setFCB(c, 0x005C, fcb.FromString("TAKEN.TXT"))
	if err := SysCallMakeFile(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0xFF {
		t.Fatalf("F_MAKE of an existing file should fail")
	}
}

// TestFindFirstNext follows the directory-search scenario: two files,
// two hits, then exhaustion.
func TestFindFirstNext(t *testing.T) {

	inDir(t)
	c := testMachine(t)
	defer c.Cleanup()

	if err := os.Mkdir("A", 0755); err != nil {
		t.Fatalf("failed to create drive directory")
	}
	for _, name := range []string{"HELLO.COM", "WORLD.TXT"} {
		if err := os.WriteFile(filepath.Join("A", name), []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write file")
		}
	}

	const fcbAddr = 0x005C

	setFCB(c, fcbAddr, fcb.FromString("*.*"))
	if err := SysCallFindFirst(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x00 {
		t.Fatalf("first search should hit: A=%02X", c.CPU.AF.Hi)
	}

	// The DMA area holds a 32-byte directory entry image.
	first := string(c.Memory.GetRange(c.dma+1, 11))
	if first != "HELLO   COM" && first != "WORLD   TXT" {
		t.Fatalf("unexpected directory entry %q", first)
	}

	c.CPU.DE.SetU16(fcbAddr)
	if err := SysCallFindNext(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x00 {
		t.Fatalf("second search should hit: A=%02X", c.CPU.AF.Hi)
	}

	second := string(c.Memory.GetRange(c.dma+1, 11))
	if second == first {
		t.Fatalf("the second hit should differ from the first")
	}

	c.CPU.DE.SetU16(fcbAddr)
	if err := SysCallFindNext(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0xFF {
		t.Fatalf("the third search should be exhausted: A=%02X", c.CPU.AF.Hi)
	}
}

// TestFindInvalidated confirms an intervening BDOS call closes the
// search iterator.
func TestFindInvalidated(t *testing.T) {

	inDir(t)
	c := testMachine(t)
	defer c.Cleanup()

	if err := os.Mkdir("A", 0755); err != nil {
		t.Fatalf("failed to create drive directory")
	}
	for _, name := range []string{"ONE.TXT", "TWO.TXT"} {
		if err := os.WriteFile(filepath.Join("A", name), []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write file")
		}
	}

	setFCB(c, 0x005C, fcb.FromString("*.TXT"))
	if err := c.invokeBdos(0x11); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x00 {
		t.Fatalf("first search should hit")
	}

	// An unrelated call invalidates the iterator...
	if err := c.invokeBdos(0x19); err != nil {
		t.Fatalf("unexpected error %s", err)
	}

	// ...so find-next misses.
	c.CPU.DE.SetU16(0x005C)
	if err := c.invokeBdos(0x12); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0xFF {
		t.Fatalf("invalidated search should miss: A=%02X", c.CPU.AF.Hi)
	}
}

// TestDeleteFile removes files by wildcard.
func TestDeleteFile(t *testing.T) {

	inDir(t)
	c := testMachine(t)
	defer c.Cleanup()

	if err := os.Mkdir("A", 0755); err != nil {
		t.Fatalf("failed to create drive directory")
	}
	for _, name := range []string{"ONE.TMP", "TWO.TMP", "KEEP.TXT"} {
		if err := os.WriteFile(filepath.Join("A", name), []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write file")
		}
	}

	setFCB(c, 0x005C, fcb.FromString("*.TMP"))
	if err := SysCallDeleteFile(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x00 {
		t.Fatalf("delete should succeed: A=%02X", c.CPU.AF.Hi)
	}

	entries, err := os.ReadDir("A")
	if err != nil {
		t.Fatalf("failed to read drive directory")
	}
	if len(entries) != 1 || entries[0].Name() != "KEEP.TXT" {
		t.Fatalf("wrong survivors: %v", entries)
	}

	// Deleting nothing is an error.
	setFCB(c, 0x005C, fcb.FromString("*.TMP"))
	if err = SysCallDeleteFile(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0xFF {
		t.Fatalf("no matches should fail: A=%02X", c.CPU.AF.Hi)
	}
}

// TestRenameFile renames a file via the packed double FCB.
func TestRenameFile(t *testing.T) {

	inDir(t)
	c := testMachine(t)
	defer c.Cleanup()

	if err := os.Mkdir("A", 0755); err != nil {
		t.Fatalf("failed to create drive directory")
	}
	if err := os.WriteFile(filepath.Join("A", "OLD.TXT"), []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write file")
	}

	const fcbAddr = 0x005C
	src := fcb.FromString("OLD.TXT")
	dst := fcb.FromString("NEW.TXT")

	c.Memory.SetRange(fcbAddr, src.AsBytes()...)
	c.Memory.SetRange(fcbAddr+16, dst.AsBytes()...)
	c.CPU.DE.SetU16(fcbAddr)

	if err := SysCallRenameFile(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x00 {
		t.Fatalf("rename should succeed: A=%02X", c.CPU.AF.Hi)
	}

	if _, err := os.Stat(filepath.Join("A", "NEW.TXT")); err != nil {
		t.Fatalf("renamed file is missing")
	}
	if _, err := os.Stat(filepath.Join("A", "OLD.TXT")); err == nil {
		t.Fatalf("old file should be gone")
	}
}

// TestRandomAccess writes a record at a random position and reads it
// back.
func TestRandomAccess(t *testing.T) {

	inDir(t)
	c := testMachine(t)
	defer c.Cleanup()

	if err := os.Mkdir("A", 0755); err != nil {
		t.Fatalf("failed to create drive directory")
	}

	const fcbAddr = 0x005C

	setFCB(c, fcbAddr, fcb.FromString("RAND.BIN"))
	if err := SysCallMakeFile(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}

	// Write record three.
	f := getFCB(c, fcbAddr)
	f.R0 = 3
	setFCB(c, fcbAddr, f)
	c.Memory.FillRange(0x0080, 128, 0xAB)
	if err := SysCallWriteRand(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x00 {
		t.Fatalf("random write failed: A=%02X", c.CPU.AF.Hi)
	}

	// Read it back.
	c.Memory.FillRange(0x0080, 128, 0x00)
	c.CPU.DE.SetU16(fcbAddr)
	if err := SysCallReadRand(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x00 {
		t.Fatalf("random read failed: A=%02X", c.CPU.AF.Hi)
	}
	if c.Memory.Get(0x0080) != 0xAB {
		t.Fatalf("random read returned wrong data")
	}

	// The sequential counters follow the random position.
	f = getFCB(c, fcbAddr)
	if f.GetSequentialOffset() != 3*128 {
		t.Fatalf("sequential position should track the random record: %d", f.GetSequentialOffset())
	}
}

// TestDMA covers F_DMAOFF, including the fatal top-of-memory check.
func TestDMA(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	c.CPU.DE.SetU16(0x4000)
	if err := SysCallSetDMA(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.dma != 0x4000 {
		t.Fatalf("DMA not updated")
	}

	// A record at 0xFFC0 would cross 0xFFFF.
	c.CPU.DE.SetU16(0xFFC0)
	if err := SysCallSetDMA(c); err == nil {
		t.Fatalf("expected a fatal error")
	}
}

// TestUserNumber gets and sets the user number.
func TestUserNumber(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	c.CPU.DE.Lo = 0x05
	if err := SysCallUserNumber(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}

	c.CPU.DE.Lo = 0xFF
	if err := SysCallUserNumber(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x05 {
		t.Fatalf("wrong user number: %02X", c.CPU.AF.Hi)
	}
}

// TestConsoleFunctions covers C_WRITE/C_WRITESTR/C_READ/C_STAT and
// C_READSTR using the canned console devices.
func TestConsoleFunctions(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	// C_WRITE
	c.CPU.DE.Lo = 'A'
	if err := SysCallWriteChar(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}

	// C_WRITESTR
	c.Memory.SetRange(0x0200, 'B', 'C', '$')
	c.CPU.DE.SetU16(0x0200)
	if err := SysCallWriteString(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}

	if recorded(t, c) != "ABC" {
		t.Fatalf("wrong console output %q", recorded(t, c))
	}

	// C_STAT: nothing pending.
	if err := SysCallConsoleStatus(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0x00 {
		t.Fatalf("no input should be pending")
	}

	// C_READ with stuffed input.
	c.input.StuffInput("Z")
	if err := SysCallConsoleStatus(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 0xFF {
		t.Fatalf("input should be pending")
	}
	if err := SysCallReadChar(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.AF.Hi != 'Z' {
		t.Fatalf("wrong character %02X", c.CPU.AF.Hi)
	}

	// C_READSTR into a buffer at 0x0300 with room for ten bytes.
	c.input.StuffInput("HELLO\r")
	c.Memory.Set(0x0300, 10)
	c.CPU.DE.SetU16(0x0300)
	if err := SysCallReadString(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.Memory.Get(0x0301) != 5 {
		t.Fatalf("wrong line length %d", c.Memory.Get(0x0301))
	}
	if string(c.Memory.GetRange(0x0302, 5)) != "HELLO" {
		t.Fatalf("wrong line contents")
	}
}

// TestBDOSVersion confirms we claim to be CP/M 2.2.
func TestBDOSVersion(t *testing.T) {

	c := testMachine(t)
	defer c.Cleanup()

	if err := SysCallBDOSVersion(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.CPU.HL.U16() != 0x0022 {
		t.Fatalf("wrong version word %04X", c.CPU.HL.U16())
	}
	if c.CPU.AF.Hi != 0x22 {
		t.Fatalf("A should mirror L")
	}
}

// TestDriveReset confirms DRV_ALLRESET restores the defaults.
func TestDriveReset(t *testing.T) {

	inDir(t)
	c := testMachine(t)
	defer c.Cleanup()

	if err := os.Mkdir("B", 0755); err != nil {
		t.Fatalf("failed to create drive directory")
	}

	c.CPU.DE.Lo = 0x01
	if err := SysCallDriveSet(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	c.dma = 0x4000

	if err := SysCallDriveAllReset(c); err != nil {
		t.Fatalf("unexpected error %s", err)
	}

	if c.currentDrive != 0 {
		t.Fatalf("drive should reset to A")
	}
	if c.dma != DefaultDMAAddress {
		t.Fatalf("DMA should reset to the default")
	}
}
