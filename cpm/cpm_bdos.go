// This file implements the BDOS function-calls.
//
// These are documented online:
//
// * https://www.seasip.info/Cpm/bdos.html
//
// Arguments arrive in registers: the function number is in C, a byte
// argument in E, a word argument (or FCB pointer) in DE.  Results go
// into HL, with A mirroring L and B mirroring H.

package cpm

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/skx/cpmbox/consolein"
	"github.com/skx/cpmbox/fcb"
)

// blkSize is the size of block-based I/O operations.
const blkSize = fcb.RecordSize

// maxRC is the maximum record-count an FCB can carry.
const maxRC = 128

// SysCallExit implements the Exit syscall.
func SysCallExit(cpm *CPM) error {
	return ErrExit
}

// SysCallReadChar reads a single character from the console, with
// echo.
func SysCallReadChar(cpm *CPM) error {

	c, err := cpm.input.BlockForCharacterWithEcho()
	if err != nil {
		return fmt.Errorf("error in call to BlockForCharacterWithEcho: %s", err)
	}

	cpm.returnCode(uint16(c))
	return nil
}

// SysCallWriteChar writes the single character in the E register to
// the console.
func SysCallWriteChar(cpm *CPM) error {

	cpm.output.PutCharacter(cpm.CPU.DE.Lo)

	cpm.returnCode(0)
	return nil
}

// SysCallRawIO handles both simple character output, and input.
//
// The behaviour is selected by the E register: 0xFF polls and reads
// without echo, 0xFE returns the console status, 0xFD blocks for a
// character, and anything else is written to the console.
func SysCallRawIO(cpm *CPM) error {

	switch cpm.CPU.DE.Lo {
	case 0xFF:
		if cpm.input.PendingInput() {
			out, err := cpm.input.BlockForCharacterNoEcho()
			if err != nil {
				return err
			}
			cpm.returnCode(uint16(out))
			return nil
		}
		cpm.returnCode(0)
		return nil
	case 0xFE:
		if cpm.input.PendingInput() {
			cpm.returnCode(0x00FF)
		} else {
			cpm.returnCode(0)
		}
		return nil
	case 0xFD:
		out, err := cpm.input.BlockForCharacterNoEcho()
		if err != nil {
			return err
		}
		cpm.returnCode(uint16(out))
		return nil
	default:
		cpm.output.PutCharacter(cpm.CPU.DE.Lo)
		cpm.returnCode(0)
		return nil
	}
}

// SysCallGetIOByte gets the IOByte, which is used to describe which
// devices are used for I/O.  It lives at 0x0003 in RAM, so it is
// often accessed directly too.
func SysCallGetIOByte(cpm *CPM) error {

	cpm.returnCode(uint16(cpm.Memory.Get(0x0003)))
	return nil
}

// SysCallSetIOByte sets the IOByte.
func SysCallSetIOByte(cpm *CPM) error {

	cpm.Memory.Set(0x0003, cpm.CPU.DE.Lo)

	cpm.returnCode(0)
	return nil
}

// SysCallWriteString writes the $-terminated string pointed to by DE
// to the console.
func SysCallWriteString(cpm *CPM) error {
	addr := cpm.CPU.DE.U16()

	c := cpm.Memory.Get(addr)
	for c != '$' {
		cpm.output.PutCharacter(c)
		addr++
		c = cpm.Memory.Get(addr)
	}

	cpm.returnCode(0)
	return nil
}

// SysCallReadString reads a line from the console, into the buffer
// pointed to by DE.
//
// The first byte of the buffer is the maximum length; on return the
// second holds the count of bytes read, and the text follows.
func SysCallReadString(cpm *CPM) error {

	addr := cpm.CPU.DE.U16()

	// If DE is 0x0000 then the DMA area is used instead.
	if addr == 0 {
		addr = cpm.dma
	}

	max := cpm.Memory.Get(addr)

	text, err := cpm.input.ReadLine(max)
	if err != nil {
		// Ctrl-C pressed during input: reboot.
		if err == consolein.ErrInterrupted {
			return ErrBoot
		}
		return err
	}

	cpm.Memory.Set(addr+1, uint8(len(text)))
	for i := 0; i < len(text); i++ {
		cpm.Memory.Set(addr+2+uint16(i), text[i])
	}

	cpm.returnCode(0)
	return nil
}

// SysCallConsoleStatus tests whether we have pending console input:
// 0xFF when a character is waiting, 0x00 otherwise.
//
// The check must not consume anything, so it is backed by the
// peek-only polling of the console driver.
func SysCallConsoleStatus(cpm *CPM) error {

	if cpm.input.PendingInput() {
		cpm.returnCode(0x00FF)
	} else {
		cpm.returnCode(0)
	}
	return nil
}

// SysCallBDOSVersion returns the CP/M version we present: 2.2.
func SysCallBDOSVersion(cpm *CPM) error {

	cpm.returnCode(0x0022)
	return nil
}

// SysCallDriveAllReset resets the disk system: back to drive A, and
// the DMA address back to its default.
func SysCallDriveAllReset(cpm *CPM) error {

	cpm.currentDrive = 0
	cpm.dma = DefaultDMAAddress

	// Update the drive/user byte in RAM.
	cpm.Memory.Set(0x0004, cpm.userNumber<<4|cpm.currentDrive)

	cpm.returnCode(0)
	return nil
}

// SysCallDriveSet selects the drive in E, if the host directory
// which backs it exists; otherwise 0xFF is returned and the current
// drive is unchanged.
func SysCallDriveSet(cpm *CPM) error {

	drv := cpm.CPU.DE.Lo

	if drv > 15 {
		cpm.returnCode(0x00FF)
		return nil
	}

	// The drive must be backed by a host directory.
	st, err := os.Stat(cpm.drivePath(drv))
	if err != nil || !st.IsDir() {
		cpm.Logger.Debug("drive select failed",
			slog.String("drive", cpm.drivePath(drv)))
		cpm.returnCode(0x00FF)
		return nil
	}

	cpm.currentDrive = drv
	cpm.Memory.Set(0x0004, cpm.userNumber<<4|cpm.currentDrive)

	cpm.returnCode(0)
	return nil
}

// fcbFromDE reads the FCB structure the guest placed at DE.
func (cpm *CPM) fcbFromDE() (fcb.FCB, uint16) {
	ptr := cpm.CPU.DE.U16()
	raw := cpm.Memory.GetRange(ptr, fcb.SIZE)
	return fcb.FromBytes(raw), ptr
}

// resolveDrive returns the drive number an FCB names: its own drive
// byte when explicit, the current drive otherwise.
func (cpm *CPM) resolveDrive(f *fcb.FCB) uint8 {
	if f.Drive != 0 {
		return f.Drive - 1
	}
	return cpm.currentDrive
}

// resolveFile maps an FCB to the host path it names, preferring an
// existing file whose name matches case-insensitively, since CP/M
// names are uppercase but host files often are not.
func (cpm *CPM) resolveFile(f *fcb.FCB) string {
	dir := cpm.drivePath(cpm.resolveDrive(f))
	name := f.GetFileName()

	entries, err := os.ReadDir(dir)
	if err == nil {
		for _, n := range entries {
			if strings.ToUpper(n.Name()) == name {
				name = n.Name()
			}
		}
	}

	return filepath.Join(dir, name)
}

// handleFromFCB looks up the open file the FCB's allocation area
// refers to.
func (cpm *CPM) handleFromFCB(f *fcb.FCB) (fileHandle, uint16, bool) {
	key := uint16(f.Al[1])<<8 | uint16(f.Al[0])
	obj, ok := cpm.files[key]
	return obj, key, ok
}

// SysCallFileOpen opens the file named by the FCB supplied in DE,
// storing a handle identifier in the FCB's allocation area.
func SysCallFileOpen(cpm *CPM) error {

	fcbPtr, ptr := cpm.fcbFromDE()

	// Drives run A-P only.
	if fcbPtr.Drive > 16 {
		cpm.returnCode(0x00FF)
		return nil
	}

	fileName := fcbPtr.GetFileName()
	if fileName == "" {
		cpm.returnCode(0x00FF)
		return nil
	}

	path := cpm.resolveFile(&fcbPtr)

	l := cpm.Logger.With(
		slog.String("function", "SysCallFileOpen"),
		slog.String("path", path))

	file, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		// Fall back to read-only, for write-protected files.
		file, err = os.OpenFile(path, os.O_RDONLY, 0644)
	}
	if err != nil {
		l.Debug("failed to open",
			slog.String("error", err.Error()))
		cpm.returnCode(0x00FF)
		return nil
	}

	// Record-count from the file size.
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		cpm.returnCode(0x00FF)
		return nil
	}
	fLen := fi.Size() / blkSize
	if fLen > maxRC {
		fcbPtr.RC = maxRC
	} else {
		fcbPtr.RC = uint8(fLen)
	}

	// Stash the handle identifier in the allocation area.
	id := cpm.allocHandle(path, file)
	fcbPtr.Al[0] = uint8(id & 0xFF)
	fcbPtr.Al[1] = uint8(id >> 8)

	l.Debug("result:OK",
		slog.Int("fcb", int(ptr)),
		slog.Int("handle", int(id)),
		slog.Int("record_count", int(fcbPtr.RC)),
		slog.Int64("file_size", fi.Size()))

	cpm.Memory.SetRange(ptr, fcbPtr.AsBytes()...)

	cpm.returnCode(0)
	return nil
}

// SysCallFileClose closes the file the FCB supplied in DE refers to,
// and clears the handle identifier from its allocation area.
func SysCallFileClose(cpm *CPM) error {

	fcbPtr, ptr := cpm.fcbFromDE()

	obj, key, ok := cpm.handleFromFCB(&fcbPtr)
	if !ok {
		cpm.Logger.Debug("SysCallFileClose tried to close a file that wasn't open",
			slog.Int("fcb", int(ptr)))
		cpm.returnCode(0x00FF)
		return nil
	}

	err := obj.handle.Close()
	delete(cpm.files, key)

	fcbPtr.Al[0] = 0x00
	fcbPtr.Al[1] = 0x00
	cpm.Memory.SetRange(ptr, fcbPtr.AsBytes()...)

	if err != nil {
		cpm.returnCode(0x00FF)
		return nil
	}

	cpm.returnCode(0)
	return nil
}

// findAdvance walks the active directory iterator until the next
// entry matching the pattern, writes its directory-entry image to the
// DMA area, and returns the BDOS status.
func (cpm *CPM) findAdvance() error {

	for {
		entries, err := cpm.find.dir.ReadDir(1)
		if err != nil || len(entries) == 0 {
			// io.EOF, or a real error: either way the
			// search is over.
			cpm.closeFinder()
			cpm.returnCode(0x00FF)
			return nil
		}

		entry := entries[0]
		if entry.IsDir() {
			continue
		}
		if !cpm.find.pattern.DoesMatch(entry.Name()) {
			continue
		}

		// A hit: deposit the 32-byte directory entry image.
		res, err2 := fcb.FromHostName(entry.Name())
		if err2 != nil {
			continue
		}
		res.Drive = cpm.find.drive

		if err2 = cpm.checkDMA(); err2 != nil {
			return err2
		}
		cpm.Memory.SetRange(cpm.dma, res.AsDirEnt()...)

		cpm.returnCode(0)
		return nil
	}
}

// SysCallFindFirst finds the first filename, on disk, that matches
// the wildcard pattern in the FCB supplied in DE.
func SysCallFindFirst(cpm *CPM) error {

	// Previous search state is now invalid.
	cpm.closeFinder()

	fcbPtr, _ := cpm.fcbFromDE()

	dir, err := os.Open(cpm.drivePath(cpm.resolveDrive(&fcbPtr)))
	if err != nil {
		cpm.Logger.Debug("SysCallFindFirst failed to open drive directory",
			slog.String("error", err.Error()))
		cpm.returnCode(0x00FF)
		return nil
	}

	cpm.find = &finder{
		dir:     dir,
		pattern: fcbPtr,
		drive:   fcbPtr.Drive,
	}

	return cpm.findAdvance()
}

// SysCallFindNext continues the search SysCallFindFirst started.
//
// The iterator is invalidated by any intervening BDOS call, in which
// case 0xFF is returned.
func SysCallFindNext(cpm *CPM) error {

	if cpm.find == nil {
		cpm.returnCode(0x00FF)
		return nil
	}

	return cpm.findAdvance()
}

// SysCallDeleteFile deletes the file(s) matching the pattern
// specified by the FCB in DE.
func SysCallDeleteFile(cpm *CPM) error {

	fcbPtr, _ := cpm.fcbFromDE()

	dir := cpm.drivePath(cpm.resolveDrive(&fcbPtr))

	res, err := fcbPtr.GetMatches(dir)
	if err != nil {
		cpm.Logger.Debug("SysCallDeleteFile - GetMatches failed",
			slog.String("path", dir),
			slog.String("error", err.Error()))
		cpm.returnCode(0x00FF)
		return nil
	}

	count := 0
	for _, entry := range res {
		cpm.Logger.Debug("SysCallDeleteFile: deleting file",
			slog.String("path", entry.Host))

		err = os.Remove(entry.Host)
		if err != nil {
			cpm.Logger.Debug("SysCallDeleteFile: failed to delete file",
				slog.String("path", entry.Host),
				slog.String("error", err.Error()))
			cpm.returnCode(0x00FF)
			return nil
		}
		count++
	}

	if count == 0 {
		cpm.returnCode(0x00FF)
		return nil
	}

	cpm.returnCode(0)
	return nil
}

// SysCallRead reads the next sequential 128-byte record from the file
// named in the FCB given in DE, into the DMA area.
//
// Short reads are padded with NULs; a read entirely past the end of
// the file returns 0x01.
func SysCallRead(cpm *CPM) error {

	fcbPtr, ptr := cpm.fcbFromDE()

	obj, _, ok := cpm.handleFromFCB(&fcbPtr)
	if !ok {
		cpm.Logger.Error("SysCallRead: attempting to read from a file that isn't open")
		cpm.returnCode(0x00FF)
		return nil
	}

	if err := cpm.checkDMA(); err != nil {
		return err
	}

	offset := fcbPtr.GetSequentialOffset()

	data := make([]uint8, blkSize)
	n, err := obj.handle.ReadAt(data, offset)
	if err != nil && err != io.EOF {
		cpm.Logger.Debug("SysCallRead failed",
			slog.String("path", obj.name),
			slog.String("error", err.Error()))
		cpm.returnCode(0x00FF)
		return nil
	}

	cpm.Logger.Debug("SysCallRead",
		slog.Int("dma", int(cpm.dma)),
		slog.Int("fcb", int(ptr)),
		slog.Int64("offset", offset),
		slog.Int("read", n))

	// Nothing at all: end of file.
	if n == 0 {
		cpm.returnCode(0x0001)
		return nil
	}

	cpm.Memory.SetRange(cpm.dma, data...)

	fcbPtr.IncreaseSequentialOffset()
	cpm.Memory.SetRange(ptr, fcbPtr.AsBytes()...)

	cpm.returnCode(0)
	return nil
}

// SysCallWrite writes a 128-byte record from the DMA area to the file
// named in the FCB given in DE, at the sequential position.
func SysCallWrite(cpm *CPM) error {

	fcbPtr, ptr := cpm.fcbFromDE()

	obj, _, ok := cpm.handleFromFCB(&fcbPtr)
	if !ok {
		cpm.Logger.Error("SysCallWrite: attempting to write to a file that isn't open")
		cpm.returnCode(0x00FF)
		return nil
	}

	if err := cpm.checkDMA(); err != nil {
		return err
	}

	offset := fcbPtr.GetSequentialOffset()
	data := cpm.Memory.GetRange(cpm.dma, blkSize)

	_, err := obj.handle.WriteAt(data, offset)
	if err != nil {
		cpm.Logger.Debug("SysCallWrite failed",
			slog.String("path", obj.name),
			slog.String("error", err.Error()))
		cpm.returnCode(0x00FF)
		return nil
	}

	cpm.Logger.Debug("SysCallWrite",
		slog.Int("dma", int(cpm.dma)),
		slog.Int("fcb", int(ptr)),
		slog.Int64("offset", offset))

	fcbPtr.IncreaseSequentialOffset()
	if fcbPtr.RC < maxRC {
		fcbPtr.RC++
	}
	cpm.Memory.SetRange(ptr, fcbPtr.AsBytes()...)

	cpm.returnCode(0)
	return nil
}

// SysCallMakeFile creates the file named in the FCB given in DE; it
// is an error for the file to already exist.
func SysCallMakeFile(cpm *CPM) error {

	fcbPtr, ptr := cpm.fcbFromDE()

	if fcbPtr.Drive > 16 {
		cpm.returnCode(0x00FF)
		return nil
	}

	fileName := fcbPtr.GetFileName()
	if fileName == "" {
		cpm.returnCode(0x00FF)
		return nil
	}

	path := cpm.resolveFile(&fcbPtr)

	l := cpm.Logger.With(
		slog.String("function", "SysCallMakeFile"),
		slog.String("path", path))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		l.Debug("failed to create",
			slog.String("error", err.Error()))
		cpm.returnCode(0x00FF)
		return nil
	}

	fcbPtr.RC = 0

	id := cpm.allocHandle(path, file)
	fcbPtr.Al[0] = uint8(id & 0xFF)
	fcbPtr.Al[1] = uint8(id >> 8)

	l.Debug("result:OK",
		slog.Int("fcb", int(ptr)),
		slog.Int("handle", int(id)))

	cpm.Memory.SetRange(ptr, fcbPtr.AsBytes()...)

	cpm.returnCode(0)
	return nil
}

// SysCallRenameFile will handle a rename operation, using the source
// FCB at DE and the destination packed in its second half.
//
// Note that this will not handle cross-drive renames.
func SysCallRenameFile(cpm *CPM) error {

	fcbPtr, ptr := cpm.fcbFromDE()

	srcPath := cpm.resolveFile(&fcbPtr)

	// The destination FCB image starts sixteen bytes in.
	raw := cpm.Memory.GetRange(ptr+16, fcb.SIZE)
	dstPtr := fcb.FromBytes(raw)
	dstName := dstPtr.GetFileName()
	if dstName == "" {
		cpm.returnCode(0x00FF)
		return nil
	}

	dstPath := filepath.Join(cpm.drivePath(cpm.resolveDrive(&fcbPtr)), dstName)

	cpm.Logger.Debug("renaming file",
		slog.String("src", srcPath),
		slog.String("dst", dstPath))

	err := os.Rename(srcPath, dstPath)
	if err != nil {
		cpm.Logger.Debug("renaming file failed",
			slog.String("error", err.Error()))
		cpm.returnCode(0x00FF)
		return nil
	}

	cpm.returnCode(0)
	return nil
}

// SysCallLoginVec returns the bitmap of logged-in drives; all of
// ours are always available.
func SysCallLoginVec(cpm *CPM) error {

	cpm.returnCode(0xFFFF)
	return nil
}

// SysCallDriveGet returns the number of the active drive in A.
func SysCallDriveGet(cpm *CPM) error {

	cpm.returnCode(uint16(cpm.currentDrive))
	return nil
}

// SysCallSetDMA updates the address of the DMA area, which is used
// for block I/O.
//
// A DMA area which would run off the top of memory is a fatal error.
func SysCallSetDMA(cpm *CPM) error {

	addr := cpm.CPU.DE.U16()
	if int(addr)+blkSize > 0x10000 {
		return fmt.Errorf("DMA address %04X would cross the top of memory", addr)
	}

	cpm.dma = addr

	cpm.returnCode(0)
	return nil
}

// SysCallUserNumber gets, or sets, the current user number: E of
// 0xFF reads it, anything else stores it.
func SysCallUserNumber(cpm *CPM) error {

	if cpm.CPU.DE.Lo == 0xFF {
		cpm.returnCode(uint16(cpm.userNumber))
		return nil
	}

	cpm.userNumber = cpm.CPU.DE.Lo & 0x1F
	cpm.Memory.Set(0x0004, cpm.userNumber<<4|cpm.currentDrive)

	cpm.returnCode(0)
	return nil
}

// SysCallReadRand reads the record named by the random-record number
// in the FCB given in DE, into the DMA area.
func SysCallReadRand(cpm *CPM) error {

	fcbPtr, ptr := cpm.fcbFromDE()

	obj, _, ok := cpm.handleFromFCB(&fcbPtr)
	if !ok {
		cpm.Logger.Error("SysCallReadRand: attempting to read from a file that isn't open")
		cpm.returnCode(0x00FF)
		return nil
	}

	if err := cpm.checkDMA(); err != nil {
		return err
	}

	offset := fcbPtr.GetRandomRecord() * blkSize

	data := make([]uint8, blkSize)
	n, err := obj.handle.ReadAt(data, offset)
	if err != nil && err != io.EOF {
		cpm.returnCode(0x00FF)
		return nil
	}
	if n == 0 {
		// Reading unwritten data.
		cpm.returnCode(0x0001)
		return nil
	}

	cpm.Memory.SetRange(cpm.dma, data...)

	// Random access positions the sequential counters too.
	fcbPtr.SetSequentialOffset(offset)
	cpm.Memory.SetRange(ptr, fcbPtr.AsBytes()...)

	cpm.returnCode(0)
	return nil
}

// SysCallWriteRand writes a record from the DMA area at the
// random-record position named by the FCB given in DE.
func SysCallWriteRand(cpm *CPM) error {

	fcbPtr, ptr := cpm.fcbFromDE()

	obj, _, ok := cpm.handleFromFCB(&fcbPtr)
	if !ok {
		cpm.Logger.Error("SysCallWriteRand: attempting to write to a file that isn't open")
		cpm.returnCode(0x00FF)
		return nil
	}

	if err := cpm.checkDMA(); err != nil {
		return err
	}

	offset := fcbPtr.GetRandomRecord() * blkSize
	data := cpm.Memory.GetRange(cpm.dma, blkSize)

	_, err := obj.handle.WriteAt(data, offset)
	if err != nil {
		cpm.returnCode(0x00FF)
		return nil
	}

	fcbPtr.SetSequentialOffset(offset)
	cpm.Memory.SetRange(ptr, fcbPtr.AsBytes()...)

	cpm.returnCode(0)
	return nil
}
