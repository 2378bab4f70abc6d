// Package cpm is the main package for our emulator: it owns the
// memory, the Z80 CPU, and the emulation of the CP/M syscalls which
// guest programs expect.
//
// The machine runs a trap-based dispatch loop: before every
// instruction the program counter is inspected, and the magic
// addresses - 0x0000 for exit, 0x0005 for the BDOS, and the BIOS jump
// table - are serviced by Go code rather than by guest code.
package cpm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/skx/cpmbox/consolein"
	"github.com/skx/cpmbox/consoleout"
	"github.com/skx/cpmbox/fcb"
	"github.com/skx/cpmbox/memory"
	"github.com/skx/cpmbox/z80"
)

var (
	// ErrExit will be used to handle a CP/M binary calling Exit.
	//
	// It should be handled and expected by callers.
	ErrExit = errors.New("EXIT")

	// ErrBoot will be used to handle a CP/M binary invoking the
	// boot or warm-boot BIOS entries: the current program is done,
	// but the machine may be restarted.
	//
	// It should be handled and expected by callers.
	ErrBoot = errors.New("BOOT")

	// ErrHalt will be used to note that the Z80 executed a HALT
	// operation; no interrupt sources are modelled, so nothing can
	// ever wake it, whatever the interrupt latches hold, and this
	// terminates execution.
	ErrHalt = errors.New("HALT")

	// ErrUnimplemented will be used to handle a CP/M binary
	// calling an unimplemented BDOS or BIOS function.
	ErrUnimplemented = errors.New("UNIMPLEMENTED")
)

const (
	// DefaultDMAAddress is the default address of the DMA area,
	// which is used for block I/O.
	DefaultDMAAddress = 0x0080

	// DefaultBiosAddress is the default base of the BIOS jump
	// table.
	DefaultBiosAddress = 0xFC00

	// biosEntries is the number of three-byte slots in the BIOS
	// jump table.
	biosEntries = 17

	// bias is the relocation offset applied when a system image
	// is loaded, rather than a transient program.
	bias = 0xA800

	// SystemEntryPoint is the address a system image is loaded to,
	// and cold-booted from.
	SystemEntryPoint = 0x3400 + bias

	// TPAEntryPoint is the address transient programs are loaded
	// to, and executed from.
	TPAEntryPoint = 0x0100
)

// BdosHandlerType contains the signature of a BDOS function handler.
type BdosHandlerType func(cpm *CPM) error

// BdosHandler contains details of a specific BDOS call we implement.
//
// While we mostly need a "number to handler" mapping, having a name
// is useful for the logs we produce.
type BdosHandler struct {
	// Desc contains the human-readable name of the given CP/M
	// syscall.
	Desc string

	// Handler contains the function which should be invoked for
	// this syscall.
	Handler BdosHandlerType
}

// BiosHandler contains details of a specific BIOS vector we
// implement.
type BiosHandler struct {
	// Desc contains the human-readable name of the given BIOS
	// entry.
	Desc string

	// Handler contains the function which should be invoked for
	// this vector.
	Handler BdosHandlerType
}

// fileHandle associates an open host file with the identifier we
// smuggle through the FCB allocation area.
type fileHandle struct {
	// name holds the host path of the file.
	name string

	// handle has the file object.
	handle *os.File
}

// finder is the state of a directory search started by F_SFIRST: an
// open host directory handle, and the wildcard pattern to filter by.
//
// Any BDOS call other than F_SNEXT invalidates the iterator, which
// closes the directory handle.
type finder struct {
	// dir is the open host directory being walked.
	dir *os.File

	// pattern holds the eleven-byte wildcard filter.
	pattern fcb.FCB

	// drive is the drive byte to echo into the results.
	drive uint8
}

// CPM is the object that holds our emulator state.
type CPM struct {

	// Syscalls contains the BDOS functions we emulate, indexed by
	// their function number.
	Syscalls map[uint8]BdosHandler

	// BiosVectors contains the BIOS entries we emulate, indexed
	// by their slot in the jump table.
	BiosVectors map[uint8]BiosHandler

	// Memory contains the memory the system runs with.
	Memory *memory.Memory

	// CPU is the Z80 interpreter state.
	CPU *z80.CPU

	// Logger holds a logger which we use for debugging and
	// diagnostics.
	Logger *slog.Logger

	// input is the console input device.
	input *consolein.ConsoleIn

	// output is the console output device.
	output *consoleout.ConsoleOut

	// dma contains the offset of the DMA area.
	dma uint16

	// start contains the location to which we load our binaries,
	// and execute them from.
	start uint16

	// biosBase is the base of the BIOS jump table.
	biosBase uint16

	// currentDrive contains the currently selected drive, 0-15.
	currentDrive uint8

	// userNumber contains the current user number.
	userNumber uint8

	// files is the pool of open file handles, keyed by the
	// identifier stored in the FCB allocation area.
	files map[uint16]fileHandle

	// nextHandle is the identifier the next opened file receives.
	nextHandle uint16

	// find is the active directory-search iterator, if any.
	find *finder

	// trace notes whether we log a disassembly of every
	// instruction we execute.
	trace bool
}

// Option is the signature of a configuration-option for our
// constructor.
type Option func(*CPM) error

// WithInputDriver selects the console input driver, by name.
func WithInputDriver(name string) Option {
	return func(c *CPM) error {
		in, err := consolein.New(name)
		if err != nil {
			return err
		}
		c.input = in
		return nil
	}
}

// WithOutputDriver selects the console output driver, by name.
func WithOutputDriver(name string) Option {
	return func(c *CPM) error {
		out, err := consoleout.New(name)
		if err != nil {
			return err
		}
		c.output = out
		return nil
	}
}

// WithBiosAddress changes the base of the BIOS jump table.
func WithBiosAddress(addr uint16) Option {
	return func(c *CPM) error {
		c.biosBase = addr
		return nil
	}
}

// New returns a new emulation object, configured by the given
// options.
func New(logger *slog.Logger, options ...Option) (*CPM, error) {

	//
	// Create and populate our syscall table.
	//
	sys := make(map[uint8]BdosHandler)
	sys[0x00] = BdosHandler{Desc: "P_TERMCPM", Handler: SysCallExit}
	sys[0x01] = BdosHandler{Desc: "C_READ", Handler: SysCallReadChar}
	sys[0x02] = BdosHandler{Desc: "C_WRITE", Handler: SysCallWriteChar}
	sys[0x06] = BdosHandler{Desc: "C_RAWIO", Handler: SysCallRawIO}
	sys[0x07] = BdosHandler{Desc: "GET_IOBYTE", Handler: SysCallGetIOByte}
	sys[0x08] = BdosHandler{Desc: "SET_IOBYTE", Handler: SysCallSetIOByte}
	sys[0x09] = BdosHandler{Desc: "C_WRITESTR", Handler: SysCallWriteString}
	sys[0x0A] = BdosHandler{Desc: "C_READSTR", Handler: SysCallReadString}
	sys[0x0B] = BdosHandler{Desc: "C_STAT", Handler: SysCallConsoleStatus}
	sys[0x0C] = BdosHandler{Desc: "S_BDOSVER", Handler: SysCallBDOSVersion}
	sys[0x0D] = BdosHandler{Desc: "DRV_ALLRESET", Handler: SysCallDriveAllReset}
	sys[0x0E] = BdosHandler{Desc: "DRV_SET", Handler: SysCallDriveSet}
	sys[0x0F] = BdosHandler{Desc: "F_OPEN", Handler: SysCallFileOpen}
	sys[0x10] = BdosHandler{Desc: "F_CLOSE", Handler: SysCallFileClose}
	sys[0x11] = BdosHandler{Desc: "F_SFIRST", Handler: SysCallFindFirst}
	sys[0x12] = BdosHandler{Desc: "F_SNEXT", Handler: SysCallFindNext}
	sys[0x13] = BdosHandler{Desc: "F_DELETE", Handler: SysCallDeleteFile}
	sys[0x14] = BdosHandler{Desc: "F_READ", Handler: SysCallRead}
	sys[0x15] = BdosHandler{Desc: "F_WRITE", Handler: SysCallWrite}
	sys[0x16] = BdosHandler{Desc: "F_MAKE", Handler: SysCallMakeFile}
	sys[0x17] = BdosHandler{Desc: "F_RENAME", Handler: SysCallRenameFile}
	sys[0x18] = BdosHandler{Desc: "DRV_LOGINVEC", Handler: SysCallLoginVec}
	sys[0x19] = BdosHandler{Desc: "DRV_GET", Handler: SysCallDriveGet}
	sys[0x1A] = BdosHandler{Desc: "F_DMAOFF", Handler: SysCallSetDMA}
	sys[0x20] = BdosHandler{Desc: "F_USERNUM", Handler: SysCallUserNumber}
	sys[0x21] = BdosHandler{Desc: "F_READRAND", Handler: SysCallReadRand}
	sys[0x22] = BdosHandler{Desc: "F_WRITERAND", Handler: SysCallWriteRand}

	//
	// Create and populate the BIOS vector table.
	//
	bios := make(map[uint8]BiosHandler)
	bios[0] = BiosHandler{Desc: "BOOT", Handler: BiosSysCallColdBoot}
	bios[1] = BiosHandler{Desc: "WBOOT", Handler: BiosSysCallWarmBoot}
	bios[2] = BiosHandler{Desc: "CONST", Handler: BiosSysCallConsoleStatus}
	bios[3] = BiosHandler{Desc: "CONIN", Handler: BiosSysCallConsoleInput}
	bios[4] = BiosHandler{Desc: "CONOUT", Handler: BiosSysCallConsoleOutput}
	bios[5] = BiosHandler{Desc: "LIST", Handler: BiosSysCallList}

	tmp := &CPM{
		Logger:      logger,
		Syscalls:    sys,
		BiosVectors: bios,
		dma:         DefaultDMAAddress,
		start:       TPAEntryPoint,
		biosBase:    DefaultBiosAddress,
		files:       make(map[uint16]fileHandle),
		nextHandle:  1,
	}

	for _, option := range options {
		err := option(tmp)
		if err != nil {
			return nil, err
		}
	}

	// Default console devices.
	var err error
	if tmp.input == nil {
		tmp.input, err = consolein.New("term")
		if err != nil {
			return nil, err
		}
	}
	if tmp.output == nil {
		tmp.output, err = consoleout.New("ansi")
		if err != nil {
			return nil, err
		}
	}

	// An expensive per-instruction trace is only useful, and only
	// produced, when we're logging at debug level.
	tmp.trace = logger.Enabled(context.Background(), slog.LevelDebug)

	return tmp, nil
}

// Cleanup closes any open file handles, and resets the console.
func (cpm *CPM) Cleanup() {
	for id, obj := range cpm.files {
		cpm.Logger.Debug("closing leftover file handle",
			slog.String("path", obj.name),
			slog.Int("handle", int(id)))
		obj.handle.Close()
	}
	cpm.files = make(map[uint16]fileHandle)

	cpm.closeFinder()

	if cpm.input != nil {
		_ = cpm.input.TearDown()
	}
}

// bdosEntry is the address, inside the BIOS region, which the jump at
// 0x0005 points to.  Programs compute the top of the TPA by reading
// the word at 0x0006, so this wants to be as high as possible.
func (cpm *CPM) bdosEntry() uint16 {
	return cpm.biosBase + biosEntries*3
}

// LoadBinary loads the given CP/M binary at the transient-program
// address of 0x0100, where it can then be launched by Execute.
func (cpm *CPM) LoadBinary(filename string) error {

	if cpm.Memory == nil {
		cpm.Memory = new(memory.Memory)
	}

	err := cpm.Memory.LoadFile(TPAEntryPoint, filename)
	if err != nil {
		return fmt.Errorf("failed to load %s: %s", filename, err)
	}

	cpm.start = TPAEntryPoint
	cpm.fixupRAM()

	return nil
}

// LoadSystemImage loads a CP/M system image, such as CPM.SYS, at the
// relocated system address, to be cold-booted by Execute.
func (cpm *CPM) LoadSystemImage(filename string) error {

	if cpm.Memory == nil {
		cpm.Memory = new(memory.Memory)
	}

	err := cpm.Memory.LoadFile(SystemEntryPoint, filename)
	if err != nil {
		return fmt.Errorf("failed to load %s: %s", filename, err)
	}

	cpm.start = SystemEntryPoint
	cpm.fixupRAM()

	return nil
}

// fixupRAM seeds the reserved page-zero locations and builds the
// BIOS jump table.
//
// Each of the seventeen BIOS slots holds a JP to its own address:
// executing one would loop forever, but the dispatch loop traps the
// program counter before the jump is ever stepped, so the slots only
// need to be recognisable.
func (cpm *CPM) fixupRAM() {

	// JP to the warm-boot vector.
	cpm.Memory.Set(0x0000, 0xC3)
	cpm.Memory.SetU16(0x0001, cpm.biosBase+3)

	// IOBYTE, and the current drive/user byte.
	cpm.Memory.Set(0x0003, 0x00)
	cpm.Memory.Set(0x0004, 0x00)

	// JP to the BDOS entry, which lives just past the jump table.
	cpm.Memory.Set(0x0005, 0xC3)
	cpm.Memory.SetU16(0x0006, cpm.bdosEntry())

	// The BIOS jump table proper.
	for i := uint16(0); i < biosEntries; i++ {
		slot := cpm.biosBase + i*3
		cpm.Memory.Set(slot, 0xC3)
		cpm.Memory.SetU16(slot+1, slot)
	}
}

// setupArguments populates the default FCBs at 0x005C/0x006C and the
// command-tail at the DMA area, from the given command-line
// arguments.
func (cpm *CPM) setupArguments(args []string) {

	// DMA area / CLI args: empty by default.
	cpm.Memory.Set(0x0080, 0x00)
	cpm.Memory.FillRange(0x0081, 127, 0x00)

	// FCB1 + FCB2: default drive, spaces for names.
	cpm.Memory.Set(0x005C, 0x00)
	cpm.Memory.FillRange(0x005C+1, 11, ' ')
	cpm.Memory.Set(0x006C, 0x00)
	cpm.Memory.FillRange(0x006C+1, 11, ' ')

	if len(args) > 0 {
		x := fcb.FromString(args[0])
		cpm.Memory.SetRange(0x005C, x.AsBytes()...)
	}
	if len(args) > 1 {
		x := fcb.FromString(args[1])
		cpm.Memory.SetRange(0x006C, x.AsBytes()...)
	}

	// The whole tail is stored as a length-prefixed string.
	cli := strings.TrimSpace(strings.ToUpper(strings.Join(args, " ")))
	if len(cli) > 127 {
		cli = cli[:127]
	}
	if len(cli) > 0 {
		cpm.Memory.Set(0x0080, uint8(len(cli)))
		cpm.Memory.SetRange(0x0081, []uint8(cli)...)
	}
}

// Execute runs the loaded binary, with the specified arguments.
//
// The function will not return until the guest terminates: a nil
// return means a clean exit via a jump to 0x0000, ErrExit means the
// guest called P_TERMCPM, ErrBoot means a BIOS (warm-)boot was
// requested, and anything else is fatal.
func (cpm *CPM) Execute(args []string) error {

	// Reset any cached file handles; this matters when we're
	// re-run after a warm boot.
	for _, obj := range cpm.files {
		obj.handle.Close()
	}
	cpm.files = make(map[uint16]fileHandle)
	cpm.closeFinder()

	// Create the CPU, pointing at our memory, with the program
	// counter at the entry-point and the stack just below the TPA.
	cpm.CPU = z80.New(cpm.Memory, cpm)
	cpm.CPU.PC = cpm.start
	cpm.CPU.SP = 0x0100
	cpm.CPU.BC.Lo = 0x00

	cpm.setupArguments(args)

	for {
		pc := cpm.CPU.PC

		// A jump to zero is the program exiting.
		if pc == 0x0000 {
			return nil
		}

		// The BDOS entry-point.
		if pc == 0x0005 {
			err := cpm.invokeBdos(cpm.CPU.BC.Lo)
			if err != nil {
				return err
			}
			cpm.returnFromTrap()
			continue
		}

		// A landing inside the BIOS jump table.
		if pc >= cpm.biosBase && pc < cpm.biosBase+biosEntries*3 {
			err := cpm.invokeBios(uint8((pc - cpm.biosBase) / 3))
			if err != nil {
				return err
			}
			cpm.returnFromTrap()
			continue
		}

		if cpm.trace {
			text, _ := z80.Disassemble(cpm.Memory, pc)
			cpm.Logger.Debug("trace",
				slog.String("pc", fmt.Sprintf("%04X", pc)),
				slog.String("instruction", text))
		}

		// Otherwise run a single instruction.
		_, err := cpm.CPU.Step()
		if err != nil {
			var unknown z80.UnknownOpcodeError
			if errors.As(err, &unknown) {
				text, _ := z80.Disassemble(cpm.Memory, unknown.PC)
				cpm.Logger.Error("unknown opcode",
					slog.String("pc", fmt.Sprintf("%04X", unknown.PC)),
					slog.String("bytes", fmt.Sprintf("% 02X", unknown.Bytes)),
					slog.String("instruction", text))
			}
			return err
		}

		// A HALT with interrupts disabled can never resume, and
		// we model no interrupt sources which could wake one
		// with them enabled either.
		if cpm.CPU.Halted {
			cpm.Logger.Error("HALT executed",
				slog.String("pc", fmt.Sprintf("%04X", cpm.CPU.PC)))
			return ErrHalt
		}
	}
}

// returnFromTrap pops the return address the guest's CALL pushed, so
// execution resumes at the instruction following the call.
func (cpm *CPM) returnFromTrap() {
	cpm.CPU.PC = cpm.Memory.GetU16(cpm.CPU.SP)
	cpm.CPU.SP += 2
}

// invokeBdos dispatches a BDOS call by function number.
func (cpm *CPM) invokeBdos(syscall uint8) error {

	// Any BDOS call other than F_SNEXT invalidates a directory
	// search in progress.
	if syscall != 0x12 {
		cpm.closeFinder()
	}

	handler, exists := cpm.Syscalls[syscall]
	if !exists {
		cpm.Logger.Error("unimplemented BDOS function",
			slog.Int("syscall", int(syscall)),
			slog.String("syscallHex", fmt.Sprintf("0x%02X", syscall)))
		return fmt.Errorf("%w: BDOS function 0x%02X", ErrUnimplemented, syscall)
	}

	cpm.Logger.Info("SysCall",
		slog.String("name", handler.Desc),
		slog.Int("syscall", int(syscall)),
		slog.String("syscallHex", fmt.Sprintf("0x%02X", syscall)))

	return handler.Handler(cpm)
}

// invokeBios dispatches a BIOS call by vector index.
func (cpm *CPM) invokeBios(vector uint8) error {

	// BIOS calls invalidate a directory search too.
	cpm.closeFinder()

	handler, exists := cpm.BiosVectors[vector]
	if !exists {
		cpm.Logger.Error("unimplemented BIOS function",
			slog.Int("vector", int(vector)))
		return fmt.Errorf("%w: BIOS function %d", ErrUnimplemented, vector)
	}

	cpm.Logger.Info("BiosCall",
		slog.String("name", handler.Desc),
		slog.Int("vector", int(vector)))

	return handler.Handler(cpm)
}

// returnCode stores a BDOS result: the word goes in HL, and the
// halves are mirrored into A and B as the return convention demands.
func (cpm *CPM) returnCode(val uint16) {
	cpm.CPU.HL.SetU16(val)
	cpm.CPU.AF.Hi = cpm.CPU.HL.Lo
	cpm.CPU.BC.Hi = cpm.CPU.HL.Hi
}

// drivePath maps a drive number, 0-15, to the host directory which
// backs it: a single-letter directory in the working directory.
func (cpm *CPM) drivePath(drive uint8) string {
	return string(rune('A' + drive))
}

// closeFinder discards the directory-search iterator, if one is
// active.
func (cpm *CPM) closeFinder() {
	if cpm.find != nil {
		cpm.find.dir.Close()
		cpm.find = nil
	}
}

// allocHandle stores the given host file in the handle pool and
// returns its identifier.
func (cpm *CPM) allocHandle(name string, file *os.File) uint16 {
	id := cpm.nextHandle
	cpm.nextHandle++
	if cpm.nextHandle == 0 {
		cpm.nextHandle = 1
	}
	cpm.files[id] = fileHandle{name: name, handle: file}
	return id
}

// checkDMA confirms a 128-byte record transfer at the current DMA
// address stays inside the address space.
func (cpm *CPM) checkDMA() error {
	if int(cpm.dma)+fcb.RecordSize > 0x10000 {
		return fmt.Errorf("DMA transfer at %04X would cross the top of memory", cpm.dma)
	}
	return nil
}

// In is called to handle the I/O reading of a Z80 port.
//
// This is called by our Z80 interpreter; we have no devices.
func (cpm *CPM) In(port uint8) uint8 {
	cpm.Logger.Debug("I/O IN",
		slog.Int("port", int(port)))

	return 0
}

// Out is called to handle the I/O writing to a Z80 port.
//
// This is called by our Z80 interpreter; we have no devices.
func (cpm *CPM) Out(port uint8, val uint8) {
	cpm.Logger.Debug("I/O OUT",
		slog.Int("port", int(port)),
		slog.Int("value", int(val)))
}
