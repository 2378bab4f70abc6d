// Package memory provides the 64k of RAM within which the emulator
// executes its programs.
//
// All addresses wrap at 64k; there is no protection and no banking.
package memory

import (
	"os"
)

// Memory provides a 64K byte array of memory.
type Memory struct {
	buf [65536]uint8
}

// Set sets a byte at addr of memory.
func (m *Memory) Set(addr uint16, value uint8) {
	m.buf[addr] = value
}

// Get returns a byte at addr of memory.
func (m *Memory) Get(addr uint16) uint8 {
	return m.buf[addr]
}

// GetU16 returns a word from the given address of memory,
// stored little-endian.
func (m *Memory) GetU16(addr uint16) uint16 {
	l := m.Get(addr)
	h := m.Get(addr + 1)
	return (uint16(h) << 8) | uint16(l)
}

// SetU16 stores a word at the given address of memory, little-endian.
func (m *Memory) SetU16(addr uint16, value uint16) {
	m.Set(addr, uint8(value&0xFF))
	m.Set(addr+1, uint8(value>>8))
}

// SetRange copies bytes from the given data to the specified
// starting address in RAM.
func (m *Memory) SetRange(addr uint16, data ...uint8) {
	for _, b := range data {
		m.buf[addr] = b
		addr++
	}
}

// FillRange fills an area of memory with the given byte.
func (m *Memory) FillRange(addr uint16, size int, char uint8) {
	for size > 0 {
		m.buf[addr] = char
		addr++
		size--
	}
}

// GetRange returns the contents of a given range.
func (m *Memory) GetRange(addr uint16, size int) []uint8 {
	var ret []uint8
	for size > 0 {
		ret = append(ret, m.buf[addr])
		addr++
		size--
	}
	return ret
}

// LoadFile loads a binary from the host filesystem at the given
// address, leaving the rest of RAM untouched.
func (m *Memory) LoadFile(addr uint16, name string) error {

	prog, err := os.ReadFile(name)
	if err != nil {
		return err
	}

	m.SetRange(addr, prog...)

	return nil
}
