// drv_term is the default console input-driver: it switches STDIN
// into raw mode around each single-byte read, so a keypress is
// delivered immediately rather than after RETURN.

package consolein

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// TermInputName contains the name of this driver.
var TermInputName = "term"

// TermInput is an input-driver which reads STDIN in raw mode.
type TermInput struct {

	// stuffed holds fake input which will be returned ahead of
	// anything read from the keyboard.
	stuffed string
}

// Setup is a NOP; the terminal state is toggled per-read.
//
// This is part of the ConsoleInput interface.
func (ti *TermInput) Setup() error {
	return nil
}

// TearDown is a NOP.
//
// This is part of the ConsoleInput interface.
func (ti *TermInput) TearDown() error {
	return nil
}

// StuffInput inserts fake input into our buffer.
//
// This is part of the ConsoleInput interface.
func (ti *TermInput) StuffInput(input string) {
	ti.stuffed += input
}

// PendingInput reports whether input is available, without consuming
// any of it, using select upon STDIN.
//
// This is part of the ConsoleInput interface.
func (ti *TermInput) PendingInput() bool {
	if len(ti.stuffed) > 0 {
		return true
	}

	return canSelect()
}

// BlockForCharacterNoEcho returns the next character from the
// console, blocking until one is available.
//
// This is part of the ConsoleInput interface.
func (ti *TermInput) BlockForCharacterNoEcho() (uint8, error) {

	// Stuffed input gets consumed first.
	if len(ti.stuffed) > 0 {
		c := ti.stuffed[0]
		ti.stuffed = ti.stuffed[1:]
		return c, nil
	}

	// switch stdin into 'raw' mode
	oldState, err := term.MakeRaw(stdinFd())
	if err != nil {
		return 0x00, fmt.Errorf("error making raw terminal %s", err)
	}

	// read only a single byte
	b := make([]byte, 1)
	_, err = os.Stdin.Read(b)
	if err != nil {
		return 0x00, fmt.Errorf("error reading a byte from stdin %s", err)
	}

	// restore the state of the terminal to avoid mixing RAW/Cooked
	err = term.Restore(stdinFd(), oldState)
	if err != nil {
		return 0x00, fmt.Errorf("error restoring terminal state %s", err)
	}

	return b[0], nil
}

// GetName returns the name of this driver, "term".
//
// This is part of the ConsoleInput interface.
func (ti *TermInput) GetName() string {
	return TermInputName
}

// init registers our driver, by name.
func init() {
	Register(TermInputName, func() ConsoleInput {
		return &TermInput{}
	})
}
