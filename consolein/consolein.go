// Package consolein handles the reading of console input for our
// emulator.
//
// The package supports the minimum required functionality we need -
// which boils down to reading a single character of input, polling
// for the availability of input without consuming it, and reading a
// line of text.
//
// Several drivers are available: the default reads STDIN directly via
// raw terminal mode, a termbox-based driver polls the keyboard in the
// background, and a file driver replays scripted input for testing
// and automation.  Note that no output functions are handled by this
// package, it is exclusively used for input.
package consolein

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInterrupted is returned by ReadLine when the user cancels input
// with Ctrl-C.
var ErrInterrupted = errors.New("INTERRUPTED")

// ConsoleInput is the interface that must be implemented by anything
// that wishes to be used as a console input driver.
type ConsoleInput interface {

	// Setup performs any one-time initialization the driver needs.
	Setup() error

	// TearDown undoes whatever Setup did.
	TearDown() error

	// StuffInput inserts fake input into the driver, to be
	// returned ahead of anything read for real.
	StuffInput(input string)

	// PendingInput reports whether at least one character of
	// input is available, without consuming it.
	PendingInput() bool

	// BlockForCharacterNoEcho waits for, and returns, one
	// character of input, without echoing it.
	BlockForCharacterNoEcho() (uint8, error)

	// GetName will return the name of the driver.
	GetName() string
}

// Constructor is the signature of a constructor-function which is
// used to instantiate an instance of a driver.
type Constructor func() ConsoleInput

// This is a map of known-drivers.
var handlers = struct {
	m map[string]Constructor
}{m: make(map[string]Constructor)}

// Register makes a console input driver available, by name.
func Register(name string, obj Constructor) {
	name = strings.ToLower(name)

	handlers.m[name] = obj
}

// ConsoleIn holds our state: the driver doing the actual reading.
type ConsoleIn struct {

	// driver is the thing that actually reads our input.
	driver ConsoleInput
}

// New is our constructor, it creates an input device which uses the
// specified driver.
func New(name string) (*ConsoleIn, error) {
	name = strings.ToLower(name)

	ctor, ok := handlers.m[name]
	if !ok {
		return nil, fmt.Errorf("failed to lookup console input driver by name '%s'", name)
	}

	obj := ctor()
	err := obj.Setup()
	if err != nil {
		return nil, fmt.Errorf("error setting up console input driver %s: %s", name, err)
	}

	return &ConsoleIn{
		driver: obj,
	}, nil
}

// GetDriver allows getting our driver at runtime.
func (ci *ConsoleIn) GetDriver() ConsoleInput {
	return ci.driver
}

// GetName returns the name of our selected driver.
func (ci *ConsoleIn) GetName() string {
	return ci.driver.GetName()
}

// TearDown resets the console, and should be called when the emulator
// is terminating.
func (ci *ConsoleIn) TearDown() error {
	return ci.driver.TearDown()
}

// StuffInput inserts fake input, which will be consumed before any
// real keyboard input.
func (ci *ConsoleIn) StuffInput(input string) {
	ci.driver.StuffInput(input)
}

// PendingInput reports whether input is available without consuming
// it; this is the peek half of the peek-and-putback polling the
// C_STAT and CONST calls require.
func (ci *ConsoleIn) PendingInput() bool {
	return ci.driver.PendingInput()
}

// BlockForCharacterNoEcho waits for a single character of input and
// returns it without echoing it.
func (ci *ConsoleIn) BlockForCharacterNoEcho() (uint8, error) {
	return ci.driver.BlockForCharacterNoEcho()
}

// BlockForCharacterWithEcho waits for a single character of input,
// echoes it to STDOUT, and returns it.
func (ci *ConsoleIn) BlockForCharacterWithEcho() (uint8, error) {
	c, err := ci.driver.BlockForCharacterNoEcho()
	if err != nil {
		return 0x00, err
	}

	fmt.Printf("%c", c)
	return c, nil
}

// ReadLine reads a line of input from the console, truncating to the
// length specified.  (The user can enter more than is allowed but no
// buffer-overruns will occur!)
//
// The delete/backspace key works as expected, and Ctrl-C aborts input
// with ErrInterrupted.
func (ci *ConsoleIn) ReadLine(max uint8) (string, error) {

	text := ""

	for {
		c, err := ci.driver.BlockForCharacterNoEcho()
		if err != nil {
			return "", err
		}

		switch c {
		case 0x03: // Ctrl-C
			return "", ErrInterrupted

		case '\r', '\n':
			return text, nil

		case 0x08, 0x7F: // backspace / delete
			if len(text) > 0 {
				text = text[:len(text)-1]
				// erase the character on-screen too
				fmt.Printf("\b \b")
			}

		default:
			if len(text) < int(max) {
				text += string(rune(c))
				fmt.Printf("%c", c)
			}
		}
	}
}

// stdinFd is a tiny helper, used by the drivers which poll STDIN.
func stdinFd() int {
	return int(os.Stdin.Fd())
}
