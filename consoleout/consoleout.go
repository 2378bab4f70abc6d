// Package consoleout is an abstraction over console output.
//
// The BDOS and BIOS console calls write single characters; where those
// characters go is a matter for a driver.  The default driver writes
// raw bytes to STDOUT, the "null" driver discards them, and the
// "logger" driver records them so tests can examine what a guest
// printed.  Drivers register themselves by name and are instantiated
// via a factory.
package consoleout

import (
	"fmt"
	"io"
	"strings"
)

// ConsoleDriver is the interface that must be implemented by anything
// that wishes to be used as a console output driver.
type ConsoleDriver interface {

	// PutCharacter will output the specified character to the
	// defined writer.
	PutCharacter(c uint8)

	// GetName will return the name of the driver.
	GetName() string

	// SetWriter will update the writer the driver sends output to.
	SetWriter(w io.Writer)
}

// ConsoleRecorder is an interface that allows returning the contents
// that have been previously sent to the console.
//
// This is used solely for testing.
type ConsoleRecorder interface {

	// GetOutput returns the contents which have been displayed.
	GetOutput() string
}

// Constructor is the signature of a constructor-function which is
// used to instantiate an instance of a driver.
type Constructor func() ConsoleDriver

// This is a map of known-drivers.
var handlers = struct {
	m map[string]Constructor
}{m: make(map[string]Constructor)}

// Register makes a console driver available, by name.
func Register(name string, obj Constructor) {
	// Downcase for consistency.
	name = strings.ToLower(name)

	handlers.m[name] = obj
}

// ConsoleOut holds our state, which is basically just a pointer to
// the object handling our output.
type ConsoleOut struct {

	// driver is the thing that actually writes our output.
	driver ConsoleDriver
}

// New is our constructor, it creates an output device which uses the
// specified driver.
func New(name string) (*ConsoleOut, error) {
	// Downcase for consistency.
	name = strings.ToLower(name)

	// Do we have a constructor with the given name?
	ctor, ok := handlers.m[name]
	if !ok {
		return nil, fmt.Errorf("failed to lookup console output driver by name '%s'", name)
	}

	return &ConsoleOut{
		driver: ctor(),
	}, nil
}

// GetDriver allows getting our driver at runtime.
func (co *ConsoleOut) GetDriver() ConsoleDriver {
	return co.driver
}

// GetName returns the name of our selected driver.
func (co *ConsoleOut) GetName() string {
	return co.driver.GetName()
}

// GetDrivers returns all available driver-names.
func (co *ConsoleOut) GetDrivers() []string {
	valid := []string{}

	for x := range handlers.m {
		valid = append(valid, x)
	}
	return valid
}

// PutCharacter outputs a character, using our selected driver.
func (co *ConsoleOut) PutCharacter(c uint8) {
	co.driver.PutCharacter(c)
}

// WriteString outputs every character of the given string.
func (co *ConsoleOut) WriteString(s string) {
	for _, c := range []byte(s) {
		co.driver.PutCharacter(c)
	}
}
