// drv_null discards all output; useful when benchmarking a guest, or
// when the console output is uninteresting to a test.

package consoleout

import (
	"io"
)

// NullOutputDriver holds our state.
type NullOutputDriver struct {

	// writer is unused, but kept so SetWriter has something to do.
	writer io.Writer
}

// GetName returns the name of this driver.
//
// This is part of the ConsoleDriver interface.
func (no *NullOutputDriver) GetName() string {
	return "null"
}

// PutCharacter discards the given character.
//
// This is part of the ConsoleDriver interface.
func (no *NullOutputDriver) PutCharacter(c uint8) {
}

// SetWriter will update the writer.
func (no *NullOutputDriver) SetWriter(w io.Writer) {
	no.writer = w
}

// init registers our driver, by name.
func init() {
	Register("null", func() ConsoleDriver {
		return &NullOutputDriver{}
	})
}
