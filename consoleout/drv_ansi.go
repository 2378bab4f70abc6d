// drv_ansi writes characters straight to STDOUT.
//
// CP/M programs largely assume a VT52/ANSI-ish terminal anyway, so
// passing bytes through unmolested is the right default on a modern
// terminal emulator.

package consoleout

import (
	"fmt"
	"io"
	"os"
)

// AnsiOutputDriver holds our state.
type AnsiOutputDriver struct {
	// writer is where we send our output.
	writer io.Writer
}

// GetName returns the name of this driver.
//
// This is part of the ConsoleDriver interface.
func (ad *AnsiOutputDriver) GetName() string {
	return "ansi"
}

// PutCharacter writes the specified character to the console.
//
// This is part of the ConsoleDriver interface.
func (ad *AnsiOutputDriver) PutCharacter(c uint8) {
	fmt.Fprintf(ad.writer, "%c", c)
}

// SetWriter will update the writer.
func (ad *AnsiOutputDriver) SetWriter(w io.Writer) {
	ad.writer = w
}

// init registers our driver, by name.
func init() {
	Register("ansi", func() ConsoleDriver {
		return &AnsiOutputDriver{
			writer: os.Stdout,
		}
	})
}
