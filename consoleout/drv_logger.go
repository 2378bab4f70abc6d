// drv_logger records all output in memory, where a test can fetch it
// back via the ConsoleRecorder interface.

package consoleout

import (
	"io"
)

// OutputLoggingDriver holds our state.
type OutputLoggingDriver struct {

	// writer is unused; output is captured, not written.
	writer io.Writer

	// history stores everything which has been output.
	history string
}

// GetName returns the name of this driver.
//
// This is part of the ConsoleDriver interface.
func (ol *OutputLoggingDriver) GetName() string {
	return "logger"
}

// PutCharacter appends the given character to our history, rather
// than displaying it.
//
// This is part of the ConsoleDriver interface.
func (ol *OutputLoggingDriver) PutCharacter(c uint8) {
	ol.history += string(rune(c))
}

// SetWriter will update the writer.
func (ol *OutputLoggingDriver) SetWriter(w io.Writer) {
	ol.writer = w
}

// GetOutput returns our history.
//
// This is part of the ConsoleRecorder interface.
func (ol *OutputLoggingDriver) GetOutput() string {
	return ol.history
}

// init registers our driver, by name.
func init() {
	Register("logger", func() ConsoleDriver {
		return &OutputLoggingDriver{}
	})
}
