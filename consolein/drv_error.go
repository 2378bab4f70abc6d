// drv_error is a console input-driver which only returns errors.
//
// This driver is only used for testing purposes.

package consolein

import "fmt"

// ErrorInputName contains the name of this driver.
var ErrorInputName = "error"

// ErrorInput is an input-driver that only returns errors, and is used
// for testing.
type ErrorInput struct {
}

// Setup is a NOP.
func (ei *ErrorInput) Setup() error {
	return nil
}

// TearDown is a NOP.
func (ei *ErrorInput) TearDown() error {
	return nil
}

// StuffInput is a NOP.
func (ei *ErrorInput) StuffInput(input string) {
}

// PendingInput always pretends input is pending.
//
// However when input is read, via BlockForCharacterNoEcho, an error
// will always be returned.
func (ei *ErrorInput) PendingInput() bool {
	return true
}

// BlockForCharacterNoEcho returns an error, always.
func (ei *ErrorInput) BlockForCharacterNoEcho() (uint8, error) {
	return 0x00, fmt.Errorf("ErrorInput: always fails")
}

// GetName returns the name of this driver, "error".
func (ei *ErrorInput) GetName() string {
	return ErrorInputName
}

// init registers our driver, by name.
func init() {
	Register(ErrorInputName, func() ConsoleInput {
		return &ErrorInput{}
	})
}
