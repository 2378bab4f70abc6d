// drv_file creates a console input-driver which reads and returns
// fake console input from a file.
//
// The intent is that this driver is useful for scripted automation,
// and for our own tests: the file named by $INPUT_FILE (default
// "input.txt") is replayed as if it had been typed.

package consolein

import (
	"os"
)

// FileInputName contains the name of this driver.
var FileInputName = "file"

// FileInput is an input-driver that returns fake "console input" by
// reading the content of a file.
type FileInput struct {

	// offset shows the offset into the buffer we're at.
	offset int

	// content contains the content of the input file, along with
	// any stuffed input appended.
	content []byte
}

// Setup reads the contents of the file specified by the environment
// variable $INPUT_FILE, and saves it away as a source of fake console
// input.  A missing file is not an error; it just means no input.
//
// This is part of the ConsoleInput interface.
func (fi *FileInput) Setup() error {

	fileName := os.Getenv("INPUT_FILE")
	if fileName == "" {
		fileName = "input.txt"
	}

	content, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	fi.content = content
	return nil
}

// TearDown is a NOP.
//
// This is part of the ConsoleInput interface.
func (fi *FileInput) TearDown() error {
	return nil
}

// StuffInput adds input to the end of our pending buffer.
//
// This is part of the ConsoleInput interface.
func (fi *FileInput) StuffInput(input string) {
	fi.content = append(fi.content, []byte(input)...)
}

// PendingInput returns true when unconsumed input remains.
//
// This is part of the ConsoleInput interface.
func (fi *FileInput) PendingInput() bool {
	return fi.offset < len(fi.content)
}

// BlockForCharacterNoEcho returns the next character of our canned
// input.  Once the input is exhausted every read returns Ctrl-C,
// which will eventually terminate most guests.
//
// This is part of the ConsoleInput interface.
func (fi *FileInput) BlockForCharacterNoEcho() (uint8, error) {
	if fi.offset >= len(fi.content) {
		return 0x03, nil
	}

	c := fi.content[fi.offset]
	fi.offset++
	return c, nil
}

// GetName returns the name of this driver, "file".
//
// This is part of the ConsoleInput interface.
func (fi *FileInput) GetName() string {
	return FileInputName
}

// init registers our driver, by name.
func init() {
	Register(FileInputName, func() ConsoleInput {
		return &FileInput{}
	})
}
