// drv_termbox uses the Termbox library to handle console-based input.
//
// A goroutine is launched which collects any keyboard input and saves
// that to a buffer where it can be peeled off on-demand.

package consolein

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nsf/termbox-go"
)

// TermboxInputName contains the name of this driver.
var TermboxInputName = "termbox"

// TermboxInput is an input-driver using termbox.
type TermboxInput struct {

	// Cancel holds a context which can be used to close our
	// polling goroutine.
	Cancel context.CancelFunc

	// stuffed holds fake input which has been forced into the
	// buffer.
	stuffed string

	// mu guards keyBuffer, which is appended to by the polling
	// goroutine.
	mu sync.Mutex

	// keyBuffer builds up keys read "in the background".
	keyBuffer []rune
}

// Setup initializes termbox and launches the keyboard poller.
//
// This is part of the ConsoleInput interface.
func (ti *TermboxInput) Setup() error {

	err := termbox.Init()
	if err != nil {
		return fmt.Errorf("error initializing termbox %s", err)
	}

	// This is "Show Cursor", which termbox hides by default.
	fmt.Printf("\x1b[?25h")

	// Allow our polling of the keyboard to be cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	ti.Cancel = cancel

	go ti.pollKeyboard(ctx)

	return nil
}

// pollKeyboard runs in a goroutine and collects keyboard input into a
// buffer where it will be read from in the future.
func (ti *TermboxInput) pollKeyboard(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch ev := termbox.PollEvent(); ev.Type {
		case termbox.EventKey:
			ti.mu.Lock()
			if ev.Ch != 0 {
				ti.keyBuffer = append(ti.keyBuffer, ev.Ch)
			} else {
				ti.keyBuffer = append(ti.keyBuffer, rune(ev.Key))
			}
			ti.mu.Unlock()
		}
	}
}

// TearDown cancels the poller and closes termbox.
//
// This is part of the ConsoleInput interface.
func (ti *TermboxInput) TearDown() error {
	if ti.Cancel != nil {
		ti.Cancel()
	}

	termbox.Close()
	return nil
}

// StuffInput inserts fake values into our input-buffer.
//
// This is part of the ConsoleInput interface.
func (ti *TermboxInput) StuffInput(input string) {
	ti.stuffed += input
}

// PendingInput returns true if there is pending input.
//
// This is part of the ConsoleInput interface.
func (ti *TermboxInput) PendingInput() bool {
	if len(ti.stuffed) > 0 {
		return true
	}

	ti.mu.Lock()
	defer ti.mu.Unlock()
	return len(ti.keyBuffer) > 0
}

// BlockForCharacterNoEcho returns the next character from the
// buffer the background poller fills.
//
// This is part of the ConsoleInput interface.
func (ti *TermboxInput) BlockForCharacterNoEcho() (uint8, error) {

	if len(ti.stuffed) > 0 {
		c := ti.stuffed[0]
		ti.stuffed = ti.stuffed[1:]
		return c, nil
	}

	for {
		ti.mu.Lock()
		if len(ti.keyBuffer) > 0 {
			c := ti.keyBuffer[0]
			ti.keyBuffer = ti.keyBuffer[1:]
			ti.mu.Unlock()
			return uint8(c), nil
		}
		ti.mu.Unlock()

		time.Sleep(5 * time.Millisecond)
	}
}

// GetName returns the name of this driver, "termbox".
//
// This is part of the ConsoleInput interface.
func (ti *TermboxInput) GetName() string {
	return TermboxInputName
}

// init registers our driver, by name.
func init() {
	Register(TermboxInputName, func() ConsoleInput {
		return &TermboxInput{}
	})
}
