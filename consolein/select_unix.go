//go:build unix

package consolein

import (
	"golang.org/x/sys/unix"
)

// canSelect contains a platform-specific implementation of code that
// uses select to see whether STDIN has input pending, without
// consuming any of it.
func canSelect() bool {

	fds := &unix.FdSet{}
	fds.Set(stdinFd())

	// See if input is pending, for a while.
	tv := unix.Timeval{Usec: 200}

	nRead, err := unix.Select(stdinFd()+1, fds, nil, nil, &tv)
	if err != nil {
		return false
	}

	return nRead > 0
}
