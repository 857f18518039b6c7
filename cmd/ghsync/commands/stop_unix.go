//go:build unix

package commands

import (
	stderrors "errors"

	"golang.org/x/sys/unix"
)

var errProcessGone = stderrors.New("process does not exist")

// terminate sends SIGTERM; the daemon turns it into a graceful shutdown.
func terminate(pid int) error {
	err := unix.Kill(pid, unix.SIGTERM)
	if stderrors.Is(err, unix.ESRCH) {
		return errProcessGone
	}
	return err
}
