//go:build !unix

package commands

import (
	stderrors "errors"
	"os"
)

var errProcessGone = stderrors.New("process does not exist")

// terminate kills the process; there is no SIGTERM to deliver here.
func terminate(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return errProcessGone
	}
	if err := p.Kill(); err != nil {
		if stderrors.Is(err, os.ErrProcessDone) {
			return errProcessGone
		}
		return err
	}
	return nil
}
