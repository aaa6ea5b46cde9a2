package jobs

import (
	"errors"

	"golang.org/x/sys/unix"
)

// WaitFunc performs a non-blocking status check on a child process.
//
// It returns exited=false while the process is still running. Once the
// process has terminated it returns exited=true and the exit status, after
// which the process no longer exists and must not be checked again.
type WaitFunc func(pid int) (status int, exited bool, err error)

// ErrNotChild is returned by WaitNoHang if the pid isn't a child of this
// process (or has already been collected by someone else).
var ErrNotChild = errors.New("no such child process")

// WaitNoHang is the WaitFunc backed by wait4(2) with WNOHANG. A zero pid from
// the kernel means the child is still running; the child's pid means it has
// exited.
func WaitNoHang(pid int) (int, bool, error) {
	for {
		var ws unix.WaitStatus
		wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.ECHILD:
			return 0, false, ErrNotChild
		case err != nil:
			return 0, false, err
		case wpid == 0:
			return 0, false, nil
		default:
			return ExitCode(ws), true, nil
		}
	}
}

// ExitCode converts a wait status into a shell style exit code: the exit
// status for normal termination and 128+N for a process killed by signal N.
func ExitCode(ws unix.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return 128 + int(ws.Signal())
	default:
		return -1
	}
}
