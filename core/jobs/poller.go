package jobs

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Status is the result of a non-blocking status check.
type Status struct {
	// Exited is true if the process terminated, normally or by a signal.
	Exited bool
	// Code is the exit status, 128+N for a process killed by signal N.
	Code int
}

// Poller checks whether a child process has terminated without blocking. A
// process reported as exited has been reaped and must not be polled again.
type Poller interface {
	Poll(pid int) (Status, error)
}

// PollerFunc adapts a function to the Poller interface.
type PollerFunc func(pid int) (Status, error)

// Poll implements Poller.
func (f PollerFunc) Poll(pid int) (Status, error) {
	return f(pid)
}

var _ Poller = (PollerFunc)(nil)

// WaitPoller polls children of the current process with wait4(WNOHANG).
type WaitPoller struct{}

var _ Poller = WaitPoller{}

// Poll implements Poller.
func (WaitPoller) Poll(pid int) (Status, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return Status{}, fmt.Errorf("check status of %d: %w", pid, err)
		case wpid == 0:
			return Status{}, nil
		default:
			return Status{Exited: true, Code: ExitCode(ws)}, nil
		}
	}
}

// ExitCode converts a wait status into a shell style exit code.
func ExitCode(ws unix.WaitStatus) int {
	if ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ws.ExitStatus()
}
