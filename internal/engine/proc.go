package engine

import (
	"time"

	"golang.org/x/sys/unix"
)

// terminate walks the kill ladder against the child's process group:
// SIGTERM, a bounded wait for voluntary exit, then SIGKILL. Errors are
// ignored throughout; the group may already be gone, which is the goal.
func terminate(pgid int, exited <-chan struct{}, termWait time.Duration) {
	_ = unix.Kill(-pgid, unix.SIGTERM)
	select {
	case <-exited:
		return
	case <-time.After(termWait):
	}
	_ = unix.Kill(-pgid, unix.SIGKILL)
}
