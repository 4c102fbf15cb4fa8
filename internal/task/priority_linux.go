//go:build linux

package task

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/wang-russell/rsm/internal/rsmtypes"
)

// schedParam mirrors struct sched_param from <sched.h>; only
// sched_priority is used.
type schedParam struct {
	priority int32
}

const (
	schedOther = 0
	schedRR    = 2
)

// posixPolicy maps a task's declared priority class to its POSIX
// scheduling policy/priority pair.
func posixPolicy(p rsmtypes.TaskPriority) (policy int, prio int32) {
	switch p {
	case rsmtypes.PriorityLow:
		return schedOther, 0
	case rsmtypes.PriorityNormal:
		return schedOther, 50
	case rsmtypes.PriorityHigh:
		return schedOther, 80
	case rsmtypes.PriorityRealtime:
		return schedRR, 10
	case rsmtypes.PriorityRealtimeHigh:
		return schedRR, 50
	case rsmtypes.PriorityRealtimeHighest:
		return schedRR, 99
	default:
		return schedOther, 50
	}
}

// applyOSPriority sets the scheduling policy/priority of the calling OS
// thread. x/sys/unix has no sched_setscheduler wrapper, so this issues
// the raw syscall directly.
func applyOSPriority(p rsmtypes.TaskPriority) error {
	policy, prio := posixPolicy(p)
	param := schedParam{priority: prio}
	_, _, errno := syscall.Syscall(unix.SYS_SCHED_SETSCHEDULER,
		0, // pid=0 means calling thread
		uintptr(policy),
		uintptr(unsafe.Pointer(&param)))
	if errno != 0 {
		return errno
	}
	return nil
}
