//go:build !linux

package task

import "github.com/wang-russell/rsm/internal/rsmtypes"

// applyOSPriority is a no-op outside Linux. The POSIX scheduling
// policy table has no portable equivalent off Linux; the runtime still
// pins the task to its own OS thread via LockOSThread, it just runs at
// the default scheduling class.
func applyOSPriority(p rsmtypes.TaskPriority) error {
	return nil
}
