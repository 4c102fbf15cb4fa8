// Package interfaces provides internal interface definitions for rsm.
// These are separate from the public package to avoid circular imports
// between the root package and internal packages.
package interfaces

import "github.com/wang-russell/rsm/internal/rsmtypes"

// Runnable is the capability set every registered component's factory
// must return. A task owns exactly one Runnable for its
// entire lifetime and invokes its methods one at a time, never
// concurrently with itself.
type Runnable interface {
	OnInit(self rsmtypes.Identity)
	OnTimer(self rsmtypes.Identity, timerID int32, timerData uintptr)
	OnSocketEvent(self rsmtypes.Identity, event SocketEvent)
	OnMessage(self rsmtypes.Identity, msgID uint32, msg rsmtypes.Envelope)
	OnClose(self rsmtypes.Identity)
}

// SocketEvent is the decoded body of a SOCKET-class envelope.
type SocketEvent struct {
	SocketID int32
	Kind     int
	Mask     uint32
}

// Logger is the logging capability handed to internal packages that must
// not import the logging package directly, keeping the dependency
// direction one-way.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer collects per-task dispatch metrics. Implementations must be
// thread-safe: methods are called from each task's own dispatch loop
// concurrently with every other task's.
type Observer interface {
	ObserveDispatch(msgID uint32, latencyNs uint64)
	ObserveDrop(priority bool)
	ObserveTimerFire()
	ObserveQueueDepth(depth uint32)
}

// FactoryFunc builds one Runnable instance for a given task identity.
type FactoryFunc func(self rsmtypes.Identity) Runnable
