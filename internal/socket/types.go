// Package socket implements the global socket pool and the
// readiness-poll multiplexer thread: one dense table of OS file
// descriptors behind socket_id handles, and a single poller thread
// that owns every fd's readiness registration.
package socket

import (
	"net"

	"github.com/wang-russell/rsm/internal/rsmtypes"
)

// Kind is the socket's transport kind.
type Kind int

const (
	KindRaw Kind = iota
	KindDgram
	KindStream
)

// State is the socket lifecycle state.
type State int

const (
	StateInit State = iota
	StateBind
	StateListening
	StateConnecting
	StateConnected
)

// LBPolicy is the load-balance policy a TCP listener uses to assign an
// accepted connection to one instance of its owning component
//.
type LBPolicy int

const (
	LBAllInstance LBPolicy = iota
	LBCallerInstance
	LBExcludeCallerInstance
)

// Record describes one live entry in the pool's dense socket table
//.
type Record struct {
	SocketID    int32
	Kind        Kind
	State       State
	IsTCPServer bool
	LBPolicy    LBPolicy
	Owner       rsmtypes.Identity
	LocalAddr   net.Addr
	PeerAddr    net.Addr
}

// Event is the decoded body of a SOCKET-class envelope, matching
// interfaces.SocketEvent's wire shape (kept as a distinct type here so
// this package has no dependency on internal/interfaces).
type Event struct {
	SocketID int32
	Kind     int
	Mask     uint32
}

// Readiness mask bits (wire-stable).
const (
	EventRead  uint32 = 1
	EventWrite uint32 = 2
	EventNew   uint32 = 4
	EventErr   uint32 = 8
	EventClose uint32 = 16
)

// Sender delivers a normal-class message to an identity; satisfied by
// *registry.Registry in production.
type Sender interface {
	SendAsync(dst rsmtypes.Identity, msg rsmtypes.Envelope) error
}

// InstanceCounter answers how many instances a registered component
// has, needed by the LB-policy formulas in lb.go.
type InstanceCounter interface {
	InstanceCount(cid uint32) int
}
