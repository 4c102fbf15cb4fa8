// Package rsmtypes defines the identity and message envelope contract
// shared by every RSM component.
package rsmtypes

import "fmt"

// Identity is a component instance's address: (node_id, cid, inst_id).
// It is value-typed, hashable, and totally ordered by its three fields.
type Identity struct {
	NodeID uint32
	Cid    uint32
	InstID int
}

func (id Identity) String() string {
	return fmt.Sprintf("(node_id=%d, cid=%d, inst_id=%d)", id.NodeID, id.Cid, id.InstID)
}

// Less gives Identity a total order, used only for deterministic test
// output and diagnostic listings.
func (id Identity) Less(other Identity) bool {
	if id.NodeID != other.NodeID {
		return id.NodeID < other.NodeID
	}
	if id.Cid != other.Cid {
		return id.Cid < other.Cid
	}
	return id.InstID < other.InstID
}

// TaskPriority is the six-level scheduling class a component declares at
// registration.
type TaskPriority int

const (
	PriorityLow TaskPriority = iota
	PriorityNormal
	PriorityHigh
	PriorityRealtime
	PriorityRealtimeHigh
	PriorityRealtimeHighest
)

// ComponentAttrs is the immutable descriptor recorded at registration
//.
type ComponentAttrs struct {
	Cid         uint32
	Name        string
	InstNum     int
	Qlen        int
	Priority    TaskPriority
	NeedInitAck bool
}
