package task

import "sync/atomic"

// Stats holds the per-task dispatch counters, readable at any time
// without locking.
type Stats struct {
	RecvMsg      atomic.Uint64
	RecvPrioMsg  atomic.Uint64
	DropMsg      atomic.Uint64
	DropPrioMsg  atomic.Uint64
	TimerEvCount atomic.Uint64
	CurMsgID     atomic.Uint32
	LastRunAt    atomic.Int64 // UnixNano
	LastRunUsec  atomic.Uint64
	CurRunUsec   atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats for diagnostics.
type Snapshot struct {
	RecvMsg      uint64
	RecvPrioMsg  uint64
	DropMsg      uint64
	DropPrioMsg  uint64
	TimerEvCount uint64
	CurMsgID     uint32
	LastRunAt    int64
	LastRunUsec  uint64
	CurRunUsec   uint64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		RecvMsg:      s.RecvMsg.Load(),
		RecvPrioMsg:  s.RecvPrioMsg.Load(),
		DropMsg:      s.DropMsg.Load(),
		DropPrioMsg:  s.DropPrioMsg.Load(),
		TimerEvCount: s.TimerEvCount.Load(),
		CurMsgID:     s.CurMsgID.Load(),
		LastRunAt:    s.LastRunAt.Load(),
		LastRunUsec:  s.LastRunUsec.Load(),
		CurRunUsec:   s.CurRunUsec.Load(),
	}
}

func (s *Stats) Clear() {
	s.RecvMsg.Store(0)
	s.RecvPrioMsg.Store(0)
	s.DropMsg.Store(0)
	s.DropPrioMsg.Store(0)
	s.TimerEvCount.Store(0)
	s.CurMsgID.Store(0)
	s.LastRunAt.Store(0)
	s.LastRunUsec.Store(0)
	s.CurRunUsec.Store(0)
}
