// Package task implements the task: one OS thread, one queue, one
// user callback object, and the dispatch loop that drains the queue
// and routes each envelope to the right callback.
package task

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wang-russell/rsm/internal/constants"
	"github.com/wang-russell/rsm/internal/interfaces"
	"github.com/wang-russell/rsm/internal/queue"
	"github.com/wang-russell/rsm/internal/rsmtypes"
)

// State is the task lifecycle state machine.
type State int

const (
	StateCreated State = iota
	StateInitializing
	StateRunning
	StateTerminating
	StateTerminated
)

// Config configures a single task at creation time, before Start.
type Config struct {
	Self        rsmtypes.Identity
	Qlen        int
	Priority    rsmtypes.TaskPriority
	Runnable    interfaces.Runnable
	Logger      interfaces.Logger
	Observer    interfaces.Observer
	CPUAffinity []int
	// OnThreadStart is invoked once, from the pinned dispatch goroutine,
	// after LockOSThread and before on_init. It lets the registry record
	// the OS-thread-id -> identity binding backing get_self_cid().
	OnThreadStart func(tid int32, self rsmtypes.Identity)
}

// Task owns one OS thread, one bounded priority queue, and one Runnable
// for the lifetime of the process.
type Task struct {
	cfg   Config
	queue *queue.Bounded[rsmtypes.Envelope]
	stats Stats

	ctx    context.Context
	cancel context.CancelFunc

	state State
	// currentSender is written only by this task's own goroutine, right
	// before invoking a callback, and read only by that same goroutine
	// (GetSenderCid is called from inside the callback) -- single
	// writer, no lock needed.
	currentSender rsmtypes.Identity
	hasSender     bool
}

// New creates a task with its bounded queue sized to cfg.Qlen.
func New(ctx context.Context, cfg Config) *Task {
	ctx, cancel := context.WithCancel(ctx)
	return &Task{
		cfg:    cfg,
		queue:  queue.NewBounded[rsmtypes.Envelope](cfg.Qlen),
		ctx:    ctx,
		cancel: cancel,
		state:  StateCreated,
	}
}

// Identity returns the task's own identity.
func (t *Task) Identity() rsmtypes.Identity { return t.cfg.Self }

// Stats returns the task's live counters.
func (t *Task) Stats() *Stats { return &t.stats }

// State returns the current lifecycle state.
func (t *Task) State() State { return t.state }

// Enqueue pushes a normal-class envelope. Returns false (and counts a
// drop) if the queue is full.
func (t *Task) Enqueue(e rsmtypes.Envelope) bool {
	ok := t.queue.PushBack(e)
	if ok {
		t.stats.RecvMsg.Add(1)
		if t.cfg.Observer != nil {
			t.cfg.Observer.ObserveQueueDepth(uint32(t.queue.Len()))
		}
		t.queue.Notify()
	} else {
		t.stats.DropMsg.Add(1)
		if t.cfg.Observer != nil {
			t.cfg.Observer.ObserveDrop(false)
		}
	}
	return ok
}

// EnqueuePriority pushes a high-priority envelope.
func (t *Task) EnqueuePriority(e rsmtypes.Envelope) bool {
	ok := t.queue.PushFront(e)
	if ok {
		t.stats.RecvPrioMsg.Add(1)
		if t.cfg.Observer != nil {
			t.cfg.Observer.ObserveQueueDepth(uint32(t.queue.Len()))
		}
		t.queue.Notify()
	} else {
		t.stats.DropPrioMsg.Add(1)
		if t.cfg.Observer != nil {
			t.cfg.Observer.ObserveDrop(true)
		}
	}
	return ok
}

// Dequeue pops the next envelope directly, bypassing the dispatch loop.
// Exercised by registry tests to assert enqueue ordering without
// spinning up a Runnable.
func (t *Task) Dequeue() (rsmtypes.Envelope, bool) {
	return t.queue.PopFront()
}

// CurrentSender returns the sender of the message presently being
// dispatched, or the zero Identity with ok=false outside a dispatch.
func (t *Task) CurrentSender() (rsmtypes.Identity, bool) {
	return t.currentSender, t.hasSender
}

// Start spawns the task's dedicated OS thread and runs the dispatch
// loop. Start returns immediately; the loop runs until POWER_OFF is
// dispatched or the context is cancelled.
func (t *Task) Start() {
	go t.dispatchLoop()
}

// Stop cancels the task's context and wakes the dispatch loop so it
// observes the cancellation even when the queue is empty.
func (t *Task) Stop() {
	t.cancel()
	t.queue.Notify()
}

func (t *Task) dispatchLoop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if len(t.cfg.CPUAffinity) > 0 {
		idx := t.cfg.CPUAffinity[t.cfg.Self.InstID%len(t.cfg.CPUAffinity)]
		var mask unix.CPUSet
		mask.Set(idx)
		if err := unix.SchedSetaffinity(0, &mask); err != nil && t.cfg.Logger != nil {
			t.cfg.Logger.Printf("task %s: failed to set CPU affinity to %d: %v", t.cfg.Self, idx, err)
		}
	}

	if err := applyOSPriority(t.cfg.Priority); err != nil && t.cfg.Logger != nil {
		t.cfg.Logger.Printf("task %s: failed to apply OS priority: %v", t.cfg.Self, err)
	}

	if t.cfg.OnThreadStart != nil {
		t.cfg.OnThreadStart(int32(unix.Gettid()), t.cfg.Self)
	}

	t.state = StateInitializing
	t.cfg.Runnable.OnInit(t.cfg.Self)
	t.state = StateRunning

	terminated := false
	for !terminated {
		select {
		case <-t.ctx.Done():
			terminated = true
			continue
		default:
		}

		t.queue.Wait()

		for {
			select {
			case <-t.ctx.Done():
				terminated = true
			default:
			}
			if terminated {
				break
			}

			env, ok := t.queue.PopFront()
			if !ok {
				break
			}
			t.dispatch(env)
			if t.state == StateTerminating {
				terminated = true
				break
			}
		}
	}

	t.state = StateTerminating
	t.cfg.Runnable.OnClose(t.cfg.Self)
	t.state = StateTerminated
}

// dispatch invokes the callback for one envelope. A panic inside the
// callback is contained here and does not take down the task's thread.
func (t *Task) dispatch(env rsmtypes.Envelope) {
	t.stats.CurMsgID.Store(env.MsgID)
	t.currentSender = env.SenderCid
	t.hasSender = true
	start := time.Now()

	defer func() {
		if r := recover(); r != nil && t.cfg.Logger != nil {
			t.cfg.Logger.Printf("task %s: callback panicked on msg_id %d: %v", t.cfg.Self, env.MsgID, r)
		}
		elapsed := uint64(time.Since(start).Microseconds())
		t.stats.CurMsgID.Store(constants.InvalidMessageID)
		t.stats.LastRunAt.Store(start.UnixNano())
		t.stats.LastRunUsec.Store(elapsed)
		t.stats.CurRunUsec.Store(elapsed)
		t.hasSender = false

		if t.cfg.Observer != nil {
			t.cfg.Observer.ObserveDispatch(env.MsgID, elapsed*1000)
		}
	}()

	switch env.MsgID {
	case constants.MsgIDTimer:
		t.stats.TimerEvCount.Add(1)
		if t.cfg.Observer != nil {
			t.cfg.Observer.ObserveTimerFire()
		}
		t.cfg.Runnable.OnTimer(t.cfg.Self, env.TimerID, env.TimerData)
	case constants.MsgIDSocket:
		event, err := rsmtypes.Decode[interfaces.SocketEvent](env)
		if err == nil {
			t.cfg.Runnable.OnSocketEvent(t.cfg.Self, event)
		}
	case constants.MsgIDMasterPowerOn, constants.MsgIDSlavePowerOn:
		t.cfg.Runnable.OnInit(t.cfg.Self)
	case constants.MsgIDPowerOff:
		t.cfg.Runnable.OnClose(t.cfg.Self)
		t.state = StateTerminating
	default:
		t.cfg.Runnable.OnMessage(t.cfg.Self, env.MsgID, env)
	}
}
