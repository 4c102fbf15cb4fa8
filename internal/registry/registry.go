// Package registry implements the component registry and scheduler.
// It stores component descriptors and task records before start, spawns
// one OS thread per task at start, and routes messages by identity
// thereafter.
package registry

import (
	"context"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/wang-russell/rsm/internal/constants"
	"github.com/wang-russell/rsm/internal/interfaces"
	"github.com/wang-russell/rsm/internal/rsmerrors"
	"github.com/wang-russell/rsm/internal/rsmtypes"
	"github.com/wang-russell/rsm/internal/task"
)

// Descriptor is the immutable component descriptor recorded at
// registration.
type Descriptor struct {
	Cid         uint32
	Name        string
	InstNum     int
	Qlen        int
	Priority    rsmtypes.TaskPriority
	NeedInitAck bool
}

// Registry owns the cid->descriptor table, the identity->task table,
// and the OS-thread-id->identity table. The first two are mutable only
// before Start and read-mostly after; the thread table gets one entry
// as each task's thread starts.
type Registry struct {
	mu          sync.RWMutex
	started     bool
	nodeID      uint32
	descriptors map[uint32]Descriptor
	tasks       map[rsmtypes.Identity]*task.Task
	threadIDs   sync.Map // int32(tid) -> rsmtypes.Identity
	logger      interfaces.Logger
	observer    interfaces.Observer
}

// New creates an empty, pre-start registry.
func New(nodeID uint32, logger interfaces.Logger, observer interfaces.Observer) *Registry {
	return &Registry{
		nodeID:      nodeID,
		descriptors: make(map[uint32]Descriptor),
		tasks:       make(map[rsmtypes.Identity]*task.Task),
		logger:      logger,
		observer:    observer,
	}
}

// RegisterComponent allocates inst_num task records for cid, invoking
// factory once per instance to obtain its Runnable. Must be called
// before Start.
func (r *Registry) RegisterComponent(cid uint32, d Descriptor, factory func(rsmtypes.Identity) interfaces.Runnable) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return rsmerrors.NewComponentError("register_component", cid, rsmerrors.InvalidState, "registry already started")
	}
	if cid == 0 {
		return rsmerrors.NewComponentError("register_component", cid, rsmerrors.InvalidParam, "cid must be nonzero")
	}
	if _, exists := r.descriptors[cid]; exists {
		return rsmerrors.NewComponentError("register_component", cid, rsmerrors.AlreadyExist, "cid already registered")
	}
	if d.InstNum < 1 {
		return rsmerrors.NewComponentError("register_component", cid, rsmerrors.InvalidParam, "inst_num must be >= 1")
	}
	if d.Qlen > constants.MaxQueueLen {
		return rsmerrors.NewComponentError("register_component", cid, rsmerrors.InvalidParam, "qlen exceeds maximum")
	}

	d.Cid = cid
	r.descriptors[cid] = d

	ctx := context.Background()
	for inst := 1; inst <= d.InstNum; inst++ {
		id := rsmtypes.Identity{NodeID: r.nodeID, Cid: cid, InstID: inst}
		runnable := factory(id)
		t := task.New(ctx, task.Config{
			Self:          id,
			Qlen:          d.Qlen,
			Priority:      d.Priority,
			Runnable:      runnable,
			Logger:        r.logger,
			Observer:      r.observer,
			OnThreadStart: r.bindThread,
		})
		r.tasks[id] = t
	}
	return nil
}

// Start spawns one OS thread per registered task. It may be called
// only once.
func (r *Registry) Start() error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return rsmerrors.New("start", rsmerrors.InvalidState, "registry already started")
	}
	r.started = true
	tasks := make([]*task.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, t)
	}
	r.mu.Unlock()

	for _, t := range tasks {
		t.Start()
	}
	return nil
}

// Shutdown stops every task's dispatch loop. It does not wait for the
// underlying OS threads to exit.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tasks {
		t.Stop()
	}
}

func (r *Registry) bindThread(tid int32, self rsmtypes.Identity) {
	r.threadIDs.Store(tid, self)
}

// GetSelfCid returns the identity bound to the calling OS thread. It
// must be called from inside a task's dispatch loop.
func (r *Registry) GetSelfCid() (rsmtypes.Identity, bool) {
	v, ok := r.threadIDs.Load(int32(unix.Gettid()))
	if !ok {
		return rsmtypes.Identity{}, false
	}
	return v.(rsmtypes.Identity), true
}

// Lookup returns the task bound to id, if any. A zero NodeID addresses
// the local node; node_id is reserved for future multi-node addressing.
func (r *Registry) Lookup(id rsmtypes.Identity) (*task.Task, bool) {
	if id.NodeID == 0 {
		id.NodeID = r.nodeID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

// Descriptor returns the registered descriptor for cid, if any.
func (r *Registry) Descriptor(cid uint32) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[cid]
	return d, ok
}

// InstanceCount returns the number of instances registered for cid, or
// 0 if cid is unknown.
func (r *Registry) InstanceCount(cid uint32) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.descriptors[cid].InstNum
}

// SendAsync enqueues msg on dst's normal-class queue.
func (r *Registry) SendAsync(dst rsmtypes.Identity, msg rsmtypes.Envelope) error {
	t, ok := r.Lookup(dst)
	if !ok {
		return rsmerrors.NewTaskError("send_asyn_msg", dst.Cid, dst.InstID, rsmerrors.NotFound, "no such task")
	}
	if !t.Enqueue(msg) {
		return rsmerrors.NewTaskError("send_asyn_msg", dst.Cid, dst.InstID, rsmerrors.OutOfMem, "queue full")
	}
	return nil
}

// SendAsyncPriority enqueues msg on dst's high-priority queue.
func (r *Registry) SendAsyncPriority(dst rsmtypes.Identity, msg rsmtypes.Envelope) error {
	t, ok := r.Lookup(dst)
	if !ok {
		return rsmerrors.NewTaskError("send_asyn_priority_msg", dst.Cid, dst.InstID, rsmerrors.NotFound, "no such task")
	}
	if !t.EnqueuePriority(msg) {
		return rsmerrors.NewTaskError("send_asyn_priority_msg", dst.Cid, dst.InstID, rsmerrors.OutOfMem, "queue full")
	}
	return nil
}

// GetSenderCid returns the sender of the message currently being
// dispatched on dst's task, if any.
func (r *Registry) GetSenderCid(dst rsmtypes.Identity) (rsmtypes.Identity, bool) {
	t, ok := r.Lookup(dst)
	if !ok {
		return rsmtypes.Identity{}, false
	}
	return t.CurrentSender()
}
