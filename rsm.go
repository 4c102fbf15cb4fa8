// Package rsm is the Realtime Software Middleware core: a user-space
// runtime that hosts statically registered components as prioritized,
// message-driven tasks, each pinned to a dedicated OS thread. This
// file is the runtime entry point: it wires the registry, timer
// service, and socket pool together behind a single process-wide,
// mutex-guarded singleton.
package rsm

import (
	"sync"

	"github.com/wang-russell/rsm/internal/diag"
	"github.com/wang-russell/rsm/internal/interfaces"
	"github.com/wang-russell/rsm/internal/logging"
	"github.com/wang-russell/rsm/internal/registry"
	"github.com/wang-russell/rsm/internal/rsmerrors"
	"github.com/wang-russell/rsm/internal/rsmtypes"
	"github.com/wang-russell/rsm/internal/socket"
	"github.com/wang-russell/rsm/internal/timer"
)

// LogConfig carries the addresses of the external log collaborators;
// the core only stores them, it does not dial out.
type LogConfig struct {
	SelfAddr     string
	SyslogServer string
	Level        logging.LogLevel
}

// InitConfig configures one runtime instance.
type InitConfig struct {
	NodeID          uint32
	MaxComponentNum int
	OamServerAddr   string
	LogConfig       LogConfig
}

// DefaultInitConfig returns a sensible default configuration.
func DefaultInitConfig() InitConfig {
	return InitConfig{
		NodeID:          1,
		MaxComponentNum: 256,
		LogConfig:       LogConfig{Level: logging.LevelInfo},
	}
}

// runtime bundles the singletons Init installs.
type runtime struct {
	cfg      InitConfig
	registry *registry.Registry
	timer    *timer.Service
	sockets  *socket.Pool
	metrics  *Metrics
	observer interfaces.Observer
	diag     *diag.Registry
	logger   *logging.Logger

	started bool
	mu      sync.Mutex
}

var (
	global   *runtime
	globalMu sync.RWMutex
)

// Init installs the process-wide runtime singleton. It may be called
// exactly once; a second call returns ALREADY_EXIST.
func Init(config InitConfig) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global != nil {
		return rsmerrors.New("init", rsmerrors.AlreadyExist, "rsm already initialized")
	}
	if config.MaxComponentNum <= 0 {
		config.MaxComponentNum = DefaultInitConfig().MaxComponentNum
	}
	if config.NodeID == 0 {
		config.NodeID = DefaultInitConfig().NodeID
	}

	logging.SetDefault(logging.NewLogger(&logging.Config{Level: config.LogConfig.Level}))
	logger := logging.Default()

	metrics := NewMetrics()
	observer := NewMetricsObserver(metrics)

	reg := registry.New(config.NodeID, logger, observer)
	tmr := timer.New(reg)
	pool, err := socket.NewPool(reg, reg, logger)
	if err != nil {
		return rsmerrors.Wrap("init", err)
	}

	global = &runtime{
		cfg:      config,
		registry: reg,
		timer:    tmr,
		sockets:  pool,
		metrics:  metrics,
		observer: observer,
		diag:     diag.New(),
		logger:   logger,
	}
	global.registerDiagnostics()
	return nil
}

func (r *runtime) registerDiagnostics() {
	r.diag.Register("timer", func() (interface{}, error) {
		return r.timer.Snapshot(), nil
	})
}

func mustRuntime() (*runtime, error) {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if global == nil {
		return nil, rsmerrors.New("rsm", rsmerrors.NotInitialized, "rsm.Init was not called")
	}
	return global, nil
}

// RegisterComponent registers cid with attrs, invoking factory once per
// instance to obtain its Runnable. Must be called before Start.
func RegisterComponent(cid uint32, attrs rsmtypes.ComponentAttrs, factory interfaces.FactoryFunc) error {
	r, err := mustRuntime()
	if err != nil {
		return err
	}
	d := registry.Descriptor{
		Name:        attrs.Name,
		InstNum:     attrs.InstNum,
		Qlen:        attrs.Qlen,
		Priority:    attrs.Priority,
		NeedInitAck: attrs.NeedInitAck,
	}
	if d.Qlen <= 0 {
		d.Qlen = DefaultQueueLen
	}
	return r.registry.RegisterComponent(cid, d, func(id rsmtypes.Identity) interfaces.Runnable {
		return factory(id)
	})
}

// Start spawns one OS thread per registered task, then the timer and
// socket-poll goroutines.
func Start() error {
	r, err := mustRuntime()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return rsmerrors.New("start", rsmerrors.InvalidState, "rsm already started")
	}
	if err := r.registry.Start(); err != nil {
		return err
	}
	r.timer.Start()
	r.sockets.Start()
	r.started = true
	return nil
}

// Shutdown stops every task's dispatch loop, the timer ticker, and the
// socket poller. It does not reset the singleton: a process that calls
// Shutdown is expected to exit, not re-Init.
func Shutdown() {
	r, err := mustRuntime()
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	r.registry.Shutdown()
	r.timer.Stop()
	r.sockets.Stop()
	r.metrics.Stop()
	r.started = false
}

// SendAsync enqueues msg on dst's normal-class queue.
func SendAsync(dst rsmtypes.Identity, msg rsmtypes.Envelope) error {
	r, err := mustRuntime()
	if err != nil {
		return err
	}
	return r.registry.SendAsync(dst, msg)
}

// SendAsyncPriority enqueues msg on dst's high-priority queue.
func SendAsyncPriority(dst rsmtypes.Identity, msg rsmtypes.Envelope) error {
	r, err := mustRuntime()
	if err != nil {
		return err
	}
	return r.registry.SendAsyncPriority(dst, msg)
}

// SetTimer allocates a timer owned by self.
func SetTimer(self rsmtypes.Identity, durationMs, loopCount uint64, timerData uintptr) (int32, error) {
	r, err := mustRuntime()
	if err != nil {
		return 0, err
	}
	return r.timer.SetTimer(self, durationMs, loopCount, timerData)
}

// KillTimerByID removes a timer, provided self is its owner.
func KillTimerByID(self rsmtypes.Identity, timerID int32) error {
	r, err := mustRuntime()
	if err != nil {
		return err
	}
	return r.timer.KillTimerByID(self, timerID)
}

// GetSelfCid returns the identity bound to the calling OS thread. Valid
// only from inside a task's dispatch loop.
func GetSelfCid() (rsmtypes.Identity, bool) {
	r, err := mustRuntime()
	if err != nil {
		return rsmtypes.Identity{}, false
	}
	return r.registry.GetSelfCid()
}

// GetSenderCid returns the sender of the message currently being
// dispatched to dst, or ok=false outside a dispatch.
func GetSenderCid(dst rsmtypes.Identity) (rsmtypes.Identity, bool) {
	r, err := mustRuntime()
	if err != nil {
		return rsmtypes.Identity{}, false
	}
	return r.registry.GetSenderCid(dst)
}

// SocketPool returns the process-wide socket pool, for use by the
// socket.New* handle constructors.
func SocketPool() (*socket.Pool, error) {
	r, err := mustRuntime()
	if err != nil {
		return nil, err
	}
	return r.sockets, nil
}

// RuntimeMetrics returns the current runtime-wide dispatch metrics.
func RuntimeMetrics() (MetricsSnapshot, error) {
	r, err := mustRuntime()
	if err != nil {
		return MetricsSnapshot{}, err
	}
	return r.metrics.Snapshot(), nil
}

// DiagQuery returns the JSON-encoded snapshot registered under name
// (internal/diag, the OAM-style callback registry).
func DiagQuery(name string) ([]byte, error) {
	r, err := mustRuntime()
	if err != nil {
		return nil, err
	}
	return r.diag.Query(name)
}

// RegisterDiag registers a named diagnostic snapshot callback, exposing
// it to DiagQuery.
func RegisterDiag(name string, fn diag.Snapshot) error {
	r, err := mustRuntime()
	if err != nil {
		return err
	}
	r.diag.Register(name, fn)
	return nil
}

// resetForTest tears down the singleton so package tests can Init fresh.
func resetForTest() {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global != nil && global.started {
		global.registry.Shutdown()
		global.timer.Stop()
		global.sockets.Stop()
	}
	global = nil
}
