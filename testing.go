package rsm

import (
	"sync"

	"github.com/wang-russell/rsm/internal/interfaces"
	"github.com/wang-russell/rsm/internal/rsmtypes"
)

// MockRunnable is a mock implementation of interfaces.Runnable for
// testing components that register against this runtime. It records
// every callback invocation for later assertion and optionally forwards
// each one to a caller-supplied hook.
type MockRunnable struct {
	mu sync.RWMutex

	initCalls   int
	timerCalls  int
	socketCalls int
	messages    []uint32
	closeCalls  int
	lastSelf    rsmtypes.Identity

	OnInitFunc        func(self rsmtypes.Identity)
	OnTimerFunc       func(self rsmtypes.Identity, timerID int32, timerData uintptr)
	OnSocketEventFunc func(self rsmtypes.Identity, event interfaces.SocketEvent)
	OnMessageFunc     func(self rsmtypes.Identity, msgID uint32, msg rsmtypes.Envelope)
	OnCloseFunc       func(self rsmtypes.Identity)
}

// NewMockRunnable creates an empty MockRunnable. Hooks are optional;
// a nil hook is simply skipped.
func NewMockRunnable() *MockRunnable {
	return &MockRunnable{}
}

func (m *MockRunnable) OnInit(self rsmtypes.Identity) {
	m.mu.Lock()
	m.initCalls++
	m.lastSelf = self
	m.mu.Unlock()
	if m.OnInitFunc != nil {
		m.OnInitFunc(self)
	}
}

func (m *MockRunnable) OnTimer(self rsmtypes.Identity, timerID int32, timerData uintptr) {
	m.mu.Lock()
	m.timerCalls++
	m.mu.Unlock()
	if m.OnTimerFunc != nil {
		m.OnTimerFunc(self, timerID, timerData)
	}
}

func (m *MockRunnable) OnSocketEvent(self rsmtypes.Identity, event interfaces.SocketEvent) {
	m.mu.Lock()
	m.socketCalls++
	m.mu.Unlock()
	if m.OnSocketEventFunc != nil {
		m.OnSocketEventFunc(self, event)
	}
}

func (m *MockRunnable) OnMessage(self rsmtypes.Identity, msgID uint32, msg rsmtypes.Envelope) {
	m.mu.Lock()
	m.messages = append(m.messages, msgID)
	m.mu.Unlock()
	if m.OnMessageFunc != nil {
		m.OnMessageFunc(self, msgID, msg)
	}
}

func (m *MockRunnable) OnClose(self rsmtypes.Identity) {
	m.mu.Lock()
	m.closeCalls++
	m.mu.Unlock()
	if m.OnCloseFunc != nil {
		m.OnCloseFunc(self)
	}
}

// Testing utility methods

// InitCount returns the number of times OnInit has been called.
func (m *MockRunnable) InitCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initCalls
}

// TimerCount returns the number of times OnTimer has been called.
func (m *MockRunnable) TimerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timerCalls
}

// SocketEventCount returns the number of times OnSocketEvent has been called.
func (m *MockRunnable) SocketEventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.socketCalls
}

// Messages returns the msg_id of every OnMessage call received, in order.
func (m *MockRunnable) Messages() []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]uint32, len(m.messages))
	copy(out, m.messages)
	return out
}

// CloseCount returns the number of times OnClose has been called.
func (m *MockRunnable) CloseCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closeCalls
}

// LastSelf returns the identity passed to the most recent OnInit call.
func (m *MockRunnable) LastSelf() rsmtypes.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSelf
}

// CallCounts returns the number of times each callback has been invoked.
func (m *MockRunnable) CallCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int{
		"init":    m.initCalls,
		"timer":   m.timerCalls,
		"socket":  m.socketCalls,
		"message": len(m.messages),
		"close":   m.closeCalls,
	}
}

// Reset clears all recorded call counts and messages.
func (m *MockRunnable) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.initCalls = 0
	m.timerCalls = 0
	m.socketCalls = 0
	m.messages = nil
	m.closeCalls = 0
}

var _ interfaces.Runnable = (*MockRunnable)(nil)
