package socket

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wang-russell/rsm/internal/rsmerrors"
	"github.com/wang-russell/rsm/internal/rsmtypes"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []rsmtypes.Identity
	bodies []rsmtypes.Envelope
}

func (s *recordingSender) SendAsync(dst rsmtypes.Identity, msg rsmtypes.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, dst)
	s.bodies = append(s.bodies, msg)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *recordingSender) ownersSent() []rsmtypes.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rsmtypes.Identity, len(s.sent))
	copy(out, s.sent)
	return out
}

type fixedInstanceCounter struct{ n int }

func (f fixedInstanceCounter) InstanceCount(uint32) int { return f.n }

func newTestPool(t *testing.T, instNum int) (*Pool, *recordingSender) {
	t.Helper()
	sender := &recordingSender{}
	p, err := NewPool(sender, fixedInstanceCounter{n: instNum}, nil)
	require.NoError(t, err)
	p.Start()
	t.Cleanup(p.Stop)
	return p, sender
}

func TestNewUDPSocket_BindsAndRegisters(t *testing.T) {
	p, _ := newTestPool(t, 1)
	self := rsmtypes.Identity{NodeID: 1, Cid: 100, InstID: 1}

	id, err := p.NewUDPSocket(self, "127.0.0.1:0")
	require.NoError(t, err)
	require.NotEqual(t, int32(0), id)

	rec, ok := p.Get(id)
	require.True(t, ok)
	require.Equal(t, KindDgram, rec.Kind)
	require.Equal(t, StateBind, rec.State)
	require.Equal(t, self, rec.Owner)
	require.NotNil(t, rec.LocalAddr)
}

func TestNewTCPListener_BindsAndListens(t *testing.T) {
	p, _ := newTestPool(t, 2)
	self := rsmtypes.Identity{NodeID: 1, Cid: 200, InstID: 1}

	id, err := p.NewTCPListener(self, "127.0.0.1:0", 16, LBAllInstance)
	require.NoError(t, err)

	rec, ok := p.Get(id)
	require.True(t, ok)
	require.True(t, rec.IsTCPServer)
	require.Equal(t, StateListening, rec.State)
	require.Equal(t, LBAllInstance, rec.LBPolicy)
}

func TestClose_RejectsNonOwner(t *testing.T) {
	p, _ := newTestPool(t, 1)
	owner := rsmtypes.Identity{NodeID: 1, Cid: 300, InstID: 1}
	other := rsmtypes.Identity{NodeID: 1, Cid: 300, InstID: 2}

	id, err := p.NewUDPSocket(owner, "127.0.0.1:0")
	require.NoError(t, err)

	err = p.Close(other, id)
	require.Error(t, err)
	require.True(t, rsmerrors.IsCode(err, rsmerrors.NoPermission))

	_, ok := p.Get(id)
	require.True(t, ok, "socket must remain open after a rejected close")
}

func TestClose_OwnerSucceedsAndReclaims(t *testing.T) {
	p, _ := newTestPool(t, 1)
	owner := rsmtypes.Identity{NodeID: 1, Cid: 400, InstID: 1}

	id, err := p.NewUDPSocket(owner, "127.0.0.1:0")
	require.NoError(t, err)

	require.NoError(t, p.Close(owner, id))

	_, ok := p.Get(id)
	require.False(t, ok)
}

func TestClose_UnknownSocketIsNotFound(t *testing.T) {
	p, _ := newTestPool(t, 1)
	owner := rsmtypes.Identity{NodeID: 1, Cid: 500, InstID: 1}

	err := p.Close(owner, 99999)
	require.Error(t, err)
	require.True(t, rsmerrors.IsCode(err, rsmerrors.NotFound))
}

func TestUDPSendToAndRecvFrom_RoundTrip(t *testing.T) {
	p, _ := newTestPool(t, 1)
	a := rsmtypes.Identity{NodeID: 1, Cid: 600, InstID: 1}
	b := rsmtypes.Identity{NodeID: 1, Cid: 601, InstID: 1}

	idA, err := p.NewUDPSocket(a, "127.0.0.1:0")
	require.NoError(t, err)
	idB, err := p.NewUDPSocket(b, "127.0.0.1:0")
	require.NoError(t, err)

	recA, ok := p.Get(idA)
	require.True(t, ok)
	addrA := recA.LocalAddr.String()

	payload := []byte("hello")
	n, err := p.SendTo(idB, addrA, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	require.Eventually(t, func() bool {
		buf := make([]byte, 64)
		n, _, err := p.RecvFrom(idA, buf)
		if err != nil {
			return false
		}
		require.Equal(t, payload, buf[:n])
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTCPAccept_DeliversSocketNewEvent(t *testing.T) {
	p, sender := newTestPool(t, 1)
	owner := rsmtypes.Identity{NodeID: 1, Cid: 700, InstID: 1}

	listenerID, err := p.NewTCPListener(owner, "127.0.0.1:0", 16, LBCallerInstance)
	require.NoError(t, err)
	rec, ok := p.Get(listenerID)
	require.True(t, ok)
	addr := rec.LocalAddr.String()

	conn, derr := net.Dial("tcp", addr)
	require.NoError(t, derr)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return sender.count() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	owners := sender.ownersSent()
	require.Contains(t, owners, owner)
}
