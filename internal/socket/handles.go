package socket

import (
	"github.com/wang-russell/rsm/internal/rsmtypes"
)

// UdpSocket, TcpListener, and TcpSocket are thin handles over a Pool:
// the handle itself carries nothing but a socket_id, every operation
// delegates to the pool that actually owns the fd.

// UdpSocket is a handle to a pooled, bound UDP socket.
type UdpSocket struct {
	pool *Pool
	id   int32
}

// NewUdpSocket creates and binds a UDP socket owned by self.
func NewUdpSocket(pool *Pool, self rsmtypes.Identity, localAddr string) (UdpSocket, error) {
	id, err := pool.NewUDPSocket(self, localAddr)
	if err != nil {
		return UdpSocket{}, err
	}
	return UdpSocket{pool: pool, id: id}, nil
}

// GetUdpSocketByID wraps an existing socket_id in a handle, used when a
// SOCKET envelope reports an id the task did not itself create.
func GetUdpSocketByID(pool *Pool, id int32) UdpSocket { return UdpSocket{pool: pool, id: id} }

func (s UdpSocket) SendTo(dst string, buf []byte) (int, error) { return s.pool.SendTo(s.id, dst, buf) }
func (s UdpSocket) RecvFrom(buf []byte) (int, string, error)   { return s.pool.RecvFrom(s.id, buf) }
func (s UdpSocket) Close(self rsmtypes.Identity) error         { return s.pool.Close(self, s.id) }
func (s UdpSocket) GetSocketID() int32                         { return s.id }

func (s UdpSocket) GetLocalAddr() (string, bool) {
	rec, ok := s.pool.Get(s.id)
	if !ok || rec.LocalAddr == nil {
		return "", false
	}
	return rec.LocalAddr.String(), true
}

// TcpListener is a handle to a pooled, listening TCP server socket.
// Accepts are performed only by the pool's poll loop; the owner
// observes new connections as SOCK_EVENT_NEW envelopes.
type TcpListener struct {
	pool *Pool
	id   int32
}

// NewTcpListener creates, binds, and listens a TCP server socket owned
// by self, dispatching accepted connections per lb.
func NewTcpListener(pool *Pool, self rsmtypes.Identity, localAddr string, backlog int, lb LBPolicy) (TcpListener, error) {
	id, err := pool.NewTCPListener(self, localAddr, backlog, lb)
	if err != nil {
		return TcpListener{}, err
	}
	return TcpListener{pool: pool, id: id}, nil
}

func (l TcpListener) Close(self rsmtypes.Identity) error { return l.pool.Close(self, l.id) }
func (l TcpListener) GetSocketID() int32                 { return l.id }

func (l TcpListener) GetLocalAddr() (string, bool) {
	rec, ok := l.pool.Get(l.id)
	if !ok || rec.LocalAddr == nil {
		return "", false
	}
	return rec.LocalAddr.String(), true
}

// TcpSocket is a handle to a pooled, connected TCP stream -- either one
// the owner accepted via a SOCK_EVENT_NEW notification, or one it
// dialed itself.
type TcpSocket struct {
	pool *Pool
	id   int32
}

// GetTcpSocketByID wraps socket_id id (typically one carried by a
// SOCK_EVENT_NEW envelope) in a handle.
func GetTcpSocketByID(pool *Pool, id int32) TcpSocket { return TcpSocket{pool: pool, id: id} }

func (s TcpSocket) Send(buf []byte) (int, error)       { return s.pool.Send(s.id, buf) }
func (s TcpSocket) Recv(buf []byte) (int, error)       { return s.pool.Recv(s.id, buf) }
func (s TcpSocket) Close(self rsmtypes.Identity) error { return s.pool.Close(self, s.id) }
func (s TcpSocket) GetSocketID() int32                 { return s.id }
