package socket

import (
	"errors"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/wang-russell/rsm/internal/constants"
	"github.com/wang-russell/rsm/internal/idalloc"
	"github.com/wang-russell/rsm/internal/interfaces"
	"github.com/wang-russell/rsm/internal/rsmerrors"
	"github.com/wang-russell/rsm/internal/rsmtypes"
)

// ErrWouldBlock is returned by Send/Recv/SendTo/RecvFrom when the
// non-blocking fd has no data/buffer space ready; the caller is
// expected to wait for the next readiness event rather than retry in
// a spin.
var ErrWouldBlock = errors.New("socket: would block")

// spinLock is the same tight CAS lock internal/queue.Bounded uses.
// The socket table and ID allocator are wrapped by it, never by a
// long-held mutex.
type spinLock struct {
	locked atomic.Bool
}

func (s *spinLock) Lock() {
	for !s.locked.CompareAndSwap(false, true) {
	}
}

func (s *spinLock) Unlock() { s.locked.Store(false) }

type entry struct {
	rec Record
	fd  int
}

// Pool is the single global socket table, indexed densely by
// socket_id, plus the readiness poller thread. The table owns every
// OS fd; user code holds only socket_id handles.
type Pool struct {
	lock  spinLock
	ids   *idalloc.Allocator
	slots map[int32]*entry

	poller    *poller
	sender    Sender
	instances InstanceCounter
	logger    interfaces.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewPool creates a pool bound to sender (used to deliver SOCKET
// envelopes) and instances (used by the ALL_INSTANCE/EXCLUDE_CALLER_
// INSTANCE LB formulas). Call Start to launch the poller goroutine.
func NewPool(sender Sender, instances InstanceCounter, logger interfaces.Logger) (*Pool, error) {
	pl, err := newPoller()
	if err != nil {
		return nil, rsmerrors.Wrap("init_socket_pool", err)
	}
	return &Pool{
		ids:       idalloc.New(1, constants.MaxSocketNum),
		slots:     make(map[int32]*entry),
		poller:    pl,
		sender:    sender,
		instances: instances,
		logger:    logger,
		stop:      make(chan struct{}),
	}, nil
}

// Start launches the dedicated poll-loop goroutine.
func (p *Pool) Start() {
	p.wg.Add(1)
	go p.runPoll()
}

// Stop halts the poll loop and closes the epoll instance. Outstanding
// sockets are not closed; callers are responsible for their own
// cleanup.
func (p *Pool) Stop() {
	close(p.stop)
	p.wg.Wait()
	_ = p.poller.close()
}

// NewUDPSocket creates a UDP socket owned by self, bound to localAddr,
// with SO_REUSEADDR set.
func (p *Pool) NewUDPSocket(self rsmtypes.Identity, localAddr string) (int32, error) {
	sa, af, err := resolve(localAddr)
	if err != nil {
		return 0, rsmerrors.Wrap("new_udp_socket", err)
	}
	fd, err := unix.Socket(af, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return 0, rsmerrors.NewOSError("new_udp_socket", err.(syscall.Errno))
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return 0, rsmerrors.NewOSError("new_udp_socket", err.(syscall.Errno))
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return 0, rsmerrors.NewOSError("new_udp_socket", err.(syscall.Errno))
	}
	if bound, err := unix.Getsockname(fd); err == nil {
		sa = bound
	}
	rec := Record{Kind: KindDgram, State: StateBind, Owner: self, LocalAddr: sockaddrToNetAddr(sa)}
	return p.install(fd, rec)
}

// NewTCPListener creates a non-blocking TCP listener owned by self,
// bound to localAddr, backlogged by backlog, and load-balancing
// accepted connections by lb. TCP listeners do not set
// SO_REUSEADDR by default.
func (p *Pool) NewTCPListener(self rsmtypes.Identity, localAddr string, backlog int, lb LBPolicy) (int32, error) {
	sa, af, err := resolve(localAddr)
	if err != nil {
		return 0, rsmerrors.Wrap("new_tcp_listener", err)
	}
	fd, err := unix.Socket(af, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return 0, rsmerrors.NewOSError("new_tcp_listener", err.(syscall.Errno))
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return 0, rsmerrors.NewOSError("new_tcp_listener", err.(syscall.Errno))
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return 0, rsmerrors.NewOSError("new_tcp_listener", err.(syscall.Errno))
	}
	if bound, err := unix.Getsockname(fd); err == nil {
		sa = bound
	}
	rec := Record{
		Kind: KindStream, State: StateListening, IsTCPServer: true,
		LBPolicy: lb, Owner: self, LocalAddr: sockaddrToNetAddr(sa),
	}
	return p.install(fd, rec)
}

// install sets fd non-blocking, allocates a socket_id, registers the
// fd with the poller, and stores rec. On any failure the fd is closed
// and the id (if allocated) is released.
func (p *Pool) install(fd int, rec Record) (int32, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return 0, rsmerrors.NewOSError("install_socket", err.(syscall.Errno))
	}

	p.lock.Lock()
	id := p.ids.Allocate()
	if id == idalloc.Invalid {
		p.lock.Unlock()
		_ = unix.Close(fd)
		return 0, rsmerrors.New("install_socket", rsmerrors.OutOfMem, "socket table exhausted")
	}
	rec.SocketID = id
	p.slots[id] = &entry{rec: rec, fd: fd}
	p.lock.Unlock()

	if err := p.poller.register(fd, id); err != nil {
		p.lock.Lock()
		delete(p.slots, id)
		p.lock.Unlock()
		p.ids.Release(id)
		_ = unix.Close(fd)
		return 0, rsmerrors.Wrap("install_socket", err)
	}
	return id, nil
}

// Close closes socketID's fd and reclaims its slot, provided self is
// the owner.
func (p *Pool) Close(self rsmtypes.Identity, socketID int32) error {
	p.lock.Lock()
	e, ok := p.slots[socketID]
	if !ok {
		p.lock.Unlock()
		return rsmerrors.New("close_socket", rsmerrors.NotFound, "unknown socket id")
	}
	if e.rec.Owner != self {
		p.lock.Unlock()
		return rsmerrors.New("close_socket", rsmerrors.NoPermission, "caller does not own socket")
	}
	p.lock.Unlock()

	p.closeEntry(socketID, e)
	return nil
}

// closeEntry unregisters, closes, and frees socketID unconditionally.
// Used both by the owner-checked Close and by the poller when a
// CLOSE/ERR event arrives.
func (p *Pool) closeEntry(socketID int32, e *entry) {
	_ = p.poller.deregister(e.fd)
	_ = unix.Close(e.fd)

	p.lock.Lock()
	delete(p.slots, socketID)
	p.lock.Unlock()

	p.ids.Release(socketID)
}

// Get returns the record for socketID, if it is live.
func (p *Pool) Get(socketID int32) (Record, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	e, ok := p.slots[socketID]
	if !ok {
		return Record{}, false
	}
	return e.rec, true
}

// Send writes buf to a connected TCP socket. Returns (0, ErrWouldBlock)
// if the non-blocking fd has no write capacity right now.
func (p *Pool) Send(socketID int32, buf []byte) (int, error) {
	fd, err := p.fdOf(socketID)
	if err != nil {
		return 0, err
	}
	n, err := unix.Write(fd, buf)
	if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
		return 0, ErrWouldBlock
	}
	if err != nil {
		return 0, rsmerrors.NewOSError("send", err.(syscall.Errno))
	}
	return n, nil
}

// Recv reads from a connected TCP socket into buf.
func (p *Pool) Recv(socketID int32, buf []byte) (int, error) {
	fd, err := p.fdOf(socketID)
	if err != nil {
		return 0, err
	}
	n, err := unix.Read(fd, buf)
	if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
		return 0, ErrWouldBlock
	}
	if err != nil {
		return 0, rsmerrors.NewOSError("recv", err.(syscall.Errno))
	}
	return n, nil
}

// SendTo writes buf to dst over a UDP socket.
func (p *Pool) SendTo(socketID int32, dst string, buf []byte) (int, error) {
	fd, err := p.fdOf(socketID)
	if err != nil {
		return 0, err
	}
	sa, _, err := resolve(dst)
	if err != nil {
		return 0, rsmerrors.Wrap("send_to", err)
	}
	if err := unix.Sendto(fd, buf, 0, sa); err != nil {
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, rsmerrors.NewOSError("send_to", err.(syscall.Errno))
	}
	return len(buf), nil
}

// RecvFrom reads one UDP datagram into buf, returning the sender's
// address.
func (p *Pool) RecvFrom(socketID int32, buf []byte) (int, string, error) {
	fd, err := p.fdOf(socketID)
	if err != nil {
		return 0, "", err
	}
	n, from, err := unix.Recvfrom(fd, buf, 0)
	if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
		return 0, "", ErrWouldBlock
	}
	if err != nil {
		return 0, "", rsmerrors.NewOSError("recv_from", err.(syscall.Errno))
	}
	addr := ""
	if sa4, ok := from.(*unix.SockaddrInet4); ok {
		addr = sockaddrToNetAddr(sa4).String()
	} else if sa6, ok := from.(*unix.SockaddrInet6); ok {
		addr = sockaddrToNetAddr(sa6).String()
	}
	return n, addr, nil
}

func (p *Pool) fdOf(socketID int32) (int, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	e, ok := p.slots[socketID]
	if !ok {
		return 0, rsmerrors.New("socket_io", rsmerrors.NotFound, "unknown socket id")
	}
	return e.fd, nil
}

// runPoll is the poll loop thread: poll(wait=500ms), accept any
// ready TCP listeners, dispatch SOCKET envelopes to owners, and
// reclaim any socket whose event carries CLOSE/ERR before the message
// is sent.
func (p *Pool) runPoll() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		default:
		}

		events := p.poller.wait(constants.SocketPollWaitMs)
		for _, ev := range events {
			p.processEvent(ev)
		}
	}
}

func (p *Pool) processEvent(ev rawEvent) {
	p.lock.Lock()
	e, ok := p.slots[ev.SocketID]
	p.lock.Unlock()
	if !ok {
		return
	}

	if e.rec.IsTCPServer && ev.Mask&EventRead != 0 {
		p.acceptAll(ev.SocketID, e)
		return
	}

	p.deliver(ev.SocketID, e, ev.Mask)
}

// acceptAll drains every pending connection on an edge-triggered
// listener fd.
func (p *Pool) acceptAll(listenerID int32, listener *entry) {
	for {
		nfd, _, err := unix.Accept4(listener.fd, unix.SOCK_NONBLOCK)
		if err != nil {
			return
		}
		instNum := p.instances.InstanceCount(listener.rec.Owner.Cid)
		instID := pickInstance(listener.rec.LBPolicy, 0, listener.rec.Owner.InstID, instNum)

		rec := Record{
			Kind:  KindStream,
			State: StateConnected,
			Owner: rsmtypes.Identity{NodeID: listener.rec.Owner.NodeID, Cid: listener.rec.Owner.Cid, InstID: instID},
		}
		newID, err := p.install(nfd, rec)
		if err != nil {
			if p.logger != nil {
				p.logger.Printf("socket pool: accept on listener %d failed to install: %v", listenerID, err)
			}
			continue
		}
		// socket_id % inst_num + 1 requires the real id, not the
		// placeholder 0 used above; recompute now that it is known and
		// correct the owner if it changes.
		instID = pickInstance(listener.rec.LBPolicy, newID, listener.rec.Owner.InstID, instNum)
		p.lock.Lock()
		if e, ok := p.slots[newID]; ok {
			e.rec.Owner.InstID = instID
		}
		p.lock.Unlock()

		p.sendEvent(rsmtypes.Identity{NodeID: listener.rec.Owner.NodeID, Cid: listener.rec.Owner.Cid, InstID: instID},
			newID, EventNew)
	}
}

func (p *Pool) deliver(socketID int32, e *entry, mask uint32) {
	owner := e.rec.Owner
	if mask&(EventClose|EventErr) != 0 {
		p.closeEntry(socketID, e)
	}
	p.sendEvent(owner, socketID, mask)
}

func (p *Pool) sendEvent(owner rsmtypes.Identity, socketID int32, mask uint32) {
	env, err := rsmtypes.NewEnvelope(constants.MsgIDSocket, Event{SocketID: socketID, Mask: mask})
	if err != nil {
		return
	}
	_ = p.sender.SendAsync(owner, env)
}
