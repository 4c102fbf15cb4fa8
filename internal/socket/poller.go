//go:build linux

package socket

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/wang-russell/rsm/internal/constants"
)

// poller wraps an epoll instance: created once at pool init, each fd
// registered with {READ, CLOSE} interest at socket-creation time, one
// poll(wait=500ms) per loop iteration.
type poller struct {
	epfd int

	mu    sync.Mutex
	count int
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &poller{epfd: fd}, nil
}

// register adds fd to the poll set, tagged with socketID as the opaque
// epoll "data" word so readiness events carry the socket_id directly
// without a second fd->socket_id lookup.
func (p *poller) register(fd int, socketID int32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLET,
		Fd:     socketID,
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return err
	}
	p.count++
	return nil
}

func (p *poller) deregister(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
	if err == nil {
		p.count--
	}
	return err
}

func (p *poller) close() error {
	return unix.Close(p.epfd)
}

// rawEvent is one readiness tuple handed back to the pool's process
// loop, before kind/owner are filled in by the pool.
type rawEvent struct {
	SocketID int32
	Mask     uint32
}

// wait blocks for up to waitMs for readiness, returning nil on timeout
//.
func (p *poller) wait(waitMs int) []rawEvent {
	buf := make([]unix.EpollEvent, constants.MaxWaitEvents)
	n, err := unix.EpollWait(p.epfd, buf, waitMs)
	if err != nil || n <= 0 {
		return nil
	}
	out := make([]rawEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, rawEvent{
			SocketID: buf[i].Fd,
			Mask:     osevToRsmev(buf[i].Events),
		})
	}
	return out
}

func osevToRsmev(ev uint32) uint32 {
	var m uint32
	if ev&unix.EPOLLIN != 0 {
		m |= EventRead
	}
	if ev&unix.EPOLLOUT != 0 {
		m |= EventWrite
	}
	if ev&unix.EPOLLRDHUP != 0 {
		m |= EventClose
	}
	if ev&unix.EPOLLERR != 0 {
		m |= EventErr
	}
	return m
}
