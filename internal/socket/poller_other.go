//go:build !linux

package socket

import "errors"

// poller stub for non-Linux builds. The core targets epoll; a kqueue
// backend would live in a sibling poller_darwin.go following this same
// pattern. This stub only keeps the rest of the module buildable off
// Linux.
type poller struct{}

func newPoller() (*poller, error) {
	return nil, errors.New("socket: epoll poller is only implemented on linux")
}

func (p *poller) register(fd int, socketID int32) error { return errors.New("unsupported") }
func (p *poller) deregister(fd int) error               { return errors.New("unsupported") }
func (p *poller) close() error                          { return nil }
func (p *poller) wait(waitMs int) []rawEvent            { return nil }
