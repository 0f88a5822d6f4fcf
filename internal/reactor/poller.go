// Package reactor implements the single-threaded, epoll-based readiness
// loop that sits at the core of the session server (spec §4.4) and is
// reused, as a second independent instance, by the match orchestrator's
// duel rendezvous (spec §4.7). It is grounded in the event-loop shape of
// the gnet library (see the retrieval pack's eventloop.go.go fragment):
// one epoll instance, a connection table keyed by fd, level-triggered
// readiness. Unlike gnet, a single Poller only ever runs on one goroutine
// and there is no fd sharding across multiple loops — the spec calls for
// exactly one reactor thread.
package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Poller wraps one epoll instance. It is not safe for concurrent Wait
// calls, but EpollCtl-driven methods (AddRead/Disarm/Rearm/Remove) may be called
// from any goroutine while another is blocked in Wait: modifying the
// interest list of an fd that is already readable wakes the blocked
// epoll_wait immediately, which is how the reactor's disarm/dispatch/
// re-arm protocol (spec §4.4) takes effect without a separate wake signal.
type Poller struct {
	epfd int
}

// NewPoller creates a new epoll instance.
func NewPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &Poller{epfd: epfd}, nil
}

// Close releases the epoll instance.
func (p *Poller) Close() error { return unix.Close(p.epfd) }

// AddRead registers fd for read readiness.
func (p *Poller) AddRead(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl add %d: %w", fd, err)
	}
	return nil
}

// Disarm zeroes fd's interest set. The fd stays registered with epoll but
// will not be reported ready until Rearm is called. This is the
// serialization boundary described in spec §4.4: between Disarm and the
// matching Rearm, exactly one worker owns the connection.
func (p *Poller) Disarm(fd int) error {
	ev := unix.EpollEvent{Events: 0, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl disarm %d: %w", fd, err)
	}
	return nil
}

// Rearm restores read-readiness interest on fd.
func (p *Poller) Rearm(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl rearm %d: %w", fd, err)
	}
	return nil
}

// Remove drops fd from the epoll instance entirely. Callers must still
// close the fd themselves.
func (p *Poller) Remove(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("reactor: epoll_ctl del %d: %w", fd, err)
	}
	return nil
}

// Wait blocks for up to timeoutMS milliseconds (-1 blocks indefinitely)
// and invokes visit once per ready fd. A nil error with zero visits means
// the wait timed out.
func (p *Poller) Wait(timeoutMS int, visit func(fd int)) error {
	var events [128]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, events[:], timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("reactor: epoll_wait: %w", err)
	}
	for i := 0; i < n; i++ {
		visit(int(events[i].Fd))
	}
	return nil
}
