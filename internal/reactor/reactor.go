package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Handler receives reactor lifecycle events. Implementations must not
// block: OnReadable is expected to hand off to a worker pool (spec §4.5)
// rather than do request work inline, or the single reactor thread stalls
// every other connection.
type Handler interface {
	// OnAccept fires once per newly accepted connection, before it is
	// registered for read readiness.
	OnAccept(c *Conn)
	// OnReadable fires once per read-readiness event. Interest on c's fd
	// has already been disarmed by the reactor; the handler (or whatever
	// it hands the event to) must eventually call Rearm or Drop on c.
	// eof == true and data == nil together signal the peer closed or the
	// socket errored.
	OnReadable(c *Conn, data []byte, eof bool)
}

// Reactor is the single-threaded I/O multiplexer described in spec §4.4:
// one goroutine owns the epoll wait loop; everything else communicates
// with it only by mutating epoll interest (Rearm/Drop), which is safe to
// do from any goroutine.
type Reactor struct {
	log     *zap.Logger
	poll    *Poller
	handler Handler

	lnFd int

	mu     sync.Mutex
	conns  map[int]*Conn
	nextID atomic.Uint64

	stop chan struct{}
}

// New creates a Reactor. Listen must be called before Run.
func New(log *zap.Logger, handler Handler) (*Reactor, error) {
	poll, err := NewPoller()
	if err != nil {
		return nil, err
	}
	return &Reactor{
		log:     log,
		poll:    poll,
		handler: handler,
		lnFd:    -1,
		conns:   make(map[int]*Conn),
		stop:    make(chan struct{}),
	}, nil
}

// Listen opens the listening socket and registers it with the poller.
func (r *Reactor) Listen(addr string) (port int, err error) {
	fd, port, err := ListenTCP(addr)
	if err != nil {
		return 0, err
	}
	if err := r.poll.AddRead(fd); err != nil {
		unix.Close(fd)
		return 0, err
	}
	r.lnFd = fd
	return port, nil
}

// Run blocks, driving the readiness loop until Stop is called.
func (r *Reactor) Run() error {
	for {
		select {
		case <-r.stop:
			return nil
		default:
		}
		if err := r.poll.Wait(250, r.onReady); err != nil {
			return err
		}
	}
}

// Stop breaks Run out of its loop. In-flight worker tasks are not
// cancelled; callers typically stop accepting, drain, then exit.
func (r *Reactor) Stop() {
	close(r.stop)
}

// Rearm restores read interest on c, handing ownership back to the
// reactor. Workers call this after finishing a request.
func (r *Reactor) Rearm(c *Conn) error {
	return r.poll.Rearm(c.fd)
}

// Drop removes c from the poller and closes it. Used for client-initiated
// logout and brutal (crash) logout alike.
func (r *Reactor) Drop(c *Conn) {
	r.mu.Lock()
	delete(r.conns, c.fd)
	r.mu.Unlock()
	if err := r.poll.Remove(c.fd); err != nil && r.log != nil {
		r.log.Debug("reactor: remove from poller failed", zap.Error(err))
	}
	_ = c.Close()
}

func (r *Reactor) onReady(fd int) {
	if fd == r.lnFd {
		r.accept()
		return
	}
	r.mu.Lock()
	c, ok := r.conns[fd]
	r.mu.Unlock()
	if !ok {
		return
	}

	// Disarm first: this is the serialization boundary from spec §4.4.
	// No other worker can be handed this connection until Rearm/Drop runs.
	if err := r.poll.Disarm(fd); err != nil && r.log != nil {
		r.log.Debug("reactor: disarm failed", zap.Error(err))
	}

	n, err := c.Read()
	switch {
	case n > 0:
		r.handler.OnReadable(c, c.Bytes(n), false)
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
		// Spurious wakeup; nothing to read yet, hand interest straight back.
		if rerr := r.poll.Rearm(fd); rerr != nil && r.log != nil {
			r.log.Debug("reactor: rearm after EAGAIN failed", zap.Error(rerr))
		}
	default:
		// n == 0 (EOF) or a hard read error: treat both as peer crash.
		r.handler.OnReadable(c, nil, true)
	}
}

func (r *Reactor) accept() {
	for {
		fd, remote, err := AcceptNonblock(r.lnFd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if r.log != nil {
				r.log.Warn("reactor: accept failed", zap.Error(err))
			}
			return
		}
		c := &Conn{ID: r.nextID.Add(1), Remote: remote, fd: fd}
		r.mu.Lock()
		r.conns[fd] = c
		r.mu.Unlock()
		r.handler.OnAccept(c)
		if err := r.poll.AddRead(fd); err != nil {
			if r.log != nil {
				r.log.Warn("reactor: register accepted conn failed", zap.Error(err))
			}
			r.Drop(c)
			continue
		}
	}
}

// Addr identifies the listening socket by its fd ("fd N") for logging.
func (r *Reactor) Addr() string {
	return fmt.Sprintf("fd %d", r.lnFd)
}
