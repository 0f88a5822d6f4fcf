package reactor

import (
	"net/netip"

	"golang.org/x/sys/unix"
)

const readBufSize = 4096

// Conn is one accepted session socket. Ownership alternates between the
// reactor goroutine (while armed for read) and a worker goroutine (while
// dispatched) per the disarm/rearm protocol in spec §4.4; the struct
// itself is never touched concurrently by both.
type Conn struct {
	ID     uint64 // opaque connection identity, stable for the Conn's lifetime
	Remote netip.AddrPort

	fd  int
	buf [readBufSize]byte

	// UserData lets the owning server attach protocol-level state (the
	// partial-line accumulation buffer, bound nickname, ...) without this
	// package knowing about sessions or protocols.
	UserData any
}

// WrapConn adapts an already-accepted, non-blocking fd into a *Conn
// outside of a Reactor's own accept loop. The match orchestrator uses
// this to bring duel-socket connections under the same Write/Close
// discipline as session connections, after accepting them on its own
// secondary Poller.
func WrapConn(fd int, remote netip.AddrPort) *Conn {
	return &Conn{fd: fd, Remote: remote}
}

// Fd returns the underlying file descriptor.
func (c *Conn) Fd() int { return c.fd }

// Write performs a blocking-retry write of data. Handlers call this
// directly from worker goroutines; per spec §9 ("primary reactor blocking
// on writes"), replies are small enough that this is acceptable rather
// than routing through a writable-readiness arm.
func (c *Conn) Write(data []byte) error {
	for len(data) > 0 {
		n, err := unix.Write(c.fd, data)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return err
		}
		data = data[n:]
	}
	return nil
}

// Read performs a single non-blocking read into the connection's fixed
// buffer, returning the number of bytes read (see Bytes). unix.EAGAIN is reported via the error
// return so callers can distinguish "no data right now" from a real
// failure or EOF (n == 0, err == nil).
func (c *Conn) Read() (n int, err error) {
	n, err = unix.Read(c.fd, c.buf[:])
	return n, err
}

// Bytes returns the slice of the internal buffer last filled by Read.
func (c *Conn) Bytes(n int) []byte { return c.buf[:n] }

// Close closes the underlying fd.
func (c *Conn) Close() error { return unix.Close(c.fd) }
