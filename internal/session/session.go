// Package session holds the per-connection state the reactor attaches to
// each accepted socket (reactor.Conn.UserData), replacing the teacher's
// per-connection Client struct (chat-go/internal/server/client.go) with the
// narrower state a single-reactor design actually needs: a line framer and
// the nickname bound to this socket, if any.
package session

import "wordquizzle/internal/protocol"

// Session is attached to every accepted reactor.Conn.
type Session struct {
	Framer   protocol.Framer
	Nickname string // empty until a successful login
	UDPPort  int    // datagram port advertised by the client at login, 0 until then
}

// New creates an empty Session for a freshly accepted connection.
func New() *Session {
	return &Session{}
}

// LoggedIn reports whether this socket has completed a login.
func (s *Session) LoggedIn() bool {
	return s.Nickname != ""
}
