// Package server wires the reactor, worker pool, handlers, match
// orchestrator, store and presence registry together (spec §2/§4). It is the
// generalization of the teacher's Server type (chat-go/internal/server/
// server.go), which plays the same composition-root role for the Hub +
// Store + workerPool triple; here the Hub is replaced by the reactor and the
// async persistence pool by a synchronous-dispatch worker pool, per spec
// §4.1/§4.5's durability and serialization requirements.
package server

import (
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"

	"wordquizzle/internal/handlers"
	"wordquizzle/internal/match"
	"wordquizzle/internal/presence"
	"wordquizzle/internal/protocol"
	"wordquizzle/internal/reactor"
	"wordquizzle/internal/session"
	"wordquizzle/internal/store"
	"wordquizzle/internal/workerpool"
)

// Config bundles the startup knobs the server needs beyond its store path
// (spec §6).
type Config struct {
	Addr          string
	Workers       int
	QueueCapacity int
}

// Server is the composition root: one Reactor, one worker pool, shared
// collaborators.
type Server struct {
	log      *zap.Logger
	reactor  *reactor.Reactor
	pool     *workerpool.Pool
	store    *store.Store
	presence *presence.Registry
	match    *match.Orchestrator
	deps     handlers.Deps
	port     atomic.Int32
}

// New wires every collaborator together. st, pr and mo are constructed by
// the caller (cmd/server/main.go) so their own lifetimes/config stay
// explicit at the call site.
func New(log *zap.Logger, cfg Config, st *store.Store, pr *presence.Registry, mo *match.Orchestrator) *Server {
	s := &Server{
		log:      log,
		store:    st,
		presence: pr,
		match:    mo,
		deps:     handlers.Deps{Store: st, Presence: pr},
	}
	s.pool = workerpool.New(cfg.Workers, cfg.QueueCapacity)
	r, err := reactor.New(log, s)
	if err != nil {
		// Only epoll_create1 failure reaches here; spec §4.4 assumes Linux.
		panic(err)
	}
	s.reactor = r
	// The orchestrator re-arms a challenger's session socket itself once a
	// match reaches a terminal state (spec §4.7); it can only do that once
	// the reactor that owns the socket exists, which is here.
	mo.SetRearm(r.Rearm)
	return s
}

// ListenAndServe opens the listening socket on addr and runs the reactor
// loop until Stop is called.
func (s *Server) ListenAndServe(addr string) error {
	port, err := s.reactor.Listen(addr)
	if err != nil {
		return err
	}
	s.port.Store(int32(port))
	s.log.Info("server: listening", zap.Int("port", port))
	return s.reactor.Run()
}

// Port returns the TCP port the reactor is listening on, once
// ListenAndServe's initial Listen has completed. Meant for tests that bind
// to an ephemeral port (":0") and need it back to dial in.
func (s *Server) Port() int {
	return int(s.port.Load())
}

// Stop drains the worker pool and stops the reactor loop.
func (s *Server) Stop() {
	s.reactor.Stop()
	s.pool.Stop()
}

// OnAccept implements reactor.Handler: attach a fresh session to the
// connection (spec §4.2's PresenceEntry doesn't exist yet; it is created on
// login).
func (s *Server) OnAccept(c *reactor.Conn) {
	c.UserData = session.New()
	s.log.Debug("server: accepted connection", zap.Uint64("conn_id", c.ID))
}

// OnReadable implements reactor.Handler: per spec §4.4, the reactor has
// already disarmed c's read interest before calling this, so exactly one
// worker will ever process this event; the handler task re-arms (or drops)
// c when it finishes.
func (s *Server) OnReadable(c *reactor.Conn, data []byte, eof bool) {
	if eof {
		s.pool.Submit(func() { s.handleCrash(c) })
		return
	}
	sess := c.UserData.(*session.Session)
	sess.Framer.Feed(data)
	line, ok := sess.Framer.NextLine()
	if !ok {
		// Partial line: nothing to dispatch yet, just re-arm.
		if err := s.reactor.Rearm(c); err != nil {
			s.log.Debug("server: rearm after partial read failed", zap.Error(err))
		}
		return
	}
	s.pool.Submit(func() { s.dispatch(c, sess, line) })
}

func (s *Server) handleCrash(c *reactor.Conn) {
	handlers.BrutalLogout(s.deps, c.ID)
	s.reactor.Drop(c)
}

// dispatch runs one parsed request to completion and then re-arms or drops
// the connection, exactly once, per spec §4.4/§4.5.
func (s *Server) dispatch(c *reactor.Conn, sess *session.Session, line string) {
	req, err := protocol.Parse(line)
	if err != nil {
		s.writeAndRearm(c, "Request error: malformed command.\n", false)
		return
	}

	switch req.Op {
	case protocol.OpLogin:
		s.handleLogin(c, sess, req)
	case protocol.OpLogout:
		res := handlers.Logout(s.deps, c.ID)
		sess.Nickname = ""
		s.writeAndRearm(c, res.Reply, res.Close)
	case protocol.OpAddFriend:
		s.requireLogin(c, sess, func() handlers.Result {
			if len(req.Args) < 1 {
				return handlers.Result{Reply: "Add friend error: missing friend nickname.\n"}
			}
			return handlers.AddFriend(s.deps, sess.Nickname, req.Args[0])
		})
	case protocol.OpFriendList:
		s.requireLogin(c, sess, func() handlers.Result {
			return handlers.FriendList(s.deps, sess.Nickname)
		})
	case protocol.OpScore:
		s.requireLogin(c, sess, func() handlers.Result {
			return handlers.Score(s.deps, sess.Nickname)
		})
	case protocol.OpScoreboard:
		s.requireLogin(c, sess, func() handlers.Result {
			return handlers.Scoreboard(s.deps, sess.Nickname)
		})
	case protocol.OpMatch:
		s.handleMatch(c, sess, req)
	default:
		s.writeAndRearm(c, "Request error: unknown command.\n", false)
	}
}

func (s *Server) handleLogin(c *reactor.Conn, sess *session.Session, req *protocol.Request) {
	if len(req.Args) < 3 {
		s.writeAndRearm(c, "Login error: malformed login request.\n", false)
		return
	}
	udpPort, err := strconv.Atoi(req.Args[2])
	if err != nil || udpPort <= 0 || udpPort > 65535 {
		s.writeAndRearm(c, "Login error: malformed udp port.\n", false)
		return
	}
	res := handlers.Login(s.deps, c.ID, req.Args[0], req.Args[1], c.Remote.Addr(), udpPort)
	if res.Reply == "Login successful.\n" {
		sess.Nickname = req.Args[0]
		sess.UDPPort = udpPort
	}
	s.writeAndRearm(c, res.Reply, res.Close)
}

func (s *Server) handleMatch(c *reactor.Conn, sess *session.Session, req *protocol.Request) {
	if !sess.LoggedIn() {
		s.writeAndRearm(c, "Match error: you must log in first.\n", false)
		return
	}
	if len(req.Args) < 1 {
		s.writeAndRearm(c, "Match error: missing opponent nickname.\n", false)
		return
	}
	// Challenge blocks this worker for the whole duel (spec §4.5/§4.7) and
	// re-arms c itself once the match reaches a terminal state. It must
	// NOT be re-armed here: c stays disarmed for the duel's whole lifetime
	// so no other worker can be dispatched for this connection and race
	// Challenge's own writes to the same fd (spec §4.4/§8 property 5).
	s.match.Challenge(c, sess.Nickname, req.Args[0])
}

// requireLogin runs fn only if sess is bound to a nickname, replying with a
// login-required error otherwise, then writes the result and re-arms.
func (s *Server) requireLogin(c *reactor.Conn, sess *session.Session, fn func() handlers.Result) {
	if !sess.LoggedIn() {
		s.writeAndRearm(c, "Request error: you must log in first.\n", false)
		return
	}
	res := fn()
	s.writeAndRearm(c, res.Reply, res.Close)
}

func (s *Server) writeAndRearm(c *reactor.Conn, reply string, closeConn bool) {
	if reply != "" {
		if err := c.Write([]byte(reply)); err != nil {
			s.log.Debug("server: write reply failed", zap.Error(err), zap.Uint64("conn_id", c.ID))
			s.reactor.Drop(c)
			return
		}
	}
	if closeConn {
		s.reactor.Drop(c)
		return
	}
	if err := s.reactor.Rearm(c); err != nil {
		s.log.Debug("server: rearm failed", zap.Error(err), zap.Uint64("conn_id", c.ID))
	}
}
