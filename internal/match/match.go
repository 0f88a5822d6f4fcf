// Package match implements the MatchOrchestrator (spec §4.7), the
// largest and most novel component of the system: it has no direct
// analogue in the teacher repo (a chat server has no notion of a
// two-player timed duel), so it is grounded instead in the pack's own
// match-handling code — sinbad-nakama/server/match_registry.go's
// mutex-guarded match table and QueueCall-style dispatch shaped our
// Orchestrator's bookkeeping, while the actual reactor mechanics reuse
// this repo's own internal/reactor package as a second, private epoll
// instance, exactly as spec §4.7/§5 describe ("a secondary selector...
// driven synchronously by the single worker task owning the match").
package match

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wordquizzle/internal/presence"
	"wordquizzle/internal/reactor"
	"wordquizzle/internal/store"
	"wordquizzle/internal/wordsource"
)

// Config holds the three timing/size knobs spec §6 exposes at startup.
type Config struct {
	AcceptTimeout time.Duration // invitation accept window (acceptTimer)
	MatchDuration time.Duration // duel wall-clock deadline (matchTimer)
	WordsPerMatch int           // matchWords
}

// Orchestrator runs duels. One Orchestrator is shared by every worker;
// each call to Challenge is independent and owns its own duel resources
// for its lifetime (spec §3's MatchContext).
type Orchestrator struct {
	log      *zap.Logger
	store    *store.Store
	presence *presence.Registry
	words    *wordsource.Source
	cfg      Config

	// rearm restores read interest on the challenger's session connection.
	// The composition root wires this to the owning reactor's Rearm once
	// the reactor exists (server.New creates the reactor after Orchestrator
	// is constructed, so this closes the cycle between the two packages).
	rearm func(*reactor.Conn) error
}

// New creates an Orchestrator.
func New(log *zap.Logger, st *store.Store, pr *presence.Registry, ws *wordsource.Source, cfg Config) *Orchestrator {
	return &Orchestrator{log: log, store: st, presence: pr, words: ws, cfg: cfg}
}

// SetRearm wires fn as the callback Challenge uses to restore read
// interest on a challenger's session socket once a match reaches a
// terminal state. Must be called once, before the first Challenge.
func (o *Orchestrator) SetRearm(fn func(*reactor.Conn) error) {
	o.rearm = fn
}

// Challenge runs challengerNick's challenge of friendNick to completion,
// writing every reply the challenger ever sees directly to challenger's
// session connection, and blocks until the whole state machine (spec
// §4.7's InvitationSent → ... → {Scored, Expired, Aborted}) reaches a
// terminal state. It is meant to be invoked from inside a single worker
// pool task (spec §4.5): it does not return until the match is fully
// resolved, which is what keeps the duel from starving other handlers —
// every *other* connection is served by the pool's remaining workers.
func (o *Orchestrator) Challenge(challenger *reactor.Conn, challengerNick, friendNick string) {
	matchID := uuid.NewString()
	// The challenger's session socket stays disarmed for this call's whole
	// lifetime: re-arming only here, once Challenge is about to return
	// (Phase-1 rejection, refusal, timeout, or Phase-4 scoring — spec
	// §4.7's "terminal states release all duel resources and re-arm read
	// interest on the challenger's session socket"), is what keeps this
	// goroutine's writeLine/score calls the only writer on that fd for as
	// long as the duel runs (spec §4.4/§8 testable property 5).
	defer o.rearmChallenger(challenger, matchID)

	if challengerNick == friendNick {
		writeLine(challenger, "Match error: you cannot challenge yourself.")
		return
	}
	u, ok := o.store.Lookup(challengerNick)
	if !ok || !containsString(u.Friends, friendNick) {
		writeLine(challenger, fmt.Sprintf("Match error: you and %s are not friends.", friendNick))
		return
	}
	challengedEndpoint, ok := o.presence.EndpointOf(friendNick)
	if !ok {
		writeLine(challenger, fmt.Sprintf("Match error: %s is not online.", friendNick))
		return
	}

	duelFd, duelPort, err := reactor.ListenTCP(":0")
	if err != nil {
		o.log.Error("match: open duel listener failed", zap.Error(err), zap.String("match_id", matchID))
		writeLine(challenger, fmt.Sprintf("Match error: %s is not available right now.", friendNick))
		return
	}
	o.log.Info("match: challenge issued",
		zap.String("match_id", matchID),
		zap.String("challenger", challengerNick),
		zap.String("challenged", friendNick),
		zap.Int("duel_port", duelPort))

	accepted, err := o.invite(challenger, challengerNick, friendNick, duelPort, challengedEndpoint)
	if err != nil || !accepted {
		_ = reactor.WrapConn(duelFd, netip.AddrPort{}).Close()
		return
	}

	// runDuel owns duelFd from here on and closes it once rendezvous and
	// scoring are complete (spec §4.7's terminal states release all duel
	// resources).
	o.runDuel(matchID, duelFd, challengerNick, friendNick, challenger.Remote.Addr(), challengedEndpoint.Addr())
}

// invite runs Phase 1 (spec §4.7): send the UDP invitation and wait for a
// single datagram reply, bounded by o.cfg.AcceptTimeout. Returns
// accepted == true only when the challenged peer answered "Y".
func (o *Orchestrator) invite(challenger *reactor.Conn, challengerNick, friendNick string, duelPort int, challengedEndpoint netip.AddrPort) (accepted bool, err error) {
	udpConn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		o.log.Error("match: open invitation socket failed", zap.Error(err))
		writeLine(challenger, fmt.Sprintf("Match error: %s is not available right now.", friendNick))
		return false, err
	}
	defer udpConn.Close()

	target := net.UDPAddrFromAddrPort(challengedEndpoint)
	payload := fmt.Sprintf("%s/%d", challengerNick, duelPort)
	if _, err := udpConn.WriteToUDP([]byte(payload), target); err != nil {
		o.log.Error("match: send invitation failed", zap.Error(err))
		writeLine(challenger, fmt.Sprintf("Match error: %s is not available right now.", friendNick))
		return false, err
	}

	if err := udpConn.SetReadDeadline(time.Now().Add(o.cfg.AcceptTimeout)); err != nil {
		return false, err
	}
	buf := make([]byte, 64)
	n, _, err := udpConn.ReadFromUDP(buf)
	if err != nil {
		// Treat any read failure (including the expected timeout) as a
		// timeout: notify the challenged peer to evict the pending invite
		// and report the timeout to the challenger (spec §4.7 Phase 1).
		_, _ = udpConn.WriteToUDP([]byte(fmt.Sprintf("TIMEOUT/%s", challengerNick)), target)
		writeLine(challenger, fmt.Sprintf("Match error: invitation to %s timed out.", friendNick))
		return false, nil
	}

	switch strings.TrimSpace(string(buf[:n])) {
	case "Y":
		writeLine(challenger, fmt.Sprintf("%s accepted your match invitation./%d", friendNick, duelPort))
		return true, nil
	default:
		writeLine(challenger, fmt.Sprintf("%s refused your match invitation.", friendNick))
		return false, nil
	}
}

func (o *Orchestrator) rearmChallenger(c *reactor.Conn, matchID string) {
	if o.rearm == nil {
		return
	}
	if err := o.rearm(c); err != nil {
		o.log.Debug("match: rearm challenger failed", zap.Error(err), zap.String("match_id", matchID))
	}
}

func writeLine(c *reactor.Conn, line string) {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	_ = c.Write([]byte(line))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
