package match

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"wordquizzle/internal/protocol"
	"wordquizzle/internal/reactor"
	"wordquizzle/internal/wordsource"
)

// rendezvousTimeout bounds how long the duel listener waits for both
// peers to connect. Spec §4.7 only defines a deadline for the round
// exchange itself (Phase 3); Phase 2 has no spec-mandated bound, so this
// is an engineering choice (documented in DESIGN.md) to guarantee the
// duel listener is eventually reclaimed even if a client never connects.
const rendezvousTimeout = 30 * time.Second

// peer tracks one duel participant's socket and in-progress answers.
type peer struct {
	nick    string
	conn    *reactor.Conn
	framer  protocol.Framer
	cursor  int // index of the next word to send; the pending answer is for cursor-1
	answers []string
	done    bool
}

// runDuel drives Phase 2 (rendezvous), Phase 3 (round exchange) and
// Phase 4 (scoring) of spec §4.7, then closes duelFd and both peer
// sockets.
func (o *Orchestrator) runDuel(matchID string, duelFd int, challengerNick, challengedNick string, challengerIP, challengedIP netip.Addr) {
	poll, err := reactor.NewPoller()
	if err != nil {
		o.log.Error("match: open duel poller failed", zap.Error(err), zap.String("match_id", matchID))
		_ = reactor.WrapConn(duelFd, netip.AddrPort{}).Close()
		return
	}
	defer poll.Close()

	if err := poll.AddRead(duelFd); err != nil {
		o.log.Error("match: register duel listener failed", zap.Error(err), zap.String("match_id", matchID))
		_ = reactor.WrapConn(duelFd, netip.AddrPort{}).Close()
		return
	}

	a, b, err := o.rendezvous(poll, duelFd, challengerNick, challengedNick, challengerIP, challengedIP)
	_ = reactor.WrapConn(duelFd, netip.AddrPort{}).Close()
	if err != nil {
		o.log.Warn("match: rendezvous failed", zap.Error(err), zap.String("match_id", matchID), zap.String("challenger", challengerNick), zap.String("challenged", challengedNick))
		if a != nil {
			a.conn.Close()
		}
		if b != nil {
			b.conn.Close()
		}
		return
	}
	defer a.conn.Close()
	defer b.conn.Close()

	words, err := o.words.Next(o.cfg.WordsPerMatch)
	if err != nil {
		o.log.Error("match: word source failed", zap.Error(err), zap.String("match_id", matchID))
		return
	}
	a.answers = make([]string, len(words))
	b.answers = make([]string, len(words))

	deadline := time.Now().Add(o.cfg.MatchDuration)
	timedOut := o.playRounds(poll, a, b, words, deadline)

	o.log.Info("match: duel finished", zap.String("match_id", matchID), zap.Bool("timed_out", timedOut))
	o.score(a, b, words, timedOut)
}

// rendezvous accepts connections on duelFd until both the challenger and
// the challenged peer have connected (identified by remote IP, spec
// §4.7's "identifying each accepted socket by the peer's IP"), or
// rendezvousTimeout elapses.
func (o *Orchestrator) rendezvous(poll *reactor.Poller, duelFd int, challengerNick, challengedNick string, challengerIP, challengedIP netip.Addr) (a, b *peer, err error) {
	deadline := time.Now().Add(rendezvousTimeout)
	for a == nil || b == nil {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return a, b, fmt.Errorf("match: rendezvous timed out waiting for both peers")
		}
		waitErr := poll.Wait(msUntil(remaining), func(fd int) {
			if fd != duelFd {
				return
			}
			for {
				nfd, remote, aerr := reactor.AcceptNonblock(duelFd)
				if aerr != nil {
					return
				}
				c := reactor.WrapConn(nfd, remote)
				switch remote.Addr() {
				case challengerIP:
					if a == nil {
						a = &peer{nick: challengerNick, conn: c}
					} else {
						c.Close()
					}
				case challengedIP:
					if b == nil {
						b = &peer{nick: challengedNick, conn: c}
					} else {
						c.Close()
					}
				default:
					c.Close()
				}
			}
		})
		if waitErr != nil {
			return a, b, waitErr
		}
	}
	if err := poll.AddRead(a.conn.Fd()); err != nil {
		return a, b, err
	}
	if err := poll.AddRead(b.conn.Fd()); err != nil {
		return a, b, err
	}
	return a, b, nil
}

// playRounds drives Phase 3: round-by-round word delivery until the
// deadline passes or both peers have answered every word. Returns
// whether the deadline fired before both peers finished.
func (o *Orchestrator) playRounds(poll *reactor.Poller, a, b *peer, words []wordsource.Challenge, deadline time.Time) (timedOut bool) {
	byFd := map[int]*peer{a.conn.Fd(): a, b.conn.Fd(): b}
	for {
		if a.done && b.done {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			finishUnanswered(a, len(words))
			finishUnanswered(b, len(words))
			return true
		}
		_ = poll.Wait(msUntil(remaining), func(fd int) {
			p, ok := byFd[fd]
			if !ok || p.done {
				return
			}
			o.readPeer(p, words)
		})
	}
}

func (o *Orchestrator) readPeer(p *peer, words []wordsource.Challenge) {
	n, err := p.conn.Read()
	if n > 0 {
		p.framer.Feed(p.conn.Bytes(n))
		for {
			line, ok := p.framer.NextLine()
			if !ok {
				break
			}
			o.applyLine(p, words, line)
			if p.done {
				return
			}
		}
		return
	}
	if isWouldBlock(err) {
		return
	}
	// EOF or hard error: peer crashed mid-duel (spec §4.7 Phase 3 / §8 S6).
	finishUnanswered(p, len(words))
}

// applyLine processes one "<text>/<nick>" duel-protocol line (spec §6).
func (o *Orchestrator) applyLine(p *peer, words []wordsource.Challenge, line string) {
	text := line
	if idx := strings.LastIndex(line, "/"); idx >= 0 {
		text = line[:idx]
	}
	if text == "START" {
		o.sendWord(p, words, 0)
		p.cursor = 1
		return
	}
	idx := p.cursor - 1
	if idx >= 0 && idx < len(p.answers) {
		p.answers[idx] = text
	}
	if p.cursor < len(words) {
		o.sendWord(p, words, p.cursor)
		p.cursor++
		return
	}
	p.done = true
}

func (o *Orchestrator) sendWord(p *peer, words []wordsource.Challenge, idx int) {
	if err := p.conn.Write([]byte(words[idx].Word + "\n")); err != nil {
		o.log.Debug("match: write word failed", zap.Error(err), zap.String("nick", p.nick))
	}
}

// finishUnanswered marks a peer done, leaving any not-yet-recorded
// answers as empty strings (spec §4.7's blank/skipped/crashed case).
func finishUnanswered(p *peer, total int) {
	if len(p.answers) < total {
		p.answers = append(p.answers, make([]string, total-len(p.answers))...)
	} else {
		p.answers = p.answers[:total]
	}
	p.cursor = total + 1
	p.done = true
}

// score implements Phase 4 (spec §4.7): +2 per correct answer, -1 per
// wrong non-blank answer, 0 for blanks, then a +3 winner bonus to the
// strictly higher scorer (no bonus on a tie). The bonus is awarded even
// when both scores are negative but unequal, spec §9's winner-bonus edge
// case.
func (o *Orchestrator) score(a, b *peer, words []wordsource.Challenge, timedOut bool) {
	scoreA := tally(words, a.answers)
	scoreB := tally(words, b.answers)

	var resultA, resultB string
	switch {
	case scoreA > scoreB:
		scoreA += 3
		resultA, resultB = "won", "lost"
	case scoreB > scoreA:
		scoreB += 3
		resultA, resultB = "lost", "won"
	default:
		resultA, resultB = "drew", "drew"
	}

	if err := o.store.AdjustScore(a.nick, scoreA); err != nil {
		o.log.Error("match: persist score failed", zap.Error(err), zap.String("nick", a.nick))
	}
	if err := o.store.AdjustScore(b.nick, scoreB); err != nil {
		o.log.Error("match: persist score failed", zap.Error(err), zap.String("nick", b.nick))
	}

	finalMessage(a.conn, scoreA, resultA, timedOut)
	finalMessage(b.conn, scoreB, resultB, timedOut)
}

func tally(words []wordsource.Challenge, answers []string) int {
	total := 0
	for i, ans := range answers {
		if ans == "" {
			continue
		}
		if i < len(words) && words[i].Accepts(ans) {
			total += 2
		} else {
			total--
		}
	}
	return total
}

func finalMessage(c *reactor.Conn, score int, result string, timedOut bool) {
	prefix := ""
	if timedOut {
		prefix = "Time out: "
	}
	msg := fmt.Sprintf("%sEND/You have scored: %d points. You %s.\n", prefix, score, result)
	_ = c.Write([]byte(msg))
}

func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

func msUntil(d time.Duration) int {
	ms := int(d / time.Millisecond)
	if ms <= 0 {
		ms = 1
	}
	if ms > 1000 {
		ms = 1000 // re-check the deadline at least once a second
	}
	return ms
}
