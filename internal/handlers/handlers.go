// Package handlers implements the six stateless request handlers of spec
// §4.6: login, logout, add_friend, friend_list, score, scoreboard. Each
// handler is a pure function of its arguments and the shared stores —
// the generalization of the teacher's Server.handleRegister/handleLogin/
// etc. (chat-go/internal/server/server.go), which mutate stores and
// return a reply through the same kind of narrow Deps bundle.
package handlers

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"wordquizzle/internal/presence"
	"wordquizzle/internal/store"
)

// Deps bundles the shared, thread-safe collaborators every handler needs.
type Deps struct {
	Store    *store.Store
	Presence *presence.Registry
}

// Result is what a handler hands back to the dispatcher: the reply line
// to write on the session socket (already newline-terminated, or empty
// for no reply) and whether the connection should be closed afterward
// instead of re-armed for read.
type Result struct {
	Reply string
	Close bool
}

func reply(format string, args ...any) Result {
	s := format
	if len(args) > 0 {
		s = fmt.Sprintf(format, args...)
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return Result{Reply: s}
}

// Login implements spec §4.6's login handler. connID is the opaque
// identity the reactor minted for this connection at accept time;
// remoteIP/udpPort together form the datagram endpoint recorded for match
// invitations.
func Login(d Deps, connID uint64, nickname, password string, remoteIP netip.Addr, udpPort int) Result {
	if _, ok := d.Store.Lookup(nickname); !ok {
		return reply("Login error: user %s not found. Please register.", nickname)
	}
	if d.Presence.IsOnline(nickname) {
		return reply("Login error: %s is already logged in.", nickname)
	}
	if existing, ok := d.Presence.NicknameOf(connID); ok && existing != nickname {
		return reply("Login error: you are already logged with another account.")
	}
	if !d.Store.Verify(nickname, password) {
		return reply("Login error: wrong password.")
	}

	endpoint := netip.AddrPortFrom(remoteIP, uint16(udpPort))
	if _, err := d.Presence.Bind(connID, nickname, endpoint); err != nil {
		// Lost a race against a concurrent login for the same nickname or
		// connection between the checks above and here.
		return reply("Login error: %s is already logged in.", nickname)
	}
	return reply("Login successful.")
}

// Logout implements the client-initiated half of spec §4.6's logout
// handler: clean presence, reply, and signal the dispatcher to close the
// socket.
func Logout(d Deps, connID uint64) Result {
	d.Presence.Unbind(connID)
	return Result{Reply: "Logout successful\n", Close: true}
}

// BrutalLogout implements the reactor-observed-EOF half of logout: same
// store cleanup, no reply. Safe to call on a connection that never
// logged in (spec §4.6).
func BrutalLogout(d Deps, connID uint64) {
	d.Presence.Unbind(connID)
}

// AddFriend implements spec §4.6's add_friend handler.
func AddFriend(d Deps, nickname, friend string) Result {
	if _, ok := d.Store.Lookup(friend); !ok {
		return reply("Add friend error: user %s not found.", friend)
	}
	if nickname == friend {
		return reply("Add friend error: you cannot add yourself as a friend.")
	}
	_, err := d.Store.AddFriendship(nickname, friend)
	if err != nil {
		return reply("Add friend error: you and %s are already friends.", friend)
	}
	return reply("%s is now your friend.", friend)
}

// FriendList implements spec §4.6's friend_list handler.
func FriendList(d Deps, nickname string) Result {
	u, ok := d.Store.Lookup(nickname)
	if !ok || len(u.Friends) == 0 {
		return reply("You currently have no friends, add some!")
	}
	var sb strings.Builder
	sb.WriteString("Your friends are: ")
	for _, f := range u.Friends {
		sb.WriteString(f)
		sb.WriteString(" ")
	}
	return reply("%s", sb.String())
}

// Score implements spec §4.6's score handler.
func Score(d Deps, nickname string) Result {
	u, _ := d.Store.Lookup(nickname)
	return reply("%s, your score is: %d", nickname, u.Score)
}

// Scoreboard implements spec §4.6's scoreboard handler: the caller and
// all of the caller's friends, sorted by score descending.
func Scoreboard(d Deps, nickname string) Result {
	board, err := d.Store.Scoreboard(nickname)
	if err != nil {
		return reply("Scoreboard error: %s not found.", nickname)
	}
	fields := make([]string, 0, len(board)*2)
	for _, u := range board {
		fields = append(fields, u.Nickname, strconv.Itoa(u.Score))
	}
	return reply("%s", strings.Join(fields, " "))
}
