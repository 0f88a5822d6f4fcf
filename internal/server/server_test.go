package server

import (
	"bufio"
	"fmt"
	"net"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wordquizzle/internal/match"
	"wordquizzle/internal/presence"
	"wordquizzle/internal/store"
	"wordquizzle/internal/wordsource"
)

func waitForPort(t *testing.T, srv *Server) int {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p := srv.Port(); p != 0 {
			return p
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for server to start listening")
	return 0
}

type lineResult struct {
	line string
	err  error
}

// readLineAsync reads one line in the background so a test can race it
// against a timer instead of blocking the test goroutine outright.
func readLineAsync(r *bufio.Reader) <-chan lineResult {
	ch := make(chan lineResult, 1)
	go func() {
		line, err := r.ReadString('\n')
		ch <- lineResult{line, err}
	}()
	return ch
}

func mustReadLine(t *testing.T, r *bufio.Reader, timeout time.Duration) string {
	t.Helper()
	select {
	case res := <-readLineAsync(r):
		require.NoError(t, res.err)
		return res.line
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a reply line")
		return ""
	}
}

// requireNoLineYet asserts nothing arrives within wait, then hands back the
// still-pending read so the caller can block on it for the real reply.
func requireNoLineYet(t *testing.T, r *bufio.Reader, wait time.Duration) <-chan lineResult {
	t.Helper()
	ch := readLineAsync(r)
	select {
	case res := <-ch:
		t.Fatalf("got an unexpected reply before it should have been possible: %q (err=%v)", res.line, res.err)
	case <-time.After(wait):
	}
	return ch
}

func newMatchServer(t *testing.T, cfg match.Config) (*Server, *store.Store, *presence.Registry) {
	t.Helper()
	log := zap.NewNop()
	st, err := store.New(filepath.Join(t.TempDir(), "users.json"), log)
	require.NoError(t, err)
	pr := presence.New()
	ws, err := wordsource.New(1)
	require.NoError(t, err)
	mo := match.New(log, st, pr, ws, cfg)

	srv := New(log, Config{Workers: 4, QueueCapacity: 16}, st, pr, mo)
	go func() { _ = srv.ListenAndServe("127.0.0.1:0") }()
	t.Cleanup(srv.Stop)
	return srv, st, pr
}

// TestMatch_SessionSocketStaysDisarmedForWholeDuel exercises spec §8's
// testable property 5 through the real reactor/workerpool/match stack:
// while alice's challenge to bob is stuck in Phase 1 (bob is "online" but
// never answers the invitation, so the full AcceptTimeout elapses — spec
// §4.7/§8 S5), a second request queued on alice's own session connection
// must not be answered until the orchestrator's terminal state re-arms
// that connection. Before the fix, handleMatch re-armed the connection
// immediately after dispatching Challenge, so the reactor could hand the
// queued "score" request to a second worker while the match goroutine was
// still writing to the same fd.
func TestMatch_SessionSocketStaysDisarmedForWholeDuel(t *testing.T) {
	srv, st, pr := newMatchServer(t, match.Config{
		AcceptTimeout: 300 * time.Millisecond,
		MatchDuration: 2 * time.Second,
		WordsPerMatch: 2,
	})

	_, err := st.Register("alice", "pw")
	require.NoError(t, err)
	_, err = st.Register("bob", "pw")
	require.NoError(t, err)
	_, err = st.AddFriendship("alice", "bob")
	require.NoError(t, err)
	require.NoError(t, st.AdjustScore("alice", 5))

	// bob is "online" (presence has an endpoint for it) but nothing ever
	// reads the invitation datagram, so Phase 1 runs its full timeout.
	bobUDP, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer bobUDP.Close()
	bobPort := bobUDP.LocalAddr().(*net.UDPAddr).Port
	_, err = pr.Bind(2, "bob", netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), uint16(bobPort)))
	require.NoError(t, err)

	port := waitForPort(t, srv)
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	_, err = fmt.Fprintf(conn, "0 alice pw 9001\n")
	require.NoError(t, err)
	require.Equal(t, "Login successful.\n", mustReadLine(t, reader, 2*time.Second))

	_, err = fmt.Fprintf(conn, "6 bob\n")
	require.NoError(t, err)
	// Give the worker pool time to dispatch "match" (disarming the
	// connection) before this second request is sent as its own write.
	time.Sleep(50 * time.Millisecond)
	_, err = fmt.Fprintf(conn, "4\n")
	require.NoError(t, err)

	pending := requireNoLineYet(t, reader, 150*time.Millisecond)

	select {
	case res := <-pending:
		require.NoError(t, res.err)
		require.Equal(t, "Match error: invitation to bob timed out.\n", res.line)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the match timeout reply")
	}

	// Only now, after the orchestrator's terminal state re-armed the
	// connection, does the queued score request get answered.
	require.Equal(t, "alice, your score is: 5\n", mustReadLine(t, reader, 2*time.Second))
}

// TestMatch_SelfChallengeRejectionRearmsPromptly checks the fast Phase-1
// rejection path also re-arms the connection (rather than only the slow
// timeout path above): Challenge's deferred rearm must fire on every
// return, not just the one at the end of a full duel.
func TestMatch_SelfChallengeRejectionRearmsPromptly(t *testing.T) {
	srv, st, _ := newMatchServer(t, match.Config{
		AcceptTimeout: time.Second,
		MatchDuration: time.Second,
		WordsPerMatch: 2,
	})
	_, err := st.Register("alice", "pw")
	require.NoError(t, err)

	port := waitForPort(t, srv)
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	_, err = fmt.Fprintf(conn, "0 alice pw 9001\n")
	require.NoError(t, err)
	require.Equal(t, "Login successful.\n", mustReadLine(t, reader, 2*time.Second))

	_, err = fmt.Fprintf(conn, "6 alice\n")
	require.NoError(t, err)
	require.Equal(t, "Match error: you cannot challenge yourself.\n", mustReadLine(t, reader, 2*time.Second))

	_, err = fmt.Fprintf(conn, "3\n")
	require.NoError(t, err)
	require.Equal(t, "You currently have no friends, add some!\n", mustReadLine(t, reader, 2*time.Second))
}
