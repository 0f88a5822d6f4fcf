package presence

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func ep(port uint16) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port)
}

func TestBind_RejectsNicknameAlreadyOnline(t *testing.T) {
	r := New()
	_, err := r.Bind(1, "alice", ep(7000))
	require.NoError(t, err)

	_, err = r.Bind(2, "alice", ep(7001))
	require.ErrorIs(t, err, ErrNicknameBusy)
}

func TestBind_RejectsConnectionAlreadyBound(t *testing.T) {
	r := New()
	_, err := r.Bind(1, "alice", ep(7000))
	require.NoError(t, err)

	_, err = r.Bind(1, "bob", ep(7001))
	require.ErrorIs(t, err, ErrConnectionBusy)
}

func TestUnbind_RemovesBothIndexesAndIsIdempotent(t *testing.T) {
	r := New()
	_, err := r.Bind(1, "alice", ep(7000))
	require.NoError(t, err)
	require.True(t, r.IsOnline("alice"))

	r.Unbind(1)
	require.False(t, r.IsOnline("alice"))
	_, ok := r.NicknameOf(1)
	require.False(t, ok)

	// Idempotent: unbinding again (or a connection that never bound) is a no-op.
	r.Unbind(1)
	r.Unbind(999)
}

func TestIsOnline_MatchesBothIndexesInLockstep(t *testing.T) {
	r := New()
	require.False(t, r.IsOnline("alice"))

	_, err := r.Bind(1, "alice", ep(7000))
	require.NoError(t, err)
	require.True(t, r.IsOnline("alice"))

	nick, ok := r.NicknameOf(1)
	require.True(t, ok)
	require.Equal(t, "alice", nick)

	endpoint, ok := r.EndpointOf("alice")
	require.True(t, ok)
	require.Equal(t, ep(7000), endpoint)
}
