package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.json")
	s, err := New(path, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestRegister_CreatesUserAndRejectsDuplicate(t *testing.T) {
	s := newTestStore(t)

	outcome, err := s.Register("alice", "hunter2")
	require.NoError(t, err)
	require.Equal(t, Created, outcome)

	_, err = s.Register("alice", "different")
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestVerify_RoundTripsBcryptHash(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Register("bob", "correct-horse")
	require.NoError(t, err)

	require.True(t, s.Verify("bob", "correct-horse"))
	require.False(t, s.Verify("bob", "wrong-password"))
	require.False(t, s.Verify("nobody", "anything"))
}

func TestAddFriendship_IsSymmetricAndRejectsDuplicates(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.Register("alice", "pw")
	_, _ = s.Register("bob", "pw")

	_, err := s.AddFriendship("alice", "bob")
	require.NoError(t, err)

	alice, ok := s.Lookup("alice")
	require.True(t, ok)
	require.Equal(t, []string{"bob"}, alice.Friends)

	bob, ok := s.Lookup("bob")
	require.True(t, ok)
	require.Equal(t, []string{"alice"}, bob.Friends)

	_, err = s.AddFriendship("alice", "bob")
	require.ErrorIs(t, err, ErrAlreadyFriends)
}

func TestAddFriendship_UnknownUser(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.Register("alice", "pw")

	_, err := s.AddFriendship("alice", "ghost")
	require.True(t, errors.Is(err, ErrUnknownUser))
}

func TestAdjustScore_Accumulates(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.Register("alice", "pw")

	require.NoError(t, s.AdjustScore("alice", 5))
	require.NoError(t, s.AdjustScore("alice", -2))

	u, ok := s.Lookup("alice")
	require.True(t, ok)
	require.Equal(t, 3, u.Score)
}

func TestScoreboard_SortsDescendingAndIncludesFriends(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.Register("alice", "pw")
	_, _ = s.Register("bob", "pw")
	_, _ = s.Register("carol", "pw")
	_, _ = s.AddFriendship("alice", "bob")
	_, _ = s.AddFriendship("alice", "carol")

	require.NoError(t, s.AdjustScore("alice", 10))
	require.NoError(t, s.AdjustScore("bob", 30))
	require.NoError(t, s.AdjustScore("carol", 20))

	board, err := s.Scoreboard("alice")
	require.NoError(t, err)
	require.Len(t, board, 3)
	require.Equal(t, "bob", board[0].Nickname)
	require.Equal(t, "carol", board[1].Nickname)
	require.Equal(t, "alice", board[2].Nickname)
}

func TestStore_PersistsAndReloadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	s1, err := New(path, zap.NewNop())
	require.NoError(t, err)
	_, err = s1.Register("alice", "pw")
	require.NoError(t, err)
	require.NoError(t, s1.AdjustScore("alice", 7))

	s2, err := New(path, zap.NewNop())
	require.NoError(t, err)
	u, ok := s2.Lookup("alice")
	require.True(t, ok)
	require.Equal(t, 7, u.Score)
	require.True(t, s2.Verify("alice", "pw"))
}
