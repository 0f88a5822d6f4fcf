package wordsource

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNext_ReturnsDistinctWords(t *testing.T) {
	s, err := New(42)
	require.NoError(t, err)

	words, err := s.Next(5)
	require.NoError(t, err)
	require.Len(t, words, 5)

	seen := make(map[string]bool, len(words))
	for _, w := range words {
		require.False(t, seen[w.Word], "word %q sampled twice", w.Word)
		seen[w.Word] = true
	}
}

func TestNext_RejectsRequestLargerThanDictionary(t *testing.T) {
	s, err := New(1)
	require.NoError(t, err)

	_, err = s.Next(1 << 20)
	require.Error(t, err)
}

func TestChallenge_AcceptsIsCaseAndWhitespaceInsensitive(t *testing.T) {
	c := Challenge{Word: "casa", Accepted: []string{"house", "home"}}
	require.True(t, c.Accepts("House"))
	require.True(t, c.Accepts("  home  "))
	require.False(t, c.Accepts("car"))
}
