package match

import (
	"testing"

	"github.com/stretchr/testify/require"

	"wordquizzle/internal/wordsource"
)

func words() []wordsource.Challenge {
	return []wordsource.Challenge{
		{Word: "casa", Accepted: []string{"house", "home"}},
		{Word: "cane", Accepted: []string{"dog"}},
		{Word: "gatto", Accepted: []string{"cat"}},
	}
}

func TestTally_CorrectWrongAndBlankAnswers(t *testing.T) {
	ws := words()
	// correct, wrong, blank: +2, -1, 0
	require.Equal(t, 1, tally(ws, []string{"house", "fish", ""}))
}

func TestTally_AllCorrect(t *testing.T) {
	ws := words()
	require.Equal(t, 6, tally(ws, []string{"home", "dog", "cat"}))
}

func TestTally_ShorterAnswerSliceTreatedAsMissing(t *testing.T) {
	ws := words()
	require.Equal(t, 2, tally(ws, []string{"house"}))
}

func TestContainsString(t *testing.T) {
	require.True(t, containsString([]string{"alice", "bob"}, "bob"))
	require.False(t, containsString([]string{"alice", "bob"}, "carol"))
	require.False(t, containsString(nil, "bob"))
}

func TestFinishUnanswered_PadsToTotalAndMarksDone(t *testing.T) {
	p := &peer{answers: []string{"house"}}
	finishUnanswered(p, 3)
	require.True(t, p.done)
	require.Len(t, p.answers, 3)
	require.Equal(t, 4, p.cursor)
}

func TestMsUntil_ClampsToPositiveAndOneSecondCeiling(t *testing.T) {
	require.Equal(t, 1, msUntil(-5))
	require.GreaterOrEqual(t, msUntil(500), 1)
	require.LessOrEqual(t, msUntil(10*1000*1000*1000), 1000)
}
