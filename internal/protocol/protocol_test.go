package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_SplitsOpcodeAndArgs(t *testing.T) {
	req, err := Parse("0 alice hunter2 7001")
	require.NoError(t, err)
	require.Equal(t, OpLogin, req.Op)
	require.Equal(t, []string{"alice", "hunter2", "7001"}, req.Args)
}

func TestParse_RejectsEmptyAndUnknownOpcodes(t *testing.T) {
	_, err := Parse("")
	require.Error(t, err)

	_, err = Parse("99")
	require.Error(t, err)

	_, err = Parse("not-a-number")
	require.Error(t, err)
}

func TestFramer_ExtractsOneLinePerCallAcrossPartialReads(t *testing.T) {
	var f Framer
	f.Feed([]byte("3 foo\n4"))

	line, ok := f.NextLine()
	require.True(t, ok)
	require.Equal(t, "3 foo", line)

	_, ok = f.NextLine()
	require.False(t, ok, "second line is still incomplete")

	f.Feed([]byte(" bar\n5 baz\n"))

	line, ok = f.NextLine()
	require.True(t, ok)
	require.Equal(t, "4 bar", line)

	line, ok = f.NextLine()
	require.True(t, ok)
	require.Equal(t, "5 baz", line)

	_, ok = f.NextLine()
	require.False(t, ok)
}

func TestFramer_TrimsTrailingCarriageReturn(t *testing.T) {
	var f Framer
	f.Feed([]byte("1\r\n"))
	line, ok := f.NextLine()
	require.True(t, ok)
	require.Equal(t, "1", line)
}
