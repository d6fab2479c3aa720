package command

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"
)

func TestCommandRoundTripBoundaries(t *testing.T) {
	cases := []Command{
		Set("", ""),
		Set("key", ""),
		Set("", "value"),
		Set("k", "k"),
		Remove("k"),
		Get("k"),
		Set("multi\tbyteé", "kilobyte"+string(bytes.Repeat([]byte{'x'}, 4096))),
	}
	for _, c := range cases {
		line, err := Encode(c)
		require.NoError(t, err)
		require.False(t, bytes.Contains(line[:len(line)-1], []byte{'\n'}))

		got, err := Decode(line[:len(line)-1])
		require.NoError(t, err)
		require.Equal(t, c, got)
	}
}

// TestCommandRoundTripFuzz exercises the codec with randomly generated
// keys and values, covering testable property #5 from spec.md §8: every
// encoded Command decodes back to an equal value.
func TestCommandRoundTripFuzz(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(0, 4096)
	for i := 0; i < 200; i++ {
		var key, value string
		f.Fuzz(&key)
		f.Fuzz(&value)
		c := Set(key, value)

		line, err := Encode(c)
		require.NoError(t, err)

		got, err := Decode(line[:len(line)-1])
		require.NoError(t, err)
		require.Equal(t, c, got)
	}
}

func TestReadWriteCommandStream(t *testing.T) {
	var buf bytes.Buffer
	cmds := []Command{Set("a", "1"), Get("a"), Remove("a")}
	for _, c := range cmds {
		require.NoError(t, Write(&buf, c))
	}

	r := bufio.NewReader(&buf)
	for _, want := range cmds {
		got, err := Read(r)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := Read(r)
	require.ErrorIs(t, err, io.EOF)
}
