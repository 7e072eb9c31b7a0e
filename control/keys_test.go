package control

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, input string) []Key {
	t.Helper()
	kr := newKeyReader(strings.NewReader(input))

	var keys []Key
	for {
		k, _, err := kr.ReadKey()
		if err == io.EOF {
			return keys
		}
		require.NoError(t, err)
		keys = append(keys, k)
	}
}

func TestReadKeyLetters(t *testing.T) {
	got := readAll(t, "wWsSaAdDqQx\x03")
	want := []Key{
		KeyUp, KeyUp, KeyDown, KeyDown, KeyLeft, KeyLeft,
		KeyRight, KeyRight, KeyQuit, KeyQuit, KeyOther, KeyQuit,
	}
	assert.Equal(t, want, got)
}

func TestReadKeyArrows(t *testing.T) {
	got := readAll(t, "\x1b[A\x1b[B\x1b[C\x1b[D\x1bOA\x1b[H")
	assert.Equal(t, []Key{KeyUp, KeyDown, KeyRight, KeyLeft, KeyUp, KeyOther}, got)
}

func TestReadKeyLoneEscape(t *testing.T) {
	assert.Equal(t, []Key{KeyQuit}, readAll(t, "\x1b"))
	// Escape followed by an ordinary key is two presses.
	assert.Equal(t, []Key{KeyQuit, KeyUp}, readAll(t, "\x1bw"))
}

func TestKeyReaderRestoreWithoutTerminal(t *testing.T) {
	kr := newKeyReader(strings.NewReader(""))
	assert.NoError(t, kr.Restore())
}
