package control

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Key is a decoded key press relevant to driving.
type Key int

const (
	KeyOther Key = iota
	KeyUp        // W or arrow up
	KeyDown      // S or arrow down
	KeyLeft      // A or arrow left
	KeyRight     // D or arrow right
	KeyQuit      // Q, Esc or Ctrl-C
)

func (k Key) String() string {
	switch k {
	case KeyUp:
		return "up"
	case KeyDown:
		return "down"
	case KeyLeft:
		return "left"
	case KeyRight:
		return "right"
	case KeyQuit:
		return "quit"
	default:
		return "other"
	}
}

const (
	keyCtrlC  = 0x03
	keyEscape = 0x1b
)

// KeySource yields one key press at a time, blocking until one arrives.
type KeySource interface {
	ReadKey() (Key, byte, error)
}

// KeyReader decodes key presses from a terminal. When the input is a TTY it
// is switched to raw mode so keys arrive without waiting for Enter.
type KeyReader struct {
	r        *bufio.Reader
	fd       int
	oldState *term.State
}

// NewKeyReader wraps f, putting it in raw mode if it is a terminal. Call
// Restore when done.
func NewKeyReader(f *os.File) (*KeyReader, error) {
	k := newKeyReader(f)
	fd := int(f.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return nil, fmt.Errorf("entering raw mode: %w", err)
		}
		k.fd = fd
		k.oldState = state
	}
	return k, nil
}

func newKeyReader(r io.Reader) *KeyReader {
	return &KeyReader{r: bufio.NewReader(r), fd: -1}
}

// Restore returns the terminal to its previous mode.
func (k *KeyReader) Restore() error {
	if k.oldState == nil {
		return nil
	}
	err := term.Restore(k.fd, k.oldState)
	k.oldState = nil
	return err
}

// ReadKey blocks for the next key. It returns the decoded key and the raw
// byte that started it.
func (k *KeyReader) ReadKey() (Key, byte, error) {
	b, err := k.r.ReadByte()
	if err != nil {
		return KeyOther, 0, err
	}

	switch b {
	case 'w', 'W':
		return KeyUp, b, nil
	case 's', 'S':
		return KeyDown, b, nil
	case 'a', 'A':
		return KeyLeft, b, nil
	case 'd', 'D':
		return KeyRight, b, nil
	case 'q', 'Q', keyCtrlC:
		return KeyQuit, b, nil
	case keyEscape:
		return k.readEscape()
	}
	return KeyOther, b, nil
}

// readEscape decodes CSI arrow sequences. An Esc with nothing buffered
// behind it is a lone Esc press.
func (k *KeyReader) readEscape() (Key, byte, error) {
	if k.r.Buffered() == 0 {
		return KeyQuit, keyEscape, nil
	}
	next, err := k.r.ReadByte()
	if err != nil {
		return KeyQuit, keyEscape, nil
	}
	if next != '[' && next != 'O' {
		k.r.UnreadByte()
		return KeyQuit, keyEscape, nil
	}

	code, err := k.r.ReadByte()
	if err != nil {
		return KeyOther, keyEscape, err
	}
	switch code {
	case 'A':
		return KeyUp, keyEscape, nil
	case 'B':
		return KeyDown, keyEscape, nil
	case 'C':
		return KeyRight, keyEscape, nil
	case 'D':
		return KeyLeft, keyEscape, nil
	}
	return KeyOther, keyEscape, nil
}
