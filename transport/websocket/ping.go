package websocket

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Tokens exchanged on the latency side channel.
const (
	TokenPing = "ping"
	TokenPong = "pong"
)

// PingTimer measures the time between a ping seen on one loop and the next
// pong seen on the same loop. It is owned by a single loop and is not safe
// for concurrent use.
type PingTimer struct {
	now     func() time.Time
	running bool
	start   time.Time
}

// NewPingTimer returns a stopped timer.
func NewPingTimer() *PingTimer {
	return &PingTimer{now: time.Now}
}

// Token returns TokenPing or TokenPong when the whole payload is that token,
// ignoring case, and "" otherwise. Payloads that are not valid UTF-8 never
// match.
func Token(payload []byte) string {
	if len(payload) != len(TokenPing) || !utf8.Valid(payload) {
		return ""
	}
	s := string(payload)
	switch {
	case strings.EqualFold(s, TokenPing):
		return TokenPing
	case strings.EqualFold(s, TokenPong):
		return TokenPong
	}
	return ""
}

// Observe feeds one payload through the timer. A ping (re)starts it; a pong
// stops a running timer and returns the elapsed time with ok set.
func (t *PingTimer) Observe(payload []byte) (token string, elapsed time.Duration, ok bool) {
	token = Token(payload)
	switch token {
	case TokenPing:
		t.running = true
		t.start = t.now()
	case TokenPong:
		if t.running {
			t.running = false
			return token, t.now().Sub(t.start), true
		}
	}
	return token, 0, false
}

// Running reports whether a ping is awaiting its pong.
func (t *PingTimer) Running() bool {
	return t.running
}
