package websocket

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a chunk of a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to deliver a close or ping control frame.
	controlWait = time.Second
)

var errPeerClosed = errors.New("peer closed")

// Peer is one accepted connection bound (or about to be bound) to a role.
//
// gorilla/websocket allows one concurrent reader and one concurrent writer.
// The reader is always the loop serving this peer; writers are serialized by
// writeMu because an evicted loop and its replacement may briefly target the
// same destination.
type Peer struct {
	ID         uuid.UUID
	Role       Role
	RemoteAddr string
	Since      time.Time

	conn      *websocket.Conn
	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

func newPeer(conn *websocket.Conn, role Role, remoteAddr string) *Peer {
	return &Peer{
		ID:         uuid.New(),
		Role:       role,
		RemoteAddr: remoteAddr,
		Since:      time.Now(),
		conn:       conn,
	}
}

// Open reports whether the peer can still be written to.
func (p *Peer) Open() bool {
	return p != nil && !p.closed.Load()
}

// Close sends a close frame (ignoring failures) and releases the
// connection. Safe to call more than once and from any goroutine.
func (p *Peer) Close(code int, reason string) {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		if p.conn == nil {
			return
		}
		msg := websocket.FormatCloseMessage(code, reason)
		_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWait))
		_ = p.conn.Close()
	})
}

func (p *Peer) ping() error {
	return p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWait))
}

// nextWriter starts an outbound message of type mt. The peer's write lock is
// held until the returned writer is closed.
func (p *Peer) nextWriter(mt int) (*messageWriter, error) {
	p.writeMu.Lock()
	if !p.Open() {
		p.writeMu.Unlock()
		return nil, errPeerClosed
	}
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	w, err := p.conn.NextWriter(mt)
	if err != nil {
		p.writeMu.Unlock()
		return nil, err
	}
	return &messageWriter{peer: p, w: w}, nil
}

// messageWriter streams one message to a peer chunk by chunk.
type messageWriter struct {
	peer *Peer
	w    io.WriteCloser
	n    int64
	once sync.Once
}

func (m *messageWriter) Write(b []byte) (int, error) {
	m.peer.conn.SetWriteDeadline(time.Now().Add(writeWait))
	n, err := m.w.Write(b)
	m.n += int64(n)
	return n, err
}

// Close finishes the message and releases the peer's write lock.
func (m *messageWriter) Close() error {
	err := errPeerClosed
	m.once.Do(func() {
		err = m.w.Close()
		m.peer.writeMu.Unlock()
	})
	return err
}

// discard releases the write lock without finishing the message. The peer
// must already be closed, or the next writer would flush the unfinished
// message as if it were complete.
func (m *messageWriter) discard() {
	m.once.Do(m.peer.writeMu.Unlock)
}
